package params

import (
	"testing"

	"github.com/harrison/buildgraph/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestResolvePrecedence(t *testing.T) {
	declared := []Parameter{
		{Name: "NugetSource", Default: "https://api.nuget.org/v3/index.json"},
		{Name: "NugetApiKey", Secret: true},
	}

	tests := []struct {
		name   string
		opts   Options
		want   string
		source Source
	}{
		{
			name:   "build-file default",
			opts:   Options{Declared: declared},
			want:   "https://api.nuget.org/v3/index.json",
			source: SourceDefault,
		},
		{
			name: "config beats default",
			opts: Options{
				Declared: declared,
				Config:   map[string]string{"nugetsource": "https://config.example"},
			},
			want:   "https://config.example",
			source: SourceConfig,
		},
		{
			name: "env beats config",
			opts: Options{
				Declared:  declared,
				Config:    map[string]string{"NugetSource": "https://config.example"},
				LookupEnv: envFrom(map[string]string{"NUGETSOURCE": "https://env.example"}),
			},
			want:   "https://env.example",
			source: SourceEnv,
		},
		{
			name: "flag beats env",
			opts: Options{
				Declared:  declared,
				Flags:     map[string]string{"NugetSource": "https://flag.example"},
				LookupEnv: envFrom(map[string]string{"NugetSource": "https://env.example"}),
			},
			want:   "https://flag.example",
			source: SourceFlag,
		},
		{
			name: "prefixed env",
			opts: Options{
				Declared:  declared,
				LookupEnv: envFrom(map[string]string{"BUILDGRAPH_NUGETSOURCE": "https://prefixed.example"}),
			},
			want:   "https://prefixed.example",
			source: SourceEnv,
		},
		{
			name: "empty env value falls through",
			opts: Options{
				Declared:  declared,
				LookupEnv: envFrom(map[string]string{"NugetSource": ""}),
			},
			want:   "https://api.nuget.org/v3/index.json",
			source: SourceDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.opts.LookupEnv == nil {
				tt.opts.LookupEnv = envFrom(nil)
			}
			p := NewProvider(tt.opts)
			got, src := p.Lookup("NugetSource")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.source, src)
		})
	}
}

func TestResolveNotSet(t *testing.T) {
	p := NewProvider(Options{
		Declared:  []Parameter{{Name: "NugetApiKey"}},
		LookupEnv: envFrom(nil),
	})

	v, ok := p.Resolve("NugetApiKey")
	assert.False(t, ok)
	assert.Empty(t, v)

	_, ok = p.Resolve("")
	assert.False(t, ok)
}

func TestConfigurationDefault(t *testing.T) {
	local := NewProvider(Options{Interactive: true, LookupEnv: envFrom(nil)})
	v, src := local.Lookup("Configuration")
	assert.Equal(t, ConfigurationDebug, v)
	assert.Equal(t, SourceBuiltin, src)

	server := NewProvider(Options{LookupEnv: envFrom(nil)})
	v, ok := server.Resolve("configuration")
	require.True(t, ok)
	assert.Equal(t, ConfigurationRelease, v)

	flagged := NewProvider(Options{
		Flags:       map[string]string{"Configuration": "Release"},
		LookupEnv:   envFrom(nil),
		Interactive: true,
	})
	v, _ = flagged.Resolve("Configuration")
	assert.Equal(t, "Release", v)
}

func TestIsInteractiveCIVariables(t *testing.T) {
	assert.False(t, IsInteractive(nil, envFrom(nil)))
	assert.False(t, IsInteractive(nil, envFrom(map[string]string{"GITHUB_ACTIONS": "true"})))
}

func TestBuildContext(t *testing.T) {
	p := NewProvider(Options{
		Flags:     map[string]string{"DockerRegistry": "registry.example"},
		Declared:  []Parameter{{Name: "NugetSource", Default: "https://api.nuget.org"}, {Name: "NugetApiKey"}},
		LookupEnv: envFrom(nil),
	})

	bc := p.BuildContext(BuildOptions{
		RootDir:      "/work",
		ArtifactsDir: "/work/artifacts",
		Invoked:      []string{"Compile"},
	})

	assert.NotEmpty(t, bc.InvocationID())
	assert.Equal(t, ConfigurationRelease, bc.Configuration())
	assert.True(t, bc.IsServerBuild())
	assert.Equal(t, "/work", bc.RootDir())
	assert.True(t, bc.InvokedTarget("compile"))

	v, ok := bc.Param("nugetsource")
	require.True(t, ok)
	assert.Equal(t, "https://api.nuget.org", v)

	v, ok = bc.Param("DockerRegistry")
	require.True(t, ok)
	assert.Equal(t, "registry.example", v)

	_, ok = bc.Param("NugetApiKey")
	assert.False(t, ok, "unset parameters stay absent")

	assert.Equal(t, []string{"Configuration", "DockerRegistry", "NugetSource"}, bc.ParamNames())
}

func TestBuildContextKeepsInvocationID(t *testing.T) {
	p := NewProvider(Options{LookupEnv: envFrom(nil)})
	bc := p.BuildContext(BuildOptions{InvocationID: "fixed"})
	assert.Equal(t, "fixed", bc.InvocationID())
}

func TestNames(t *testing.T) {
	p := NewProvider(Options{
		Flags:    map[string]string{"Zeta": "1", "nugetsource": "x"},
		Config:   map[string]string{"Alpha": "2"},
		Declared: []Parameter{{Name: "NugetSource"}},
	})
	assert.Equal(t, []string{"Configuration", "NugetSource", "Alpha", "Zeta"}, p.Names())
}

func TestParseAssignments(t *testing.T) {
	got, err := ParseAssignments([]string{"NugetApiKey=abc=123", "Empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"NugetApiKey": "abc=123", "Empty": ""}, got)

	_, err = ParseAssignments([]string{"novalue"})
	assert.Error(t, err)

	_, err = ParseAssignments([]string{"=value"})
	assert.Error(t, err)
}

func TestRequirements(t *testing.T) {
	bc := models.NewBuildContext(models.BuildContextOptions{
		Configuration: "Release",
		Params:        map[string]string{"NugetApiKey": "secret", "Blank": "  "},
	})

	assert.NoError(t, IsSet("NugetApiKey").Check(bc))
	assert.Error(t, IsSet("NugetSource").Check(bc))
	assert.Error(t, IsSet("Blank").Check(bc))

	assert.NoError(t, Equals("Configuration", "release").Check(bc))
	assert.Error(t, Equals("Configuration", "Debug").Check(bc))
	assert.Error(t, Equals("Missing", "x").Check(bc))

	assert.NoError(t, ServerBuild().Check(bc))
	local := models.NewBuildContext(models.BuildContextOptions{IsLocalBuild: true})
	assert.Error(t, ServerBuild().Check(local))
}
