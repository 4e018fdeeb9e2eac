package parser

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/harrison/buildgraph/internal/action"
	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/params"
	"github.com/harrison/buildgraph/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// targetShape is the format-independent part of a decoded target.
type targetShape struct {
	Name        string
	Description string
	DependsOn   []string
	Before      []string
	After       []string
	TriggeredBy []string
	Triggers    []string
	Consumes    []string
	Produces    []string
	Requires    int
	HasAction   bool
	Timeout     time.Duration
}

func shapes(bf *BuildFile) []targetShape {
	out := make([]targetShape, len(bf.Targets))
	for i, t := range bf.Targets {
		out[i] = targetShape{
			Name:        t.Name,
			Description: t.Description,
			DependsOn:   t.DependsOn,
			Before:      t.Before,
			After:       t.After,
			TriggeredBy: t.TriggeredBy,
			Triggers:    t.Triggers,
			Consumes:    t.Consumes,
			Produces:    t.Produces,
			Requires:    len(t.Requires),
			HasAction:   t.Action != nil,
			Timeout:     t.Timeout,
		}
	}
	return out
}

func parseString(t *testing.T, p Parser, src string) *BuildFile {
	t.Helper()
	bf, err := p.Parse(strings.NewReader(src), "test")
	require.NoError(t, err)
	return bf
}

func testContext(invoked ...string) *models.BuildContext {
	return models.NewBuildContext(models.BuildContextOptions{
		Configuration:  "Release",
		ArtifactsDir:   "/out",
		InvokedTargets: invoked,
		Params:         map[string]string{"Version": "1.2.3"},
	})
}

func render(t *testing.T, target models.Target, v action.Value, bc *models.BuildContext) string {
	t.Helper()
	cmd, ok := target.Action.(*action.Command)
	require.True(t, ok, "action is %T", target.Action)
	out, err := v.Render(cmd.Scope.EvalContext(bc, target.Name))
	require.NoError(t, err)
	return out
}

func command(t *testing.T, target models.Target) *action.Command {
	t.Helper()
	cmd, ok := target.Action.(*action.Command)
	require.True(t, ok, "action is %T", target.Action)
	return cmd
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
	}{
		{"build.yaml", FormatYAML},
		{"build.YML", FormatYAML},
		{"build.hcl", FormatHCL},
		{"BUILD.md", FormatMarkdown},
		{"notes.markdown", FormatMarkdown},
		{"build.json", FormatUnknown},
		{"Makefile", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.filename))
		})
	}
}

func TestParseFileUnknownFormat(t *testing.T) {
	_, err := ParseFile("build.json")
	assert.Error(t, err)
}

// The three example build files describe the same build.
func TestExampleBuildFilesAgree(t *testing.T) {
	examples := filepath.Join("..", "..", "examples")

	yamlFile, err := ParseFile(filepath.Join(examples, "build.yaml"))
	require.NoError(t, err)
	hclFile, err := ParseFile(filepath.Join(examples, "build.hcl"))
	require.NoError(t, err)
	mdFile, err := ParseFile(filepath.Join(examples, "BUILD.md"))
	require.NoError(t, err)

	assert.Equal(t, FormatYAML, yamlFile.Format)
	assert.Equal(t, FormatHCL, hclFile.Format)
	assert.Equal(t, FormatMarkdown, mdFile.Format)

	want := shapes(yamlFile)
	require.Len(t, want, 16)
	if diff := cmp.Diff(want, shapes(hclFile), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("build.hcl differs from build.yaml (-yaml +hcl):\n%s", diff)
	}
	if diff := cmp.Diff(want, shapes(mdFile), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("BUILD.md differs from build.yaml (-yaml +md):\n%s", diff)
	}

	for _, bf := range []*BuildFile{yamlFile, hclFile, mdFile} {
		assert.Equal(t, "Compile", bf.Default)
		assert.Equal(t, []string{"NugetSource", "NugetApiKey", "Version"}, bf.ParameterNames())
		if diff := cmp.Diff(yamlFile.Parameters, bf.Parameters); diff != "" {
			t.Errorf("%s parameters differ:\n%s", bf.Format, diff)
		}

		reg, err := bf.Registry()
		require.NoError(t, err, bf.Format.String())
		assert.Equal(t, 16, reg.Len())
	}
}

func TestYAMLParser(t *testing.T) {
	bf := parseString(t, NewYAMLParser(), `
default: Compile
parameters:
  - name: Version
    default: 0.0.0
  - name: NugetApiKey
    secret: true
targets:
  - name: Restore
  - name: Compile
    description: Build the solution.
    depends_on: [Restore]
    timeout: 10m
    command: [dotnet, build, "--configuration=${param.Configuration}"]
    dir: src
    env:
      VERSION: ${param.Version}
  - name: NugetPush
    requires:
      - param: NugetApiKey
      - param: Configuration
        equals: Release
      - expr: build.local == false
        description: server build
      - server: true
        description: pushed from CI
    run: dotnet nuget push
`)

	assert.Equal(t, "Compile", bf.Default)
	assert.Equal(t, []params.Parameter{
		{Name: "Version", Default: "0.0.0"},
		{Name: "NugetApiKey", Secret: true},
	}, bf.Parameters)
	require.Len(t, bf.Targets, 3)

	restore := bf.Targets[0]
	assert.Equal(t, "Restore", restore.Name)
	assert.Nil(t, restore.Action, "a target without command or run only groups")
	assert.Equal(t, "test", restore.SourceFile)

	compile := bf.Targets[1]
	assert.Equal(t, "Build the solution.", compile.Description)
	assert.Equal(t, []string{"Restore"}, compile.DependsOn)
	assert.Equal(t, 10*time.Minute, compile.Timeout)
	cmd := command(t, compile)
	require.Len(t, cmd.Args, 3)
	bc := testContext()
	assert.Equal(t, "--configuration=Release", render(t, compile, cmd.Args[2], bc))
	assert.Equal(t, "src", render(t, compile, cmd.Dir, bc))
	assert.Equal(t, "1.2.3", render(t, compile, cmd.Env["VERSION"], bc))

	push := bf.Targets[2]
	require.Len(t, push.Requires, 4)
	assert.Equal(t, "server build", push.Requires[2].Description)
	assert.Equal(t, "pushed from CI", push.Requires[3].Description)
	withKey := models.NewBuildContext(models.BuildContextOptions{
		Configuration: "Release",
		Params:        map[string]string{"NugetApiKey": "k"},
	})
	for _, req := range push.Requires {
		assert.NoError(t, req.Check(withKey), req.Description)
	}
	debug := models.NewBuildContext(models.BuildContextOptions{Configuration: "Debug", IsLocalBuild: true})
	for _, req := range push.Requires {
		assert.Error(t, req.Check(debug), req.Description)
	}
	assert.False(t, command(t, push).Script.IsZero())
}

func TestYAMLParserErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"malformed", "targets: [unterminated"},
		{"bad timeout", "targets:\n  - name: A\n    timeout: soon\n"},
		{"command and run", "targets:\n  - name: A\n    command: [echo]\n    run: echo\n"},
		{"param and expr", "targets:\n  - name: A\n    requires:\n      - param: X\n        expr: 'true'\n"},
		{"server and param", "targets:\n  - name: A\n    requires:\n      - param: X\n        server: true\n"},
		{"empty requirement", "targets:\n  - name: A\n    requires:\n      - description: nothing\n"},
		{"bad expression", "targets:\n  - name: A\n    requires:\n      - expr: 'param.'\n"},
		{"bad template", "targets:\n  - name: A\n    run: 'echo ${'\n"},
		{"unnamed parameter", "parameters:\n  - default: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewYAMLParser().Parse(strings.NewReader(tt.src), "test")
			assert.Error(t, err)
		})
	}
}

func TestHCLParser(t *testing.T) {
	bf := parseString(t, NewHCLParser(), `
default = "Test"

parameter "Version" {
  default = "0.0.0"
}

target "Compile" {
  command = ["dotnet", "build", "-p:Version=${param.Version}", lower(param.Configuration)]
  env = {
    DOTNET_NOLOGO = "1"
  }
}

target "Test" {
  depends_on = ["Compile"]
  produces   = ["artifacts/test-results/*.trx"]
  timeout    = "30m"
  run        = join(" ", concat(["dotnet", "test"], [for t in build.invoked : "--no-build" if t == "Compile"]))

  require {
    param  = "Configuration"
    equals = "Release"
  }
  require {
    condition = build.local == false
  }
  require {
    server = true
  }
}
`)

	assert.Equal(t, "Test", bf.Default)
	assert.Equal(t, []params.Parameter{{Name: "Version", Default: "0.0.0"}}, bf.Parameters)
	require.Len(t, bf.Targets, 2)

	compile := bf.Targets[0]
	cmd := command(t, compile)
	require.Len(t, cmd.Args, 4)
	bc := testContext("Compile")
	assert.Equal(t, "-p:Version=1.2.3", render(t, compile, cmd.Args[2], bc))
	assert.Equal(t, "release", render(t, compile, cmd.Args[3], bc))
	assert.Equal(t, "1", render(t, compile, cmd.Env["DOTNET_NOLOGO"], bc))

	test := bf.Targets[1]
	assert.Equal(t, 30*time.Minute, test.Timeout)
	assert.Equal(t, []string{"artifacts/test-results/*.trx"}, test.Produces)
	script := command(t, test).Script
	assert.Equal(t, "dotnet test --no-build", render(t, test, script, testContext("Compile")))
	assert.Equal(t, "dotnet test", render(t, test, script, testContext("Test")))

	require.Len(t, test.Requires, 3)
	assert.Equal(t, "build.local == false", test.Requires[1].Description)
	assert.Equal(t, "server build", test.Requires[2].Description)
	for _, req := range test.Requires {
		assert.NoError(t, req.Check(bc), req.Description)
	}
	local := models.NewBuildContext(models.BuildContextOptions{Configuration: "Release", IsLocalBuild: true})
	assert.Error(t, test.Requires[2].Check(local))
}

func TestHCLParserErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `target "A" {`},
		{"missing label", `target { }`},
		{"unknown attribute", `target "A" { colour = "red" }`},
		{"command not a list", `target "A" { command = "echo" }`},
		{"command and run", `target "A" {
  command = ["echo"]
  run     = "echo"
}`},
		{"param and condition", `target "A" {
  require {
    param     = "X"
    condition = true
  }
}`},
		{"bad timeout", `target "A" { timeout = "soon" }`},
		{"server and condition", `target "A" {
  require {
    server    = true
    condition = true
  }
}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHCLParser().Parse(strings.NewReader(tt.src), "test.hcl")
			assert.Error(t, err)
		})
	}
}

func TestMarkdownParser(t *testing.T) {
	bf := parseString(t, NewMarkdownParser(), "---\n"+
		"default: Compile\n"+
		"parameters:\n"+
		"  - name: NugetApiKey\n"+
		"---\n"+
		"\n"+
		"# Build\n"+
		"\n"+
		"Intro text with **Depends on**: nothing is ignored.\n"+
		"\n"+
		"## Target: Restore\n"+
		"\n"+
		"Restore packages\n"+
		"for the solution.\n"+
		"\n"+
		"```sh\n"+
		"dotnet restore\n"+
		"```\n"+
		"\n"+
		"## Target: Compile\n"+
		"\n"+
		"- **Depends on**: Restore\n"+
		"- **Before:** Pack, Publish\n"+
		"- **Timeout**: 5m\n"+
		"- **Requires**: NugetApiKey, Configuration=Release\n"+
		"- **Condition**: `build.local == false`\n"+
		"- **Server**: true\n"+
		"\n"+
		"### Notes\n"+
		"\n"+
		"```go\n"+
		"ignored := true\n"+
		"```\n"+
		"\n"+
		"```bash\n"+
		"dotnet build\n"+
		"dotnet build --no-incremental\n"+
		"```\n"+
		"\n"+
		"## Appendix\n"+
		"\n"+
		"**Depends on**: Nothing\n")

	assert.Equal(t, "Compile", bf.Default)
	assert.Equal(t, []string{"NugetApiKey"}, bf.ParameterNames())
	require.Len(t, bf.Targets, 2)

	restore := bf.Targets[0]
	assert.Equal(t, "Restore", restore.Name)
	assert.Equal(t, "Restore packages for the solution.", restore.Description)
	assert.Equal(t, "dotnet restore", render(t, restore, command(t, restore).Script, testContext()))

	compile := bf.Targets[1]
	assert.Empty(t, compile.Description)
	assert.Equal(t, []string{"Restore"}, compile.DependsOn)
	assert.Equal(t, []string{"Pack", "Publish"}, compile.Before)
	assert.Equal(t, 5*time.Minute, compile.Timeout)
	require.Len(t, compile.Requires, 4)
	assert.Equal(t, "server build", compile.Requires[2].Description)
	assert.Equal(t, "dotnet build\ndotnet build --no-incremental", render(t, compile, command(t, compile).Script, testContext()))
}

func TestMarkdownParserErrors(t *testing.T) {
	_, err := NewMarkdownParser().Parse(strings.NewReader("---\nparameters: [\n---\n"), "BUILD.md")
	assert.Error(t, err)

	_, err = NewMarkdownParser().Parse(strings.NewReader("## Target: A\n\n**Timeout**: forever\n"), "BUILD.md")
	assert.Error(t, err)

	_, err = NewMarkdownParser().Parse(strings.NewReader("## Target: A\n\n**Server**: sometimes\n"), "BUILD.md")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	t.Run("unknown default", func(t *testing.T) {
		bf := &BuildFile{Default: "Missing", Targets: []models.Target{{Name: "A"}}}
		_, err := bf.Registry()
		var unknown *registry.UnknownTargetError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, "Missing", unknown.Name)
	})

	t.Run("duplicate target", func(t *testing.T) {
		bf := &BuildFile{Targets: []models.Target{{Name: "Compile"}, {Name: "compile"}}}
		_, err := bf.Registry()
		var dup *registry.DuplicateTargetError
		assert.True(t, errors.As(err, &dup))
	})

	t.Run("invalid glob", func(t *testing.T) {
		bf := &BuildFile{Targets: []models.Target{{Name: "A", Produces: []string{"out/[.txt"}}}}
		_, err := bf.Registry()
		assert.Error(t, err)
	})

	t.Run("declaration order", func(t *testing.T) {
		bf := &BuildFile{Targets: []models.Target{{Name: "B"}, {Name: "A"}}}
		reg, err := bf.Registry()
		require.NoError(t, err)
		assert.Equal(t, 0, reg.Index("B"))
		assert.Equal(t, 1, reg.Index("a"))
	})
}
