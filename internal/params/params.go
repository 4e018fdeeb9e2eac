// Package params resolves build parameters and assembles the immutable
// per-invocation BuildContext handed to actions and requirement checks.
//
// A parameter value is looked up in this order, first hit wins:
//
//	--param / --configuration flags
//	environment (exact name, upper-case name, BUILDGRAPH_<NAME>)
//	config file "parameters:" section
//	build-file default
package params

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/harrison/buildgraph/internal/models"
	"github.com/mattn/go-isatty"
)

// EnvPrefix is prepended to the upper-cased parameter name for the last environment lookup.
const EnvPrefix = "BUILDGRAPH_"

// Configuration defaults.
const (
	ConfigurationDebug   = "Debug"
	ConfigurationRelease = "Release"
)

// ciVariables mark a server (non-interactive) build when any of them is set.
var ciVariables = []string{"CI", "GITLAB_CI", "GITHUB_ACTIONS", "TF_BUILD", "JENKINS_URL"}

// Parameter is a parameter declared by a build file.
type Parameter struct {
	Name        string
	Description string
	Default     string // empty means no default
	Secret      bool   // value is masked in listings
}

// Source identifies where a resolved value came from.
type Source int

const (
	SourceNone Source = iota
	SourceFlag
	SourceEnv
	SourceConfig
	SourceDefault
	SourceBuiltin
)

func (s Source) String() string {
	switch s {
	case SourceFlag:
		return "flag"
	case SourceEnv:
		return "env"
	case SourceConfig:
		return "config"
	case SourceDefault:
		return "default"
	case SourceBuiltin:
		return "builtin"
	default:
		return "unset"
	}
}

// Options configures a Provider.
type Options struct {
	Flags       map[string]string // --param values, plus Configuration from --configuration
	Config      map[string]string // config file parameters section
	Declared    []Parameter       // build-file declarations
	Interactive bool              // selects the Debug configuration default
	LookupEnv   func(string) (string, bool)
}

// Provider resolves parameter values. It is read-only after construction.
type Provider struct {
	flags       map[string]string
	config      map[string]string
	declared    []Parameter
	defaults    map[string]string
	extra       []string // names supplied by flags or config, as written
	interactive bool
	lookupEnv   func(string) (string, bool)
}

// NewProvider creates a Provider from opts. Environment lookups default to os.LookupEnv.
func NewProvider(opts Options) *Provider {
	p := &Provider{
		flags:       lowerKeys(opts.Flags),
		config:      lowerKeys(opts.Config),
		declared:    append([]Parameter(nil), opts.Declared...),
		defaults:    make(map[string]string),
		interactive: opts.Interactive,
		lookupEnv:   opts.LookupEnv,
	}
	if p.lookupEnv == nil {
		p.lookupEnv = os.LookupEnv
	}
	for _, d := range opts.Declared {
		if d.Default != "" {
			p.defaults[strings.ToLower(d.Name)] = d.Default
		}
	}
	for k := range opts.Flags {
		p.extra = append(p.extra, k)
	}
	for k := range opts.Config {
		p.extra = append(p.extra, k)
	}
	sort.Strings(p.extra)
	return p
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Resolve returns the value of name; false means the parameter is not set.
func (p *Provider) Resolve(name string) (string, bool) {
	v, src := p.Lookup(name)
	return v, src != SourceNone
}

// Lookup resolves name and reports which source supplied it.
func (p *Provider) Lookup(name string) (string, Source) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", SourceNone
	}
	if v, ok := p.flags[key]; ok {
		return v, SourceFlag
	}
	for _, envName := range envNames(name) {
		if v, ok := p.lookupEnv(envName); ok && v != "" {
			return v, SourceEnv
		}
	}
	if v, ok := p.config[key]; ok {
		return v, SourceConfig
	}
	if v, ok := p.defaults[key]; ok {
		return v, SourceDefault
	}
	if key == strings.ToLower(models.ConfigurationParam) {
		return DefaultConfiguration(p.interactive), SourceBuiltin
	}
	return "", SourceNone
}

func envNames(name string) []string {
	name = strings.TrimSpace(name)
	upper := strings.ToUpper(name)
	prefixed := EnvPrefix + strings.Map(func(r rune) rune {
		if r == '-' || r == '.' || r == ' ' {
			return '_'
		}
		return r
	}, upper)
	names := []string{name}
	if upper != name {
		names = append(names, upper)
	}
	return append(names, prefixed)
}

// Declared returns the build-file parameter declarations in declaration order.
func (p *Provider) Declared() []Parameter {
	return append([]Parameter(nil), p.declared...)
}

// Names returns every parameter the provider knows of: Configuration, the
// declared ones, then extra names supplied by flags or config, sorted.
func (p *Provider) Names() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if !seen[strings.ToLower(n)] {
			seen[strings.ToLower(n)] = true
			names = append(names, n)
		}
	}
	add(models.ConfigurationParam)
	for _, d := range p.declared {
		add(d.Name)
	}
	for _, k := range p.extra {
		add(k)
	}
	return names
}

// BuildOptions carries the invocation facts that are not parameters.
type BuildOptions struct {
	RootDir      string
	ArtifactsDir string
	Invoked      []string
	InvocationID string // generated when empty
}

// BuildContext resolves every known parameter once and freezes the result.
func (p *Provider) BuildContext(opts BuildOptions) *models.BuildContext {
	id := opts.InvocationID
	if id == "" {
		id = uuid.NewString()
	}
	values := make(map[string]string)
	for _, name := range p.Names() {
		if v, ok := p.Resolve(name); ok {
			values[name] = v
		}
	}
	configuration, _ := p.Resolve(models.ConfigurationParam)
	return models.NewBuildContext(models.BuildContextOptions{
		InvocationID:   id,
		Configuration:  configuration,
		IsLocalBuild:   p.interactive,
		RootDir:        opts.RootDir,
		ArtifactsDir:   opts.ArtifactsDir,
		InvokedTargets: opts.Invoked,
		Params:         values,
	})
}

// DefaultConfiguration is Debug for an interactive local run and Release otherwise.
func DefaultConfiguration(interactive bool) string {
	if interactive {
		return ConfigurationDebug
	}
	return ConfigurationRelease
}

// IsInteractive reports whether f is a terminal and no CI variable is set.
func IsInteractive(f *os.File, lookupEnv func(string) (string, bool)) bool {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	for _, v := range ciVariables {
		if val, ok := lookupEnv(v); ok && val != "" {
			return false
		}
	}
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ParseAssignments parses repeated "name=value" flag values.
func ParseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", pair)
		}
		out[name] = value
	}
	return out, nil
}
