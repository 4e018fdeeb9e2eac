package models

import (
	"io"
	"sort"
	"strings"
)

// ConfigurationParam is the name of the parameter selecting the build configuration.
const ConfigurationParam = "Configuration"

// BuildContextOptions holds the values a BuildContext is constructed from.
type BuildContextOptions struct {
	InvocationID   string
	Configuration  string
	IsLocalBuild   bool
	RootDir        string
	ArtifactsDir   string
	InvokedTargets []string
	Params         map[string]string // resolved parameter values; unset parameters are absent
}

// BuildContext is the immutable per-invocation context handed to every action
// and requirement predicate. It is constructed once and only exposes copies.
type BuildContext struct {
	invocationID  string
	configuration string
	local         bool
	rootDir       string
	artifactsDir  string
	invoked       []string
	params        map[string]string // lower-cased name -> value
	paramNames    map[string]string // lower-cased name -> declared name
}

// NewBuildContext creates a BuildContext from opts.
func NewBuildContext(opts BuildContextOptions) *BuildContext {
	bc := &BuildContext{
		invocationID:  opts.InvocationID,
		configuration: opts.Configuration,
		local:         opts.IsLocalBuild,
		rootDir:       opts.RootDir,
		artifactsDir:  opts.ArtifactsDir,
		invoked:       append([]string(nil), opts.InvokedTargets...),
		params:        make(map[string]string, len(opts.Params)+1),
		paramNames:    make(map[string]string, len(opts.Params)+1),
	}
	for name, value := range opts.Params {
		bc.params[strings.ToLower(name)] = value
		bc.paramNames[strings.ToLower(name)] = name
	}
	if opts.Configuration != "" {
		key := strings.ToLower(ConfigurationParam)
		bc.params[key] = opts.Configuration
		bc.paramNames[key] = ConfigurationParam
	}
	return bc
}

func (bc *BuildContext) InvocationID() string  { return bc.invocationID }
func (bc *BuildContext) Configuration() string { return bc.configuration }
func (bc *BuildContext) IsLocalBuild() bool    { return bc.local }
func (bc *BuildContext) IsServerBuild() bool   { return !bc.local }
func (bc *BuildContext) RootDir() string       { return bc.rootDir }
func (bc *BuildContext) ArtifactsDir() string  { return bc.artifactsDir }

// InvokedTargets returns the entry targets of this invocation.
func (bc *BuildContext) InvokedTargets() []string {
	return append([]string(nil), bc.invoked...)
}

// InvokedTarget reports whether name was explicitly requested.
func (bc *BuildContext) InvokedTarget(name string) bool {
	for _, t := range bc.invoked {
		if SameName(t, name) {
			return true
		}
	}
	return false
}

// Param resolves a parameter by name (case-insensitive). The boolean is false when the
// parameter is not set.
func (bc *BuildContext) Param(name string) (string, bool) {
	v, ok := bc.params[strings.ToLower(name)]
	return v, ok
}

// Params returns a copy of every set parameter keyed by declared name.
func (bc *BuildContext) Params() map[string]string {
	out := make(map[string]string, len(bc.params))
	for key, v := range bc.params {
		out[bc.paramNames[key]] = v
	}
	return out
}

// ParamNames returns the declared names of every set parameter, sorted.
func (bc *BuildContext) ParamNames() []string {
	names := make([]string, 0, len(bc.paramNames))
	for _, n := range bc.paramNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invocation is what an action receives when the executor runs it.
type Invocation struct {
	Target string        // Declared name of the running target
	Build  *BuildContext // Shared, read-only invocation context
	Stdout io.Writer     // Where the action should write regular output
	Stderr io.Writer     // Where the action should write diagnostics
}
