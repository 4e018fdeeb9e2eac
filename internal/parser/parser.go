// Package parser loads build definitions from YAML, HCL and Markdown files
// into a format-independent BuildFile that can populate a target registry.
package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/buildgraph/internal/action"
	"github.com/harrison/buildgraph/internal/artifact"
	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/params"
	"github.com/harrison/buildgraph/internal/registry"
)

// Format represents the format of a build file
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatMarkdown represents a Markdown (.md, .markdown) build file
	FormatMarkdown
	// FormatYAML represents a YAML (.yaml, .yml) build file
	FormatYAML
	// FormatHCL represents an HCL (.hcl) build file
	FormatHCL
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	case FormatYAML:
		return "yaml"
	case FormatHCL:
		return "hcl"
	default:
		return "unknown"
	}
}

// BuildFile is a decoded build definition.
type BuildFile struct {
	Path       string
	Format     Format
	Default    string             // target run when none is requested
	Parameters []params.Parameter // declared parameters, in declaration order
	Targets    []models.Target    // targets, in declaration order
}

// ParameterNames returns the declared parameter names.
func (bf *BuildFile) ParameterNames() []string {
	names := make([]string, len(bf.Parameters))
	for i, p := range bf.Parameters {
		names[i] = p.Name
	}
	return names
}

// Registry registers every target of the build file in declaration order.
// Artifact patterns are validated here so a malformed glob is reported
// before anything runs.
func (bf *BuildFile) Registry() (*registry.Registry, error) {
	reg := registry.New()
	for _, t := range bf.Targets {
		if err := artifact.Validate(t.Produces); err != nil {
			return nil, fmt.Errorf("target %s: produces: %w", t.Name, err)
		}
		if err := artifact.Validate(t.Consumes); err != nil {
			return nil, fmt.Errorf("target %s: consumes: %w", t.Name, err)
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	if bf.Default != "" && !reg.Has(bf.Default) {
		return nil, &registry.UnknownTargetError{Name: bf.Default, Referrer: "<default>", Relation: "default"}
	}
	return reg, nil
}

// Parser is the interface that all build file parsers must implement
type Parser interface {
	// Parse reads a build file; filename is used in diagnostics and as SourceFile.
	Parse(r io.Reader, filename string) (*BuildFile, error)
}

// DetectFormat automatically detects the build file format based on file extension
// Supported extensions:
//   - .md, .markdown -> FormatMarkdown
//   - .yaml, .yml -> FormatYAML
//   - .hcl -> FormatHCL
//   - all others -> FormatUnknown
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".yaml", ".yml":
		return FormatYAML
	case ".hcl":
		return FormatHCL
	default:
		return FormatUnknown
	}
}

// NewParser creates a new parser instance for the specified format
// Returns an error if the format is unknown or unsupported
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownParser(), nil
	case FormatYAML:
		return NewYAMLParser(), nil
	case FormatHCL:
		return NewHCLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// ParseFile detects the format of path, parses it and records the absolute path.
func ParseFile(path string) (*BuildFile, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .yaml, .yml, .hcl, .md, .markdown)", path)
	}

	parser, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open build file: %w", err)
	}
	defer file.Close()

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	bf, err := parser.Parse(file, absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	bf.Path = absPath
	bf.Format = format
	return bf, nil
}

// targetError locates a problem inside one target declaration.
func targetError(name string, err error) error {
	return fmt.Errorf("target %s: %w", name, err)
}

func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must be >= 0", s)
	}
	return d, nil
}

// describe overrides the description of req when one is given.
func describe(req models.Requirement, description string) models.Requirement {
	if description != "" {
		req.Description = description
	}
	return req
}

// paramRequirement builds the requirement for a "param" entry: the parameter
// must be set, or equal value when hasValue.
func paramRequirement(name, value string, hasValue bool) (models.Requirement, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Requirement{}, errors.New("requirement names no parameter")
	}
	if hasValue {
		return params.Equals(name, value), nil
	}
	return params.IsSet(name), nil
}

// commandFromStrings builds a command from template sources. args and script are
// mutually exclusive; both empty means the target has no action.
func commandFromStrings(args []string, script, dir string, env map[string]string, scope *action.Scope, filename string) (*action.Command, error) {
	if len(args) == 0 && strings.TrimSpace(script) == "" {
		return nil, nil
	}
	cmd := &action.Command{Scope: scope}
	var err error
	for _, a := range args {
		v, err := action.Template(a, filename)
		if err != nil {
			return nil, err
		}
		cmd.Args = append(cmd.Args, v)
	}
	if strings.TrimSpace(script) != "" {
		if cmd.Script, err = action.Template(script, filename); err != nil {
			return nil, err
		}
	}
	if dir != "" {
		if cmd.Dir, err = action.Template(dir, filename); err != nil {
			return nil, err
		}
	}
	if len(env) > 0 {
		cmd.Env = make(map[string]action.Value, len(env))
		for k, src := range env {
			v, err := action.Template(src, filename)
			if err != nil {
				return nil, err
			}
			cmd.Env[k] = v
		}
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// splitList splits a comma separated list, trimming blanks and backticks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(strings.TrimSpace(part), "`")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
