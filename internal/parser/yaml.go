package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/harrison/buildgraph/internal/action"
	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/params"
	"github.com/harrison/buildgraph/internal/registry"
	"gopkg.in/yaml.v3"
)

// YAMLParser parses build.yaml files.
type YAMLParser struct{}

// NewYAMLParser creates a YAMLParser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

type yamlBuildFile struct {
	Default    string          `yaml:"default"`
	Parameters []yamlParameter `yaml:"parameters"`
	Targets    []yamlTarget    `yaml:"targets"`
}

type yamlParameter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     string `yaml:"default"`
	Secret      bool   `yaml:"secret"`
}

type yamlTarget struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	DependsOn   []string          `yaml:"depends_on"`
	Before      []string          `yaml:"before"`
	After       []string          `yaml:"after"`
	TriggeredBy []string          `yaml:"triggered_by"`
	Triggers    []string          `yaml:"triggers"`
	Consumes    []string          `yaml:"consumes"`
	Produces    []string          `yaml:"produces"`
	Requires    []yamlRequirement `yaml:"requires"`
	Command     []string          `yaml:"command"`
	Run         string            `yaml:"run"`
	Dir         string            `yaml:"dir"`
	Env         map[string]string `yaml:"env"`
	Timeout     string            `yaml:"timeout"`
}

type yamlRequirement struct {
	Param       string  `yaml:"param"`
	Equals      *string `yaml:"equals"`
	Expr        string  `yaml:"expr"`
	Server      bool    `yaml:"server"`
	Description string  `yaml:"description"`
}

// Parse decodes a YAML build file.
func (p *YAMLParser) Parse(r io.Reader, filename string) (*BuildFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var doc yamlBuildFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	bf := &BuildFile{Path: filename, Format: FormatYAML, Default: doc.Default}
	for _, yp := range doc.Parameters {
		if yp.Name == "" {
			return nil, errors.New("parameter without a name")
		}
		bf.Parameters = append(bf.Parameters, params.Parameter(yp))
	}
	scope := action.NewScope(bf.ParameterNames()...)

	for _, yt := range doc.Targets {
		t, err := yt.target(scope, filename)
		if err != nil {
			return nil, targetError(yt.Name, err)
		}
		bf.Targets = append(bf.Targets, t)
	}
	return bf, nil
}

func (yt yamlTarget) target(scope *action.Scope, filename string) (models.Target, error) {
	timeout, err := parseTimeout(yt.Timeout)
	if err != nil {
		return models.Target{}, err
	}

	opts := []registry.Option{
		registry.Description(yt.Description),
		registry.DependsOn(yt.DependsOn...),
		registry.Before(yt.Before...),
		registry.After(yt.After...),
		registry.TriggeredBy(yt.TriggeredBy...),
		registry.Triggers(yt.Triggers...),
		registry.Consumes(yt.Consumes...),
		registry.Produces(yt.Produces...),
		registry.WithTimeout(timeout),
		registry.DeclaredIn(filename),
	}

	for i, yr := range yt.Requires {
		req, err := yr.requirement(scope, filename)
		if err != nil {
			return models.Target{}, fmt.Errorf("requires[%d]: %w", i, err)
		}
		opts = append(opts, registry.Requires(req))
	}

	cmd, err := commandFromStrings(yt.Command, yt.Run, yt.Dir, yt.Env, scope, filename)
	if err != nil {
		return models.Target{}, err
	}
	if cmd != nil {
		opts = append(opts, registry.Executes(cmd))
	}

	return registry.Define(yt.Name, opts...), nil
}

func (yr yamlRequirement) requirement(scope *action.Scope, filename string) (models.Requirement, error) {
	switch {
	case yr.Expr != "" && yr.Param != "":
		return models.Requirement{}, errors.New("requirement sets both param and expr")
	case yr.Server && (yr.Expr != "" || yr.Param != ""):
		return models.Requirement{}, errors.New("server requirement takes no param or expr")
	case yr.Server:
		return describe(params.ServerBuild(), yr.Description), nil
	case yr.Expr != "":
		req, err := action.Requirement(yr.Expr, filename, scope)
		if err != nil {
			return models.Requirement{}, err
		}
		if yr.Description != "" {
			req.Description = yr.Description
		}
		return req, nil
	default:
		value := ""
		if yr.Equals != nil {
			value = *yr.Equals
		}
		req, err := paramRequirement(yr.Param, value, yr.Equals != nil)
		if err != nil {
			return models.Requirement{}, err
		}
		if yr.Description != "" {
			req.Description = yr.Description
		}
		return req, nil
	}
}
