package parser

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/harrison/buildgraph/internal/action"
	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/params"
	"github.com/harrison/buildgraph/internal/registry"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// HCLParser parses build.hcl files.
type HCLParser struct{}

// NewHCLParser creates an HCLParser.
func NewHCLParser() *HCLParser {
	return &HCLParser{}
}

// hclRoot decodes every top-level item of a build file.
type hclRoot struct {
	Default    string          `hcl:"default,optional"`
	Parameters []*hclParameter `hcl:"parameter,block"`
	Targets    []*hclTarget    `hcl:"target,block"`
}

type hclParameter struct {
	Name        string  `hcl:"name,label"`
	Description string  `hcl:"description,optional"`
	Default     *string `hcl:"default,optional"`
	Secret      bool    `hcl:"secret,optional"`
}

type hclTarget struct {
	Name        string            `hcl:"name,label"`
	Description string            `hcl:"description,optional"`
	DependsOn   []string          `hcl:"depends_on,optional"`
	Before      []string          `hcl:"before,optional"`
	After       []string          `hcl:"after,optional"`
	TriggeredBy []string          `hcl:"triggered_by,optional"`
	Triggers    []string          `hcl:"triggers,optional"`
	Consumes    []string          `hcl:"consumes,optional"`
	Produces    []string          `hcl:"produces,optional"`
	Timeout     string            `hcl:"timeout,optional"`
	Command     *hcl.Attribute    `hcl:"command,optional"`
	Run         *hcl.Attribute    `hcl:"run,optional"`
	Dir         *hcl.Attribute    `hcl:"dir,optional"`
	Env         *hcl.Attribute    `hcl:"env,optional"`
	Requires    []*hclRequirement `hcl:"require,block"`
}

type hclRequirement struct {
	Description string         `hcl:"description,optional"`
	Param       string         `hcl:"param,optional"`
	Equals      *string        `hcl:"equals,optional"`
	Condition   hcl.Expression `hcl:"condition,optional"`
	Server      bool           `hcl:"server,optional"`
}

// Parse decodes an HCL build file. Attribute values of command, run, dir and
// env stay expressions and are evaluated when the target runs.
func (p *HCLParser) Parse(r io.Reader, filename string) (*BuildFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, diags
	}

	bf := &BuildFile{Path: filename, Format: FormatHCL, Default: root.Default}
	for _, hp := range root.Parameters {
		param := params.Parameter{Name: hp.Name, Description: hp.Description, Secret: hp.Secret}
		if hp.Default != nil {
			param.Default = *hp.Default
		}
		bf.Parameters = append(bf.Parameters, param)
	}
	scope := action.NewScope(bf.ParameterNames()...)

	for _, ht := range root.Targets {
		t, err := ht.target(scope, filename, data)
		if err != nil {
			return nil, targetError(ht.Name, err)
		}
		bf.Targets = append(bf.Targets, t)
	}
	return bf, nil
}

func (ht *hclTarget) target(scope *action.Scope, filename string, src []byte) (models.Target, error) {
	timeout, err := parseTimeout(ht.Timeout)
	if err != nil {
		return models.Target{}, err
	}

	opts := []registry.Option{
		registry.Description(ht.Description),
		registry.DependsOn(ht.DependsOn...),
		registry.Before(ht.Before...),
		registry.After(ht.After...),
		registry.TriggeredBy(ht.TriggeredBy...),
		registry.Triggers(ht.Triggers...),
		registry.Consumes(ht.Consumes...),
		registry.Produces(ht.Produces...),
		registry.WithTimeout(timeout),
		registry.DeclaredIn(filename),
	}

	for i, hr := range ht.Requires {
		req, err := hr.requirement(scope, src)
		if err != nil {
			return models.Target{}, fmt.Errorf("require[%d]: %w", i, err)
		}
		opts = append(opts, registry.Requires(req))
	}

	cmd, err := ht.command(scope)
	if err != nil {
		return models.Target{}, err
	}
	if cmd != nil {
		opts = append(opts, registry.Executes(cmd))
	}

	return registry.Define(ht.Name, opts...), nil
}

func (ht *hclTarget) command(scope *action.Scope) (*action.Command, error) {
	if ht.Command == nil && ht.Run == nil {
		return nil, nil
	}
	cmd := &action.Command{Scope: scope}

	if ht.Command != nil {
		elems, diags := hcl.ExprList(ht.Command.Expr)
		if diags.HasErrors() {
			return nil, diags
		}
		for _, e := range elems {
			cmd.Args = append(cmd.Args, action.FromExpression(e))
		}
	}
	if ht.Run != nil {
		cmd.Script = action.FromExpression(ht.Run.Expr)
	}
	if ht.Dir != nil {
		cmd.Dir = action.FromExpression(ht.Dir.Expr)
	}
	if ht.Env != nil {
		pairs, diags := hcl.ExprMap(ht.Env.Expr)
		if diags.HasErrors() {
			return nil, diags
		}
		cmd.Env = make(map[string]action.Value, len(pairs))
		for _, kv := range pairs {
			key, diags := kv.Key.Value(nil)
			if diags.HasErrors() {
				return nil, diags
			}
			if key.IsNull() || !key.Type().Equals(cty.String) {
				return nil, fmt.Errorf("%s: env keys must be strings", kv.Key.Range())
			}
			cmd.Env[key.AsString()] = action.FromExpression(kv.Value)
		}
	}

	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (hr *hclRequirement) requirement(scope *action.Scope, src []byte) (models.Requirement, error) {
	hasCondition := hr.Condition != nil && !isNullExpr(hr.Condition)
	switch {
	case hasCondition && hr.Param != "":
		return models.Requirement{}, errors.New("require sets both param and condition")
	case hr.Server && (hasCondition || hr.Param != ""):
		return models.Requirement{}, errors.New("server requirement takes no param or condition")
	case hr.Server:
		return describe(params.ServerBuild(), hr.Description), nil
	case hasCondition:
		description := hr.Description
		if description == "" {
			description = exprSource(hr.Condition, src)
		}
		return action.ExprRequirement(hr.Condition, description, scope), nil
	default:
		value := ""
		if hr.Equals != nil {
			value = *hr.Equals
		}
		req, err := paramRequirement(hr.Param, value, hr.Equals != nil)
		if err != nil {
			return models.Requirement{}, err
		}
		if hr.Description != "" {
			req.Description = hr.Description
		}
		return req, nil
	}
}

// isNullExpr reports the placeholder gohcl assigns to an absent optional expression.
func isNullExpr(expr hcl.Expression) bool {
	if len(expr.Variables()) > 0 {
		return false
	}
	v, diags := expr.Value(nil)
	return !diags.HasErrors() && v.IsNull()
}

// exprSource returns the source text of expr.
func exprSource(expr hcl.Expression, src []byte) string {
	rng := expr.Range()
	if text := strings.TrimSpace(string(rng.SliceBytes(src))); text != "" {
		return text
	}
	return fmt.Sprintf("condition at %s:%d", rng.Filename, rng.Start.Line)
}
