// Package action turns build-file declarations into executable target bodies.
//
// Command lines, working directories, environment values and expression
// requirements are HCL expressions evaluated against the invocation's
// BuildContext with these variables in scope:
//
//	param.<Name>        resolved parameter value (null when unset)
//	target.name         name of the running target
//	build.configuration build.root  build.artifacts  build.local  build.invoked  build.id
package action

import (
	"strings"

	"github.com/harrison/buildgraph/internal/models"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Scope knows which parameters a build file declares so that an unset
// declared parameter evaluates to null instead of an unknown attribute.
type Scope struct {
	declared []string
}

// NewScope creates a Scope for the given declared parameter names.
func NewScope(declared ...string) *Scope {
	return &Scope{declared: append([]string(nil), declared...)}
}

var functions = map[string]function.Function{
	"upper":     stdlib.UpperFunc,
	"lower":     stdlib.LowerFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"join":      stdlib.JoinFunc,
	"split":     stdlib.SplitFunc,
	"format":    stdlib.FormatFunc,
	"coalesce":  stdlib.CoalesceFunc,
	"concat":    stdlib.ConcatFunc,
}

// EvalContext builds the HCL evaluation context for target under bc.
func (s *Scope) EvalContext(bc *models.BuildContext, target string) *hcl.EvalContext {
	params := make(map[string]cty.Value)
	if s != nil {
		for _, name := range s.declared {
			params[name] = cty.NullVal(cty.String)
		}
	}
	for name, value := range bc.Params() {
		params[s.canonical(name)] = cty.StringVal(value)
	}

	invoked := cty.ListValEmpty(cty.String)
	if names := bc.InvokedTargets(); len(names) > 0 {
		vals := make([]cty.Value, len(names))
		for i, n := range names {
			vals[i] = cty.StringVal(n)
		}
		invoked = cty.ListVal(vals)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"param": cty.ObjectVal(params),
			"target": cty.ObjectVal(map[string]cty.Value{
				"name": cty.StringVal(target),
			}),
			"build": cty.ObjectVal(map[string]cty.Value{
				"id":            cty.StringVal(bc.InvocationID()),
				"configuration": cty.StringVal(bc.Configuration()),
				"root":          cty.StringVal(bc.RootDir()),
				"artifacts":     cty.StringVal(bc.ArtifactsDir()),
				"local":         cty.BoolVal(bc.IsLocalBuild()),
				"invoked":       invoked,
			}),
		},
		Functions: functions,
	}
}

// canonical maps a parameter name onto the spelling it was declared with.
func (s *Scope) canonical(name string) string {
	if s == nil {
		return name
	}
	for _, d := range s.declared {
		if strings.EqualFold(d, name) {
			return d
		}
	}
	return name
}
