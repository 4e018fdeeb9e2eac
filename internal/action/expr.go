package action

import (
	"fmt"

	"github.com/harrison/buildgraph/internal/models"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ParseExpr parses src as an HCL expression, e.g. `param.NugetApiKey != null`.
func ParseExpr(src, filename string) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), filename, hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse expression %q: %w", src, diags)
	}
	return expr, nil
}

// ExprRequirement turns a boolean expression into a requirement. description
// defaults to the expression source.
func ExprRequirement(expr hcl.Expression, description string, scope *Scope) models.Requirement {
	return models.Requirement{
		Description: description,
		Check: func(bc *models.BuildContext) error {
			val, diags := expr.Value(scope.EvalContext(bc, ""))
			if diags.HasErrors() {
				return diags
			}
			if val.IsNull() || !val.IsWhollyKnown() {
				return fmt.Errorf("%s did not evaluate to a boolean", description)
			}
			b, err := convert.Convert(val, cty.Bool)
			if err != nil {
				return fmt.Errorf("%s: %w", description, err)
			}
			if b.False() {
				return fmt.Errorf("%s is false", description)
			}
			return nil
		},
	}
}

// Requirement parses src and wraps it with ExprRequirement.
func Requirement(src, filename string, scope *Scope) (models.Requirement, error) {
	expr, err := ParseExpr(src, filename)
	if err != nil {
		return models.Requirement{}, err
	}
	return ExprRequirement(expr, src, scope), nil
}
