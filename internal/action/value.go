package action

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Value is a string-valued HCL expression evaluated when the target runs.
type Value struct {
	expr hcl.Expression
}

// Template parses src as an HCL template ("dotnet build -c ${param.Configuration}").
func Template(src, filename string) (Value, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), filename, hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return Value{}, fmt.Errorf("parse template %q: %w", src, diags)
	}
	return Value{expr: expr}, nil
}

// MustTemplate is like Template but panics on a parse error.
func MustTemplate(src string) Value {
	v, err := Template(src, "<inline>")
	if err != nil {
		panic(err)
	}
	return v
}

// FromExpression wraps an expression decoded from an HCL build file.
func FromExpression(expr hcl.Expression) Value {
	return Value{expr: expr}
}

// IsZero reports whether v holds no expression.
func (v Value) IsZero() bool {
	return v.expr == nil
}

// Render evaluates v to a string.
func (v Value) Render(ctx *hcl.EvalContext) (string, error) {
	if v.expr == nil {
		return "", nil
	}
	val, diags := v.expr.Value(ctx)
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() {
		return "", fmt.Errorf("%s: value is null", v.expr.Range())
	}
	if !val.IsWhollyKnown() {
		return "", fmt.Errorf("%s: value is unknown", v.expr.Range())
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("%s: %w", v.expr.Range(), err)
	}
	return str.AsString(), nil
}
