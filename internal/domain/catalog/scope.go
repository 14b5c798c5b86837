package catalog

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"storecount/internal/core/apperror"
)

// Scope restricts a count session to the products matching a CEL expression
// over the variable `product` (fields: sku, name, category, unitCost, active).
//
//	product.category == "beverages" && product.unitCost > 2.0
//
// A nil Scope matches every product.
type Scope struct {
	expr    string
	program cel.Program
}

var scopeEnv = mustScopeEnv()

func mustScopeEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("product", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("catalog: build CEL environment: %v", err))
	}
	return env
}

// CompileScope parses and type-checks expr. An empty expr yields a nil Scope.
func CompileScope(expr string) (*Scope, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	ast, iss := scopeEnv.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewValidation("invalid count scope").
			WithDetail("scope", expr).
			WithDetail("error", iss.Err().Error())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, apperror.NewValidation("count scope must be a boolean expression").
			WithDetail("scope", expr).
			WithDetail("type", out.String())
	}

	program, err := scopeEnv.Program(ast)
	if err != nil {
		return nil, apperror.NewValidation("invalid count scope").
			WithDetail("scope", expr).
			WithDetail("error", err.Error())
	}

	// product is a dyn map, so unknown fields and non-boolean results only
	// show up on evaluation. Reject them now rather than on every count.
	scope := &Scope{expr: expr, program: program}
	if _, evalErr := scope.eval(sampleProduct); evalErr != nil {
		return nil, evalErr
	}
	return scope, nil
}

// sampleProduct carries every field a scope may read.
var sampleProduct = map[string]any{
	"sku":      "SAMPLE",
	"name":     "Sample",
	"category": "sample",
	"unitCost": 1.0,
	"active":   true,
}

// String returns the source expression.
func (s *Scope) String() string {
	if s == nil {
		return ""
	}
	return s.expr
}

// Matches evaluates the scope for p.
func (s *Scope) Matches(p StoreProduct) (bool, error) {
	if s == nil {
		return true, nil
	}
	cost, _ := p.UnitCost.Float64()
	matched, err := s.eval(map[string]any{
		"sku":      p.SKU,
		"name":     p.Name,
		"category": p.Category,
		"unitCost": cost,
		"active":   p.Active,
	})
	if err != nil {
		return false, err.WithDetail("product_id", p.ID.String())
	}
	return matched, nil
}

func (s *Scope) eval(product map[string]any) (bool, *apperror.AppError) {
	out, _, err := s.program.Eval(map[string]any{"product": product})
	if err != nil {
		return false, apperror.NewValidation("count scope failed to evaluate").
			WithDetail("scope", s.expr).
			WithDetail("error", err.Error())
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, apperror.NewValidation("count scope did not evaluate to a boolean").
			WithDetail("scope", s.expr).
			WithDetail("type", out.Type().TypeName())
	}
	return matched, nil
}

// Filter returns the products matching the scope, preserving order.
func (s *Scope) Filter(products []StoreProduct) ([]StoreProduct, error) {
	if s == nil {
		return products, nil
	}
	out := make([]StoreProduct, 0, len(products))
	for _, p := range products {
		ok, err := s.Matches(p)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}
