// Package query turns the list endpoint's `filter` and `sort` parameters into
// SQL fragments.
//
// Both parameters follow Google's API improvement proposals:
//   - filter: AIP-160, e.g.  category = "TECHNOLOGY" AND created_date > timestamp("2024-01-01T00:00:00Z")
//   - sort:   AIP-132 order_by, e.g.  "created_date desc, title"
//
// Parsing and type-checking are done by go.einride.tech/aip; this package only
// walks the checked expression tree and emits a parameterised WHERE clause.
// Field names are mapped through a fixed whitelist, so user input never
// reaches the SQL text except as a bound parameter.
package query

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Field describes one filterable/sortable attribute.
type Field struct {
	// Name is the identifier clients use in filter and sort strings.
	Name string
	// Column is the SQL expression the name maps to.
	Column string
	// Type is the AIP-160 type used for type-checking filter expressions.
	Type *expr.Type
}

// Schema is the set of fields a listing exposes.
type Schema struct {
	fields map[string]Field
	order  []string
}

// NewSchema builds a schema from fields. Field order is kept for error messages.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		s.fields[f.Name] = f
		s.order = append(s.order, f.Name)
	}
	return s
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// allowed lists the field names for error messages.
func (s *Schema) allowed() string {
	return strings.Join(s.Names(), ", ")
}

func (s *Schema) declarations() (*filtering.Declarations, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	for _, name := range s.order {
		opts = append(opts, filtering.DeclareIdent(name, s.fields[name].Type))
	}
	return filtering.NewDeclarations(opts...)
}

// Condition is a SQL WHERE clause fragment with positional parameters.
type Condition struct {
	Clause string
	Params []any
}

// Empty reports whether the condition filters nothing.
func (c Condition) Empty() bool {
	return c.Clause == ""
}

// ParseFilter parses an AIP-160 filter and returns the matching SQL condition.
// An empty or blank filter yields an empty condition.
func (s *Schema) ParseFilter(filter string) (Condition, error) {
	if strings.TrimSpace(filter) == "" {
		return Condition{}, nil
	}

	decls, err := s.declarations()
	if err != nil {
		return Condition{}, fmt.Errorf("create declarations: %w", err)
	}

	parsed, err := filtering.ParseFilterString(filter, decls)
	if err != nil {
		return Condition{}, fmt.Errorf("parse filter: %w (fields: %s)", err, s.allowed())
	}
	if parsed.CheckedExpr == nil {
		return Condition{}, nil
	}

	return s.translateExpr(parsed.CheckedExpr.GetExpr())
}

func (s *Schema) translateExpr(e *expr.Expr) (Condition, error) {
	if e == nil {
		return Condition{}, nil
	}

	switch kind := e.GetExprKind().(type) {
	case *expr.Expr_CallExpr:
		return s.translateCall(kind.CallExpr)
	default:
		return Condition{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func (s *Schema) translateCall(call *expr.Expr_Call) (Condition, error) {
	switch call.GetFunction() {
	case "AND", "_&&_":
		return s.translateJunction(call.GetArgs(), "AND")
	case "OR", "_||_":
		return s.translateJunction(call.GetArgs(), "OR")
	case "NOT", "-":
		return s.translateNot(call.GetArgs())
	case "=", "_==_":
		return s.translateComparison(call.GetArgs(), "=")
	case "!=", "_!=_":
		return s.translateComparison(call.GetArgs(), "!=")
	case "<", "_<_":
		return s.translateComparison(call.GetArgs(), "<")
	case "<=", "_<=_":
		return s.translateComparison(call.GetArgs(), "<=")
	case ">", "_>_":
		return s.translateComparison(call.GetArgs(), ">")
	case ">=", "_>=_":
		return s.translateComparison(call.GetArgs(), ">=")
	default:
		return Condition{}, fmt.Errorf("unsupported function: %s", call.GetFunction())
	}
}

func (s *Schema) translateJunction(args []*expr.Expr, op string) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, fmt.Errorf("%s requires 2 arguments", op)
	}

	left, err := s.translateExpr(args[0])
	if err != nil {
		return Condition{}, err
	}
	right, err := s.translateExpr(args[1])
	if err != nil {
		return Condition{}, err
	}

	return Condition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, op, right.Clause),
		Params: append(left.Params, right.Params...),
	}, nil
}

func (s *Schema) translateNot(args []*expr.Expr) (Condition, error) {
	if len(args) != 1 {
		return Condition{}, fmt.Errorf("NOT requires 1 argument")
	}
	inner, err := s.translateExpr(args[0])
	if err != nil {
		return Condition{}, err
	}
	return Condition{
		Clause: fmt.Sprintf("NOT %s", wrap(inner.Clause)),
		Params: inner.Params,
	}, nil
}

// translateComparison handles `field OP value`.
//
// A string equality containing `*` becomes a LIKE with `*` as the wildcard:
// title = "Mobile*" matches every title starting with "Mobile".
func (s *Schema) translateComparison(args []*expr.Expr, op string) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, fmt.Errorf("comparison requires 2 arguments")
	}

	name, err := extractFieldName(args[0])
	if err != nil {
		return Condition{}, err
	}
	field, ok := s.fields[name]
	if !ok {
		return Condition{}, fmt.Errorf("unknown field %q (fields: %s)", name, s.allowed())
	}

	value, err := extractValue(args[1])
	if err != nil {
		return Condition{}, err
	}

	if str, ok := value.(string); ok && strings.Contains(str, "*") && (op == "=" || op == "!=") {
		likeOp := "LIKE"
		if op == "!=" {
			likeOp = "NOT LIKE"
		}
		return Condition{
			Clause: fmt.Sprintf(`%s %s ? ESCAPE '\'`, field.Column, likeOp),
			Params: []any{likePattern(str)},
		}, nil
	}

	return Condition{
		Clause: fmt.Sprintf("%s %s ?", field.Column, op),
		Params: []any{value},
	}, nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}

	switch kind := e.GetExprKind().(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.GetName(), nil
	default:
		return "", fmt.Errorf("expected field name on the left of a comparison, got %T", kind)
	}
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}

	switch kind := e.GetExprKind().(type) {
	case *expr.Expr_ConstExpr:
		return extractConstValue(kind.ConstExpr)
	case *expr.Expr_CallExpr:
		if kind.CallExpr.GetFunction() == "timestamp" && len(kind.CallExpr.GetArgs()) == 1 {
			return extractTimestampValue(kind.CallExpr.GetArgs()[0])
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.GetFunction())
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

func extractConstValue(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("nil constant")
	}

	switch kind := c.GetConstantKind().(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return int64(kind.Uint64Value), nil
	case *expr.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}

// extractTimestampValue returns the timestamp as Unix milliseconds, the
// representation date columns are stored in.
func extractTimestampValue(e *expr.Expr) (int64, error) {
	c, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return 0, fmt.Errorf("timestamp argument must be a constant string")
	}
	str, ok := c.ConstExpr.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return 0, fmt.Errorf("timestamp argument must be a string")
	}

	t, err := time.Parse(time.RFC3339Nano, str.StringValue)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp format: %s", str.StringValue)
	}
	return t.UTC().UnixMilli(), nil
}

// likePattern escapes SQL LIKE metacharacters and turns `*` into `%`.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `%`)
	return r.Replace(s)
}

func wrap(clause string) string {
	if strings.HasPrefix(clause, "(") {
		return clause
	}
	return "(" + clause + ")"
}
