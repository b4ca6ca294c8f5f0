package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/queryir"
)

// Table is the document table every query reads from; see store/schema.sql.
const Table = "documents"

// alias is the table alias used in every generated clause.
const alias = "d"

// UnsupportedOperatorError reports a predicate the SQLite backend cannot
// express.
type UnsupportedOperatorError struct {
	Operator string
	Field    string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported filter operator %s on field %q", e.Operator, e.Field)
}

// InvalidFieldError reports a field name that has no JSON path: empty, with
// an empty segment, or containing a quote or backslash.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid field name %q: %s", e.Field, e.Reason)
}

// SQLCompiler compiles QueryIR filters to parameterized SQL for SQLite over
// JSON document bodies.
//
// CRITICAL: ALL queries include ORDER BY for deterministic results.
// CRITICAL: All values are parameterized (never interpolated), including
// JSON paths.
//
// Matching follows filter-document semantics: a field holding an array
// matches when any element matches, and {field: null} matches a missing
// field as well as an explicit null. Array traversal happens at the last
// path segment only.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// CompileFind returns a query selecting (id, body) for every document of
// collection matching filter, in insertion order. Fields listed in exclude
// are removed from the returned bodies.
//
// MANDATORY: Includes ORDER BY with deterministic tiebreaker.
func (c *SQLCompiler) CompileFind(collection string, filter queryir.Node, exclude []string) (string, []any, error) {
	var params []any

	body := alias + ".body"
	if len(exclude) > 0 {
		placeholders := make([]string, len(exclude))
		for i, field := range exclude {
			path, err := JSONPath(field)
			if err != nil {
				return "", nil, err
			}
			placeholders[i] = "?"
			params = append(params, path)
		}
		body = fmt.Sprintf("json_remove(%s.body, %s)", alias, strings.Join(placeholders, ", "))
	}

	where, whereParams, err := c.compileScope(collection, filter)
	if err != nil {
		return "", nil, err
	}
	params = append(params, whereParams...)

	sql := fmt.Sprintf("SELECT %s.id, %s FROM %s AS %s WHERE %s ORDER BY %s",
		alias, body, Table, alias, where, stableOrderKey())
	return sql, params, nil
}

// CompileValues returns a query selecting the JSON text of field for every
// document of collection matching filter, in insertion order. Documents
// where field is missing are skipped.
//
// MANDATORY: Includes ORDER BY with deterministic tiebreaker.
func (c *SQLCompiler) CompileValues(collection string, filter queryir.Node, field string) (string, []any, error) {
	path, err := JSONPath(field)
	if err != nil {
		return "", nil, err
	}

	where, whereParams, err := c.compileScope(collection, filter)
	if err != nil {
		return "", nil, err
	}

	params := append([]any{path, path}, whereParams...)
	sql := fmt.Sprintf("SELECT %s.body -> ? FROM %s AS %s WHERE json_type(%s.body, ?) IS NOT NULL AND %s ORDER BY %s",
		alias, Table, alias, alias, where, stableOrderKey())
	return sql, params, nil
}

// CompileWhere compiles a filter to a WHERE clause fragment.
// A nil filter compiles to an always-true clause.
func (c *SQLCompiler) CompileWhere(filter queryir.Node) (string, []any, error) {
	return c.compileNode(filter)
}

func (c *SQLCompiler) compileScope(collection string, filter queryir.Node) (string, []any, error) {
	where, params, err := c.CompileWhere(filter)
	if err != nil {
		return "", nil, err
	}
	return alias + ".collection = ? AND (" + where + ")", append([]any{collection}, params...), nil
}

// stableOrderKey returns the ORDER BY clause shared by every query.
// seq is the insertion order; COLLATE BINARY keeps the tiebreaker stable
// across SQLite versions.
func stableOrderKey() string {
	return alias + ".seq ASC, " + alias + ".id ASC COLLATE BINARY"
}

func (c *SQLCompiler) compileNode(n queryir.Node) (string, []any, error) {
	switch node := n.(type) {
	case nil:
		return "1 = 1", nil, nil // Always true
	case queryir.And:
		return c.compileJunction(node.Children, " AND ", "1 = 1")
	case queryir.Or:
		return c.compileJunction(node.Children, " OR ", "0 = 1")
	case queryir.Leaf:
		return c.compileLeaf(node)
	default:
		return "", nil, fmt.Errorf("unsupported query node type: %T", n)
	}
}

// compileJunction joins children with op. An empty junction compiles to
// its identity element.
func (c *SQLCompiler) compileJunction(children []queryir.Node, op, empty string) (string, []any, error) {
	if len(children) == 0 {
		return empty, nil, nil
	}

	parts := make([]string, 0, len(children))
	var params []any
	for _, child := range children {
		sql, p, err := c.compileNode(child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, p...)
	}
	return strings.Join(parts, op), params, nil
}

// compileLeaf compiles a field predicate. A predicate object whose keys all
// start with "$" is a set of operators, combined with AND in key order.
// Any other value is an equality test.
func (c *SQLCompiler) compileLeaf(leaf queryir.Leaf) (string, []any, error) {
	path, err := JSONPath(leaf.Field)
	if err != nil {
		return "", nil, err
	}

	ops, isOps, err := operators(leaf)
	if err != nil {
		return "", nil, err
	}
	if !isOps {
		return c.compileIn(path, leaf.Field, ir.IRArray{leaf.Predicate}, "$eq")
	}

	parts := make([]string, 0, len(ops))
	var params []any
	for _, op := range ops.SortedKeys() {
		sql, p, err := c.compileOperator(path, leaf.Field, op, ops[op])
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, ") AND (") + ")", params, nil
}

// operators splits a predicate into its operator object, if it is one.
func operators(leaf queryir.Leaf) (ir.IRObject, bool, error) {
	obj, ok := leaf.Predicate.(ir.IRObject)
	if !ok || len(obj) == 0 {
		return nil, false, nil
	}
	dollar := 0
	for k := range obj {
		if strings.HasPrefix(k, "$") {
			dollar++
		}
	}
	switch dollar {
	case 0:
		return nil, false, nil
	case len(obj):
		return obj, true, nil
	default:
		return nil, false, &UnsupportedOperatorError{Operator: "mixed operator object", Field: leaf.Field}
	}
}

func (c *SQLCompiler) compileOperator(path, field, op string, arg ir.IRValue) (string, []any, error) {
	switch op {
	case "$eq":
		return c.compileIn(path, field, ir.IRArray{arg}, op)
	case "$ne":
		sql, params, err := c.compileIn(path, field, ir.IRArray{arg}, op)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", params, nil
	case "$in", "$nin":
		list, ok := arg.(ir.IRArray)
		if !ok {
			return "", nil, &UnsupportedOperatorError{Operator: op + " without array", Field: field}
		}
		sql, params, err := c.compileIn(path, field, list, op)
		if err != nil {
			return "", nil, err
		}
		if op == "$nin" {
			return "NOT (" + sql + ")", params, nil
		}
		return sql, params, nil
	case "$gt", "$gte", "$lt", "$lte":
		return c.compileRange(path, field, op, arg)
	case "$exists":
		want, ok := arg.(ir.IRBool)
		if !ok {
			return "", nil, &UnsupportedOperatorError{Operator: op + " without boolean", Field: field}
		}
		if want {
			return fmt.Sprintf("json_type(%s.body, ?) IS NOT NULL", alias), []any{path}, nil
		}
		return fmt.Sprintf("json_type(%s.body, ?) IS NULL", alias), []any{path}, nil
	default:
		return "", nil, &UnsupportedOperatorError{Operator: op, Field: field}
	}
}

// compileIn matches documents where the value at path, or any element of
// it when it is an array, equals one of values. null in values also
// matches a missing field. An empty list matches nothing.
//
// The scalar values are passed as a single JSON array parameter and joined
// with json_each, so large identifier lists cost one placeholder. Types are
// compared by bracket: integer and real are both numbers, true and false
// only match themselves.
func (c *SQLCompiler) compileIn(path, field string, values ir.IRArray, op string) (string, []any, error) {
	var scalars ir.IRArray
	matchNull := false
	for _, v := range values {
		switch v.(type) {
		case nil, ir.IRNull:
			matchNull = true
		case ir.IRString, ir.IRInt, ir.IRFloat, ir.IRBool:
			scalars = append(scalars, v)
		case ir.IRObject:
			return "", nil, &UnsupportedOperatorError{Operator: op + " with object value", Field: field}
		case ir.IRArray:
			return "", nil, &UnsupportedOperatorError{Operator: op + " with array value", Field: field}
		}
	}

	var parts []string
	var params []any
	if len(scalars) > 0 {
		list, err := ir.MarshalCanonical(scalars)
		if err != nil {
			return "", nil, fmt.Errorf("encode %s values for %q: %w", op, field, err)
		}
		parts = append(parts, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(%[1]s.body, ?) AS je, json_each(?) AS want"+
				" WHERE json_type(%[1]s.body, ?) <> 'object'"+
				" AND %[2]s = %[3]s AND je.value = want.value)",
			alias, typeBracket("je"), typeBracket("want")))
		params = append(params, path, string(list), path)
	}
	if matchNull {
		parts = append(parts, fmt.Sprintf(
			"(json_type(%[1]s.body, ?) IS NULL OR EXISTS (SELECT 1 FROM json_each(%[1]s.body, ?) AS je WHERE je.type = 'null'))",
			alias))
		params = append(params, path, path)
	}

	switch len(parts) {
	case 0:
		return "0 = 1", nil, nil // Empty list: always false
	case 1:
		return parts[0], params, nil
	default:
		return "(" + strings.Join(parts, ") OR (") + ")", params, nil
	}
}

// compileRange compiles $gt/$gte/$lt/$lte. Numbers compare with numbers and
// strings with strings; values of other types never match.
func (c *SQLCompiler) compileRange(path, field, op string, arg ir.IRValue) (string, []any, error) {
	cmp := map[string]string{"$gt": ">", "$gte": ">=", "$lt": "<", "$lte": "<="}[op]

	var typeCheck string
	var param any
	switch v := arg.(type) {
	case ir.IRInt:
		typeCheck, param = "je.type IN ('integer', 'real')", int64(v)
	case ir.IRFloat:
		typeCheck, param = "je.type IN ('integer', 'real')", float64(v)
	case ir.IRString:
		typeCheck, param = "je.type = 'text'", string(v)
	default:
		return "", nil, &UnsupportedOperatorError{Operator: op + " with " + ir.TypeName(arg) + " value", Field: field}
	}

	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM json_each(%[1]s.body, ?) AS je WHERE json_type(%[1]s.body, ?) <> 'object' AND %[2]s AND je.value %[3]s ?)",
		alias, typeCheck, cmp)
	return sql, []any{path, path, param}, nil
}

// typeBracket folds json_each's type column into comparison brackets.
func typeBracket(table string) string {
	return fmt.Sprintf("(CASE %s.type WHEN 'real' THEN 'integer' ELSE %s.type END)", table, table)
}

// JSONPath converts a dotted field into an SQLite JSON path.
// Numeric segments index arrays:
//
//	metadata.REFERENCES → $."metadata"."REFERENCES"
//	mds.0.frames        → $."mds"[0]."frames"
func JSONPath(field string) (string, error) {
	if field == "" {
		return "", &InvalidFieldError{Field: field, Reason: "empty name"}
	}
	if strings.ContainsAny(field, `"\`) {
		return "", &InvalidFieldError{Field: field, Reason: "quote or backslash"}
	}

	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(field, ".") {
		if seg == "" {
			return "", &InvalidFieldError{Field: field, Reason: "empty segment"}
		}
		if idx, err := strconv.Atoi(seg); err == nil && idx >= 0 && strconv.Itoa(idx) == seg {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString(`."` + seg + `"`)
	}
	return b.String(), nil
}
