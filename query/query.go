// Package query implements the filter expression language accepted by the
// event store. An expression is a set of field comparisons joined by
// "and"/"or", e.g.:
//
//	subject contains "/etc" and type = file.mtime
//	(type = file.atime or type = file.ctime) and timestamp >= "2011-05-01 00:00:00"
//
// Expressions are parsed into a predicate tree and compiled to a
// parameterized SQL WHERE fragment through a Dialect.
package query

import (
	"fmt"
	"strconv"

	"github.com/evidentia/timeline/model"
)

// Logic determines how two sub-expressions are combined.
type Logic int

const (
	AND Logic = iota
	OR
)

// Operator represents a comparison operator in a filter expression.
type Operator string

const (
	Equal          Operator = "="
	NotEqual       Operator = "!="
	Contains       Operator = "contains"
	NotContains    Operator = "not contains"
	GreaterOrEqual Operator = ">="
	LessOrEqual    Operator = "<="
)

// columns maps filter field names to store column names.
var columns = map[string]string{
	"id":        "seq",
	"timestamp": "ts",
	"subject":   "subject",
	"type":      "type",
}

type exprKind int

const (
	exprComparison exprKind = iota
	exprComposite
)

// Expr is a node of a parsed filter expression. A nil *Expr matches every
// event and compiles to an empty WHERE fragment.
type Expr struct {
	kind  exprKind
	field string
	op    Operator
	value interface{} // string, or int64 for id/timestamp comparisons
	left  *Expr
	right *Expr
	logic Logic
}

// comparison builds a validated comparison node. The value is converted to
// the field's storage representation here so that compilation cannot fail.
func comparison(field string, op Operator, value string, pos int) (*Expr, error) {
	if _, ok := columns[field]; !ok {
		return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("unknown field %q", field)}
	}

	e := &Expr{kind: exprComparison, field: field, op: op}

	switch field {
	case "id":
		if op == Contains || op == NotContains {
			return nil, &ParseError{Pos: pos, Msg: "operator contains not valid for id"}
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("invalid id value %q", value)}
		}
		e.value = n

	case "timestamp":
		if op == Contains || op == NotContains {
			return nil, &ParseError{Pos: pos, Msg: "operator contains not valid for timestamp"}
		}
		t, err := model.ParseTimestamp(value)
		if err != nil {
			return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("invalid timestamp %q", value)}
		}
		e.value = t.UnixMicro()

	default:
		e.value = value
	}

	return e, nil
}

// combine joins two expressions with the given logic. Nil operands collapse
// to the other side.
func combine(left, right *Expr, logic Logic) *Expr {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return &Expr{kind: exprComposite, left: left, right: right, logic: logic}
}

// WhereClause returns the SQL WHERE fragment for this expression and its
// parameter values. argIdx is the 1-based index of the next placeholder and
// is advanced as parameters are emitted.
func (e *Expr) WhereClause(d Dialect, argIdx *int) (string, []interface{}) {
	if e == nil {
		return "", nil
	}
	if d == nil {
		d = DefaultDialect
	}

	switch e.kind {
	case exprComparison:
		col := d.QuoteColumn(columns[e.field])
		ph := d.Placeholder(*argIdx)
		*argIdx++

		switch e.op {
		case Contains:
			return fmt.Sprintf("(%s LIKE %s)", col, ph),
				[]interface{}{"%" + e.value.(string) + "%"}
		case NotContains:
			return fmt.Sprintf("(%s NOT LIKE %s)", col, ph),
				[]interface{}{"%" + e.value.(string) + "%"}
		default:
			return fmt.Sprintf("(%s %s %s)", col, e.op, ph),
				[]interface{}{e.value}
		}

	case exprComposite:
		leftSQL, leftArgs := e.left.WhereClause(d, argIdx)
		rightSQL, rightArgs := e.right.WhereClause(d, argIdx)

		logicStr := "AND"
		if e.logic == OR {
			logicStr = "OR"
		}

		sql := fmt.Sprintf("(%s %s %s)", leftSQL, logicStr, rightSQL)
		return sql, append(leftArgs, rightArgs...)

	default:
		return "", nil
	}
}

// Fields returns the distinct field names referenced by this expression.
func (e *Expr) Fields() []string {
	seen := make(map[string]bool)
	var result []string

	var walk func(*Expr)
	walk = func(n *Expr) {
		if n == nil {
			return
		}
		if n.kind == exprComparison {
			if !seen[n.field] {
				seen[n.field] = true
				result = append(result, n.field)
			}
			return
		}
		walk(n.left)
		walk(n.right)
	}
	walk(e)

	return result
}
