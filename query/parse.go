package query

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseError describes a malformed filter expression. Pos is the 0-based
// byte offset into the expression where parsing failed.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokOp     // = != >= <=
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits a filter expression into tokens. Barewords may contain
// letters, digits and the punctuation that shows up in paths, type tags and
// timestamps (., _, /, -, :).
func lex(input string) ([]token, error) {
	var toks []token
	i := 0

	isBareword := func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r) ||
			strings.ContainsRune("._/-:\\", r)
	}

	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++

		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++

		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++

		case c == '=':
			toks = append(toks, token{tokOp, "=", i})
			i++

		case c == '!':
			if i+1 >= len(input) || input[i+1] != '=' {
				return nil, &ParseError{Pos: i, Msg: "expected '=' after '!'"}
			}
			toks = append(toks, token{tokOp, "!=", i})
			i += 2

		case c == '>' || c == '<':
			if i+1 >= len(input) || input[i+1] != '=' {
				return nil, &ParseError{Pos: i, Msg: fmt.Sprintf("expected '=' after '%c'", c)}
			}
			toks = append(toks, token{tokOp, string(c) + "=", i})
			i += 2

		case c == '"':
			start := i
			i++
			var sb strings.Builder
			for i < len(input) && input[i] != '"' {
				if input[i] == '\\' && i+1 < len(input) {
					i++
				}
				sb.WriteByte(input[i])
				i++
			}
			if i >= len(input) {
				return nil, &ParseError{Pos: start, Msg: "unterminated string"}
			}
			i++ // closing quote
			toks = append(toks, token{tokString, sb.String(), start})

		default:
			start := i
			for i < len(input) && isBareword(rune(input[i])) {
				i++
			}
			if i == start {
				return nil, &ParseError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
			}
			toks = append(toks, token{tokIdent, input[start:i], start})
		}
	}

	toks = append(toks, token{tokEOF, "", len(input)})
	return toks, nil
}

// Parse parses a filter expression into a predicate tree. An empty or
// all-whitespace expression returns a nil *Expr, which matches every event.
func Parse(input string) (*Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}

	toks, err := lex(input)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, &ParseError{Pos: p.peek().pos, Msg: fmt.Sprintf("unexpected %q", p.peek().text)}
	}
	return expr, nil
}

type parser struct {
	toks []token
	idx  int
}

func (p *parser) peek() token { return p.toks[p.idx] }

func (p *parser) next() token {
	t := p.toks[p.idx]
	if t.kind != tokEOF {
		p.idx++
	}
	return t
}

// keyword reports whether the next token is the given bareword keyword,
// compared case-insensitively, and consumes it if so.
func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.next()
		return true
	}
	return false
}

func (p *parser) parseOr() (*Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = combine(left, right, OR)
	}
	return left, nil
}

func (p *parser) parseAnd() (*Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = combine(left, right, AND)
	}
	return left, nil
}

func (p *parser) parseUnary() (*Expr, error) {
	if p.peek().kind == tokLParen {
		open := p.next()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, &ParseError{Pos: open.pos, Msg: "missing closing parenthesis"}
		}
		p.next()
		return expr, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (*Expr, error) {
	field := p.peek()
	if field.kind != tokIdent {
		return nil, &ParseError{Pos: field.pos, Msg: fmt.Sprintf("expected field name, got %q", field.text)}
	}
	p.next()

	var op Operator
	switch t := p.peek(); {
	case t.kind == tokOp:
		op = Operator(t.text)
		p.next()

	case t.kind == tokIdent && strings.EqualFold(t.text, "contains"):
		op = Contains
		p.next()

	case t.kind == tokIdent && strings.EqualFold(t.text, "not"):
		p.next()
		if !p.keyword("contains") {
			return nil, &ParseError{Pos: t.pos, Msg: "expected 'contains' after 'not'"}
		}
		op = NotContains

	default:
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("expected operator, got %q", t.text)}
	}

	val := p.peek()
	if val.kind != tokIdent && val.kind != tokString {
		return nil, &ParseError{Pos: val.pos, Msg: fmt.Sprintf("expected value, got %q", val.text)}
	}
	p.next()

	return comparison(strings.ToLower(field.text), op, val.text, field.pos)
}
