package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Node is a parsed arithmetic expression. Identifiers are resolved against
// the variable map supplied at evaluation time.
type Node interface {
	Eval(vars map[string]float64) (float64, error)
}

type numberNode float64

func (n numberNode) Eval(map[string]float64) (float64, error) {
	return float64(n), nil
}

type identNode string

func (n identNode) Eval(vars map[string]float64) (float64, error) {
	if v, ok := vars[string(n)]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unresolved identifier %q", string(n))
}

type unaryNode struct {
	op   string
	expr Node
}

func (n unaryNode) Eval(vars map[string]float64) (float64, error) {
	v, err := n.expr.Eval(vars)
	if err != nil {
		return 0, err
	}
	if n.op == "-" {
		return -v, nil
	}
	return v, nil
}

type binaryNode struct {
	op          string
	left, right Node
}

func (n binaryNode) Eval(vars map[string]float64) (float64, error) {
	l, err := n.left.Eval(vars)
	if err != nil {
		return 0, err
	}
	r, err := n.right.Eval(vars)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return l / r, nil
	case "^":
		return math.Pow(l, r), nil
	case "==":
		return boolVal(l == r), nil
	case "!=":
		return boolVal(l != r), nil
	case "<":
		return boolVal(l < r), nil
	case "<=":
		return boolVal(l <= r), nil
	case ">":
		return boolVal(l > r), nil
	case ">=":
		return boolVal(l >= r), nil
	}
	return 0, fmt.Errorf("unknown operator %q", n.op)
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// =============================================================================
// LEXER
// =============================================================================

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(input) && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				j++
			}
			v, err := strconv.ParseFloat(input[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("malformed number %q", input[i:j])
			}
			toks = append(toks, token{kind: tokNumber, num: v})
			i = j
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i
			for j < len(input) && (unicode.IsLetter(rune(input[j])) || unicode.IsDigit(rune(input[j])) || input[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: input[i:j]})
			i = j
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		case strings.ContainsRune("+-*/^", rune(c)):
			toks = append(toks, token{kind: tokOp, text: string(c)})
			i++
		case c == '=' || c == '!' || c == '<' || c == '>':
			op := string(c)
			if i+1 < len(input) && input[i+1] == '=' {
				op += "="
				i++
			}
			if op == "=" {
				op = "=="
			}
			if op == "!" {
				return nil, fmt.Errorf("unexpected character %q", c)
			}
			toks = append(toks, token{kind: tokOp, text: op})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

// =============================================================================
// PARSER - precedence climbing over the token stream
// =============================================================================

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

// binding powers: comparisons < additive < multiplicative < power
func precedence(op string) int {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return 1
	case "+", "-":
		return 2
	case "*", "/":
		return 3
	case "^":
		return 4
	}
	return 0
}

// Parse compiles a plain arithmetic expression into an evaluable tree.
func Parse(input string) (Node, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected trailing input at %q", p.peek().text)
	}
	return node, nil
}

func (p *parser) parseExpr(minPrec int) (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp {
			break
		}
		prec := precedence(t.text)
		if prec < minPrec {
			break
		}
		p.next()
		// ^ is right-associative, everything else left
		nextMin := prec + 1
		if t.text == "^" {
			nextMin = prec
		}
		right, err := p.parseExpr(nextMin)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: t.text, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return numberNode(t.num), nil
	case tokIdent:
		return identNode(t.text), nil
	case tokLParen:
		node, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return node, nil
	case tokOp:
		if t.text == "-" || t.text == "+" {
			expr, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			return unaryNode{op: t.text, expr: expr}, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %q", t.text)
}
