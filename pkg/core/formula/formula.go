// Package formula parses and evaluates the arithmetic expressions attached to
// value-chain process rows. Formulas may embed tagged references to value
// drivers ({vd:ID,"label"}), market inputs ({ef:ID,"label"}) and fields of the
// owning row ({process:FIELD,"label"}), plus an if(cond,a,b) construct.
package formula

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Bindings carries the resolved numeric values a formula may reference.
// Row holds the current row context for {process:FIELD} tags and bare
// identifiers (e.g. "time" substituted back into cost/revenue formulas).
type Bindings struct {
	ValueDrivers map[int]float64
	MarketInputs map[int]float64
	Row          map[string]float64
}

var (
	refPattern    = regexp.MustCompile(`\{(vd|ef|process):([^,{}]+),"([^"]*)"\}`)
	anyRefPattern = regexp.MustCompile(`\{[^{}]*\}`)
)

// Evaluate resolves all references in the formula and folds it to a scalar.
//
// The resolution order is fixed: implicit multiplication insertion, two
// substitution passes (so one level of nested references resolves), if()
// resolution, zero-fill of anything still unresolved, then a single parse
// and numeric fold of the remaining plain arithmetic.
func Evaluate(input string, b Bindings) (float64, error) {
	s := insertImplicitMul(input)
	s = substituteRefs(s, b)
	s = substituteRefs(s, b)
	s, err := resolveIfs(s, b.Row)
	if err != nil {
		return 0, err
	}
	s = anyRefPattern.ReplaceAllString(s, "0")

	node, err := Parse(s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", input, err)
	}
	v, err := node.Eval(b.Row)
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", input, err)
	}
	return v, nil
}

// substituteRefs replaces every resolvable tagged reference with its numeric
// value, parenthesized so negative values survive adjacent operators.
// Unresolvable references are left in place for the zero-fill stage.
func substituteRefs(s string, b Bindings) string {
	return refPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := refPattern.FindStringSubmatch(match)
		tag, value := groups[1], strings.TrimSpace(groups[2])

		switch tag {
		case "vd":
			if id, err := strconv.Atoi(value); err == nil {
				if v, ok := b.ValueDrivers[id]; ok {
					return "(" + strconv.FormatFloat(v, 'g', -1, 64) + ")"
				}
			}
		case "ef":
			if id, err := strconv.Atoi(value); err == nil {
				if v, ok := b.MarketInputs[id]; ok {
					return "(" + strconv.FormatFloat(v, 'g', -1, 64) + ")"
				}
			}
		case "process":
			if v, ok := b.Row[value]; ok {
				return "(" + strconv.FormatFloat(v, 'g', -1, 64) + ")"
			}
		}
		return match
	})
}

// resolveIfs evaluates every if(cond,a,b) construct and splices the winning
// branch text back into the expression. Conditions are evaluated with any
// still-unresolved references zero-filled; branch text is spliced verbatim.
func resolveIfs(s string, vars map[string]float64) (string, error) {
	for {
		idx := findIfCall(s)
		if idx < 0 {
			return s, nil
		}
		open := idx + 2
		end, err := matchParen(s, open)
		if err != nil {
			return "", err
		}
		args := splitArgs(s[open+1 : end])
		if len(args) != 3 {
			return "", fmt.Errorf("if() expects 3 arguments, got %d", len(args))
		}

		cond := anyRefPattern.ReplaceAllString(args[0], "0")
		node, err := Parse(cond)
		if err != nil {
			return "", fmt.Errorf("if condition %q: %w", args[0], err)
		}
		v, err := node.Eval(vars)
		if err != nil {
			return "", fmt.Errorf("if condition %q: %w", args[0], err)
		}

		branch := args[2]
		if v != 0 {
			branch = args[1]
		}
		s = s[:idx] + "(" + branch + ")" + s[end+1:]
	}
}

// findIfCall locates the first "if(" that is not part of a longer identifier.
func findIfCall(s string) int {
	for i := 0; i+3 <= len(s); i++ {
		if s[i:i+3] != "if(" {
			continue
		}
		if i > 0 {
			prev := s[i-1]
			if prev == '_' || isAlnum(prev) {
				continue
			}
		}
		return i
	}
	return -1
}

// matchParen returns the index of the parenthesis closing s[open].
func matchParen(s string, open int) (int, error) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced parentheses in if()")
}

// splitArgs splits on commas at parenthesis/brace depth zero.
func splitArgs(s string) []string {
	var args []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	args = append(args, strings.TrimSpace(s[last:]))
	return args
}

// insertImplicitMul rewrites user shorthand like "2x" and "(1+2)(3+4)" into
// explicit multiplications. Text inside tagged references is left untouched.
func insertImplicitMul(s string) string {
	var out strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if depth == 0 && i > 0 && needsMul(s[i-1], c) {
			out.WriteByte('*')
		}
		if c == '{' {
			depth++
		} else if c == '}' && depth > 0 {
			depth--
		}
		out.WriteByte(c)
	}
	return out.String()
}

// needsMul reports whether an implicit multiplication belongs between two
// adjacent characters. A digit or a closing bracket followed by a letter or
// an opening bracket counts; identifiers followed by "(" do not, which keeps
// if(...) calls intact.
func needsMul(prev, c byte) bool {
	closing := prev == ')' || prev == '}'
	digit := prev >= '0' && prev <= '9'
	if !closing && !digit {
		return false
	}
	openNext := c == '(' || c == '{'
	letterNext := isLetter(c)
	digitNext := c >= '0' && c <= '9'

	if digit && (letterNext || openNext) {
		return true
	}
	return closing && (letterNext || openNext || digitNext)
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isAlnum(c byte) bool {
	return isLetter(c) || c >= '0' && c <= '9'
}
