package eval

import (
	"fmt"
	"strconv"
	"strings"
)

// tokenKind classifies a lexed token.
type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdent
	tokenPlaceholder
	tokenOperator
	tokenLParen
	tokenRParen
	tokenComma
)

// token is one lexed element of an expression.
type token struct {
	kind  tokenKind
	num   float64 // tokenNumber
	text  string  // tokenIdent
	group int     // tokenPlaceholder
	op    byte    // tokenOperator: '+', '-', '*', '/'
	// splice marks a '*' reinterpreted as the expansion operator: a star in
	// a position where a binary multiply would be grammatically invalid,
	// directly before a placeholder or parenthesized group.
	splice bool
}

// lex tokenizes expr and runs the star-tagging pass.
//
// Postcondition: every '*' token is tagged as either a binary multiply or a
// splice, so the parser never has to disambiguate.
func lex(expr string) ([]token, error) {
	tokens, err := scan(expr)
	if err != nil {
		return nil, err
	}
	tagSplices(tokens)
	return tokens, nil
}

// scan produces the raw token stream.
func scan(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(expr) && isDigit(expr[j]) {
				j++
			}
			if j < len(expr) && expr[j] == '.' {
				j++
				for j < len(expr) && isDigit(expr[j]) {
					j++
				}
			}
			n, err := strconv.ParseFloat(expr[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", ErrBadToken, expr[i:j])
			}
			tokens = append(tokens, token{kind: tokenNumber, num: n})
			i = j
		case c == '_':
			group, width, err := scanPlaceholder(expr[i:])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenPlaceholder, group: group})
			i += width
		case c >= 'a' && c <= 'z':
			j := i
			for j < len(expr) && expr[j] >= 'a' && expr[j] <= 'z' {
				j++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: expr[i:j]})
			i = j
		case c == '+' || c == '-' || c == '*' || c == '/':
			tokens = append(tokens, token{kind: tokenOperator, op: c})
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen})
			i++
		case c == ',':
			tokens = append(tokens, token{kind: tokenComma})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrBadToken, string(c))
		}
	}
	return tokens, nil
}

// scanPlaceholder parses a leading "__G{n}__" and returns the group index
// and the consumed width.
func scanPlaceholder(s string) (group, width int, err error) {
	if !strings.HasPrefix(s, "__G") {
		return 0, 0, fmt.Errorf("%w: stray underscore", ErrBadToken)
	}
	j := len("__G")
	start := j
	for j < len(s) && isDigit(s[j]) {
		j++
	}
	if j == start || !strings.HasPrefix(s[j:], "__") {
		return 0, 0, fmt.Errorf("%w: malformed placeholder", ErrBadToken)
	}
	group, err = strconv.Atoi(s[start:j])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed placeholder index", ErrBadToken)
	}
	return group, j + 2, nil
}

// tagSplices marks each '*' that reads as the expansion operator rather
// than a binary multiply: the preceding token is an operator, comma, open
// paren, or nothing, and the following token is a placeholder or an open
// paren.
func tagSplices(tokens []token) {
	for i := range tokens {
		if tokens[i].kind != tokenOperator || tokens[i].op != '*' {
			continue
		}
		if i+1 >= len(tokens) {
			continue
		}
		next := tokens[i+1]
		if next.kind != tokenPlaceholder && next.kind != tokenLParen {
			continue
		}
		if i == 0 {
			tokens[i].splice = true
			continue
		}
		switch tokens[i-1].kind {
		case tokenOperator, tokenComma, tokenLParen:
			tokens[i].splice = true
		}
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
