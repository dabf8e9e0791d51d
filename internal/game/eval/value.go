// Package eval implements the infix expression evaluator behind roll
// formulas: numbers, the four arithmetic operators, parenthesized groups,
// the max/min/avg functions, and group placeholders of the form __G{n}__.
//
// Every computed value carries a parallel breakdown string tracing how the
// number was derived, and an optional expansion: the raw multi-value form of
// a dice group used when a group result is spliced into a function's
// argument list instead of being passed as its pre-combined total.
package eval

import (
	"math"
	"strconv"
)

// Value is one computed operand: a number, its display breakdown, and an
// optional expansion.
//
// Invariant: Breakdown is non-empty for any Value produced by this package.
type Value struct {
	// Num is the numeric value of the operand.
	Num float64
	// Breakdown is the human-readable derivation of Num.
	Breakdown string
	// Expansion holds the raw member values of a compound operand. A nil or
	// empty expansion means the value splices as itself.
	Expansion []Value
}

// Number returns a plain numeric Value with a formatted breakdown.
func Number(n float64) Value {
	return Value{Num: n, Breakdown: FormatNumber(n)}
}

// Bindings maps group indexes to resolved placeholder values. A template
// token __G{n}__ evaluates to Bindings[n].
type Bindings map[int]Value

// FormatNumber renders n without trailing zeros ("14", "3.5").
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// round1 rounds to one decimal place, half away from zero.
func round1(n float64) float64 {
	scaled := n * 10
	if scaled >= 0 {
		return math.Floor(scaled+0.5) / 10
	}
	return math.Ceil(scaled-0.5) / 10
}
