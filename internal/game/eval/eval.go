package eval

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel evaluation errors. All failures wrap one of these; the evaluator
// never panics on malformed input.
var (
	ErrBadToken             = errors.New("eval: bad token")
	ErrMismatchedParens     = errors.New("eval: mismatched parentheses")
	ErrMisplacedComma       = errors.New("eval: comma outside function arguments")
	ErrUnknownFunction      = errors.New("eval: unknown function")
	ErrInsufficientOperands = errors.New("eval: insufficient operands")
	ErrResidualValues       = errors.New("eval: expression did not reduce to a single value")
	ErrUnboundPlaceholder   = errors.New("eval: unbound placeholder")
)

// Evaluate computes expr with placeholders resolved through binds.
//
// The final numeric result is rounded to one decimal place, half away from
// zero; the breakdown is left untouched.
//
// Postcondition: Returns a Value with a non-empty Breakdown, or an error
// wrapping one of the sentinel errors above.
func Evaluate(expr string, binds Bindings) (Value, error) {
	v, err := evaluate(expr, binds, false)
	if err != nil {
		return Value{}, err
	}
	v.Num = round1(v.Num)
	return v, nil
}

// Validate runs expr in dry mode: every placeholder reads as 0. It checks
// syntax only, so a formula can be rejected at compile time before any die
// is thrown.
func Validate(expr string) error {
	_, err := evaluate(expr, nil, true)
	return err
}

// frame marks an open paren on the evaluation stack: either a plain group
// or a function call collecting arguments.
type frame struct {
	isFunc bool
	name   string // function name when isFunc
	base   int    // output stack depth at open
	splice bool   // plain group opened by a splice star
}

// opEntry is one entry on the operator stack: a binary operator or an open
// frame marker.
type opEntry struct {
	op    byte
	frame *frame
}

// evaluator holds the shunting-yard state for one expression.
type evaluator struct {
	out   []Value
	ops   []opEntry
	binds Bindings
	dry   bool
}

func evaluate(expr string, binds Bindings, dry bool) (Value, error) {
	tokens, err := lex(expr)
	if err != nil {
		return Value{}, err
	}

	e := &evaluator{binds: binds, dry: dry}
	pendingSplice := false

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.kind {
		case tokenNumber:
			e.out = append(e.out, Number(tok.num))

		case tokenPlaceholder:
			v, err := e.resolve(tok.group)
			if err != nil {
				return Value{}, err
			}
			if pendingSplice {
				e.pushSpliced(v)
				pendingSplice = false
			} else {
				e.out = append(e.out, v)
			}

		case tokenIdent:
			if i+1 >= len(tokens) || tokens[i+1].kind != tokenLParen {
				return Value{}, fmt.Errorf("%w: %q", ErrUnknownFunction, tok.text)
			}
			if !knownFunction(tok.text) {
				return Value{}, fmt.Errorf("%w: %q", ErrUnknownFunction, tok.text)
			}
			e.ops = append(e.ops, opEntry{frame: &frame{isFunc: true, name: tok.text, base: len(e.out)}})
			i++ // consume the '('

		case tokenLParen:
			e.ops = append(e.ops, opEntry{frame: &frame{base: len(e.out), splice: pendingSplice}})
			pendingSplice = false

		case tokenComma:
			if err := e.drainOperators(); err != nil {
				return Value{}, err
			}
			f := e.topFrame()
			if f == nil || !f.isFunc {
				return Value{}, ErrMisplacedComma
			}

		case tokenRParen:
			if err := e.drainOperators(); err != nil {
				return Value{}, err
			}
			if err := e.closeFrame(); err != nil {
				return Value{}, err
			}

		case tokenOperator:
			if tok.splice {
				pendingSplice = true
				continue
			}
			for e.topIsOperator() && precedence(e.topOperator()) >= precedence(tok.op) {
				if err := e.applyBinary(); err != nil {
					return Value{}, err
				}
			}
			e.ops = append(e.ops, opEntry{op: tok.op})
		}
	}

	if err := e.drainOperators(); err != nil {
		return Value{}, err
	}
	if e.topFrame() != nil {
		return Value{}, ErrMismatchedParens
	}
	if len(e.out) != 1 {
		return Value{}, fmt.Errorf("%w: %d values remain", ErrResidualValues, len(e.out))
	}
	return e.out[0], nil
}

// resolve looks up a placeholder value, or reads 0 in dry mode.
func (e *evaluator) resolve(group int) (Value, error) {
	if e.dry {
		return Number(0), nil
	}
	v, ok := e.binds[group]
	if !ok {
		return Value{}, fmt.Errorf("%w: __G%d__", ErrUnboundPlaceholder, group)
	}
	return v, nil
}

// pushSpliced pushes a value's expansion as discrete operands, or the value
// itself when it has no expansion.
func (e *evaluator) pushSpliced(v Value) {
	if len(v.Expansion) == 0 {
		e.out = append(e.out, v)
		return
	}
	e.out = append(e.out, v.Expansion...)
}

// topFrame returns the innermost open frame, or nil.
func (e *evaluator) topFrame() *frame {
	if len(e.ops) == 0 {
		return nil
	}
	return e.ops[len(e.ops)-1].frame
}

func (e *evaluator) topIsOperator() bool {
	return len(e.ops) > 0 && e.ops[len(e.ops)-1].frame == nil
}

func (e *evaluator) topOperator() byte {
	return e.ops[len(e.ops)-1].op
}

// drainOperators applies all binary operators above the innermost frame.
func (e *evaluator) drainOperators() error {
	for e.topIsOperator() {
		if err := e.applyBinary(); err != nil {
			return err
		}
	}
	return nil
}

// frameBase returns the output depth owned by the innermost frame.
func (e *evaluator) frameBase() int {
	for i := len(e.ops) - 1; i >= 0; i-- {
		if e.ops[i].frame != nil {
			return e.ops[i].frame.base
		}
	}
	return 0
}

// applyBinary pops one operator and its two operands and pushes the result.
//
// Operands never cross a frame boundary: "1 + (+2)" fails rather than
// reaching outside the parens.
func (e *evaluator) applyBinary() error {
	op := e.topOperator()
	e.ops = e.ops[:len(e.ops)-1]

	if len(e.out)-e.frameBase() < 2 {
		return fmt.Errorf("%w: operator %q", ErrInsufficientOperands, string(op))
	}
	b := e.out[len(e.out)-1]
	a := e.out[len(e.out)-2]
	e.out = e.out[:len(e.out)-2]

	var n float64
	switch op {
	case '+':
		n = a.Num + b.Num
	case '-':
		n = a.Num - b.Num
	case '*':
		n = a.Num * b.Num
	case '/':
		n = a.Num / b.Num
	}
	e.out = append(e.out, Value{
		Num:       n,
		Breakdown: a.Breakdown + " " + string(op) + " " + b.Breakdown,
	})
	return nil
}

// closeFrame pops the innermost frame and pushes its result: the function
// value for a call frame, or the single parenthesized value otherwise.
func (e *evaluator) closeFrame() error {
	f := e.topFrame()
	if f == nil {
		return ErrMismatchedParens
	}
	e.ops = e.ops[:len(e.ops)-1]

	args := make([]Value, len(e.out)-f.base)
	copy(args, e.out[f.base:])
	e.out = e.out[:f.base]

	if f.isFunc {
		v, err := applyFunction(f.name, args)
		if err != nil {
			return err
		}
		e.out = append(e.out, v)
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("%w: parenthesized group", ErrInsufficientOperands)
	}
	v := args[0]
	v.Breakdown = "(" + v.Breakdown + ")"
	if f.splice && len(v.Expansion) > 0 {
		e.out = append(e.out, v.Expansion...)
		return nil
	}
	e.out = append(e.out, v)
	return nil
}

// precedence returns the binding tier of a binary operator. Multiplicative
// operators bind tighter; associativity is left-to-right within a tier.
func precedence(op byte) int {
	if op == '*' || op == '/' {
		return 2
	}
	return 1
}

func knownFunction(name string) bool {
	switch name {
	case "max", "min", "avg":
		return true
	}
	return false
}

// applyFunction computes a function call over its collected arguments.
//
// max and min select the extreme argument by value, ties going to the
// earliest occurrence, and strike every non-selected argument in the
// breakdown. avg takes the arithmetic mean (0 for no arguments) and never
// strikes anything.
func applyFunction(name string, args []Value) (Value, error) {
	switch name {
	case "max", "min":
		if len(args) == 0 {
			return Value{}, fmt.Errorf("%w: %s()", ErrInsufficientOperands, name)
		}
		best := 0
		for i := 1; i < len(args); i++ {
			if name == "max" && args[i].Num > args[best].Num {
				best = i
			}
			if name == "min" && args[i].Num < args[best].Num {
				best = i
			}
		}
		parts := make([]string, len(args))
		for i, a := range args {
			if i == best {
				parts[i] = a.Breakdown
			} else {
				parts[i] = "<del>" + a.Breakdown + "</del>"
			}
		}
		return Value{
			Num:       args[best].Num,
			Breakdown: name + "(" + strings.Join(parts, ", ") + ")",
		}, nil

	case "avg":
		sum := 0.0
		parts := make([]string, len(args))
		for i, a := range args {
			sum += a.Num
			parts[i] = a.Breakdown
		}
		mean := 0.0
		if len(args) > 0 {
			mean = sum / float64(len(args))
		}
		return Value{
			Num:       mean,
			Breakdown: "avg(" + strings.Join(parts, ", ") + ")",
		}, nil
	}
	return Value{}, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
}
