// Package notation compiles raw roll formulas into dice groups plus an
// evaluable template. Each recognized dice term (e.g. "2d20kh1") becomes an
// ordered Group and is replaced in the template by a placeholder token
// __G{n}__; everything else is left for the expression evaluator.
package notation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cory-johannsen/dicetray/internal/game/dice"
	"github.com/cory-johannsen/dicetray/internal/game/eval"
)

// Keep is a group's keep-modifier.
type Keep int

const (
	// KeepNone keeps every die in the group.
	KeepNone Keep = iota
	// KeepHigh keeps the KeepCount highest dice ("kh").
	KeepHigh
	// KeepLow keeps the KeepCount lowest dice ("kl").
	KeepLow
	// KeepAverage averages all dice in the group ("ka").
	KeepAverage
)

// String returns the notation suffix for the modifier.
func (k Keep) String() string {
	switch k {
	case KeepHigh:
		return "kh"
	case KeepLow:
		return "kl"
	case KeepAverage:
		return "ka"
	default:
		return ""
	}
}

// Group is one parsed dice term. Immutable after Compile.
//
// Invariant: Count >= 1; KeepCount >= 1 when Keep is KeepHigh or KeepLow,
// 0 otherwise.
type Group struct {
	Type      dice.Type
	Count     int
	Keep      Keep
	KeepCount int
}

// String renders the group back in notation form, e.g. "2d20kh1".
func (g Group) String() string {
	s := fmt.Sprintf("%dd%d", g.Count, g.Type.Sides())
	if g.Keep == KeepHigh || g.Keep == KeepLow {
		return fmt.Sprintf("%s%s%d", s, g.Keep, g.KeepCount)
	}
	if g.Keep == KeepAverage {
		return s + "ka"
	}
	return s
}

// Compiled is the output of Compile: the ordered dice groups and the
// template with each group occurrence replaced by its placeholder.
type Compiled struct {
	// Formula is the original user text, preserved for display and re-roll.
	Formula string
	// Template is the formula with group n replaced by "__G{n}__".
	Template string
	// Groups is ordered by placeholder index.
	Groups []Group
}

// Compile failure reasons.
var (
	ErrNoDiceGroups      = errors.New("notation: formula contains no dice groups")
	ErrIllegalCharacters = errors.New("notation: formula contains unsupported characters")
)

// CompileError is the user-facing rejection of a formula. It wraps one of
// the sentinel errors above or an evaluator syntax error.
type CompileError struct {
	Formula string
	Err     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiling formula %q: %v", e.Formula, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// groupPattern matches "[count]d[sides][kh|kl|ka][n]".
var groupPattern = regexp.MustCompile(`(\d*)d(\d+)(kh|kl|ka)?(\d*)`)

// shortcutPattern matches "max(XdY)" style single-group function shortcuts.
var shortcutPattern = regexp.MustCompile(`(max|min|avg)\(\s*(\d*)d(\d+)\s*\)`)

// placeholderPattern matches emitted placeholder tokens.
var placeholderPattern = regexp.MustCompile(`__G\d+__`)

// legalTemplate is the character whitelist checked after placeholders are
// neutralized.
var legalTemplate = regexp.MustCompile(`^[0-9\s+\-*/().,a-z]*$`)

// Compile parses formula into dice groups and a placeholder template.
//
// The formula is case-insensitive. Single-group function shortcuts are
// rewritten first: max(XdY) reads as XdYkh1, min as XdYkl1, avg as XdYka.
//
// This step is pure and synchronous: no dice are thrown and no state is
// touched. Rejected formulas yield a *CompileError.
//
// Postcondition: On success, len(Groups) >= 1 and the template evaluates in
// dry mode.
func Compile(formula string) (Compiled, error) {
	lowered := strings.ToLower(strings.TrimSpace(formula))

	template, groups := extractGroups(expandShortcuts(lowered))
	if len(groups) == 0 {
		return Compiled{}, &CompileError{Formula: formula, Err: ErrNoDiceGroups}
	}

	neutral := placeholderPattern.ReplaceAllString(template, "0")
	if !legalTemplate.MatchString(neutral) {
		return Compiled{}, &CompileError{Formula: formula, Err: ErrIllegalCharacters}
	}

	if err := eval.Validate(template); err != nil {
		return Compiled{}, &CompileError{Formula: formula, Err: err}
	}

	return Compiled{Formula: formula, Template: template, Groups: groups}, nil
}

// expandShortcuts rewrites single-group function shortcuts textually, before
// group extraction. Only a function whose sole argument is exactly one bare
// dice term is rewritten; anything else is left for the evaluator.
func expandShortcuts(formula string) string {
	return shortcutPattern.ReplaceAllStringFunc(formula, func(m string) string {
		sub := shortcutPattern.FindStringSubmatch(m)
		fn, count, sides := sub[1], sub[2], sub[3]

		n, err := strconv.Atoi(sides)
		if err != nil {
			return m
		}
		if _, ok := dice.ParseSides(n); !ok {
			return m
		}

		var suffix string
		switch fn {
		case "max":
			suffix = "kh1"
		case "min":
			suffix = "kl1"
		case "avg":
			suffix = "ka"
		}
		return count + "d" + sides + suffix
	})
}

// extractGroups scans for dice terms, allocating placeholder indexes in
// match order. Terms with unsupported side counts, a zero count, or a
// letter immediately before them (part of a longer identifier) are left
// untouched.
func extractGroups(formula string) (string, []Group) {
	var groups []Group
	var out strings.Builder
	last := 0

	for _, loc := range groupPattern.FindAllStringSubmatchIndex(formula, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isLetter(formula[start-1]) {
			continue
		}

		g, ok := parseGroup(formula, loc)
		if !ok {
			continue
		}

		out.WriteString(formula[last:start])
		out.WriteString(fmt.Sprintf("__G%d__", len(groups)))
		groups = append(groups, g)
		last = end
	}
	out.WriteString(formula[last:])
	return out.String(), groups
}

// parseGroup converts one regex match into a Group.
func parseGroup(formula string, loc []int) (Group, bool) {
	capture := func(i int) string {
		if loc[2*i] < 0 {
			return ""
		}
		return formula[loc[2*i]:loc[2*i+1]]
	}

	sides, err := strconv.Atoi(capture(2))
	if err != nil {
		return Group{}, false
	}
	typ, ok := dice.ParseSides(sides)
	if !ok {
		return Group{}, false
	}

	count := 1
	if c := capture(1); c != "" {
		count, err = strconv.Atoi(c)
		if err != nil || count < 1 {
			return Group{}, false
		}
	}

	g := Group{Type: typ, Count: count}
	switch capture(3) {
	case "kh":
		g.Keep = KeepHigh
	case "kl":
		g.Keep = KeepLow
	case "ka":
		g.Keep = KeepAverage
	}

	if g.Keep == KeepHigh || g.Keep == KeepLow {
		g.KeepCount = 1
		if kc := capture(4); kc != "" {
			n, err := strconv.Atoi(kc)
			if err != nil || n < 1 {
				return Group{}, false
			}
			g.KeepCount = n
		}
	}
	return g, true
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z'
}

// PhysicalDice returns the total physical die count the compiled formula
// will spawn, with composite dice counted per part.
func (c Compiled) PhysicalDice() int {
	total := 0
	for _, g := range c.Groups {
		total += g.Count * g.Type.PhysicalCount()
	}
	return total
}
