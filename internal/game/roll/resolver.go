package roll

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dicetray/internal/game/eval"
	"github.com/cory-johannsen/dicetray/internal/game/notation"
)

// errorBreakdown is the terminal breakdown of a roll whose template could
// not be reduced. The record still resolves; it is never left pending.
const errorBreakdown = "Error"

// Resolver turns per-group logical die values into a resolved Record.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a Resolver that logs each resolution to logger.
//
// Precondition: logger must be non-nil.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve applies each group's keep-modifier to its logical values,
// substitutes the results into the record's template, and marks the record
// resolved.
//
// logical[i] must hold the ordered logical die values of group i. Any
// evaluation failure force-resolves the record to 0/"Error" rather than
// leaving it pending. Resolving an already-resolved record is a no-op.
//
// Postcondition: rec.Resolved() is true; Result, Breakdown, and
// GroupResults are set exactly once; repeated calls change nothing.
func (r *Resolver) Resolve(rec *Record, logical [][]int) {
	if rec.Resolved() {
		return
	}

	if len(logical) != len(rec.Groups) {
		r.forceError(rec, fmt.Errorf("have %d group results, want %d", len(logical), len(rec.Groups)))
		return
	}

	binds := make(eval.Bindings, len(rec.Groups))
	results := make([][]GroupResult, len(rec.Groups))
	for i, g := range rec.Groups {
		if len(logical[i]) != g.Count {
			r.forceError(rec, fmt.Errorf("group %d has %d dice, want %d", i, len(logical[i]), g.Count))
			return
		}
		results[i], binds[i] = applyKeep(g, logical[i])
	}

	v, err := eval.Evaluate(rec.Template, binds)
	if err != nil {
		rec.GroupResults = results
		r.forceError(rec, err)
		return
	}

	rec.GroupResults = results
	rec.Result = &v.Num
	rec.Breakdown = &v.Breakdown

	r.logger.Debug("roll resolved",
		zap.Int64("roll_id", rec.ID),
		zap.String("formula", rec.Formula),
		zap.Float64("result", v.Num),
		zap.String("breakdown", v.Breakdown),
	)
}

// forceError resolves rec to the recovered terminal state.
func (r *Resolver) forceError(rec *Record, err error) {
	r.logger.Warn("roll could not be evaluated, force-resolving",
		zap.Int64("roll_id", rec.ID),
		zap.String("formula", rec.Formula),
		zap.Error(err),
	)
	zero := 0.0
	breakdown := errorBreakdown
	rec.Result = &zero
	rec.Breakdown = &breakdown
}

// applyKeep produces the ordered per-die outcomes and the group's
// placeholder value for one group.
//
// keep-high/keep-low: dice are ranked by value, ties going to the earliest
// listed; the first KeepCount are kept, the rest marked discarded. The
// placeholder value is the sum of kept dice, with an expansion of the kept
// values only. average: every die participates in the mean and the
// expansion carries the raw member list.
func applyKeep(g notation.Group, values []int) ([]GroupResult, eval.Value) {
	kept := make([]bool, len(values))

	switch g.Keep {
	case notation.KeepHigh, notation.KeepLow:
		order := make([]int, len(values))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			if g.Keep == notation.KeepHigh {
				return values[order[a]] > values[order[b]]
			}
			return values[order[a]] < values[order[b]]
		})
		n := g.KeepCount
		if n > len(order) {
			n = len(order)
		}
		for _, idx := range order[:n] {
			kept[idx] = true
		}
	default:
		for i := range kept {
			kept[i] = true
		}
	}

	results := make([]GroupResult, len(values))
	for i, v := range values {
		results[i] = GroupResult{Value: float64(v), Kept: kept[i]}
	}

	return results, groupValue(g, results)
}

// groupValue builds the eval.Value bound to the group's placeholder.
func groupValue(g notation.Group, results []GroupResult) eval.Value {
	var num float64
	var expansion []eval.Value
	parts := make([]string, len(results))

	for i, res := range results {
		text := eval.FormatNumber(res.Value)
		if !res.Kept {
			parts[i] = "<del>" + text + "</del>"
			continue
		}
		parts[i] = text
		num += res.Value
		if g.Keep != notation.KeepAverage {
			expansion = append(expansion, eval.Value{Num: res.Value, Breakdown: text})
		}
	}

	if g.Keep == notation.KeepAverage {
		num /= float64(len(results))
		for _, res := range results {
			expansion = append(expansion, eval.Value{Num: res.Value, Breakdown: eval.FormatNumber(res.Value)})
		}
	}
	if g.Keep == notation.KeepNone {
		expansion = nil
	}

	breakdown := parts[0]
	if len(parts) > 1 {
		breakdown = "(" + strings.Join(parts, " + ") + ")"
	}
	return eval.Value{Num: num, Breakdown: breakdown, Expansion: expansion}
}
