package roll_test

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dicetray/internal/game/notation"
	"github.com/cory-johannsen/dicetray/internal/game/roll"
)

func newRecord(t *testing.T, seq *roll.Sequence, formula string) *roll.Record {
	t.Helper()
	c, err := notation.Compile(formula)
	require.NoError(t, err)
	return &roll.Record{
		ID:       seq.Next(),
		Formula:  c.Formula,
		Template: c.Template,
		Groups:   c.Groups,
	}
}

// TestResolver_KeepHighest covers the canonical scenario: "2d20kh1" with
// physical results [14, 9].
func TestResolver_KeepHighest(t *testing.T) {
	r := roll.NewResolver(zap.NewNop())
	rec := newRecord(t, roll.NewSequence(), "2d20kh1")

	r.Resolve(rec, [][]int{{14, 9}})

	require.True(t, rec.Resolved())
	assert.Equal(t, 14.0, *rec.Result)
	assert.Equal(t, "(14 + <del>9</del>)", *rec.Breakdown)
	require.Len(t, rec.GroupResults, 1)
	assert.Equal(t, []roll.GroupResult{{Value: 14, Kept: true}, {Value: 9, Kept: false}}, rec.GroupResults[0])
}

// TestResolver_TwoGroups covers "1d6 + 1d4" with results [3, 2].
func TestResolver_TwoGroups(t *testing.T) {
	r := roll.NewResolver(zap.NewNop())
	rec := newRecord(t, roll.NewSequence(), "1d6 + 1d4")

	r.Resolve(rec, [][]int{{3}, {2}})

	require.True(t, rec.Resolved())
	assert.Equal(t, 5.0, *rec.Result)
	assert.Equal(t, "3 + 2", *rec.Breakdown)
}

// TestResolver_KeepLow verifies keep-low ordering and that discarded dice
// stay in the breakdown.
func TestResolver_KeepLow(t *testing.T) {
	r := roll.NewResolver(zap.NewNop())
	rec := newRecord(t, roll.NewSequence(), "3d6kl2")

	r.Resolve(rec, [][]int{{5, 1, 3}})

	assert.Equal(t, 4.0, *rec.Result)
	assert.Equal(t, "(<del>5</del> + 1 + 3)", *rec.Breakdown)
}

// TestResolver_TiesKeepEarliest verifies equal values keep the earliest
// listed die.
func TestResolver_TiesKeepEarliest(t *testing.T) {
	r := roll.NewResolver(zap.NewNop())
	rec := newRecord(t, roll.NewSequence(), "3d6kh1")

	r.Resolve(rec, [][]int{{4, 4, 2}})

	require.Len(t, rec.GroupResults, 1)
	assert.True(t, rec.GroupResults[0][0].Kept, "the first of two tied dice must be kept")
	assert.False(t, rec.GroupResults[0][1].Kept)
	assert.False(t, rec.GroupResults[0][2].Kept)
}

// TestResolver_Average verifies the mean is exact before the global
// one-decimal rounding.
func TestResolver_Average(t *testing.T) {
	r := roll.NewResolver(zap.NewNop())
	rec := newRecord(t, roll.NewSequence(), "3d6ka")

	r.Resolve(rec, [][]int{{2, 3, 4}})

	assert.Equal(t, 3.0, *rec.Result)
	assert.Equal(t, "(2 + 3 + 4)", *rec.Breakdown)
	for _, gr := range rec.GroupResults[0] {
		assert.True(t, gr.Kept, "average groups have no discarded dice")
	}
}

// TestResolver_ExpansionSplice verifies an average group spliced into an
// outer max exercises each raw member, not the pre-averaged total.
func TestResolver_ExpansionSplice(t *testing.T) {
	r := roll.NewResolver(zap.NewNop())
	seq := roll.NewSequence()

	c, err := notation.Compile("avg(3d6)")
	require.NoError(t, err)
	rec := &roll.Record{
		ID:       seq.Next(),
		Formula:  "max(*avg(3d6))",
		Template: "max(*" + c.Template + ")",
		Groups:   c.Groups,
	}

	r.Resolve(rec, [][]int{{3, 4, 5}})

	assert.Equal(t, 5.0, *rec.Result, "splice must pick the highest raw member")
	assert.Equal(t, "max(<del>3</del>, <del>4</del>, 5)", *rec.Breakdown)
}

// TestResolver_KeepExpansionIsKeptOnly verifies kh groups splice only their
// kept dice into an outer function.
func TestResolver_KeepExpansionIsKeptOnly(t *testing.T) {
	r := roll.NewResolver(zap.NewNop())

	c, err := notation.Compile("3d6kh2")
	require.NoError(t, err)
	rec := &roll.Record{
		ID:       1,
		Formula:  "min(*3d6kh2)",
		Template: "min(*" + c.Template + ")",
		Groups:   c.Groups,
	}

	r.Resolve(rec, [][]int{{6, 1, 4}})

	assert.Equal(t, 4.0, *rec.Result, "the discarded 1 must not reach the outer min")
}

// TestResolver_Idempotent verifies resolving twice changes nothing.
func TestResolver_Idempotent(t *testing.T) {
	r := roll.NewResolver(zap.NewNop())
	rec := newRecord(t, roll.NewSequence(), "2d20kh1")

	r.Resolve(rec, [][]int{{14, 9}})
	first := *rec.Result
	firstBreakdown := *rec.Breakdown

	r.Resolve(rec, [][]int{{1, 2}})

	assert.Equal(t, first, *rec.Result, "a resolved record must not change")
	assert.Equal(t, firstBreakdown, *rec.Breakdown)
}

// TestResolver_ForceResolvesOnBadInput verifies malformed group results
// recover to the terminal 0/"Error" state instead of staying pending.
func TestResolver_ForceResolvesOnBadInput(t *testing.T) {
	r := roll.NewResolver(zap.NewNop())
	rec := newRecord(t, roll.NewSequence(), "2d20kh1")

	r.Resolve(rec, [][]int{{14}})

	require.True(t, rec.Resolved(), "a broken roll must still reach a terminal state")
	assert.Equal(t, 0.0, *rec.Result)
	assert.Equal(t, "Error", *rec.Breakdown)
}

// TestResolver_RoundTripDeterminism_Property verifies a fixed set of
// logical values always produces the same result and breakdown regardless
// of how the dice settled.
func TestResolver_RoundTripDeterminism_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		values := rapid.SliceOfN(rapid.IntRange(1, 20), 2, 8).Draw(rt, "values")
		keepCount := rapid.IntRange(1, len(values)).Draw(rt, "keepCount")

		formula := rapid.SampledFrom([]string{"kh", "kl"}).Draw(rt, "mod")
		c, err := notation.Compile(
			fmt.Sprintf("%dd20%s%d", len(values), formula, keepCount),
		)
		require.NoError(rt, err)

		logger := zap.NewNop()
		resolve := func() (float64, string) {
			rec := &roll.Record{ID: 1, Formula: c.Formula, Template: c.Template, Groups: c.Groups}
			roll.NewResolver(logger).Resolve(rec, [][]int{values})
			require.True(rt, rec.Resolved())
			return *rec.Result, *rec.Breakdown
		}

		v1, b1 := resolve()
		v2, b2 := resolve()
		assert.Equal(rt, v1, v2, "resolution must be deterministic")
		assert.Equal(rt, b1, b2)

		// Keep-subset correctness: the kept sum equals the sum of the
		// keepCount extreme values.
		sorted := append([]int(nil), values...)
		if formula == "kh" {
			sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
		} else {
			sort.Ints(sorted)
		}
		want := 0
		for _, v := range sorted[:keepCount] {
			want += v
		}
		assert.Equal(rt, float64(want), v1, "kept subset must be the %d extreme values", keepCount)
	})
}

// TestSequence_MonotonicIDs verifies IDs strictly increase and are never
// reused.
func TestSequence_MonotonicIDs(t *testing.T) {
	seq := roll.NewSequence()
	prev := int64(0)
	for i := 0; i < 100; i++ {
		id := seq.Next()
		assert.Greater(t, id, prev)
		prev = id
	}
}
