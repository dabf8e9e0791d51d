package dice_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dicetray/internal/game/dice"
)

// TestParseSides verifies that exactly the eight supported side counts are
// recognized.
func TestParseSides(t *testing.T) {
	for _, sides := range []int{2, 4, 6, 8, 10, 12, 20, 100} {
		typ, ok := dice.ParseSides(sides)
		require.True(t, ok, "sides %d must be recognized", sides)
		assert.Equal(t, sides, typ.Sides())
	}
	for _, sides := range []int{0, 1, 3, 5, 7, 9, 13, 30, 1000} {
		_, ok := dice.ParseSides(sides)
		assert.False(t, ok, "sides %d must not be recognized", sides)
	}
}

// TestType_PhysicalCount verifies the d100 maps to two physical dice and
// every other type to one.
func TestType_PhysicalCount(t *testing.T) {
	assert.Equal(t, 2, dice.D100.PhysicalCount())
	assert.Equal(t, []dice.Part{dice.PartTens, dice.PartUnits}, dice.D100.Parts())
	for _, typ := range []dice.Type{dice.D2, dice.D4, dice.D6, dice.D8, dice.D10, dice.D12, dice.D20} {
		assert.Equal(t, 1, typ.PhysicalCount(), "%s must be a single physical die", typ)
		assert.Equal(t, []dice.Part{dice.PartWhole}, typ.Parts())
	}
}

// TestLogicalValue_D100 verifies the percentile composition convention:
// tens=0,units=0 reads as 100, everything else as tens+units.
func TestLogicalValue_D100(t *testing.T) {
	cases := []struct {
		tens, units, want int
	}{
		{0, 0, 100},
		{30, 4, 34},
		{90, 0, 90},
		{0, 7, 7},
		{90, 9, 99},
		{10, 0, 10},
	}
	for _, tc := range cases {
		v, err := dice.LogicalValue(dice.D100, map[dice.Part]int{
			dice.PartTens:  tc.tens,
			dice.PartUnits: tc.units,
		})
		require.NoError(t, err)
		assert.Equal(t, tc.want, v, "tens=%d units=%d", tc.tens, tc.units)
	}
}

// TestLogicalValue_D10ZeroFace verifies the d10 zero-face convention.
func TestLogicalValue_D10ZeroFace(t *testing.T) {
	v, err := dice.LogicalValue(dice.D10, map[dice.Part]int{dice.PartWhole: 0})
	require.NoError(t, err)
	assert.Equal(t, 10, v, "a raw 0 face on a d10 must read as 10")

	v, err = dice.LogicalValue(dice.D10, map[dice.Part]int{dice.PartWhole: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

// TestLogicalValue_MissingPart verifies composition fails when a face is
// absent rather than producing a bogus value.
func TestLogicalValue_MissingPart(t *testing.T) {
	_, err := dice.LogicalValue(dice.D100, map[dice.Part]int{dice.PartTens: 30})
	assert.Error(t, err, "a d100 without a units face must not compose")

	_, err = dice.LogicalValue(dice.D6, nil)
	assert.Error(t, err)
}

// TestLogicalValue_D100_Property verifies every composable percentile pair
// lands in [1, 100].
func TestLogicalValue_D100_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tens := rapid.IntRange(0, 9).Draw(rt, "tens") * 10
		units := rapid.IntRange(0, 9).Draw(rt, "units")

		v, err := dice.LogicalValue(dice.D100, map[dice.Part]int{
			dice.PartTens:  tens,
			dice.PartUnits: units,
		})
		require.NoError(rt, err)
		assert.GreaterOrEqual(rt, v, 1, "logical d100 value must be at least 1")
		assert.LessOrEqual(rt, v, 100, "logical d100 value must be at most 100")
		if tens+units != 0 {
			assert.Equal(rt, tens+units, v)
		}
	})
}

// TestRegistry_Builtins verifies the built-in geometry registry covers all
// types with the documented raw face conventions.
func TestRegistry_Builtins(t *testing.T) {
	r := dice.NewRegistry()

	faces := r.Faces(dice.D20, dice.PartWhole)
	require.Len(t, faces, 20)
	assert.Equal(t, 1, faces[0])
	assert.Equal(t, 20, faces[19])

	faces = r.Faces(dice.D10, dice.PartWhole)
	require.Len(t, faces, 10)
	assert.Equal(t, 0, faces[0], "d10 geometry is stamped 0-9")

	tens := r.Faces(dice.D100, dice.PartTens)
	require.Len(t, tens, 10)
	assert.Equal(t, 0, tens[0])
	assert.Equal(t, 90, tens[9])

	units := r.Faces(dice.D100, dice.PartUnits)
	require.Len(t, units, 10)
	assert.Equal(t, 9, units[9])
}

// TestRegistry_LoadDefinitions verifies YAML overlays replace a built-in
// definition and reject malformed content.
func TestRegistry_LoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir+"/d6.yaml", `
dice:
  - sides: 6
    display_name: lucky cube
    parts:
      - role: whole
        faces: [1, 2, 3, 4, 5, 6]
`)

	r := dice.NewRegistry()
	n, err := r.LoadDefinitions(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	def, ok := r.Lookup(dice.D6)
	require.True(t, ok)
	assert.Equal(t, "lucky cube", def.DisplayName)
}

// TestRegistry_LoadDefinitions_RejectsBadSides verifies unsupported side
// counts fail the load.
func TestRegistry_LoadDefinitions_RejectsBadSides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir+"/d7.yaml", `
dice:
  - sides: 7
    parts:
      - role: whole
        faces: [1, 2, 3, 4, 5, 6, 7]
`)

	r := dice.NewRegistry()
	_, err := r.LoadDefinitions(dir)
	assert.Error(t, err, "7-sided dice are not part of the tray")
}

// TestRegistry_LoadDefinitions_RejectsMissingPart verifies a d100 overlay
// must define both percentile parts.
func TestRegistry_LoadDefinitions_RejectsMissingPart(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir+"/d100.yaml", `
dice:
  - sides: 100
    parts:
      - role: tens
        faces: [0, 10, 20, 30, 40, 50, 60, 70, 80, 90]
`)

	r := dice.NewRegistry()
	_, err := r.LoadDefinitions(dir)
	assert.Error(t, err)
}

// TestCryptoSource_Intn_InRange verifies the postcondition:
// every value returned by Intn(6) is in [0, 6).
func TestCryptoSource_Intn_InRange(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
}

// TestCryptoSource_Intn_PanicsOnZero verifies the precondition:
// Intn panics when called with n <= 0.
func TestCryptoSource_Intn_PanicsOnZero(t *testing.T) {
	src := dice.NewCryptoSource()
	assert.Panics(t, func() { src.Intn(0) })
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
