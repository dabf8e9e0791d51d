package physics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dicetray/internal/game/dice"
	"github.com/cory-johannsen/dicetray/internal/game/physics"
	"github.com/cory-johannsen/dicetray/internal/game/tray"
)

func newSim(t *testing.T, cfg physics.Config) *physics.Simulator {
	t.Helper()
	return physics.NewSimulator(dice.NewRegistry(), dice.NewCryptoSource(), cfg, zap.NewNop())
}

// stepUntilSettled bounds the test against a simulator that never rests.
func stepUntilSettled(t *testing.T, sim *physics.Simulator, h tray.Handle, maxSteps int) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		if sim.IsSettled(h) {
			return
		}
		sim.Step()
	}
	t.Fatalf("die did not settle within %d steps", maxSteps)
}

func TestSimulator_DieSettlesWithValidFace(t *testing.T) {
	sim := newSim(t, physics.Config{MinSettleSteps: 2, MaxSettleSteps: 10})

	h, err := sim.Spawn(dice.D20, dice.PartWhole, nil)
	require.NoError(t, err)

	_, ok := sim.FaceValue(h)
	assert.False(t, ok, "a tumbling die has no readable face")

	stepUntilSettled(t, sim, h, 20)

	face, ok := sim.FaceValue(h)
	require.True(t, ok)
	assert.GreaterOrEqual(t, face, 1)
	assert.LessOrEqual(t, face, 20)
}

func TestSimulator_PercentilePartsUseDistinctFaceSets(t *testing.T) {
	sim := newSim(t, physics.Config{MinSettleSteps: 1, MaxSettleSteps: 3})

	tens, err := sim.Spawn(dice.D100, dice.PartTens, nil)
	require.NoError(t, err)
	units, err := sim.Spawn(dice.D100, dice.PartUnits, nil)
	require.NoError(t, err)

	stepUntilSettled(t, sim, tens, 10)
	stepUntilSettled(t, sim, units, 10)

	tf, ok := sim.FaceValue(tens)
	require.True(t, ok)
	assert.Zero(t, tf%10, "tens faces are multiples of ten")
	assert.LessOrEqual(t, tf, 90)

	uf, ok := sim.FaceValue(units)
	require.True(t, ok)
	assert.GreaterOrEqual(t, uf, 0)
	assert.LessOrEqual(t, uf, 9)
}

func TestSimulator_ResumeSettledDie(t *testing.T) {
	sim := newSim(t, physics.Config{})

	kin := tray.Kinematics{Position: [3]float64{0.5, 0, 0.5}, Settled: true}
	h, err := sim.Spawn(dice.D6, dice.PartWhole, &kin)
	require.NoError(t, err)

	assert.True(t, sim.IsSettled(h), "a resumed rested die needs no tumble")
	got, ok := sim.Kinematics(h)
	require.True(t, ok)
	assert.Equal(t, kin.Position, got.Position)
}

func TestSimulator_EscalatedDampingForcesRest(t *testing.T) {
	sim := newSim(t, physics.Config{MinSettleSteps: 1000, MaxSettleSteps: 1000})

	h, err := sim.Spawn(dice.D6, dice.PartWhole, nil)
	require.NoError(t, err)

	// Repeated escalation must beat any tumble budget.
	for i := 0; i < 12 && !sim.IsSettled(h); i++ {
		sim.EscalateDamping(h)
		sim.Step()
	}
	assert.True(t, sim.IsSettled(h))
}

func TestSimulator_RemoveForgetsDie(t *testing.T) {
	sim := newSim(t, physics.Config{})

	h, err := sim.Spawn(dice.D6, dice.PartWhole, nil)
	require.NoError(t, err)
	require.Equal(t, 1, sim.Count())

	sim.Remove(h)

	assert.Zero(t, sim.Count())
	assert.False(t, sim.IsSettled(h))
	_, ok := sim.FaceValue(h)
	assert.False(t, ok)
}

func TestSimulator_DiceStayInsideTray(t *testing.T) {
	sim := newSim(t, physics.Config{TrayExtent: 0.5, MinSettleSteps: 30, MaxSettleSteps: 60})

	h, err := sim.Spawn(dice.D8, dice.PartWhole, nil)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		sim.Step()
		kin, ok := sim.Kinematics(h)
		require.True(t, ok)
		assert.LessOrEqual(t, kin.Position[0], 0.5)
		assert.GreaterOrEqual(t, kin.Position[0], -0.5)
		assert.LessOrEqual(t, kin.Position[2], 0.5)
		assert.GreaterOrEqual(t, kin.Position[2], -0.5)
		assert.GreaterOrEqual(t, kin.Position[1], 0.0)
	}
}

// TestSimulator_FaceAlwaysFromGeometry_Property spawns arbitrary die parts
// and checks every settled face is one the geometry defines.
func TestSimulator_FaceAlwaysFromGeometry_Property(t *testing.T) {
	registry := dice.NewRegistry()
	rapid.Check(t, func(rt *rapid.T) {
		dieType := rapid.SampledFrom([]dice.Type{
			dice.D2, dice.D4, dice.D6, dice.D8, dice.D10, dice.D12, dice.D20,
		}).Draw(rt, "type")

		sim := physics.NewSimulator(registry, dice.NewCryptoSource(), physics.Config{
			MinSettleSteps: 1,
			MaxSettleSteps: 2,
		}, zap.NewNop())

		h, err := sim.Spawn(dieType, dice.PartWhole, nil)
		require.NoError(rt, err)
		sim.Step()
		sim.Step()

		face, ok := sim.FaceValue(h)
		require.True(rt, ok)
		assert.Contains(rt, registry.Faces(dieType, dice.PartWhole), face)
	})
}
