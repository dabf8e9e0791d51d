// Package tray tracks the physical dice of in-flight rolls: staggered
// spawning, per-tick settlement polling, cancellation, capacity eviction,
// and exactly-once resolution of each roll record.
package tray

import (
	"github.com/google/uuid"

	"github.com/cory-johannsen/dicetray/internal/game/dice"
)

// Handle identifies one physical die owned by the physics collaborator.
type Handle = uuid.UUID

// Kinematics is the physical state of one die, sufficient to resume a
// simulation without visible discontinuity.
type Kinematics struct {
	Position        [3]float64
	Orientation     [4]float64 // quaternion
	Velocity        [3]float64
	AngularVelocity [3]float64
	Settled         bool
}

// World is the physics collaborator: the tray engine only ever spawns,
// removes, and observes dice through this interface. Rendering, rigid-body
// dynamics, and geometry live behind it.
//
// All methods are called from the single tick goroutine; implementations
// need not be safe for concurrent use by the engine.
type World interface {
	// Spawn requests a new physical die. A nil kinematics asks the world to
	// pick a throw. Returns an opaque handle for the die's lifetime.
	Spawn(t dice.Type, part dice.Part, kin *Kinematics) (Handle, error)

	// Remove retires a handle immediately.
	Remove(h Handle)

	// IsSettled reports whether the die has stopped moving (velocities
	// below threshold or explicitly asleep).
	IsSettled(h Handle) bool

	// FaceValue returns the raw face the die currently shows. ok is false
	// until the first orientation can be evaluated.
	FaceValue(h Handle) (face int, ok bool)
}

// Damper is optionally implemented by a World to support the stuck-die
// policy: the engine escalates damping on dice that stay awake past the
// configured threshold so settlement is guaranteed in finite simulated
// time.
type Damper interface {
	EscalateDamping(h Handle)
}

// KinematicsReader is optionally implemented by a World that can report a
// die's physical state for persistence snapshots.
type KinematicsReader interface {
	Kinematics(h Handle) (Kinematics, bool)
}
