// Package physics provides the reference physics collaborator: a coarse
// kinematic simulation that tumbles thrown dice for a bounded number of
// steps and reads a face from the die's geometry when it comes to rest.
// It stands in for a full rigid-body backend behind the same interface.
package physics

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dicetray/internal/game/dice"
	"github.com/cory-johannsen/dicetray/internal/game/tray"
)

// ErrUnknownDie is returned when a spawn names a die part the registry has
// no geometry for.
var ErrUnknownDie = errors.New("physics: no geometry for die")

// Config tunes the simulation. Zero fields fall back to the listed
// defaults.
type Config struct {
	// TrayExtent is the half-width of the square throwing area (default 1.0).
	TrayExtent float64
	// MinSettleSteps and MaxSettleSteps bound how many steps a fresh throw
	// tumbles before resting (defaults 5 and 40).
	MinSettleSteps int
	MaxSettleSteps int
	// Damping is the per-step velocity decay factor in (0, 1) (default 0.9).
	Damping float64
}

func (c Config) withDefaults() Config {
	if c.TrayExtent <= 0 {
		c.TrayExtent = 1.0
	}
	if c.MinSettleSteps <= 0 {
		c.MinSettleSteps = 5
	}
	if c.MaxSettleSteps < c.MinSettleSteps {
		c.MaxSettleSteps = c.MinSettleSteps + 35
	}
	if c.Damping <= 0 || c.Damping >= 1 {
		c.Damping = 0.9
	}
	return c
}

type simDie struct {
	dieType   dice.Type
	part      dice.Part
	face      int
	kin       tray.Kinematics
	stepsLeft int
}

// Simulator is a World implementation driven by explicit Step calls. The
// face a die will show is drawn from its geometry at spawn time and
// revealed once the tumble completes.
type Simulator struct {
	logger   *zap.Logger
	registry *dice.Registry
	src      dice.Source
	cfg      Config

	mu   sync.Mutex
	dice map[tray.Handle]*simDie
}

// NewSimulator creates a Simulator reading geometry from registry and
// randomness from src.
//
// Precondition: registry, src, and logger must be non-nil.
func NewSimulator(registry *dice.Registry, src dice.Source, cfg Config, logger *zap.Logger) *Simulator {
	return &Simulator{
		logger:   logger,
		registry: registry,
		src:      src,
		cfg:      cfg.withDefaults(),
		dice:     make(map[tray.Handle]*simDie),
	}
}

// Spawn throws a new die. A nil kin gets a randomized throw from above the
// tray; a provided kin resumes the die mid-flight, or at rest when
// kin.Settled is set.
func (s *Simulator) Spawn(t dice.Type, part dice.Part, kin *tray.Kinematics) (tray.Handle, error) {
	faces := s.registry.Faces(t, part)
	if len(faces) == 0 {
		return tray.Handle{}, fmt.Errorf("%w: %s %s", ErrUnknownDie, t, part)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := &simDie{
		dieType: t,
		part:    part,
		face:    faces[s.src.Intn(len(faces))],
	}
	if kin != nil {
		d.kin = *kin
		if !kin.Settled {
			d.stepsLeft = s.cfg.MinSettleSteps + s.src.Intn(s.cfg.MaxSettleSteps-s.cfg.MinSettleSteps+1)
		}
	} else {
		d.kin = s.randomThrow()
		d.stepsLeft = s.cfg.MinSettleSteps + s.src.Intn(s.cfg.MaxSettleSteps-s.cfg.MinSettleSteps+1)
	}

	h := uuid.New()
	s.dice[h] = d
	s.logger.Debug("die thrown",
		zap.String("handle", h.String()),
		zap.String("die", t.String()),
		zap.String("part", part.String()),
		zap.Int("tumble_steps", d.stepsLeft),
	)
	return h, nil
}

// randomThrow places a die above a random tray spot with random spin.
func (s *Simulator) randomThrow() tray.Kinematics {
	kin := tray.Kinematics{
		Position: [3]float64{
			s.randUnit() * s.cfg.TrayExtent,
			1.0,
			s.randUnit() * s.cfg.TrayExtent,
		},
		Velocity:        [3]float64{s.randUnit(), -1.0, s.randUnit()},
		AngularVelocity: [3]float64{s.randUnit() * 10, s.randUnit() * 10, s.randUnit() * 10},
	}
	q := [4]float64{s.randUnit(), s.randUnit(), s.randUnit(), s.randUnit()}
	norm := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if norm == 0 {
		q = [4]float64{1, 0, 0, 0}
		norm = 1
	}
	for i := range q {
		q[i] /= norm
	}
	kin.Orientation = q
	return kin
}

// randUnit returns a pseudo-uniform value in [-1, 1].
func (s *Simulator) randUnit() float64 {
	return float64(s.src.Intn(2001)-1000) / 1000
}

// Step advances every in-flight die one simulation step: positions
// integrate, velocities decay, and dice whose tumble budget runs out come
// to rest and freeze.
func (s *Simulator) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for h, d := range s.dice {
		if d.stepsLeft == 0 {
			continue
		}
		for i := range d.kin.Position {
			d.kin.Position[i] += d.kin.Velocity[i] * 0.05
			d.kin.Velocity[i] *= s.cfg.Damping
			d.kin.AngularVelocity[i] *= s.cfg.Damping
		}
		// Walls keep dice inside the tray.
		for _, i := range []int{0, 2} {
			if d.kin.Position[i] > s.cfg.TrayExtent {
				d.kin.Position[i] = s.cfg.TrayExtent
				d.kin.Velocity[i] = -d.kin.Velocity[i]
			} else if d.kin.Position[i] < -s.cfg.TrayExtent {
				d.kin.Position[i] = -s.cfg.TrayExtent
				d.kin.Velocity[i] = -d.kin.Velocity[i]
			}
		}
		if d.kin.Position[1] < 0 {
			d.kin.Position[1] = 0
			d.kin.Velocity[1] = 0
		}

		d.stepsLeft--
		if d.stepsLeft == 0 {
			d.kin.Velocity = [3]float64{}
			d.kin.AngularVelocity = [3]float64{}
			d.kin.Settled = true
			s.logger.Debug("die settled",
				zap.String("handle", h.String()),
				zap.String("die", d.dieType.String()),
				zap.Int("face", d.face),
			)
		}
	}
}

// Remove retires a die. Unknown handles are ignored.
func (s *Simulator) Remove(h tray.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dice, h)
}

// IsSettled reports whether the die has come to rest.
func (s *Simulator) IsSettled(h tray.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dice[h]
	return ok && d.kin.Settled
}

// FaceValue returns the raw face of a rested die. ok is false while the
// die is still tumbling.
func (s *Simulator) FaceValue(h tray.Handle) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dice[h]
	if !ok || !d.kin.Settled {
		return 0, false
	}
	return d.face, true
}

// EscalateDamping halves a stuck die's remaining tumble budget so it is
// guaranteed to rest in finite simulated time.
func (s *Simulator) EscalateDamping(h tray.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dice[h]
	if !ok || d.stepsLeft == 0 {
		return
	}
	d.stepsLeft /= 2
	if d.stepsLeft == 0 {
		d.stepsLeft = 1
	}
}

// Kinematics returns the die's current physical state.
func (s *Simulator) Kinematics(h tray.Handle) (tray.Kinematics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dice[h]
	if !ok {
		return tray.Kinematics{}, false
	}
	return d.kin, true
}

// Count returns the number of live dice.
func (s *Simulator) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dice)
}
