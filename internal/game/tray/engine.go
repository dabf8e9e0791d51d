package tray

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dicetray/internal/game/dice"
	"github.com/cory-johannsen/dicetray/internal/game/notation"
	"github.com/cory-johannsen/dicetray/internal/game/roll"
)

// ErrCapacity is returned when a roll needs more physical dice than the
// tray can ever hold. Rolls that merely exceed the remaining room evict
// older rolls instead.
var ErrCapacity = errors.New("tray: requested dice exceed tray capacity")

// Config tunes the engine. Zero fields fall back to the listed defaults.
type Config struct {
	// MaxPhysicalDice caps live physical dice across all rolls (default 64).
	MaxPhysicalDice int
	// SpawnStagger is the base delay between consecutive die throws of one
	// roll (default 150ms).
	SpawnStagger time.Duration
	// SpawnJitter is the maximum random extra delay per throw (default 50ms).
	SpawnJitter time.Duration
	// SettleTicks is how many consecutive settled polls a die needs before
	// it counts as settled (default 1).
	SettleTicks int
	// MaxAwakeTicks is the awake-duration threshold after which damping is
	// escalated on a stuck die (default 600).
	MaxAwakeTicks int
}

func (c Config) withDefaults() Config {
	if c.MaxPhysicalDice <= 0 {
		c.MaxPhysicalDice = 64
	}
	if c.SpawnStagger <= 0 {
		c.SpawnStagger = 150 * time.Millisecond
	}
	if c.SpawnJitter < 0 {
		c.SpawnJitter = 0
	} else if c.SpawnJitter == 0 {
		c.SpawnJitter = 50 * time.Millisecond
	}
	if c.SettleTicks <= 0 {
		c.SettleTicks = 1
	}
	if c.MaxAwakeTicks <= 0 {
		c.MaxAwakeTicks = 600
	}
	return c
}

// trackedDie is the engine's view of one spawned physical die.
//
// State machine: in-flight → settled; a die may wake and re-enter
// in-flight any number of times until its roll resolves.
type trackedDie struct {
	handle       Handle
	dieType      dice.Type
	part         dice.Part
	groupIndex   int
	logicalIndex int
	face         int
	hasFace      bool
	settled      bool
	stableTicks  int
	awakeTicks   int
}

// activeRoll pairs a record with its tracked physical dice.
//
// Invariant: len(dice) <= expected; resolution is attempted only when they
// are equal and every die is settled.
type activeRoll struct {
	record   *roll.Record
	expected int
	dice     []*trackedDie
}

// pendingSpawn is one deferred die throw.
type pendingSpawn struct {
	rollID       int64
	dieType      dice.Type
	part         dice.Part
	groupIndex   int
	logicalIndex int
	readyAt      time.Time
}

// Engine drives the tray: admission, staggered spawning, settlement
// polling, and exactly-once resolution. All methods are safe for
// concurrent use, though ticks are expected from a single goroutine.
type Engine struct {
	logger   *zap.Logger
	world    World
	seq      *roll.Sequence
	resolver *roll.Resolver
	src      dice.Source
	cfg      Config

	mu        sync.Mutex
	rolls     map[int64]*activeRoll
	order     []int64 // admission order, oldest first
	pending   []pendingSpawn
	watermark int64 // highest canceled roll id
	observers []func(*roll.Record)
}

// NewEngine creates an Engine over the given physics world.
//
// Precondition: world, seq, resolver, src, and logger must be non-nil.
func NewEngine(world World, seq *roll.Sequence, resolver *roll.Resolver, src dice.Source, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		logger:   logger,
		world:    world,
		seq:      seq,
		resolver: resolver,
		src:      src,
		cfg:      cfg.withDefaults(),
		rolls:    make(map[int64]*activeRoll),
	}
}

// OnRollResolved registers an observer fired exactly once per resolved
// record, after the resolving tick completes.
//
// Precondition: fn must be non-nil. Observers must be registered before
// ticking starts.
func (e *Engine) OnRollResolved(fn func(*roll.Record)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// BeginRoll admits a compiled formula: creates the pending record, evicts
// the oldest rolls if the tray is full, and schedules every physical die
// with a staggered randomized delay.
//
// Postcondition: Returns a pending Record registered for tracking, or
// ErrCapacity when the roll alone exceeds the tray cap (nothing is evicted
// in that case).
func (e *Engine) BeginRoll(now time.Time, c notation.Compiled) (*roll.Record, error) {
	expected := c.PhysicalDice()

	e.mu.Lock()
	defer e.mu.Unlock()

	if expected > e.cfg.MaxPhysicalDice {
		return nil, fmt.Errorf("%w: %d dice, cap %d", ErrCapacity, expected, e.cfg.MaxPhysicalDice)
	}

	// Whole-roll eviction, oldest first, until the new roll fits.
	for e.liveDiceLocked()+expected > e.cfg.MaxPhysicalDice && len(e.order) > 0 {
		evicted := e.order[0]
		e.cancelLocked(evicted)
		e.logger.Info("evicted oldest roll for capacity",
			zap.Int64("roll_id", evicted),
			zap.Int("incoming_dice", expected),
		)
	}

	rec := &roll.Record{
		ID:        e.seq.Next(),
		Formula:   c.Formula,
		Template:  c.Template,
		Groups:    c.Groups,
		CreatedAt: now,
	}
	e.rolls[rec.ID] = &activeRoll{record: rec, expected: expected}
	e.order = append(e.order, rec.ID)

	throw := 0
	for gi, g := range c.Groups {
		for li := 0; li < g.Count; li++ {
			for _, part := range g.Type.Parts() {
				e.pending = append(e.pending, pendingSpawn{
					rollID:       rec.ID,
					dieType:      g.Type,
					part:         part,
					groupIndex:   gi,
					logicalIndex: li,
					readyAt:      now.Add(e.throwDelay(throw)),
				})
				throw++
			}
		}
	}

	e.logger.Info("roll admitted",
		zap.Int64("roll_id", rec.ID),
		zap.String("formula", rec.Formula),
		zap.Int("physical_dice", expected),
	)
	return rec, nil
}

// throwDelay computes the staggered delay of the nth die of a roll.
func (e *Engine) throwDelay(n int) time.Duration {
	delay := e.cfg.SpawnStagger * time.Duration(n)
	if e.cfg.SpawnJitter > 0 {
		jitterMs := int(e.cfg.SpawnJitter / time.Millisecond)
		if jitterMs > 0 {
			delay += time.Duration(e.src.Intn(jitterMs+1)) * time.Millisecond
		}
	}
	return delay
}

// liveDiceLocked counts spawned plus still-scheduled dice of live rolls.
func (e *Engine) liveDiceLocked() int {
	n := len(e.pending)
	for _, ar := range e.rolls {
		n += len(ar.dice)
	}
	return n
}

// CancelRoll abandons a roll: its scheduled spawns become no-ops, its live
// dice are removed from the world, and it is dropped from tracking without
// resolving. Unknown ids are ignored.
//
// Postcondition: Returns true iff the roll was being tracked.
func (e *Engine) CancelRoll(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rolls[id]; !ok {
		return false
	}
	e.cancelLocked(id)
	e.logger.Info("roll canceled", zap.Int64("roll_id", id))
	return true
}

// ClearTray cancels every tracked roll, oldest first.
func (e *Engine) ClearTray() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.order) > 0 {
		e.cancelLocked(e.order[0])
	}
	e.logger.Info("tray cleared")
}

// cancelLocked removes one roll atomically: never some of its dice.
func (e *Engine) cancelLocked(id int64) {
	ar, ok := e.rolls[id]
	if !ok {
		return
	}

	remaining := e.pending[:0]
	for _, sp := range e.pending {
		if sp.rollID != id {
			remaining = append(remaining, sp)
		}
	}
	e.pending = remaining

	for _, d := range ar.dice {
		e.world.Remove(d.handle)
	}

	delete(e.rolls, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	if id > e.watermark {
		e.watermark = id
	}
}

// Tick advances the engine one simulation step: fires due spawns, polls
// every tracked die, and resolves rolls whose dice have all settled.
// Observers run after the tick's state changes are complete.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	e.fireSpawnsLocked(now)
	resolved := e.pollLocked()
	observers := e.observers
	e.mu.Unlock()

	for _, rec := range resolved {
		for _, fn := range observers {
			fn(rec)
		}
	}
}

// fireSpawnsLocked spawns every due die. Spawns for canceled or pruned
// rolls are silently dropped.
func (e *Engine) fireSpawnsLocked(now time.Time) {
	var future []pendingSpawn
	var ready []pendingSpawn
	for _, sp := range e.pending {
		if sp.readyAt.After(now) {
			future = append(future, sp)
		} else {
			ready = append(ready, sp)
		}
	}
	e.pending = future

	for _, sp := range ready {
		ar, ok := e.rolls[sp.rollID]
		if !ok {
			if sp.rollID <= e.watermark {
				e.logger.Debug("suppressed spawn for canceled roll", zap.Int64("roll_id", sp.rollID))
			} else {
				e.logger.Debug("suppressed spawn for pruned roll", zap.Int64("roll_id", sp.rollID))
			}
			continue
		}

		handle, err := e.world.Spawn(sp.dieType, sp.part, nil)
		if err != nil {
			// A roll missing a die can never resolve; abandon it whole.
			e.logger.Error("spawn failed, abandoning roll",
				zap.Int64("roll_id", sp.rollID),
				zap.Error(err),
			)
			e.cancelLocked(sp.rollID)
			continue
		}
		ar.dice = append(ar.dice, &trackedDie{
			handle:       handle,
			dieType:      sp.dieType,
			part:         sp.part,
			groupIndex:   sp.groupIndex,
			logicalIndex: sp.logicalIndex,
		})
	}
}

// pollLocked updates every tracked die's settlement state and returns the
// records resolved this tick.
func (e *Engine) pollLocked() []*roll.Record {
	var resolved []*roll.Record

	for _, id := range e.order {
		ar := e.rolls[id]
		if ar.record.Resolved() {
			continue
		}

		for _, d := range ar.dice {
			if e.world.IsSettled(d.handle) {
				if face, ok := e.world.FaceValue(d.handle); ok {
					d.face = face
					d.hasFace = true
				}
				d.stableTicks++
				if d.stableTicks >= e.cfg.SettleTicks {
					d.settled = true
				}
				continue
			}

			// The die was disturbed; it re-enters in-flight until the roll
			// resolves.
			d.stableTicks = 0
			d.settled = false
			d.awakeTicks++
			if d.awakeTicks >= e.cfg.MaxAwakeTicks {
				if damper, ok := e.world.(Damper); ok {
					damper.EscalateDamping(d.handle)
					e.logger.Debug("escalated damping on stuck die",
						zap.Int64("roll_id", id),
						zap.String("handle", d.handle.String()),
					)
				}
			}
		}

		if e.rollCompleteLocked(ar) {
			e.resolver.Resolve(ar.record, e.composeLocked(ar))
			resolved = append(resolved, ar.record)
			e.logger.Info("roll settled",
				zap.Int64("roll_id", id),
				zap.String("formula", ar.record.Formula),
				zap.Float64("result", *ar.record.Result),
				zap.String("breakdown", *ar.record.Breakdown),
			)
		}
	}
	return resolved
}

// rollCompleteLocked reports whether every expected die has spawned,
// settled, and shown a readable face.
func (e *Engine) rollCompleteLocked(ar *activeRoll) bool {
	if len(ar.dice) != ar.expected {
		return false
	}
	for _, d := range ar.dice {
		if !d.settled || !d.hasFace {
			return false
		}
	}
	return true
}

// composeLocked groups settled faces by (group, logical die) and combines
// composite dice into their logical values.
func (e *Engine) composeLocked(ar *activeRoll) [][]int {
	faces := make(map[int]map[int]map[dice.Part]int)
	for _, d := range ar.dice {
		if faces[d.groupIndex] == nil {
			faces[d.groupIndex] = make(map[int]map[dice.Part]int)
		}
		if faces[d.groupIndex][d.logicalIndex] == nil {
			faces[d.groupIndex][d.logicalIndex] = make(map[dice.Part]int)
		}
		faces[d.groupIndex][d.logicalIndex][d.part] = d.face
	}

	logical := make([][]int, len(ar.record.Groups))
	for gi, g := range ar.record.Groups {
		logical[gi] = make([]int, g.Count)
		for li := 0; li < g.Count; li++ {
			v, err := dice.LogicalValue(g.Type, faces[gi][li])
			if err != nil {
				e.logger.Warn("incomplete logical die, reading as 0",
					zap.Int64("roll_id", ar.record.ID),
					zap.Int("group", gi),
					zap.Int("die", li),
					zap.Error(err),
				)
				v = 0
			}
			logical[gi][li] = v
		}
	}
	return logical
}

// ActiveRolls returns the tracked records in admission order, resolved and
// pending alike.
func (e *Engine) ActiveRolls() []*roll.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*roll.Record, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.rolls[id].record)
	}
	return out
}

// LiveDice returns the number of spawned plus scheduled physical dice.
func (e *Engine) LiveDice() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.liveDiceLocked()
}

// DieSnapshot is the persisted physical state of one tracked die.
type DieSnapshot struct {
	Type         dice.Type
	Part         dice.Part
	GroupIndex   int
	LogicalIndex int
	Face         int
	Settled      bool
	Kinematics   Kinematics
}

// Snapshot captures a roll and its physical dice for persistence, with
// enough kinematic state to resume simulation without discontinuity.
type Snapshot struct {
	Record *roll.Record
	Dice   []DieSnapshot
}

// Snapshot returns the persistable state of one tracked roll. Kinematics
// are filled only when the world implements KinematicsReader.
func (e *Engine) Snapshot(id int64) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ar, ok := e.rolls[id]
	if !ok {
		return Snapshot{}, false
	}

	reader, _ := e.world.(KinematicsReader)
	snap := Snapshot{Record: ar.record}
	for _, d := range ar.dice {
		ds := DieSnapshot{
			Type:         d.dieType,
			Part:         d.part,
			GroupIndex:   d.groupIndex,
			LogicalIndex: d.logicalIndex,
			Face:         d.face,
			Settled:      d.settled,
		}
		if reader != nil {
			if kin, ok := reader.Kinematics(d.handle); ok {
				ds.Kinematics = kin
			}
		}
		snap.Dice = append(snap.Dice, ds)
	}
	return snap, true
}
