// Package roll holds the data model for one in-flight or completed roll and
// the resolver that turns settled logical die values into a final result
// plus breakdown.
package roll

import (
	"sync"
	"time"

	"github.com/cory-johannsen/dicetray/internal/game/notation"
)

// GroupResult is one logical die's contribution to its group.
type GroupResult struct {
	// Value is the logical die value after face composition.
	Value float64
	// Kept is false for dice discarded by a keep-modifier. Discarded dice
	// are never removed; they still appear struck through in the breakdown.
	Kept bool
}

// Record is the aggregate root of one roll.
//
// Lifecycle: created pending at compile time; resolved exactly once when
// every physical die has settled; never transitions back. A record may
// instead be abandoned: dropped from tracking without ever resolving.
//
// Invariant: Result and Breakdown are nil while pending and both non-nil
// once resolved. GroupResults is populated exactly once, at resolution.
type Record struct {
	// ID is unique per process lifetime and never reused, even after
	// cancellation.
	ID int64
	// Formula is the original user text, preserved for re-roll and display.
	Formula string
	// Template is the formula with dice group n replaced by "__G{n}__".
	Template string
	// Groups is ordered by placeholder index and never mutated.
	Groups []notation.Group
	// GroupResults holds the per-group ordered die outcomes once resolved.
	GroupResults [][]GroupResult
	// Result is nil while the roll is pending.
	Result *float64
	// Breakdown mirrors Result's lifecycle.
	Breakdown *string
	// CreatedAt is when the roll was admitted.
	CreatedAt time.Time
}

// Resolved reports whether the record has reached its terminal state.
func (r *Record) Resolved() bool {
	return r.Result != nil
}

// Sequence issues monotonically increasing roll IDs. It is injected into
// the engine rather than living in a package-level variable so tests can
// own their own counter.
//
// Invariant: IDs are unique per Sequence and strictly increasing.
type Sequence struct {
	mu   sync.Mutex
	next int64
}

// NewSequence returns a Sequence starting at 1.
func NewSequence() *Sequence {
	return &Sequence{next: 1}
}

// Next returns the next ID.
//
// Postcondition: Every call returns a value strictly greater than all
// previous calls on the same Sequence.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	return id
}

// Advance moves the sequence past id so future IDs are strictly greater.
// Called at startup with the highest persisted roll id.
func (s *Sequence) Advance(past int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if past >= s.next {
		s.next = past + 1
	}
}
