// Package dice defines the die types thrown into the tray, the face-value
// conventions used to read a settled die, and the randomness abstraction
// shared by the throw scheduler and the reference physics simulator.
package dice

import "fmt"

// Type is an enumerated die type. The zero value is invalid.
type Type int

const (
	TypeInvalid Type = iota
	D2
	D4
	D6
	D8
	D10
	D12
	D20
	D100
)

// sidesByType maps each Type to its user-facing side count.
var sidesByType = map[Type]int{
	D2:   2,
	D4:   4,
	D6:   6,
	D8:   8,
	D10:  10,
	D12:  12,
	D20:  20,
	D100: 100,
}

// ParseSides returns the Type for a user-facing side count.
//
// Postcondition: Returns (type, true) iff sides is one of 2, 4, 6, 8, 10,
// 12, 20, 100.
func ParseSides(sides int) (Type, bool) {
	for t, s := range sidesByType {
		if s == sides {
			return t, true
		}
	}
	return TypeInvalid, false
}

// Sides returns the user-facing side count for t.
//
// Precondition: t must be a valid Type.
func (t Type) Sides() int {
	s, ok := sidesByType[t]
	if !ok {
		panic(fmt.Sprintf("dice: Sides called on invalid Type %d", int(t)))
	}
	return s
}

// String returns the notation name of the type, e.g. "d20".
func (t Type) String() string {
	s, ok := sidesByType[t]
	if !ok {
		return "d?"
	}
	return fmt.Sprintf("d%d", s)
}

// PhysicalCount returns how many physical dice one logical die of this type
// requires. A d100 is composite: one tens die plus one units die.
//
// Postcondition: Returns 2 for D100, 1 otherwise.
func (t Type) PhysicalCount() int {
	if t == D100 {
		return 2
	}
	return 1
}

// Part identifies the role of one physical die within a logical die.
type Part int

const (
	// PartWhole is the single physical die of a non-composite logical die.
	PartWhole Part = iota
	// PartTens is the percentile tens die of a d100 (faces 0, 10, ... 90).
	PartTens
	// PartUnits is the percentile units die of a d100 (faces 0-9).
	PartUnits
)

// String returns the part name for logging.
func (p Part) String() string {
	switch p {
	case PartTens:
		return "tens"
	case PartUnits:
		return "units"
	default:
		return "whole"
	}
}

// Parts returns the ordered physical parts a logical die of type t is
// composed of.
func (t Type) Parts() []Part {
	if t == D100 {
		return []Part{PartTens, PartUnits}
	}
	return []Part{PartWhole}
}

// LogicalValue combines the raw faces of one logical die into its result.
//
// Conventions: a d10 raw face of 0 reads as 10; a d100 is tens+units, with
// the all-zero pair reading as 100 rather than 0.
//
// Precondition: faces must hold an entry for every part of t.
// Postcondition: Returns a value in [1, t.Sides()].
func LogicalValue(t Type, faces map[Part]int) (int, error) {
	if t == D100 {
		tens, ok := faces[PartTens]
		if !ok {
			return 0, fmt.Errorf("dice: d100 missing tens face")
		}
		units, ok := faces[PartUnits]
		if !ok {
			return 0, fmt.Errorf("dice: d100 missing units face")
		}
		sum := tens + units
		if sum == 0 {
			return 100, nil
		}
		return sum, nil
	}

	face, ok := faces[PartWhole]
	if !ok {
		return 0, fmt.Errorf("dice: %s missing face", t)
	}
	if t == D10 && face == 0 {
		return 10, nil
	}
	return face, nil
}
