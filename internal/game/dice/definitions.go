package dice

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PartFaces describes the raw faces stamped on one physical part of a die.
//
// Invariant: len(Faces) >= 2; Faces holds the raw values the geometry can
// report, before the logical conventions in LogicalValue are applied.
type PartFaces struct {
	Part  Part
	Faces []int
}

// Definition describes one die type as physical geometry: display name and
// the raw face set of each physical part.
type Definition struct {
	Type        Type
	DisplayName string
	Parts       []PartFaces
}

// Registry maps die types to their definitions.
//
// Invariant: every valid Type has an entry after NewRegistry.
type Registry struct {
	defs map[Type]Definition
}

// NewRegistry returns a Registry populated with the built-in definitions
// for all eight die types.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[Type]Definition)}
	for t := range sidesByType {
		r.defs[t] = builtinDefinition(t)
	}
	return r
}

// Lookup returns the definition for t.
//
// Postcondition: Returns (def, true) for every valid Type.
func (r *Registry) Lookup(t Type) (Definition, bool) {
	d, ok := r.defs[t]
	return d, ok
}

// Faces returns the raw face set for the given part of die type t.
//
// Postcondition: Returns a non-empty slice for every valid (t, part) pair,
// or nil when the pair is unknown.
func (r *Registry) Faces(t Type, part Part) []int {
	d, ok := r.defs[t]
	if !ok {
		return nil
	}
	for _, pf := range d.Parts {
		if pf.Part == part {
			return pf.Faces
		}
	}
	return nil
}

// builtinDefinition constructs the default geometry for t.
//
// Raw face conventions: a d10 (and the percentile units die) is stamped
// 0-9, the percentile tens die 00-90, all other dice 1-N.
func builtinDefinition(t Type) Definition {
	switch t {
	case D100:
		return Definition{
			Type:        t,
			DisplayName: "percentile",
			Parts: []PartFaces{
				{Part: PartTens, Faces: rangeFaces(0, 90, 10)},
				{Part: PartUnits, Faces: rangeFaces(0, 9, 1)},
			},
		}
	case D10:
		return Definition{
			Type:        t,
			DisplayName: "d10",
			Parts:       []PartFaces{{Part: PartWhole, Faces: rangeFaces(0, 9, 1)}},
		}
	default:
		return Definition{
			Type:        t,
			DisplayName: t.String(),
			Parts:       []PartFaces{{Part: PartWhole, Faces: rangeFaces(1, t.Sides(), 1)}},
		}
	}
}

func rangeFaces(lo, hi, step int) []int {
	var faces []int
	for f := lo; f <= hi; f += step {
		faces = append(faces, f)
	}
	return faces
}

// yamlDieFile is the top-level YAML structure for die definition files.
type yamlDieFile struct {
	Dice []yamlDie `yaml:"dice"`
}

// yamlDie is the YAML representation of one die definition.
type yamlDie struct {
	Sides       int        `yaml:"sides"`
	DisplayName string     `yaml:"display_name"`
	Parts       []yamlPart `yaml:"parts"`
}

// yamlPart is the YAML representation of one physical part.
type yamlPart struct {
	Role  string `yaml:"role"`
	Faces []int  `yaml:"faces"`
}

// LoadDefinitions overlays die definitions from all YAML files in dir onto
// the registry. Unknown side counts and malformed parts are rejected.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the number of definitions applied, or the first
// error encountered.
func (r *Registry) LoadDefinitions(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading die definitions dir %s: %w", dir, err)
	}

	applied := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return applied, fmt.Errorf("reading die definition file %s: %w", name, err)
		}
		n, err := r.applyBytes(data)
		if err != nil {
			return applied, fmt.Errorf("parsing die definition file %s: %w", name, err)
		}
		applied += n
	}
	return applied, nil
}

// applyBytes parses YAML die definitions and applies them to the registry.
func (r *Registry) applyBytes(data []byte) (int, error) {
	var file yamlDieFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parsing die YAML: %w", err)
	}

	applied := 0
	for _, yd := range file.Dice {
		t, ok := ParseSides(yd.Sides)
		if !ok {
			return applied, fmt.Errorf("unsupported die sides %d", yd.Sides)
		}
		def := Definition{Type: t, DisplayName: yd.DisplayName}
		if def.DisplayName == "" {
			def.DisplayName = t.String()
		}
		for _, yp := range yd.Parts {
			part, err := parsePartRole(yp.Role)
			if err != nil {
				return applied, err
			}
			if len(yp.Faces) < 2 {
				return applied, fmt.Errorf("die %s part %q must define at least 2 faces", t, yp.Role)
			}
			def.Parts = append(def.Parts, PartFaces{Part: part, Faces: yp.Faces})
		}
		if err := validateParts(t, def.Parts); err != nil {
			return applied, err
		}
		r.defs[t] = def
		applied++
	}
	return applied, nil
}

func parsePartRole(role string) (Part, error) {
	switch role {
	case "", "whole":
		return PartWhole, nil
	case "tens":
		return PartTens, nil
	case "units":
		return PartUnits, nil
	default:
		return PartWhole, fmt.Errorf("unknown die part role %q", role)
	}
}

// validateParts checks that defined parts match the physical composition of t.
func validateParts(t Type, parts []PartFaces) error {
	want := t.Parts()
	if len(parts) != len(want) {
		return fmt.Errorf("die %s requires %d part(s), got %d", t, len(want), len(parts))
	}
	seen := make(map[Part]bool, len(parts))
	for _, pf := range parts {
		seen[pf.Part] = true
	}
	for _, p := range want {
		if !seen[p] {
			return fmt.Errorf("die %s missing part %q", t, p)
		}
	}
	return nil
}
