// Package structure holds the per-replica atomic structure record exchanged
// between a session and its driver.
package structure

import (
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("structure: malformed")

// Cell is an orthorhombic box given by its edge lengths. A zero edge means
// the structure is not periodic along that axis.
type Cell [3]float64

func (c Cell) Periodic() bool {
	return c[0] > 0 || c[1] > 0 || c[2] > 0
}

// Structure is one atomic configuration. Positions and Velocities are flat
// 3N slices; Velocities may be empty.
type Structure struct {
	Label      string    `json:"label"`
	Species    []string  `json:"species"`
	Positions  []float64 `json:"positions"`
	Velocities []float64 `json:"velocities,omitempty"`
	Masses     []float64 `json:"masses,omitempty"`
	Cell       Cell      `json:"cell"`
}

func (s Structure) NAtoms() int { return len(s.Species) }

func (s Structure) Clone() Structure {
	c := Structure{Label: s.Label, Cell: s.Cell}
	c.Species = append([]string(nil), s.Species...)
	c.Positions = append([]float64(nil), s.Positions...)
	if len(s.Velocities) > 0 {
		c.Velocities = append([]float64(nil), s.Velocities...)
	}
	c.Masses = append([]float64(nil), s.Masses...)
	return c
}

// Validate checks that the per-atom slices agree with the species count.
func (s Structure) Validate() error {
	n := s.NAtoms()
	if n == 0 {
		return fmt.Errorf("%w: no atoms", ErrMalformed)
	}
	if len(s.Positions) != 3*n {
		return fmt.Errorf("%w: %d atoms but %d position components", ErrMalformed, n, len(s.Positions))
	}
	if len(s.Velocities) != 0 && len(s.Velocities) != 3*n {
		return fmt.Errorf("%w: %d atoms but %d velocity components", ErrMalformed, n, len(s.Velocities))
	}
	if len(s.Masses) != 0 && len(s.Masses) != n {
		return fmt.Errorf("%w: %d atoms but %d masses", ErrMalformed, n, len(s.Masses))
	}
	for i, m := range s.Masses {
		if m <= 0 {
			return fmt.Errorf("%w: atom %d has non-positive mass %g", ErrMalformed, i, m)
		}
	}
	return nil
}

// Equal reports whether a and b are identical, label included.
func Equal(a, b Structure) bool {
	if a.Label != b.Label || a.Cell != b.Cell {
		return false
	}
	if len(a.Species) != len(b.Species) ||
		len(a.Positions) != len(b.Positions) ||
		len(a.Velocities) != len(b.Velocities) ||
		len(a.Masses) != len(b.Masses) {
		return false
	}
	for i := range a.Species {
		if a.Species[i] != b.Species[i] {
			return false
		}
	}
	return equalFloats(a.Positions, b.Positions) &&
		equalFloats(a.Velocities, b.Velocities) &&
		equalFloats(a.Masses, b.Masses)
}

func equalFloats(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
