package forcefield

import (
	"fmt"

	"github.com/san-kum/remdrive/internal/dynamo"
	"github.com/san-kum/remdrive/internal/structure"
)

// System turns a Field into a dynamo.System over atoms with the given masses.
type System struct {
	Field Field
	Cell  structure.Cell

	masses      []float64
	coordMasses []float64
}

func NewSystem(field Field, masses []float64, cell structure.Cell) *System {
	s := &System{Field: field, Cell: cell}
	s.SetMasses(masses)
	return s
}

// SetMasses replaces the per-atom masses.
func (s *System) SetMasses(masses []float64) {
	s.masses = append(s.masses[:0], masses...)
	s.coordMasses = make([]float64, 3*len(masses))
	for i, m := range masses {
		s.coordMasses[3*i] = m
		s.coordMasses[3*i+1] = m
		s.coordMasses[3*i+2] = m
	}
}

func (s *System) NAtoms() int                 { return len(s.masses) }
func (s *System) StateDim() int               { return 6 * len(s.masses) }
func (s *System) CoordinateMasses() []float64 { return s.coordMasses }

// CheckState reports dynamo.ErrDimensionMismatch when x does not hold
// positions and velocities for every atom.
func (s *System) CheckState(x dynamo.State) error {
	if len(x) != s.StateDim() {
		return fmt.Errorf("%w: state has %d components, %d atoms need %d",
			dynamo.ErrDimensionMismatch, len(x), s.NAtoms(), s.StateDim())
	}
	return nil
}

func (s *System) Derive(x dynamo.State, _ float64) dynamo.State {
	half := len(x) / 2
	dx := make(dynamo.State, len(x))
	copy(dx[:half], x[half:])

	_, forces := s.Field.Evaluate(x[:half], s.Cell)
	for i := 0; i < half; i++ {
		dx[half+i] = forces[i] / s.coordMasses[i]
	}
	return dx
}

func (s *System) Potential(x dynamo.State) float64 {
	e, _ := s.Field.Evaluate(x.Positions(), s.Cell)
	return e
}

func (s *System) Kinetic(x dynamo.State) float64 {
	ke := 0.0
	for i, v := range x.Velocities() {
		ke += 0.5 * s.coordMasses[i] * v * v
	}
	return ke
}

// Temperature is the instantaneous kinetic temperature 2K/(3N), k_B = 1.
func (s *System) Temperature(x dynamo.State) float64 {
	dof := float64(3 * len(s.masses))
	if dof == 0 {
		return 0
	}
	return 2 * s.Kinetic(x) / dof
}
