package dynamo

import (
	"fmt"
	"math"
)

// State is a flat phase-space vector: 3N positions followed by 3N velocities.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Positions returns the position half of s. The slice aliases s.
func (s State) Positions() []float64 { return s[:len(s)/2] }

// Velocities returns the velocity half of s. The slice aliases s.
func (s State) Velocities() []float64 { return s[len(s)/2:] }

// Pack builds a State from separate position and velocity slices.
func Pack(pos, vel []float64) State {
	s := make(State, len(pos)*2)
	copy(s, pos)
	if len(vel) == len(pos) {
		copy(s[len(pos):], vel)
	}
	return s
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// System is a second-order system written in first-order form: Derive
// returns (velocities, accelerations) for the state x at time t.
type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

type Hamiltonian interface {
	Potential(x State) float64
	Kinetic(x State) float64
}

// Massive exposes the per-coordinate masses of a System.
type Massive interface {
	CoordinateMasses() []float64
}

type Integrator interface {
	Step(sys System, x State, t, dt float64) State
}

// Resetter is implemented by integrators that cache data between steps.
type Resetter interface {
	Reset()
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
