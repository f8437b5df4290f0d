package integrators

import (
	"math"
	"math/rand"

	"github.com/san-kum/remdrive/internal/dynamo"
)

// Langevin integrates with the BAOAB splitting: half kick, half drift, an
// exact Ornstein-Uhlenbeck velocity update, half drift, half kick.
// Temperature is in energy units (k_B = 1). Tau <= 0 disables the friction
// step, which reduces the scheme to velocity Verlet.
type Langevin struct {
	Temperature float64
	Tau         float64

	// Heat is the kinetic energy removed by the thermostat so far. Adding it
	// to the total energy gives a conserved quantity.
	Heat float64

	rng *rand.Rand
}

func NewLangevin(temperature, tau float64, rng *rand.Rand) *Langevin {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Langevin{Temperature: temperature, Tau: tau, rng: rng}
}

func (l *Langevin) Step(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	half := len(x) / 2
	out := x.Clone()
	pos, vel := out[:half], out[half:]
	halfDt := 0.5 * dt

	acc := sys.Derive(out, t)[half:]
	for i := range vel {
		vel[i] += halfDt * acc[i]
	}
	for i := range pos {
		pos[i] += halfDt * vel[i]
	}

	if l.Tau > 0 {
		l.thermalize(sys, vel, dt)
	}

	for i := range pos {
		pos[i] += halfDt * vel[i]
	}
	acc = sys.Derive(out, t+dt)[half:]
	for i := range vel {
		vel[i] += halfDt * acc[i]
	}

	return out
}

func (l *Langevin) thermalize(sys dynamo.System, vel []float64, dt float64) {
	var masses []float64
	if m, ok := sys.(dynamo.Massive); ok {
		masses = m.CoordinateMasses()
	}

	c1 := math.Exp(-dt / l.Tau)
	c2 := math.Sqrt(1 - c1*c1)

	for i := range vel {
		m := 1.0
		if i < len(masses) {
			m = masses[i]
		}
		before := 0.5 * m * vel[i] * vel[i]
		vel[i] = c1*vel[i] + c2*math.Sqrt(l.Temperature/m)*l.rng.NormFloat64()
		l.Heat += before - 0.5*m*vel[i]*vel[i]
	}
}
