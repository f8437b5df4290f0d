package integrators

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/san-kum/remdrive/internal/dynamo"
)

// Options carries the thermostat settings a stepper may need.
type Options struct {
	Temperature float64
	Tau         float64
	Rand        *rand.Rand
}

var registry = map[string]func(Options) dynamo.Integrator{
	"nve":             func(Options) dynamo.Integrator { return NewVelocityVerlet() },
	"velocity_verlet": func(Options) dynamo.Integrator { return NewVelocityVerlet() },
	"leapfrog":        func(Options) dynamo.Integrator { return NewLeapfrog() },
	"nvt": func(o Options) dynamo.Integrator {
		return NewLangevin(o.Temperature, o.Tau, o.Rand)
	},
	"langevin": func(o Options) dynamo.Integrator {
		return NewLangevin(o.Temperature, o.Tau, o.Rand)
	},
}

// New returns the integrator registered under name.
func New(name string, opts Options) (dynamo.Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s (available: %v)", name, Names())
	}
	return fn(opts), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
