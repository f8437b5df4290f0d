// Package forcefield provides the analytic potentials used by the reference
// engine and the particle System that turns a potential into equations of
// motion.
package forcefield

import (
	"fmt"
	"sort"

	"github.com/san-kum/remdrive/internal/structure"
)

// Field evaluates the potential energy and the forces (3N, same layout as
// positions) of a configuration.
type Field interface {
	Name() string
	Evaluate(pos []float64, cell structure.Cell) (float64, []float64)
}

// Params is the union of the parameters understood by the built-in fields.
// Zero values select the defaults.
type Params struct {
	Epsilon float64
	Sigma   float64
	Cutoff  float64
	K       float64
	A       float64
	B       float64
}

var registry = map[string]func(Params) Field{
	"harmonic":      func(p Params) Field { return NewHarmonic(p.K) },
	"double_well":   func(p Params) Field { return NewDoubleWell(p.A, p.B) },
	"lennard_jones": func(p Params) Field { return NewLennardJones(p.Epsilon, p.Sigma, p.Cutoff) },
}

// New returns the field registered under pes.
func New(pes string, p Params) (Field, error) {
	fn, ok := registry[pes]
	if !ok {
		return nil, fmt.Errorf("unknown pes: %s (available: %v)", pes, Names())
	}
	return fn(p), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Weighted is one term of a Sum.
type Weighted struct {
	Field  Field
	Weight float64
}

// Sum adds several fields together.
type Sum []Weighted

func (s Sum) Name() string {
	if len(s) == 1 {
		return s[0].Field.Name()
	}
	return "sum"
}

func (s Sum) Evaluate(pos []float64, cell structure.Cell) (float64, []float64) {
	total := 0.0
	forces := make([]float64, len(pos))
	for _, term := range s {
		e, f := term.Field.Evaluate(pos, cell)
		total += term.Weight * e
		for i := range forces {
			forces[i] += term.Weight * f[i]
		}
	}
	return total, forces
}
