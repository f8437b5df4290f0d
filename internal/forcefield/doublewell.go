package forcefield

import "github.com/san-kum/remdrive/internal/structure"

// DoubleWell is a bistable potential a*(x^2-b)^2 along x for every atom, plus
// a weak harmonic confinement along y and z so the atoms stay bounded.
type DoubleWell struct {
	A, B float64
}

const wellConfinement = 1.0

func NewDoubleWell(a, b float64) *DoubleWell {
	if a == 0 {
		a = 1.0
	}
	if b == 0 {
		b = 1.0
	}
	return &DoubleWell{A: a, B: b}
}

func (d *DoubleWell) Name() string { return "double_well" }

func (d *DoubleWell) Evaluate(pos []float64, _ structure.Cell) (float64, []float64) {
	e := 0.0
	f := make([]float64, len(pos))
	for i := 0; i+2 < len(pos); i += 3 {
		x, y, z := pos[i], pos[i+1], pos[i+2]
		w := x*x - d.B
		e += d.A*w*w + 0.5*wellConfinement*(y*y+z*z)
		f[i] = -4 * d.A * x * w
		f[i+1] = -wellConfinement * y
		f[i+2] = -wellConfinement * z
	}
	return e, f
}
