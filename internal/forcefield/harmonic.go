package forcefield

import "github.com/san-kum/remdrive/internal/structure"

// Harmonic tethers every atom to the origin with spring constant K.
type Harmonic struct {
	K float64
}

func NewHarmonic(k float64) *Harmonic {
	if k == 0 {
		k = 1.0
	}
	return &Harmonic{K: k}
}

func (h *Harmonic) Name() string { return "harmonic" }

func (h *Harmonic) Evaluate(pos []float64, _ structure.Cell) (float64, []float64) {
	e := 0.0
	f := make([]float64, len(pos))
	for i, x := range pos {
		e += 0.5 * h.K * x * x
		f[i] = -h.K * x
	}
	return e, f
}
