package forcefield

import (
	"math"

	"github.com/san-kum/remdrive/internal/structure"
)

// LennardJones is a truncated and shifted 12-6 pair potential. Periodic axes
// of the cell use the minimum image convention.
type LennardJones struct {
	Epsilon float64
	Sigma   float64
	Cutoff  float64

	shift float64
}

func NewLennardJones(epsilon, sigma, cutoff float64) *LennardJones {
	if epsilon == 0 {
		epsilon = 1.0
	}
	if sigma == 0 {
		sigma = 1.0
	}
	if cutoff == 0 {
		cutoff = 2.5 * sigma
	}
	lj := &LennardJones{Epsilon: epsilon, Sigma: sigma, Cutoff: cutoff}
	sr6 := math.Pow(sigma/cutoff, 6)
	lj.shift = 4 * epsilon * (sr6*sr6 - sr6)
	return lj
}

func (lj *LennardJones) Name() string { return "lennard_jones" }

func (lj *LennardJones) Evaluate(pos []float64, cell structure.Cell) (float64, []float64) {
	n := len(pos) / 3
	f := make([]float64, len(pos))
	e := 0.0
	rc2 := lj.Cutoff * lj.Cutoff
	s2 := lj.Sigma * lj.Sigma

	var d [3]float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r2 := 0.0
			for k := 0; k < 3; k++ {
				dk := pos[3*j+k] - pos[3*i+k]
				if l := cell[k]; l > 0 {
					dk -= l * math.Round(dk/l)
				}
				d[k] = dk
				r2 += dk * dk
			}
			if r2 >= rc2 || r2 == 0 {
				continue
			}

			sr2 := s2 / r2
			sr6 := sr2 * sr2 * sr2
			sr12 := sr6 * sr6
			e += 4*lj.Epsilon*(sr12-sr6) - lj.shift

			// (dE/dr)/r; the force on i is fr*d with d = r_j - r_i
			fr := -24 * lj.Epsilon * (2*sr12 - sr6) / r2
			for k := 0; k < 3; k++ {
				f[3*i+k] += fr * d[k]
				f[3*j+k] -= fr * d[k]
			}
		}
	}
	return e, f
}
