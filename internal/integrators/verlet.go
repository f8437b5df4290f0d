package integrators

import "github.com/san-kum/remdrive/internal/dynamo"

// VelocityVerlet caches the acceleration of the last accepted state so each
// step costs a single force evaluation.
type VelocityVerlet struct {
	prevAcc []float64
	prevPos []float64
}

func NewVelocityVerlet() *VelocityVerlet {
	return &VelocityVerlet{}
}

func (v *VelocityVerlet) Reset() {
	v.prevAcc = nil
	v.prevPos = nil
}

func (v *VelocityVerlet) acceleration(sys dynamo.System, x dynamo.State, t float64) []float64 {
	half := len(x) / 2
	if v.prevAcc != nil && len(v.prevPos) == half && samePositions(v.prevPos, x[:half]) {
		return v.prevAcc
	}
	return sys.Derive(x, t)[half:]
}

func (v *VelocityVerlet) Step(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	n := len(x)
	half := n / 2

	acc := v.acceleration(sys, x, t)
	result := make(dynamo.State, n)
	dt2 := dt * dt

	for i := 0; i < half; i++ {
		result[i] = x[i] + x[half+i]*dt + 0.5*acc[i]*dt2
		result[half+i] = x[half+i]
	}

	accNew := sys.Derive(result, t+dt)[half:]

	halfDt := 0.5 * dt
	for i := 0; i < half; i++ {
		result[half+i] = x[half+i] + (acc[i]+accNew[i])*halfDt
	}

	v.prevAcc = accNew
	v.prevPos = append(v.prevPos[:0], result[:half]...)

	return result
}

func samePositions(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Leapfrog is the kick-drift-kick form of Verlet without force caching.
type Leapfrog struct {
	scratch dynamo.State
}

func NewLeapfrog() *Leapfrog {
	return &Leapfrog{}
}

func (l *Leapfrog) Step(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	n := len(x)
	half := n / 2

	if len(l.scratch) != n {
		l.scratch = make(dynamo.State, n)
	}

	result := make(dynamo.State, n)
	dx := sys.Derive(x, t)
	halfDt := dt * 0.5

	for i := 0; i < half; i++ {
		l.scratch[half+i] = x[half+i] + dx[half+i]*halfDt
	}

	for i := 0; i < half; i++ {
		result[i] = x[i] + l.scratch[half+i]*dt
		l.scratch[i] = result[i]
	}

	dxNew := sys.Derive(l.scratch, t+dt)

	for i := 0; i < half; i++ {
		result[half+i] = l.scratch[half+i] + dxNew[half+i]*halfDt
	}

	return result
}
