// Package metrics observes driver checkpoints.
package metrics

import "math"

// Checkpoint is one property readout taken after an advance round.
type Checkpoint struct {
	Round    int     `json:"round"`
	Step     int     `json:"step"`
	Property string  `json:"property"`
	Value    float64 `json:"value"`
}

func (c Checkpoint) Finite() bool {
	return !math.IsNaN(c.Value) && !math.IsInf(c.Value, 0)
}

// Observer is notified as the driver progresses.
type Observer interface {
	OnCheckpoint(c Checkpoint)
	OnReorder(round int, perm []int)
}

type Metric interface {
	Name() string
	Observe(c Checkpoint)
	Value() float64
	Reset()
}

// Recorder keeps every checkpoint and permutation it sees.
type Recorder struct {
	Checkpoints  []Checkpoint
	Permutations [][]int
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnCheckpoint(c Checkpoint) { r.Checkpoints = append(r.Checkpoints, c) }

func (r *Recorder) OnReorder(_ int, perm []int) {
	r.Permutations = append(r.Permutations, append([]int(nil), perm...))
}

func (r *Recorder) Values() []float64 {
	out := make([]float64, len(r.Checkpoints))
	for i, c := range r.Checkpoints {
		out[i] = c.Value
	}
	return out
}

// Observers fans notifications out to several observers.
type Observers []Observer

func (o Observers) OnCheckpoint(c Checkpoint) {
	for _, obs := range o {
		obs.OnCheckpoint(c)
	}
}

func (o Observers) OnReorder(round int, perm []int) {
	for _, obs := range o {
		obs.OnReorder(round, perm)
	}
}
