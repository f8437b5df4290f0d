package metrics

import (
	"math"
	"testing"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	var obs Observer = Observers{r}

	obs.OnCheckpoint(Checkpoint{Round: 0, Step: 10, Property: "potential", Value: -1.5})
	perm := []int{1, 0}
	obs.OnReorder(1, perm)
	obs.OnCheckpoint(Checkpoint{Round: 1, Step: 20, Property: "potential", Value: -1.25})
	perm[0] = 9

	if len(r.Checkpoints) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(r.Checkpoints))
	}
	if r.Permutations[0][0] != 1 {
		t.Error("recorder must copy permutations")
	}
	vals := r.Values()
	if vals[0] != -1.5 || vals[1] != -1.25 {
		t.Errorf("unexpected values %v", vals)
	}
}

func TestCheckpointFinite(t *testing.T) {
	tests := []struct {
		v    float64
		want bool
	}{
		{0, true},
		{-3.2, true},
		{math.NaN(), false},
		{math.Inf(1), false},
	}
	for _, tt := range tests {
		if got := (Checkpoint{Value: tt.v}).Finite(); got != tt.want {
			t.Errorf("Finite(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestDrift(t *testing.T) {
	d := NewDrift()
	for _, v := range []float64{2, 2.2, 1.9, 2.1} {
		d.Observe(Checkpoint{Value: v})
	}
	if math.Abs(d.Value()-0.1) > 1e-12 {
		t.Errorf("expected drift 0.1, got %f", d.Value())
	}
	d.Reset()
	if d.Value() != 0 {
		t.Error("reset did not clear drift")
	}
}

func TestMean(t *testing.T) {
	m := NewMean()
	if m.Value() != 0 {
		t.Error("empty mean should be zero")
	}
	for _, v := range []float64{1, 2, 3} {
		m.Observe(Checkpoint{Value: v})
	}
	if m.Value() != 2 {
		t.Errorf("expected 2, got %f", m.Value())
	}
}
