package driver_test

import (
	"context"
	"fmt"

	"github.com/san-kum/remdrive/internal/session"
	"github.com/san-kum/remdrive/internal/structure"
)

// fakeSession records calls and returns scripted results.
type fakeSession struct {
	structures []structure.Structure
	potential  float64
	advanced   []int
	calls      []string

	advanceErr error
	setErr     error
	getErr     error
}

func newFakeSession(labels ...string) *fakeSession {
	f := &fakeSession{potential: -1.5}
	for i, l := range labels {
		f.structures = append(f.structures, structure.Structure{
			Label:     l,
			Species:   []string{"Ar"},
			Positions: []float64{float64(i), 0, 0},
		})
	}
	return f
}

func (f *fakeSession) Advance(_ context.Context, steps int) error {
	f.calls = append(f.calls, "advance")
	if steps <= 0 {
		return session.ErrInvalidSteps
	}
	if f.advanceErr != nil {
		return f.advanceErr
	}
	f.advanced = append(f.advanced, steps)
	f.potential += 0.25
	return nil
}

func (f *fakeSession) Property(name string) (float64, error) {
	f.calls = append(f.calls, "property")
	if name != "potential" {
		return 0, fmt.Errorf("%w: %q", session.ErrUnknownProperty, name)
	}
	return f.potential, nil
}

func (f *fakeSession) Structures() ([]structure.Structure, error) {
	f.calls = append(f.calls, "structures")
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make([]structure.Structure, len(f.structures))
	for i, s := range f.structures {
		out[i] = s.Clone()
	}
	return out, nil
}

func (f *fakeSession) SetStructures(s []structure.Structure) error {
	f.calls = append(f.calls, "set")
	if f.setErr != nil {
		return f.setErr
	}
	if len(s) != len(f.structures) {
		return fmt.Errorf("%w: got %d structures, want %d", session.ErrShapeMismatch, len(s), len(f.structures))
	}
	f.structures = s
	return nil
}

func (f *fakeSession) labels() []string {
	out := make([]string, len(f.structures))
	for i, s := range f.structures {
		out[i] = s.Label
	}
	return out
}

// fixedPerm always returns the same permutation.
type fixedPerm []int

func (p fixedPerm) Perm(n int) []int {
	if n != len(p) {
		panic(fmt.Sprintf("fixedPerm: asked for %d, have %d", n, len(p)))
	}
	return append([]int(nil), p...)
}
