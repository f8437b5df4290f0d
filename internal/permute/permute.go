// Package permute produces uniform random permutations from a seedable
// source.
package permute

import (
	"hash/fnv"
	"math/rand"
	"time"
)

// Source yields uniformly random permutations of [0, n).
type Source interface {
	Perm(n int) []int
}

// Rand is a Source backed by math/rand. Not safe for concurrent use.
type Rand struct {
	seed int64
	rng  *rand.Rand
}

// New returns a deterministic source for seed.
func New(seed int64) *Rand {
	return &Rand{seed: seed, rng: rand.New(rand.NewSource(seed))}
}

// NewRandom returns a source seeded from the clock.
func NewRandom() *Rand {
	return New(time.Now().UnixNano())
}

func (r *Rand) Seed() int64 { return r.seed }

// Perm draws a Fisher-Yates permutation.
func (r *Rand) Perm(n int) []int {
	return r.rng.Perm(n)
}

// Shuffle reorders items in place so that items[i] becomes the element that
// was at perm[i], and returns perm.
func Shuffle[T any](src Source, items []T) []int {
	perm := src.Perm(len(items))
	Apply(items, perm)
	return perm
}

// Apply reorders items in place by perm.
func Apply[T any](items []T, perm []int) {
	out := make([]T, len(items))
	for i, p := range perm {
		out[i] = items[p]
	}
	copy(items, out)
}

// IsPermutation reports whether perm holds every index in [0, len(perm))
// exactly once.
func IsPermutation(perm []int) bool {
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}

// Derive returns an independent seed for a named subsystem so that, for
// example, the shuffle stream and the thermostat noise never share state.
func Derive(seed int64, subsystem string) int64 {
	h := fnv.New64a()
	h.Write([]byte(subsystem))
	return seed ^ int64(h.Sum64())
}
