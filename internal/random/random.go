// Package random provides the randomness used for pacing and operation ordering.
package random

import "math/rand/v2"

// Source is the subset of random number generation the bot needs.
type Source interface {
	// IntN returns a random int in [0, n). Panics if n <= 0.
	IntN(n int) int
	// Int64N returns a random int64 in [0, n). Panics if n <= 0.
	Int64N(n int64) int64
}

// Rand provides thread-safe random number generation using math/rand/v2.
// Go 1.22's math/rand/v2 is automatically seeded and goroutine-safe.
type Rand struct{}

// IntN returns a random int in [0, n).
func (r *Rand) IntN(n int) int {
	return rand.IntN(n)
}

// Int64N returns a random int64 in [0, n).
func (r *Rand) Int64N(n int64) int64 {
	return rand.Int64N(n)
}

// New returns a thread-safe random number generator.
func New() *Rand {
	return &Rand{}
}

// Shuffle returns a shuffled copy of items. The input slice is not modified.
// Fisher-Yates: for i from the last index down to 1, swap with a uniformly
// chosen index in [0, i].
func Shuffle[T any](src Source, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
