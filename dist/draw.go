// Package dist implements the random draws used by the population
// sampler: categorical and multinomial draws, permutations and
// sampling without replacement.
//
// All functions take an explicit generator, so a run is reproducible
// for a fixed seed.
package dist

import (
	"sort"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"
)

// Categorical draws an index i with probability proportional to w[i].
func Categorical(rng *rand.Rand, w []float64) int {
	cum := make([]float64, len(w))
	floats.CumSum(cum, w)
	return search(rng, cum)
}

// search draws an index given cumulative weights.
func search(rng *rand.Rand, cum []float64) int {
	total := cum[len(cum)-1]
	if !(total > 0) {
		panic("dist: weights should have a positive sum")
	}
	u := rng.Float64() * total
	i := sort.Search(len(cum), func(i int) bool { return cum[i] > u })
	if i == len(cum) {
		// rounding, pick the last category with non-zero weight
		i = len(cum) - 1
		for i > 0 && cum[i] == cum[i-1] {
			i--
		}
	}
	return i
}

// Multinomial distributes n trials over len(p) categories with
// probabilities proportional to p. If counts is not nil it is reused
// for the result.
func Multinomial(rng *rand.Rand, n int, p []float64, counts []int) []int {
	if counts == nil {
		counts = make([]int, len(p))
	}
	if len(counts) != len(p) {
		panic("dist: counts and probabilities length mismatch")
	}
	for i := range counts {
		counts[i] = 0
	}
	cum := make([]float64, len(p))
	floats.CumSum(cum, p)
	for t := 0; t < n; t++ {
		counts[search(rng, cum)]++
	}
	return counts
}

// Permutation returns a uniform random permutation of 0..n-1.
func Permutation(rng *rand.Rand, n int) []int {
	return rng.Perm(n)
}

// SampleWithout draws k distinct integers from 0..n-1, never
// returning exclude (pass a negative value to exclude nothing).
func SampleWithout(rng *rand.Rand, n, k, exclude int) []int {
	pool := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != exclude {
			pool = append(pool, i)
		}
	}
	if k > len(pool) {
		panic("dist: not enough elements to sample from")
	}
	// partial Fisher-Yates
	for i := 0; i < k; i++ {
		j := i + rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// Uniform returns a uniform random value in [min, max).
func Uniform(rng *rand.Rand, min, max float64) float64 {
	return min + rng.Float64()*(max-min)
}
