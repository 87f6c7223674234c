package dream

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// minGelman is the minimal number of generations to compute the R
// statistic.
const minGelman = 10

// Gelman computes the Gelman-Rubin R statistic for each of np
// parameters given chains as [generation][parameter][chain]. With less
// than 10 generations, or a parameter with zero within-chain variance,
// the statistic is NaN.
func Gelman(chains [][][]float64, np int) []float64 {
	n := len(chains)
	r := make([]float64, np)
	if n < minGelman {
		for j := range r {
			r[j] = math.NaN()
		}
		return r
	}
	m := len(chains[0][0])
	series := make([]float64, n)
	means := make([]float64, m)
	for j := 0; j < np; j++ {
		var w float64
		for c := 0; c < m; c++ {
			for g := range chains {
				series[g] = chains[g][j][c]
			}
			var v float64
			means[c], v = stat.MeanVariance(series, nil)
			w += v
		}
		w /= float64(m)
		b := float64(n) * stat.Variance(means, nil)
		v := float64(n-1)/float64(n)*w + b/float64(n)
		if w == 0 {
			r[j] = math.NaN()
			continue
		}
		r[j] = math.Sqrt(v / w)
	}
	return r
}

// converged returns true if all the statistics are below threshold.
// NaN never converges.
func converged(r []float64, threshold float64) bool {
	return len(r) > 0 && !anyOf(r, func(x float64) bool { return !(x < threshold) })
}

// anyOf returns true if f is true for at least one element.
func anyOf(x []float64, f func(float64) bool) bool {
	for _, v := range x {
		if f(v) {
			return true
		}
	}
	return false
}
