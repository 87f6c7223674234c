// Package posterior summarizes DREAM samples: marginal statistics,
// credible intervals, covariance and histograms.
package posterior

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/reflfit/godream/dream"
)

// Interval is a credible interval.
type Interval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Param is the marginal summary of a parameter.
type Param struct {
	Name   string   `json:"name"`
	Mean   float64  `json:"mean"`
	SD     float64  `json:"sd"`
	Median float64  `json:"median"`
	CI68   Interval `json:"ci68"`
	CI95   Interval `json:"ci95"`
}

// Summary is the summary of all the parameters.
type Summary struct {
	Samples     int           `json:"samples"`
	Params      []Param       `json:"params"`
	Covariance  *mat.SymDense `json:"-"`
	Correlation *mat.SymDense `json:"-"`
}

// Matrix returns the samples as a matrix with a row per sample.
func Matrix(samples [][]float64) *mat.Dense {
	if len(samples) == 0 {
		return nil
	}
	m := mat.NewDense(len(samples), len(samples[0]), nil)
	for i, x := range samples {
		m.SetRow(i, x)
	}
	return m
}

// Column returns the values of parameter j.
func Column(samples [][]float64, j int) []float64 {
	col := make([]float64, len(samples))
	for i, x := range samples {
		col[i] = x[j]
	}
	return col
}

// Summarize computes the posterior summary of the stored history
// after discarding the first burn fraction of generations.
func Summarize(h *dream.History, names []string, burn float64) *Summary {
	return SummarizeSamples(h.Samples(burn), names)
}

// SummarizeSamples computes the summary of samples given as
// [sample][parameter].
func SummarizeSamples(samples [][]float64, names []string) *Summary {
	s := &Summary{Samples: len(samples)}
	if len(samples) == 0 {
		return s
	}
	np := len(samples[0])
	s.Params = make([]Param, np)
	for j := range s.Params {
		x := Column(samples, j)
		sort.Float64s(x)
		p := &s.Params[j]
		if j < len(names) {
			p.Name = names[j]
		} else {
			p.Name = fmt.Sprintf("p%d", j)
		}
		p.Mean, p.SD = stat.MeanStdDev(x, nil)
		p.Median = stat.Quantile(0.5, stat.Empirical, x, nil)
		p.CI68 = interval(0.68, x)
		p.CI95 = interval(0.95, x)
	}
	if len(samples) > 1 {
		m := Matrix(samples)
		s.Covariance = mat.NewSymDense(np, nil)
		stat.CovarianceMatrix(s.Covariance, m, nil)
		s.Correlation = mat.NewSymDense(np, nil)
		stat.CorrelationMatrix(s.Correlation, m, nil)
	}
	return s
}

// interval returns the central credible interval of sorted x.
func interval(level float64, x []float64) Interval {
	tail := (1 - level) / 2
	return Interval{
		Low:  stat.Quantile(tail, stat.Empirical, x, nil),
		High: stat.Quantile(1-tail, stat.Empirical, x, nil),
	}
}

// Histogram returns the counts of x in n equal bins spanning the
// range of x, and the bin dividers.
func Histogram(x []float64, n int) (counts, dividers []float64) {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	min, max := sorted[0], sorted[len(sorted)-1]
	if min == max {
		min, max = min-0.5, max+0.5
	}
	dividers = make([]float64, n+1)
	floats.Span(dividers, min, max)
	// the last divider is exclusive
	dividers[n] = math.Nextafter(max, math.Inf(+1))
	counts = stat.Histogram(nil, dividers, sorted, nil)
	return
}

// String formats the summary as a table.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d samples\n", s.Samples)
	fmt.Fprintf(&b, "%-12s %12s %12s %12s %25s %25s\n", "parameter", "mean", "sd", "median", "68% interval", "95% interval")
	for _, p := range s.Params {
		fmt.Fprintf(&b, "%-12s %12.6g %12.6g %12.6g %12.6g %12.6g %12.6g %12.6g\n",
			p.Name, p.Mean, p.SD, p.Median, p.CI68.Low, p.CI68.High, p.CI95.Low, p.CI95.High)
	}
	return b.String()
}

// CorrelationString formats the correlation matrix.
func (s *Summary) CorrelationString() string {
	if s.Correlation == nil {
		return ""
	}
	return fmt.Sprintf("%.3f", mat.Formatted(s.Correlation, mat.Squeeze()))
}
