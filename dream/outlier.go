package dream

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// OutlierEvent records a chain replaced by the outlier monitor.
type OutlierEvent struct {
	Generation  int `json:"generation"`
	Chain       int `json:"chain"`
	Replacement int `json:"replacement"`
}

// OutlierMonitor keeps the unthinned log density of every chain and
// replaces chains trapped in low density regions.
type OutlierMonitor struct {
	enabled bool
	// trace[chain][generation]
	trace [][]float64
}

// NewOutlierMonitor creates a monitor for the named test.
func NewOutlierMonitor(test string, nChains int) *OutlierMonitor {
	return &OutlierMonitor{
		enabled: strings.EqualFold(test, OutlierIQR),
		trace:   make([][]float64, nChains),
	}
}

// Observe appends the committed log densities.
func (m *OutlierMonitor) Observe(chains []Chain) {
	for c := range chains {
		m.trace[c] = append(m.trace[c], chains[c].LogDensity())
	}
}

// means returns the mean log density of the last half of every
// chain trace.
func (m *OutlierMonitor) means() []float64 {
	means := make([]float64, len(m.trace))
	for c, t := range m.trace {
		n := len(t)
		means[c] = stat.Mean(t[n-n/2:], nil)
	}
	return means
}

// ScanAndRepair flags outlier chains and overwrites each of them with
// the chain having the highest mean density.
func (m *OutlierMonitor) ScanAndRepair(gen int, p *Population) []OutlierEvent {
	if !m.enabled || len(m.trace) == 0 || len(m.trace[0]) < 2 {
		return nil
	}
	means := m.means()
	outliers := IQROutliers(means)
	if len(outliers) == 0 {
		return nil
	}
	best := 0
	for c := range means {
		if means[c] > means[best] {
			best = c
		}
	}
	events := make([]OutlierEvent, 0, len(outliers))
	for _, c := range outliers {
		p.Replace(c, best)
		copy(m.trace[c], m.trace[best])
		events = append(events, OutlierEvent{Generation: gen, Chain: c, Replacement: best})
		log.Infof("Generation %d: chain %d is an outlier (mean lnP=%g), replaced by chain %d (mean lnP=%g)",
			gen, c, means[c], best, means[best])
	}
	return events
}

// IQROutliers returns the indices of values more than two
// interquartile ranges below the first quartile. -Inf values are
// outliers whenever some value is finite.
func IQROutliers(means []float64) []int {
	finite := make([]float64, 0, len(means))
	for _, v := range means {
		if !math.IsInf(v, 0) && !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return nil
	}
	sort.Float64s(finite)
	q1, q3 := quantile(0.25, finite), quantile(0.75, finite)
	threshold := q1 - 2*(q3-q1)

	var outliers []int
	for c, v := range means {
		if math.IsInf(v, -1) || v < threshold {
			outliers = append(outliers, c)
		}
	}
	return outliers
}

// quantile interpolates linearly between the order statistics of
// sorted x at position p*(n-1). Unlike the empirical quantiles, the
// lowest value does not define the first quartile of a few chains.
func quantile(p float64, x []float64) float64 {
	h := p * float64(len(x)-1)
	i := int(math.Floor(h))
	if i+1 >= len(x) {
		return x[len(x)-1]
	}
	return x[i] + (h-float64(i))*(x[i+1]-x[i])
}
