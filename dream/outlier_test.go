package dream

import (
	"math"
	"testing"
)

func TestIQROutliers(tst *testing.T) {
	means := []float64{-10, -11, -10.5, -1000, -9.8, -10.2}
	out := IQROutliers(means)
	if len(out) != 1 || out[0] != 3 {
		tst.Error("Expected chain 3 to be an outlier, got", out)
	}
	if out := IQROutliers([]float64{-10, -11, -10.5, -10.7}); len(out) != 0 {
		tst.Error("Unexpected outliers:", out)
	}
}

func TestIQROutliersFewChains(tst *testing.T) {
	if out := IQROutliers([]float64{-10, -11, -1000, -10.3}); len(out) != 1 || out[0] != 2 {
		tst.Error("Expected chain 2 to be an outlier, got", out)
	}
}

func TestIQROutliersInf(tst *testing.T) {
	inf := math.Inf(-1)
	out := IQROutliers([]float64{-1, inf, -2})
	if len(out) != 1 || out[0] != 1 {
		tst.Error("Expected -Inf chain to be an outlier, got", out)
	}
	if out := IQROutliers([]float64{inf, inf, inf}); len(out) != 0 {
		tst.Error("All -Inf chains cannot be repaired, got", out)
	}
}

func TestQuantile(tst *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	if q := quantile(0.25, x); q != 2 {
		tst.Error("Wrong first quartile:", q)
	}
	if q := quantile(0.5, []float64{1, 2, 3, 4}); q != 2.5 {
		tst.Error("Wrong median:", q)
	}
	if q := quantile(1, x); q != 5 {
		tst.Error("Wrong maximum:", q)
	}
}

func TestScanAndRepair(tst *testing.T) {
	xs := [][]float64{{0}, {1}, {2}, {3}, {4}}
	ds := []Density{{LogLikelihood: -1}, {LogLikelihood: -1.2}, {LogLikelihood: -500}, {LogLikelihood: -0.9}, {LogLikelihood: -1.1}}
	p := NewPopulation(xs, ds)
	m := NewOutlierMonitor(OutlierIQR, p.Len())
	for g := 0; g < 10; g++ {
		m.Observe(p.Current())
	}
	events := m.ScanAndRepair(10, p)
	if len(events) != 1 {
		tst.Fatal("Expected one outlier event, got", events)
	}
	e := events[0]
	if e.Chain != 2 || e.Replacement != 3 || e.Generation != 10 {
		tst.Error("Wrong event:", e)
	}
	cur := p.Current()
	if cur[2].X[0] != 3 || cur[2].LogLikelihood != -0.9 {
		tst.Error("Outlier not replaced:", cur[2])
	}
	// the trace follows the repaired chain
	if events := m.ScanAndRepair(20, p); len(events) != 0 {
		tst.Error("Repaired chain flagged again:", events)
	}
}

func TestOutlierDisabled(tst *testing.T) {
	p := NewPopulation([][]float64{{0}, {1}, {2}, {3}}, []Density{{}, {}, {}, {LogLikelihood: -1e6}})
	m := NewOutlierMonitor(OutlierNone, p.Len())
	for g := 0; g < 10; g++ {
		m.Observe(p.Current())
	}
	if events := m.ScanAndRepair(10, p); events != nil {
		tst.Error("Disabled monitor repaired chains:", events)
	}
}
