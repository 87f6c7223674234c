package dream

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func twoChains() *Population {
	xs := [][]float64{{0, 0}, {1, 1}}
	ds := []Density{{LogPrior: 0, LogLikelihood: -1}, {LogPrior: 0, LogLikelihood: -2}}
	return NewPopulation(xs, ds)
}

func TestMetropolis(tst *testing.T) {
	p := twoChains()
	cands := []Candidate{{X: []float64{5, 5}}, {X: []float64{6, 6}}}
	ds := []Density{
		// better, always accepted
		{LogPrior: 0, LogLikelihood: 0},
		// much worse, rejected with u close to 1
		{LogPrior: 0, LogLikelihood: -100},
	}
	acc := p.Update(cands, ds, []float64{0.999, 0.999})
	if !acc[0] || acc[1] {
		tst.Fatal("Wrong acceptance:", acc)
	}
	cur := p.Current()
	if !floats.Equal(cur[0].X, []float64{5, 5}) || cur[0].LogLikelihood != 0 {
		tst.Error("Accepted candidate not committed:", cur[0])
	}
	if !floats.Equal(cur[1].X, []float64{1, 1}) || cur[1].LogLikelihood != -2 {
		tst.Error("Rejected candidate modified the chain:", cur[1])
	}
	if p.Accepted() != 1 {
		tst.Error("Wrong number of accepted proposals:", p.Accepted())
	}
}

func TestMetropolisNonFinite(tst *testing.T) {
	p := twoChains()
	cands := []Candidate{{X: []float64{5, 5}}, {X: []float64{6, 6}}}
	ds := []Density{
		{LogPrior: 0, LogLikelihood: math.NaN()},
		{LogPrior: math.Inf(+1), LogLikelihood: 0},
	}
	// u=0 would accept any finite density
	acc := p.Update(cands, ds, []float64{0, 0})
	if acc[0] || acc[1] {
		tst.Error("Non-finite density accepted:", acc)
	}
	if !floats.Equal(p.Current()[0].X, []float64{0, 0}) {
		tst.Error("Rejected candidate committed")
	}
}

func TestMetropolisCorrection(tst *testing.T) {
	p := twoChains()
	cands := []Candidate{
		{X: []float64{5, 5}, LogCorrection: -10},
		{X: []float64{6, 6}, LogCorrection: 10},
	}
	ds := []Density{{LogLikelihood: -1}, {LogLikelihood: -5}}
	acc := p.Update(cands, ds, []float64{0.5, 0.5})
	if acc[0] || !acc[1] {
		tst.Error("Hastings correction ignored:", acc)
	}
}

func TestStagingSwap(tst *testing.T) {
	p := twoChains()
	before := p.Positions()
	saved := [][]float64{append([]float64(nil), before[0]...), append([]float64(nil), before[1]...)}
	cands := []Candidate{{X: []float64{5, 5}}, {X: []float64{6, 6}}}
	p.Update(cands, []Density{{}, {}}, []float64{0.1, 0.1})
	// the previous committed view is left intact in the staging buffer
	for i := range before {
		if !floats.Equal(before[i], saved[i]) {
			tst.Error("Previous generation modified during commit")
		}
	}
	// candidates are copied
	cands[0].X[0] = 100
	if p.Current()[0].X[0] == 100 {
		tst.Error("Population shares candidate vectors")
	}
}

func TestPopulationSanitize(tst *testing.T) {
	p := NewPopulation([][]float64{{0}, {1}, {2}}, []Density{
		{LogLikelihood: math.NaN()},
		{LogLikelihood: -3},
		{LogPrior: math.Inf(+1)},
	})
	cur := p.Current()
	if !math.IsInf(cur[0].LogDensity(), -1) || !math.IsInf(cur[2].LogDensity(), -1) {
		tst.Error("Non-finite starting densities should be -Inf")
	}
	if p.Best() != 1 {
		tst.Error("Wrong best chain:", p.Best())
	}
}

func TestReplace(tst *testing.T) {
	p := twoChains()
	p.Replace(1, 0)
	cur := p.Current()
	if !floats.Equal(cur[1].X, cur[0].X) || cur[1].Density != cur[0].Density {
		tst.Error("Chain not replaced")
	}
	if cur[1].Index != 1 {
		tst.Error("Replace changed the chain index")
	}
}
