package dream

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestReflect(tst *testing.T) {
	tests := []struct{ v, min, max, exp float64 }{
		{11, 0, 10, 9},
		{-1, 0, 10, 1},
		{25, 0, 10, 5},
		{-15, 0, 10, 5},
		{-3, 0, math.Inf(+1), 3},
		{4, math.Inf(-1), 1, -2},
	}
	for _, t := range tests {
		if r := mirror(t.v, t.min, t.max); math.Abs(r-t.exp) > smallDiff {
			tst.Errorf("mirror(%v, %v, %v) = %v, expected %v", t.v, t.min, t.max, r, t.exp)
		}
	}
}

func TestFold(tst *testing.T) {
	tests := []struct{ v, min, max, exp float64 }{
		{11, 0, 10, 1},
		{-1, 0, 10, 9},
		{23, 0, 10, 3},
		{-3, 0, math.Inf(+1), 3},
	}
	for _, t := range tests {
		if r := fold(t.v, t.min, t.max); math.Abs(r-t.exp) > smallDiff {
			tst.Errorf("fold(%v, %v, %v) = %v, expected %v", t.v, t.min, t.max, r, t.exp)
		}
	}
}

func TestBoundPolicies(tst *testing.T) {
	lower, upper := []float64{0, 0}, []float64{1, 1}
	x := func() []float64 { return []float64{1.25, 0.5} }

	b := &Bounds{Lower: lower, Upper: upper, Handling: BoundClip}
	v := x()
	b.Apply(v)
	if !floats.Equal(v, []float64{1, 0.5}) {
		tst.Error("Clip:", v)
	}

	b.Handling = BoundReflect
	v = x()
	b.Apply(v)
	if !floats.EqualApprox(v, []float64{0.75, 0.5}, smallDiff) {
		tst.Error("Reflect:", v)
	}

	b.Handling = BoundFold
	v = x()
	b.Apply(v)
	if !floats.EqualApprox(v, []float64{0.25, 0.5}, smallDiff) {
		tst.Error("Fold:", v)
	}

	b.Handling = BoundOff
	v = x()
	b.Apply(v)
	if !floats.Equal(v, x()) || b.Contains(v) {
		tst.Error("Off:", v)
	}
}

func TestInitRange(tst *testing.T) {
	min, max := initRange(math.Inf(-1), math.Inf(+1))
	if min != MIN || max != MAX {
		tst.Error("Wrong range for unbounded parameter:", min, max)
	}
	min, max = initRange(2, math.Inf(+1))
	if min != 2 || max != 2+MAX-MIN {
		tst.Error("Wrong range for half-bounded parameter:", min, max)
	}
}

func newGenerator(np int) *ProposalGenerator {
	lower, upper := make([]float64, np), make([]float64, np)
	for j := range upper {
		upper[j] = 1
	}
	s := NewSettings(lower, upper)
	return NewProposalGenerator(s)
}

func TestEmptyMaskMoves(tst *testing.T) {
	rng := newRand()
	g := newGenerator(3)
	g.zeta = 0
	// identical chains give a zero jump
	xs := [][]float64{{0.5, 0.5, 0.5}, {0.5, 0.5, 0.5}, {0.5, 0.5, 0.5}}
	for rep := 0; rep < 100; rep++ {
		cands := g.Propose(rng, xs, []float64{0, 0, 0})
		for i, c := range cands {
			if floats.Equal(c.X, xs[i]) {
				tst.Fatal("Candidate equals its parent")
			}
			changed := 0
			for j := range c.X {
				if c.X[j] != xs[i][j] {
					changed++
				}
			}
			if changed != 1 {
				tst.Error("Expected a single perturbed dimension, got", changed)
			}
		}
	}
}

func TestCrossoverMask(tst *testing.T) {
	rng := newRand()
	g := newGenerator(10)
	g.jumpProbability = 1
	xs := make([][]float64, 8)
	for c := range xs {
		xs[c] = make([]float64, 10)
		for j := range xs[c] {
			xs[c][j] = rng.Float64()
		}
	}
	cr := make([]float64, len(xs))
	for i := range cr {
		cr[i] = 1
	}
	for _, c := range g.Propose(rng, xs, cr) {
		if c.Snooker || c.LogCorrection != 0 {
			tst.Error("Unexpected snooker jump")
		}
	}
	// CR=1 moves every dimension
	cands := g.Propose(rng, xs, cr)
	for i, c := range cands {
		for j := range c.X {
			if c.X[j] == xs[i][j] {
				tst.Errorf("Chain %d dimension %d did not move with CR=1", i, j)
			}
		}
	}
}

func TestProposalBounds(tst *testing.T) {
	rng := newRand()
	g := newGenerator(2)
	g.jumpProbability = 0.5
	xs := [][]float64{{0.01, 0.99}, {0.99, 0.01}, {0.5, 0.5}, {0.02, 0.98}, {0.9, 0.2}}
	for rep := 0; rep < 500; rep++ {
		for _, c := range g.Propose(rng, xs, []float64{1, 1, 1, 1, 1}) {
			if !g.bounds.Contains(c.X) {
				tst.Fatal("Reflected candidate out of bounds:", c.X)
			}
		}
	}
}

func TestSnookerCorrection(tst *testing.T) {
	rng := newRand()
	g := newGenerator(3)
	g.jumpProbability = 0
	g.bounds.Lower = []float64{-100, -100, -100}
	g.bounds.Upper = []float64{100, 100, 100}
	xs := [][]float64{{0, 0, 0}, {1, 2, 3}, {-1, 0.5, 2}, {3, -1, 0}, {2, 2, -2}}
	snooker := 0
	for rep := 0; rep < 50; rep++ {
		for _, c := range g.Propose(rng, xs, []float64{1, 1, 1, 1, 1}) {
			if !c.Snooker {
				continue
			}
			snooker++
			if math.IsNaN(c.LogCorrection) || math.IsInf(c.LogCorrection, 0) {
				tst.Error("Non-finite snooker correction")
			}
		}
	}
	if snooker == 0 {
		tst.Error("No snooker jumps proposed")
	}
}
