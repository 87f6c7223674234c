package dream

import (
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/reflfit/godream/dist"
)

// Candidate is a proposed parameter vector for a chain.
type Candidate struct {
	X []float64
	// LogCorrection is the log Hastings ratio of the proposal,
	// zero for symmetric differential evolution jumps.
	LogCorrection float64
	// Snooker is true if the candidate came from a snooker jump.
	Snooker bool
}

// ProposalGenerator builds candidates from differences between the
// committed chains.
type ProposalGenerator struct {
	delta           int
	jumpProbability float64
	pUnitGamma      float64
	zeta            float64
	jitter          float64
	bounds          *Bounds
}

// NewProposalGenerator creates a proposal generator from settings.
func NewProposalGenerator(s *Settings) *ProposalGenerator {
	return &ProposalGenerator{
		delta:           s.Delta,
		jumpProbability: s.JumpProbability,
		pUnitGamma:      s.PUnitGamma,
		zeta:            s.Zeta,
		jitter:          s.Jitter,
		bounds: &Bounds{
			Lower:    s.Lower,
			Upper:    s.Upper,
			Handling: s.BoundHandling,
		},
	}
}

// Propose returns one candidate per chain. xs are the committed
// vectors of the previous generation and cr the crossover
// probability of every chain.
func (g *ProposalGenerator) Propose(rng *rand.Rand, xs [][]float64, cr []float64) []Candidate {
	cands := make([]Candidate, len(xs))
	for i := range xs {
		// a snooker jump needs three other chains
		if len(xs) >= 4 && rng.Float64() >= g.jumpProbability {
			if c, ok := g.snooker(rng, i, xs); ok {
				cands[i] = c
				continue
			}
		}
		cands[i] = g.differential(rng, i, xs, cr[i])
	}
	return cands
}

// differential implements the differential evolution jump with
// crossover for chain i.
func (g *ProposalGenerator) differential(rng *rand.Rand, i int, xs [][]float64, cr float64) Candidate {
	x := xs[i]
	d := len(x)

	maxPairs := (len(xs) - 1) / 2
	if g.delta < maxPairs {
		maxPairs = g.delta
	}
	pairs := 1 + rng.Intn(maxPairs)
	others := dist.SampleWithout(rng, len(xs), 2*pairs, i)
	r1, r2 := others[:pairs], others[pairs:]

	mask := make([]int, 0, d)
	for j := 0; j < d; j++ {
		if rng.Float64() < cr {
			mask = append(mask, j)
		}
	}
	if len(mask) == 0 {
		mask = append(mask, rng.Intn(d))
	}

	gamma := 2.38 / math.Sqrt(float64(2*pairs*len(mask)))
	if rng.Float64() < g.pUnitGamma {
		gamma = 1
	}

	cand := append([]float64(nil), x...)
	for _, j := range mask {
		var diff float64
		for k := 0; k < pairs; k++ {
			diff += xs[r1[k]][j] - xs[r2[k]][j]
		}
		e := dist.Uniform(rng, -g.jitter, g.jitter)
		cand[j] += (1+e)*gamma*diff + g.zeta*rng.NormFloat64()
	}
	g.bounds.Apply(cand)
	g.ensureMoved(rng, cand, x)
	return Candidate{X: cand}
}

// snooker implements the snooker jump for chain i. It returns false
// if the jump direction is degenerate.
func (g *ProposalGenerator) snooker(rng *rand.Rand, i int, xs [][]float64) (Candidate, bool) {
	x := xs[i]
	d := len(x)
	others := dist.SampleWithout(rng, len(xs), 3, i)
	z, r1, r2 := xs[others[0]], xs[others[1]], xs[others[2]]

	dir := make([]float64, d)
	floats.SubTo(dir, x, z)
	norm2 := floats.Dot(dir, dir)
	if norm2 == 0 {
		return Candidate{}, false
	}

	diff := make([]float64, d)
	floats.SubTo(diff, r1, r2)
	gammaS := dist.Uniform(rng, 1.2, 2.2)
	step := gammaS * floats.Dot(diff, dir) / norm2

	cand := append([]float64(nil), x...)
	floats.AddScaled(cand, step, dir)
	g.bounds.Apply(cand)
	g.ensureMoved(rng, cand, x)

	// the proposal is not symmetric, the ratio of distances to z
	// has to enter the acceptance probability
	after := floats.Distance(cand, z, 2)
	before := math.Sqrt(norm2)
	corr := float64(d-1) * (math.Log(after) - math.Log(before))
	return Candidate{X: cand, LogCorrection: corr, Snooker: true}, true
}

// ensureMoved perturbs a single dimension if cand equals parent.
func (g *ProposalGenerator) ensureMoved(rng *rand.Rand, cand, parent []float64) {
	if !floats.Equal(cand, parent) {
		return
	}
	j := rng.Intn(len(cand))
	scale := math.Max(g.zeta, 1e-12*math.Max(1, math.Abs(cand[j])))
	cand[j] += scale * rng.NormFloat64()
	g.bounds.ApplyDim(j, cand)
	if cand[j] == parent[j] {
		dir := math.Inf(+1)
		if cand[j] >= g.bounds.Upper[j] {
			dir = math.Inf(-1)
		}
		cand[j] = math.Nextafter(cand[j], dir)
	}
}
