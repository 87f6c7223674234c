package dream

import (
	"math"
)

// Density is the log-prior and log-likelihood of a parameter vector.
type Density struct {
	LogPrior      float64
	LogLikelihood float64
}

// LogDensity returns the unnormalized log posterior density.
func (d Density) LogDensity() float64 {
	return d.LogPrior + d.LogLikelihood
}

// Finite returns true if the log density is a finite number.
func (d Density) Finite() bool {
	l := d.LogDensity()
	return !math.IsNaN(l) && !math.IsInf(l, 0)
}

// sanitize replaces a NaN or +Inf density by -Inf.
func (d Density) sanitize() Density {
	if l := d.LogDensity(); math.IsNaN(l) || math.IsInf(l, +1) {
		return Density{LogPrior: math.Inf(-1), LogLikelihood: math.Inf(-1)}
	}
	return d
}

// Chain is the committed state of one chain.
type Chain struct {
	Index int
	X     []float64
	Density
	// Accepted is the number of accepted proposals.
	Accepted int
}

// Population is the state of all the chains. Updates are written into
// a staging buffer and committed in one swap, so the committed view
// never contains a half updated generation.
type Population struct {
	chains  []Chain
	staging []Chain
}

// newChains allocates chains with their own vectors.
func newChains(n, np int) []Chain {
	chains := make([]Chain, n)
	for i := range chains {
		chains[i] = Chain{
			Index: i,
			X:     make([]float64, np),
		}
	}
	return chains
}

// NewPopulation creates a population from starting vectors and their
// densities. NaN and +Inf densities are stored as -Inf.
func NewPopulation(xs [][]float64, ds []Density) *Population {
	if len(xs) != len(ds) {
		panic("dream: vectors and densities length mismatch")
	}
	np := 0
	if len(xs) > 0 {
		np = len(xs[0])
	}
	p := &Population{
		chains:  newChains(len(xs), np),
		staging: newChains(len(xs), np),
	}
	for i := range xs {
		copy(p.chains[i].X, xs[i])
		p.chains[i].Density = ds[i].sanitize()
	}
	return p
}

// Len returns the number of chains.
func (p *Population) Len() int {
	return len(p.chains)
}

// Current returns the committed chains. The result must not be
// modified and is valid until the next Update.
func (p *Population) Current() []Chain {
	return p.chains
}

// Positions returns the committed vectors. The result must not be
// modified and is valid until the next Update.
func (p *Population) Positions() [][]float64 {
	xs := make([][]float64, len(p.chains))
	for i := range p.chains {
		xs[i] = p.chains[i].X
	}
	return xs
}

// Update applies the Metropolis acceptance test to every chain
// independently. Chain i accepts its candidate if
// log(u[i]) <= min(0, new - current + correction). Non-finite
// candidate densities are always rejected. All the changes become
// visible at once.
func (p *Population) Update(cands []Candidate, ds []Density, u []float64) (accepted []bool) {
	if len(cands) != len(p.chains) || len(ds) != len(p.chains) || len(u) != len(p.chains) {
		panic("dream: population update length mismatch")
	}
	accepted = make([]bool, len(p.chains))
	for i := range p.chains {
		cur := &p.chains[i]
		next := &p.staging[i]
		next.Index = cur.Index
		next.Accepted = cur.Accepted
		if ds[i].Finite() {
			logAlpha := math.Min(0, ds[i].LogDensity()-cur.LogDensity()+cands[i].LogCorrection)
			accepted[i] = math.Log(u[i]) <= logAlpha
		}
		if accepted[i] {
			copy(next.X, cands[i].X)
			next.Density = ds[i]
			next.Accepted++
		} else {
			copy(next.X, cur.X)
			next.Density = cur.Density
		}
	}
	p.chains, p.staging = p.staging, p.chains
	return accepted
}

// Replace overwrites the state and density of chain dst with those of
// chain src. The acceptance counter of dst is kept.
func (p *Population) Replace(dst, src int) {
	copy(p.chains[dst].X, p.chains[src].X)
	p.chains[dst].Density = p.chains[src].Density
}

// Best returns the index of the chain with the highest log density.
func (p *Population) Best() int {
	best := 0
	for i := range p.chains {
		if p.chains[i].LogDensity() > p.chains[best].LogDensity() {
			best = i
		}
	}
	return best
}

// Accepted returns the total number of accepted proposals.
func (p *Population) Accepted() (n int) {
	for i := range p.chains {
		n += p.chains[i].Accepted
	}
	return
}
