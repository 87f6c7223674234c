package dream

import (
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/reflfit/godream/dist"
)

// fixedCR are the crossover values used without adaptation.
var fixedCR = []float64{1. / 3, 2. / 3, 1}

// CrossoverSet is a set of crossover probabilities with selection
// weights.
type CrossoverSet struct {
	Values  []float64
	Weights []float64
}

// NewCrossoverSet creates a set {1/n, 2/n, ..., 1} with uniform
// weights.
func NewCrossoverSet(n int) *CrossoverSet {
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i+1) / float64(n)
	}
	return newCrossoverSet(values)
}

func newCrossoverSet(values []float64) *CrossoverSet {
	weights := make([]float64, len(values))
	for i := range weights {
		weights[i] = 1 / float64(len(values))
	}
	return &CrossoverSet{
		Values:  values,
		Weights: weights,
	}
}

// CRAssignment is a crossover value for every chain and step of a
// block of generations.
type CRAssignment struct {
	// Values[chain][step] is the crossover probability.
	Values [][]float64
	// Index[chain][step] is the index of the value in the set.
	Index [][]int
	// Counts is the number of points assigned to each value.
	Counts []int
	// Boundaries are the cumulative counts starting with 0; value
	// k owns permutation positions [Boundaries[k], Boundaries[k+1]).
	Boundaries []int
}

// Column returns crossover values and indices of all the chains for
// a step.
func (a *CRAssignment) Column(step int) (values []float64, index []int) {
	values = make([]float64, len(a.Values))
	index = make([]int, len(a.Values))
	for c := range a.Values {
		values[c] = a.Values[c][step]
		index[c] = a.Index[c][step]
	}
	return
}

// Partition assigns crossover values to nChains*steps points. The
// permutation perm is split by the cumulative counts and every
// position in a part receives the corresponding value. Flat point k
// belongs to chain k%nChains and step k/nChains.
func Partition(counts []int, perm []int, values []float64, nChains, steps int) *CRAssignment {
	n := nChains * steps
	if len(perm) != n {
		panic("dream: permutation length mismatch")
	}
	a := &CRAssignment{
		Values:     make([][]float64, nChains),
		Index:      make([][]int, nChains),
		Counts:     append([]int(nil), counts...),
		Boundaries: make([]int, len(counts)+1),
	}
	for c := range a.Values {
		a.Values[c] = make([]float64, steps)
		a.Index[c] = make([]int, steps)
	}
	for k, cnt := range counts {
		a.Boundaries[k+1] = a.Boundaries[k] + cnt
	}
	if a.Boundaries[len(counts)] != n {
		panic("dream: counts do not sum to the number of points")
	}
	for k := range counts {
		// an empty bucket has start == end and assigns nothing
		for _, p := range perm[a.Boundaries[k]:a.Boundaries[k+1]] {
			c, s := p%nChains, p/nChains
			a.Values[c][s] = values[k]
			a.Index[c][s] = k
		}
	}
	return a
}

// CrossoverScheduler draws crossover values and adapts their weights
// from the observed jump distances.
type CrossoverScheduler struct {
	set       *CrossoverSet
	adapt     bool
	minWeight float64
	// cumulative normalized squared jump distance per value
	jumps []float64
	// number of proposals per value
	uses []int
}

// NewCrossoverScheduler creates a new scheduler. Without adaptation
// the fixed set {1/3, 2/3, 1} is used regardless of nCR.
func NewCrossoverScheduler(nCR int, adapt bool, minWeight float64) *CrossoverScheduler {
	var set *CrossoverSet
	if adapt {
		set = NewCrossoverSet(nCR)
	} else {
		set = newCrossoverSet(append([]float64(nil), fixedCR...))
	}
	return &CrossoverScheduler{
		set:       set,
		adapt:     adapt,
		minWeight: minWeight,
		jumps:     make([]float64, len(set.Values)),
		uses:      make([]int, len(set.Values)),
	}
}

// Values returns the crossover values.
func (cs *CrossoverScheduler) Values() []float64 {
	return append([]float64(nil), cs.set.Values...)
}

// Weights returns a copy of the current selection weights.
func (cs *CrossoverScheduler) Weights() []float64 {
	return append([]float64(nil), cs.set.Weights...)
}

// SetWeights replaces the selection weights by normalized w.
func (cs *CrossoverScheduler) SetWeights(w []float64) {
	if len(w) != len(cs.set.Weights) {
		panic("dream: wrong number of crossover weights")
	}
	copy(cs.set.Weights, w)
	floats.Scale(1/floats.Sum(cs.set.Weights), cs.set.Weights)
}

// Adaptive returns true if weights are adapted.
func (cs *CrossoverScheduler) Adaptive() bool {
	return cs.adapt
}

// Draw assigns crossover values to nChains chains for steps
// generations.
func (cs *CrossoverScheduler) Draw(rng *rand.Rand, nChains, steps int) *CRAssignment {
	n := nChains * steps
	counts := dist.Multinomial(rng, n, cs.set.Weights, nil)
	perm := dist.Permutation(rng, n)
	return Partition(counts, perm, cs.set.Values, nChains, steps)
}

// Record attributes a normalized squared jump distance to crossover
// value index k. Rejected proposals are recorded with zero distance.
func (cs *CrossoverScheduler) Record(k int, distance float64) {
	cs.uses[k]++
	if !math.IsNaN(distance) && !math.IsInf(distance, 0) {
		cs.jumps[k] += distance
	}
}

// Adapt updates the weights from the recorded jumps. It does nothing
// if adaptation is disabled.
func (cs *CrossoverScheduler) Adapt() {
	if !cs.adapt {
		return
	}
	cs.UpdateWeights(cs.jumps, cs.uses)
}

// UpdateWeights sets the weights proportional to the mean jump
// distance of every value. Weights never drop below minWeight/nCR and
// always sum to 1. Nothing changes if no jump distance is available.
func (cs *CrossoverScheduler) UpdateWeights(jumps []float64, uses []int) {
	w := make([]float64, len(cs.set.Weights))
	for k := range w {
		if uses[k] > 0 {
			w[k] = jumps[k] / float64(uses[k])
		}
	}
	total := floats.Sum(w)
	if !(total > 0) || math.IsInf(total, 0) {
		return
	}
	floats.Scale(1/total, w)
	floor := cs.minWeight / float64(len(w))
	for k := range w {
		w[k] = math.Max(w[k], floor)
	}
	floats.Scale(1/floats.Sum(w), w)
	copy(cs.set.Weights, w)
}
