package dream

import "math"

// History stores thinned chain states indexed as
// [generation][column][chain]. Columns are the parameters followed by
// the log-prior and the log-likelihood.
type History struct {
	NParams  int           `json:"nParams"`
	NChains  int           `json:"nChains"`
	Thinning int           `json:"thinning"`
	Data     [][][]float64 `json:"data"`

	completed int
}

// NewHistory creates an empty history.
func NewHistory(nParams, nChains, thinning int) *History {
	return &History{
		NParams:  nParams,
		NChains:  nChains,
		Thinning: thinning,
	}
}

// Append registers a completed generation. Only every Thinning-th
// generation is stored, so Len() == Completed()/Thinning.
func (h *History) Append(chains []Chain) {
	h.completed++
	if h.completed%h.Thinning != 0 {
		return
	}
	gen := make([][]float64, h.NParams+2)
	for col := range gen {
		gen[col] = make([]float64, h.NChains)
	}
	for c, ch := range chains {
		for j, v := range ch.X {
			gen[j][c] = v
		}
		gen[h.NParams][c] = ch.LogPrior
		gen[h.NParams+1][c] = ch.LogLikelihood
	}
	h.Data = append(h.Data, gen)
}

// Len returns the number of stored generations.
func (h *History) Len() int {
	return len(h.Data)
}

// Completed returns the number of completed generations.
func (h *History) Completed() int {
	return h.completed
}

// Params returns the parameter columns of stored generations
// [from, to) as [generation][parameter][chain]. The slices are shared
// with the history.
func (h *History) Params(from, to int) [][][]float64 {
	w := make([][][]float64, 0, to-from)
	for _, gen := range h.Data[from:to] {
		w = append(w, gen[:h.NParams])
	}
	return w
}

// Tail returns the parameter columns of the last half of the stored
// generations.
func (h *History) Tail() [][][]float64 {
	n := h.Len()
	return h.Params(n-n/2, n)
}

// Samples returns all the stored parameter vectors after discarding
// the first burn fraction of the stored generations. Burn is clamped
// to [0, 1].
func (h *History) Samples(burn float64) [][]float64 {
	burn = math.Max(0, math.Min(1, burn))
	start := int(burn * float64(h.Len()))
	samples := make([][]float64, 0, (h.Len()-start)*h.NChains)
	for _, gen := range h.Data[start:] {
		for c := 0; c < h.NChains; c++ {
			x := make([]float64, h.NParams)
			for j := range x {
				x[j] = gen[j][c]
			}
			samples = append(samples, x)
		}
	}
	return samples
}
