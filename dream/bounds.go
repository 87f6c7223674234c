package dream

import (
	"math"
)

const (
	// MIN and MAX limit the starting range of unbounded
	// parameters.
	MIN = -10
	MAX = +10
)

// Bounds applies the bound handling policy to parameter vectors.
type Bounds struct {
	Lower    []float64
	Upper    []float64
	Handling BoundHandling
}

// Apply brings all the values of x into the bounds according to the
// policy.
func (b *Bounds) Apply(x []float64) {
	for j := range x {
		b.ApplyDim(j, x)
	}
}

// ApplyDim handles a single dimension j of x.
func (b *Bounds) ApplyDim(j int, x []float64) {
	min, max := b.Lower[j], b.Upper[j]
	v := x[j]
	if v >= min && v <= max {
		return
	}
	switch b.Handling {
	case BoundReflect:
		x[j] = mirror(v, min, max)
	case BoundClip:
		x[j] = math.Min(math.Max(v, min), max)
	case BoundFold:
		x[j] = fold(v, min, max)
	}
}

// Contains returns true if all the values are inside the bounds.
func (b *Bounds) Contains(x []float64) bool {
	for j, v := range x {
		if v < b.Lower[j] || v > b.Upper[j] {
			return false
		}
	}
	return true
}

// mirror reflects v at the bounds until it is inside [min, max].
func mirror(v, min, max float64) float64 {
	switch {
	case math.IsInf(min, -1):
		return max - (v - max)
	case math.IsInf(max, +1):
		return min + (min - v)
	}
	// a value far outside would require many reflections
	w := max - min
	t := math.Mod(v-min, 2*w)
	if t < 0 {
		t += 2 * w
	}
	if t > w {
		t = 2*w - t
	}
	return min + t
}

// fold wraps v periodically into [min, max]. A half-open range has
// no period, so the value is reflected instead.
func fold(v, min, max float64) float64 {
	if math.IsInf(min, -1) || math.IsInf(max, +1) {
		return mirror(v, min, max)
	}
	w := max - min
	t := math.Mod(v-min, w)
	if t < 0 {
		t += w
	}
	return min + t
}

// initRange returns a finite range for drawing starting values.
func initRange(min, max float64) (float64, float64) {
	switch {
	case math.IsInf(min, -1) && math.IsInf(max, +1):
		return MIN, MAX
	case math.IsInf(min, -1):
		return max - (MAX - MIN), max
	case math.IsInf(max, +1):
		return min, min + (MAX - MIN)
	}
	return min, max
}
