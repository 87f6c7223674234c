// Package density provides log densities to sample with DREAM:
// per-parameter priors, reference test distributions and a
// chi-squared curve fit likelihood.
package density

import (
	"math"

	"github.com/op/go-logging"

	"gonum.org/v1/gonum/stat/distuv"
)

// log is the global logging variable.
var log = logging.MustGetLogger("density")

// Prior is a log prior density of a single parameter.
type Prior func(float64) float64

func UniformPrior(min, max float64, incmin, incmax bool) Prior {
	if max <= min {
		panic("max <= min")
	}
	return func(x float64) float64 {
		if (incmin && x < min) ||
			(!incmin && x <= min) ||
			(incmax && x > max) ||
			(!incmax && x >= max) {
			return math.Inf(-1)
		}
		return -math.Log(max - min)
	}
}

// NormalPrior is a normal prior with mean mu and standard deviation
// sigma.
func NormalPrior(mu, sigma float64) Prior {
	if sigma <= 0 {
		panic("standard deviation of normal distribution must be > 0")
	}
	d := distuv.Normal{Mu: mu, Sigma: sigma}
	return d.LogProb
}

// GammaPrior is a gamma prior. With inczero the density at zero is
// the limit of the density from the right.
func GammaPrior(shape, scale float64, inczero bool) Prior {
	if shape <= 0 || scale <= 0 {
		panic("shape and scale of gamma distribution must be > 0")
	}
	g, _ := math.Lgamma(shape)
	return func(x float64) float64 {
		if x < 0 || (x == 0 && !inczero) {
			return math.Inf(-1)
		}
		if x == 0 {
			switch {
			case shape < 1:
				return math.Inf(+1)
			case shape > 1:
				return math.Inf(-1)
			}
			return -math.Log(scale)
		}
		return (shape-1)*math.Log(x) - x/scale - shape*math.Log(scale) - g
	}
}

func ExponentialPrior(rate float64, inczero bool) Prior {
	if rate <= 0 {
		panic("exponential rate should be > 0")
	}
	return func(x float64) float64 {
		if x < 0 || (x == 0 && !inczero) {
			return math.Inf(-1)
		}
		return math.Log(rate) - rate*x
	}
}

// ProductPrior is the product of two prior densities.
func ProductPrior(f, g Prior) Prior {
	return func(x float64) float64 {
		return f(x) + g(x)
	}
}

// Priors are independent priors of a parameter vector.
type Priors []Prior

// LogProb returns the sum of log priors. A nil prior is flat.
func (p Priors) LogProb(x []float64) float64 {
	var l float64
	for i, f := range p {
		if f == nil {
			continue
		}
		l += f(x[i])
		if math.IsInf(l, -1) {
			return l
		}
	}
	return l
}

// UniformPriors creates uniform priors for closed intervals. Infinite
// intervals get a flat improper prior.
func UniformPriors(lower, upper []float64) Priors {
	p := make(Priors, len(lower))
	for i := range p {
		if math.IsInf(lower[i], 0) || math.IsInf(upper[i], 0) {
			log.Debugf("Parameter %d is unbounded, using flat prior", i)
			continue
		}
		p[i] = UniformPrior(lower[i], upper[i], true, true)
	}
	return p
}
