package density

import (
	"math"

	"github.com/pkg/errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mixture is a mixture of isotropic normal distributions.
type Mixture struct {
	components [][]distuv.Normal
	logWeights []float64
}

// NewMixture creates a mixture with component means, standard
// deviations and weights. Weights are normalized.
func NewMixture(means [][]float64, sigma []float64, weights []float64) (*Mixture, error) {
	if len(means) == 0 {
		return nil, errors.New("mixture needs at least one component")
	}
	if len(sigma) != len(means) || len(weights) != len(means) {
		return nil, errors.Errorf("%d components, %d sigmas and %d weights", len(means), len(sigma), len(weights))
	}
	total := floats.Sum(weights)
	if !(total > 0) {
		return nil, errors.New("mixture weights should sum to a positive number")
	}
	m := &Mixture{
		components: make([][]distuv.Normal, len(means)),
		logWeights: make([]float64, len(means)),
	}
	dim := len(means[0])
	for k, mu := range means {
		if len(mu) != dim {
			return nil, errors.Errorf("component %d has dimension %d, expected %d", k, len(mu), dim)
		}
		if sigma[k] <= 0 || weights[k] < 0 {
			return nil, errors.Errorf("component %d: invalid sigma %v or weight %v", k, sigma[k], weights[k])
		}
		m.components[k] = make([]distuv.Normal, dim)
		for j := range mu {
			m.components[k][j] = distuv.Normal{Mu: mu[j], Sigma: sigma[k]}
		}
		m.logWeights[k] = math.Log(weights[k] / total)
	}
	return m, nil
}

// Dim returns the dimension of the mixture.
func (m *Mixture) Dim() int {
	return len(m.components[0])
}

// LogProb returns the log density at x.
func (m *Mixture) LogProb(x []float64) float64 {
	l := make([]float64, len(m.components))
	for k, comp := range m.components {
		l[k] = m.logWeights[k]
		for j, d := range comp {
			l[k] += d.LogProb(x[j])
		}
	}
	return floats.LogSumExp(l)
}

// Means returns the component means.
func (m *Mixture) Means() [][]float64 {
	means := make([][]float64, len(m.components))
	for k, comp := range m.components {
		means[k] = make([]float64, len(comp))
		for j, d := range comp {
			means[k][j] = d.Mu
		}
	}
	return means
}
