package density

import (
	"math"

	"github.com/pkg/errors"

	"github.com/reflfit/godream/dream"
)

// LogDensity is a log density of a parameter vector.
type LogDensity func(x []float64) float64

// Model combines priors with a log-likelihood. It implements
// dream.Evaluator and is safe for concurrent use if the likelihood
// is.
type Model struct {
	Priors        Priors
	LogLikelihood LogDensity
	NParams       int
}

// NewModel creates a model with n parameters.
func NewModel(n int, priors Priors, ll LogDensity) *Model {
	return &Model{
		Priors:        priors,
		LogLikelihood: ll,
		NParams:       n,
	}
}

// Evaluate computes log-prior and log-likelihood. The likelihood is
// not computed when the prior is zero.
func (m *Model) Evaluate(x []float64) (dream.Density, error) {
	if len(x) != m.NParams {
		return dream.Density{}, errors.Errorf("expected %d parameters, got %d", m.NParams, len(x))
	}
	if len(m.Priors) != 0 && len(m.Priors) != m.NParams {
		return dream.Density{}, errors.Errorf("%d priors for %d parameters", len(m.Priors), m.NParams)
	}
	d := dream.Density{LogPrior: m.Priors.LogProb(x)}
	if math.IsInf(d.LogPrior, -1) {
		d.LogLikelihood = math.Inf(-1)
		return d, nil
	}
	d.LogLikelihood = m.LogLikelihood(x)
	return d, nil
}
