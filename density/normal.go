package density

import (
	"github.com/pkg/errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Normal is a multivariate normal distribution.
type Normal struct {
	*distmv.Normal
}

// NewNormal creates a normal distribution from the mean and the
// row-major covariance matrix.
func NewNormal(mu []float64, cov []float64) (*Normal, error) {
	n := len(mu)
	if len(cov) != n*n {
		return nil, errors.Errorf("covariance should have %d elements, got %d", n*n, len(cov))
	}
	sigma := mat.NewSymDense(n, cov)
	d, ok := distmv.NewNormal(mu, sigma, nil)
	if !ok {
		return nil, errors.New("covariance matrix is not positive definite")
	}
	return &Normal{d}, nil
}

// Correlated creates a zero-mean normal distribution with unit
// variances and equal correlation rho between all the parameters.
func Correlated(n int, rho float64) (*Normal, error) {
	cov := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				cov[i*n+j] = 1
			} else {
				cov[i*n+j] = rho
			}
		}
	}
	return NewNormal(make([]float64, n), cov)
}
