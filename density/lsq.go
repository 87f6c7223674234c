package density

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Data is a measured curve with uncertainties.
type Data struct {
	X  []float64
	Y  []float64
	DY []float64
}

// Len returns the number of points.
func (d *Data) Len() int {
	return len(d.X)
}

// ReadData reads whitespace separated columns x, y and optionally dy.
// Empty lines and lines starting with # are skipped. Without the dy
// column the uncertainty is 1.
func ReadData(rd io.Reader) (*Data, error) {
	d := &Data{}
	scanner := bufio.NewScanner(rd)
	line := 0
	for scanner.Scan() {
		line++
		s := strings.TrimSpace(scanner.Text())
		if s == "" || s[0] == '#' {
			continue
		}
		fields := strings.Fields(s)
		if len(fields) < 2 || len(fields) > 3 {
			return nil, errors.Errorf("line %d: expected 2 or 3 columns, got %d", line, len(fields))
		}
		v := make([]float64, 3)
		v[2] = 1
		for i, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
			v[i] = x
		}
		if !(v[2] > 0) {
			return nil, errors.Errorf("line %d: uncertainty should be positive, got %v", line, v[2])
		}
		d.X = append(d.X, v[0])
		d.Y = append(d.Y, v[1])
		d.DY = append(d.DY, v[2])
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading data")
	}
	if d.Len() == 0 {
		return nil, errors.New("no data points")
	}
	return d, nil
}

// ForwardModel computes the model curve at x for parameters p.
type ForwardModel func(p []float64, x float64) float64

// Polynomial is the model p[0] + p[1]*x + p[2]*x^2 + ...
func Polynomial(p []float64, x float64) float64 {
	var y float64
	for i := len(p) - 1; i >= 0; i-- {
		y = y*x + p[i]
	}
	return y
}

// CurveFit is the Gaussian noise likelihood of a forward model given
// the data.
type CurveFit struct {
	Data  *Data
	Model ForwardModel
}

// Chi2 returns the chi-squared of the model for parameters p.
func (c *CurveFit) Chi2(p []float64) float64 {
	var chi2 float64
	for i, x := range c.Data.X {
		r := (c.Data.Y[i] - c.Model(p, x)) / c.Data.DY[i]
		chi2 += r * r
	}
	return chi2
}

// LogLikelihood returns -chi2/2. A model returning NaN gives -Inf.
func (c *CurveFit) LogLikelihood(p []float64) float64 {
	chi2 := c.Chi2(p)
	if math.IsNaN(chi2) {
		return math.Inf(-1)
	}
	return -chi2 / 2
}

// ReducedChi2 returns chi-squared per degree of freedom.
func (c *CurveFit) ReducedChi2(p []float64) float64 {
	dof := c.Data.Len() - len(p)
	if dof < 1 {
		dof = 1
	}
	return c.Chi2(p) / float64(dof)
}
