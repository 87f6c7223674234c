// Package plots draws DREAM diagnostics: R statistic and acceptance
// traces and marginal posterior histograms.
package plots

import (
	"fmt"
	"math"

	"github.com/op/go-logging"
	"github.com/pkg/errors"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/reflfit/godream/dream"
	"github.com/reflfit/godream/posterior"
)

var log = logging.MustGetLogger("plots")

// Size is the size of saved plots.
var Size = 5 * vg.Inch

// RStat plots the R statistic of every parameter. NaN values are
// skipped.
func RStat(res *dream.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Gelman-Rubin R"
	p.X.Label.Text = "generation"
	p.Y.Label.Text = "R"

	var lines []interface{}
	for j, name := range res.Names {
		pts := make(plotter.XYs, 0, len(res.RStat))
		for _, r := range res.RStat {
			if j < len(r.R) && !math.IsNaN(r.R[j]) {
				pts = append(pts, plotter.XY{X: float64(r.Generation), Y: r.R[j]})
			}
		}
		if len(pts) == 0 {
			continue
		}
		lines = append(lines, name, pts)
	}
	if len(lines) == 0 {
		log.Warning("No finite R statistic to plot")
		return p, nil
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return nil, errors.Wrap(err, "R statistic lines")
	}
	return p, nil
}

// Acceptance plots the acceptance rate trace.
func Acceptance(res *dream.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Acceptance rate"
	p.X.Label.Text = "generation"
	p.Y.Label.Text = "rate"

	pts := make(plotter.XYs, len(res.Acceptance))
	for i, a := range res.Acceptance {
		pts[i].X = float64(a.Generation)
		pts[i].Y = a.Rate
	}
	if len(pts) == 0 {
		return p, nil
	}
	if err := plotutil.AddLinePoints(p, "acceptance", pts); err != nil {
		return nil, errors.Wrap(err, "acceptance line")
	}
	return p, nil
}

// Marginal plots a histogram of parameter j samples.
func Marginal(samples [][]float64, name string, j, bins int) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = name
	p.Y.Label.Text = "samples"

	h, err := plotter.NewHist(plotter.Values(posterior.Column(samples, j)), bins)
	if err != nil {
		return nil, errors.Wrapf(err, "histogram of %s", name)
	}
	h.FillColor = plotutil.SoftColors[j%len(plotutil.SoftColors)]
	p.Add(h)
	return p, nil
}

// Save saves all the diagnostic plots with the given file prefix.
func Save(res *dream.Result, burn float64, prefix string) error {
	save := func(p *plot.Plot, name string) error {
		fn := prefix + name + ".png"
		if err := p.Save(Size, Size, fn); err != nil {
			return errors.Wrapf(err, "saving %s", fn)
		}
		log.Infof("Saved %s", fn)
		return nil
	}

	p, err := RStat(res)
	if err != nil {
		return err
	}
	if err := save(p, "rstat"); err != nil {
		return err
	}

	if p, err = Acceptance(res); err != nil {
		return err
	}
	if err := save(p, "acceptance"); err != nil {
		return err
	}

	samples := res.History.Samples(burn)
	if len(samples) == 0 {
		return nil
	}
	for j, name := range res.Names {
		if p, err = Marginal(samples, name, j, 50); err != nil {
			return err
		}
		if err := save(p, fmt.Sprintf("marginal_%d", j)); err != nil {
			return err
		}
	}
	return nil
}
