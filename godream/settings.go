package main

import (
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/reflfit/godream/checkpoint"
	"github.com/reflfit/godream/density"
	"github.com/reflfit/godream/dream"
)

// newProblem creates sampler settings and the density for the
// command.
func newProblem(command string) (*dream.Settings, dream.Evaluator, error) {
	switch command {
	case mixtureCmd.FullCommand():
		return newMixture(*mixDim, *mixModes, *mixSep, *mixSigma)
	case normalCmd.FullCommand():
		return newNormal(*normDim, *normRho)
	case fitCmd.FullCommand():
		return newFit(*fitData, *fitDegree, *fitMin, *fitMax)
	}
	return nil, nil, fmt.Errorf("Unknown command: %s", command)
}

// newMixture places the modes on the diagonal, centered at zero.
func newMixture(dim, modes int, sep, sigma float64) (*dream.Settings, dream.Evaluator, error) {
	if dim < 1 || modes < 1 {
		return nil, nil, errors.New("dimension and number of modes should be positive")
	}
	means := make([][]float64, modes)
	sigmas := make([]float64, modes)
	weights := make([]float64, modes)
	for k := range means {
		means[k] = make([]float64, dim)
		for j := range means[k] {
			means[k][j] = sep * (float64(k) - float64(modes-1)/2)
		}
		sigmas[k] = sigma
		weights[k] = 1
	}
	m, err := density.NewMixture(means, sigmas, weights)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("Mixture of %d normal distributions in %d dimensions", modes, dim)
	log.Debugf("Mixture means: %v", m.Means())

	lim := math.Abs(means[0][0]) + 10*sigma
	lower, upper := make([]float64, dim), make([]float64, dim)
	for j := range lower {
		lower[j], upper[j] = -lim, lim
	}
	model := density.NewModel(dim, density.UniformPriors(lower, upper), m.LogProb)
	return dream.NewSettings(lower, upper), model, nil
}

// newNormal uses unbounded parameters.
func newNormal(dim int, rho float64) (*dream.Settings, dream.Evaluator, error) {
	n, err := density.Correlated(dim, rho)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("Normal distribution in %d dimensions, correlation %v", dim, rho)
	lower, upper := make([]float64, dim), make([]float64, dim)
	for j := range lower {
		lower[j], upper[j] = math.Inf(-1), math.Inf(+1)
	}
	model := density.NewModel(dim, nil, n.LogProb)
	return dream.NewSettings(lower, upper), model, nil
}

func newFit(fn string, degree int, min, max float64) (*dream.Settings, dream.Evaluator, error) {
	if degree < 0 {
		return nil, nil, errors.New("polynomial degree should be >= 0")
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	data, err := density.ReadData(f)
	if err != nil {
		return nil, nil, errors.Wrap(err, fn)
	}
	log.Infof("Read %d data points", data.Len())

	np := degree + 1
	lower, upper := make([]float64, np), make([]float64, np)
	names := make([]string, np)
	for j := range lower {
		lower[j], upper[j] = min, max
		names[j] = fmt.Sprintf("c%d", j)
	}
	c := &density.CurveFit{Data: data, Model: density.Polynomial}
	model := density.NewModel(np, density.UniformPriors(lower, upper), c.LogLikelihood)
	ds := dream.NewSettings(lower, upper)
	ds.Names = names
	return ds, model, nil
}

// applyFlags sets the sampler settings from the command line.
func applyFlags(ds *dream.Settings) (err error) {
	if *burn < 0 || *burn > 1 {
		return errors.Errorf("burn fraction should be in [0, 1], got %v", *burn)
	}
	if *nChains > 0 {
		ds.NChains = *nChains
	}
	ds.Generations = *generations
	ds.Delta = *delta
	ds.Steps = *steps
	ds.NCR = *nCR
	ds.AdaptPCR = !*noAdapt
	ds.JumpProbability = *jump
	ds.PUnitGamma = *unitGamma
	ds.Zeta = *zeta
	ds.Jitter = *jitter
	ds.Outlier = *outlier
	ds.Thinning = *thinning
	ds.Parallel = *parallel
	ds.Seed = uint64(*seed)
	ds.ConvergenceThreshold = *converge
	ds.ConvergenceChecks = *checks

	if ds.BoundHandling, err = dream.ParseBoundHandling(*bounds); err != nil {
		return err
	}
	if ds.Init, err = dream.ParseInitMethod(*initMethod); err != nil {
		return err
	}
	return ds.Validate()
}

// resumeSettings starts the population from a checkpoint and reduces
// the generation budget by the completed generations.
func resumeSettings(ds *dream.Settings, data *checkpoint.Data) error {
	if len(data.Chains) != ds.NChains {
		return errors.Errorf("checkpoint has %d chains, expected %d", len(data.Chains), ds.NChains)
	}
	if data.Final {
		log.Notice("Checkpoint run is finished, starting a new run from its chains")
		ds.Completed = 0
	} else {
		remaining := ds.Generations - data.Generation
		if remaining < 1 {
			return errors.Errorf("checkpoint has %d generations, nothing to do", data.Generation)
		}
		log.Noticef("Resuming after generation %d, %d generations remaining", data.Generation, remaining)
		ds.Generations = remaining
		ds.Completed = data.Generation
	}
	ds.Init = dream.InitStart
	ds.Start = data.Chains
	ds.CRWeights = data.Weights
	return ds.Validate()
}
