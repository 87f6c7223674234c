package dream

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// BoundHandling is a policy for candidates proposed outside the
// parameter limits.
type BoundHandling int

const (
	// BoundOff leaves the value untouched; the evaluator has to
	// reject it.
	BoundOff BoundHandling = iota
	// BoundReflect mirrors the value back into the range.
	BoundReflect
	// BoundClip clips the value to the nearest edge.
	BoundClip
	// BoundFold wraps the value around periodically.
	BoundFold
)

var boundNames = map[BoundHandling]string{
	BoundOff:     "off",
	BoundReflect: "reflect",
	BoundClip:    "bound",
	BoundFold:    "fold",
}

func (b BoundHandling) String() string {
	if s, ok := boundNames[b]; ok {
		return s
	}
	return fmt.Sprintf("BoundHandling(%d)", int(b))
}

// ParseBoundHandling returns a bound handling policy given its name
// (off, reflect, bound or fold).
func ParseBoundHandling(s string) (BoundHandling, error) {
	for b, name := range boundNames {
		if strings.EqualFold(s, name) {
			return b, nil
		}
	}
	return BoundOff, errors.Errorf("unknown bound handling: %s", s)
}

// InitMethod specifies how the starting population is generated.
type InitMethod int

const (
	// InitUniform draws every chain uniformly inside the bounds.
	InitUniform InitMethod = iota
	// InitLatin draws the chains from a Latin hypercube.
	InitLatin
	// InitStart uses the vectors from Settings.Start.
	InitStart
)

var initNames = map[InitMethod]string{
	InitUniform: "uniform",
	InitLatin:   "lhs",
	InitStart:   "start",
}

func (m InitMethod) String() string {
	if s, ok := initNames[m]; ok {
		return s
	}
	return fmt.Sprintf("InitMethod(%d)", int(m))
}

// ParseInitMethod returns an initialization method given its name
// (uniform, lhs or start).
func ParseInitMethod(s string) (InitMethod, error) {
	for m, name := range initNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return InitUniform, errors.Errorf("unknown initialization method: %s", s)
}

// Outlier test names.
const (
	OutlierIQR  = "IQR"
	OutlierNone = "none"
)

// Settings are the settings of a DREAM run.
type Settings struct {
	// NChains is the number of chains, at least 3.
	NChains int
	// Generations is the generation budget (T).
	Generations int
	// Delta is the maximum number of chain pairs used for a jump.
	Delta int
	// Steps is the number of generations between diagnostics, CR
	// draws and outlier checks.
	Steps int
	// NCR is the number of crossover values.
	NCR int
	// AdaptPCR enables adaptation of the crossover weights.
	AdaptPCR bool
	// JumpProbability is the probability of a differential
	// evolution jump; the rest are snooker jumps.
	JumpProbability float64
	// PUnitGamma is the probability of a jump with gamma=1.
	PUnitGamma float64
	// Zeta is the standard deviation of the additive jump noise.
	Zeta float64
	// Jitter is the half width of the multiplicative jump noise.
	Jitter float64
	// Outlier is the outlier test name (IQR or none).
	Outlier string
	// Thinning keeps every k-th generation in the history.
	Thinning int
	// BoundHandling is applied to candidates out of bounds.
	BoundHandling BoundHandling
	// Parallel enables concurrent density evaluation.
	Parallel bool
	// Workers is the number of concurrent evaluations, 0 for
	// GOMAXPROCS.
	Workers int
	// Seed is the random generator seed.
	Seed uint64
	// Init is the starting population method.
	Init InitMethod
	// Start holds the user supplied population (InitStart).
	Start [][]float64
	// Completed is the number of generations done by earlier runs
	// continued by this one. It offsets the checkpointed generation.
	Completed int
	// Names are the parameter names.
	Names []string
	// Lower and Upper are the parameter bounds.
	Lower []float64
	Upper []float64
	// ConvergenceThreshold stops the run once all R statistics
	// are below it for ConvergenceChecks diagnostics in a row.
	// Zero disables the check.
	ConvergenceThreshold float64
	ConvergenceChecks    int
	// DegradedAfter is the number of consecutive generations
	// with no finite candidate density before a warning.
	DegradedAfter int
	// MinCRWeight is the crossover weight floor multiplied by
	// 1/NCR.
	MinCRWeight float64
	// CRWeights are optional starting crossover weights, e.g.
	// from a checkpoint.
	CRWeights []float64
}

// NewSettings creates settings with default values for given
// parameter bounds.
func NewSettings(lower, upper []float64) *Settings {
	nChains := 2 * len(lower)
	if nChains < 3 {
		nChains = 3
	}
	names := make([]string, len(lower))
	for i := range names {
		names[i] = fmt.Sprintf("p%d", i)
	}
	return &Settings{
		NChains:           nChains,
		Generations:       10000,
		Delta:             3,
		Steps:             10,
		NCR:               3,
		AdaptPCR:          true,
		JumpProbability:   0.9,
		PUnitGamma:        0.2,
		Zeta:              1e-12,
		Jitter:            0.05,
		Outlier:           OutlierIQR,
		Thinning:          1,
		BoundHandling:     BoundReflect,
		Init:              InitUniform,
		Names:             names,
		Lower:             lower,
		Upper:             upper,
		ConvergenceChecks: 3,
		DegradedAfter:     5,
		MinCRWeight:       0.01,
	}
}

// NParams returns the number of parameters.
func (s *Settings) NParams() int {
	return len(s.Lower)
}

// inUnit checks that a probability is in [0, 1].
func inUnit(x float64) bool {
	return x >= 0 && x <= 1
}

// Validate checks the settings before any sampling work is done.
func (s *Settings) Validate() error {
	switch {
	case s.NChains < 3:
		return errors.Errorf("at least 3 chains are required for differential evolution, got %d", s.NChains)
	case s.NCR < 1:
		return errors.Errorf("number of crossover values should be >= 1, got %d", s.NCR)
	case s.Generations < 1:
		return errors.Errorf("number of generations should be >= 1, got %d", s.Generations)
	case s.Delta < 1:
		return errors.Errorf("number of pairs (delta) should be >= 1, got %d", s.Delta)
	case s.Steps < 1:
		return errors.Errorf("steps should be >= 1, got %d", s.Steps)
	case s.Thinning < 1:
		return errors.Errorf("thinning should be >= 1, got %d", s.Thinning)
	case s.Completed < 0:
		return errors.Errorf("completed generations should be >= 0, got %d", s.Completed)
	case s.Workers < 0:
		return errors.Errorf("number of workers should be >= 0, got %d", s.Workers)
	case !inUnit(s.JumpProbability):
		return errors.Errorf("jump probability should be in [0, 1], got %v", s.JumpProbability)
	case !inUnit(s.PUnitGamma):
		return errors.Errorf("unit gamma probability should be in [0, 1], got %v", s.PUnitGamma)
	case !(s.Zeta >= 0) || math.IsInf(s.Zeta, 0):
		return errors.Errorf("zeta should be finite and >= 0, got %v", s.Zeta)
	case !(s.Jitter >= 0 && s.Jitter < 1):
		return errors.Errorf("jitter should be in [0, 1), got %v", s.Jitter)
	case !(s.MinCRWeight > 0 && s.MinCRWeight <= 1):
		return errors.Errorf("minimum crossover weight should be in (0, 1], got %v", s.MinCRWeight)
	case s.ConvergenceThreshold < 0:
		return errors.Errorf("convergence threshold should be >= 0, got %v", s.ConvergenceThreshold)
	case s.ConvergenceThreshold > 0 && s.ConvergenceChecks < 1:
		return errors.Errorf("convergence checks should be >= 1, got %d", s.ConvergenceChecks)
	}

	if len(s.CRWeights) != 0 {
		n := s.NCR
		if !s.AdaptPCR {
			n = len(fixedCR)
		}
		if len(s.CRWeights) != n {
			return errors.Errorf("expected %d crossover weights, got %d", n, len(s.CRWeights))
		}
		var sum float64
		for _, w := range s.CRWeights {
			if !(w >= 0) {
				return errors.Errorf("negative crossover weight: %v", w)
			}
			sum += w
		}
		if !(sum > 0) || math.IsInf(sum, 0) {
			return errors.New("crossover weights should sum to a positive number")
		}
	}
	if !strings.EqualFold(s.Outlier, OutlierIQR) && !strings.EqualFold(s.Outlier, OutlierNone) {
		return errors.Errorf("unknown outlier test: %s", s.Outlier)
	}
	if _, ok := boundNames[s.BoundHandling]; !ok {
		return errors.Errorf("unknown bound handling: %v", s.BoundHandling)
	}

	np := s.NParams()
	if np < 1 {
		return errors.New("at least one parameter is required")
	}
	if len(s.Upper) != np {
		return errors.Errorf("lower (%d) and upper (%d) bounds length mismatch", np, len(s.Upper))
	}
	if len(s.Names) != 0 && len(s.Names) != np {
		return errors.Errorf("expected %d parameter names, got %d", np, len(s.Names))
	}
	for i := range s.Lower {
		if math.IsNaN(s.Lower[i]) || math.IsNaN(s.Upper[i]) || s.Lower[i] >= s.Upper[i] {
			return errors.Errorf("parameter %d: invalid bounds [%v, %v]", i, s.Lower[i], s.Upper[i])
		}
	}

	switch s.Init {
	case InitUniform, InitLatin:
	case InitStart:
		if len(s.Start) != s.NChains {
			return errors.Errorf("expected %d starting vectors, got %d", s.NChains, len(s.Start))
		}
		for c, x := range s.Start {
			if len(x) != np {
				return errors.Errorf("starting vector %d has %d values, expected %d", c, len(x), np)
			}
		}
	default:
		return errors.Errorf("unknown initialization method: %v", s.Init)
	}
	return nil
}

// String returns a short description of the settings.
func (s *Settings) String() string {
	return fmt.Sprintf("DREAM (chains=%v, generations=%v, delta=%v, steps=%v, nCR=%v, adaptPCR=%v, "+
		"jump=%v, pUnitGamma=%v, zeta=%v, outlier=%v, thinning=%v, bounds=%v)",
		s.NChains, s.Generations, s.Delta, s.Steps, s.NCR, s.AdaptPCR,
		s.JumpProbability, s.PUnitGamma, s.Zeta, s.Outlier, s.Thinning, s.BoundHandling)
}
