package dream

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

func init() {
	logging.SetLevel(logging.WARNING, "dream")
}

// gaussian is an isotropic standard normal density.
func gaussian(x []float64) (Density, error) {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return Density{LogLikelihood: -s / 2}, nil
}

func gaussianSettings(nChains, generations int) *Settings {
	s := NewSettings([]float64{-10, -10}, []float64{10, 10})
	s.NChains = nChains
	s.Generations = generations
	s.Seed = 7
	return s
}

func run(tst *testing.T, s *Settings, eval Evaluator) *Result {
	sampler, err := NewSampler(s, eval)
	if err != nil {
		tst.Fatal("Error creating sampler:", err)
	}
	sampler.Quiet = true
	res, err := sampler.Run(context.Background())
	if err != nil {
		tst.Fatal("Error running sampler:", err)
	}
	return res
}

func TestSamplerConfigError(tst *testing.T) {
	s := gaussianSettings(2, 10)
	if _, err := NewSampler(s, EvaluatorFunc(gaussian)); err == nil {
		tst.Error("Expected an error for 2 chains")
	}
	s = gaussianSettings(5, 10)
	if _, err := NewSampler(s, nil); err == nil {
		tst.Error("Expected an error without evaluator")
	}
}

func TestSamplerEmptyHistoryRStat(tst *testing.T) {
	s := gaussianSettings(6, 20)
	s.Thinning = 50
	res := run(tst, s, EvaluatorFunc(gaussian))
	if res.History.Len() != 0 || len(res.RStat) != 2 {
		tst.Fatal("Wrong history or diagnostics:", res.History.Len(), len(res.RStat))
	}
	for _, r := range res.RStat {
		if len(r.R) != 2 || !math.IsNaN(r.R[0]) || !math.IsNaN(r.R[1]) {
			tst.Error("Expected NaN for every parameter, got", r.R)
		}
	}
}

func TestSamplerBudget(tst *testing.T) {
	s := gaussianSettings(6, 95)
	s.Thinning = 2
	res := run(tst, s, EvaluatorFunc(gaussian))
	if res.Reason != Budget || res.Generations != 95 {
		tst.Error("Wrong termination:", res.Reason, res.Generations)
	}
	if res.History.Len() != 95/2 {
		tst.Error("Wrong history length:", res.History.Len())
	}
	// diagnostics every 10 generations and at the end
	if len(res.RStat) != 10 || len(res.Acceptance) != 10 || len(res.CR) != 10 {
		tst.Error("Wrong number of diagnostics:", len(res.RStat), len(res.Acceptance), len(res.CR))
	}
	if res.RStat[9].Generation != 95 {
		tst.Error("Last diagnostic at generation", res.RStat[9].Generation)
	}
	for _, a := range res.Acceptance {
		if a.Rate < 0 || a.Rate > 1 {
			tst.Error("Acceptance rate out of range:", a.Rate)
		}
	}
	for _, cr := range res.CR {
		var sum float64
		for _, w := range cr.Weights {
			sum += w
		}
		if math.Abs(sum-1) > smallDiff {
			tst.Error("Crossover weights sum to", sum)
		}
	}
	if res.Best.X == nil || !(res.Best.LogDensity() <= 0) {
		tst.Error("Wrong best sample:", res.Best)
	}
}

func TestSamplerDeterminism(tst *testing.T) {
	var results []*Result
	for _, workers := range []int{0, 1, 4} {
		s := gaussianSettings(8, 60)
		s.Parallel = workers > 0
		s.Workers = workers
		s.Init = InitLatin
		results = append(results, run(tst, s, EvaluatorFunc(gaussian)))
	}
	for i := 1; i < len(results); i++ {
		if !reflect.DeepEqual(results[0].History.Data, results[i].History.Data) {
			tst.Error("History depends on the number of workers")
		}
		if !reflect.DeepEqual(results[0].CR, results[i].CR) {
			tst.Error("Crossover trace depends on the number of workers")
		}
	}
}

func TestSamplerBounds(tst *testing.T) {
	s := NewSettings([]float64{0, 0}, []float64{1, 1})
	s.Generations = 200
	s.BoundHandling = BoundFold
	flat := EvaluatorFunc(func(x []float64) (Density, error) {
		return Density{}, nil
	})
	res := run(tst, s, flat)
	for _, gen := range res.History.Data {
		for j := 0; j < 2; j++ {
			for _, v := range gen[j] {
				if v < 0 || v > 1 {
					tst.Fatal("Sample out of bounds:", v)
				}
			}
		}
	}
}

func TestSamplerFatal(tst *testing.T) {
	var calls int64
	failing := EvaluatorFunc(func(x []float64) (Density, error) {
		// 6 initial evaluations and 20 generations of 6 chains
		if atomic.AddInt64(&calls, 1) > 6+20*6 {
			return Density{}, errors.New("model failure")
		}
		return gaussian(x)
	})
	s := gaussianSettings(6, 100)
	sampler, _ := NewSampler(s, failing)
	sampler.Quiet = true
	res, err := sampler.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "model failure") {
		tst.Fatal("Expected the evaluator error, got", err)
	}
	if res == nil || res.Reason != EvaluatorFailed || res.Err == nil {
		tst.Fatal("Partial result missing:", res)
	}
	if res.Generations != 20 || res.History.Len() != 20 {
		tst.Error("Wrong number of completed generations:", res.Generations, res.History.Len())
	}
	if len(res.RStat) != 2 {
		tst.Error("Wrong number of diagnostics:", len(res.RStat))
	}
	if sampler.State() != Terminated {
		tst.Error("Wrong state:", sampler.State())
	}
}

func TestSamplerCancel(tst *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls int64
	eval := EvaluatorFunc(func(x []float64) (Density, error) {
		// cancel in the middle of generation 11
		if atomic.AddInt64(&calls, 1) == 6+10*6+3 {
			cancel()
		}
		return gaussian(x)
	})
	s := gaussianSettings(6, 100)
	s.Parallel = true
	s.Workers = 3
	sampler, _ := NewSampler(s, eval)
	sampler.Quiet = true
	res, err := sampler.Run(ctx)
	if err != nil {
		tst.Fatal("Cancellation is not an error:", err)
	}
	if res.Reason != Cancelled {
		tst.Error("Wrong reason:", res.Reason)
	}
	if res.Generations != 10 || res.History.Len() != 10 || len(res.Acceptance) != 1 {
		tst.Error("Partial generation exposed:", res.Generations, res.History.Len(), len(res.Acceptance))
	}
}

func TestSamplerConverged(tst *testing.T) {
	s := gaussianSettings(6, 5000)
	s.ConvergenceThreshold = 1.2
	res := run(tst, s, EvaluatorFunc(gaussian))
	if res.Reason != Converged || res.Generations >= 5000 {
		tst.Fatal("Expected convergence, got", res.Reason, res.Generations)
	}
	for _, r := range res.RStat[len(res.RStat)-3:] {
		if !converged(r.R, 1.2) {
			tst.Error("Convergence without three good checks:", r)
		}
	}
}

func TestSamplerDegraded(tst *testing.T) {
	reject := EvaluatorFunc(func(x []float64) (Density, error) {
		return Density{LogLikelihood: math.Inf(-1)}, nil
	})
	s := gaussianSettings(4, 30)
	res := run(tst, s, reject)
	if res.Reason != Budget || res.Generations != 30 {
		tst.Error("Degraded run should not abort:", res.Reason, res.Generations)
	}
	if res.Degraded != 30 {
		tst.Error("Wrong number of degraded generations:", res.Degraded)
	}
	for _, a := range res.Acceptance {
		if a.Rate != 0 {
			tst.Error("Non-finite density accepted")
		}
	}
}

func TestSamplerStart(tst *testing.T) {
	s := gaussianSettings(3, 10)
	s.Init = InitStart
	s.Start = [][]float64{{1, 1}, {-1, 2}, {0.5, -3}}
	var first [][]float64
	eval := EvaluatorFunc(func(x []float64) (Density, error) {
		if len(first) < 3 {
			first = append(first, append([]float64(nil), x...))
		}
		return gaussian(x)
	})
	run(tst, s, eval)
	if !reflect.DeepEqual(first, s.Start) {
		tst.Error("Starting population not used:", first)
	}
}

func TestSamplerTrajectory(tst *testing.T) {
	var buf bytes.Buffer
	s := gaussianSettings(3, 20)
	sampler, _ := NewSampler(s, EvaluatorFunc(gaussian))
	sampler.Quiet = true
	sampler.SetTrajectoryOutput(&buf)
	sampler.SetReportPeriod(10)
	if _, err := sampler.Run(context.Background()); err != nil {
		tst.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// header and 3 chains at generations 10 and 20
	if len(lines) != 7 || !strings.HasPrefix(lines[0], "generation") {
		tst.Error("Wrong trajectory:", lines)
	}
}

func TestReasonText(tst *testing.T) {
	b, _ := Converged.MarshalText()
	if string(b) != "converged" {
		tst.Error("Wrong reason text:", string(b))
	}
}

func TestResultJSON(tst *testing.T) {
	reject := EvaluatorFunc(func(x []float64) (Density, error) {
		return Density{LogLikelihood: math.Inf(-1)}, nil
	})
	res := run(tst, gaussianSettings(4, 20), reject)
	b, err := json.Marshal(res)
	if err != nil {
		tst.Fatal("Error encoding result:", err)
	}
	if !strings.Contains(string(b), `"reason":"budget exhausted"`) || !strings.Contains(string(b), `"logLikelihood":null`) {
		tst.Error("Wrong encoding:", string(b))
	}
}

func BenchmarkGeneration(b *testing.B) {
	s := gaussianSettings(10, b.N)
	s.Outlier = OutlierNone
	sampler, err := NewSampler(s, EvaluatorFunc(gaussian))
	if err != nil {
		b.Fatal(err)
	}
	sampler.Quiet = true
	b.ResetTimer()
	if _, err := sampler.Run(context.Background()); err != nil {
		b.Fatal(err)
	}
}
