package dream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/samplemv"

	"github.com/reflfit/godream/checkpoint"
)

// log is the global logging variable.
var log = logging.MustGetLogger("dream")

// Evaluator computes the log-prior and log-likelihood of a parameter
// vector. It is called concurrently for distinct vectors when the
// sampler runs in parallel. A non-finite density rejects the vector;
// an error terminates the run.
type Evaluator interface {
	Evaluate(x []float64) (Density, error)
}

// EvaluatorFunc is a function implementing Evaluator.
type EvaluatorFunc func(x []float64) (Density, error)

// Evaluate calls f(x).
func (f EvaluatorFunc) Evaluate(x []float64) (Density, error) {
	return f(x)
}

// State is the state of the sampler.
type State int

const (
	Initializing State = iota
	Sampling
	Diagnosing
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Sampling:
		return "sampling"
	case Diagnosing:
		return "diagnosing"
	case Terminated:
		return "terminated"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Reason is the reason for the sampler termination.
type Reason int

const (
	// Budget means all the generations were completed.
	Budget Reason = iota
	// Converged means all the R statistics stayed below the
	// threshold.
	Converged
	// Cancelled means the context was cancelled or a signal was
	// received.
	Cancelled
	// EvaluatorFailed means the evaluator returned an error.
	EvaluatorFailed
)

func (r Reason) String() string {
	switch r {
	case Budget:
		return "budget exhausted"
	case Converged:
		return "converged"
	case Cancelled:
		return "cancelled"
	case EvaluatorFailed:
		return "evaluator error"
	}
	return "Reason(" + strconv.Itoa(int(r)) + ")"
}

// MarshalText encodes the reason as its description.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// RStat is a Gelman-Rubin diagnostic record.
type RStat struct {
	Generation int       `json:"generation"`
	R          []float64 `json:"r"`
}

// MarshalJSON encodes NaN statistics as null.
func (r RStat) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Generation int        `json:"generation"`
		R          []*float64 `json:"r"`
	}{r.Generation, nullable(r.R)})
}

// nullable returns pointers to finite values and nil for the others.
func nullable(x []float64) []*float64 {
	p := make([]*float64, len(x))
	for i := range x {
		if !math.IsNaN(x[i]) && !math.IsInf(x[i], 0) {
			p[i] = &x[i]
		}
	}
	return p
}

// Acceptance is the mean acceptance rate since the previous record.
type Acceptance struct {
	Generation int     `json:"generation"`
	Rate       float64 `json:"rate"`
}

// CRWeights are the crossover selection probabilities at a
// diagnostic.
type CRWeights struct {
	Generation int       `json:"generation"`
	Weights    []float64 `json:"weights"`
}

// Sample is a single point of a chain.
type Sample struct {
	Generation int       `json:"generation"`
	Chain      int       `json:"chain"`
	X          []float64 `json:"x"`
	Density
}

// MarshalJSON encodes non-finite densities as null.
func (s Sample) MarshalJSON() ([]byte, error) {
	d := nullable([]float64{s.LogPrior, s.LogLikelihood})
	return json.Marshal(struct {
		Generation    int       `json:"generation"`
		Chain         int       `json:"chain"`
		X             []float64 `json:"x"`
		LogPrior      *float64  `json:"logPrior"`
		LogLikelihood *float64  `json:"logLikelihood"`
	}{s.Generation, s.Chain, s.X, d[0], d[1]})
}

// Result is the output of a run. It is returned even when the run
// terminated early and holds only completed generations.
type Result struct {
	Names       []string       `json:"names"`
	History     *History       `json:"-"`
	RStat       []RStat        `json:"rStat"`
	Acceptance  []Acceptance   `json:"acceptance"`
	CRValues    []float64      `json:"crValues"`
	CR          []CRWeights    `json:"cr"`
	Outliers    []OutlierEvent `json:"outliers"`
	Best        Sample         `json:"best"`
	Generations int            `json:"generations"`
	Reason      Reason         `json:"reason"`
	// Degraded counts generations where no candidate had a finite
	// density.
	Degraded int   `json:"degraded"`
	Err      error `json:"-"`
}

// Sampler is the DREAM sampler.
type Sampler struct {
	settings *Settings
	eval     Evaluator
	rng      *rand.Rand
	src      rand.Source
	state    State

	pop       *Population
	crs       *CrossoverScheduler
	proposals *ProposalGenerator
	outliers  *OutlierMonitor
	history   *History
	result    *Result

	// block bookkeeping
	assignment    *CRAssignment
	blockAccepted int
	blockProposed int
	convergedRuns int
	degradedRuns  int

	sig        chan os.Signal
	checkpoint *checkpoint.CheckpointIO
	traj       io.Writer
	repPeriod  int
	Quiet      bool
}

// NewSampler creates a new sampler. The settings are validated.
func NewSampler(s *Settings, eval Evaluator) (*Sampler, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if eval == nil {
		return nil, errors.New("an evaluator is required")
	}
	src := rand.NewSource(s.Seed)
	return &Sampler{
		settings:  s,
		eval:      eval,
		src:       src,
		rng:       rand.New(src),
		repPeriod: 10,
	}, nil
}

// WatchSignals stops the sampler after the current generation when
// one of the signals is received.
func (s *Sampler) WatchSignals(sigs ...os.Signal) {
	s.sig = make(chan os.Signal, 1)
	signal.Notify(s.sig, sigs...)
}

// SetCheckpointIO enables checkpoint saving at diagnostics.
func (s *Sampler) SetCheckpointIO(c *checkpoint.CheckpointIO) {
	s.checkpoint = c
}

// SetTrajectoryOutput sets the writer for chain trajectories.
func (s *Sampler) SetTrajectoryOutput(w io.Writer) {
	s.traj = w
}

// SetReportPeriod sets how often (in generations) the trajectory is
// written.
func (s *Sampler) SetReportPeriod(period int) {
	s.repPeriod = period
}

// State returns the sampler state.
func (s *Sampler) State() State {
	return s.state
}

// workers returns the number of concurrent evaluations.
func (s *Sampler) workers() int {
	if !s.settings.Parallel {
		return 1
	}
	if s.settings.Workers > 0 {
		return s.settings.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// evaluate computes densities for all the vectors. The first error
// by chain order is returned, so failures do not depend on
// scheduling.
func (s *Sampler) evaluate(xs [][]float64) ([]Density, error) {
	ds := make([]Density, len(xs))
	errs := make([]error, len(xs))
	if n := s.workers(); n > 1 {
		p := pool.New().WithMaxGoroutines(n)
		for i := range xs {
			i := i
			p.Go(func() {
				ds[i], errs[i] = s.eval.Evaluate(xs[i])
			})
		}
		p.Wait()
	} else {
		for i := range xs {
			ds[i], errs[i] = s.eval.Evaluate(xs[i])
			if errs[i] != nil {
				break
			}
		}
	}
	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "evaluating chain %d", i)
		}
	}
	return ds, nil
}

// start returns the starting vectors.
func (s *Sampler) start() [][]float64 {
	st := s.settings
	np := st.NParams()
	xs := make([][]float64, st.NChains)
	switch st.Init {
	case InitStart:
		for c := range xs {
			xs[c] = append([]float64(nil), st.Start[c]...)
		}
		return xs
	case InitLatin:
		batch := mat.NewDense(st.NChains, np, nil)
		samplemv.LatinHypercube{
			Q:   distmv.NewUnitUniform(np, s.src),
			Src: s.src,
		}.Sample(batch)
		for c := range xs {
			xs[c] = make([]float64, np)
			for j := range xs[c] {
				min, max := initRange(st.Lower[j], st.Upper[j])
				xs[c][j] = min + batch.At(c, j)*(max-min)
			}
		}
		return xs
	}
	for c := range xs {
		xs[c] = make([]float64, np)
		for j := range xs[c] {
			min, max := initRange(st.Lower[j], st.Upper[j])
			xs[c][j] = min + s.rng.Float64()*(max-min)
		}
	}
	return xs
}

// initialize creates the population and all the logs.
func (s *Sampler) initialize() error {
	st := s.settings
	s.state = Initializing
	s.crs = NewCrossoverScheduler(st.NCR, st.AdaptPCR, st.MinCRWeight)
	if len(st.CRWeights) != 0 {
		s.crs.SetWeights(st.CRWeights)
	}
	s.proposals = NewProposalGenerator(st)
	s.outliers = NewOutlierMonitor(st.Outlier, st.NChains)
	s.history = NewHistory(st.NParams(), st.NChains, st.Thinning)
	s.result = &Result{
		Names:    st.Names,
		History:  s.history,
		CRValues: s.crs.Values(),
	}

	xs := s.start()
	ds, err := s.evaluate(xs)
	if err != nil {
		return errors.Wrap(err, "initial population")
	}
	s.pop = NewPopulation(xs, ds)
	s.updateBest(0)

	nFinite := 0
	for _, d := range ds {
		if d.Finite() {
			nFinite++
		}
	}
	if nFinite < len(ds) {
		log.Warningf("%d of %d starting points have non-finite density", len(ds)-nFinite, len(ds))
	}
	return nil
}

// Run runs the sampler until the generation budget is exhausted, the
// chains converge, ctx is cancelled or the evaluator fails. The
// result is returned in all cases; the error is the evaluator error.
func (s *Sampler) Run(ctx context.Context) (*Result, error) {
	st := s.settings
	if !s.Quiet {
		log.Info(st)
	}

	if err := s.initialize(); err != nil {
		return s.terminate(EvaluatorFailed, err)
	}
	s.printHeader()

	s.state = Sampling
	for gen := 0; gen < st.Generations; gen++ {
		select {
		case <-ctx.Done():
			log.Warningf("Context cancelled: %v, stopping.", ctx.Err())
			return s.terminate(Cancelled, nil)
		case sig := <-s.sig:
			log.Warningf("Received signal %v, stopping.", sig)
			return s.terminate(Cancelled, nil)
		default:
		}

		if err := s.generation(ctx, gen); err != nil {
			if errors.Cause(err) == context.Canceled || errors.Cause(err) == context.DeadlineExceeded {
				log.Warningf("Context cancelled during generation %d, stopping.", gen+1)
				return s.terminate(Cancelled, nil)
			}
			return s.terminate(EvaluatorFailed, err)
		}

		completed := gen + 1
		if completed%st.Steps == 0 || completed == st.Generations {
			if s.diagnose(completed) {
				return s.terminate(Converged, nil)
			}
		}
	}
	return s.terminate(Budget, nil)
}

// generation performs a single generation step. Nothing is committed
// if it returns an error.
func (s *Sampler) generation(ctx context.Context, gen int) error {
	st := s.settings
	t := gen % st.Steps
	if t == 0 {
		s.assignment = s.crs.Draw(s.rng, st.NChains, st.Steps)
	}
	cr, crIndex := s.assignment.Column(t)

	xs := s.pop.Positions()
	cands := s.proposals.Propose(s.rng, xs, cr)
	u := make([]float64, len(cands))
	for i := range u {
		u[i] = s.rng.Float64()
	}

	vs := make([][]float64, len(cands))
	for i := range cands {
		vs[i] = cands[i].X
	}
	ds, err := s.evaluate(vs)
	if err != nil {
		return errors.Wrapf(err, "generation %d", gen+1)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// jump distances are normalized by the spread of the committed
	// population, computed before the commit
	jumps := s.jumpDistances(xs, cands)

	accepted := s.pop.Update(cands, ds, u)

	nFinite, nAccepted := 0, 0
	for i := range accepted {
		if ds[i].Finite() {
			nFinite++
		}
		d := 0.
		if accepted[i] {
			nAccepted++
			d = jumps[i]
		}
		s.crs.Record(crIndex[i], d)
	}
	s.blockAccepted += nAccepted
	s.blockProposed += len(accepted)

	if nFinite == 0 {
		s.degradedRuns++
		s.result.Degraded++
		if s.degradedRuns == st.DegradedAfter {
			log.Warningf("No finite density for %d consecutive generations (generation %d), sampling continues",
				s.degradedRuns, gen+1)
		}
	} else {
		s.degradedRuns = 0
	}
	if nFinite < len(ds) {
		log.Debugf("Generation %d: %d non-finite densities rejected", gen+1, len(ds)-nFinite)
	}

	chains := s.pop.Current()
	s.history.Append(chains)
	s.outliers.Observe(chains)
	s.result.Generations = gen + 1
	s.updateBest(gen + 1)
	s.printLine(gen + 1)
	return nil
}

// jumpDistances returns the squared jump distances normalized by the
// variance of every parameter across the chains.
func (s *Sampler) jumpDistances(xs [][]float64, cands []Candidate) []float64 {
	np := len(xs[0])
	variance := make([]float64, np)
	col := make([]float64, len(xs))
	for j := range variance {
		for c := range xs {
			col[c] = xs[c][j]
		}
		variance[j] = stat.Variance(col, nil)
	}
	d := make([]float64, len(cands))
	for i := range cands {
		for j, v := range variance {
			if v > 0 {
				diff := cands[i].X[j] - xs[i][j]
				d[i] += diff * diff / v
			}
		}
	}
	return d
}

// diagnose runs outlier repair, the R statistic, crossover
// adaptation and checkpoint saving. It returns true if the chains
// converged.
func (s *Sampler) diagnose(gen int) bool {
	st := s.settings
	s.state = Diagnosing
	defer func() { s.state = Sampling }()

	events := s.outliers.ScanAndRepair(gen, s.pop)
	s.result.Outliers = append(s.result.Outliers, events...)

	r := Gelman(s.history.Tail(), s.history.NParams)
	s.result.RStat = append(s.result.RStat, RStat{Generation: gen, R: r})

	s.crs.Adapt()
	s.result.CR = append(s.result.CR, CRWeights{Generation: gen, Weights: s.crs.Weights()})

	rate := float64(s.blockAccepted) / float64(s.blockProposed)
	s.result.Acceptance = append(s.result.Acceptance, Acceptance{Generation: gen, Rate: rate})
	s.blockAccepted, s.blockProposed = 0, 0

	if !s.Quiet {
		log.Infof("%d: acceptance rate %.2f%%, R=%s, pCR=%s", gen, 100*rate, floatsString(r), floatsString(s.crs.Weights()))
	}

	if s.checkpoint != nil && s.checkpoint.Old() {
		// errors are logged by checkpoint
		_ = s.saveCheckpoint(false)
	}

	if st.ConvergenceThreshold > 0 && converged(r, st.ConvergenceThreshold) {
		s.convergedRuns++
		if s.convergedRuns >= st.ConvergenceChecks {
			log.Noticef("Converged after %d generations (R < %v for %d checks)", gen, st.ConvergenceThreshold, s.convergedRuns)
			return true
		}
	} else {
		s.convergedRuns = 0
	}
	return false
}

// updateBest stores the best committed chain state.
func (s *Sampler) updateBest(gen int) {
	b := s.pop.Best()
	ch := s.pop.Current()[b]
	if s.result.Best.X == nil || ch.LogDensity() > s.result.Best.LogDensity() {
		s.result.Best = Sample{
			Generation: gen,
			Chain:      b,
			X:          append([]float64(nil), ch.X...),
			Density:    ch.Density,
		}
	}
}

// terminate finalizes the result.
func (s *Sampler) terminate(reason Reason, err error) (*Result, error) {
	s.state = Terminated
	s.result.Reason = reason
	s.result.Err = err
	if s.pop != nil && s.checkpoint != nil {
		_ = s.saveCheckpoint(reason == Budget || reason == Converged)
	}
	switch {
	case err != nil:
		log.Errorf("Sampling stopped after %d generations: %v", s.result.Generations, err)
	case !s.Quiet:
		log.Noticef("Sampling finished after %d generations (%v)", s.result.Generations, reason)
		log.Noticef("Best lnP=%v at generation %d, chain %d", s.result.Best.LogDensity(), s.result.Best.Generation, s.result.Best.Chain)
		log.Infof("Acceptance: %d accepted proposals", s.pop.Accepted())
	}
	return s.result, err
}

// saveCheckpoint saves the committed population. The generation
// counts all the runs continued by this one.
func (s *Sampler) saveCheckpoint(final bool) error {
	chains := s.pop.Current()
	data := &checkpoint.Data{
		Generation:    s.settings.Completed + s.result.Generations,
		Chains:        make([][]float64, len(chains)),
		LogPrior:      make([]float64, len(chains)),
		LogLikelihood: make([]float64, len(chains)),
		Weights:       s.crs.Weights(),
		Final:         final,
	}
	for c, ch := range chains {
		data.Chains[c] = append([]float64(nil), ch.X...)
		data.LogPrior[c] = ch.LogPrior
		data.LogLikelihood[c] = ch.LogLikelihood
	}
	if n := len(s.result.RStat); n > 0 {
		data.RStat = s.result.RStat[n-1].R
	}
	return s.checkpoint.Save(data)
}

// printHeader prints the trajectory header.
func (s *Sampler) printHeader() {
	if s.traj == nil {
		return
	}
	fmt.Fprintf(s.traj, "generation\tchain\tlogPrior\tlogLikelihood\t%s\n", strings.Join(s.settings.Names, "\t"))
}

// printLine prints the committed chains every report period.
func (s *Sampler) printLine(gen int) {
	if s.traj == nil || s.repPeriod <= 0 || gen%s.repPeriod != 0 {
		return
	}
	for _, ch := range s.pop.Current() {
		fmt.Fprintf(s.traj, "%d\t%d\t%f\t%f\t%s\n", gen, ch.Index, ch.LogPrior, ch.LogLikelihood, floatsString(ch.X))
	}
}

// floatsString joins floats with tabs.
func floatsString(x []float64) string {
	s := make([]string, len(x))
	for i, v := range x {
		if math.IsNaN(v) {
			s[i] = "NaN"
			continue
		}
		s[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	return strings.Join(s, "\t")
}
