// Godream samples posterior distributions with the DREAM adaptive
// multi-chain MCMC sampler.
//
// Sample a bimodal test distribution:
//
//	godream mixture -dim 2
//
// Sample the posterior of a polynomial fit to the data in a file with
// columns x, y and dy:
//
//	godream fit -degree 2 data.txt
//
// To see all the options run:
//
//	godream -h
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"syscall"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"github.com/reflfit/godream/checkpoint"
	"github.com/reflfit/godream/dream"
	"github.com/reflfit/godream/plots"
	"github.com/reflfit/godream/posterior"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("godream")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("godream", "DREAM posterior sampler").Version(version)

	// problems
	mixtureCmd = app.Command("mixture", "sample a mixture of normal distributions")
	mixDim     = mixtureCmd.Flag("dim", "number of parameters").Default("2").Int()
	mixModes   = mixtureCmd.Flag("modes", "number of mixture components").Default("2").Int()
	mixSep     = mixtureCmd.Flag("sep", "distance between neighbouring modes along each axis").Default("3").Float64()
	mixSigma   = mixtureCmd.Flag("sigma", "standard deviation of the components").Default("1").Float64()

	normalCmd = app.Command("normal", "sample a correlated multivariate normal distribution")
	normDim   = normalCmd.Flag("dim", "number of parameters").Default("5").Int()
	normRho   = normalCmd.Flag("rho", "correlation between all the parameters").Default("0.9").Float64()

	fitCmd    = app.Command("fit", "sample the posterior of a polynomial curve fit")
	fitData   = fitCmd.Arg("data", "data file with columns x, y and optionally dy").Required().ExistingFile()
	fitDegree = fitCmd.Flag("degree", "polynomial degree").Default("1").Int()
	fitMin    = fitCmd.Flag("min", "lower bound of the coefficients").Default("-100").Float64()
	fitMax    = fitCmd.Flag("max", "upper bound of the coefficients").Default("100").Float64()

	// sampler parameters
	nChains     = app.Flag("chains", "number of chains (2*parameters by default)").Default("-1").Int()
	generations = app.Flag("gen", "number of generations").Default("10000").Int()
	delta       = app.Flag("delta", "maximum number of chain pairs per jump").Default("3").Int()
	steps       = app.Flag("steps", "generations between diagnostics and outlier checks").Default("10").Int()
	nCR         = app.Flag("ncr", "number of crossover values").Default("3").Int()
	noAdapt     = app.Flag("noadapt", "don't adapt crossover probabilities").Bool()
	jump        = app.Flag("jump", "probability of a differential evolution jump, the rest are snooker jumps").Default("0.9").Float64()
	unitGamma   = app.Flag("gamma1", "probability of a jump with gamma=1").Default("0.2").Float64()
	zeta        = app.Flag("zeta", "standard deviation of the additive jump noise").Default("1e-12").Float64()
	jitter      = app.Flag("jitter", "half width of the multiplicative jump noise").Default("0.05").Float64()
	outlier     = app.Flag("outlier", "outlier test").Default("IQR").Enum("IQR", "none")
	thinning    = app.Flag("thin", "store every N-th generation").Default("1").Int()
	bounds      = app.Flag("bounds", "bound handling (off, reflect, bound, fold)").Default("reflect").Enum("off", "reflect", "bound", "fold")
	initMethod  = app.Flag("init", "starting population (uniform, lhs)").Default("uniform").Enum("uniform", "lhs")
	converge    = app.Flag("converge", "stop when all R statistics are below the value (0 to disable)").Default("0").Float64()
	checks      = app.Flag("checks", "number of consecutive converged diagnostics to stop").Default("3").Int()
	burn        = app.Flag("burn", "fraction of stored generations to discard in the summary").Default("0.5").Float64()

	// technical
	nThreads = app.Flag("nt", "number of threads to use").Int()
	parallel = app.Flag("parallel", "evaluate chains concurrently").Bool()
	seed     = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	outF     = app.Flag("out", "write chain trajectories to a file").String()
	report   = app.Flag("report", "write trajectories every N generations").Default("10").Int()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF       = app.Flag("json", "write json output to a file").String()
	plotPrefix  = app.Flag("plot", "save diagnostic plots with the file prefix").String()
	checkpointF = app.Flag("checkpoint", "checkpoint database file").String()
	checkpointS = app.Flag("checkpoint-seconds", "minimal interval between checkpoints").Default("60").Float64()
	resume      = app.Flag("resume", "resume from the checkpoint database").Bool()
)

// openCheckpoint opens the checkpoint database and loads a stored
// checkpoint if resuming.
func openCheckpoint(ds *dream.Settings) (*bolt.DB, *checkpoint.CheckpointIO) {
	if *checkpointF == "" {
		if *resume {
			log.Fatal("-resume requires -checkpoint")
		}
		return nil, nil
	}
	db, err := bolt.Open(*checkpointF, 0666, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		log.Fatal("Error opening checkpoint database:", err)
	}
	c := checkpoint.NewCheckpointIO(db, []byte("dream"), *checkpointS)
	if !*resume {
		return db, c
	}
	data, err := c.Load()
	if err != nil {
		log.Fatal("Error loading checkpoint:", err)
	}
	if data == nil {
		log.Warning("No checkpoint found, starting a new run")
		return db, c
	}
	if err := resumeSettings(ds, data); err != nil {
		log.Fatal(err)
	}
	return db, c
}

func run(ds *dream.Settings, eval dream.Evaluator, summary *RunSummary) {
	startTime := time.Now()

	db, c := openCheckpoint(ds)
	if db != nil {
		defer db.Close()
	}

	sampler, err := dream.NewSampler(ds, eval)
	if err != nil {
		log.Fatal(err)
	}
	sampler.WatchSignals(os.Interrupt, syscall.SIGTERM)
	if c != nil {
		sampler.SetCheckpointIO(c)
	}

	if *outF != "" {
		f, err := os.Create(*outF)
		if err != nil {
			log.Fatal("Error creating trajectory file:", err)
		}
		defer f.Close()
		sampler.SetTrajectoryOutput(f)
		sampler.SetReportPeriod(*report)
	}

	res, err := sampler.Run(context.Background())
	summary.Result = res
	if err != nil {
		log.Error("Sampling failed:", err)
		summary.Error = err.Error()
	}

	if res.History.Len() > 0 {
		post := posterior.Summarize(res.History, res.Names, *burn)
		summary.Posterior = post
		log.Notice(post)
		log.Info("Correlation matrix:\n" + post.CorrelationString())
	}

	if *plotPrefix != "" {
		if err := plots.Save(res, *burn, *plotPrefix); err != nil {
			log.Error("Error saving plots:", err)
		}
	}

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()
}

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, module := range []string{"godream", "dream", "density", "checkpoint", "plots"} {
		logging.SetLevel(level, module)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	runtime.GOMAXPROCS(*nThreads)

	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	ds, eval, err := newProblem(command)
	if err != nil {
		log.Fatal(err)
	}
	if err := applyFlags(ds); err != nil {
		log.Fatal(err)
	}

	summary := &RunSummary{
		CallSummary: CallSummary{
			Version:     version,
			CommandLine: os.Args,
			Seed:        *seed,
			NThreads:    effectiveNThreads,
		},
		Problem: command,
	}
	run(ds, eval, summary)

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}

	if summary.Error != "" {
		os.Exit(1)
	}
}
