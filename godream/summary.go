package main

import (
	"github.com/reflfit/godream/dream"
	"github.com/reflfit/godream/posterior"
)

type CallSummary struct {
	// Version stores godream version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
}

// RunSummary is storing godream run summary information.
type RunSummary struct {
	CallSummary
	// Problem is the sampled problem command.
	Problem string `json:"problem"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
	// Result holds the diagnostic traces, the best sample and the
	// termination reason.
	Result *dream.Result `json:"result"`
	// Posterior is the summary of the samples after burn-in.
	Posterior *posterior.Summary `json:"posterior,omitempty"`
	// Error is the evaluator error of a failed run.
	Error string `json:"error,omitempty"`
}
