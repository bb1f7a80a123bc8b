// Package exitcodes defines the process exit codes of ci-runner.
package exitcodes

// A run ends with StepFailure as soon as one checked step (install, test
// suite or sample program) exits non-zero. RuntimeErr covers everything that
// keeps the pipeline from running to a verdict: invalid flags or pipeline
// files, an unreadable samples directory, interrupts.
const (
	Success     = 0
	StepFailure = 1
	RuntimeErr  = 2
)
