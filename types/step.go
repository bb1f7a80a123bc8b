package types

import (
	"fmt"
	"time"
)

// StepStatus represents the possible outcomes of a pipeline step
type StepStatus string

const (
	StepStatusPass StepStatus = "pass"
	StepStatusFail StepStatus = "fail"
	StepStatusSkip StepStatus = "skip"
)

// StepKind identifies which stage of the pipeline a step belongs to
type StepKind string

const (
	StepKindInstall StepKind = "install"
	StepKindTest    StepKind = "test"
	StepKindSample  StepKind = "sample"
)

// StepResult captures the outcome of a single external command
type StepResult struct {
	Name     string // Description used in console output (command line or sample path)
	Kind     StepKind
	Command  []string // Program and arguments that were executed
	ExitCode int
	Status   StepStatus
	Checked  bool // Whether the exit code went through CheckError
	Duration time.Duration
	LogFile  string // Path of the per-step log file, if one was written
	Error    error

	// OutputTail is the end of the interleaved stdout and stderr of the step,
	// OutputBytes the full output size.
	OutputTail  string
	OutputBytes int64
}

// OutputTruncated reports whether OutputTail misses the start of the output
func (s *StepResult) OutputTruncated() bool {
	return s.OutputBytes > int64(len(s.OutputTail))
}

// Passed reports whether the step did not fail
func (s *StepResult) Passed() bool {
	return s.Status != StepStatusFail
}

// StepFailure is returned when a checked step exits with a non-zero status.
type StepFailure struct {
	Description string
	ExitCode    int
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Description, e.ExitCode)
}
