package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/ci-runner/metrics"
	"github.com/ethereum-optimism/infra/ci-runner/types"
)

// RunResult captures the complete pipeline run
type RunResult struct {
	RunID    string
	Steps    []*types.StepResult
	Status   types.StepStatus
	Duration time.Duration
	Stats    ResultStats

	// Failure is set when a checked step exited with a non-zero status
	Failure    *types.StepFailure
	FailedStep *types.StepResult
}

// ResultStats tracks step statistics for a run
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

func (r *RunResult) String() string {
	s := fmt.Sprintf("Run %s: %s (%d steps: %d passed, %d failed, %d skipped) in %.1fs",
		r.RunID, r.Status, r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped, r.Duration.Seconds())
	if r.Failure != nil {
		s += fmt.Sprintf("; %s", r.Failure.Error())
	}
	return s
}

// PipelineRunner runs the install, test and sample steps of a pipeline
type PipelineRunner interface {
	// Run executes the pipeline, stopping at the first failing checked step.
	// A failing step is reported in RunResult.Failure; the returned error is
	// reserved for runtime errors (bad configuration, unreadable samples
	// directory, cancellation).
	Run(ctx context.Context) (*RunResult, error)
}

// OutputSink receives the output of steps that is not shown on the console
type OutputSink interface {
	Open(index int, kind types.StepKind, name string) (io.WriteCloser, string, error)
}

// Config holds configuration for creating a new runner
type Config struct {
	Pipeline types.Pipeline
	WorkDir  string // Directory every command runs in
	Shell    string // Shell used for the install and test commands
	RunID    string // Generated when empty
	Executor ProcessExecutor
	Log      log.Logger
	Sink     OutputSink // Optional per-step log files

	Out       io.Writer // Console contract (banners and check lines)
	CmdStdout io.Writer // Where install and test output is streamed
	CmdStderr io.Writer
}

// runner implements the PipelineRunner interface
type runner struct {
	pipeline  types.Pipeline
	workDir   string
	shell     string
	runID     string
	executor  ProcessExecutor
	log       log.Logger
	sink      OutputSink
	out       io.Writer
	cmdStdout io.Writer
	cmdStderr io.Writer
	tracer    trace.Tracer
}

var _ PipelineRunner = (*runner)(nil)

// NewRunner creates a new pipeline runner
func NewRunner(cfg Config) (PipelineRunner, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.CmdStdout == nil {
		cfg.CmdStdout = os.Stdout
	}
	if cfg.CmdStderr == nil {
		cfg.CmdStderr = os.Stderr
	}

	cfg.Log.Debug("NewRunner()", "workDir", cfg.WorkDir, "shell", cfg.Shell,
		"install", cfg.Pipeline.Install.Command, "test", cfg.Pipeline.Test.Command,
		"samplesDir", cfg.Pipeline.Samples.Dir)

	return &runner{
		pipeline:  cfg.Pipeline,
		workDir:   cfg.WorkDir,
		shell:     cfg.Shell,
		runID:     cfg.RunID,
		executor:  cfg.Executor,
		log:       cfg.Log,
		sink:      cfg.Sink,
		out:       cfg.Out,
		cmdStdout: cfg.CmdStdout,
		cmdStderr: cfg.CmdStderr,
		tracer:    otel.Tracer("ci runner"),
	}, nil
}

// Run implements the PipelineRunner interface
func (r *runner) Run(ctx context.Context) (*RunResult, error) {
	runID := r.runID
	if runID == "" {
		runID = uuid.New().String()
	}

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run %s", runID))
	defer span.End()

	start := time.Now()
	r.log.Debug("Running pipeline", "run_id", runID)

	result := &RunResult{
		RunID: runID,
		Stats: ResultStats{StartTime: start},
	}

	if err := r.runSteps(ctx, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result.Duration = time.Since(start)
	result.Stats.EndTime = time.Now()
	result.Status = types.StepStatusPass
	if result.Failure != nil {
		result.Status = types.StepStatusFail
		span.SetStatus(codes.Error, result.Failure.Error())
	}
	metrics.RecordRun(runID, result.Status, result.Duration)
	return result, nil
}

func (r *runner) runSteps(ctx context.Context, result *RunResult) error {
	if err := r.runInstall(ctx, result); err != nil || result.Failure != nil {
		return err
	}
	if err := r.runTests(ctx, result); err != nil || result.Failure != nil {
		return err
	}
	return r.runSamples(ctx, result)
}

// runInstall runs the installer. It is a checked step unless the pipeline
// allows installer failures, in which case a failure is only logged.
func (r *runner) runInstall(ctx context.Context, result *RunResult) error {
	install := r.pipeline.Install
	if install.Skip {
		r.log.Info("Skipping install step")
		r.addStep(result, &types.StepResult{
			Name:   install.Command,
			Kind:   types.StepKindInstall,
			Status: types.StepStatusSkip,
		})
		return nil
	}

	step, err := r.execute(ctx, result, types.StepKindInstall, install.Command, r.shellInvocation(install.Command), true)
	if err != nil {
		return err
	}
	if install.AllowFailure {
		if step.ExitCode != 0 {
			r.log.Warn("Install step failed, continuing", "command", install.Command, "exitCode", step.ExitCode)
		}
		return nil
	}
	r.check(result, step)
	return nil
}

func (r *runner) runTests(ctx context.Context, result *RunResult) error {
	test := r.pipeline.Test
	step, err := r.execute(ctx, result, types.StepKindTest, test.Description(), r.shellInvocation(test.Command), true)
	if err != nil {
		return err
	}
	r.check(result, step)
	return nil
}

func (r *runner) runSamples(ctx context.Context, result *RunResult) error {
	samples, err := DiscoverSamples(r.workDir, r.pipeline.Samples)
	if err != nil {
		if errors.Is(err, ErrSamplesDirMissing) {
			r.log.Warn("Samples directory not found, no samples to run", "dir", r.pipeline.Samples.Dir)
			return nil
		}
		return err
	}
	if len(samples) == 0 {
		r.log.Warn("No sample programs matched", "dir", r.pipeline.Samples.Dir,
			"prefix", r.pipeline.Samples.Prefix, "extension", r.pipeline.Samples.Extension)
		return nil
	}
	r.log.Info("Discovered sample programs", "count", len(samples))

	for _, sample := range samples {
		printBanner(r.out, sample)
		step, err := r.execute(ctx, result, types.StepKindSample, sample, r.sampleInvocation(sample), false)
		if err != nil {
			return err
		}
		r.check(result, step)
		if result.Failure != nil {
			return nil
		}
	}
	return nil
}

// check applies CheckError to a finished step and records the first failure
func (r *runner) check(result *RunResult, step *types.StepResult) {
	step.Checked = true
	err := CheckError(r.out, step.ExitCode, step.Name)
	if err == nil {
		return
	}
	var failure *types.StepFailure
	if errors.As(err, &failure) {
		step.Error = failure
		result.Failure = failure
		result.FailedStep = step
	}
	logCtx := []any{"step", step.Name, "kind", step.Kind, "exitCode", step.ExitCode}
	if step.Kind == types.StepKindSample {
		// sample output never reached the console
		logCtx = append(logCtx, "outputBytes", step.OutputBytes, "outputTail", step.OutputTail)
	}
	r.log.Error("Step failed, terminating run", logCtx...)
}

// execute runs one step. Console steps stream their output to the command
// writers; the others discard it. Either way a configured sink gets a copy
// and the tail of the output is kept on the step result.
func (r *runner) execute(ctx context.Context, result *RunResult, kind types.StepKind, name string, inv Invocation, console bool) (*types.StepResult, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("%s %s", kind, name))
	defer span.End()

	if console {
		inv.Stdout = r.cmdStdout
		inv.Stderr = r.cmdStderr
	}
	inv.CaptureOutput = true

	var logFile string
	if r.sink != nil {
		w, path, err := r.sink.Open(len(result.Steps), kind, name)
		if err != nil {
			r.log.Error("Failed to open step log", "step", name, "error", err)
			metrics.RecordErrorDetails("step_log", err)
		} else {
			defer w.Close()
			logFile = path
			inv.Stdout = teeWriter(inv.Stdout, w)
			inv.Stderr = teeWriter(inv.Stderr, w)
		}
	}

	r.log.Info("Running step", "kind", kind, "name", name)
	res, err := r.executor.Execute(ctx, inv)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s step %q: %w", kind, name, err)
	}

	status := types.StepStatusPass
	if res.ExitCode != 0 {
		status = types.StepStatusFail
		span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", res.ExitCode))
	}
	span.SetAttributes(attribute.Int("exit_code", res.ExitCode))

	step := &types.StepResult{
		Name:     name,
		Kind:     kind,
		Command:  inv.CommandLine(),
		ExitCode: res.ExitCode,
		Status:   status,
		Duration: res.Duration,
		LogFile:  logFile,

		OutputTail:  string(res.OutputTail),
		OutputBytes: res.OutputBytes,
	}
	r.addStep(result, step)
	r.log.Debug("Step finished", "kind", kind, "name", name, "exitCode", res.ExitCode, "duration", res.Duration)
	return step, nil
}

func (r *runner) addStep(result *RunResult, step *types.StepResult) {
	result.Steps = append(result.Steps, step)
	result.Stats.Total++
	switch step.Status {
	case types.StepStatusPass:
		result.Stats.Passed++
	case types.StepStatusFail:
		result.Stats.Failed++
	case types.StepStatusSkip:
		result.Stats.Skipped++
	}
	metrics.RecordStep(step.Kind, step.Name, step.Status, step.ExitCode, step.Duration)
}

func (r *runner) shellInvocation(command string) Invocation {
	return Invocation{
		Program: r.shell,
		Args:    []string{ShellCommandFlag, command},
		Dir:     r.workDir,
	}
}

// sampleInvocation runs a sample with the configured interpreter, or directly
// when no interpreter is set.
func (r *runner) sampleInvocation(path string) Invocation {
	interpreter := r.pipeline.Samples.Interpreter
	if interpreter != "" {
		return Invocation{Program: interpreter, Args: []string{path}, Dir: r.workDir}
	}
	program := path
	if !filepath.IsAbs(program) && !strings.ContainsRune(program, filepath.Separator) {
		// Keep exec from searching PATH for a bare file name
		program = "." + string(filepath.Separator) + program
	}
	return Invocation{Program: program, Dir: r.workDir}
}

func teeWriter(primary, secondary io.Writer) io.Writer {
	if primary == nil {
		return secondary
	}
	return io.MultiWriter(primary, secondary)
}
