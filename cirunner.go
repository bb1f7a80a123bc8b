package cirunner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/ci-runner/exitcodes"
	"github.com/ethereum-optimism/infra/ci-runner/history"
	"github.com/ethereum-optimism/infra/ci-runner/logging"
	"github.com/ethereum-optimism/infra/ci-runner/metrics"
	"github.com/ethereum-optimism/infra/ci-runner/runner"
	"github.com/ethereum-optimism/infra/ci-runner/service"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// ciRunner implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &ciRunner{}

// ciRunner runs the pipeline once and exits.
type ciRunner struct {
	config    *Config
	version   string
	newRunner func(runner.Config) (runner.PipelineRunner, error)
	service   *service.Service
	result    *runner.RunResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(config *Config, version string, shutdownCallback func(error)) (*ciRunner, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("config.Log is required")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating ci-runner with config",
		"workDir", config.WorkDir,
		"pipelineFile", config.PipelineFile,
		"logDir", config.LogDir,
		"historyDB", config.HistoryDB,
		"metrics", config.Metrics.Enabled)

	return &ciRunner{
		config:           config,
		version:          version,
		newRunner:        runner.NewRunner,
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start implements cliapp.Lifecycle by running the pipeline once. A failing
// step is returned as a StepFailureError, anything else that goes wrong as a
// RuntimeError. On success the application is asked to shut down.
func (c *ciRunner) Start(ctx context.Context) (err error) {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			c.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	c.running.Store(true)
	c.config.Log.Info("Starting ci-runner", "version", c.version)

	if c.config.Metrics.Enabled {
		c.service = service.New(service.Config{
			HealthzAddr: c.config.HealthzAddr(),
			MetricsAddr: c.config.MetricsAddr(),
		}, c.config.Log)
		if err := c.service.Start(); err != nil {
			c.service = nil
			c.running.Store(false)
			return NewRuntimeError(err)
		}
	}
	defer func() {
		// cliapp only calls Stop after a successful Start
		if err != nil {
			c.stopService(context.Background())
			c.running.Store(false)
		}
	}()

	if _, err := c.Run(ctx); err != nil {
		return err
	}

	go func() {
		c.shutdownCallback(nil)
	}()
	return nil
}

// Run executes the pipeline once with a fresh run ID
func (c *ciRunner) Run(ctx context.Context) (*runner.RunResult, error) {
	runID := uuid.New().String()
	log := c.config.Log.New("run_id", runID)

	var stepLogger *logging.StepLogger
	if c.config.LogDir != "" {
		var err error
		stepLogger, err = logging.NewStepLogger(c.config.LogDir, runID)
		if err != nil {
			return nil, NewRuntimeError(fmt.Errorf("failed to create step logger: %w", err))
		}
		log.Info("Writing step logs", "dir", stepLogger.GetDirectory())
	}

	cmdBuilder := c.config.CmdBuilder
	if cmdBuilder == nil {
		cmdBuilder = runner.DefaultCmdBuilder
	}
	executor, err := runner.NewProcessExecutor(cmdBuilder)
	if err != nil {
		return nil, NewRuntimeError(err)
	}

	runnerCfg := runner.Config{
		Pipeline:  c.config.Pipeline,
		WorkDir:   c.config.WorkDir,
		Shell:     c.config.Shell,
		RunID:     runID,
		Executor:  executor,
		Log:       log,
		Out:       c.config.Out,
		CmdStdout: c.config.CmdStdout,
		CmdStderr: c.config.CmdStderr,
	}
	// A nil *StepLogger must not end up in the interface
	if stepLogger != nil {
		runnerCfg.Sink = stepLogger
	}
	pipelineRunner, err := c.newRunner(runnerCfg)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to create runner: %w", err))
	}

	result, err := pipelineRunner.Run(ctx)
	if err != nil {
		log.Error("Runtime error running pipeline", "error", err)
		return nil, NewRuntimeError(err)
	}
	c.result = result

	if stepLogger != nil {
		if err := stepLogger.LogSummary(result.Steps, result.Status, result.Duration); err != nil {
			log.Error("Failed to write run summary", "error", err)
			metrics.RecordErrorDetails("summary_log", err)
		}
		log.Info("Step logs written", "dir", stepLogger.GetDirectory(), "files", len(stepLogger.Files()))
		for _, f := range stepLogger.Files() {
			log.Debug("Step log", "file", f)
		}
	}
	c.recordHistory(ctx, result)
	if c.config.ShowSummary {
		printSummaryTable(c.config.Out, result)
	}

	log.Info("Pipeline completed", "status", result.Status, "summary", result.String())
	if result.Failure != nil {
		return result, NewStepFailureError(result.Failure)
	}
	return result, nil
}

// recordHistory appends the run to the history database. Failures are logged
// and never change the outcome of the run.
func (c *ciRunner) recordHistory(ctx context.Context, result *runner.RunResult) {
	if c.config.HistoryDB == "" {
		return
	}
	store, err := history.Open(c.config.HistoryDB)
	if err != nil {
		c.config.Log.Error("Failed to open history database", "path", c.config.HistoryDB, "error", err)
		metrics.RecordErrorDetails("history", err)
		return
	}
	defer store.Close()

	if err := store.RecordRun(ctx, result); err != nil {
		c.config.Log.Error("Failed to record run", "path", c.config.HistoryDB, "error", err)
		metrics.RecordErrorDetails("history", err)
		return
	}
	c.config.Log.Debug("Recorded run in history", "path", c.config.HistoryDB, "run_id", result.RunID)
}

func (c *ciRunner) stopService(ctx context.Context) {
	if c.service == nil {
		return
	}
	c.service.Shutdown(ctx)
	c.service = nil
}

// Stop implements cliapp.Lifecycle by stopping the metrics and healthz service.
func (c *ciRunner) Stop(ctx context.Context) error {
	c.config.Log.Info("Stopping ci-runner")

	if !c.running.Load() {
		c.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	c.running.Store(false)
	c.stopService(ctx)

	c.config.Log.Info("ci-runner stopped successfully")
	return nil
}

// Stopped implements cliapp.Lifecycle; it is true until Start and again after Stop or a failed Start.
func (c *ciRunner) Stopped() bool {
	return !c.running.Load()
}

// Result returns the result of the last run, or nil when no run finished
func (c *ciRunner) Result() *runner.RunResult {
	return c.result
}
