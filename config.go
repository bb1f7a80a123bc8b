package cirunner

import (
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/ci-runner/flags"
	"github.com/ethereum-optimism/infra/ci-runner/runner"
	"github.com/ethereum-optimism/infra/ci-runner/types"
)

// Config holds the application configuration
type Config struct {
	Pipeline     types.Pipeline
	PipelineFile string // Absolute path of the pipeline file, empty when flags only
	WorkDir      string // Absolute directory every command runs in
	Shell        string
	LogDir       string // Per-step log files are written when set
	HistoryDB    string // Runs are recorded in this sqlite database when set
	ShowSummary  bool
	Metrics      opmetrics.CLIConfig
	HealthzPort  int
	Log          log.Logger

	// Optional overrides, mostly for tests. Nil values fall back to the
	// process streams and runner.DefaultCmdBuilder.
	Out        io.Writer
	CmdStdout  io.Writer
	CmdStderr  io.Writer
	CmdBuilder runner.CmdBuilder
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckFlags(ctx); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	var absPipelineFile string
	pipeline := types.DefaultPipeline()
	if file := ctx.String(flags.PipelineConfig.Name); file != "" {
		var err error
		absPipelineFile, err = filepath.Abs(file)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for pipeline file '%s': %w", file, err)
		}
		pipeline, err = types.LoadPipeline(absPipelineFile)
		if err != nil {
			return nil, err
		}
	}
	applyPipelineFlags(ctx, &pipeline, absPipelineFile != "")
	if err := pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}

	// Resolve the absolute paths
	workDir, err := filepath.Abs(ctx.String(flags.WorkDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", ctx.String(flags.WorkDir.Name), err)
	}
	logDir, err := absOrEmpty(ctx.String(flags.LogDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", ctx.String(flags.LogDir.Name), err)
	}
	historyDB, err := absOrEmpty(ctx.String(flags.HistoryDB.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for history database '%s': %w", ctx.String(flags.HistoryDB.Name), err)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	return &Config{
		Pipeline:     pipeline,
		PipelineFile: absPipelineFile,
		WorkDir:      workDir,
		Shell:        ctx.String(flags.Shell.Name),
		LogDir:       logDir,
		HistoryDB:    historyDB,
		ShowSummary:  ctx.Bool(flags.Summary.Name),
		Metrics:      metricsCfg,
		HealthzPort:  ctx.Int(flags.HealthzPort.Name),
		Log:          log,
	}, nil
}

// applyPipelineFlags copies flag values onto the pipeline. Without a pipeline
// file every flag applies, defaults included; with one, only flags set on the
// command line or through the environment override the file.
func applyPipelineFlags(ctx *cli.Context, p *types.Pipeline, fromFile bool) {
	use := func(name string) bool {
		return !fromFile || ctx.IsSet(name)
	}
	if use(flags.InstallCmd.Name) {
		p.Install.Command = ctx.String(flags.InstallCmd.Name)
	}
	if use(flags.SkipInstall.Name) {
		p.Install.Skip = ctx.Bool(flags.SkipInstall.Name)
	}
	if use(flags.AllowInstallFailure.Name) {
		p.Install.AllowFailure = ctx.Bool(flags.AllowInstallFailure.Name)
	}
	if use(flags.TestCmd.Name) {
		p.Test.Command = ctx.String(flags.TestCmd.Name)
	}
	if use(flags.TestName.Name) {
		p.Test.Name = ctx.String(flags.TestName.Name)
	}
	if use(flags.SamplesDir.Name) {
		p.Samples.Dir = ctx.String(flags.SamplesDir.Name)
	}
	if use(flags.SamplesPrefix.Name) {
		p.Samples.Prefix = ctx.String(flags.SamplesPrefix.Name)
	}
	if use(flags.SamplesExt.Name) {
		p.Samples.Extension = ctx.String(flags.SamplesExt.Name)
	}
	if use(flags.SampleInterpreter.Name) {
		p.Samples.Interpreter = ctx.String(flags.SampleInterpreter.Name)
	}
}

func absOrEmpty(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return filepath.Abs(path)
}

// MetricsAddr returns the listen address of the metrics server
func (c *Config) MetricsAddr() string {
	return net.JoinHostPort(c.Metrics.ListenAddr, strconv.Itoa(c.Metrics.ListenPort))
}

// HealthzAddr returns the listen address of the healthz server
func (c *Config) HealthzAddr() string {
	return net.JoinHostPort(c.Metrics.ListenAddr, strconv.Itoa(c.HealthzPort))
}
