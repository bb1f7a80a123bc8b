package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/ci-runner/types"
)

const EnvVarPrefix = "CI_RUNNER"

var (
	PipelineConfig = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Path to a pipeline file (eg. 'pipeline.yaml'). Flags that are set explicitly override its values.",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:   "Directory in which every command is executed",
	}
	Shell = &cli.StringFlag{
		Name:    "shell",
		Value:   "sh",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHELL"),
		Usage:   "Shell used to run the install and test commands",
	}
	InstallCmd = &cli.StringFlag{
		Name:    "install-cmd",
		Value:   types.DefaultInstallCommand,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INSTALL_CMD"),
		Usage:   "Command that installs the package under test for the current user",
	}
	SkipInstall = &cli.BoolFlag{
		Name:    "skip-install",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SKIP_INSTALL"),
		Usage:   "Do not run the install command",
	}
	AllowInstallFailure = &cli.BoolFlag{
		Name:    "allow-install-failure",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ALLOW_INSTALL_FAILURE"),
		Usage:   "Continue with the test suite when the install command fails",
	}
	TestCmd = &cli.StringFlag{
		Name:    "test-cmd",
		Value:   types.DefaultTestCommand,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_CMD"),
		Usage:   "Test-runner command; it should stop at the first failing test",
	}
	TestName = &cli.StringFlag{
		Name:    "test-name",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_NAME"),
		Usage:   "Description of the test step in console output (defaults to the command)",
	}
	SamplesDir = &cli.StringFlag{
		Name:    "samples-dir",
		Value:   types.DefaultSamplesDir,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SAMPLES_DIR"),
		Usage:   "Directory containing the sample programs, relative to the workdir",
	}
	SamplesPrefix = &cli.StringFlag{
		Name:    "samples-prefix",
		Value:   types.DefaultSamplesPrefix,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SAMPLES_PREFIX"),
		Usage:   "File name prefix of sample programs",
	}
	SamplesExt = &cli.StringFlag{
		Name:    "samples-ext",
		Value:   types.DefaultSamplesExtension,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SAMPLES_EXT"),
		Usage:   "File extension of sample programs, including the dot",
	}
	SampleInterpreter = &cli.StringFlag{
		Name:    "sample-interpreter",
		Value:   types.DefaultSampleInterpreter,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SAMPLE_INTERPRETER"),
		Usage:   "Program used to run each sample. Set to '' to execute samples directly.",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory for per-step output logs. Sample output is discarded when unset.",
	}
	HistoryDB = &cli.StringFlag{
		Name:    "history-db",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HISTORY_DB"),
		Usage:   "Path to a sqlite database recording every run (disabled when unset)",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   8080,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Port of the /healthz endpoint, served on metrics.addr while metrics are enabled",
	}
	Summary = &cli.BoolFlag{
		Name:    "summary",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUMMARY"),
		Usage:   "Print a summary table of all steps after the run",
	}
)

// Flags of the history subcommand; the database comes from the global history-db flag
var (
	HistoryLimit = &cli.IntFlag{
		Name:    "limit",
		Value:   20,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HISTORY_LIMIT"),
		Usage:   "Number of most recent runs to list",
	}
	HistoryRun = &cli.StringFlag{
		Name:    "run",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HISTORY_RUN"),
		Usage:   "Show the steps of this run instead of the run list",
	}
	HistoryOutput = &cli.BoolFlag{
		Name:    "output",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HISTORY_OUTPUT"),
		Usage:   "With --run, also print the captured output of failed steps",
	}
)

var HistoryFlags = []cli.Flag{
	HistoryLimit,
	HistoryRun,
	HistoryOutput,
}

// PipelineFlags are the flags that override values of the pipeline file
var PipelineFlags = []cli.Flag{
	InstallCmd,
	SkipInstall,
	AllowInstallFailure,
	TestCmd,
	TestName,
	SamplesDir,
	SamplesPrefix,
	SamplesExt,
	SampleInterpreter,
}

var optionalFlags = []cli.Flag{
	PipelineConfig,
	WorkDir,
	Shell,
	LogDir,
	HistoryDB,
	Summary,
	HealthzPort,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, PipelineFlags...)
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}

// CheckFlags validates flag combinations that cli cannot express
func CheckFlags(ctx *cli.Context) error {
	if ctx.Bool(SkipInstall.Name) && ctx.Bool(AllowInstallFailure.Name) {
		return fmt.Errorf("flags %s and %s are mutually exclusive", SkipInstall.Name, AllowInstallFailure.Name)
	}
	return nil
}
