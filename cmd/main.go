package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	cirunner "github.com/ethereum-optimism/infra/ci-runner"
	"github.com/ethereum-optimism/infra/ci-runner/exitcodes"
	"github.com/ethereum-optimism/infra/ci-runner/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "ci-runner"
	app.Usage = "Install, unit-test and smoke-test a package"
	app.Description = "ci-runner installs the package, runs its test suite and every sample program, stopping at the first failure"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.Commands = []*cli.Command{
		{
			Name:      "history",
			Usage:     "Show runs recorded in the history database",
			UsageText: "ci-runner --history-db <path> history [--limit n | --run <id> [--output]]",
			Flags:     cliapp.ProtectFlags(flags.HistoryFlags),
			Action:    showHistory,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err != nil {
			cli.HandleExitCoder(toExitCoder(err))
		}
	}
	return app
}

// toExitCoder maps an application error to the process exit code.
// Step failures have already been reported on stdout, so they exit silently.
func toExitCoder(err error) cli.ExitCoder {
	var exitErr cli.ExitCoder
	switch {
	case cirunner.IsStepFailureError(err):
		return cli.Exit("", exitcodes.StepFailure)
	case cirunner.IsRuntimeError(err):
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	case errors.As(err, &exitErr):
		return exitErr
	default:
		// Flag parsing and other setup errors
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	// stdout is reserved for the banner and check lines
	log := oplog.NewLogger(os.Stderr, logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := cirunner.NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, cirunner.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	ciRunner, err := cirunner.New(cfg, Version, closeApp)
	if err != nil {
		return nil, cirunner.NewRuntimeError(fmt.Errorf("failed to create ci-runner: %w", err))
	}

	return ciRunner, nil
}

func showHistory(ctx *cli.Context) error {
	err := cirunner.PrintHistory(ctx.Context, ctx.App.Writer, cirunner.HistoryQuery{
		DBPath:     ctx.String(flags.HistoryDB.Name),
		Limit:      ctx.Int(flags.HistoryLimit.Name),
		RunID:      ctx.String(flags.HistoryRun.Name),
		ShowOutput: ctx.Bool(flags.HistoryOutput.Name),
	})
	if err != nil {
		return cirunner.NewRuntimeError(err)
	}
	return nil
}
