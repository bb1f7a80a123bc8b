package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
)

var _ ProcessExecutor = (*processExecutor)(nil)

// ProcessExecutor spawns a single external command and blocks until it exits.
type ProcessExecutor interface {
	// Execute runs the invocation to completion. A non-zero exit status is not an
	// error: it is reported through ProcessResult.ExitCode. An error is returned
	// only when the outcome of the command is unknown, e.g. the context was canceled.
	Execute(ctx context.Context, inv Invocation) (*ProcessResult, error)
}

// CmdBuilder creates the exec.Cmd for an invocation along with a cleanup func.
type CmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// Invocation describes one external command
type Invocation struct {
	Program string
	Args    []string
	Dir     string
	Stdout  io.Writer // nil discards the stream
	Stderr  io.Writer // nil discards the stream

	// CaptureOutput keeps the tail of stdout and stderr, interleaved, in
	// ProcessResult.OutputTail in addition to anything written to the writers.
	CaptureOutput bool
}

// CommandLine returns the program followed by its arguments
func (inv Invocation) CommandLine() []string {
	return append([]string{inv.Program}, inv.Args...)
}

// ProcessResult is the structured outcome of an invocation
type ProcessResult struct {
	ExitCode    int
	Duration    time.Duration
	OutputTail  []byte
	OutputBytes int64 // Total output size; larger than the tail when truncated
}

// processExecutor implements ProcessExecutor
type processExecutor struct {
	cmdBuilder CmdBuilder
	tailBytes  int
}

// NewProcessExecutor creates a new process executor
func NewProcessExecutor(cmdBuilder CmdBuilder) (ProcessExecutor, error) {
	if cmdBuilder == nil {
		return nil, fmt.Errorf("cmdBuilder cannot be nil")
	}
	return &processExecutor{
		cmdBuilder: cmdBuilder,
		tailBytes:  defaultOutputTailBytes,
	}, nil
}

// DefaultCmdBuilder builds commands bound to ctx, propagating the trace context
// to the child through its environment.
func DefaultCmdBuilder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Env = telemetry.InstrumentEnvironment(ctx, os.Environ())
	return cmd, func() {}
}

// Execute runs the invocation and waits for it to exit
func (e *processExecutor) Execute(ctx context.Context, inv Invocation) (*ProcessResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if inv.Program == "" {
		return nil, fmt.Errorf("program cannot be empty")
	}

	cmd, cleanup := e.cmdBuilder(ctx, inv.Program, inv.Args...)
	defer cleanup()
	if inv.Dir != "" {
		cmd.Dir = inv.Dir
	}
	// Grandchildren holding the output pipes must not block an interrupted run
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = processWaitDelay
	}

	var tail *outputTail
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	if inv.CaptureOutput {
		tail = newOutputTail(e.tailBytes)
		cmd.Stdout = teeWriter(inv.Stdout, tail)
		cmd.Stderr = teeWriter(inv.Stderr, tail)
	}

	log.Debug("Starting process", "program", inv.Program, "args", inv.Args, "dir", cmd.Dir)

	startTime := time.Now()
	runErr := cmd.Run()
	duration := time.Since(startTime)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("process %s interrupted: %w", inv.Program, ctxErr)
	}

	exitCode, err := exitCodeFromError(runErr)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", inv.Program, err)
	}
	if runErr != nil {
		log.Debug("Process failed", "program", inv.Program, "exitCode", exitCode, "err", runErr)
	}

	result := &ProcessResult{
		ExitCode: exitCode,
		Duration: duration,
	}
	if tail != nil {
		result.OutputTail = tail.Bytes()
		result.OutputBytes = tail.Written()
	}
	return result, nil
}

// exitCodeFromError maps the error returned by exec.Cmd.Run to the exit status a
// POSIX shell would report for the same command.
func exitCodeFromError(runErr error) (int, error) {
	if runErr == nil {
		return 0, nil
	}

	exitErr := &exec.ExitError{}
	if errors.As(runErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return ExitCodeSignalBase + int(status.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}

	switch {
	case errors.Is(runErr, exec.ErrWaitDelay):
		// The process itself exited 0, a child kept the output open
		return 0, nil
	case errors.Is(runErr, exec.ErrNotFound), errors.Is(runErr, fs.ErrNotExist):
		return ExitCodeNotFound, nil
	case errors.Is(runErr, fs.ErrPermission), errors.Is(runErr, syscall.ENOEXEC):
		return ExitCodeNotExecutable, nil
	}
	return -1, runErr
}
