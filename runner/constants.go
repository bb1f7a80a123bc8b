package runner

import "time"

// Pipeline execution constants
const (
	// DefaultShell runs the install and test commands
	DefaultShell = "sh"
	// ShellCommandFlag passes a command string to the shell
	ShellCommandFlag = "-c"

	// Console contract lines
	TerminatingMessage = "TERMINATING TEST"
	SuccessSuffix      = "completed successfully"
	BannerPrefix       = "Running"

	// Shell conventions for commands that could not be started
	ExitCodeNotExecutable = 126
	ExitCodeNotFound      = 127
	// ExitCodeSignalBase is added to the signal number of a killed process
	ExitCodeSignalBase = 128
)

// processWaitDelay bounds how long a finished or killed process may keep its
// output pipes open through its own children.
const processWaitDelay = 2 * time.Second
