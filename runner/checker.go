package runner

import (
	"fmt"
	"io"

	"github.com/ethereum-optimism/infra/ci-runner/types"
)

// CheckError reports the outcome of a checked step on w.
//
// A zero code prints "<description> completed successfully" and returns nil.
// Any other code prints "<description> exited with code <code>" followed by
// "TERMINATING TEST" and returns a *types.StepFailure.
func CheckError(w io.Writer, code int, description string) error {
	if code != 0 {
		fmt.Fprintf(w, "%s exited with code %d\n", description, code)
		fmt.Fprintln(w, TerminatingMessage)
		return &types.StepFailure{Description: description, ExitCode: code}
	}
	fmt.Fprintf(w, "%s %s\n", description, SuccessSuffix)
	return nil
}

// printBanner announces a sample program before it runs
func printBanner(w io.Writer, path string) {
	fmt.Fprintf(w, "%s %s\n", BannerPrefix, path)
}
