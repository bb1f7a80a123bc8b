package cirunner

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/ci-runner/runner"
	"github.com/ethereum-optimism/infra/ci-runner/types"
)

// printSummaryTable prints one row per executed step
func printSummaryTable(w io.Writer, result *runner.RunResult) {
	if w == nil {
		w = os.Stdout
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("CI Results (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"#", "Kind", "Step", "Duration", "Exit", "Status", "Log",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Kind", AutoMerge: true},
		{Name: "Step", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Log", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for i, step := range result.Steps {
		exit := "-"
		if step.Status != types.StepStatusSkip {
			exit = fmt.Sprintf("%d", step.ExitCode)
		}
		t.AppendRow(table.Row{
			i,
			string(step.Kind),
			step.Name,
			formatDuration(step.Duration),
			exit,
			getResultString(step),
			step.LogFile,
		})
	}

	switch result.Status {
	case types.StepStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.StepStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		fmt.Sprintf("%d passed, %d failed, %d skipped", result.Stats.Passed, result.Stats.Failed, result.Stats.Skipped),
		formatDuration(result.Duration),
		"",
		string(result.Status),
		"",
	})

	t.Render()
}

// getResultString returns the status column for a step. A failure that was
// not checked (allowed installer failure) is marked as ignored.
func getResultString(step *types.StepResult) string {
	switch step.Status {
	case types.StepStatusPass:
		return "✓ pass"
	case types.StepStatusSkip:
		return "- skip"
	default:
		if !step.Checked {
			return "✗ fail (ignored)"
		}
		return "✗ fail"
	}
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
