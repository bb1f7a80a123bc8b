package cirunner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/ci-runner/flags"
	"github.com/ethereum-optimism/infra/ci-runner/history"
	"github.com/ethereum-optimism/infra/ci-runner/types"
)

// HistoryQuery selects what PrintHistory reports
type HistoryQuery struct {
	DBPath     string
	Limit      int    // Number of runs listed when RunID is empty
	RunID      string // Report the steps of this run
	ShowOutput bool   // Print the output tail of failed steps of RunID
}

// PrintHistory lists recent runs, or the steps of one run, from an existing
// history database.
func PrintHistory(ctx context.Context, w io.Writer, q HistoryQuery) error {
	if q.DBPath == "" {
		return fmt.Errorf("--%s is required", flags.HistoryDB.Name)
	}
	// Open would create a missing database
	if _, err := os.Stat(q.DBPath); err != nil {
		return fmt.Errorf("failed to read history database: %w", err)
	}
	store, err := history.Open(q.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if q.RunID == "" {
		runs, err := store.RecentRuns(ctx, q.Limit)
		if err != nil {
			return err
		}
		printRunsTable(w, runs)
		return nil
	}

	steps, err := store.Steps(ctx, q.RunID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("run %s not found", q.RunID)
	}
	printStepsTable(w, q.RunID, steps)
	if q.ShowOutput {
		printFailedOutput(w, steps)
	}
	return nil
}

func printRunsTable(w io.Writer, runs []history.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Recent runs")
	t.AppendHeader(table.Row{"Run", "Started", "Status", "Duration", "Passed", "Failed", "Skipped", "Failed step", "Exit"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Failed step", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Exit", Align: text.AlignRight},
	})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status,
			formatDuration(r.Duration),
			r.Passed,
			r.Failed,
			r.Skipped,
			r.FailedStep,
			r.ExitCode,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "runs", len(runs)})
	t.SetStyle(table.StyleLight)
	t.Render()
}

func printStepsTable(w io.Writer, runID string, steps []history.Step) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Run " + runID)
	t.AppendHeader(table.Row{"#", "Kind", "Step", "Duration", "Exit", "Status", "Log"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Step", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Log", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, st := range steps {
		exit := "-"
		if st.Status != string(types.StepStatusSkip) {
			exit = fmt.Sprintf("%d", st.ExitCode)
		}
		t.AppendRow(table.Row{st.Index, st.Kind, st.Name, formatDuration(st.Duration), exit, st.Status, st.LogFile})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

func printFailedOutput(w io.Writer, steps []history.Step) {
	for _, st := range steps {
		if st.Status != string(types.StepStatusFail) || st.OutputBytes == 0 {
			continue
		}
		header := "--- output of " + st.Name
		if st.OutputBytes > int64(len(st.OutputTail)) {
			header += fmt.Sprintf(" (last %d of %d bytes)", len(st.OutputTail), st.OutputBytes)
		}
		fmt.Fprintln(w, header+" ---")
		fmt.Fprint(w, st.OutputTail)
		if !strings.HasSuffix(st.OutputTail, "\n") {
			fmt.Fprintln(w)
		}
	}
}
