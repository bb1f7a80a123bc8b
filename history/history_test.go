package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/ci-runner/runner"
	"github.com/ethereum-optimism/infra/ci-runner/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return s
}

func failedRun(id string, started time.Time) *runner.RunResult {
	failure := &types.StepFailure{Description: "samples/a.py", ExitCode: 2}
	return &runner.RunResult{
		RunID:    id,
		Status:   types.StepStatusFail,
		Duration: 1500 * time.Millisecond,
		Stats:    runner.ResultStats{Total: 3, Passed: 2, Failed: 1, StartTime: started},
		Failure:  failure,
		Steps: []*types.StepResult{
			{Name: "pip install --user .", Kind: types.StepKindInstall, Command: []string{"sh", "-c", "pip install --user ."}, Status: types.StepStatusPass, Duration: time.Second},
			{Name: "pytest", Kind: types.StepKindTest, Command: []string{"sh", "-c", "pytest"}, Status: types.StepStatusPass},
			{Name: "samples/a.py", Kind: types.StepKindSample, Command: []string{"python", "samples/a.py"}, Status: types.StepStatusFail, ExitCode: 2, LogFile: "/logs/02.log",
					OutputTail: "Traceback (most recent call last):\nValueError\n", OutputBytes: 9000},
		},
	}
}

func TestRecordAndQueryRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute).Truncate(time.Second)

	require.NoError(t, s.RecordRun(ctx, failedRun("run-1", started)))

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "fail", run.Status)
	assert.Equal(t, 1500*time.Millisecond, run.Duration)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, "samples/a.py", run.FailedStep)
	assert.Equal(t, 2, run.ExitCode)
	assert.True(t, started.Equal(run.StartedAt), "started_at round trip: %v vs %v", started, run.StartedAt)

	steps, err := s.Steps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "install", steps[0].Kind)
	assert.Equal(t, "sh -c pip install --user .", steps[0].Command)
	assert.Equal(t, time.Second, steps[0].Duration)
	assert.Equal(t, 2, steps[2].Index)
	assert.Equal(t, 2, steps[2].ExitCode)
	assert.Equal(t, "/logs/02.log", steps[2].LogFile)
	assert.Equal(t, "Traceback (most recent call last):\nValueError\n", steps[2].OutputTail)
	assert.Equal(t, int64(9000), steps[2].OutputBytes)
	assert.Empty(t, steps[0].OutputTail)
	assert.Zero(t, steps[0].OutputBytes)
}

func TestRecentRunsOrdering(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	for i, id := range []string{"old", "mid", "new"} {
		run := failedRun(id, base.Add(time.Duration(i)*time.Minute))
		run.Status = types.StepStatusPass
		run.Failure = nil
		require.NoError(t, s.RecordRun(ctx, run))
	}

	runs, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
	assert.Empty(t, runs[0].FailedStep)
}

func TestRecordRunDuplicateIsRolledBack(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordRun(ctx, failedRun("dup", time.Now())))
	err := s.RecordRun(ctx, failedRun("dup", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert run dup")

	steps, err := s.Steps(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, steps, 3)
}

func TestRecordRunNil(t *testing.T) {
	s := openStore(t)
	err := s.RecordRun(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "result cannot be nil", err.Error())
}
