// Package history records pipeline runs in a sqlite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ethereum-optimism/infra/ci-runner/runner"
)

// Store manages the run history database
type Store struct {
	db *sql.DB
}

// Run is one recorded pipeline run
type Run struct {
	ID         string
	StartedAt  time.Time
	Status     string
	Duration   time.Duration
	Total      int
	Passed     int
	Failed     int
	Skipped    int
	FailedStep string
	ExitCode   int
}

// Step is one recorded step of a run
type Step struct {
	RunID    string
	Index    int
	Kind     string
	Name     string
	Command  string
	Status   string
	ExitCode int
	Duration time.Duration
	LogFile  string

	// OutputTail is the end of the step output, OutputBytes its full size
	OutputTail  string
	OutputBytes int64
}

// Open creates the database (and its directory) if needed and initializes the schema
func Open(dbPath string) (s *Store, err error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s = &Store{db: db}
	if err = s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		total INTEGER NOT NULL,
		passed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed_step TEXT,
		exit_code INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS steps (
		run_id TEXT NOT NULL REFERENCES runs(id),
		step_index INTEGER NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		command TEXT,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		log_file TEXT,
		output_tail TEXT,
		output_bytes INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, step_index)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun stores a run and all of its steps in one transaction
func (s *Store) RecordRun(ctx context.Context, result *runner.RunResult) (err error) {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var failedStep string
	var exitCode int
	if result.Failure != nil {
		failedStep = result.Failure.Description
		exitCode = result.Failure.ExitCode
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, started_at, status, duration_ms, total, passed, failed, skipped, failed_step, exit_code)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Stats.StartTime,
		string(result.Status),
		result.Duration.Milliseconds(),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Stats.Skipped,
		failedStep,
		exitCode,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}

	for i, step := range result.Steps {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO steps (run_id, step_index, kind, name, command, status, exit_code, duration_ms, log_file, output_tail, output_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID,
			i,
			string(step.Kind),
			step.Name,
			strings.Join(step.Command, " "),
			string(step.Status),
			step.ExitCode,
			step.Duration.Milliseconds(),
			step.LogFile,
			step.OutputTail,
			step.OutputBytes,
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %d of run %s: %w", i, result.RunID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", result.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, started_at, status, duration_ms, total, passed, failed, skipped, COALESCE(failed_step, ''), exit_code
	FROM runs
	ORDER BY started_at DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durationMs int64
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Status, &durationMs, &r.Total, &r.Passed,
			&r.Failed, &r.Skipped, &r.FailedStep, &r.ExitCode); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Steps returns the steps of a run in execution order
func (s *Store) Steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT run_id, step_index, kind, name, COALESCE(command, ''), status, exit_code, duration_ms, COALESCE(log_file, ''),
		COALESCE(output_tail, ''), output_bytes
	FROM steps
	WHERE run_id = ?
	ORDER BY step_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		var durationMs int64
		if err := rows.Scan(&st.RunID, &st.Index, &st.Kind, &st.Name, &st.Command, &st.Status,
			&st.ExitCode, &durationMs, &st.LogFile, &st.OutputTail, &st.OutputBytes); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		st.Duration = time.Duration(durationMs) * time.Millisecond
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
