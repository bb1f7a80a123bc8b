package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/ci-runner/types"
)

const (
	RunDirectoryPrefix = "run-" // Standardized prefix for run directories
	SummaryFilename    = "summary.log"
)

// StepLogger writes the output of each pipeline step to its own file
// under <baseDir>/run-<runID>/.
type StepLogger struct {
	baseDir string
	logDir  string
	runID   string

	mu    sync.Mutex
	files []string
}

// NewStepLogger creates the run directory and returns a logger for it
func NewStepLogger(baseDir string, runID string) (*StepLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	return &StepLogger{
		baseDir: baseDir,
		logDir:  logDir,
		runID:   runID,
	}, nil
}

// GetDirectory returns the run directory
func (l *StepLogger) GetDirectory() string {
	return l.logDir
}

// Files returns the step log files created so far, in creation order
func (l *StepLogger) Files() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.files...)
}

// Open creates the log file for one step. Everything written to the returned
// writer has ANSI escape sequences removed.
func (l *StepLogger) Open(index int, kind types.StepKind, name string) (io.WriteCloser, string, error) {
	filename := fmt.Sprintf("%02d-%s-%s.log", index, kind, safeFilename(name))
	path := filepath.Join(l.logDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create step log %s: %w", path, err)
	}

	l.mu.Lock()
	l.files = append(l.files, path)
	l.mu.Unlock()

	return &ansiStripWriter{file: f}, path, nil
}

// LogSummary writes one line per step to summary.log in the run directory,
// followed by the output tail of every failed step.
func (l *StepLogger) LogSummary(steps []*types.StepResult, status types.StepStatus, duration time.Duration) error {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %s (%s)\n", l.runID, status, formatDuration(duration))
	for i, step := range steps {
		fmt.Fprintf(&b, "%02d %-7s %-4s exit=%d %s %s\n",
			i, step.Kind, step.Status, step.ExitCode, formatDuration(step.Duration), step.Name)
	}
	for _, step := range steps {
		if step.Status != types.StepStatusFail || step.OutputBytes == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n--- output of %s", step.Name)
		if step.OutputTruncated() {
			fmt.Fprintf(&b, " (last %d of %d bytes)", len(step.OutputTail), step.OutputBytes)
		}
		b.WriteString(" ---\n")
		tail := stripansi.Strip(step.OutputTail)
		b.WriteString(tail)
		if !strings.HasSuffix(tail, "\n") {
			b.WriteString("\n")
		}
	}

	path := filepath.Join(l.logDir, SummaryFilename)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", path, err)
	}
	return nil
}

// ansiStripWriter removes terminal colour codes before writing to the file.
// Escape sequences split across two writes are not stripped.
type ansiStripWriter struct {
	file *os.File
}

func (w *ansiStripWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.file, stripansi.Strip(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *ansiStripWriter) Close() error {
	return w.file.Close()
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	s = replacer.Replace(s)
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
