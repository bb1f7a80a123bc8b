package types

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePipelineFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadPipeline(t *testing.T) {
	t.Run("full file", func(t *testing.T) {
		path := writePipelineFile(t, `
install:
  command: "pip install --user -e ."
  allow_failure: true
test:
  name: "unit tests"
  command: "pytest -x -v"
samples:
  dir: examples
  prefix: ex
  extension: .sh
  interpreter: sh
`)
		p, err := LoadPipeline(path)
		require.NoError(t, err)
		assert.Equal(t, "pip install --user -e .", p.Install.Command)
		assert.True(t, p.Install.AllowFailure)
		assert.False(t, p.Install.Skip)
		assert.Equal(t, "unit tests", p.Test.Description())
		assert.Equal(t, "pytest -x -v", p.Test.Command)
		assert.Equal(t, SamplesConfig{Dir: "examples", Prefix: "ex", Extension: ".sh", Interpreter: "sh"}, p.Samples)
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := writePipelineFile(t, `
samples:
  dir: other
`)
		p, err := LoadPipeline(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultInstallCommand, p.Install.Command)
		assert.Equal(t, DefaultTestCommand, p.Test.Command)
		assert.Equal(t, "other", p.Samples.Dir)
		assert.Equal(t, DefaultSamplesPrefix, p.Samples.Prefix)
		assert.Equal(t, DefaultSamplesExtension, p.Samples.Extension)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPipeline(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read pipeline file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writePipelineFile(t, "install: [unterminated")
		_, err := LoadPipeline(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse pipeline file")
	})
}

func TestPipelineValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Pipeline)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(p *Pipeline) {}},
		{
			name:    "empty install command",
			mutate:  func(p *Pipeline) { p.Install.Command = " " },
			wantErr: "install command cannot be empty",
		},
		{
			name: "empty install command is fine when skipped",
			mutate: func(p *Pipeline) {
				p.Install.Command = ""
				p.Install.Skip = true
			},
		},
		{
			name:    "empty test command",
			mutate:  func(p *Pipeline) { p.Test.Command = "" },
			wantErr: "test command cannot be empty",
		},
		{
			name:    "empty samples dir",
			mutate:  func(p *Pipeline) { p.Samples.Dir = "" },
			wantErr: "samples directory cannot be empty",
		},
		{
			name:    "extension without dot",
			mutate:  func(p *Pipeline) { p.Samples.Extension = "py" },
			wantErr: "must start with a dot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPipeline()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTestConfigDescription(t *testing.T) {
	assert.Equal(t, "pytest -x", TestConfig{Command: "pytest -x"}.Description())
	assert.Equal(t, "unit", TestConfig{Name: "unit", Command: "pytest -x"}.Description())
}

func TestStepFailureError(t *testing.T) {
	err := &StepFailure{Description: "a.py", ExitCode: 2}
	assert.Equal(t, "a.py exited with code 2", err.Error())

	pass := &StepResult{Status: StepStatusPass}
	skip := &StepResult{Status: StepStatusSkip}
	fail := &StepResult{Status: StepStatusFail}
	assert.True(t, pass.Passed())
	assert.True(t, skip.Passed())
	assert.False(t, fail.Passed())
}
