package cirunner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/ci-runner/flags"
	"github.com/ethereum-optimism/infra/ci-runner/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// configFromArgs parses args with the application flags and builds a Config
func configFromArgs(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var cfg *Config
	var cfgErr error
	app := &cli.App{
		Flags: cliapp.ProtectFlags(flags.Flags),
		Action: func(ctx *cli.Context) error {
			cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"ci-runner"}, args...)))
	return cfg, cfgErr
}

func writePipelineFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := configFromArgs(t)
	require.NoError(t, err)

	assert.Equal(t, types.DefaultPipeline(), cfg.Pipeline)
	assert.Empty(t, cfg.PipelineFile)
	assert.True(t, filepath.IsAbs(cfg.WorkDir))
	assert.Equal(t, "sh", cfg.Shell)
	assert.Empty(t, cfg.LogDir)
	assert.Empty(t, cfg.HistoryDB)
	assert.False(t, cfg.ShowSummary)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 8080, cfg.HealthzPort)
}

func TestNewConfigFlags(t *testing.T) {
	cfg, err := configFromArgs(t,
		"--install-cmd", "make install",
		"--allow-install-failure",
		"--test-cmd", "make test",
		"--test-name", "unit tests",
		"--samples-dir", "examples",
		"--samples-prefix", "ex",
		"--samples-ext", ".sh",
		"--sample-interpreter", "bash",
		"--log-dir", "logs",
		"--history-db", "runs.db",
		"--summary",
	)
	require.NoError(t, err)

	p := cfg.Pipeline
	assert.Equal(t, "make install", p.Install.Command)
	assert.True(t, p.Install.AllowFailure)
	assert.Equal(t, "make test", p.Test.Command)
	assert.Equal(t, "unit tests", p.Test.Description())
	assert.Equal(t, types.SamplesConfig{Dir: "examples", Prefix: "ex", Extension: ".sh", Interpreter: "bash"}, p.Samples)
	assert.True(t, filepath.IsAbs(cfg.LogDir))
	assert.Equal(t, "logs", filepath.Base(cfg.LogDir))
	assert.True(t, filepath.IsAbs(cfg.HistoryDB))
	assert.True(t, cfg.ShowSummary)
}

func TestNewConfigPipelineFile(t *testing.T) {
	path := writePipelineFile(t, `
install:
  command: make install
test:
  command: make test
samples:
  dir: examples
  prefix: ex
  extension: .sh
  interpreter: bash
`)

	t.Run("file values override defaults", func(t *testing.T) {
		cfg, err := configFromArgs(t, "--config", path)
		require.NoError(t, err)
		assert.Equal(t, path, cfg.PipelineFile)
		assert.Equal(t, "make install", cfg.Pipeline.Install.Command)
		assert.Equal(t, "make test", cfg.Pipeline.Test.Command)
		assert.Equal(t, "bash", cfg.Pipeline.Samples.Interpreter)
	})

	t.Run("explicit flags override file values", func(t *testing.T) {
		cfg, err := configFromArgs(t, "--config", path, "--test-cmd", "go test ./...", "--sample-interpreter", "")
		require.NoError(t, err)
		assert.Equal(t, "make install", cfg.Pipeline.Install.Command)
		assert.Equal(t, "go test ./...", cfg.Pipeline.Test.Command)
		assert.Equal(t, "", cfg.Pipeline.Samples.Interpreter)
		assert.Equal(t, "examples", cfg.Pipeline.Samples.Dir)
	})

	t.Run("environment overrides file values", func(t *testing.T) {
		t.Setenv("CI_RUNNER_SAMPLES_PREFIX", "demo")
		cfg, err := configFromArgs(t, "--config", path)
		require.NoError(t, err)
		assert.Equal(t, "demo", cfg.Pipeline.Samples.Prefix)
	})
}

func TestNewConfigErrors(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		contains string
	}{
		{
			name:     "mutually exclusive install flags",
			args:     []string{"--skip-install", "--allow-install-failure"},
			contains: "mutually exclusive",
		},
		{
			name:     "missing pipeline file",
			args:     []string{"--config", filepath.Join(os.TempDir(), "does-not-exist.yaml")},
			contains: "failed to read pipeline file",
		},
		{
			name:     "empty test command",
			args:     []string{"--test-cmd", ""},
			contains: "test command cannot be empty",
		},
		{
			name:     "extension without dot",
			args:     []string{"--samples-ext", "py"},
			contains: "must start with a dot",
		},
		{
			name:     "invalid metrics port",
			args:     []string{"--metrics.enabled", "--metrics.port", "70000"},
			contains: "invalid metrics config",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := configFromArgs(t, tc.args...)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestConfigAddresses(t *testing.T) {
	cfg, err := configFromArgs(t, "--metrics.addr", "127.0.0.1", "--metrics.port", "7301", "--healthz.port", "8081")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7301", cfg.MetricsAddr())
	assert.Equal(t, "127.0.0.1:8081", cfg.HealthzAddr())
}
