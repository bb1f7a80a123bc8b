package types

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default pipeline values. A bare invocation runs exactly this pipeline.
const (
	DefaultInstallCommand    = "pip install --user ."
	DefaultTestCommand       = "python -m pytest -x -v tests/unit"
	DefaultSamplesDir        = "tutorials/local/sparkless"
	DefaultSamplesPrefix     = "df"
	DefaultSamplesExtension  = ".py"
	DefaultSampleInterpreter = "python"
)

// Pipeline describes the three stages run by ci-runner
type Pipeline struct {
	Install InstallConfig `yaml:"install"`
	Test    TestConfig    `yaml:"test"`
	Samples SamplesConfig `yaml:"samples"`
}

// InstallConfig configures the package installation step
type InstallConfig struct {
	Command      string `yaml:"command"`
	Skip         bool   `yaml:"skip,omitempty"`
	AllowFailure bool   `yaml:"allow_failure,omitempty"` // Do not abort when the installer fails
}

// TestConfig configures the test-suite step
type TestConfig struct {
	Name    string `yaml:"name,omitempty"` // Description for console output, defaults to the command
	Command string `yaml:"command"`
}

// Description returns the text used in check lines for the test step
func (t TestConfig) Description() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Command
}

// SamplesConfig configures discovery and execution of sample programs
type SamplesConfig struct {
	Dir         string `yaml:"dir"`
	Prefix      string `yaml:"prefix"`
	Extension   string `yaml:"extension"`
	Interpreter string `yaml:"interpreter"` // Empty runs each sample directly
}

// DefaultPipeline returns the pipeline used when no file or flags override it
func DefaultPipeline() Pipeline {
	return Pipeline{
		Install: InstallConfig{Command: DefaultInstallCommand},
		Test:    TestConfig{Command: DefaultTestCommand},
		Samples: SamplesConfig{
			Dir:         DefaultSamplesDir,
			Prefix:      DefaultSamplesPrefix,
			Extension:   DefaultSamplesExtension,
			Interpreter: DefaultSampleInterpreter,
		},
	}
}

// LoadPipeline reads a YAML pipeline file on top of the defaults.
// Keys missing from the file keep their default value.
func LoadPipeline(path string) (Pipeline, error) {
	p := DefaultPipeline()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse pipeline file: %w", err)
	}
	return p, nil
}

// Validate checks that the pipeline can be executed
func (p Pipeline) Validate() error {
	if !p.Install.Skip && strings.TrimSpace(p.Install.Command) == "" {
		return errors.New("install command cannot be empty unless install is skipped")
	}
	if strings.TrimSpace(p.Test.Command) == "" {
		return errors.New("test command cannot be empty")
	}
	if p.Samples.Dir == "" {
		return errors.New("samples directory cannot be empty")
	}
	if p.Samples.Extension != "" && !strings.HasPrefix(p.Samples.Extension, ".") {
		return fmt.Errorf("samples extension %q must start with a dot", p.Samples.Extension)
	}
	return nil
}
