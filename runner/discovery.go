package runner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum-optimism/infra/ci-runner/types"
)

// ErrSamplesDirMissing is returned when the samples directory does not exist
var ErrSamplesDirMissing = errors.New("samples directory does not exist")

// DiscoverSamples lists the regular files in the samples directory whose name
// starts with the configured prefix and ends with the configured extension.
//
// Paths are returned as dir joined with the file name, sorted lexicographically
// so the execution order does not depend on the filesystem. The directory is
// resolved relative to workDir unless it is absolute; the returned paths keep
// the configured (possibly relative) form.
func DiscoverSamples(workDir string, cfg types.SamplesConfig) ([]string, error) {
	dir := cfg.Dir
	if !filepath.IsAbs(dir) && workDir != "" {
		dir = filepath.Join(workDir, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSamplesDirMissing, cfg.Dir)
		}
		return nil, fmt.Errorf("failed to list samples directory %s: %w", cfg.Dir, err)
	}

	var samples []string
	for _, entry := range entries {
		if !isSample(entry, cfg) {
			continue
		}
		samples = append(samples, filepath.Join(cfg.Dir, entry.Name()))
	}
	sort.Strings(samples)
	return samples, nil
}

func isSample(entry fs.DirEntry, cfg types.SamplesConfig) bool {
	if entry.IsDir() {
		return false
	}
	name := entry.Name()
	return strings.HasPrefix(name, cfg.Prefix) && strings.HasSuffix(name, cfg.Extension)
}
