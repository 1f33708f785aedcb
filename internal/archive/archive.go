// Package archive resolves a trained model bundle: a directory or a gzip tar
// holding config.json and a weights file.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modelserve/internal/common/fsutil"
)

const (
	// ConfigName is the model configuration file every archive must contain.
	ConfigName = "config.json"
	// DefaultWeightsName is used when neither --weights-file nor the config's
	// weights_file key names the weights.
	DefaultWeightsName = "weights.bin"
)

// Options controls how an archive is loaded.
type Options struct {
	// WeightsFile overrides which weights file to use.
	WeightsFile string
	// Overrides is a JSON object overlaid on config.json.
	Overrides string
}

// Archive is a loaded model bundle.
type Archive struct {
	// Dir is the directory holding the archive contents.
	Dir string
	// Config is config.json with overrides applied.
	Config map[string]any
	// WeightsPath is the absolute path of the weights file.
	WeightsPath string

	tmpDir string
}

// Load resolves path (a directory or a .tar.gz file), reads its config and
// locates the weights file. Callers must Close the archive.
func Load(path string, opts Options) (*Archive, error) {
	if path == "" {
		return nil, errors.New("empty archive path")
	}
	abs, err := fsutil.Resolve(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", path, err)
	}
	a := &Archive{Dir: abs}
	if !fi.IsDir() {
		tmp, err := os.MkdirTemp("", "modelserve-archive-*")
		if err != nil {
			return nil, fmt.Errorf("temp dir: %w", err)
		}
		if err := extractTarGz(abs, tmp); err != nil {
			_ = os.RemoveAll(tmp)
			return nil, fmt.Errorf("extract %s: %w", path, err)
		}
		a.Dir, a.tmpDir = tmp, tmp
	}
	if err := a.load(opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) load(opts Options) error {
	b, err := os.ReadFile(filepath.Join(a.Dir, ConfigName))
	if err != nil {
		return fmt.Errorf("read %s: %w", ConfigName, err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(b, &cfg); err != nil {
		return fmt.Errorf("parse %s: %w", ConfigName, err)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	overlay, err := ParseOverrides(opts.Overrides)
	if err != nil {
		return err
	}
	a.Config = Merge(cfg, overlay)

	weights := opts.WeightsFile
	if weights != "" {
		if weights, err = fsutil.Resolve(weights); err != nil {
			return err
		}
	} else {
		name := DefaultWeightsName
		if s, ok := a.Config["weights_file"].(string); ok && s != "" {
			name = s
		}
		weights = filepath.Join(a.Dir, filepath.Clean(name))
		if !fsutil.WithinDir(a.Dir, weights) {
			return fmt.Errorf("weights file %q escapes the archive", name)
		}
	}
	if !fsutil.PathExists(weights) {
		return fmt.Errorf("weights file not found: %s", weights)
	}
	a.WeightsPath = weights
	return nil
}

// Section returns the named top-level object from the config, or an empty map.
func (a *Archive) Section(name string) map[string]any {
	if m, ok := a.Config[name].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// Close removes the extraction directory, if any.
func (a *Archive) Close() error {
	if a == nil || a.tmpDir == "" {
		return nil
	}
	err := os.RemoveAll(a.tmpDir)
	a.tmpDir = ""
	return err
}
