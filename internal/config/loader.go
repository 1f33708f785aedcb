package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults for the serve command.
const (
	DefaultTitle        = "AllenNLP Demo"
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8000
	DefaultCUDADevice   = -1
	DefaultMaxBodyBytes = int64(1 << 20)
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
)

// Config holds the server configuration. It is built once at startup and never
// mutated afterwards.
type Config struct {
	ArchivePath   string   `json:"archive_path" yaml:"archive_path" toml:"archive_path"`
	Predictor     string   `json:"predictor" yaml:"predictor" toml:"predictor"`
	WeightsFile   string   `json:"weights_file" yaml:"weights_file" toml:"weights_file"`
	CUDADevice    int      `json:"cuda_device" yaml:"cuda_device" toml:"cuda_device"`
	Overrides     string   `json:"overrides" yaml:"overrides" toml:"overrides"`
	StaticDir     string   `json:"static_dir" yaml:"static_dir" toml:"static_dir"`
	Title         string   `json:"title" yaml:"title" toml:"title"`
	FieldNames    []string `json:"field_names" yaml:"field_names" toml:"field_names"`
	Host          string   `json:"host" yaml:"host" toml:"host"`
	Port          int      `json:"port" yaml:"port" toml:"port"`
	LogLevel      string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat     string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	KeepOutputKey []string `json:"keep_output_keys" yaml:"keep_output_keys" toml:"keep_output_keys"`
	DropOutputKey []string `json:"drop_output_keys" yaml:"drop_output_keys" toml:"drop_output_keys"`
	MaxBodyBytes  int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// Default returns a Config populated with the documented defaults.
func Default() Config {
	return Config{
		CUDADevice:   DefaultCUDADevice,
		Title:        DefaultTitle,
		Host:         DefaultHost,
		Port:         DefaultPort,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Load reads a configuration file based on its extension. Keys missing from the
// file keep their Default values.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the fields required to start serving.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ArchivePath) == "" {
		errs = append(errs, errors.New("archive path is required (--archive-path)"))
	}
	if strings.TrimSpace(c.Predictor) == "" {
		errs = append(errs, errors.New("predictor name is required (--predictor)"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.CUDADevice < -1 {
		errs = append(errs, fmt.Errorf("invalid cuda device: %d", c.CUDADevice))
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("max body bytes must not be negative: %d", c.MaxBodyBytes))
	}
	switch c.LogFormat {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format: %s", c.LogFormat))
	}
	return errors.Join(errs...)
}
