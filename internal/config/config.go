package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DirName is the per-workspace directory holding config, logs, lock and history.
const DirName = ".buildgraph"

// HistoryConfig represents invocation history configuration
type HistoryConfig struct {
	// Enabled records every invocation in the history database
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`

	// KeepInvocations is the number of invocations to keep (0 = keep all)
	KeepInvocations int `yaml:"keep_invocations"`
}

// Config represents buildgraph configuration options
type Config struct {
	// BuildFile is the build definition to load (empty = auto-detect)
	BuildFile string `yaml:"build_file"`

	// Timeout is the default per-target timeout (0 = no timeout)
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where logs will be written
	LogDir string `yaml:"log_dir"`

	// ArtifactsDir is the directory exposed to actions as the artifacts location
	ArtifactsDir string `yaml:"artifacts_dir"`

	// StopOnFailure skips every remaining target after the first failure
	StopOnFailure bool `yaml:"stop_on_failure"`

	// Color forces coloured console output on or off ("auto", "always", "never")
	Color string `yaml:"color"`

	// Parameters provides values for build parameters
	Parameters map[string]string `yaml:"parameters"`

	// History contains invocation history configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		BuildFile:     "",
		Timeout:       0, // No timeout
		LogLevel:      "info",
		LogDir:        filepath.Join(DirName, "logs"),
		ArtifactsDir:  "artifacts",
		StopOnFailure: false,
		Color:         "auto",
		Parameters:    map[string]string{},
		History: HistoryConfig{
			Enabled:         true,
			DBPath:          filepath.Join(DirName, "history.db"),
			KeepInvocations: 200,
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Use a temporary struct to handle duration parsing
	type yamlConfig struct {
		BuildFile     string            `yaml:"build_file"`
		Timeout       string            `yaml:"timeout"`
		LogLevel      string            `yaml:"log_level"`
		LogDir        string            `yaml:"log_dir"`
		ArtifactsDir  string            `yaml:"artifacts_dir"`
		StopOnFailure bool              `yaml:"stop_on_failure"`
		Color         string            `yaml:"color"`
		Parameters    map[string]string `yaml:"parameters"`
		History       HistoryConfig     `yaml:"history"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply non-zero values from file (merging with defaults)
	if yamlCfg.BuildFile != "" {
		cfg.BuildFile = yamlCfg.BuildFile
	}
	if yamlCfg.Timeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format %q: %w", yamlCfg.Timeout, err)
		}
		cfg.Timeout = timeout
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.ArtifactsDir != "" {
		cfg.ArtifactsDir = yamlCfg.ArtifactsDir
	}
	if yamlCfg.StopOnFailure {
		cfg.StopOnFailure = true
	}
	if yamlCfg.Color != "" {
		cfg.Color = yamlCfg.Color
	}
	for name, value := range yamlCfg.Parameters {
		cfg.Parameters[name] = value
	}

	// Nested booleans can't be told apart from "unset" after decoding, so look
	// at the raw document to see which history keys were provided.
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if section, exists := rawMap["history"]; exists && section != nil {
			historyMap, _ := section.(map[string]interface{})
			if _, exists := historyMap["enabled"]; exists {
				cfg.History.Enabled = yamlCfg.History.Enabled
			}
			if _, exists := historyMap["db_path"]; exists {
				cfg.History.DBPath = yamlCfg.History.DBPath
			}
			if _, exists := historyMap["keep_invocations"]; exists {
				cfg.History.KeepInvocations = yamlCfg.History.KeepInvocations
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .buildgraph/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, DirName, "config.yaml"))
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(buildFile *string, timeout *time.Duration, logDir *string, stopOnFailure *bool, noHistory *bool) {
	if buildFile != nil {
		c.BuildFile = *buildFile
	}
	if timeout != nil {
		c.Timeout = *timeout
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if stopOnFailure != nil {
		c.StopOnFailure = *stopOnFailure
	}
	if noHistory != nil && *noHistory {
		c.History.Enabled = false
	}
}

// Resolve makes every relative path in the configuration absolute against root.
func (c *Config) Resolve(root string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	c.BuildFile = abs(c.BuildFile)
	c.LogDir = abs(c.LogDir)
	c.ArtifactsDir = abs(c.ArtifactsDir)
	c.History.DBPath = abs(c.History.DBPath)
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	// Timeout can be 0 (no timeout) or positive, negative is invalid
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}

	switch c.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("invalid color %q, must be one of: auto, always, never", c.Color)
	}

	if c.History.Enabled {
		if c.History.DBPath == "" {
			return fmt.Errorf("history.db_path cannot be empty when history is enabled")
		}
		if c.History.KeepInvocations < 0 {
			return fmt.Errorf("history.keep_invocations must be >= 0, got %d", c.History.KeepInvocations)
		}
	}

	return nil
}
