// Package config provides configuration management for the Montage Engine.
// Configuration is loaded from a YAML file with environment variable
// expansion, then validated section by section.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// DBFilename is the SQLite database filename inside the data directory.
const DBFilename = "montage.db"

// Config is the root engine configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Studio   StudioConfig   `yaml:"studio"`
	Generate GenerateConfig `yaml:"generate"`
	Render   RenderConfig   `yaml:"render"`
	Import   ImportConfig   `yaml:"import"`
}

// AppConfig holds process-level configuration.
type AppConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
	Headless bool   `yaml:"headless"`
}

func (c *AppConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.DataDir, validation.Required),
	)
}

// StudioConfig describes the studio SaaS the engine reconciles against.
// When Enabled is false the engine runs standalone and all remote
// reconciliation is skipped.
type StudioConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"`
	Token        string        `yaml:"token"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func (c *StudioConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
	); err != nil {
		return err
	}
	if c.Token == "" {
		return fmt.Errorf("studio: enabled but token is empty")
	}
	return nil
}

// GenerateConfig describes the external generation provider.
type GenerateConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Token        string        `yaml:"token"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func (c *GenerateConfig) Validate() error {
	if c.BaseURL == "" {
		// Stub provider; nothing to validate.
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.PollInterval, validation.Min(time.Duration(0))),
	)
}

// RenderConfig configures the local renderer CLI used for export jobs.
type RenderConfig struct {
	BinaryPath    string        `yaml:"binary_path"`
	BundlePath    string        `yaml:"bundle_path"`
	DoctorTimeout time.Duration `yaml:"doctor_timeout"`
	RenderTimeout time.Duration `yaml:"render_timeout"`
}

func (c *RenderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DoctorTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RenderTimeout, validation.Min(time.Duration(0))),
	)
}

// ImportConfig configures the local media import folder.
type ImportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (c *ImportConfig) Validate() error {
	if c.Enabled && c.Path == "" {
		return fmt.Errorf("import: enabled but path is empty")
	}
	return nil
}

// Validate validates the full configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Studio.Validate(); err != nil {
		return err
	}
	if err := c.Generate.Validate(); err != nil {
		return err
	}
	if err := c.Render.Validate(); err != nil {
		return err
	}
	return c.Import.Validate()
}

// DBPath returns the full path to the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.App.DataDir, DBFilename)
}

// ExportsDir returns the directory export jobs write into.
func (c *Config) ExportsDir() string {
	return filepath.Join(c.App.DataDir, "exports")
}

// MediaDir returns the directory imported media is catalogued from.
func (c *Config) MediaDir() string {
	if c.Import.Path != "" {
		return c.Import.Path
	}
	return filepath.Join(c.App.DataDir, "media")
}

// SlogLevel converts the configured level string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.App.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewDefault returns a Config with sensible default values.
func NewDefault() *Config {
	return &Config{
		App: AppConfig{
			Port:     8787,
			LogLevel: "info",
			DataDir:  defaultDataDir(),
		},
		Studio: StudioConfig{
			PollInterval: 5 * time.Second,
		},
		Generate: GenerateConfig{
			PollInterval: 2 * time.Second,
		},
		Render: RenderConfig{
			DoctorTimeout: 30 * time.Second,
			RenderTimeout: 30 * time.Minute,
		},
	}
}

// Load reads a YAML config file into target, expanding ${ENV} references
// first. A missing file leaves the defaults untouched.
func Load(filename string, target *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return target.Validate()
		}
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := target.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".montage"
	}
	return filepath.Join(home, ".montage")
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
