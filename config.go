package modhost

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/GoCodeAlone/modhost/feeders"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "MODHOST"

// Config is the host configuration.
type Config struct {
	ModulesPath     string        `yaml:"modules_path" env:"MODULES_PATH" default:"./modules"`
	PackagePattern  string        `yaml:"package_pattern" env:"PACKAGE_PATTERN" default:"*.module.*"`
	StartupTimeout  time.Duration `yaml:"startup_timeout" env:"STARTUP_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	DetectCycles    bool          `yaml:"detect_cycles" env:"DETECT_CYCLES" default:"true"`
	ListenAddr      string        `yaml:"listen_addr" env:"LISTEN_ADDR" default:":8080"`
	DatabaseDSN     string        `yaml:"database_dsn" env:"DATABASE_DSN"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" default:"info"`
}

var logLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns a Config holding only the default tag values.
func DefaultConfig() *Config {
	cfg := &Config{}
	_ = ProcessConfigDefaults(cfg)
	return cfg
}

// LoadConfig builds a Config from defaults, then the optional file at path
// (YAML, TOML or JSON by extension), then MODHOST_* environment variables.
func LoadConfig(path string) (*Config, error) {
	return loadConfig(path, feeders.NewEnvFeeder(EnvPrefix))
}

func loadConfig(path string, env feeders.EnvFeeder) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := feeders.FormatOf(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfigFormat, path)
		}
		// Decode through a map so every format honours the yaml keys and
		// duration strings.
		raw := map[string]any{}
		if err := feeders.NewFileFeeder(path).Feed(&raw); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := feeders.Remarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := env.Feed(cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and the package pattern syntax.
func (c *Config) Validate() error {
	var errs []error
	if err := ValidateConfigRequired(c); err != nil {
		errs = append(errs, err)
	}
	if _, err := filepath.Match(c.PackagePattern, ""); err != nil {
		errs = append(errs, fmt.Errorf("%w: package_pattern %q: %w", ErrInvalidConfig, c.PackagePattern, err))
	}
	if c.StartupTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: startup_timeout must not be negative", ErrInvalidConfig))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: shutdown_timeout must not be negative", ErrInvalidConfig))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("%w: log_level %q, expected one of %s", ErrInvalidConfig, c.LogLevel, strings.Join(logLevels, ", ")))
	}
	return errors.Join(errs...)
}

// LoaderOptions translates the loader settings into options.
func (c *Config) LoaderOptions() []LoaderOption {
	return []LoaderOption{
		WithPackagePattern(c.PackagePattern),
		WithCycleDetection(c.DetectCycles),
		WithStartupTimeout(c.StartupTimeout),
		WithShutdownTimeout(c.ShutdownTimeout),
	}
}
