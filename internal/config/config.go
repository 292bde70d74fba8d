// Package config loads axiom's global configuration from
// $XDG_CONFIG_HOME/axiom/config.toml and the AXIOM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// FileName is the name of the global configuration file.
const FileName = "config.toml"

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the global configuration.
type Config struct {
	// DataDir holds the database, package roots and runtime state.
	DataDir string `toml:"data_dir" validate:"required"`

	APIURL  string `toml:"api_url" validate:"required,url"`
	Project string `toml:"project" validate:"required"`

	HTTPTimeout     Duration `toml:"http_timeout" validate:"gt=0"`
	DownloadTimeout Duration `toml:"download_timeout" validate:"gt=0"`
	// Retries bounds automatic retries of oracle requests.
	Retries int `toml:"retries" validate:"gte=0,lte=5"`

	StopTimeout Duration `toml:"stop_timeout" validate:"gt=0"`
	StartGrace  Duration `toml:"start_grace" validate:"gt=0"`
	// ConsoleWrapper is the axiom-console executable used by packages with
	// launcher.console = "wrapper".
	ConsoleWrapper string `toml:"console_wrapper"`

	LogLevel  string `toml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `toml:"log_format" validate:"oneof=console json"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Validate durations by their nanosecond count.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(Duration); ok {
			return int64(d.Duration)
		}
		return nil
	}, Duration{})
	return v
}

// Dir returns the axiom config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/axiom if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "axiom"), nil
}

// DefaultDataDir returns $XDG_DATA_HOME/axiom, or ~/.local/share/axiom.
func DefaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "axiom"), nil
}

// DefaultPath returns the configuration file path. AXIOM_CONFIG overrides it.
func DefaultPath() (string, error) {
	if p := os.Getenv("AXIOM_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Default returns the built-in configuration.
func Default() (Config, error) {
	dataDir, err := DefaultDataDir()
	if err != nil {
		return Config{}, fmt.Errorf("cannot determine data directory: %w", err)
	}
	return Config{
		DataDir:         dataDir,
		APIURL:          "https://api.papermc.io/v2",
		Project:         "paper",
		HTTPTimeout:     Duration{30 * time.Second},
		DownloadTimeout: Duration{10 * time.Minute},
		Retries:         3,
		StopTimeout:     Duration{30 * time.Second},
		StartGrace:      Duration{3 * time.Second},
		LogLevel:        "info",
		LogFormat:       "console",
	}, nil
}

// Load reads the configuration at path over the defaults and applies the
// environment overrides. A missing file is not an error; unknown keys are
// ignored.
func Load(path string) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.DataDir, err = expandHome(cfg.DataDir); err != nil {
		return Config{}, err
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration (%s): %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"AXIOM_DATA_DIR":   &cfg.DataDir,
		"AXIOM_API_URL":    &cfg.APIURL,
		"AXIOM_LOG_LEVEL":  &cfg.LogLevel,
		"AXIOM_LOG_FORMAT": &cfg.LogFormat,
	}
	for name, field := range overrides {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*field = v
		}
	}
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// Validate checks field ranges and enumerations.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// DBPath is the SQLite database holding package records and the catalog cache.
func (c Config) DBPath() string { return filepath.Join(c.DataDir, "axiom.db") }

// ServersDir holds one root directory per package.
func (c Config) ServersDir() string { return filepath.Join(c.DataDir, "servers") }

// PipesDir holds the command channel endpoints.
func (c Config) PipesDir() string { return filepath.Join(c.DataDir, "pipes") }

// RunDir holds runtime records and console logs.
func (c Config) RunDir() string { return filepath.Join(c.DataDir, "run") }

// LocksDir holds the per-package lock files.
func (c Config) LocksDir() string { return filepath.Join(c.DataDir, "locks") }
