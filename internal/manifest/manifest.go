// Package manifest reads and writes the per-package Axiom.toml file, which
// holds launcher settings and the server.properties overrides of a package.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/nicdgonzalez/axiom/internal/fsutil"
)

// FileName is the manifest's name inside a package root.
const FileName = "Axiom.toml"

// Console selects how commands reach the server.
type Console string

const (
	// ConsolePlugin relies on the companion plugin reading the endpoint.
	ConsolePlugin Console = "plugin"
	// ConsoleWrapper runs the server under axiom-console, which feeds the
	// endpoint into the server's standard input.
	ConsoleWrapper Console = "wrapper"
)

// Launcher controls how the server process is started.
type Launcher struct {
	Java     string   `toml:"java" validate:"required"`
	Memory   string   `toml:"memory" validate:"required,jvmmem"`
	JavaArgs []string `toml:"java_args"`
	GameArgs []string `toml:"game_args"`
	Console  Console  `toml:"console" validate:"oneof=plugin wrapper"`
}

// Manifest is the content of Axiom.toml.
type Manifest struct {
	Launcher   Launcher       `toml:"launcher"`
	Properties map[string]any `toml:"properties,omitempty"`
}

var memoryPattern = regexp.MustCompile(`^[0-9]+[KkMmGg]$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("jvmmem", func(fl validator.FieldLevel) bool { //nolint:errcheck
		return memoryPattern.MatchString(fl.Field().String())
	})
	return v
}

// Default returns the manifest written for new packages.
func Default() Manifest {
	return Manifest{
		Launcher: Launcher{
			Java:     "java",
			Memory:   "4G",
			GameArgs: []string{"--nogui"},
			Console:  ConsolePlugin,
		},
	}
}

// Path returns the manifest path for a package root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Load reads the manifest of the package at root. A missing file yields the
// defaults; missing keys take their default value and unknown keys are
// ignored.
func Load(root string) (Manifest, error) {
	m := Default()

	data, err := os.ReadFile(Path(root))
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read %s: %w", FileName, err)
	}

	var parsed Manifest
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}

	if parsed.Launcher.Java != "" {
		m.Launcher.Java = parsed.Launcher.Java
	}
	if parsed.Launcher.Memory != "" {
		m.Launcher.Memory = parsed.Launcher.Memory
	}
	if parsed.Launcher.JavaArgs != nil {
		m.Launcher.JavaArgs = parsed.Launcher.JavaArgs
	}
	if parsed.Launcher.GameArgs != nil {
		m.Launcher.GameArgs = parsed.Launcher.GameArgs
	}
	if parsed.Launcher.Console != "" {
		m.Launcher.Console = parsed.Launcher.Console
	}
	m.Properties = parsed.Properties

	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks the launcher settings.
func (m Manifest) Validate() error {
	if err := validate.Struct(m.Launcher); err != nil {
		return fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return nil
}

// Save writes m to the package at root.
func Save(root string, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode %s: %w", FileName, err)
	}
	if err := fsutil.WriteFileAtomic(Path(root), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}
