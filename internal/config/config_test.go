package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	for _, name := range []string{"AXIOM_CONFIG", "AXIOM_DATA_DIR", "AXIOM_API_URL", "AXIOM_LOG_LEVEL", "AXIOM_LOG_FORMAT"} {
		t.Setenv(name, "")
	}
	return home
}

func TestDir(t *testing.T) {
	home := isolate(t)

	dir, err := Dir()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, ".config", "axiom"); dir != want {
		t.Errorf("Dir() = %s, want %s", dir, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if dir, _ := Dir(); dir != "/xdg/axiom" {
		t.Errorf("Dir() with XDG_CONFIG_HOME = %s", dir)
	}

	t.Setenv("AXIOM_CONFIG", "/etc/axiom.toml")
	if p, _ := DefaultPath(); p != "/etc/axiom.toml" {
		t.Errorf("DefaultPath() = %s, want AXIOM_CONFIG", p)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(filepath.Join(home, "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(home, ".local", "share", "axiom"); cfg.DataDir != want {
		t.Errorf("DataDir = %s, want %s", cfg.DataDir, want)
	}
	if cfg.APIURL != "https://api.papermc.io/v2" || cfg.Project != "paper" {
		t.Errorf("oracle = %s/%s", cfg.APIURL, cfg.Project)
	}
	if cfg.Retries != 3 || cfg.StopTimeout.Duration != 30*time.Second {
		t.Errorf("Retries = %d, StopTimeout = %v", cfg.Retries, cfg.StopTimeout)
	}
	if cfg.DBPath() != filepath.Join(cfg.DataDir, "axiom.db") {
		t.Errorf("DBPath() = %s", cfg.DBPath())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "config.toml")
	content := `
data_dir = "~/games"
api_url = "https://mirror.example.com/v2/"
retries = 1
stop_timeout = "1m30s"
log_level = "DEBUG"
some_future_key = "ignored"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AXIOM_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != filepath.Join(home, "games") {
		t.Errorf("DataDir = %s, want ~ expanded", cfg.DataDir)
	}
	if cfg.APIURL != "https://mirror.example.com/v2" {
		t.Errorf("APIURL = %s, want trailing slash trimmed", cfg.APIURL)
	}
	if cfg.Retries != 1 || cfg.StopTimeout.Duration != 90*time.Second {
		t.Errorf("Retries = %d, StopTimeout = %v", cfg.Retries, cfg.StopTimeout)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("log = %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.StartGrace.Duration != 3*time.Second {
		t.Errorf("StartGrace = %v, want default kept", cfg.StartGrace)
	}

	t.Setenv("AXIOM_DATA_DIR", "/srv/axiom")
	cfg, _ = Load(path)
	if cfg.DataDir != "/srv/axiom" {
		t.Errorf("DataDir = %s, want env override", cfg.DataDir)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"retries out of range": "retries = 9\n",
		"bad url":              "api_url = \"not a url\"\n",
		"bad level":            "log_level = \"loud\"\n",
		"bad duration":         "stop_timeout = \"soon\"\n",
		"zero duration":        "start_grace = \"0s\"\n",
		"bad toml":             "retries = \n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			home := isolate(t)
			path := filepath.Join(home, "config.toml")
			os.WriteFile(path, []byte(content), 0o644)
			if _, err := Load(path); err == nil {
				t.Error("Load() error = nil")
			}
		})
	}
}
