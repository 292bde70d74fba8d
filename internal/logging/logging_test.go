package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"info":    zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) error = nil")
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	log.Info().Msg("hidden")
	log.Warn().Str("package", "survival").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "shown" || entry["package"] != "survival" || entry["level"] != "warn" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry has no timestamp")
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	log.Debug().Msg("hidden")
	log.Info().Msg("hello")

	got := buf.String()
	if !strings.Contains(got, "hello") || strings.Contains(got, "hidden") {
		t.Errorf("console output = %q", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Errorf("console output to a buffer should not be colored: %q", got)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("New() with format xml error = nil")
	}
}
