package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	if RootCmd.Use != "axiom" {
		t.Errorf("expected Use to be 'axiom', got '%s'", RootCmd.Use)
	}
	if RootCmd.Short == "" {
		t.Error("expected Short description to be set")
	}
	if !strings.Contains(RootCmd.Long, "Quick Start") {
		t.Error("expected Long description to contain 'Quick Start' section")
	}
	if !RootCmd.SilenceUsage || !RootCmd.SilenceErrors {
		t.Error("expected SilenceUsage and SilenceErrors to be true")
	}
	if RootCmd.SuggestionsMinimumDistance != 2 {
		t.Errorf("SuggestionsMinimumDistance = %d, want 2", RootCmd.SuggestionsMinimumDistance)
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, cmd := range RootCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, want := range []string{"new", "update", "delete", "list", "versions", "start", "stop", "status", "send", "logs", "ping"} {
		if !found[want] {
			t.Errorf("expected command '%s' to be registered", want)
		}
	}

	cmd, _, err := RootCmd.Find([]string{"send-command"})
	if err != nil || cmd != sendCmd {
		t.Errorf("send-command should resolve to send, got %v (%v)", cmd, err)
	}
}

func TestRootCommandHasPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "data-dir", "log-level"} {
		flag := RootCmd.PersistentFlags().Lookup(name)
		if flag == nil {
			t.Errorf("expected --%s flag to be registered", name)
			continue
		}
		if flag.Usage == "" {
			t.Errorf("expected --%s flag to have usage text", name)
		}
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  string
		flag string
		def  string
	}{
		{"new", "allow-experimental", "false"},
		{"new", "refresh", "false"},
		{"new", "accept-eula", "false"},
		{"update", "allow-experimental", "false"},
		{"update", "allow-downgrade", "false"},
		{"update", "offline", "false"},
		{"delete", "yes", "false"},
		{"list", "output", "table"},
		{"status", "output", "table"},
		{"logs", "lines", "20"},
		{"logs", "follow", "false"},
		{"ping", "timeout", "5s"},
		{"stop", "timeout", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd+" --"+tt.flag, func(t *testing.T) {
			cmd, _, err := RootCmd.Find([]string{tt.cmd})
			if err != nil {
				t.Fatal(err)
			}
			flag := cmd.Flags().Lookup(tt.flag)
			if flag == nil {
				t.Fatalf("flag %q not found", tt.flag)
			}
			if flag.DefValue != tt.def {
				t.Errorf("default = %q, want %q", flag.DefValue, tt.def)
			}
		})
	}
}

func TestRootBareInvocation(t *testing.T) {
	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	defer RootCmd.SetOut(nil)

	if err := RootCmd.RunE(RootCmd, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "axiom new <name>") {
		t.Errorf("bare invocation output = %q", buf.String())
	}
}

func TestParseTargetArgs(t *testing.T) {
	req, err := parseTargetArgs([]string{"1.21.3", "82"})
	if err != nil || req.Version != "1.21.3" || req.Build != 82 {
		t.Errorf("parseTargetArgs() = %+v, %v", req, err)
	}
	req, err = parseTargetArgs(nil)
	if err != nil || req.Version != "" || req.Build != 0 {
		t.Errorf("parseTargetArgs(nil) = %+v, %v", req, err)
	}
	for _, bad := range []string{"latest", "0", "-3"} {
		if _, err := parseTargetArgs([]string{"1.21.3", bad}); err == nil {
			t.Errorf("parseTargetArgs(build %q) error = nil", bad)
		}
	}
}
