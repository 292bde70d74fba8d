// Package output renders axiom's terminal output: package, catalog and
// status tables, structured json/yaml dumps, download progress and spinners.
//
// Tables use plain padded columns and ANSI colors only when stdout is a
// terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// ANSI color codes for state display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// PackageRow is one line of `axiom list`.
type PackageRow struct {
	Name         string    `json:"name" yaml:"name"`
	Version      string    `json:"version" yaml:"version"`
	Build        int       `json:"build" yaml:"build"`
	Experimental bool      `json:"experimental" yaml:"experimental"`
	State        string    `json:"state" yaml:"state"`
	SizeBytes    int64     `json:"size_bytes" yaml:"size_bytes"`
	Root         string    `json:"root" yaml:"root"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// RenderPackageTable renders installed packages sorted by name.
func RenderPackageTable(rows []PackageRow) string {
	if len(rows) == 0 {
		return "No packages installed. Create one with `axiom new <name>`.\n"
	}

	sorted := make([]PackageRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-20s %-10s %-7s %-9s %-10s %s\n",
		"Package", "Version", "Build", "Size", "State", "Updated"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	for _, r := range sorted {
		build := "#" + strconv.Itoa(r.Build)
		if r.Experimental {
			build += "*"
		}
		// Pad before coloring so escape codes do not break alignment.
		state := colorize(stateColor(r.State), fmt.Sprintf("%-10s", r.State))
		sb.WriteString(fmt.Sprintf("%-20s %-10s %-7s %-9s %s %s\n",
			truncate(r.Name, 20),
			truncate(r.Version, 10),
			build,
			formatSize(r.SizeBytes),
			state,
			formatRelativeTime(r.UpdatedAt)))
	}

	if hasExperimental(sorted) {
		sb.WriteString("\n* experimental build\n")
	}
	return sb.String()
}

func hasExperimental(rows []PackageRow) bool {
	for _, r := range rows {
		if r.Experimental {
			return true
		}
	}
	return false
}

// VersionRow is one line of `axiom versions`.
type VersionRow struct {
	Version     string `json:"version" yaml:"version"`
	Builds      int    `json:"builds" yaml:"builds"`
	LatestBuild int    `json:"latest_build" yaml:"latest_build"`
	// LatestStable is zero when the version has no stable build.
	LatestStable int `json:"latest_stable" yaml:"latest_stable"`
	// Loaded is false when the version's builds have never been fetched.
	Loaded bool `json:"loaded" yaml:"loaded"`
}

// RenderVersionTable renders catalog versions newest first.
func RenderVersionTable(rows []VersionRow) string {
	if len(rows) == 0 {
		return "No versions known.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-12s %-8s %-8s %s\n", "Version", "Builds", "Latest", "Stable"))
	sb.WriteString(strings.Repeat("─", 44))
	sb.WriteString("\n")

	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if !r.Loaded {
			sb.WriteString(fmt.Sprintf("%-12s %-8s %-8s %s\n", truncate(r.Version, 12), "?", "?", colorize(colorGray, "not fetched")))
			continue
		}
		stable := colorize(colorYellow, "experimental only")
		if r.LatestStable > 0 {
			stable = colorize(colorGreen, "#"+strconv.Itoa(r.LatestStable))
		}
		sb.WriteString(fmt.Sprintf("%-12s %-8d %-8s %s\n",
			truncate(r.Version, 12), r.Builds, "#"+strconv.Itoa(r.LatestBuild), stable))
	}
	return sb.String()
}

// BuildRow is one line of `axiom versions --builds`.
type BuildRow struct {
	Number   int    `json:"build" yaml:"build"`
	Channel  string `json:"channel" yaml:"channel"`
	FileName string `json:"file" yaml:"file"`
	SHA256   string `json:"sha256" yaml:"sha256"`
}

// RenderBuildTable renders the builds of one version newest first.
func RenderBuildTable(version string, rows []BuildRow) string {
	if len(rows) == 0 {
		return fmt.Sprintf("No builds for %s.\n", version)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Builds of %s\n\n", version))
	sb.WriteString(fmt.Sprintf("%-7s %-14s %-30s %s\n", "Build", "Channel", "File", "SHA256"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		channel := fmt.Sprintf("%-14s", r.Channel)
		if r.Channel != "default" {
			channel = colorize(colorYellow, channel)
		}
		sb.WriteString(fmt.Sprintf("%-7s %s %-30s %s\n",
			"#"+strconv.Itoa(r.Number), channel, truncate(r.FileName, 30), truncate(r.SHA256, 12)))
	}
	return sb.String()
}

// StatusRow is one line of `axiom status`.
type StatusRow struct {
	Name     string    `json:"name" yaml:"name"`
	State    string    `json:"state" yaml:"state"`
	PID      int       `json:"pid,omitempty" yaml:"pid,omitempty"`
	Since    time.Time `json:"since,omitzero" yaml:"since,omitempty"`
	Target   string    `json:"target" yaml:"target"`
	Endpoint string    `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// RenderStatusTable renders the runtime state of packages.
func RenderStatusTable(rows []StatusRow) string {
	if len(rows) == 0 {
		return "No packages installed.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-20s %-10s %-8s %-16s %s\n", "Package", "State", "PID", "Up", "Target"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	for _, r := range rows {
		pid, up := "-", "-"
		if r.PID > 0 {
			pid = strconv.Itoa(r.PID)
		}
		if !r.Since.IsZero() {
			up = formatUptime(time.Since(r.Since))
		}
		state := colorize(stateColor(r.State), fmt.Sprintf("%-10s", r.State))
		sb.WriteString(fmt.Sprintf("%-20s %s %-8s %-16s %s\n",
			truncate(r.Name, 20), state, pid, up, r.Target))
	}
	return sb.String()
}

// stateColor returns the ANSI color code for a supervisor state.
func stateColor(state string) string {
	switch strings.ToLower(state) {
	case "running":
		return colorGreen
	case "starting", "stopping":
		return colorYellow
	case "failed":
		return colorRed
	default:
		return colorGray
	}
}

// formatSize converts bytes to a human-readable size, or "-" when unknown.
func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if time.Since(t) < time.Minute {
		return "just now"
	}
	return humanize.Time(t)
}

// formatUptime renders d as e.g. "3d 4h", "2h 5m" or "45s".
func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
