package app

import (
	"errors"

	"github.com/nicdgonzalez/axiom/internal/channel"
	"github.com/nicdgonzalez/axiom/internal/download"
	"github.com/nicdgonzalez/axiom/internal/manifest"
	"github.com/nicdgonzalez/axiom/internal/packages"
	"github.com/nicdgonzalez/axiom/internal/paper"
	"github.com/nicdgonzalez/axiom/internal/resolve"
	"github.com/nicdgonzalez/axiom/internal/supervisor"
)

// Process exit codes, one per failure class.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitPolicy    = 3
	ExitNotFound  = 4
	ExitTransient = 5
	ExitIntegrity = 6
	ExitProcess   = 7
	ExitPartial   = 8
)

// exitClasses is checked in order; the first class with a matching sentinel
// wins. Not-found comes before transient so a 404 during a download is not
// reported as retryable.
var exitClasses = []struct {
	code      int
	sentinels []error
}{
	{ExitPartial, []error{packages.ErrPartialDelete}},
	{ExitIntegrity, []error{download.ErrChecksumMismatch}},
	{ExitPolicy, []error{
		resolve.ErrExperimentalRejected,
		resolve.ErrDowngradeRejected,
		resolve.ErrNoStableVersion,
		packages.ErrNameAlreadyExists,
		packages.ErrInvalidName,
		manifest.ErrEULANotAccepted,
	}},
	{ExitNotFound, []error{
		resolve.ErrUnknownVersion,
		resolve.ErrUnknownBuild,
		packages.ErrNotFound,
		paper.ErrNotFound,
	}},
	{ExitProcess, []error{
		supervisor.ErrAlreadyRunning,
		supervisor.ErrBinaryMissing,
		supervisor.ErrLaunchFailed,
		supervisor.ErrNotRunning,
		channel.ErrNoListener,
		channel.ErrListenerAttached,
	}},
	{ExitTransient, []error{paper.ErrUpstreamUnavailable, download.ErrDownloadFailed}},
}

// ExitCode maps err onto the process exit code for its failure class.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, class := range exitClasses {
		for _, sentinel := range class.sentinels {
			if errors.Is(err, sentinel) {
				return class.code
			}
		}
	}
	return ExitFailure
}

// Hint suggests how to get past err, or returns "".
func Hint(err error) string {
	switch {
	case errors.Is(err, resolve.ErrExperimentalRejected), errors.Is(err, resolve.ErrNoStableVersion):
		return "pass --allow-experimental to accept experimental builds"
	case errors.Is(err, resolve.ErrDowngradeRejected):
		return "pass --allow-downgrade if the world can be loaded by the older version (make a backup first)"
	case errors.Is(err, manifest.ErrEULANotAccepted):
		return "read https://aka.ms/MinecraftEULA and pass --accept-eula"
	case errors.Is(err, packages.ErrPartialDelete):
		return "fix the problem above and run the same delete again to finish"
	case errors.Is(err, channel.ErrNoListener):
		return "the server is not reading commands; it needs the axiom plugin, or launcher.console = \"wrapper\" in Axiom.toml"
	case errors.Is(err, supervisor.ErrLaunchFailed):
		return "check the console log with 'axiom logs <name>'"
	case errors.Is(err, paper.ErrUpstreamUnavailable):
		return "the PaperMC API is unreachable; commands that only need cached data still work"
	}
	return ""
}
