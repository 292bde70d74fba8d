// Package resolve maps a version request onto one concrete upstream build.
//
// Resolution is pure: it reads only the catalog snapshot it is handed, so the
// same snapshot and request always produce the same target or the same error.
package resolve

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nicdgonzalez/axiom/internal/paper"
)

var (
	ErrNoStableVersion      = errors.New("no stable version available")
	ErrUnknownVersion       = errors.New("unknown version")
	ErrUnknownBuild         = errors.New("unknown build")
	ErrExperimentalRejected = errors.New("experimental build rejected")
	ErrDowngradeRejected    = errors.New("downgrade rejected")
)

// Snapshot is the already-fetched catalog state a resolution runs against.
type Snapshot interface {
	// Versions returns the known versions in catalog order.
	Versions() []string
	// Builds returns the builds of version and whether they are known.
	Builds(version string) ([]paper.Build, bool)
}

// Request describes what the caller asked for. Zero Version means latest and
// zero Build means the newest build allowed by policy.
type Request struct {
	Version           string
	Build             int
	AllowExperimental bool
	AllowDowngrade    bool
	// Current is the package's installed target, if any.
	Current *paper.Target
}

// Resolve picks the target for req from snap.
func Resolve(snap Snapshot, req Request) (paper.Target, error) {
	version := req.Version
	allowExp := req.AllowExperimental

	if version == "" {
		v, err := latestVersion(snap, allowExp)
		if err != nil {
			return paper.Target{}, err
		}
		version = v
	} else if !contains(snap.Versions(), version) {
		return paper.Target{}, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}

	// Staying on the experimental line of the installed version is not a new
	// opt-in.
	if req.Current != nil && req.Current.Experimental() && req.Current.Version == version {
		allowExp = true
	}

	builds, ok := snap.Builds(version)
	if !ok {
		return paper.Target{}, fmt.Errorf("%w: no build information for %s", ErrUnknownVersion, version)
	}

	build, err := selectBuild(snap, version, builds, req.Build, allowExp)
	if err != nil {
		return paper.Target{}, err
	}

	if req.Current != nil && !req.AllowDowngrade && paper.CompareVersions(version, req.Current.Version) < 0 {
		return paper.Target{}, fmt.Errorf("%w: %s is older than the installed %s", ErrDowngradeRejected, version, req.Current.Version)
	}

	return paper.TargetFor(build), nil
}

// latestVersion returns the highest version with a stable build, or with any
// build when experimental builds are allowed.
func latestVersion(snap Snapshot, allowExp bool) (string, error) {
	ordered := orderedVersions(snap.Versions())
	for i := len(ordered) - 1; i >= 0; i-- {
		builds, ok := snap.Builds(ordered[i])
		if !ok || len(builds) == 0 {
			continue
		}
		if allowExp || hasStable(builds) {
			return ordered[i], nil
		}
	}
	if allowExp {
		return "", fmt.Errorf("%w: the catalog has no builds", ErrNoStableVersion)
	}
	return "", ErrNoStableVersion
}

func selectBuild(snap Snapshot, version string, builds []paper.Build, number int, allowExp bool) (paper.Build, error) {
	if number != 0 {
		for i := len(builds) - 1; i >= 0; i-- {
			b := builds[i]
			if b.Number != number {
				continue
			}
			if !b.Stable() && !allowExp {
				return paper.Build{}, fmt.Errorf("%w: %s build %d is %s", ErrExperimentalRejected, version, number, b.Channel)
			}
			return b, nil
		}
		return paper.Build{}, fmt.Errorf("%w: %s has no build %d", ErrUnknownBuild, version, number)
	}

	if len(builds) == 0 {
		return paper.Build{}, fmt.Errorf("%w: %s has no builds", ErrUnknownBuild, version)
	}

	best, found := paper.Build{}, false
	for _, b := range builds {
		if !allowExp && !b.Stable() {
			continue
		}
		// Ties go to the later catalog entry.
		if !found || b.Number >= best.Number {
			best, found = b, true
		}
	}
	if !found {
		return paper.Build{}, experimentalRejection(snap, version)
	}
	return best, nil
}

func experimentalRejection(snap Snapshot, version string) error {
	if stable, err := latestVersion(snap, false); err == nil {
		return fmt.Errorf("%w: %s has only experimental builds (latest stable version is %s)",
			ErrExperimentalRejected, version, stable)
	}
	return fmt.Errorf("%w: %s has only experimental builds", ErrExperimentalRejected, version)
}

// orderedVersions sorts by release order. The stable sort keeps catalog
// order between equal versions, so the later entry ends up last.
func orderedVersions(versions []string) []string {
	out := append([]string(nil), versions...)
	sort.SliceStable(out, func(i, j int) bool {
		return paper.CompareVersions(out[i], out[j]) < 0
	})
	return out
}

func hasStable(builds []paper.Build) bool {
	for _, b := range builds {
		if b.Stable() {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
