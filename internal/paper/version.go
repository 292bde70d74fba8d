package paper

import (
	"strings"

	"golang.org/x/mod/semver"
)

// CompareVersions orders two upstream version identifiers by release order.
// Dotted numeric versions ("1.21.3", "1.8", "1.13-pre7") compare as semantic
// versions; identifiers that cannot be read that way sort before all valid
// ones and compare lexically among themselves.
func CompareVersions(a, b string) int {
	ca, okA := canonical(a)
	cb, okB := canonical(b)
	switch {
	case okA && okB:
		return semver.Compare(ca, cb)
	case okA:
		return 1
	case okB:
		return -1
	}
	return strings.Compare(a, b)
}

// canonical turns a Minecraft-style version into a semver string.
// "1.13-pre7" becomes "v1.13.0-pre7" because x/mod/semver only accepts the
// two-component shorthand when no prerelease suffix follows.
func canonical(v string) (string, bool) {
	core, pre, hasPre := strings.Cut(strings.TrimSpace(v), "-")
	if core == "" {
		return "", false
	}
	if strings.Count(core, ".") == 1 {
		core += ".0"
	}
	s := "v" + core
	if hasPre {
		s += "-" + pre
	}
	return s, semver.IsValid(s)
}
