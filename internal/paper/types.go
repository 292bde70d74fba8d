package paper

import "fmt"

// Channel is the release channel a build was published under.
type Channel string

const (
	ChannelDefault      Channel = "default"
	ChannelExperimental Channel = "experimental"
)

// Stable reports whether the channel marks a build as stable.
// Anything other than "default" is treated as experimental.
func (c Channel) Stable() bool {
	return c == ChannelDefault
}

// Build is a single compiled server artifact for a version.
type Build struct {
	Version  string
	Number   int
	Channel  Channel
	FileName string
	SHA256   string
	URL      string
}

// Stable reports whether the oracle marked the build stable.
func (b Build) Stable() bool {
	return b.Channel.Stable()
}

// Target is a fully resolved (version, build) pair plus the identity of the
// artifact to download. Values are passed by copy and never mutated once built.
type Target struct {
	Version  string
	Build    int
	Channel  Channel
	FileName string
	URL      string
	SHA256   string
}

// TargetFor builds the Target describing b.
func TargetFor(b Build) Target {
	return Target{
		Version:  b.Version,
		Build:    b.Number,
		Channel:  b.Channel,
		FileName: b.FileName,
		URL:      b.URL,
		SHA256:   b.SHA256,
	}
}

// Experimental reports whether the target is an experimental build.
func (t Target) Experimental() bool {
	return !t.Channel.Stable()
}

func (t Target) String() string {
	return fmt.Sprintf("%s (#%d)", t.Version, t.Build)
}
