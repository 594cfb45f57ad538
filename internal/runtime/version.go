package runtime

import "fmt"

var (
	// Version is the semantic version (set via -ldflags)
	Version = "0.0.0-dev"

	// GitCommit is the full git commit hash (set via -ldflags)
	GitCommit = "dev"

	// GitTainted is "true" when built from a dirty tree (set via -ldflags)
	GitTainted = "false"

	// BuildTime is the UTC build timestamp (set via -ldflags)
	BuildTime = "unknown"
)

// ShortCommit returns the first seven characters of GitCommit.
func ShortCommit() string {
	if len(GitCommit) > 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

// Tainted reports whether the binary was built from a modified tree.
func Tainted() bool {
	return GitTainted == "true" || GitTainted == "1"
}

// VersionString returns the formatted version string for display.
func VersionString() string {
	dirty := ""
	if Tainted() {
		dirty = "-dirty"
	}
	return fmt.Sprintf("catflap version %s (%s%s) built %s", Version, ShortCommit(), dirty, BuildTime)
}
