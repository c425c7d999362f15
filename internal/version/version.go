// Package version provides build-time version information.
// These variables are set via ldflags at build time.
package version

import "runtime/debug"

var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit SHA
	Commit = "none"

	// Date is the build date in RFC3339 format
	Date = "unknown"
)

// IsDev reports an unreleased build.
func IsDev() bool {
	return Version == "dev"
}

// Full returns the full version string for display.
func Full() string {
	if IsDev() {
		if rev := vcsRevision(); rev != "" {
			return "pagewise version dev (" + rev + ")"
		}
		return "pagewise version dev (built from source)"
	}
	return "pagewise version " + Version
}

// UserAgent returns the user agent string for API requests.
func UserAgent() string {
	return "pagewise/" + Version + " (https://github.com/pagewise/pagewise)"
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return ""
}
