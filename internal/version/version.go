// Package version provides application version information.
// The version can be set at build time using ldflags:
//
//	go build -ldflags "-X github.com/InfraSecConsult/netwatch-go/internal/version.Version=v1.0.0" ./cmd/netwatch
//
// If not set at build time, it falls back to reading a VERSION file at the
// repository root, or defaults to "dev" if neither is available.
package version

import (
	"os"
	"strings"
)

// Version is the application version. Set at build time via ldflags.
var Version = ""

// CommitHash is the git commit hash. Set at build time via ldflags.
var CommitHash = ""

// GetVersion returns the application version.
// Priority:
// 1. Build-time embedded version (ldflags)
// 2. VERSION file in the current directory or parents
// 3. "dev" as fallback
func GetVersion() string {
	if Version != "" {
		return Version
	}

	for _, path := range []string{"VERSION", "../VERSION", "../../VERSION"} {
		if content, err := os.ReadFile(path); err == nil {
			v := strings.TrimSpace(string(content))
			if v != "" {
				return v
			}
		}
	}

	return "dev"
}

// GetFullVersion returns the version with the commit hash if available.
func GetFullVersion() string {
	v := GetVersion()
	if CommitHash != "" {
		v += "+" + CommitHash
	}
	return v
}
