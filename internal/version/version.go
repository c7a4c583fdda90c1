// Package version provides application version and build info.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the current version, overridable by ldflags at build time.
	Version = "dev"
	// CommitHash is the git commit hash, overridable by ldflags at build time.
	CommitHash = ""
)

// GetInfo returns the version string with the short commit hash appended
// when one is known. The hash falls back to the VCS info the Go toolchain
// stamps into the binary.
func GetInfo() string {
	if CommitHash == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					CommitHash = setting.Value
				}
			}
		}
	}

	res := Version
	if CommitHash != "" {
		shortHash := CommitHash
		if len(shortHash) > 7 {
			shortHash = shortHash[:7]
		}
		res += fmt.Sprintf(" (%s)", shortHash)
	}
	return res
}
