// Package version provides version information for the binary.
// Values are set at build time using -ldflags "-X ...version.Version=...".
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// Info is the build metadata reported by /health and the version command.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns the formatted version information.
func String() string {
	return fmt.Sprintf("camvision version %s (%s, built %s)", Version, Commit, BuildTime)
}
