// Package version holds build-time version info for shipway.
// Set via main using Set(), read from anywhere via the getters.
package version

import "fmt"

// Build information, populated by Set() at startup.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Set stores build-time version info. Call once from main.
func Set(v, c, d string) {
	version = v
	commit = c
	buildDate = d
}

// Version returns the build version string.
func Version() string { return version }

// Commit returns the build commit hash.
func Commit() string { return commit }

// BuildDate returns the build date string.
func BuildDate() string { return buildDate }

// String returns a single-line version summary.
func String() string {
	return fmt.Sprintf("shipway %s (commit %s, built %s)", version, commit, buildDate)
}
