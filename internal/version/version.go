// Package version holds build time version information, set via ldflags.
package version

var (
	// Version is the semantic version of the build
	Version = "dev"
	// BuildTime is the timestamp of the build
	BuildTime = "unknown"
)
