// Package version provides build-time version information. The version
// is stamped into every prepared task so annotations can be traced back
// to the pipeline revision that produced their crop geometry.
package version

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "1.2.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)
