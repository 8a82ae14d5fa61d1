// Package version holds build metadata, set with -ldflags -X at release time.
package version

import "fmt"

var (
	// Version is the release tag.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is when the binary was built.
	BuildTime = "unknown"
)

// String formats the build metadata for the CLI's version command.
func String() string {
	return fmt.Sprintf("carhack %s (%s, built %s)", Version, GitSHA, BuildTime)
}
