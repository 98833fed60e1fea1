package version

import "fmt"

// Version is the current version of the filescheduler tools. It is set at
// build time via -ldflags.
var Version = "dev"

// GitCommit is the git commit the binaries were built from.
var GitCommit = "none"

// VersionString returns a human readable version line.
func VersionString() string {
	return fmt.Sprintf("%s (commit %s)", Version, GitCommit)
}
