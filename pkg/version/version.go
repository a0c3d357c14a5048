// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const modulePath = "github.com/coral-mesh/pipelinescope"

var (
	// Version is the semantic version (set by build flags). When unset and the
	// profiler is linked into another program, the module version from the
	// build info is used.
	Version = "dev"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"

	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)

func init() {
	if Version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := fromBuildInfo(info); v != "" {
			Version = v
		}
	}
}

// fromBuildInfo returns the pipelinescope module version recorded in info, or "".
func fromBuildInfo(info *debug.BuildInfo) string {
	if info.Main.Path == modulePath {
		if info.Main.Version == "" || info.Main.Version == "(devel)" {
			return ""
		}
		return info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path != modulePath {
			continue
		}
		if dep.Replace != nil {
			return ""
		}
		return dep.Version
	}
	return ""
}

// String renders the version block shown by the version command.
func String() string {
	return fmt.Sprintf("PipelineScope version %s\nGit commit: %s\nBuild date: %s\nGo version: %s\n",
		Version, GitCommit, BuildDate, GoVersion)
}
