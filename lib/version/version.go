// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set via -ldflags at build time, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/raptorcast/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// shortCommitLength is how much of a VCS revision is shown.
const shortCommitLength = 12

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Dirty     bool   `json:"dirty"`
	BuildTime string `json:"build_time"`
	Go        string `json:"go"`
	Platform  string `json:"platform"`
}

// Current returns the running binary's build information.
func Current() Build {
	return fromBuildInfo(debug.ReadBuildInfo())
}

func fromBuildInfo(info *debug.BuildInfo, ok bool) Build {
	build := Build{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if !ok || GitCommit != "unknown" {
		return build
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			build.Commit = setting.Value
			if len(build.Commit) > shortCommitLength {
				build.Commit = build.Commit[:shortCommitLength]
			}
		case "vcs.modified":
			build.Dirty = setting.Value == "true"
		case "vcs.time":
			if BuildTime == "unknown" {
				build.BuildTime = setting.Value
			}
		}
	}
	return build
}

// Info returns a one-line version string suitable for --version output.
func (b Build) Info() string {
	dirty := ""
	if b.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", b.Version, b.Commit, dirty, b.BuildTime)
}

// Full returns Info plus the Go version and platform.
func (b Build) Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s", b.Info(), b.Go, b.Platform)
}
