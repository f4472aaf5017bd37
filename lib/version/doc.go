// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information for the raptorcast
// binary.
//
// Three package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// When GitCommit is not injected, [Current] falls back to the VCS
// stamp the Go toolchain records in the binary's build info.
package version
