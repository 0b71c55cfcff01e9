/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries build information.
package version

import (
	"fmt"
	"runtime"
)

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/cadence/internal/version.Version=X.Y.Z
var Version = "0.3.0"

// Commit is the source revision, also set via ldflags.
var Commit = "unknown"

// String formats the version for `cadence version` and the tracer resource.
func String() string {
	return fmt.Sprintf("cadence %s (%s, %s)", Version, Commit, runtime.Version())
}
