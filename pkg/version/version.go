// Package version reports build information.
//
// Set at build time with:
//
//	go build -ldflags "-X github.com/Rorqualx/darkpattern-remover/pkg/version.Version=1.2.0"
package version

import (
	"fmt"
	"runtime"
)

// Version is the application version.
var Version = "dev"

// Commit is the source revision, if known.
var Commit = ""

// Full returns the version, with the commit appended when set.
func Full() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}

// GoVersion returns the Go runtime version.
func GoVersion() string {
	return runtime.Version()
}
