package build

import (
	"fmt"
	"strings"
)

const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0

	// appPreRelease is appended to the semantic version when non-empty.
	appPreRelease = "beta"
)

var (
	// Commit is the commit the binary was built from, set via ldflags.
	Commit string

	// GoVersion is the toolchain used for the build, set via ldflags.
	GoVersion string

	// RawTags is the comma separated list of build tags, set via ldflags.
	RawTags string
)

// Version returns the semantic version of the daemon.
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		version = fmt.Sprintf("%s-%s", version, appPreRelease)
	}

	return version
}

// Tags returns the build tags the binary was built with.
func Tags() []string {
	if RawTags == "" {
		return nil
	}

	return strings.Split(RawTags, ",")
}
