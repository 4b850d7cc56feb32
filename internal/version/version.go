// Package version exposes the build version.
package version

// Version is the current release. Override at build time with
// -ldflags "-X github.com/swarmroute/swarmroute/internal/version.Version=v1.2.3".
var Version = "v0.1.0-dev"

// Get returns the current version.
func Get() string {
	return Version
}
