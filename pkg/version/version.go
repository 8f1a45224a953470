// Package version exposes build-time version metadata.
package version

// FocusguardVersion is the semantic version string embedded at build time.
var FocusguardVersion = "0.0.0-src"

// Set version at compile time with
// go build -ldflags "-X focusguard/pkg/version.FocusguardVersion=1.0.0" -o focusguard
