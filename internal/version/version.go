// Package version holds the semantic version baked into releases.
package version

import "fmt"

// Version is the semantic version, bumped on release.
var Version = "0.2.0"

// DevVersion is the development version suffix base.
var DevVersion = "0.0.0"

// GetCurrentVersion returns the effective version for the given mode.
func GetCurrentVersion(mode string) string {
	if mode == "prod" {
		return Version
	}
	return fmt.Sprintf("%s-%s", DevVersion, mode)
}
