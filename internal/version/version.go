package version

import (
	"strings"

	"github.com/fatih/color"
)

// Version information for the bridgec CLI.
// These variables can be overridden at build time via -ldflags.

var (
	// Version is the semantic version of the generator. It feeds the
	// output cache key, so it must stay plain text.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

// Banner renders Version with each component colored for terminal
// output. Versions that do not split into major.minor.patch are
// returned unchanged.
func Banner() string {
	base, suffix, _ := strings.Cut(Version, "-")
	parts := strings.Split(base, ".")
	if len(parts) != 3 {
		return Version
	}
	banner := majorColor.Sprint(parts[0]) + "." + minorColor.Sprint(parts[1]) + "." + patchColor.Sprint(parts[2])
	if suffix != "" {
		banner += "-" + suffix
	}
	return banner
}
