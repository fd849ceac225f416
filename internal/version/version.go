// Package version carries build metadata of the mdisp binary.
package version

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// These variables can be overridden at build time via -ldflags.
var (
	// Version is the semantic version of the CLI.
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

// Info is the structured form printed by `mdisp version --format json`.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit,omitempty" yaml:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty" yaml:"build_date,omitempty"`
}

// Current returns the build metadata with surrounding whitespace removed.
func Current() Info {
	return Info{
		Version:   strings.TrimSpace(Version),
		GitCommit: strings.TrimSpace(GitCommit),
		BuildDate: strings.TrimSpace(BuildDate),
	}
}

// Colored renders the version with each numeric component colored.
// Pre-release and build suffixes stay uncolored.
func Colored(v string) string {
	core, suffix := v, ""
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		core, suffix = v[:i], v[i:]
	}
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return v
	}
	return majorColor.Sprint(parts[0]) + "." + minorColor.Sprint(parts[1]) + "." + patchColor.Sprint(parts[2]) + suffix
}

func (i Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mdisp %s", i.Version)
	if i.GitCommit != "" {
		fmt.Fprintf(&sb, " (%s)", i.GitCommit)
	}
	if i.BuildDate != "" {
		fmt.Fprintf(&sb, " built %s", i.BuildDate)
	}
	return sb.String()
}
