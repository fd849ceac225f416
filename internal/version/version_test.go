package version

import (
	"testing"

	"github.com/fatih/color"
)

func TestCurrentTrimsOverrides(t *testing.T) {
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	defer func() { Version, GitCommit, BuildDate = origVersion, origCommit, origDate }()

	Version = " 1.2.3 "
	GitCommit = "abc123\n"
	BuildDate = ""
	info := Current()
	if info.Version != "1.2.3" || info.GitCommit != "abc123" {
		t.Fatalf("unexpected info %+v", info)
	}
	if got := info.String(); got != "mdisp 1.2.3 (abc123)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestColoredKeepsText(t *testing.T) {
	orig := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = orig }()

	for _, v := range []string{"0.1.0-dev", "1.2.3-rc.1+build.123", "1.0.0", "weird"} {
		if got := Colored(v); got != v {
			t.Fatalf("Colored(%q) = %q without colors", v, got)
		}
	}
}
