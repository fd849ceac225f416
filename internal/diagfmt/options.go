package diagfmt

import (
	"fmt"
	"strings"
)

// PathMode specifies how file paths are displayed.
type PathMode uint8

const (
	// PathModeAuto keeps short paths and shortens long absolute ones to the basename.
	PathModeAuto PathMode = iota
	// PathModeAbsolute always uses absolute paths.
	PathModeAbsolute
	PathModeRelative
	PathModeBasename
)

// Format selects the report renderer.
type Format uint8

const (
	FormatPretty Format = iota
	FormatJSON
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatPretty:
		return "pretty"
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	}
	return fmt.Sprintf("Format(%d)", f)
}

// ParseFormat accepts pretty, json and yaml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "pretty", "text":
		return FormatPretty, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return FormatPretty, fmt.Errorf("unknown format %q (want pretty, json or yaml)", s)
}

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color     bool
	Context   int // lines shown around the primary line
	PathMode  PathMode
	BaseDir   string // for PathModeRelative
	ShowNotes bool
	Max       int // 0 - no limit
}

// JSONOpts configures JSON and YAML output of diagnostics.
type JSONOpts struct {
	IncludePositions bool // line/col next to byte offsets
	PathMode         PathMode
	BaseDir          string
	Max              int // trims the output, not the Bag
	IncludeNotes     bool
}
