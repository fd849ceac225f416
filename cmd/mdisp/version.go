package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mdisp/internal/version"
)

type versionOptions struct {
	format   string
	showHash bool
	showDate bool
}

const versionTagline = "one call, one method"

var (
	versionFormat   string
	versionShowHash bool
	versionShowDate bool
	versionShowFull bool
)

func init() {
	versionCmd.Flags().BoolVar(&versionShowHash, "hash", false, "include git commit hash")
	versionCmd.Flags().BoolVar(&versionShowDate, "date", false, "include build timestamp")
	versionCmd.Flags().BoolVar(&versionShowFull, "full", false, "show every recorded bit of build metadata")
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json|yaml)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show mdisp build metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := versionOptions{
			format:   strings.ToLower(versionFormat),
			showHash: versionShowHash || versionShowFull,
			showDate: versionShowDate || versionShowFull,
		}
		info := version.Current()
		if info.Version == "" {
			info.Version = "dev"
		}
		out := cmd.OutOrStdout()
		switch opts.format {
		case "pretty":
			renderVersionPretty(out, info, opts)
			return nil
		case "json", "yaml":
			return renderVersionData(out, info, opts)
		default:
			return errUnknownValue("format", versionFormat, "pretty|json|yaml")
		}
	},
}

func renderVersionPretty(out io.Writer, info version.Info, opts versionOptions) {
	fmt.Fprintf(out, "mdisp %s: %s\n", version.Colored(info.Version), versionTagline)
	if opts.showHash {
		fmt.Fprintf(out, "commit: %s\n", valueOrUnknown(info.GitCommit))
	}
	if opts.showDate {
		fmt.Fprintf(out, "built:  %s\n", valueOrUnknown(info.BuildDate))
	}
}

func renderVersionData(out io.Writer, info version.Info, opts versionOptions) error {
	if opts.showHash {
		info.GitCommit = valueOrUnknown(info.GitCommit)
	} else {
		info.GitCommit = ""
	}
	if opts.showDate {
		info.BuildDate = valueOrUnknown(info.BuildDate)
	} else {
		info.BuildDate = ""
	}
	if opts.format == "yaml" {
		return yaml.NewEncoder(out).Encode(info)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
