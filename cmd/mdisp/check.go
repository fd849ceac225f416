package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mdisp/internal/diagfmt"
	"mdisp/internal/driver"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] <file.mdisp|directory>...",
	Short: "Check declarations and call sites",
	Long: `Load declaration files, report overlapping methods, unstable methods and
call sites that do not dispatch, and build the runtime dispatch table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("format", "pretty", "output format (pretty|json|yaml)")
	checkCmd.Flags().Bool("with-notes", true, "include diagnostic notes in output")
	checkCmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
	checkCmd.Flags().Bool("no-cache", false, "bypass the report cache")
	checkCmd.Flags().Bool("clear-cache", false, "drop every cached report before checking")
	checkCmd.Flags().Bool("warnings-as-errors", false, "exit with status 1 on warnings")
	checkCmd.Flags().String("ui", "off", "show live phase progress (auto|on|off)")
}

// runCheck executes "check" and exits with status 1 when errors were reported.
func runCheck(cmd *cobra.Command, args []string) error {
	g, err := readGlobalFlags(cmd)
	if err != nil {
		return err
	}
	formatStr, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	format, err := diagfmt.ParseFormat(formatStr)
	if err != nil {
		return err
	}
	withNotes, err := cmd.Flags().GetBool("with-notes")
	if err != nil {
		return fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	fullPath, err := cmd.Flags().GetBool("fullpath")
	if err != nil {
		return fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return fmt.Errorf("failed to get no-cache flag: %w", err)
	}
	clearCache, err := cmd.Flags().GetBool("clear-cache")
	if err != nil {
		return fmt.Errorf("failed to get clear-cache flag: %w", err)
	}
	warningsAsErrors, err := cmd.Flags().GetBool("warnings-as-errors")
	if err != nil {
		return fmt.Errorf("failed to get warnings-as-errors flag: %w", err)
	}
	uiMode, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	withUI, err := useProgressUI(uiMode)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(g, args)
	if err != nil {
		return err
	}
	opts, err := driverOptions(g, cfg, !noCache)
	if err != nil {
		return err
	}
	if clearCache && opts.Cache != nil {
		if err := opts.Cache.DropAll(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}

	var res *driver.Result
	if withUI && !g.quiet && format == diagfmt.FormatPretty {
		res, err = runCheckWithUI(cmd.Context(), "mdisp check", args, opts)
	} else {
		res, err = driver.Check(cmd.Context(), args, opts)
	}
	if err != nil {
		dumpTraceOnFailure(cmd)
		return fmt.Errorf("check failed: %w", err)
	}

	pathMode := diagfmt.PathModeAuto
	if fullPath {
		pathMode = diagfmt.PathModeAbsolute
	}
	out := cmd.OutOrStdout()
	switch format {
	case diagfmt.FormatPretty:
		diagfmt.Pretty(out, res.Bag, res.FileSet, diagfmt.PrettyOpts{
			Color:     !color.NoColor,
			Context:   1,
			PathMode:  pathMode,
			ShowNotes: withNotes,
		})
		if !g.quiet {
			summary := diagfmt.Summary(res.Bag)
			if res.Cached {
				summary += " (cached)"
			}
			fmt.Fprintln(out, summary)
		}
	case diagfmt.FormatJSON, diagfmt.FormatYAML:
		jsonOpts := diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         pathMode,
			IncludeNotes:     withNotes,
		}
		render := diagfmt.JSON
		if format == diagfmt.FormatYAML {
			render = diagfmt.YAML
		}
		if err := render(out, res.Bag, res.FileSet, jsonOpts); err != nil {
			return fmt.Errorf("failed to format diagnostics: %w", err)
		}
	}
	if g.timings {
		printPhaseTimings(cmd.ErrOrStderr(), res.Timings)
	}

	if res.Bag.HasErrors() || (warningsAsErrors && res.Bag.HasWarnings()) {
		dumpTraceOnFailure(cmd)
		exit(cmd, 1)
	}
	return nil
}
