package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mdisp/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "mdisp",
	Short: "Multiple-dispatch checker",
	Long:  `mdisp checks method families for ambiguity, dispatches call sites and builds runtime dispatch tables`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupColor(cmd); err != nil {
			return err
		}
		if err := setupProfiling(cmd); err != nil {
			return err
		}
		return setupTracing(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeTracing(cmd)
		stopProfiling(cmd)
	},
	SilenceUsage: true,
}

// main registers subcommands and persistent flags and runs the root command.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().Int("max-diagnostics", 0, "maximum number of diagnostics to show (0 = from config)")
	rootCmd.PersistentFlags().String("config", "", "path to mdisp.toml (default: discovered from the inputs)")
	rootCmd.PersistentFlags().Int("jobs", 0, "max parallel workers (0 = from config)")
	rootCmd.PersistentFlags().String("trace", "", "trace output file (- for stderr, *.ndjson for NDJSON)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace storage (stream|ring|both); ring events are dumped when a check fails")
	rootCmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile to this file")
	rootCmd.PersistentFlags().String("mem-profile", "", "write a heap profile to this file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime trace to this file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func setupColor(cmd *cobra.Command) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return errUnknownValue("color", mode, "auto|on|off")
	}
	return nil
}

// exit flushes the tracer and profilers and terminates with code;
// PersistentPostRun does not run on this path.
func exit(cmd *cobra.Command, code int) {
	closeTracing(cmd)
	stopProfiling(cmd)
	os.Exit(code)
}
