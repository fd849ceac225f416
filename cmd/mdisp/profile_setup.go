package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mdisp/internal/prof"
)

var profiling *prof.Session

// setupProfiling starts the profilers requested by the persistent flags.
func setupProfiling(cmd *cobra.Command) error {
	pf := cmd.Root().PersistentFlags()
	var (
		cfg prof.Config
		err error
	)
	if cfg.CPU, err = pf.GetString("cpu-profile"); err != nil {
		return fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if cfg.Mem, err = pf.GetString("mem-profile"); err != nil {
		return fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if cfg.Trace, err = pf.GetString("runtime-trace"); err != nil {
		return fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	if cfg == (prof.Config{}) {
		return nil
	}
	profiling, err = prof.Start(cfg)
	return err
}

func stopProfiling(cmd *cobra.Command) {
	if err := profiling.Stop(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
	}
}
