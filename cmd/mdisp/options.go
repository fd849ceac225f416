package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mdisp/internal/config"
	"mdisp/internal/driver"
)

// globalFlags mirrors the persistent flags of the root command.
type globalFlags struct {
	quiet          bool
	timings        bool
	maxDiagnostics int
	jobs           int
	configPath     string
}

func readGlobalFlags(cmd *cobra.Command) (globalFlags, error) {
	pf := cmd.Root().PersistentFlags()
	var (
		g   globalFlags
		err error
	)
	if g.quiet, err = pf.GetBool("quiet"); err != nil {
		return g, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	if g.timings, err = pf.GetBool("timings"); err != nil {
		return g, fmt.Errorf("failed to get timings flag: %w", err)
	}
	if g.maxDiagnostics, err = pf.GetInt("max-diagnostics"); err != nil {
		return g, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	if g.jobs, err = pf.GetInt("jobs"); err != nil {
		return g, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if g.configPath, err = pf.GetString("config"); err != nil {
		return g, fmt.Errorf("failed to get config flag: %w", err)
	}
	if g.maxDiagnostics < 0 || g.jobs < 0 {
		return g, fmt.Errorf("--max-diagnostics and --jobs must not be negative")
	}
	return g, nil
}

// loadConfig honours --config, otherwise walks up from the first input.
func loadConfig(g globalFlags, paths []string) (config.Config, error) {
	if g.configPath != "" {
		return config.Load(g.configPath)
	}
	start := "."
	if len(paths) > 0 {
		start = paths[0]
		if st, err := os.Stat(start); err == nil && !st.IsDir() {
			start = filepath.Dir(start)
		}
	}
	return config.Discover(start)
}

// driverOptions builds the driver options shared by every command. The disk
// cache is opened only when useCache is set and [cache].enabled is true.
func driverOptions(g globalFlags, cfg config.Config, useCache bool) (driver.Options, error) {
	opts := driver.Options{
		Config:         cfg,
		Jobs:           g.jobs,
		MaxDiagnostics: g.maxDiagnostics,
		Timings:        g.timings,
	}
	if useCache && cfg.Cache.Enabled {
		c, err := driver.OpenDiskCache(cfg.Cache.Dir)
		if err != nil {
			return opts, err
		}
		opts.Cache = c
	}
	return opts, nil
}

func errUnknownValue(flag, value, want string) error {
	return fmt.Errorf("unknown --%s value %q (want %s)", flag, value, want)
}
