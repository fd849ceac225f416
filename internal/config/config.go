// Package config loads mdisp.toml, found by walking up from the input file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"mdisp/internal/diag"
	"mdisp/internal/rtdispatch"
	"mdisp/internal/unify"
)

// FileName is the configuration file looked up by Find.
const FileName = "mdisp.toml"

// AmbiguityPolicy selects when overlapping methods are reported.
type AmbiguityPolicy string

const (
	// AmbiguityEager reports every genuine ambiguity at declaration time.
	AmbiguityEager AmbiguityPolicy = "eager"
	// AmbiguityLazy reports ambiguities only when a call site hits them.
	AmbiguityLazy AmbiguityPolicy = "lazy"
)

// Config is the decoded mdisp.toml.
type Config struct {
	Check   Check   `toml:"check"`
	Runtime Runtime `toml:"runtime"`
	Cache   Cache   `toml:"cache"`

	// Path is the file the values came from; empty for defaults.
	Path string `toml:"-"`
}

// Check tunes the static analyses.
type Check struct {
	MaxUnifyDepth  int             `toml:"max_unify_depth"`
	Ambiguity      AmbiguityPolicy `toml:"ambiguity"`
	Jobs           int             `toml:"jobs"`
	MaxDiagnostics int             `toml:"max_diagnostics"`
	EagerSeverity  string          `toml:"eager_severity"`
}

// Runtime sizes the runtime dispatch table.
type Runtime struct {
	FilterBits   int `toml:"filter_bits"`
	FilterHashes int `toml:"filter_hashes"`
	CacheSize    int `toml:"cache_size"`
	CacheShards  int `toml:"cache_shards"`
}

// Cache controls the on-disk report cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	rt := rtdispatch.DefaultOptions()
	return Config{
		Check: Check{
			MaxUnifyDepth:  unify.DefaultMaxDepth,
			Ambiguity:      AmbiguityEager,
			Jobs:           runtime.GOMAXPROCS(0),
			MaxDiagnostics: 100,
			EagerSeverity:  "warning",
		},
		Runtime: Runtime{
			FilterBits:   rt.FilterBits,
			FilterHashes: rt.FilterHashes,
			CacheSize:    rt.CacheSize,
			CacheShards:  rt.CacheShards,
		},
	}
}

// Find walks up from startDir looking for mdisp.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes path over the defaults, so absent keys keep default values.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.Path = path
	if cfg.Cache.Dir != "" && !filepath.IsAbs(cfg.Cache.Dir) {
		cfg.Cache.Dir = filepath.Join(filepath.Dir(path), cfg.Cache.Dir)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Discover loads the nearest mdisp.toml above startDir, or the defaults.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects values the analyses cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Check.Ambiguity {
	case AmbiguityEager, AmbiguityLazy:
	default:
		errs = append(errs, fmt.Errorf("[check].ambiguity must be %q or %q, got %q", AmbiguityEager, AmbiguityLazy, c.Check.Ambiguity))
	}
	if _, err := diag.ParseSeverity(c.Check.EagerSeverity); err != nil {
		errs = append(errs, fmt.Errorf("[check].eager_severity: %w", err))
	}
	if c.Check.MaxUnifyDepth <= 0 {
		errs = append(errs, errors.New("[check].max_unify_depth must be positive"))
	}
	if c.Check.Jobs < 0 {
		errs = append(errs, errors.New("[check].jobs must not be negative"))
	}
	if c.Runtime.FilterBits < 0 || c.Runtime.FilterHashes < 0 || c.Runtime.CacheSize < 0 || c.Runtime.CacheShards < 0 {
		errs = append(errs, errors.New("[runtime] values must not be negative"))
	}
	return errors.Join(errs...)
}

// RuntimeOptions converts [runtime] into table options.
func (c Config) RuntimeOptions() rtdispatch.Options {
	return rtdispatch.Options{
		FilterBits:   c.Runtime.FilterBits,
		FilterHashes: c.Runtime.FilterHashes,
		CacheSize:    c.Runtime.CacheSize,
		CacheShards:  c.Runtime.CacheShards,
	}
}

// Severity is the parsed eager_severity; invalid values fall back to warning.
func (c Check) Severity() diag.Severity {
	sev, err := diag.ParseSeverity(c.EagerSeverity)
	if err != nil {
		return diag.SevWarning
	}
	return sev
}
