package driver

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"mdisp/internal/diag"
)

// reportSchema is bumped whenever ReportPayload changes.
const reportSchema uint16 = 1

// DiskCache stores check reports keyed by ReportKey.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// ReportPayload is a cached check report.
type ReportPayload struct {
	Schema      uint16            `msgpack:"schema"`
	Diagnostics []diag.Diagnostic `msgpack:"diags"`
	Dropped     int               `msgpack:"dropped"`
}

// NewReportPayload snapshots a sorted, deduplicated bag.
func NewReportPayload(bag *diag.Bag) *ReportPayload {
	return &ReportPayload{
		Schema:      reportSchema,
		Diagnostics: append([]diag.Diagnostic(nil), bag.Items()...),
		Dropped:     bag.Dropped(),
	}
}

// Bag rebuilds a bag limited to max diagnostics.
func (p *ReportPayload) Bag(max int) *diag.Bag {
	all := diag.NewBag(0)
	for _, d := range p.Diagnostics {
		all.Add(d)
	}
	bag := diag.NewBag(max)
	bag.Merge(all)
	return bag
}

// OpenDiskCache opens the cache in dir, or under the user cache directory
// ($XDG_CACHE_HOME/mdisp) when dir is empty.
func OpenDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, "mdisp")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *DiskCache) Dir() string { return c.dir }

func (c *DiskCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "reports", hex.EncodeToString(key[:])+".mp")
}

// Put serializes a payload and replaces the entry atomically.
func (c *DiskCache) Put(key Digest, payload *ReportPayload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()
	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads a payload; a missing entry is not an error.
func (c *DiskCache) Get(key Digest, out *ReportPayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

// DropAll invalidates the cache.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}
