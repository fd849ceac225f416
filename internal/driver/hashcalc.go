package driver

import (
	"crypto/sha256"

	"github.com/vmihailenco/msgpack/v5"

	"mdisp/internal/config"
	"mdisp/internal/source"
	"mdisp/internal/version"
)

// Digest is a SHA-256 content hash.
type Digest [32]byte

// combineDigest: H(part1 || part2 ...). Parts are in deterministic order.
func combineDigest(parts ...[]byte) Digest {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// ReportKey identifies a check report: the tool version, the configuration
// that affects diagnostics, and every file's path and content hash in load
// order.
func ReportKey(files []*source.File, cfg config.Config) Digest {
	settings, _ := msgpack.Marshal(struct {
		Check   config.Check
		Runtime config.Runtime
	}{cfg.Check, cfg.Runtime})
	parts := [][]byte{[]byte(version.Version), {0}, settings}
	for _, f := range files {
		parts = append(parts, []byte(f.Path), []byte{0}, f.Hash[:])
	}
	return combineDigest(parts...)
}
