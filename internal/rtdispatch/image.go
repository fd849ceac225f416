package rtdispatch

import (
	"errors"
	"fmt"
	"io"

	"fortio.org/safecast"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"mdisp/internal/dispatch"
	"mdisp/internal/registry"
)

// imageSchema is bumped whenever the image layout changes.
const imageSchema uint16 = 2

// ErrImageMismatch is returned when an image does not fit the registry it is
// loaded against.
var ErrImageMismatch = errors.New("runtime table image does not match the registry")

type image struct {
	Schema  uint16       `msgpack:"schema"`
	BuildID string       `msgpack:"build_id"`
	Options Options      `msgpack:"options"`
	Entries []imageEntry `msgpack:"entries"`
	// Filters holds the non-empty collision filters in their binary form.
	Filters map[string][]byte `msgpack:"filters"`
}

type imageEntry struct {
	Name         string   `msgpack:"name"`
	Fingerprints []uint32 `msgpack:"fps"`
	Identities   []uint64 `msgpack:"ids"`
	Args         []string `msgpack:"args"`
	Method       uint32   `msgpack:"method"`
	Signature    string   `msgpack:"sig"`
}

// WriteImage serializes the precomputed entries. The overflow cache and the
// counters are not part of the image.
func (t *Table) WriteImage(w io.Writer) error {
	img := image{
		Schema:  imageSchema,
		BuildID: t.buildID.String(),
		Options: t.opts,
		Entries: make([]imageEntry, len(t.entries)),
		Filters: make(map[string][]byte, len(t.filters)),
	}
	for name, f := range t.filters {
		if f.empty() {
			continue
		}
		data, err := f.marshal()
		if err != nil {
			return fmt.Errorf("encode filter for %s: %w", name, err)
		}
		img.Filters[name] = data
	}
	for i, e := range t.entries {
		img.Entries[i] = imageEntry{
			Name:         e.Name,
			Fingerprints: e.Fingerprints,
			Identities:   e.Identities,
			Args:         e.Args,
			Method:       uint32(e.Method.ID),
			Signature:    e.Method.Signature(t.in),
		}
	}
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return enc.Encode(&img)
}

// ReadImage restores a table written by WriteImage against the registry the
// resolver reads. Every entry must name a method with the same signature.
func ReadImage(r io.Reader, res *dispatch.Resolver) (*Table, error) {
	var img image
	if err := msgpack.NewDecoder(r).Decode(&img); err != nil {
		return nil, fmt.Errorf("decode runtime table image: %w", err)
	}
	if img.Schema != imageSchema {
		return nil, fmt.Errorf("%w: schema %d, want %d", ErrImageMismatch, img.Schema, imageSchema)
	}
	id, err := uuid.Parse(img.BuildID)
	if err != nil {
		return nil, fmt.Errorf("runtime table image build id: %w", err)
	}
	reg := res.Registry()
	t := newTable(res, img.Options, id)
	for name, data := range img.Filters {
		f, err := unmarshalFilter(data, t.opts)
		if err != nil {
			return nil, fmt.Errorf("%w: filter for %s: %v", ErrImageMismatch, name, err)
		}
		t.filters[name] = f
	}
	t.entries = make([]*Entry, 0, len(img.Entries))
	for _, e := range img.Entries {
		if len(e.Fingerprints) != len(e.Identities) {
			return nil, fmt.Errorf("%w: %s has %d fingerprints and %d identities", ErrImageMismatch, e.Name, len(e.Fingerprints), len(e.Identities))
		}
		mid, err := safecast.Conv[uint32](reg.Len())
		if err != nil {
			return nil, err
		}
		if e.Method > mid {
			return nil, fmt.Errorf("%w: method %d out of range", ErrImageMismatch, e.Method)
		}
		m := reg.Method(registry.MethodID(e.Method))
		if m == nil || m.Name != e.Name || m.Signature(t.in) != e.Signature {
			return nil, fmt.Errorf("%w: entry %s expects %q", ErrImageMismatch, e.Name, e.Signature)
		}
		t.entries = append(t.entries, &Entry{
			Name:         e.Name,
			Fingerprints: e.Fingerprints,
			Identities:   e.Identities,
			Args:         e.Args,
			Method:       m,
		})
	}
	t.index()
	return t, nil
}
