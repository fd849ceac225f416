// Package rtdispatch is the runtime dispatch table: a fingerprint-keyed fast
// map guarded by per-family collision filters, backed by a sharded overflow
// cache and, last, by full static resolution against runtime descriptors.
package rtdispatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"mdisp/internal/dispatch"
	"mdisp/internal/registry"
	"mdisp/internal/trace"
	"mdisp/internal/types"
)

// Tier names the path that served a lookup.
type Tier uint8

const (
	TierFast Tier = iota + 1
	TierGuarded
	TierCache
	TierSlow
)

func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierGuarded:
		return "guarded"
	case TierCache:
		return "cache"
	case TierSlow:
		return "slow"
	default:
		return fmt.Sprintf("Tier(%d)", t)
	}
}

// Entry is one precomputed dispatch decision.
type Entry struct {
	Name         string
	Fingerprints []uint32
	Identities   []uint64
	Args         []string // rendered argument types
	Method       *registry.Method
}

// Collision is a fingerprint tuple claimed by several methods of a family.
type Collision struct {
	Name         string
	Fingerprints []uint32
	Methods      []*registry.Method
}

// Stats counts lookups per tier.
type Stats struct {
	FastHits        uint64 `json:"fast_hits" yaml:"fast_hits" msgpack:"fast_hits"`
	GuardedHits     uint64 `json:"guarded_hits" yaml:"guarded_hits" msgpack:"guarded_hits"`
	CacheHits       uint64 `json:"cache_hits" yaml:"cache_hits" msgpack:"cache_hits"`
	SlowResolutions uint64 `json:"slow_resolutions" yaml:"slow_resolutions" msgpack:"slow_resolutions"`
	Failures        uint64 `json:"failures" yaml:"failures" msgpack:"failures"`
}

// Table is read-only after Build except for its overflow cache and counters,
// and is safe for concurrent lookups.
type Table struct {
	buildID    uuid.UUID
	opts       Options
	res        *dispatch.Resolver
	in         *types.Interner
	entries    []*Entry
	fast       map[uint64][]*Entry
	filters    map[string]*filter
	collisions []Collision
	unresolved []*SeedError
	cache      *cache
	flight     singleflight.Group
	abort      atomic.Pointer[func(*FatalError)]

	fastHits, guardedHits, cacheHits, slow, failures atomic.Uint64
}

func newTable(res *dispatch.Resolver, opts Options, id uuid.UUID) *Table {
	opts = opts.normalized()
	return &Table{
		buildID: id,
		opts:    opts,
		res:     res,
		in:      res.Registry().Interner(),
		fast:    make(map[uint64][]*Entry),
		filters: make(map[string]*filter),
		cache:   newCache(opts.CacheSize, opts.CacheShards),
	}
}

// GroundSeeds proposes one seed per method whose parameters are all ground.
func GroundSeeds(reg *registry.Registry) []Seed {
	in := reg.Interner()
	var out []Seed
	for _, m := range reg.Methods() {
		ground := true
		for _, p := range m.Params {
			if !in.IsGround(p) {
				ground = false
				break
			}
		}
		if ground {
			out = append(out, Seed{Name: m.Name, Args: slices.Clone(m.Params), Span: m.Span})
		}
	}
	return out
}

// Build resolves every seed statically and indexes the winners. Seeds that
// fail to resolve are kept in Unresolved; they never abort the build.
func Build(ctx context.Context, res *dispatch.Resolver, seeds []Seed, opts Options) (*Table, error) {
	ctx, span := trace.Start(ctx, trace.ScopePass, "rtdispatch.build")
	defer span.End("")
	t := newTable(res, opts, uuid.New())
	seen := make(map[uint64]struct{})
	for _, sd := range seeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := t.seed(sd, seen); err != nil {
			t.unresolved = append(t.unresolved, &SeedError{Seed: sd, Err: err})
		}
	}
	t.index()
	span.WithExtra("entries", strconv.Itoa(len(t.entries)))
	return t, nil
}

func (t *Table) seed(sd Seed, seen map[uint64]struct{}) error {
	for _, a := range sd.Args {
		if !t.in.IsGround(a) {
			return fmt.Errorf("argument %s is not a runtime type", types.Label(t.in, a))
		}
	}
	args := DescribeAll(t.in, sd.Args)
	ids := identities(args)
	key := identityKey(sd.Name, ids)
	if _, dup := seen[key]; dup {
		return nil
	}
	r, err := t.res.Resolve(sd.Name, sd.Args, types.NoRowID, dispatch.Options{})
	if err != nil {
		return err
	}
	seen[key] = struct{}{}
	labels := make([]string, len(sd.Args))
	for i, a := range sd.Args {
		labels[i] = types.Label(t.in, a)
	}
	t.entries = append(t.entries, &Entry{
		Name:         sd.Name,
		Fingerprints: fingerprints(args),
		Identities:   ids,
		Args:         labels,
		Method:       r.Method,
	})
	return nil
}

// index fills the fast map and marks every fingerprint tuple that more than
// one method claims.
func (t *Table) index() {
	slices.SortStableFunc(t.entries, func(a, b *Entry) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), slices.Compare(a.Fingerprints, b.Fingerprints), slices.Compare(a.Identities, b.Identities))
	})
	t.fast = make(map[uint64][]*Entry, len(t.entries))
	for _, e := range t.entries {
		k := fastKey(e.Name, e.Fingerprints)
		t.fast[k] = append(t.fast[k], e)
	}
	t.collisions = nil
	for _, e := range t.entries {
		if _, ok := t.filters[e.Name]; !ok {
			t.filters[e.Name] = newFilter(t.opts.FilterBits, t.opts.FilterHashes)
		}
	}
	for _, e := range t.entries {
		group := t.fast[fastKey(e.Name, e.Fingerprints)]
		if group[0] != e {
			continue
		}
		var methods []*registry.Method
		for _, o := range group {
			if o.Name == e.Name && slices.Equal(o.Fingerprints, e.Fingerprints) && !slices.Contains(methods, o.Method) {
				methods = append(methods, o.Method)
			}
		}
		if len(methods) > 1 {
			t.filters[e.Name].add(e.Fingerprints)
			t.collisions = append(t.collisions, Collision{Name: e.Name, Fingerprints: e.Fingerprints, Methods: methods})
		}
	}
}

// Lookup finds the method for a runtime call without aborting on failure.
func (t *Table) Lookup(name string, args []Value) (*registry.Method, Tier, error) {
	fps := fingerprints(args)
	if group, ok := t.fast[fastKey(name, fps)]; ok {
		f := t.filters[name]
		if f == nil || !f.has(fps) {
			if e := group[0]; e.Name == name {
				t.fastHits.Add(1)
				return e.Method, TierFast, nil
			}
		} else {
			ids := identities(args)
			for _, e := range group {
				if e.Name == name && slices.Equal(e.Identities, ids) {
					t.guardedHits.Add(1)
					return e.Method, TierGuarded, nil
				}
			}
		}
	}

	ids := identities(args)
	key := cacheKey{name: name, hash: identityKey(name, ids)}
	if m, ok := t.cache.get(key, ids); ok {
		t.cacheHits.Add(1)
		return m, TierCache, nil
	}

	v, err, _ := t.flight.Do(name+"\x00"+strconv.FormatUint(key.hash, 16), func() (any, error) {
		argTypes := make([]types.TypeID, len(args))
		for i, a := range args {
			argTypes[i] = a.Type
		}
		r, err := t.res.Resolve(name, argTypes, types.NoRowID, dispatch.Options{})
		if err != nil {
			return nil, err
		}
		t.cache.put(key, ids, r.Method)
		return r.Method, nil
	})
	if err != nil {
		t.failures.Add(1)
		ferr := &FatalError{Name: name, Fingerprints: fps, Cause: err}
		var derr *dispatch.Error
		if errors.As(err, &derr) {
			for _, c := range derr.Candidates {
				ferr.Candidates = append(ferr.Candidates, c.Signature(t.in))
			}
		}
		return nil, TierSlow, ferr
	}
	t.slow.Add(1)
	return v.(*registry.Method), TierSlow, nil
}

// Dispatch is Lookup for generated code: a failure is fatal and goes to the
// abort hook, which panics unless replaced with OnFatal.
func (t *Table) Dispatch(name string, args []Value) *registry.Method {
	m, _, err := t.Lookup(name, args)
	if err != nil {
		var ferr *FatalError
		errors.As(err, &ferr)
		if hook := t.abort.Load(); hook != nil {
			(*hook)(ferr)
			return nil
		}
		panic(ferr)
	}
	return m
}

// OnFatal replaces the abort hook.
func (t *Table) OnFatal(fn func(*FatalError)) {
	if fn == nil {
		t.abort.Store(nil)
		return
	}
	t.abort.Store(&fn)
}

// BuildID identifies the build that produced the table.
func (t *Table) BuildID() uuid.UUID { return t.buildID }

// Options returns the normalized sizing parameters.
func (t *Table) Options() Options { return t.opts }

// Entries lists precomputed entries sorted by family then fingerprints.
func (t *Table) Entries() []*Entry { return slices.Clone(t.entries) }

// Collisions lists fingerprint tuples shared by several methods.
func (t *Table) Collisions() []Collision { return slices.Clone(t.collisions) }

// Unresolved lists seeds that static resolution rejected.
func (t *Table) Unresolved() []*SeedError { return slices.Clone(t.unresolved) }

// CacheLen reports the number of overflow cache entries.
func (t *Table) CacheLen() int { return t.cache.len() }

// Stats snapshots the lookup counters.
func (t *Table) Stats() Stats {
	return Stats{
		FastHits:        t.fastHits.Load(),
		GuardedHits:     t.guardedHits.Load(),
		CacheHits:       t.cacheHits.Load(),
		SlowResolutions: t.slow.Load(),
		Failures:        t.failures.Load(),
	}
}
