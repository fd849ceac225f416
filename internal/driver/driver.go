// Package driver runs the check pipeline over declaration files: lowering,
// then ambiguity detection, stability checking, call-site resolution and the
// runtime table build in parallel.
package driver

import (
	"context"
	"fmt"
	"time"

	"mdisp/internal/ambiguity"
	"mdisp/internal/config"
	"mdisp/internal/decl"
	"mdisp/internal/diag"
	"mdisp/internal/dispatch"
	"mdisp/internal/observ"
	"mdisp/internal/rtdispatch"
	"mdisp/internal/source"
	"mdisp/internal/stability"
	"mdisp/internal/trace"
)

// PhaseStatus reports whether a phase started or finished.
type PhaseStatus int

const (
	PhaseStart PhaseStatus = iota
	PhaseEnd
)

// PhaseEvent describes a phase boundary.
type PhaseEvent struct {
	Name    string
	Status  PhaseStatus
	Elapsed time.Duration
	Note    string
}

// PhaseObserver receives phase events; it may be called from several
// goroutines at once.
type PhaseObserver func(PhaseEvent)

// Options tune one check run.
type Options struct {
	Config         config.Config
	Jobs           int // overrides [check].jobs when > 0
	MaxDiagnostics int // overrides [check].max_diagnostics when > 0
	Timings        bool
	SkipTable      bool       // do not build the runtime table
	Cache          *DiskCache // nil disables the report cache
	Observer       PhaseObserver
}

func (o Options) jobs() int {
	if o.Jobs > 0 {
		return o.Jobs
	}
	return o.Config.Check.Jobs
}

func (o Options) maxDiagnostics() int {
	if o.MaxDiagnostics > 0 {
		return o.MaxDiagnostics
	}
	return o.Config.Check.MaxDiagnostics
}

// Phases lists the phases a run with these options goes through, in start
// order. A report cache hit skips all of them.
func (o Options) Phases() []string {
	out := []string{"declarations"}
	if o.Config.Check.Ambiguity != config.AmbiguityLazy {
		out = append(out, "ambiguity")
	}
	out = append(out, "stability", "calls")
	if !o.SkipTable {
		out = append(out, "runtime_table")
	}
	return out
}

// CallResult is the outcome of one static call site.
type CallResult struct {
	Site       decl.CallSite
	Resolution *dispatch.Resolution
	Err        *dispatch.Error
}

// Result is everything a check run produced. A result served from the report
// cache carries only FileSet, Files and Bag.
type Result struct {
	FileSet     *source.FileSet
	Files       []*source.File
	Program     *decl.Program
	Resolver    *dispatch.Resolver
	Bag         *diag.Bag
	Calls       []CallResult
	Ambiguities []ambiguity.Ambiguity
	Stability   []stability.Result
	Table       *rtdispatch.Table
	Timings     *observ.Report
	Cached      bool
}

type run struct {
	opts  Options
	timer *observ.Timer
}

func (r *run) phase(ctx context.Context, name string, fn func(ctx context.Context) (string, error)) error {
	ctx, span := trace.Start(ctx, trace.ScopePass, name)
	if r.opts.Observer != nil {
		r.opts.Observer(PhaseEvent{Name: name, Status: PhaseStart})
	}
	idx := -1
	if r.timer != nil {
		idx = r.timer.Begin(name)
	}
	start := time.Now()
	note, err := fn(ctx)
	if r.timer != nil {
		r.timer.End(idx, note)
	}
	if r.opts.Observer != nil {
		r.opts.Observer(PhaseEvent{Name: name, Status: PhaseEnd, Elapsed: time.Since(start), Note: note})
	}
	span.End(note)
	return err
}

// Check loads paths (files, or directories searched for *.mdisp files) and
// checks them together.
func Check(ctx context.Context, paths []string, opts Options) (*Result, error) {
	files, err := ExpandPaths(paths)
	if err != nil {
		return nil, err
	}
	fs := source.NewFileSet()
	loaded := make([]*source.File, 0, len(files))
	for _, p := range files {
		id, err := fs.Load(p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		loaded = append(loaded, fs.Get(id))
	}
	return CheckFiles(ctx, fs, loaded, opts)
}

// CheckFiles checks files already in fs.
func CheckFiles(ctx context.Context, fs *source.FileSet, files []*source.File, opts Options) (*Result, error) {
	ctx, span := trace.Start(ctx, trace.ScopeDriver, "check")
	defer span.End("")

	r := &run{opts: opts}
	if opts.Timings {
		r.timer = observ.NewTimer()
	}
	res := &Result{FileSet: fs, Files: files}

	var key Digest
	if opts.Cache != nil {
		key = ReportKey(files, opts.Config)
		var payload ReportPayload
		hit, err := opts.Cache.Get(key, &payload)
		if err == nil && hit && payload.Schema == reportSchema {
			res.Bag = payload.Bag(opts.maxDiagnostics())
			res.Cached = true
			span.WithExtra("cache", "hit")
			return res, nil
		}
	}

	declBag := diag.NewBag(0)
	err := r.phase(ctx, "declarations", func(context.Context) (string, error) {
		l := decl.NewLoader(diag.BagReporter{Bag: declBag})
		for _, f := range files {
			l.Add(f)
		}
		res.Program = l.Program()
		return fmt.Sprintf("methods=%d calls=%d", res.Program.Registry.Len(), len(res.Program.Calls)), nil
	})
	if err != nil {
		return nil, err
	}

	a, err := r.analyze(ctx, res)
	if err != nil {
		return nil, err
	}

	all := diag.NewBag(0)
	all.Merge(declBag)
	for _, b := range a.bags {
		all.Merge(b)
	}
	all.Sort()
	all.Dedup()
	res.Bag = diag.NewBag(opts.maxDiagnostics())
	res.Bag.Merge(all)

	if r.timer != nil {
		rep := r.timer.Report()
		res.Timings = &rep
	}
	if opts.Cache != nil {
		if err := opts.Cache.Put(key, NewReportPayload(all)); err != nil {
			trace.Point(ctx, trace.ScopeDriver, "cache", "put failed: "+err.Error())
		}
	}
	return res, nil
}
