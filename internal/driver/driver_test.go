package driver

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"mdisp/internal/config"
	"mdisp/internal/diag"
	"mdisp/internal/source"
)

const program = `
effect IO
subtype u8 <: i32
fn add(i32, i32) -> i32
fn add<T: Numeric>(T, T) -> T
fn f<T: Numeric>(T, i32) -> T
fn f<T: Numeric>(i32, T) -> T
fn g<T, U>(x: T) -> U
call add(i32, u8)
call add(Bool, Bool)
call f(i32, i32)
dynamic add(i64, i64)
dynamic add(String, String)
`

func checkSource(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	fs := source.NewFileSet()
	f := fs.Get(fs.AddVirtual("program.mdisp", []byte(src)))
	res, err := CheckFiles(context.Background(), fs, []*source.File{f}, opts)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return res
}

func codeSet(bag *diag.Bag) map[diag.Code]int {
	out := make(map[diag.Code]int)
	for _, d := range bag.Items() {
		out[d.Code]++
	}
	return out
}

func TestCheckReportsEveryPass(t *testing.T) {
	var mu sync.Mutex
	var events []PhaseEvent
	res := checkSource(t, program, Options{
		Config:  config.Default(),
		Timings: true,
		Observer: func(e PhaseEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})

	want := map[diag.Code]int{
		diag.AmbOverlap:                  1,
		diag.StbUndeterminedTypeVariable: 1,
		diag.DspNoMethodFound:            1,
		diag.DspAmbiguousDispatch:        1,
		diag.RtdUnresolved:               1,
	}
	if got := codeSet(res.Bag); !maps.Equal(got, want) {
		t.Fatalf("codes = %v, want %v", got, want)
	}
	for _, d := range res.Bag.Items() {
		if d.Code == diag.AmbOverlap && d.Severity != diag.SevWarning {
			t.Fatalf("eager ambiguities default to warnings")
		}
	}
	if !slices.IsSortedFunc(res.Bag.Items(), func(a, b diag.Diagnostic) int {
		return int(a.Primary.Start) - int(b.Primary.Start)
	}) {
		t.Fatalf("diagnostics must be sorted by position")
	}

	if len(res.Calls) != 3 || res.Calls[0].Err != nil || res.Calls[1].Err == nil {
		t.Fatalf("unexpected call results %+v", res.Calls)
	}
	if got := res.Calls[0].Resolution.Method.Signature(res.Program.Interner); got != "add(i32, i32) -> i32" {
		t.Fatalf("add(i32, u8) resolved to %s", got)
	}
	if res.Table == nil || len(res.Table.Entries()) != 2 {
		t.Fatalf("expected a table with add(i32, i32) and add(i64, i64)")
	}
	if len(res.Ambiguities) != 1 || len(res.Stability) != res.Program.Registry.Len() {
		t.Fatalf("analysis results missing")
	}

	if res.Timings == nil {
		t.Fatalf("timings requested but missing")
	}
	var phases []string
	for _, p := range res.Timings.Phases {
		phases = append(phases, p.Name)
	}
	slices.Sort(phases)
	if !slices.Equal(phases, []string{"ambiguity", "calls", "declarations", "runtime_table", "stability"}) {
		t.Fatalf("unexpected phases %v", phases)
	}
	if len(events) != 10 {
		t.Fatalf("expected start and end per phase, got %d events", len(events))
	}
	planned := slices.Sorted(slices.Values((Options{Config: config.Default()}).Phases()))
	if !slices.Equal(phases, planned) {
		t.Fatalf("Phases() = %v, ran %v", planned, phases)
	}
}

func TestLazyAmbiguityPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Check.Ambiguity = config.AmbiguityLazy
	res := checkSource(t, program, Options{Config: cfg, SkipTable: true})
	got := codeSet(res.Bag)
	if got[diag.AmbOverlap] != 0 || got[diag.DspAmbiguousDispatch] != 1 {
		t.Fatalf("lazy policy reports ambiguity only at call sites: %v", got)
	}
	if res.Table != nil || got[diag.RtdUnresolved] != 0 {
		t.Fatalf("table must be skipped")
	}
	if got := (Options{Config: cfg, SkipTable: true}).Phases(); !slices.Equal(got, []string{"declarations", "stability", "calls"}) {
		t.Fatalf("unexpected phases %v", got)
	}
}

func TestEagerSeverityFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Check.EagerSeverity = "error"
	res := checkSource(t, program, Options{Config: cfg, SkipTable: true})
	for _, d := range res.Bag.Items() {
		if d.Code == diag.AmbOverlap && d.Severity != diag.SevError {
			t.Fatalf("expected ambiguity reported as error")
		}
	}
}

func TestMaxDiagnostics(t *testing.T) {
	res := checkSource(t, program, Options{Config: config.Default(), MaxDiagnostics: 2})
	if res.Bag.Len() != 2 || res.Bag.Dropped() != 3 {
		t.Fatalf("expected 2 kept and 3 dropped, got %d and %d", res.Bag.Len(), res.Bag.Dropped())
	}
}

func TestReportCache(t *testing.T) {
	cache, err := OpenDiskCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{Config: config.Default(), Cache: cache}
	first := checkSource(t, program, opts)
	if first.Cached {
		t.Fatalf("first run cannot be cached")
	}
	second := checkSource(t, program, opts)
	if !second.Cached || second.Program != nil {
		t.Fatalf("second run must be served from the cache")
	}
	if !maps.Equal(codeSet(first.Bag), codeSet(second.Bag)) {
		t.Fatalf("cached report differs: %v vs %v", codeSet(first.Bag), codeSet(second.Bag))
	}

	cfg := config.Default()
	cfg.Check.Ambiguity = config.AmbiguityLazy
	if third := checkSource(t, program, Options{Config: cfg, Cache: cache}); third.Cached {
		t.Fatalf("a different configuration must miss the cache")
	}

	if err := cache.DropAll(); err != nil {
		t.Fatal(err)
	}
	if again := checkSource(t, program, opts); again.Cached {
		t.Fatalf("DropAll must invalidate entries")
	}
}

func TestCheckDirectoryAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("calls.mdisp", "call show(Point)\n")
	write("decls.mdisp", "impl Point: Display\nfn show<T: Display>(T) -> String\n")
	write("notes.txt", "ignored")

	res, err := Check(context.Background(), []string{dir}, Options{Config: config.Default()})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Files) != 2 || filepath.Base(res.Files[0].Path) != "calls.mdisp" {
		t.Fatalf("unexpected files %v", res.Files)
	}
	if res.Bag.Len() != 0 || res.Calls[0].Err != nil {
		t.Fatalf("cross-file declarations must resolve: %v", res.Bag.Items())
	}

	if _, err := ExpandPaths([]string{t.TempDir()}); err == nil {
		t.Fatalf("an empty directory is an error")
	}
}
