package testkit

import (
	"testing"

	"mdisp/internal/decl"
	"mdisp/internal/diag"
	"mdisp/internal/source"
	"mdisp/internal/unify"
)

// Env is a loaded declaration file plus the unifier built over it.
type Env struct {
	Files *source.FileSet
	File  *source.File
	Prog  *decl.Program
	U     *unify.Unifier
}

// Load lowers src and returns the environment together with every diagnostic
// produced while loading.
func Load(tb testing.TB, src string) (*Env, *diag.Bag) {
	tb.Helper()
	fs := source.NewFileSet()
	f := fs.Get(fs.AddVirtual(tb.Name()+".md", []byte(src)))
	bag := diag.NewBag(0)
	prog := decl.Load([]*source.File{f}, diag.BagReporter{Bag: bag})
	return &Env{Files: fs, File: f, Prog: prog, U: unify.New(prog.Interner, prog.Lattice)}, bag
}

// MustLoad is Load that fails the test on any error diagnostic.
func MustLoad(tb testing.TB, src string) *Env {
	tb.Helper()
	env, bag := Load(tb, src)
	if bag.HasErrors() {
		for _, d := range bag.Items() {
			start, _ := env.Files.Resolve(d.Primary)
			tb.Errorf("%d:%d %s %s", start.Line, start.Col, d.Code.ID(), d.Message)
		}
		tb.FailNow()
	}
	if err := CheckSpanInvariants(env.Prog, env.File); err != nil {
		tb.Fatalf("span invariants: %v", err)
	}
	return env
}

// Call returns the n-th static call site.
func (e *Env) Call(tb testing.TB, n int) decl.CallSite {
	tb.Helper()
	if n >= len(e.Prog.Calls) {
		tb.Fatalf("call site %d not declared (have %d)", n, len(e.Prog.Calls))
	}
	return e.Prog.Calls[n]
}
