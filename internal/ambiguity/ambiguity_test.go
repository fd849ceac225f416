package ambiguity

import (
	"context"
	"testing"

	"mdisp/internal/diag"
	"mdisp/internal/testkit"
	"mdisp/internal/types"
)

const families = `
effect IO
effect Net
constraint Hashable: Sized

fn add(i32, i32) -> i32
fn add<T: Numeric>(T, T) -> T

fn f<T>(i32, T) -> Unit
fn f<T>(T, i32) -> Unit

fn g<T: Numeric>(T) -> T
fn g<T: Display>(T) -> T

fn h<T: Hashable>(T) -> T
fn h<T: Numeric>(T) -> T
fn h(Bool) -> Bool

fn load(Path) -> Data ! {IO}
fn load(Path) -> Data ! {Net}

trait Show fn show<T: Display>(T) -> String
trait Debug fn show<T: Display>(T) -> String
`

func detect(t *testing.T) (*testkit.Env, map[string][]Ambiguity) {
	t.Helper()
	env := testkit.MustLoad(t, families)
	d := New(env.Prog.Registry, env.U, nil)
	all, err := d.All(context.Background(), 2)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	byName := make(map[string][]Ambiguity)
	for _, a := range all {
		byName[a.A.Name] = append(byName[a.A.Name], a)
	}
	return env, byName
}

func TestDetectGenuineAmbiguities(t *testing.T) {
	env, got := detect(t)
	in := env.Prog.Interner

	if len(got["add"]) != 0 {
		t.Fatalf("concrete add is more specific, no ambiguity expected: %+v", got["add"])
	}
	if len(got["h"]) != 0 {
		t.Fatalf("h overloads cannot overlap: %+v", got["h"])
	}

	f := got["f"]
	if len(f) != 1 {
		t.Fatalf("expected one ambiguity for f, got %d", len(f))
	}
	if lbl := types.Labels(in, f[0].Overlap); lbl != "i32, i32" {
		t.Fatalf("overlap %q, want i32, i32", lbl)
	}
	if f[0].A.Signature(in) != "f<T>(T, i32) -> Unit" {
		t.Fatalf("pairs must be ordered by signature, got A=%s", f[0].A.Signature(in))
	}

	if len(got["g"]) != 1 {
		t.Fatalf("Numeric and Display are inhabited together by i32: %+v", got["g"])
	}
	if len(got["load"]) != 1 {
		t.Fatalf("incomparable effect rows are ambiguous: %+v", got["load"])
	}

	show := got["show"]
	if len(show) != 1 || !show[0].Diamond || show[0].A.Trait != "Debug" {
		t.Fatalf("expected one trait diamond, got %+v", show)
	}
}

func TestAllIsGroupedByFamily(t *testing.T) {
	env := testkit.MustLoad(t, families)
	d := New(env.Prog.Registry, env.U, nil)
	all, err := d.All(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, a := range all {
		if len(order) == 0 || order[len(order)-1] != a.A.Name {
			order = append(order, a.A.Name)
		}
	}
	want := []string{"f", "g", "load", "show"}
	if len(order) != len(want) {
		t.Fatalf("families %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("families %v, want %v", order, want)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.All(ctx, 1); err == nil {
		t.Fatalf("cancelled context must abort the pass")
	}
}

func TestReportPointsAtLaterDeclaration(t *testing.T) {
	env, got := detect(t)
	bag := diag.NewBag(0)
	Report(diag.BagReporter{Bag: bag}, env.Prog.Interner, got["show"], diag.SevWarning)
	if bag.Len() != 1 {
		t.Fatalf("expected one diagnostic, got %d", bag.Len())
	}
	d := bag.Items()[0]
	if d.Code != diag.AmbOverlap || d.Severity != diag.SevWarning {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
	debug := env.Prog.Registry.Family("show")[1]
	if d.Primary != debug.Span {
		t.Fatalf("primary span must be the later declaration")
	}
	if len(d.Notes) != 2 {
		t.Fatalf("diamond needs an overlap note and a qualifier hint, got %+v", d.Notes)
	}
}
