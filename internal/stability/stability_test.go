package stability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mdisp/internal/diag"
	"mdisp/internal/registry"
	"mdisp/internal/testkit"
	"mdisp/internal/types"
)

const methods = `
effect IO
effect Net
effect Error
subtype u8 <: i32

fn pick<T>(Bool, T) -> T { if { T } else { T } }
fn widen(Bool) -> i32 { if { u8 } else { i32 } }
fn f<T, U>(x: T) -> U
fn g(Bool) -> i32 { if { i32 } else { String } }
fn bad(i32) -> String { i32 }
fn early(Bool, i32) -> i32 { return i32; String }
fn save(Path) -> Unit ! {IO} { perform Error; call log ! {Net} }
fn run<A>(A) -> A ! {IO | e} { A }
fn run2<A>(A) -> A ! {IO | e}
fn run3<A>(A) -> A ! {IO | e} { call step ! {IO | e}; A }
fn apply<A>(f: fn(A) -> A ! {| e}, x: A) -> A ! {| e} { call f -> A ! {| e} }
`

func check(t *testing.T) (map[string]Result, *types.Interner) {
	t.Helper()
	env := testkit.MustLoad(t, methods)
	c := New(env.U)
	out := make(map[string]Result)
	for _, m := range env.Prog.Registry.Methods() {
		out[m.Name] = c.Check(m)
	}
	return out, env.Prog.Interner
}

func kinds(r Result) []ErrorKind {
	out := make([]ErrorKind, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Kind
	}
	return out
}

func TestStableMethods(t *testing.T) {
	res, in := check(t)
	for _, name := range []string{"pick", "widen", "early", "run", "apply"} {
		require.Empty(t, res[name].Errors, "%s: %v", name, res[name].Errors)
	}
	require.Equal(t, "T", types.Label(in, res["pick"].Type))
	require.Equal(t, "i32", types.Label(in, res["widen"].Type), "the wider branch type wins")
	require.Equal(t, "i32", types.Label(in, res["early"].Type), "code after return is unreachable")
}

func TestUndeterminedVariables(t *testing.T) {
	res, _ := check(t)
	require.Equal(t, []ErrorKind{UndeterminedTypeVariable}, kinds(res["f"]))
	require.Equal(t, "U", res["f"].Errors[0].Var)

	require.Equal(t, []ErrorKind{UndeterminedEffectVariable}, kinds(res["run2"]))
	require.Equal(t, "e", res["run2"].Errors[0].Var)
	require.Equal(t, []ErrorKind{UndeterminedEffectVariable}, kinds(res["run3"]),
		"a body that performs the tail keeps it open")
	require.Empty(t, res["run"].Errors, "a body that never performs the tail closes it")
}

func TestConflictingReturns(t *testing.T) {
	res, _ := check(t)
	require.Equal(t, []ErrorKind{ConflictingReturns}, kinds(res["g"]))
	err := res["g"].Errors[0]
	require.Equal(t, []string{"i32", "String"}, err.Types)
	require.Len(t, err.Spans, 2)
	require.Less(t, err.Spans[0].Start, err.Spans[1].Start)
	require.Equal(t, types.NoTypeID, res["g"].Type)
}

func TestBranchOrderDoesNotMatter(t *testing.T) {
	arms := [][]string{
		{"i32", "u8", "i16"},
		{"u8", "i16", "i32"},
		{"i16", "i32", "u8"},
		{"u8", "i16"},
		{"i16", "u8"},
	}
	for _, order := range arms {
		body := ""
		for _, a := range order {
			body += " case { " + a + " }"
		}
		env := testkit.MustLoad(t, "subtype u8 <: i32\nsubtype i16 <: i32\nfn m(Bool) -> i32 { match {"+body+" } }\n")
		res := New(env.U).Check(env.Prog.Registry.Family("m")[0])
		require.Empty(t, res.Errors, "arms %v", order)
		require.Equal(t, "i32", types.Label(env.Prog.Interner, res.Type), "arms %v", order)
	}
}

func TestReturnMismatch(t *testing.T) {
	res, _ := check(t)
	require.Equal(t, []ErrorKind{ReturnMismatch}, kinds(res["bad"]))
	require.Equal(t, []string{"i32", "String"}, res["bad"].Errors[0].Types)
	require.Error(t, res["bad"].Errors[0].Cause)
}

func TestEffectsExceedDeclaration(t *testing.T) {
	res, _ := check(t)
	require.Equal(t, []ErrorKind{EffectsExceedDeclaration}, kinds(res["save"]))
	err := res["save"].Errors[0]
	require.Equal(t, []string{"Error", "Net"}, err.Extra)
	require.Len(t, err.Spans, 2)
}

func TestCheckAllAndReport(t *testing.T) {
	env := testkit.MustLoad(t, methods)
	c := New(env.U)
	results, err := c.CheckAll(context.Background(), env.Prog.Registry, 2)
	require.NoError(t, err)
	require.Len(t, results, env.Prog.Registry.Len())
	for i, m := range env.Prog.Registry.Methods() {
		require.Same(t, m, results[i].Method)
	}

	bag := diag.NewBag(0)
	Report(diag.BagReporter{Bag: bag}, results)
	got := make(map[diag.Code]int)
	for _, d := range bag.Items() {
		got[d.Code]++
	}
	require.Equal(t, map[diag.Code]int{
		diag.StbConflictingReturns:         1,
		diag.StbReturnMismatch:             1,
		diag.StbUndeterminedTypeVariable:   1,
		diag.StbUndeterminedEffectVariable: 2,
		diag.StbEffectsExceedDeclaration:   1,
	}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.CheckAll(ctx, env.Prog.Registry, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMethodWithoutBodyOnlyChecksVariables(t *testing.T) {
	env := testkit.MustLoad(t, `fn decl<T>(T) -> T`)
	m := env.Prog.Registry.Family("decl")[0]
	res := New(env.U).Check(m)
	require.Empty(t, res.Errors)
	require.Equal(t, types.NoTypeID, res.Type)
	require.IsType(t, &registry.Method{}, res.Method)
}
