package decl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mdisp/internal/body"
	"mdisp/internal/diag"
	"mdisp/internal/source"
	"mdisp/internal/types"
)

func load(t *testing.T, src string) (*Program, *diag.Bag) {
	t.Helper()
	fs := source.NewFileSet()
	f := fs.Get(fs.AddVirtual("test.md", []byte(src)))
	bag := diag.NewBag(0)
	return Load([]*source.File{f}, diag.BagReporter{Bag: bag}), bag
}

func codes(bag *diag.Bag) []diag.Code {
	out := make([]diag.Code, 0, bag.Len())
	for _, d := range bag.Items() {
		out = append(out, d.Code)
	}
	return out
}

func TestLoadDeclarations(t *testing.T) {
	prog, bag := load(t, `
# lattice
constraint Hashable: Sized
impl Key: Hashable, Copy
subtype u8 <: i32
effect IO
effect Error

fn add(i32, i32) -> i32
fn add<T: Numeric>(x: T, y: T) -> T
fn load(Path) -> Data ! {IO, Error<Str>}
fn run<A>(f: fn(A) -> A ! {IO | e}) -> A ! {IO | e}
trait Show fn show<T: Display>(T) -> String
trait Fmt {
	fn show<T: Display>(T) -> String
	fn width(String) -> u32
}

call add(i32, u8) ! {IO}
call show(i32) via Show
call load(Path) ! {IO | rest}
dynamic add(i32, i32)
`)
	require.Zero(t, bag.Len(), "unexpected diagnostics: %v", bag.Items())
	require.True(t, prog.Lattice.Frozen())
	require.True(t, prog.Registry.Frozen())
	require.True(t, prog.Lattice.Implies([]string{"Hashable"}, "Sized"))
	require.True(t, prog.Lattice.SatisfiesAll("Key", []string{"Hashable", "Clone"}))
	require.True(t, prog.Lattice.IsSubtype("u8", "i32"))
	require.Equal(t, []string{"IO", "Error"}, prog.Effects)

	in := prog.Interner
	require.Equal(t, []string{"add", "load", "run", "show", "width"}, prog.Registry.Families())
	adds := prog.Registry.Family("add")
	require.Len(t, adds, 2)
	require.Equal(t, "add(i32, i32) -> i32", adds[0].Signature(in))
	require.Equal(t, "add<T: Numeric>(T, T) -> T", adds[1].Signature(in))
	require.Equal(t, "load(Path) -> Data ! {Error<Str>, IO}", prog.Registry.Family("load")[0].Signature(in))

	run := prog.Registry.Family("run")[0]
	require.Len(t, run.TypeVars(), 1)
	require.Len(t, run.RowVars(), 1, "row tail must be quantified implicitly")

	shows := prog.Registry.Family("show")
	require.Len(t, shows, 2)
	require.Equal(t, "Show", shows[0].Trait)
	require.Equal(t, "Fmt::show<T: Display>(T) -> String", shows[1].Signature(in))

	require.Len(t, prog.Calls, 3)
	require.Equal(t, "i32, u8", types.Labels(in, prog.Calls[0].Args))
	require.Equal(t, "{IO}", types.RowLabel(in, prog.Calls[0].Effects))
	require.Equal(t, "Show", prog.Calls[1].Qualifier)
	require.Equal(t, types.NoRowID, prog.Calls[1].Effects)
	ctx, _ := in.RowInfo(prog.Calls[2].Effects)
	require.True(t, ctx.Open())
	info, _ := in.VarInfo(ctx.Tail)
	require.False(t, info.Rigid, "call-site tails are flexible")

	require.Len(t, prog.Dynamic, 1)
	require.Equal(t, "add", prog.Dynamic[0].Name)
}

func TestLoadTypeSyntax(t *testing.T) {
	prog, bag := load(t, `
effect IO
fn rec<r>(p: {name: String, age: i32 | r}) -> {name: String | r}
fn poly(forall a. fn(a) -> a) -> Unit
fn nested(Vec<Vec<i32>>, Map<String, Bool>) -> Unit
`)
	require.Zero(t, bag.Len(), "unexpected diagnostics: %v", bag.Items())
	in := prog.Interner
	rec := prog.Registry.Family("rec")[0]
	require.Equal(t, "{age: i32, name: String | r}", types.Label(in, rec.Params[0]))
	require.Equal(t, "forall a. fn(a) -> a", types.Label(in, prog.Registry.Family("poly")[0].Params[0]))
	nested := prog.Registry.Family("nested")[0]
	require.Equal(t, "Vec<Vec<i32>>, Map<String, Bool>", types.Labels(in, nested.Params))
	require.True(t, in.IsGround(nested.Params[0]))
}

func TestLoadBodySkeleton(t *testing.T) {
	prog, bag := load(t, `
effect IO
fn pick<T>(Bool, T) -> T {
	call log ! {IO};
	if { T } else if { diverge } else { return T }
}
fn choose(i32) -> i32 {
	match {
		case { i32 }
		case { perform IO; i32 }
	}
}
fn nothing() {}
`)
	require.Zero(t, bag.Len(), "unexpected diagnostics: %v", bag.Items())
	pick := prog.Registry.Family("pick")[0]
	require.NotNil(t, pick.Body)
	require.Len(t, pick.Body.Stmts, 1)
	call, ok := pick.Body.Stmts[0].(*body.Call)
	require.True(t, ok)
	require.Equal(t, "log", call.Name)

	ifn, ok := pick.Body.Tail.(*body.If)
	require.True(t, ok)
	elseIf, ok := ifn.Else.(*body.If)
	require.True(t, ok)
	elseBlock := elseIf.Else.(*body.Block)
	ret, ok := elseBlock.Tail.(*body.Return)
	require.True(t, ok)
	require.Equal(t, pick.Params[1], ret.Value.(*body.Expr).Type, "body T must be the signature's T")

	choose := prog.Registry.Family("choose")[0]
	m, ok := choose.Body.Tail.(*body.Match)
	require.True(t, ok)
	require.Len(t, m.Arms, 2)
	arm := m.Arms[1].(*body.Block)
	require.IsType(t, &body.Perform{}, arm.Stmts[0])

	nothing := prog.Registry.Family("nothing")[0]
	require.Nil(t, nothing.Body.Tail)
	require.Equal(t, "nothing() -> Unit", nothing.Signature(prog.Interner))
}

func TestLoadOrderIndependentConstraints(t *testing.T) {
	prog, bag := load(t, `
constraint Ord: Eq
constraint Eq: Sized
impl Key: Ord
`)
	require.Zero(t, bag.Len())
	require.True(t, prog.Lattice.SatisfiesAll("Key", []string{"Eq", "Sized"}))
}

func TestLoadReportsDeclarationErrors(t *testing.T) {
	_, bag := load(t, `
constraint Loop: Missing
impl Key: Nope
subtype a <: b
subtype b <: a
effect IO
effect IO
fn f<T: Ghost, T>(T) -> T ! {Net}
fn g(i32) -> i32 { call h ! {IO | e} }
fn dup({a: i32, a: Bool}) -> Unit
`)
	require.ElementsMatch(t, []diag.Code{
		diag.DclUnknownConstraint,
		diag.DclUnknownConstraint,
		diag.DclSubtypeCycle,
		diag.DclDuplicateEffect,
		diag.DclUnknownConstraint,
		diag.DclDuplicateParam,
		diag.DclUnknownEffect,
		diag.DclUnknownTypeVar,
		diag.DclRegister,
	}, codes(bag))
}

func TestParseErrorHasPosition(t *testing.T) {
	fs := source.NewFileSet()
	f := fs.Get(fs.AddVirtual("bad.md", []byte("fn add(i32,\n")))
	bag := diag.NewBag(0)
	l := NewLoader(diag.BagReporter{Bag: bag})
	require.False(t, l.Add(f))
	require.Equal(t, 1, bag.Len())
	d := bag.Items()[0]
	require.Equal(t, diag.SynUnexpectedToken, d.Code)
	require.Equal(t, f.ID, d.Primary.File)

	prog := l.Program()
	require.Zero(t, prog.Registry.Len())
}
