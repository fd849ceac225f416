package specificity

import (
	"testing"

	"mdisp/internal/constraints"
	"mdisp/internal/registry"
	"mdisp/internal/types"
	"mdisp/internal/unify"
)

type env struct {
	in  *types.Interner
	reg *registry.Registry
	cmp *Comparator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	in := types.NewInterner()
	lat := constraints.Default()
	lat.Freeze()
	return &env{in: in, reg: registry.New(in), cmp: New(unify.New(in, lat))}
}

// generic registers name<T: cs>(T, ..., T) -> T with arity parameters.
func (e *env) generic(t *testing.T, name string, arity int, cs ...string) *registry.Method {
	t.Helper()
	v := e.in.NewVar("T", types.SortType, true, cs...)
	params := make([]types.TypeID, arity)
	for i := range params {
		params[i] = e.in.Var(v)
	}
	return e.add(t, registry.Method{
		Name:       name,
		TypeParams: []registry.TypeParam{{Var: v, Name: "T", Constraints: cs}},
		Params:     params,
		Result:     e.in.Var(v),
	})
}

func (e *env) concrete(t *testing.T, name string, effects types.RowID, params ...string) *registry.Method {
	t.Helper()
	ps := make([]types.TypeID, len(params))
	for i, p := range params {
		ps[i] = e.in.Con(p)
	}
	return e.add(t, registry.Method{Name: name, Params: ps, Result: e.in.Con("Unit"), Effects: effects})
}

func (e *env) add(t *testing.T, m registry.Method) *registry.Method {
	t.Helper()
	id, err := e.reg.Register(m)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return e.reg.Method(id)
}

func (e *env) row(names ...string) types.RowID {
	labels := make([]types.TypeID, len(names))
	for i, n := range names {
		labels[i] = e.in.Con(n)
	}
	return e.in.Row(labels, types.NoVarID)
}

func expectOrder(t *testing.T, c *Comparator, a, b *registry.Method, want Ordering) {
	t.Helper()
	if got := c.Compare(a, b); got != want {
		t.Fatalf("Compare(%d, %d) = %s, want %s", a.ID, b.ID, got, want)
	}
	if got := c.Compare(b, a); got != want.Reverse() {
		t.Fatalf("Compare(%d, %d) = %s, want %s", b.ID, a.ID, got, want.Reverse())
	}
}

func TestConcreteBeatsGeneric(t *testing.T) {
	e := newEnv(t)
	generic := e.generic(t, "add", 2)
	concrete := e.concrete(t, "add", types.NoRowID, "i32", "i32")
	expectOrder(t, e.cmp, concrete, generic, MoreSpecific)
}

func TestStrongerConstraintsAreMoreSpecific(t *testing.T) {
	e := newEnv(t)
	copyM := e.generic(t, "dup", 1, "Copy")
	cloneM := e.generic(t, "dup", 1, "Clone")
	anyM := e.generic(t, "dup", 1)
	expectOrder(t, e.cmp, copyM, cloneM, MoreSpecific)
	expectOrder(t, e.cmp, cloneM, anyM, MoreSpecific)
	expectOrder(t, e.cmp, copyM, anyM, MoreSpecific)
}

func TestUnrelatedConstraintsAreIncomparable(t *testing.T) {
	e := newEnv(t)
	num := e.generic(t, "f", 1, "Numeric")
	clone := e.generic(t, "f", 1, "Clone")
	expectOrder(t, e.cmp, num, clone, Incomparable)
}

func TestAppliedConstructorBeatsGenericArgument(t *testing.T) {
	e := newEnv(t)
	vec := e.in.Con("Vec")
	v := e.in.NewVar("T", types.SortType, true)
	vecT := e.add(t, registry.Method{
		Name:       "len",
		TypeParams: []registry.TypeParam{{Var: v, Name: "T"}},
		Params:     []types.TypeID{e.in.App(vec, e.in.Var(v))},
		Result:     e.in.Con("u64"),
	})
	vecI32 := e.add(t, registry.Method{
		Name:   "len",
		Params: []types.TypeID{e.in.App(vec, e.in.Con("i32"))},
		Result: e.in.Con("u64"),
	})
	expectOrder(t, e.cmp, vecI32, vecT, MoreSpecific)
}

func TestEffectRowsBreakTies(t *testing.T) {
	e := newEnv(t)
	pure := e.concrete(t, "load", types.NoRowID, "Path")
	io := e.concrete(t, "load", e.row("IO"), "Path")
	ioExc := e.concrete(t, "load", e.row("IO", "Exc"), "Path")
	other := e.concrete(t, "load", e.row("Net"), "Path")
	expectOrder(t, e.cmp, pure, io, MoreSpecific)
	expectOrder(t, e.cmp, io, ioExc, MoreSpecific)
	expectOrder(t, e.cmp, io, other, Incomparable)

	same := e.concrete(t, "load", e.row("Exc", "IO"), "Path")
	expectOrder(t, e.cmp, ioExc, same, Equivalent)
}

func TestParametersDominateEffects(t *testing.T) {
	e := newEnv(t)
	generic := e.generic(t, "g", 1)
	concreteIO := e.concrete(t, "g", e.row("IO"), "i32")
	expectOrder(t, e.cmp, concreteIO, generic, MoreSpecific)
}

func TestOpenEffectRowIsLarger(t *testing.T) {
	e := newEnv(t)
	tail := e.in.NewVar("e", types.SortRow, true)
	open := e.concrete(t, "run", e.in.Row([]types.TypeID{e.in.Con("IO")}, tail), "Task")
	closed := e.concrete(t, "run", e.row("IO"), "Task")
	expectOrder(t, e.cmp, closed, open, MoreSpecific)
}

func TestDifferentArityIsIncomparable(t *testing.T) {
	e := newEnv(t)
	one := e.concrete(t, "h", types.NoRowID, "i32")
	two := e.concrete(t, "h", types.NoRowID, "i32", "i32")
	expectOrder(t, e.cmp, one, two, Incomparable)
}
