package types

import "testing"

func TestInternerDeduplicatesDescriptors(t *testing.T) {
	in := NewInterner()
	i32 := in.Con("i32")
	vec := in.Con("Vec")
	a := in.App(vec, i32)
	b := in.App(in.Con("Vec"), in.Con("i32"))
	if a != b {
		t.Fatalf("applications should be deduplicated")
	}
	f1 := in.Fn([]TypeID{i32, a}, i32, NoRowID)
	f2 := in.Fn([]TypeID{i32, b}, i32, in.Pure())
	if f1 != f2 {
		t.Fatalf("NoRowID effects must intern as pure")
	}
}

func TestInternerFlattensNestedApplications(t *testing.T) {
	in := NewInterner()
	res := in.Con("Result")
	e, v := in.Con("Err"), in.Con("i32")
	nested := in.App(in.App(res, e), v)
	flat := in.App(res, e, v)
	if nested != flat {
		t.Fatalf("nested application should flatten: %s vs %s", Label(in, nested), Label(in, flat))
	}
	info, ok := in.AppInfo(flat)
	if !ok || len(info.Args) != 2 {
		t.Fatalf("expected two args, got %+v", info)
	}
}

func TestRecordFieldOrderIsCanonical(t *testing.T) {
	in := NewInterner()
	i32, str := in.Con("i32"), in.Con("String")
	a := in.Record([]Field{{Name: "b", Type: str}, {Name: "a", Type: i32}}, NoVarID)
	b := in.Record([]Field{{Name: "a", Type: i32}, {Name: "b", Type: str}}, NoVarID)
	if a != b {
		t.Fatalf("record identity must not depend on field order")
	}
	if got := Label(in, a); got != "{a: i32, b: String}" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestRecordDuplicateFieldPanics(t *testing.T) {
	in := NewInterner()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate field")
		}
	}()
	in.Record([]Field{{Name: "a", Type: in.Con("i32")}, {Name: "a", Type: in.Con("u8")}}, NoVarID)
}

func TestRowsAreSets(t *testing.T) {
	in := NewInterner()
	io, exc := in.Con("IO"), in.Con("Exc")
	r1 := in.Row([]TypeID{io, exc, io}, NoVarID)
	r2 := in.Row([]TypeID{exc, io}, NoVarID)
	if r1 != r2 {
		t.Fatalf("closed rows with equal label sets must be equal")
	}
	if in.Row(nil, NoVarID) != in.Pure() {
		t.Fatalf("empty closed row must be pure")
	}
	e := in.NewVar("e", SortRow, false)
	open := in.Row([]TypeID{io}, e)
	if open == in.Row([]TypeID{io}, NoVarID) {
		t.Fatalf("open and closed rows must differ")
	}
	if got := RowLabel(in, open); got != "{IO | e}" {
		t.Fatalf("unexpected row label %q", got)
	}
	if got := RowLabel(in, r1); got != "{Exc, IO}" {
		t.Fatalf("unexpected row label %q", got)
	}
}

func TestLabelFunctionTypes(t *testing.T) {
	in := NewInterner()
	i32 := in.Con("i32")
	io := in.Row([]TypeID{in.Con("IO")}, NoVarID)
	fn := in.Fn([]TypeID{i32, i32}, i32, io)
	if got := Label(in, fn); got != "fn(i32, i32) -> i32 ! {IO}" {
		t.Fatalf("unexpected label %q", got)
	}
	tv := in.NewVar("T", SortType, true)
	all := in.Forall([]VarID{tv}, in.Fn([]TypeID{in.Var(tv)}, in.Var(tv), NoRowID))
	if got := Label(in, all); got != "forall T. fn(T) -> T" {
		t.Fatalf("unexpected label %q", got)
	}
	if in.Forall(nil, i32) != i32 {
		t.Fatalf("forall without binders must collapse to its body")
	}
}

func TestFreeVars(t *testing.T) {
	in := NewInterner()
	a := in.NewVar("a", SortType, false)
	b := in.NewVar("b", SortType, false)
	r := in.NewVar("r", SortType, false)
	e := in.NewVar("e", SortRow, false)
	rec := in.Record([]Field{{Name: "x", Type: in.Var(a)}}, r)
	fn := in.Fn([]TypeID{rec}, in.Var(b), in.Row([]TypeID{in.Con("IO")}, e))
	fv := in.FreeVarsOf(fn)
	if len(fv.Types) != 3 || fv.Types[0] != a || fv.Types[1] != r || fv.Types[2] != b {
		t.Fatalf("unexpected free type vars %v", fv.Types)
	}
	if len(fv.Rows) != 1 || fv.Rows[0] != e {
		t.Fatalf("unexpected free row vars %v", fv.Rows)
	}
	closed := in.Forall([]VarID{a, b, r, e}, fn)
	if !in.FreeVarsOf(closed).Empty() {
		t.Fatalf("quantified vars must not be free")
	}
	if in.IsGround(fn) || !in.IsGround(in.Con("i32")) {
		t.Fatalf("IsGround mismatch")
	}
}

func TestIdentityStableAcrossInterners(t *testing.T) {
	a, b := NewInterner(), NewInterner()
	b.Con("noise")
	ta := a.App(a.Con("Vec"), a.Con("i32"))
	tb := b.App(b.Con("Vec"), b.Con("i32"))
	if a.Identity(ta) != b.Identity(tb) {
		t.Fatalf("identity hash must be structural")
	}
	if a.Identity(ta) == a.Identity(a.Con("i32")) {
		t.Fatalf("distinct types should hash differently")
	}
}

func TestNormalizedConstraints(t *testing.T) {
	in := NewInterner()
	v := in.NewVar("T", SortType, true, "Numeric", "Copy", "Numeric", "")
	info, ok := in.VarInfo(v)
	if !ok || len(info.Constraints) != 2 || info.Constraints[0] != "Copy" || info.Constraints[1] != "Numeric" {
		t.Fatalf("unexpected constraints %+v", info.Constraints)
	}
	if in.HeadName(in.App(in.Con("Vec"), in.Var(v))) != "Vec" {
		t.Fatalf("head name of application must be its constructor")
	}
}
