package registry

import (
	"errors"
	"testing"

	"mdisp/internal/types"
)

func TestRegisterKeepsInsertionOrder(t *testing.T) {
	in := types.NewInterner()
	r := New(in)
	i32 := in.Con("i32")
	tv := in.NewVar("T", types.SortType, true, "Numeric")
	ids := make([]MethodID, 0, 3)
	for _, m := range []Method{
		{Name: "add", Params: []types.TypeID{i32, i32}, Result: i32},
		{Name: "show", Params: []types.TypeID{i32}, Result: in.Con("String")},
		{Name: "add", TypeParams: []TypeParam{{Var: tv, Name: "T", Constraints: []string{"Numeric"}}},
			Params: []types.TypeID{in.Var(tv), in.Var(tv)}, Result: in.Var(tv)},
	} {
		id, err := r.Register(m)
		if err != nil {
			t.Fatalf("register %s: %v", m.Name, err)
		}
		ids = append(ids, id)
	}
	if ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("unexpected ids %v", ids)
	}
	fam := r.Family("add")
	if len(fam) != 2 || fam[0].ID != ids[0] || fam[1].ID != ids[2] {
		t.Fatalf("unexpected family %+v", fam)
	}
	if got := r.Families(); len(got) != 2 || got[0] != "add" || got[1] != "show" {
		t.Fatalf("unexpected family order %v", got)
	}
	if got := fam[1].Signature(in); got != "add<T: Numeric>(T, T) -> T" {
		t.Fatalf("unexpected signature %q", got)
	}
	if fam[0].Effects != in.Pure() {
		t.Fatalf("missing effect row must default to pure")
	}
	if r.Method(NoMethodID) != nil || r.Method(99) != nil {
		t.Fatalf("invalid ids must return nil")
	}
}

func TestRegisterRejectsFlexibleVariables(t *testing.T) {
	in := types.NewInterner()
	r := New(in)
	flex := in.Var(in.Fresh(types.SortType))
	if _, err := r.Register(Method{Name: "f", Params: []types.TypeID{flex}, Result: flex}); err == nil {
		t.Fatalf("expected error for unquantified variable")
	}
}

func TestFreezeRejectsRegistration(t *testing.T) {
	in := types.NewInterner()
	r := New(in)
	r.Freeze()
	_, err := r.Register(Method{Name: "f", Result: in.Con("i32")})
	if !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}

func TestInstantiateRenamesQuantifiedVariables(t *testing.T) {
	in := types.NewInterner()
	r := New(in)
	tv := in.NewVar("T", types.SortType, true, "Clone")
	ev := in.NewVar("e", types.SortRow, true)
	io := in.Con("IO")
	id, err := r.Register(Method{
		Name:    "map",
		Params:  []types.TypeID{in.Var(tv)},
		Result:  in.Var(tv),
		Effects: in.Row([]types.TypeID{io}, ev),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	m := r.Method(id)
	if len(m.TypeVars()) != 1 || len(m.RowVars()) != 1 {
		t.Fatalf("expected one type and one row variable, got %v %v", m.TypeVars(), m.RowVars())
	}
	inst := Instantiate(in, m)
	if inst.Params[0] == m.Params[0] || inst.Result != inst.Params[0] {
		t.Fatalf("parameter and result must share one fresh variable")
	}
	pt := in.MustLookup(inst.Params[0])
	info, _ := in.VarInfo(pt.Var)
	if info.Rigid || len(info.Constraints) != 1 || info.Constraints[0] != "Clone" {
		t.Fatalf("fresh variable must be flexible and keep constraints: %+v", info)
	}
	row, _ := in.RowInfo(inst.Effects)
	if row.Tail == ev || row.Tail == types.NoVarID || len(row.Labels) != 1 {
		t.Fatalf("effect tail must be renamed: %s", types.RowLabel(in, inst.Effects))
	}
	again := Instantiate(in, m)
	if again.Params[0] == inst.Params[0] {
		t.Fatalf("each instantiation must be fresh")
	}
}
