package registry

import (
	"mdisp/internal/types"
	"mdisp/internal/unify"
)

// Instance is a method signature with its quantified variables replaced by
// fresh flexible ones.
type Instance struct {
	Method  *Method
	Subst   *unify.Subst // rigid signature variable -> fresh variable
	Params  []types.TypeID
	Result  types.TypeID
	Effects types.RowID
}

// Instantiate renames every quantified variable of m to a fresh flexible
// variable carrying the same constraints.
func Instantiate(in *types.Interner, m *Method) Instance {
	s := unify.NewSubst()
	for _, v := range m.typeVars {
		info, _ := in.VarInfo(v)
		s.BindType(v, in.Var(in.NewVar(info.Name+"'", types.SortType, false, info.Constraints...)))
	}
	for _, v := range m.rowVars {
		info, _ := in.VarInfo(v)
		s.BindRow(v, in.Row(nil, in.NewVar(info.Name+"'", types.SortRow, false)))
	}
	return Instance{
		Method:  m,
		Subst:   s,
		Params:  s.ApplyAll(in, m.Params),
		Result:  s.Apply(in, m.Result),
		Effects: s.ApplyRow(in, m.Effects),
	}
}
