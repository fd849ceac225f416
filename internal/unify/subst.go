package unify

import (
	"maps"
	"slices"

	"mdisp/internal/types"
)

// Subst maps type variables to types and row variables to rows.
// A Subst belongs to the unification attempt that produced it: the Unifier
// never mutates its input and always returns a fresh copy.
type Subst struct {
	types map[types.VarID]types.TypeID
	rows  map[types.VarID]types.RowID
}

// NewSubst returns an empty substitution.
func NewSubst() *Subst {
	return &Subst{
		types: make(map[types.VarID]types.TypeID),
		rows:  make(map[types.VarID]types.RowID),
	}
}

// Clone copies the substitution. A nil receiver yields an empty substitution.
func (s *Subst) Clone() *Subst {
	if s == nil {
		return NewSubst()
	}
	return &Subst{types: maps.Clone(s.types), rows: maps.Clone(s.rows)}
}

// Len returns the number of bindings.
func (s *Subst) Len() int {
	if s == nil {
		return 0
	}
	return len(s.types) + len(s.rows)
}

// BindType records v := t without any checks. Used to build instantiations.
func (s *Subst) BindType(v types.VarID, t types.TypeID) { s.types[v] = t }

// BindRow records v := r without any checks.
func (s *Subst) BindRow(v types.VarID, r types.RowID) { s.rows[v] = r }

// LookupType returns the direct binding of a type variable.
func (s *Subst) LookupType(v types.VarID) (types.TypeID, bool) {
	if s == nil {
		return types.NoTypeID, false
	}
	t, ok := s.types[v]
	return t, ok
}

// LookupRow returns the direct binding of a row variable.
func (s *Subst) LookupRow(v types.VarID) (types.RowID, bool) {
	if s == nil {
		return types.NoRowID, false
	}
	r, ok := s.rows[v]
	return r, ok
}

// TypeVars lists bound type variables in ascending order.
func (s *Subst) TypeVars() []types.VarID {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.types))
}

// RowVars lists bound row variables in ascending order.
func (s *Subst) RowVars() []types.VarID {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.rows))
}

// Apply resolves every bound variable in t. The result is fully substituted,
// so applying it twice yields the same type.
func (s *Subst) Apply(in *types.Interner, t types.TypeID) types.TypeID {
	if s.Len() == 0 {
		return t
	}
	return s.apply(in, t, nil)
}

// ApplyAll applies the substitution to each type.
func (s *Subst) ApplyAll(in *types.Interner, ts []types.TypeID) []types.TypeID {
	out := make([]types.TypeID, len(ts))
	for i, t := range ts {
		out[i] = s.Apply(in, t)
	}
	return out
}

// ApplyRow resolves bound variables in an effect row, flattening bound tails.
func (s *Subst) ApplyRow(in *types.Interner, r types.RowID) types.RowID {
	if s.Len() == 0 {
		return r
	}
	return s.applyRow(in, r, nil)
}

func (s *Subst) apply(in *types.Interner, id types.TypeID, shadow map[types.VarID]int) types.TypeID {
	tt, ok := in.Lookup(id)
	if !ok {
		return id
	}
	switch tt.Kind {
	case types.KindVar:
		if shadow[tt.Var] > 0 {
			return id
		}
		if bound, ok := s.types[tt.Var]; ok {
			return s.apply(in, bound, shadow)
		}
		return id
	case types.KindCon:
		return id
	case types.KindApp:
		info, _ := in.AppInfo(id)
		args := make([]types.TypeID, len(info.Args))
		changed := false
		for i, a := range info.Args {
			args[i] = s.apply(in, a, shadow)
			changed = changed || args[i] != a
		}
		if !changed {
			return id
		}
		return in.App(info.Ctor, args...)
	case types.KindFn:
		info, _ := in.FnInfo(id)
		params := make([]types.TypeID, len(info.Params))
		for i, p := range info.Params {
			params[i] = s.apply(in, p, shadow)
		}
		return in.Fn(params, s.apply(in, info.Result, shadow), s.applyRow(in, info.Effects, shadow))
	case types.KindRecord:
		info, _ := in.RecordInfo(id)
		fields := make([]types.Field, 0, len(info.Fields))
		for _, f := range info.Fields {
			fields = append(fields, types.Field{Name: f.Name, Type: s.apply(in, f.Type, shadow)})
		}
		tail := info.Tail
		if tail != types.NoVarID && shadow[tail] == 0 {
			if bound, ok := s.types[tail]; ok {
				ext := s.apply(in, bound, shadow)
				if rec, ok := in.RecordInfo(ext); ok {
					fields = append(fields, rec.Fields...)
					tail = rec.Tail
				} else if et, ok := in.Lookup(ext); ok && et.Kind == types.KindVar {
					tail = et.Var
				}
			}
		}
		return in.Record(fields, tail)
	case types.KindForall:
		info, _ := in.ForallInfo(id)
		if shadow == nil {
			shadow = make(map[types.VarID]int)
		}
		for _, v := range info.Vars {
			shadow[v]++
		}
		body := s.apply(in, info.Body, shadow)
		for _, v := range info.Vars {
			shadow[v]--
		}
		return in.Forall(info.Vars, body)
	default:
		return id
	}
}

func (s *Subst) applyRow(in *types.Interner, r types.RowID, shadow map[types.VarID]int) types.RowID {
	info, ok := in.RowInfo(r)
	if !ok {
		return r
	}
	labels := make([]types.TypeID, 0, len(info.Labels))
	for _, l := range info.Labels {
		labels = append(labels, s.apply(in, l, shadow))
	}
	tail := info.Tail
	if tail != types.NoVarID && shadow[tail] == 0 {
		if bound, ok := s.rows[tail]; ok {
			ext := s.applyRow(in, bound, shadow)
			extInfo, _ := in.RowInfo(ext)
			labels = append(labels, extInfo.Labels...)
			tail = extInfo.Tail
		}
	}
	return in.Row(labels, tail)
}
