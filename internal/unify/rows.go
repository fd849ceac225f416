package unify

import (
	"slices"

	"mdisp/internal/types"
)

// Effect labels are matched by constructor head: a row carries at most one
// label per head, so Error<E> and Error<IOErr> are the same label and their
// arguments are unified.

type labelSet struct {
	heads  []string
	byHead map[string]types.TypeID
}

func (st *state) labelsOf(labels []types.TypeID) labelSet {
	ls := labelSet{byHead: make(map[string]types.TypeID, len(labels))}
	for _, l := range labels {
		head := st.in.HeadName(l)
		if head == "" {
			head = types.Label(st.in, l)
		}
		if _, dup := ls.byHead[head]; !dup {
			ls.heads = append(ls.heads, head)
		}
		ls.byHead[head] = l
	}
	slices.Sort(ls.heads)
	return ls
}

func (ls labelSet) minus(other labelSet) (heads []string, ids []types.TypeID) {
	for _, h := range ls.heads {
		if _, ok := other.byHead[h]; !ok {
			heads = append(heads, h)
			ids = append(ids, ls.byHead[h])
		}
	}
	return heads, ids
}

func (st *state) rowFail(r1, r2 types.RowID, missing, extra []string) *Error {
	return &Error{
		Kind:    ErrEffectMismatch,
		Left:    types.RowLabel(st.in, st.s.ApplyRow(st.in, r1)),
		Right:   types.RowLabel(st.in, st.s.ApplyRow(st.in, r2)),
		Missing: missing,
		Extra:   extra,
		Arg:     st.arg,
	}
}

// rows unifies two effect rows. In ModeSubsume it checks r1 ⊆ r2.
func (st *state) rows(r1, r2 types.RowID, mode Mode) error {
	st.depth++
	defer func() { st.depth-- }()
	if st.depth > st.u.MaxDepth {
		return &Error{Kind: ErrDepthExceeded, Arg: st.arg}
	}

	a := st.s.ApplyRow(st.in, r1)
	b := st.s.ApplyRow(st.in, r2)
	if a == b {
		return nil
	}
	ia, _ := st.in.RowInfo(a)
	ib, _ := st.in.RowInfo(b)
	la, lb := st.labelsOf(ia.Labels), st.labelsOf(ib.Labels)

	for _, h := range la.heads {
		if other, ok := lb.byHead[h]; ok {
			if err := st.unify(la.byHead[h], other, ModeEqual); err != nil {
				if KindOf(err) == ErrDepthExceeded {
					return err
				}
				return st.rowFail(a, b, nil, nil)
			}
		}
	}

	onlyAHeads, onlyA := la.minus(lb) // effects b would have to absorb
	onlyBHeads, onlyB := lb.minus(la) // effects a would have to absorb
	ta, tb := ia.Tail, ib.Tail
	subsume := mode == ModeSubsume

	if ta != types.NoVarID && ta == tb {
		if len(onlyA) > 0 || len(onlyB) > 0 {
			return st.rowFail(a, b, onlyBHeads, onlyAHeads)
		}
		return nil
	}

	rigidA, rigidB := st.isRigid(ta), st.isRigid(tb)

	// b must admit every effect of a
	if len(onlyA) > 0 && (tb == types.NoVarID || rigidB) {
		return st.rowFail(a, b, nil, onlyAHeads)
	}
	// in equal mode a must produce every effect of b
	if !subsume && len(onlyB) > 0 && (ta == types.NoVarID || rigidA) {
		return st.rowFail(a, b, onlyBHeads, nil)
	}

	switch {
	case ta == types.NoVarID && tb == types.NoVarID:
		return nil
	case ta != types.NoVarID && tb != types.NoVarID:
		switch {
		case !rigidA && !rigidB:
			fresh := st.in.Fresh(types.SortRow)
			if err := st.bindRow(ta, st.in.Row(onlyB, fresh)); err != nil {
				return err
			}
			return st.bindRow(tb, st.in.Row(onlyA, fresh))
		case rigidA && !rigidB:
			if !subsume && len(onlyB) > 0 {
				return st.rowFail(a, b, onlyBHeads, nil)
			}
			return st.bindRow(tb, st.in.Row(onlyA, ta))
		case !rigidA && rigidB:
			return st.bindRow(ta, st.in.Row(onlyB, tb))
		default:
			return st.rowFail(a, b, onlyBHeads, onlyAHeads)
		}
	case ta != types.NoVarID:
		// a open, b closed
		if rigidA {
			return st.rowFail(a, b, onlyBHeads, []string{types.VarLabel(st.in, ta)})
		}
		return st.bindRow(ta, st.in.Row(onlyB, types.NoVarID))
	default:
		// a closed, b open
		if rigidB {
			if subsume {
				return nil
			}
			return st.rowFail(a, b, []string{types.VarLabel(st.in, tb)}, nil)
		}
		if subsume {
			return st.bindRow(tb, st.in.Row(onlyA, st.in.Fresh(types.SortRow)))
		}
		return st.bindRow(tb, st.in.Row(onlyA, types.NoVarID))
	}
}

func (st *state) isRigid(v types.VarID) bool {
	if v == types.NoVarID {
		return false
	}
	info, _ := st.in.VarInfo(v)
	return info.Rigid
}

func (st *state) bindRow(v types.VarID, r types.RowID) error {
	applied := st.s.ApplyRow(st.in, r)
	if st.in.FreeVarsOfRow(applied).HasRow(v) {
		info, _ := st.in.VarInfo(v)
		return &Error{
			Kind:  ErrInfiniteType,
			Var:   info.Name,
			Right: types.RowLabel(st.in, applied),
			Arg:   st.arg,
		}
	}
	st.s.rows[v] = r
	return nil
}
