package unify

import (
	"mdisp/internal/types"
)

func fieldNames(fs []types.Field) []string {
	if len(fs) == 0 {
		return nil
	}
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

func (st *state) recordFail(a, b types.TypeID, missing, extra []types.Field) *Error {
	err := st.fail(ErrRecordFieldMismatch, a, b)
	err.Missing = fieldNames(missing)
	err.Extra = fieldNames(extra)
	return err
}

// records unifies two record types by partitioning their fields into common,
// left-only and right-only sets. In ModeSubsume a closed right side accepts
// extra left fields (width subtyping).
func (st *state) records(a, b types.TypeID, mode Mode) error {
	a = st.s.Apply(st.in, a)
	b = st.s.Apply(st.in, b)
	ra, _ := st.in.RecordInfo(a)
	rb, _ := st.in.RecordInfo(b)

	var onlyA, onlyB []types.Field
	for _, f := range ra.Fields {
		other, ok := rb.Field(f.Name)
		if !ok {
			onlyA = append(onlyA, f)
			continue
		}
		if err := st.unify(f.Type, other, mode); err != nil {
			return err
		}
	}
	for _, f := range rb.Fields {
		if _, ok := ra.Field(f.Name); !ok {
			onlyB = append(onlyB, f)
		}
	}

	ta, tb := ra.Tail, rb.Tail
	subsume := mode == ModeSubsume
	if ta != types.NoVarID && ta == tb {
		if len(onlyA) > 0 || len(onlyB) > 0 {
			return st.recordFail(a, b, onlyB, onlyA)
		}
		return nil
	}
	rigidA, rigidB := st.isRigid(ta), st.isRigid(tb)

	var missing, extra []types.Field
	// a must provide every field of b
	if len(onlyB) > 0 && (ta == types.NoVarID || rigidA) {
		missing = onlyB
	}
	// b must accept every field of a, unless width subtyping applies
	if len(onlyA) > 0 && !subsume && (tb == types.NoVarID || rigidB) {
		extra = onlyA
	}
	if missing != nil || extra != nil {
		return st.recordFail(a, b, missing, extra)
	}

	switch {
	case ta == types.NoVarID && tb == types.NoVarID:
		return nil
	case ta != types.NoVarID && tb != types.NoVarID:
		switch {
		case !rigidA && !rigidB:
			fresh := st.in.Fresh(types.SortType)
			if err := st.bindTail(ta, onlyB, fresh); err != nil {
				return err
			}
			return st.bindTail(tb, onlyA, fresh)
		case rigidA && !rigidB:
			return st.bindTail(tb, onlyA, ta)
		case !rigidA && rigidB:
			return st.bindTail(ta, onlyB, tb)
		default:
			if subsume {
				return st.recordFail(a, b, nil, nil)
			}
			return st.recordFail(a, b, onlyB, onlyA)
		}
	case ta != types.NoVarID:
		// a open, b closed
		if rigidA {
			if subsume {
				return nil
			}
			return st.recordFail(a, b, nil, nil)
		}
		return st.bindTail(ta, onlyB, types.NoVarID)
	default:
		// a closed, b open
		if rigidB {
			return st.recordFail(a, b, nil, nil)
		}
		return st.bindTail(tb, onlyA, types.NoVarID)
	}
}

// bindTail binds a record tail to the fields it absorbs plus the new tail.
func (st *state) bindTail(v types.VarID, fields []types.Field, tail types.VarID) error {
	info, _ := st.in.VarInfo(v)
	var t types.TypeID
	if len(fields) == 0 && tail != types.NoVarID {
		t = st.in.Var(tail)
	} else {
		t = st.in.Record(fields, tail)
	}
	return st.bindVar(v, info, t)
}
