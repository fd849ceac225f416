package unify

import (
	"mdisp/internal/types"
)

// MatchArgs checks that args may be passed to params, extending a copy of s.
//
// Arguments flowing into the same unbound flexible parameter variable are first
// joined to their least common declared supertype, so add<T>(T, T) accepts
// (i32, u8) and (u8, i32) alike when u8 <: i32 and binds T to i32. When ground
// arguments have no common supertype each of them only has to satisfy the
// variable's constraints on its own, and the variable stays unbound. Every
// remaining argument is then subsumed into its parameter.
func (u *Unifier) MatchArgs(params, args []types.TypeID, s *Subst) (*Subst, error) {
	if len(params) != len(args) {
		return nil, &Error{Kind: ErrArityMismatch, Want: len(params), Got: len(args), Arg: -1}
	}
	st := &state{u: u, in: u.in, lat: u.lat, s: s.Clone(), arg: -1}

	groups := make(map[types.VarID][]int)
	var order []types.VarID
	for i, p := range params {
		tt, ok := u.in.Lookup(st.resolve(p))
		if !ok || tt.Kind != types.KindVar {
			continue
		}
		if info, _ := u.in.VarInfo(tt.Var); info.Rigid {
			continue
		}
		if _, seen := groups[tt.Var]; !seen {
			order = append(order, tt.Var)
		}
		groups[tt.Var] = append(groups[tt.Var], i)
	}

	perPosition := make(map[int]bool)
	for _, v := range order {
		idx := groups[v]
		if len(idx) < 2 {
			continue
		}
		join, err := st.join(args, idx)
		if err != nil {
			if !st.ground(args, idx) {
				return nil, err
			}
			for _, i := range idx {
				if perr := st.satisfies(v, args[i], i); perr != nil {
					return nil, perr
				}
				perPosition[i] = true
			}
			continue
		}
		st.arg = idx[0]
		if err := st.unify(u.in.Var(v), join, ModeEqual); err != nil {
			return nil, err
		}
	}

	for i := range params {
		if perPosition[i] {
			continue
		}
		st.arg = i
		if err := st.unify(args[i], params[i], ModeSubsume); err != nil {
			return nil, err
		}
	}
	return st.s, nil
}

// join computes the least upper bound of the arguments at idx.
func (st *state) join(args []types.TypeID, idx []int) (types.TypeID, error) {
	cur := st.s.Apply(st.in, args[idx[0]])
	for _, i := range idx[1:] {
		next := st.s.Apply(st.in, args[i])
		j, ok := st.lub(cur, next, false)
		if !ok {
			err := st.fail(ErrTypeMismatch, next, cur)
			err.Arg = i
			err.Detail = "arguments bound to the same type parameter have no common supertype"
			return types.NoTypeID, err
		}
		cur = j
	}
	return cur, nil
}

// Join returns the least upper bound of a and b, extending a copy of s: their
// unification when they unify, the larger one when one is a subtype of the
// other, or the least common declared supertype of two constructors. It is
// commutative, so folding a list with it does not depend on list order.
func (u *Unifier) Join(a, b types.TypeID, s *Subst) (types.TypeID, *Subst, error) {
	var out types.TypeID
	s2, err := u.run(s, func(st *state) error {
		j, ok := st.lub(a, b, true)
		if !ok {
			return st.fail(ErrTypeMismatch, a, b)
		}
		out = j
		return nil
	})
	if err != nil {
		return types.NoTypeID, nil, err
	}
	return s2.Apply(u.in, out), s2, nil
}

// lub finds the least upper bound of cur and next. With commit set, a
// successful equal-mode unification is kept in st.s first.
func (st *state) lub(cur, next types.TypeID, commit bool) (types.TypeID, bool) {
	if commit {
		trial := &state{u: st.u, in: st.in, lat: st.lat, s: st.s.Clone(), arg: st.arg}
		if trial.unify(cur, next, ModeEqual) == nil {
			st.s = trial.s
			return st.s.Apply(st.in, cur), true
		}
	}
	if st.isSub(next, cur) {
		return cur, true
	}
	if st.isSub(cur, next) {
		return next, true
	}
	ca, okA := st.in.ConInfo(cur)
	cb, okB := st.in.ConInfo(next)
	if okA && okB {
		if j := st.lat.Join(ca.Name, cb.Name); j != "" {
			return st.in.Con(j), true
		}
	}
	return types.NoTypeID, false
}

// ground reports whether the arguments at idx mention no type or row variable.
func (st *state) ground(args []types.TypeID, idx []int) bool {
	for _, i := range idx {
		if !st.in.FreeVarsOf(st.s.Apply(st.in, args[i])).Empty() {
			return false
		}
	}
	return true
}

// satisfies checks arg against v alone without committing the binding.
func (st *state) satisfies(v types.VarID, arg types.TypeID, i int) error {
	trial := &state{u: st.u, in: st.in, lat: st.lat, s: st.s.Clone(), arg: i}
	return trial.unify(arg, st.in.Var(v), ModeSubsume)
}

// isSub checks sub <: super without committing any binding.
func (st *state) isSub(sub, super types.TypeID) bool {
	trial := &state{u: st.u, in: st.in, lat: st.lat, s: st.s.Clone(), arg: -1}
	return trial.unify(sub, super, ModeSubsume) == nil
}
