// Package unify implements unification over interned types with effect rows
// and row-polymorphic records.
package unify

import (
	"slices"

	"mdisp/internal/constraints"
	"mdisp/internal/types"
)

// DefaultMaxDepth bounds unification recursion.
const DefaultMaxDepth = 512

// Mode selects how two types are related.
type Mode uint8

const (
	// ModeEqual requires both sides to become identical.
	ModeEqual Mode = iota
	// ModeSubsume accepts left <: right: declared nominal subtypes, closed-record
	// width subtyping and effect-row inclusion.
	ModeSubsume
	// ModeMeet succeeds when the two types share an inhabitant.
	ModeMeet
)

func (m Mode) String() string {
	switch m {
	case ModeSubsume:
		return "subsume"
	case ModeMeet:
		return "meet"
	default:
		return "equal"
	}
}

// Unifier relates types under a constraint lattice. It holds no per-call state
// and is safe for concurrent use once the lattice is frozen.
type Unifier struct {
	in       *types.Interner
	lat      *constraints.Lattice
	MaxDepth int
}

// New creates a unifier. A nil lattice means the built-in default lattice.
func New(in *types.Interner, lat *constraints.Lattice) *Unifier {
	if lat == nil {
		lat = constraints.Default()
	}
	return &Unifier{in: in, lat: lat, MaxDepth: DefaultMaxDepth}
}

// Interner returns the interner the unifier builds types in.
func (u *Unifier) Interner() *types.Interner { return u.in }

// Lattice returns the constraint lattice.
func (u *Unifier) Lattice() *constraints.Lattice { return u.lat }

// Unify makes t1 and t2 equal, extending a copy of s.
func (u *Unifier) Unify(t1, t2 types.TypeID, s *Subst) (*Subst, error) {
	return u.run(s, func(st *state) error { return st.unify(t1, t2, ModeEqual) })
}

// Subsume checks sub <: super, extending a copy of s.
func (u *Unifier) Subsume(sub, super types.TypeID, s *Subst) (*Subst, error) {
	return u.run(s, func(st *state) error { return st.unify(sub, super, ModeSubsume) })
}

// Meet checks that t1 and t2 overlap, extending a copy of s.
func (u *Unifier) Meet(t1, t2 types.TypeID, s *Subst) (*Subst, error) {
	return u.run(s, func(st *state) error { return st.unify(t1, t2, ModeMeet) })
}

// UnifyRows makes two effect rows equal.
func (u *Unifier) UnifyRows(r1, r2 types.RowID, s *Subst) (*Subst, error) {
	return u.run(s, func(st *state) error { return st.rows(r1, r2, ModeEqual) })
}

// SubsumeRows checks that every effect of sub is admitted by super.
func (u *Unifier) SubsumeRows(sub, super types.RowID, s *Subst) (*Subst, error) {
	return u.run(s, func(st *state) error { return st.rows(sub, super, ModeSubsume) })
}

// RowIncluded reports whether sub ⊆ super under s.
func (u *Unifier) RowIncluded(sub, super types.RowID, s *Subst) bool {
	_, err := u.SubsumeRows(sub, super, s)
	return err == nil
}

func (u *Unifier) run(s *Subst, fn func(*state) error) (*Subst, error) {
	st := &state{u: u, in: u.in, lat: u.lat, s: s.Clone(), arg: -1}
	if err := fn(st); err != nil {
		return nil, err
	}
	return st.s, nil
}

type state struct {
	u     *Unifier
	in    *types.Interner
	lat   *constraints.Lattice
	s     *Subst
	depth int
	arg   int
}

func (st *state) fail(kind ErrorKind, left, right types.TypeID) *Error {
	return &Error{
		Kind:  kind,
		Left:  types.Label(st.in, st.s.Apply(st.in, left)),
		Right: types.Label(st.in, st.s.Apply(st.in, right)),
		Arg:   st.arg,
	}
}

// resolve follows variable bindings at the top of t.
func (st *state) resolve(t types.TypeID) types.TypeID {
	for {
		tt, ok := st.in.Lookup(t)
		if !ok || tt.Kind != types.KindVar {
			return t
		}
		next, bound := st.s.types[tt.Var]
		if !bound {
			return t
		}
		t = next
	}
}

func (st *state) unify(a, b types.TypeID, mode Mode) error {
	st.depth++
	defer func() { st.depth-- }()
	if st.depth > st.u.MaxDepth {
		return &Error{Kind: ErrDepthExceeded, Arg: st.arg}
	}

	a, b = st.resolve(a), st.resolve(b)
	if a == b {
		return nil
	}
	ta, okA := st.in.Lookup(a)
	tb, okB := st.in.Lookup(b)
	if !okA || !okB {
		return st.fail(ErrTypeMismatch, a, b)
	}

	if ta.Kind == types.KindVar || tb.Kind == types.KindVar {
		return st.unifyVar(a, ta, b, tb)
	}
	if ta.Kind == types.KindForall || tb.Kind == types.KindForall {
		return st.unifyForall(a, ta, b, tb, mode)
	}
	if ta.Kind != tb.Kind {
		return st.fail(ErrTypeMismatch, a, b)
	}

	switch ta.Kind {
	case types.KindCon:
		return st.unifyCon(a, b, mode)
	case types.KindApp:
		return st.unifyApp(a, b)
	case types.KindFn:
		return st.unifyFn(a, b, mode)
	case types.KindRecord:
		return st.records(a, b, mode)
	default:
		return st.fail(ErrTypeMismatch, a, b)
	}
}

func (st *state) unifyCon(a, b types.TypeID, mode Mode) error {
	ca, _ := st.in.ConInfo(a)
	cb, _ := st.in.ConInfo(b)
	switch mode {
	case ModeSubsume:
		if st.lat.IsSubtype(ca.Name, cb.Name) {
			return nil
		}
	case ModeMeet:
		if st.lat.IsSubtype(ca.Name, cb.Name) || st.lat.IsSubtype(cb.Name, ca.Name) {
			return nil
		}
	}
	return st.fail(ErrTypeMismatch, a, b)
}

// unifyApp treats constructor arguments as invariant.
func (st *state) unifyApp(a, b types.TypeID) error {
	ia, _ := st.in.AppInfo(a)
	ib, _ := st.in.AppInfo(b)
	if err := st.unify(ia.Ctor, ib.Ctor, ModeEqual); err != nil {
		if KindOf(err) == ErrDepthExceeded {
			return err
		}
		return st.fail(ErrTypeMismatch, a, b)
	}
	if len(ia.Args) != len(ib.Args) {
		err := st.fail(ErrArityMismatch, a, b)
		err.Want, err.Got = len(ib.Args), len(ia.Args)
		return err
	}
	for i := range ia.Args {
		if err := st.unify(ia.Args[i], ib.Args[i], ModeEqual); err != nil {
			return err
		}
	}
	return nil
}

func (st *state) unifyFn(a, b types.TypeID, mode Mode) error {
	fa, _ := st.in.FnInfo(a)
	fb, _ := st.in.FnInfo(b)
	if len(fa.Params) != len(fb.Params) {
		err := st.fail(ErrArityMismatch, a, b)
		err.Want, err.Got = len(fb.Params), len(fa.Params)
		return err
	}
	for i := range fa.Params {
		var err error
		if mode == ModeSubsume {
			// parameters are contravariant
			err = st.unify(fb.Params[i], fa.Params[i], ModeSubsume)
		} else {
			err = st.unify(fa.Params[i], fb.Params[i], mode)
		}
		if err != nil {
			return err
		}
	}
	if err := st.unify(fa.Result, fb.Result, mode); err != nil {
		return err
	}
	rowMode := ModeEqual
	if mode == ModeSubsume {
		rowMode = ModeSubsume
	}
	return st.rows(fa.Effects, fb.Effects, rowMode)
}

func (st *state) unifyVar(a types.TypeID, ta types.Type, b types.TypeID, tb types.Type) error {
	if ta.Kind == types.KindVar && tb.Kind == types.KindVar {
		va, _ := st.in.VarInfo(ta.Var)
		vb, _ := st.in.VarInfo(tb.Var)
		switch {
		case va.Rigid && vb.Rigid:
			return st.fail(ErrTypeMismatch, a, b)
		case va.Rigid:
			return st.bindVar(tb.Var, vb, a)
		case vb.Rigid:
			return st.bindVar(ta.Var, va, b)
		default:
			return st.mergeVars(ta.Var, va, tb.Var, vb)
		}
	}
	if ta.Kind == types.KindVar {
		va, _ := st.in.VarInfo(ta.Var)
		if va.Rigid {
			return st.fail(ErrTypeMismatch, a, b)
		}
		return st.bindVar(ta.Var, va, b)
	}
	vb, _ := st.in.VarInfo(tb.Var)
	if vb.Rigid {
		return st.fail(ErrTypeMismatch, a, b)
	}
	return st.bindVar(tb.Var, vb, a)
}

// mergeVars links two unbound flexible variables, keeping the stronger constraint set.
func (st *state) mergeVars(a types.VarID, ia types.VarInfo, b types.VarID, ib types.VarInfo) error {
	switch {
	case st.lat.ImpliesAll(ib.Constraints, ia.Constraints):
		st.s.types[a] = st.in.Var(b)
	case st.lat.ImpliesAll(ia.Constraints, ib.Constraints):
		st.s.types[b] = st.in.Var(a)
	default:
		union := append(slices.Clone(ia.Constraints), ib.Constraints...)
		fresh := st.in.Fresh(types.SortType, union...)
		ft := st.in.Var(fresh)
		st.s.types[a] = ft
		st.s.types[b] = ft
	}
	return nil
}

func (st *state) bindVar(v types.VarID, info types.VarInfo, t types.TypeID) error {
	applied := st.s.Apply(st.in, t)
	if fv := st.in.FreeVarsOf(applied); fv.HasType(v) {
		return &Error{
			Kind:  ErrInfiniteType,
			Var:   info.Name,
			Right: types.Label(st.in, applied),
			Arg:   st.arg,
		}
	}
	if err := st.checkConstraints(info, applied); err != nil {
		return err
	}
	st.s.types[v] = t
	return nil
}

func (st *state) checkConstraints(info types.VarInfo, t types.TypeID) error {
	if len(info.Constraints) == 0 {
		return nil
	}
	tt, _ := st.in.Lookup(t)
	var have []string
	known := true
	switch tt.Kind {
	case types.KindVar:
		other, _ := st.in.VarInfo(tt.Var)
		have = other.Constraints
	case types.KindCon, types.KindApp:
		head := st.in.HeadName(t)
		for _, c := range info.Constraints {
			if !st.lat.Satisfies(head, c) {
				return st.violation(info, t, c)
			}
		}
		return nil
	default:
		known = false
	}
	for _, c := range info.Constraints {
		if !known || !st.lat.Implies(have, c) {
			if c == constraints.Any {
				continue
			}
			return st.violation(info, t, c)
		}
	}
	return nil
}

func (st *state) violation(info types.VarInfo, t types.TypeID, c string) *Error {
	return &Error{
		Kind:       ErrConstraintViolation,
		Var:        info.Name,
		Right:      types.Label(st.in, t),
		Constraint: c,
		Arg:        st.arg,
	}
}

// unifyForall compares quantified types by replacing both binder lists with the
// same fresh skolems, then checks that no skolem escaped into an outer variable.
func (st *state) unifyForall(a types.TypeID, ta types.Type, b types.TypeID, tb types.Type, mode Mode) error {
	if ta.Kind == types.KindForall && tb.Kind == types.KindForall {
		fa, _ := st.in.ForallInfo(a)
		fb, _ := st.in.ForallInfo(b)
		if len(fa.Vars) != len(fb.Vars) {
			err := st.fail(ErrArityMismatch, a, b)
			err.Want, err.Got = len(fb.Vars), len(fa.Vars)
			return err
		}
		ren := NewSubst()
		skolems := make([]types.VarID, len(fa.Vars))
		for i := range fa.Vars {
			ia, _ := st.in.VarInfo(fa.Vars[i])
			ib, _ := st.in.VarInfo(fb.Vars[i])
			if ia.Sort != ib.Sort {
				return st.fail(ErrTypeMismatch, a, b)
			}
			cs := append(slices.Clone(ia.Constraints), ib.Constraints...)
			sk := st.in.Skolem(ia.Name, ia.Sort, cs...)
			skolems[i] = sk
			bindFresh(st.in, ren, fa.Vars[i], ia.Sort, sk)
			bindFresh(st.in, ren, fb.Vars[i], ib.Sort, sk)
		}
		outer := st.in.FreeVarsOf(a, b)
		if err := st.unify(ren.Apply(st.in, fa.Body), ren.Apply(st.in, fb.Body), mode); err != nil {
			return err
		}
		return st.checkEscape(outer, skolems, a, b)
	}

	switch {
	case mode == ModeEqual:
		return st.fail(ErrTypeMismatch, a, b)
	case tb.Kind == types.KindForall && mode == ModeSubsume:
		// the super type must hold for every instance: skolemize it
		fb, _ := st.in.ForallInfo(b)
		body, skolems := st.skolemize(fb)
		outer := st.in.FreeVarsOf(a, b)
		if err := st.unify(a, body, mode); err != nil {
			return err
		}
		return st.checkEscape(outer, skolems, a, b)
	case ta.Kind == types.KindForall:
		fa, _ := st.in.ForallInfo(a)
		return st.unify(st.instantiate(fa), b, mode)
	default:
		fb, _ := st.in.ForallInfo(b)
		return st.unify(a, st.instantiate(fb), mode)
	}
}

func bindFresh(in *types.Interner, s *Subst, v types.VarID, sort types.VarSort, to types.VarID) {
	if sort == types.SortRow {
		s.BindRow(v, in.Row(nil, to))
		return
	}
	s.BindType(v, in.Var(to))
}

func (st *state) skolemize(info types.ForallInfo) (types.TypeID, []types.VarID) {
	ren := NewSubst()
	skolems := make([]types.VarID, len(info.Vars))
	for i, v := range info.Vars {
		vi, _ := st.in.VarInfo(v)
		sk := st.in.Skolem(vi.Name, vi.Sort, vi.Constraints...)
		skolems[i] = sk
		bindFresh(st.in, ren, v, vi.Sort, sk)
	}
	return ren.Apply(st.in, info.Body), skolems
}

func (st *state) instantiate(info types.ForallInfo) types.TypeID {
	ren := NewSubst()
	for _, v := range info.Vars {
		vi, _ := st.in.VarInfo(v)
		bindFresh(st.in, ren, v, vi.Sort, st.in.Fresh(vi.Sort, vi.Constraints...))
	}
	return ren.Apply(st.in, info.Body)
}

func (st *state) checkEscape(outer types.FreeVars, skolems []types.VarID, a, b types.TypeID) error {
	check := func(fv types.FreeVars) bool {
		for _, sk := range skolems {
			if fv.HasType(sk) || fv.HasRow(sk) {
				return true
			}
		}
		return false
	}
	for _, v := range outer.Types {
		if check(st.in.FreeVarsOf(st.s.Apply(st.in, st.in.Var(v)))) {
			err := st.fail(ErrTypeMismatch, a, b)
			err.Detail = "quantified variable escapes its scope"
			return err
		}
	}
	for _, v := range outer.Rows {
		if check(st.in.FreeVarsOfRow(st.s.ApplyRow(st.in, st.in.Row(nil, v)))) {
			err := st.fail(ErrTypeMismatch, a, b)
			err.Detail = "quantified variable escapes its scope"
			return err
		}
	}
	return nil
}
