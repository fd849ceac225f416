package types

import "github.com/cespare/xxhash/v2"

// FreeVars lists the free variables of a type in order of first occurrence.
// Type variables include open record tails; row variables come from effect-row tails.
type FreeVars struct {
	Types []VarID
	Rows  []VarID
}

// Empty reports whether no free variable was found.
func (fv FreeVars) Empty() bool { return len(fv.Types) == 0 && len(fv.Rows) == 0 }

// HasType reports whether v occurs among the free type variables.
func (fv FreeVars) HasType(v VarID) bool {
	for _, x := range fv.Types {
		if x == v {
			return true
		}
	}
	return false
}

// HasRow reports whether v occurs among the free row variables.
func (fv FreeVars) HasRow(v VarID) bool {
	for _, x := range fv.Rows {
		if x == v {
			return true
		}
	}
	return false
}

type fvWalker struct {
	in    *Interner
	out   FreeVars
	seen  map[VarID]struct{}
	bound map[VarID]int
}

func newFVWalker(in *Interner) *fvWalker {
	return &fvWalker{in: in, seen: make(map[VarID]struct{}), bound: make(map[VarID]int)}
}

// FreeVarsOf collects the free variables of the given types.
func (in *Interner) FreeVarsOf(ids ...TypeID) FreeVars {
	w := newFVWalker(in)
	for _, id := range ids {
		w.typ(id)
	}
	return w.out
}

// FreeVarsOfRow collects the free variables of an effect row.
func (in *Interner) FreeVarsOfRow(id RowID) FreeVars {
	w := newFVWalker(in)
	w.row(id)
	return w.out
}

func (w *fvWalker) add(v VarID) {
	if v == NoVarID || w.bound[v] > 0 {
		return
	}
	if _, ok := w.seen[v]; ok {
		return
	}
	w.seen[v] = struct{}{}
	info, _ := w.in.VarInfo(v)
	if info.Sort == SortRow {
		w.out.Rows = append(w.out.Rows, v)
	} else {
		w.out.Types = append(w.out.Types, v)
	}
}

func (w *fvWalker) typ(id TypeID) {
	tt, ok := w.in.Lookup(id)
	if !ok {
		return
	}
	switch tt.Kind {
	case KindVar:
		w.add(tt.Var)
	case KindCon:
	case KindApp:
		info, _ := w.in.AppInfo(id)
		w.typ(info.Ctor)
		for _, a := range info.Args {
			w.typ(a)
		}
	case KindFn:
		info, _ := w.in.FnInfo(id)
		for _, p := range info.Params {
			w.typ(p)
		}
		w.typ(info.Result)
		w.row(info.Effects)
	case KindRecord:
		info, _ := w.in.RecordInfo(id)
		for _, f := range info.Fields {
			w.typ(f.Type)
		}
		w.add(info.Tail)
	case KindForall:
		info, _ := w.in.ForallInfo(id)
		for _, v := range info.Vars {
			w.bound[v]++
		}
		w.typ(info.Body)
		for _, v := range info.Vars {
			w.bound[v]--
		}
	}
}

func (w *fvWalker) row(id RowID) {
	info, ok := w.in.RowInfo(id)
	if !ok {
		return
	}
	for _, l := range info.Labels {
		w.typ(l)
	}
	w.add(info.Tail)
}

// IsGround reports whether the type mentions no free variables.
func (in *Interner) IsGround(id TypeID) bool {
	return in.FreeVarsOf(id).Empty()
}

// Identity returns the 64-bit structural identity hash of a type.
// Equal ground types always hash equally; it backs the runtime full type ids.
func (in *Interner) Identity(id TypeID) uint64 {
	return xxhash.Sum64String(Label(in, id))
}
