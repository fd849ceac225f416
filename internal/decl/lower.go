package decl

import (
	"fmt"
	"slices"

	"golang.org/x/text/unicode/norm"

	"mdisp/internal/body"
	"mdisp/internal/constraints"
	"mdisp/internal/diag"
	"mdisp/internal/registry"
	"mdisp/internal/source"
	"mdisp/internal/types"
)

// Program is everything declared across a set of files. Lattice and Registry
// are frozen.
type Program struct {
	Interner *types.Interner
	Lattice  *constraints.Lattice
	Registry *registry.Registry
	Effects  []string // declared effect heads in declaration order
	Calls    []CallSite
	Dynamic  []DynamicCall
}

// CallSite is a static call to resolve.
type CallSite struct {
	Name      string
	Args      []types.TypeID
	Effects   types.RowID // NoRowID when the caller's effects are unconstrained
	Qualifier string
	Span      source.Span
}

// DynamicCall is a call whose arguments are only known at runtime.
type DynamicCall struct {
	Name string
	Args []types.TypeID
	Span source.Span
}

type unit struct {
	file *source.File
	ast  *File
}

// Loader collects parsed files and lowers them together, so declarations may
// refer to each other regardless of file or line order.
type Loader struct {
	r     diag.Reporter
	units []unit
}

// NewLoader creates a loader reporting into r.
func NewLoader(r diag.Reporter) *Loader {
	return &Loader{r: r}
}

// Add parses f and queues it. It returns false on a syntax error.
func (l *Loader) Add(f *source.File) bool {
	file, err := Parse(f, l.r)
	if err != nil {
		return false
	}
	l.units = append(l.units, unit{file: f, ast: file})
	return true
}

// Program lowers all queued files.
func (l *Loader) Program() *Program {
	in := types.NewInterner()
	lw := &lowerer{
		r: l.r,
		prog: &Program{
			Interner: in,
			Lattice:  constraints.Default(),
			Registry: registry.New(in),
		},
		effects: make(map[string]source.Span),
	}
	lw.constraints(l.units)
	for _, u := range l.units {
		lw.file = u.file
		for _, d := range u.ast.Decls {
			lw.facts(d)
		}
	}
	lw.prog.Lattice.Freeze()
	for _, u := range l.units {
		lw.file = u.file
		for _, d := range u.ast.Decls {
			switch {
			case d.Fn != nil:
				lw.fn(d.Fn, "")
			case d.Trait != nil:
				for _, m := range d.Trait.Methods {
					lw.fn(m, nfc(d.Trait.Name))
				}
			}
		}
	}
	lw.prog.Registry.Freeze()
	for _, u := range l.units {
		lw.file = u.file
		for _, d := range u.ast.Decls {
			switch {
			case d.Call != nil:
				lw.call(d.Call)
			case d.Dynamic != nil:
				lw.dynamic(d.Dynamic)
			}
		}
	}
	return lw.prog
}

// Load parses and lowers files in one step. Files with syntax errors are
// skipped after reporting.
func Load(files []*source.File, r diag.Reporter) *Program {
	l := NewLoader(r)
	for _, f := range files {
		l.Add(f)
	}
	return l.Program()
}

type lowerer struct {
	r       diag.Reporter
	prog    *Program
	file    *source.File
	effects map[string]source.Span
}

func nfc(s string) string { return norm.NFC.String(s) }

func nfcAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = nfc(s)
	}
	return out
}

func (lw *lowerer) errorf(code diag.Code, sp source.Span, format string, args ...any) {
	diag.ReportError(lw.r, code, sp, fmt.Sprintf(format, args...)).Emit()
}

type pendingConstraint struct {
	file *source.File
	decl *ConstraintDecl
}

// constraints declares constraints until no more can be added, so a
// constraint may name a super declared later.
func (lw *lowerer) constraints(units []unit) {
	var pending []pendingConstraint
	for _, u := range units {
		for _, d := range u.ast.Decls {
			if d.Constraint != nil {
				pending = append(pending, pendingConstraint{file: u.file, decl: d.Constraint})
			}
		}
	}
	lat := lw.prog.Lattice
	for progress := true; progress && len(pending) > 0; {
		progress = false
		rest := pending[:0]
		for _, p := range pending {
			name, supers := nfc(p.decl.Name), nfcAll(p.decl.Supers)
			if slices.ContainsFunc(supers, func(s string) bool { return !lat.Known(s) && s != name }) {
				rest = append(rest, p)
				continue
			}
			progress = true
			if err := lat.DeclareConstraint(name, supers...); err != nil {
				lw.errorf(diag.DclConstraintCycle, spanOf(p.file, p.decl.Pos, p.decl.EndPos), "%v", err)
			}
		}
		pending = rest
	}
	for _, p := range pending {
		name := nfc(p.decl.Name)
		for _, s := range nfcAll(p.decl.Supers) {
			if !lat.Known(s) {
				lw.errorf(diag.DclUnknownConstraint, spanOf(p.file, p.decl.Pos, p.decl.EndPos),
					"constraint %s: unknown super-constraint %s", name, s)
				break
			}
		}
	}
}

// facts handles effect, impl and subtype declarations.
func (lw *lowerer) facts(d *Decl) {
	lat := lw.prog.Lattice
	switch {
	case d.Effect != nil:
		name := nfc(d.Effect.Name)
		sp := spanOf(lw.file, d.Effect.Pos, d.Effect.EndPos)
		if _, dup := lw.effects[name]; dup {
			diag.ReportWarning(lw.r, diag.DclDuplicateEffect, sp, "effect "+name+" declared twice").
				WithNote(lw.effects[name], "first declared here").
				Emit()
			return
		}
		lw.effects[name] = sp
		lw.prog.Effects = append(lw.prog.Effects, name)
	case d.Impl != nil:
		head, cs := nfc(d.Impl.Head), nfcAll(d.Impl.Constraints)
		known := cs[:0:0]
		for _, c := range cs {
			if lat.Known(c) {
				known = append(known, c)
				continue
			}
			lw.errorf(diag.DclUnknownConstraint, spanOf(lw.file, d.Impl.Pos, d.Impl.EndPos),
				"impl %s: unknown constraint %s", head, c)
		}
		if err := lat.DeclareImpl(head, known...); err != nil {
			lw.errorf(diag.DclUnknownConstraint, spanOf(lw.file, d.Impl.Pos, d.Impl.EndPos), "%v", err)
		}
	case d.Subtype != nil:
		if err := lat.DeclareSubtype(nfc(d.Subtype.Sub), nfc(d.Subtype.Super)); err != nil {
			lw.errorf(diag.DclSubtypeCycle, spanOf(lw.file, d.Subtype.Pos, d.Subtype.EndPos), "%v", err)
		}
	}
}

// scopeMode decides what an unbound tail name means.
type scopeMode uint8

const (
	// modeSignature quantifies unbound tails implicitly.
	modeSignature scopeMode = iota
	// modeCall makes open tails fresh flexible variables.
	modeCall
	// modeBody requires tails to be bound by the signature.
	modeBody
)

type scope struct {
	mode  scopeMode
	tvars map[string]types.VarID
	rvars map[string]types.VarID
}

func newScope(mode scopeMode) *scope {
	return &scope{mode: mode, tvars: make(map[string]types.VarID), rvars: make(map[string]types.VarID)}
}

func (lw *lowerer) fn(d *FnDecl, trait string) {
	in := lw.prog.Interner
	sp := spanOf(lw.file, d.Pos, d.EndPos)
	sc := newScope(modeSignature)
	params := make([]registry.TypeParam, 0, len(d.TypeParams))
	for _, tp := range d.TypeParams {
		name := nfc(tp.Name)
		if _, dup := sc.tvars[name]; dup {
			lw.errorf(diag.DclDuplicateParam, sp, "fn %s: duplicate type parameter %s", d.Name, name)
			continue
		}
		var cs []string
		for _, c := range nfcAll(tp.Constraints) {
			if !lw.prog.Lattice.Known(c) {
				lw.errorf(diag.DclUnknownConstraint, sp, "fn %s: unknown constraint %s on %s", d.Name, c, name)
				continue
			}
			cs = append(cs, c)
		}
		v := in.NewVar(name, types.SortType, true, cs...)
		sc.tvars[name] = v
		params = append(params, registry.TypeParam{Var: v, Name: name, Constraints: cs})
	}

	m := registry.Method{
		Name:       nfc(d.Name),
		Trait:      trait,
		TypeParams: params,
		Params:     make([]types.TypeID, len(d.Params)),
		Result:     in.Con("Unit"),
		Effects:    in.Pure(),
		Span:       sp,
	}
	for i, p := range d.Params {
		m.Params[i] = lw.typ(sc, p.Type)
	}
	if d.Result != nil {
		m.Result = lw.typ(sc, d.Result)
	}
	if d.Effects != nil {
		m.Effects = lw.row(sc, d.Effects)
	}
	if d.Body != nil {
		sc.mode = modeBody
		m.Body = lw.block(sc, d.Body)
	}
	if _, err := lw.prog.Registry.Register(m); err != nil {
		lw.errorf(diag.DclRegister, sp, "%v", err)
	}
}

func (lw *lowerer) call(d *CallDecl) {
	sc := newScope(modeCall)
	site := CallSite{
		Name:      nfc(d.Name),
		Args:      lw.typeList(sc, d.Args),
		Effects:   types.NoRowID,
		Qualifier: nfc(d.Via),
		Span:      spanOf(lw.file, d.Pos, d.EndPos),
	}
	if d.Effects != nil {
		site.Effects = lw.row(sc, d.Effects)
	}
	lw.prog.Calls = append(lw.prog.Calls, site)
}

func (lw *lowerer) dynamic(d *DynamicDecl) {
	lw.prog.Dynamic = append(lw.prog.Dynamic, DynamicCall{
		Name: nfc(d.Name),
		Args: lw.typeList(newScope(modeCall), d.Args),
		Span: spanOf(lw.file, d.Pos, d.EndPos),
	})
}

func (lw *lowerer) typeList(sc *scope, ts []*Type) []types.TypeID {
	out := make([]types.TypeID, len(ts))
	for i, t := range ts {
		out[i] = lw.typ(sc, t)
	}
	return out
}

func (lw *lowerer) typ(sc *scope, t *Type) types.TypeID {
	in := lw.prog.Interner
	switch {
	case t.Fn != nil:
		effects := in.Pure()
		if t.Fn.Effects != nil {
			effects = lw.row(sc, t.Fn.Effects)
		}
		return in.Fn(lw.typeList(sc, t.Fn.Params), lw.typ(sc, t.Fn.Result), effects)
	case t.Forall != nil:
		names := nfcAll(t.Forall.Vars)
		vars := make([]types.VarID, len(names))
		saved := make(map[string]types.VarID, len(names))
		for i, n := range names {
			if prev, ok := sc.tvars[n]; ok {
				saved[n] = prev
			}
			vars[i] = in.NewVar(n, types.SortType, true)
			sc.tvars[n] = vars[i]
		}
		bodyT := lw.typ(sc, t.Forall.Body)
		for _, n := range names {
			if prev, ok := saved[n]; ok {
				sc.tvars[n] = prev
			} else {
				delete(sc.tvars, n)
			}
		}
		return in.Forall(vars, bodyT)
	case t.Record != nil:
		fields := make([]types.Field, 0, len(t.Record.Fields))
		seen := make(map[string]struct{}, len(t.Record.Fields))
		for _, f := range t.Record.Fields {
			name := nfc(f.Name)
			if _, dup := seen[name]; dup {
				lw.errorf(diag.DclRegister, spanOf(lw.file, t.Pos, t.EndPos), "duplicate record field %s", name)
				continue
			}
			seen[name] = struct{}{}
			fields = append(fields, types.Field{Name: name, Type: lw.typ(sc, f.Type)})
		}
		tail := types.NoVarID
		if t.Record.Tail != "" {
			tail = lw.tail(sc, sc.tvars, nfc(t.Record.Tail), types.SortType, spanOf(lw.file, t.Pos, t.EndPos))
		}
		return in.Record(fields, tail)
	default:
		return lw.named(sc, t.Named)
	}
}

func (lw *lowerer) named(sc *scope, n *NamedType) types.TypeID {
	in := lw.prog.Interner
	name := nfc(n.Name)
	var head types.TypeID
	if v, ok := sc.tvars[name]; ok {
		head = in.Var(v)
	} else {
		head = in.Con(name)
	}
	if len(n.Args) == 0 {
		return head
	}
	return in.App(head, lw.typeList(sc, n.Args)...)
}

func (lw *lowerer) row(sc *scope, r *Row) types.RowID {
	in := lw.prog.Interner
	if r.Pure {
		return in.Pure()
	}
	sp := spanOf(lw.file, r.Pos, r.EndPos)
	labels := make([]types.TypeID, 0, len(r.Labels))
	heads := make(map[string]struct{}, len(r.Labels))
	for _, l := range r.Labels {
		head := nfc(l.Name)
		if _, ok := lw.effects[head]; !ok {
			lw.errorf(diag.DclUnknownEffect, spanOf(lw.file, l.Pos, l.EndPos), "undeclared effect %s", head)
		}
		if _, dup := heads[head]; dup {
			lw.errorf(diag.DclDuplicateEffect, sp, "effect %s appears twice in one row", head)
			continue
		}
		heads[head] = struct{}{}
		labels = append(labels, lw.named(sc, l))
	}
	tail := types.NoVarID
	if r.Tail != "" {
		tail = lw.tail(sc, sc.rvars, nfc(r.Tail), types.SortRow, sp)
	}
	return in.Row(labels, tail)
}

// tail resolves an open record or row tail according to the scope mode.
func (lw *lowerer) tail(sc *scope, vars map[string]types.VarID, name string, sort types.VarSort, sp source.Span) types.VarID {
	in := lw.prog.Interner
	if v, ok := vars[name]; ok {
		return v
	}
	var v types.VarID
	switch sc.mode {
	case modeCall:
		v = in.NewVar(name, sort, false)
	case modeBody:
		lw.errorf(diag.DclUnknownTypeVar, sp, "%s variable %s is not bound by the signature", sort, name)
		v = in.NewVar(name, sort, true)
	default:
		v = in.NewVar(name, sort, true)
	}
	vars[name] = v
	return v
}

func (lw *lowerer) block(sc *scope, b *Block) *body.Block {
	out := &body.Block{At: spanOf(lw.file, b.Pos, b.EndPos)}
	for i, item := range b.Items {
		n := lw.expr(sc, item.Expr)
		if i == len(b.Items)-1 && !item.Semi {
			out.Tail = n
			continue
		}
		out.Stmts = append(out.Stmts, n)
	}
	return out
}

func (lw *lowerer) expr(sc *scope, e *BodyExpr) body.Node {
	in := lw.prog.Interner
	sp := spanOf(lw.file, e.Pos, e.EndPos)
	switch {
	case e.If != nil:
		return lw.ifExpr(sc, e.If, sp)
	case e.Match != nil:
		m := &body.Match{At: sp}
		for _, arm := range e.Match.Arms {
			m.Arms = append(m.Arms, lw.block(sc, arm))
		}
		return m
	case e.Return != nil:
		ret := &body.Return{At: sp}
		if e.Return.Value != nil {
			ret.Value = lw.expr(sc, e.Return.Value)
		}
		return ret
	case e.Perform != nil:
		return &body.Perform{Effect: lw.named(sc, e.Perform), At: sp}
	case e.Call != nil:
		c := &body.Call{Name: nfc(e.Call.Name), Result: in.Con("Unit"), Effects: in.Pure(), At: sp}
		if e.Call.Result != nil {
			c.Result = lw.typ(sc, e.Call.Result)
		}
		if e.Call.Effects != nil {
			c.Effects = lw.row(sc, e.Call.Effects)
		}
		return c
	case e.Diverge:
		return &body.Diverge{At: sp}
	case e.Do != nil:
		return lw.block(sc, e.Do)
	default:
		t := lw.typ(sc, e.Value)
		return &body.Expr{Type: t, Desc: types.Label(in, t), At: sp}
	}
}

func (lw *lowerer) ifExpr(sc *scope, e *IfExpr, sp source.Span) *body.If {
	n := &body.If{Then: lw.block(sc, e.Then), At: sp}
	switch {
	case e.ElseIf != nil:
		n.Else = lw.ifExpr(sc, e.ElseIf, sp)
	case e.Else != nil:
		n.Else = lw.block(sc, e.Else)
	}
	return n
}
