// Package dispatch resolves a call site to the unique most specific method of
// its family given the static argument types and the caller's effect context.
package dispatch

import (
	"cmp"
	"slices"

	"mdisp/internal/registry"
	"mdisp/internal/specificity"
	"mdisp/internal/types"
	"mdisp/internal/unify"
)

// Options tune a single resolution.
type Options struct {
	// Qualifier restricts candidates to methods declared by this trait.
	Qualifier string
}

// Resolution is a successful dispatch: the bound method plus its instantiated
// signature. Applicable and Maximal describe how the winner was chosen.
type Resolution struct {
	Method     *registry.Method
	Subst      *unify.Subst
	Params     []types.TypeID
	Result     types.TypeID
	Effects    types.RowID
	Applicable []*registry.Method
	Maximal    []*registry.Method
}

// Resolver performs static dispatch against a frozen registry.
// It is safe for concurrent use.
type Resolver struct {
	reg *registry.Registry
	in  *types.Interner
	u   *unify.Unifier
	cmp *specificity.Comparator
}

// NewResolver creates a resolver.
func NewResolver(reg *registry.Registry, u *unify.Unifier, cmp *specificity.Comparator) *Resolver {
	if cmp == nil {
		cmp = specificity.New(u)
	}
	return &Resolver{reg: reg, in: reg.Interner(), u: u, cmp: cmp}
}

// Registry returns the registry the resolver reads.
func (r *Resolver) Registry() *registry.Registry { return r.reg }

// Comparator returns the specificity comparator in use.
func (r *Resolver) Comparator() *specificity.Comparator { return r.cmp }

type candidate struct {
	inst  registry.Instance
	subst *unify.Subst
}

// Resolve picks the method for name(args) under the effect context effects.
// NoRowID as context means the caller's effects are unconstrained, and so
// does an open context row.
func (r *Resolver) Resolve(name string, args []types.TypeID, effects types.RowID, opts Options) (*Resolution, error) {
	family := r.reg.Family(name)
	fail := func(kind ErrorKind) *Error {
		return &Error{Kind: kind, Name: name, Args: r.labels(args)}
	}
	if len(family) == 0 {
		return nil, fail(NoMethodFound)
	}

	var rejections []Rejection
	pool := family
	if opts.Qualifier != "" {
		pool = nil
		for _, m := range family {
			if m.Trait == opts.Qualifier {
				pool = append(pool, m)
			} else {
				rejections = append(rejections, Rejection{Method: m, Reason: errNotInTrait(opts.Qualifier)})
			}
		}
	}

	var applicable []candidate
	for _, m := range pool {
		inst := registry.Instantiate(r.in, m)
		s, err := r.u.MatchArgs(inst.Params, args, nil)
		if err != nil {
			rejections = append(rejections, Rejection{Method: m, Reason: err})
			continue
		}
		applicable = append(applicable, candidate{inst: inst, subst: s})
	}
	if len(applicable) == 0 {
		err := fail(NoMethodFound)
		err.Candidates = r.sorted(family)
		err.Rejections = sortRejections(r.in, rejections)
		return nil, err
	}

	if effects != types.NoRowID {
		if ctx, _ := r.in.RowInfo(effects); !ctx.Open() {
			allowed := applicable[:0:0]
			required := make(map[string][]string)
			for _, c := range applicable {
				if r.u.RowIncluded(c.inst.Effects, effects, c.subst) {
					allowed = append(allowed, c)
					continue
				}
				required[c.inst.Method.Signature(r.in)] = r.missingEffects(c, effects)
			}
			if len(allowed) == 0 {
				err := fail(EffectNotAllowed)
				err.Candidates = r.sorted(methodsOf(applicable))
				err.Required = required
				err.Available = types.RowLabel(r.in, effects)
				return nil, err
			}
			applicable = allowed
		}
	}

	if opts.Qualifier == "" {
		if traits := traitsOf(applicable); len(traits) > 1 {
			err := fail(AmbiguousTrait)
			err.Candidates = r.sorted(traitMethods(applicable))
			err.Traits = traits
			return nil, err
		}
	}

	maximal := r.maximal(applicable)
	if len(maximal) == 1 {
		w := maximal[0]
		return &Resolution{
			Method:     w.inst.Method,
			Subst:      w.subst,
			Params:     w.subst.ApplyAll(r.in, w.inst.Params),
			Result:     w.subst.Apply(r.in, w.inst.Result),
			Effects:    w.subst.ApplyRow(r.in, w.inst.Effects),
			Applicable: r.sorted(methodsOf(applicable)),
			Maximal:    []*registry.Method{w.inst.Method},
		}, nil
	}

	err := fail(AmbiguousDispatch)
	err.Candidates = r.sorted(methodsOf(maximal))
	return nil, err
}

// traitsOf lists the distinct traits declaring an applicable method. Two or
// more make an unqualified call ambiguous even when one overload is more
// specific than the other.
func traitsOf(cs []candidate) []string {
	var traits []string
	for _, c := range cs {
		if t := c.inst.Method.Trait; t != "" && !slices.Contains(traits, t) {
			traits = append(traits, t)
		}
	}
	slices.Sort(traits)
	return traits
}

func traitMethods(cs []candidate) []*registry.Method {
	var out []*registry.Method
	for _, c := range cs {
		if c.inst.Method.Trait != "" {
			out = append(out, c.inst.Method)
		}
	}
	return out
}

// maximal keeps candidates no other candidate is strictly more specific than.
func (r *Resolver) maximal(cs []candidate) []candidate {
	var out []candidate
	for i, c := range cs {
		dominated := false
		for j, o := range cs {
			if i != j && r.cmp.MoreSpecific(o.inst.Method, c.inst.Method) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, c)
		}
	}
	return out
}

func (r *Resolver) missingEffects(c candidate, ctx types.RowID) []string {
	row, _ := r.in.RowInfo(c.subst.ApplyRow(r.in, c.inst.Effects))
	ctxInfo, _ := r.in.RowInfo(ctx)
	have := make(map[string]struct{}, len(ctxInfo.Labels))
	for _, l := range ctxInfo.Labels {
		have[r.in.HeadName(l)] = struct{}{}
	}
	var out []string
	for _, l := range row.Labels {
		if _, ok := have[r.in.HeadName(l)]; !ok {
			out = append(out, types.Label(r.in, l))
		}
	}
	if row.Open() {
		out = append(out, "| "+types.VarLabel(r.in, row.Tail))
	}
	slices.Sort(out)
	return out
}

func (r *Resolver) labels(args []types.TypeID) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = types.Label(r.in, a)
	}
	return out
}

// sorted orders methods by signature text so listings do not depend on
// declaration order.
func (r *Resolver) sorted(ms []*registry.Method) []*registry.Method {
	out := slices.Clone(ms)
	slices.SortStableFunc(out, func(a, b *registry.Method) int {
		return cmp.Or(cmp.Compare(a.Signature(r.in), b.Signature(r.in)), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func sortRejections(in *types.Interner, rs []Rejection) []Rejection {
	slices.SortStableFunc(rs, func(a, b Rejection) int {
		return cmp.Or(cmp.Compare(a.Method.Signature(in), b.Method.Signature(in)), cmp.Compare(a.Method.ID, b.Method.ID))
	})
	return rs
}

func methodsOf(cs []candidate) []*registry.Method {
	out := make([]*registry.Method, len(cs))
	for i, c := range cs {
		out[i] = c.inst.Method
	}
	return out
}

type notInTraitError string

func (e notInTraitError) Error() string { return "not declared by trait " + string(e) }

func errNotInTrait(trait string) error { return notInTraitError(trait) }
