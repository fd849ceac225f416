// Package stability checks that a method's result type is determined by its
// parameter types: the body's result positions agree, fit the declared
// result, and every result variable is fixed by some parameter.
package stability

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"mdisp/internal/registry"
	"mdisp/internal/source"
	"mdisp/internal/trace"
	"mdisp/internal/types"
	"mdisp/internal/unify"
)

// Result is the outcome of checking one method.
type Result struct {
	Method *registry.Method
	// Type is the unified type of the body's result positions; NoTypeID when
	// the method has no body, never returns, or its results conflict.
	Type   types.TypeID
	Errors []*Error
}

// Checker is safe for concurrent use.
type Checker struct {
	in *types.Interner
	u  *unify.Unifier
}

// New creates a checker.
func New(u *unify.Unifier) *Checker {
	return &Checker{in: u.Interner(), u: u}
}

// Check runs every stability rule on m and collects all failures.
func (c *Checker) Check(m *registry.Method) Result {
	res := Result{Method: m}
	var col *collector
	if m.Body != nil {
		col = newCollector(c.in)
		col.value(m.Body)
	}
	res.Errors = append(res.Errors, c.undetermined(m, col)...)
	if col == nil {
		return res
	}
	t, s, err := c.unifyResults(m, col.results)
	if err != nil {
		res.Errors = append(res.Errors, err)
	} else if t != types.NoTypeID {
		if _, serr := c.u.Subsume(t, m.Result, s); serr != nil {
			res.Errors = append(res.Errors, &Error{
				Kind:   ReturnMismatch,
				Method: m,
				Types:  []string{types.Label(c.in, t), types.Label(c.in, m.Result)},
				Spans:  spansOf(col.results[:1]),
				Cause:  serr,
			})
		} else {
			res.Type = t
		}
	}
	if err := c.effects(m, col.effects); err != nil {
		res.Errors = append(res.Errors, err)
	}
	return res
}

// unifyResults folds the result types with the least upper bound, so the
// candidate type does not depend on the order of the branches.
func (c *Checker) unifyResults(m *registry.Method, rs []result) (types.TypeID, *unify.Subst, *Error) {
	if len(rs) == 0 {
		return types.NoTypeID, nil, nil
	}
	var s *unify.Subst
	acc, accAt := rs[0].typ, 0
	for i := 1; i < len(rs); i++ {
		j, s2, err := c.u.Join(acc, rs[i].typ, s)
		if err != nil {
			return types.NoTypeID, nil, &Error{
				Kind:   ConflictingReturns,
				Method: m,
				Types:  []string{rs[accAt].desc, rs[i].desc},
				Spans:  spansOf([]result{rs[accAt], rs[i]}),
				Cause:  err,
			}
		}
		if j != acc && j == s2.Apply(c.in, rs[i].typ) {
			accAt = i
		}
		acc, s = j, s2
	}
	return acc, s, nil
}

func (c *Checker) effects(m *registry.Method, effs []effect) *Error {
	declared, _ := c.in.RowInfo(m.Effects)
	have := make(map[string]struct{}, len(declared.Labels))
	for _, l := range declared.Labels {
		have[c.in.HeadName(l)] = struct{}{}
	}
	var extra []string
	var err *Error
	for _, e := range effs {
		if c.u.RowIncluded(e.row, m.Effects, nil) {
			continue
		}
		if err == nil {
			err = &Error{Kind: EffectsExceedDeclaration, Method: m}
		}
		err.Spans = append(err.Spans, e.at)
		row, _ := c.in.RowInfo(e.row)
		for _, l := range row.Labels {
			if _, ok := have[c.in.HeadName(l)]; !ok {
				extra = append(extra, types.Label(c.in, l))
			}
		}
		if row.Open() && row.Tail != declared.Tail {
			extra = append(extra, "| "+types.VarLabel(c.in, row.Tail))
		}
	}
	if err == nil {
		return nil
	}
	slices.Sort(extra)
	err.Extra = slices.Compact(extra)
	return err
}

// undetermined reports result variables that no parameter fixes. An effect
// variable is exempt when the body exists and never performs it: the body
// then closes the row.
func (c *Checker) undetermined(m *registry.Method, col *collector) []*Error {
	params := c.in.FreeVarsOf(m.Params...)
	result := c.in.FreeVarsOf(m.Result)
	row := c.in.FreeVarsOfRow(m.Effects)

	var errs []*Error
	seen := make(map[types.VarID]struct{})
	for _, v := range append(slices.Clone(result.Types), row.Types...) {
		if _, dup := seen[v]; dup || params.HasType(v) {
			continue
		}
		seen[v] = struct{}{}
		errs = append(errs, &Error{Kind: UndeterminedTypeVariable, Method: m, Var: types.VarLabel(c.in, v)})
	}
	for _, v := range append(slices.Clone(result.Rows), row.Rows...) {
		if _, dup := seen[v]; dup || params.HasRow(v) {
			continue
		}
		seen[v] = struct{}{}
		if col != nil && !col.mentions(v) {
			continue
		}
		errs = append(errs, &Error{Kind: UndeterminedEffectVariable, Method: m, Var: types.VarLabel(c.in, v)})
	}
	return errs
}

func (col *collector) mentions(v types.VarID) bool {
	for _, e := range col.effects {
		if col.in.FreeVarsOfRow(e.row).HasRow(v) {
			return true
		}
	}
	for _, r := range col.results {
		if col.in.FreeVarsOf(r.typ).HasRow(v) {
			return true
		}
	}
	return false
}

// CheckAll checks every registered method, at most jobs at a time (0 means
// no limit). Results follow registration order.
func (c *Checker) CheckAll(ctx context.Context, reg *registry.Registry, jobs int) ([]Result, error) {
	ctx, span := trace.Start(ctx, trace.ScopePass, "stability")
	defer span.End("")
	methods := reg.Methods()
	out := make([]Result, len(methods))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, m := range methods {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, ms := trace.StartMethod(gctx, m.Qualified())
			out[i] = c.Check(m)
			ms.End("")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func spansOf(rs []result) []source.Span {
	out := make([]source.Span, len(rs))
	for i, r := range rs {
		out[i] = r.at
	}
	return out
}
