// Package ambiguity finds pairs of methods in a family that some argument
// types select equally well.
package ambiguity

import (
	"cmp"
	"context"
	"slices"
	"strconv"

	"golang.org/x/sync/errgroup"

	"mdisp/internal/registry"
	"mdisp/internal/specificity"
	"mdisp/internal/trace"
	"mdisp/internal/types"
	"mdisp/internal/unify"
)

// Ambiguity is a genuine overlap: arguments of types Overlap match both A and
// B, and neither method is more specific than the other.
type Ambiguity struct {
	A, B    *registry.Method
	Overlap []types.TypeID
	// Diamond is set when A and B come from different traits, so a qualified
	// call still resolves.
	Diamond bool
}

// Detector runs the pairwise analysis over a frozen registry.
type Detector struct {
	reg *registry.Registry
	in  *types.Interner
	u   *unify.Unifier
	cmp *specificity.Comparator
}

// New creates a detector. A nil comparator is built from u.
func New(reg *registry.Registry, u *unify.Unifier, cmp *specificity.Comparator) *Detector {
	if cmp == nil {
		cmp = specificity.New(u)
	}
	return &Detector{reg: reg, in: reg.Interner(), u: u, cmp: cmp}
}

// Overlap intersects the parameter lists of a and b position by position.
// It reports false when some position has an empty intersection or when a
// merged type variable carries constraints no declared type satisfies.
func (d *Detector) Overlap(a, b *registry.Method) ([]types.TypeID, bool) {
	if len(a.Params) != len(b.Params) {
		return nil, false
	}
	ia := registry.Instantiate(d.in, a)
	ib := registry.Instantiate(d.in, b)
	var s *unify.Subst
	for i := range ia.Params {
		var err error
		if s, err = d.u.Meet(ia.Params[i], ib.Params[i], s); err != nil {
			return nil, false
		}
	}
	overlap := s.ApplyAll(d.in, ia.Params)
	lat := d.u.Lattice()
	for _, v := range d.in.FreeVarsOf(overlap...).Types {
		info, _ := d.in.VarInfo(v)
		if !lat.Inhabited(info.Constraints) {
			return nil, false
		}
	}
	return overlap, true
}

// Pair returns the ambiguity between a and b, if any.
func (d *Detector) Pair(a, b *registry.Method) (Ambiguity, bool) {
	overlap, ok := d.Overlap(a, b)
	if !ok {
		return Ambiguity{}, false
	}
	switch d.cmp.Compare(a, b) {
	case specificity.MoreSpecific, specificity.LessSpecific:
		return Ambiguity{}, false
	}
	if d.signature(b) < d.signature(a) {
		a, b = b, a
		overlap, _ = d.Overlap(a, b)
	}
	return Ambiguity{
		A:       a,
		B:       b,
		Overlap: overlap,
		Diamond: a.Trait != "" && b.Trait != "" && a.Trait != b.Trait,
	}, true
}

// Family checks every unordered pair of the family. Results are ordered by
// signature text so they do not depend on declaration order.
func (d *Detector) Family(ctx context.Context, name string) []Ambiguity {
	_, span := trace.StartFamily(ctx, name)
	family := d.reg.Family(name)
	var out []Ambiguity
	for i := range family {
		for j := i + 1; j < len(family); j++ {
			if amb, ok := d.Pair(family[i], family[j]); ok {
				out = append(out, amb)
			}
		}
	}
	slices.SortFunc(out, func(x, y Ambiguity) int {
		return cmp.Or(
			cmp.Compare(d.signature(x.A), d.signature(y.A)),
			cmp.Compare(d.signature(x.B), d.signature(y.B)),
		)
	})
	span.WithExtra("methods", strconv.Itoa(len(family))).
		WithExtra("ambiguous", strconv.Itoa(len(out))).
		End("")
	return out
}

// All checks every family, at most jobs at a time (0 means no limit).
// Results are grouped by family in registration order.
func (d *Detector) All(ctx context.Context, jobs int) ([]Ambiguity, error) {
	ctx, span := trace.Start(ctx, trace.ScopePass, "ambiguity")
	defer span.End("")
	names := d.reg.Families()
	results := make([][]Ambiguity, len(names))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = d.Family(gctx, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []Ambiguity
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (d *Detector) signature(m *registry.Method) string {
	return m.Signature(d.in)
}
