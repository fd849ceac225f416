package driver

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"mdisp/internal/ambiguity"
	"mdisp/internal/config"
	"mdisp/internal/diag"
	"mdisp/internal/dispatch"
	"mdisp/internal/rtdispatch"
	"mdisp/internal/specificity"
	"mdisp/internal/stability"
	"mdisp/internal/unify"
)

type analyses struct {
	bags []*diag.Bag // one per pass, merged in this order
}

// NewResolver builds the static resolver for a lowered program with the
// configured unification depth.
func NewResolver(res *Result, cfg config.Config) (*dispatch.Resolver, *unify.Unifier) {
	u := unify.New(res.Program.Interner, res.Program.Lattice)
	if cfg.Check.MaxUnifyDepth > 0 {
		u.MaxDepth = cfg.Check.MaxUnifyDepth
	}
	return dispatch.NewResolver(res.Program.Registry, u, specificity.New(u)), u
}

func (r *run) analyze(ctx context.Context, res *Result) (*analyses, error) {
	cfg := r.opts.Config
	jobs := r.opts.jobs()
	resolver, u := NewResolver(res, cfg)
	res.Resolver = resolver
	prog := res.Program
	in := prog.Interner

	sev := cfg.Check.Severity()

	ambBag, stbBag, callBag, rtBag := diag.NewBag(0), diag.NewBag(0), diag.NewBag(0), diag.NewBag(0)
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Check.Ambiguity != config.AmbiguityLazy {
		g.Go(func() error {
			return r.phase(gctx, "ambiguity", func(ctx context.Context) (string, error) {
				det := ambiguity.New(prog.Registry, u, resolver.Comparator())
				ambs, err := det.All(ctx, jobs)
				if err != nil {
					return "", err
				}
				res.Ambiguities = ambs
				ambiguity.Report(diag.BagReporter{Bag: ambBag}, in, ambs, sev)
				return fmt.Sprintf("ambiguities=%d", len(ambs)), nil
			})
		})
	}

	g.Go(func() error {
		return r.phase(gctx, "stability", func(ctx context.Context) (string, error) {
			results, err := stability.New(u).CheckAll(ctx, prog.Registry, jobs)
			if err != nil {
				return "", err
			}
			res.Stability = results
			stability.Report(diag.BagReporter{Bag: stbBag}, results)
			return fmt.Sprintf("unstable=%d", stbBag.Len()), nil
		})
	})

	g.Go(func() error {
		return r.phase(gctx, "calls", func(ctx context.Context) (string, error) {
			calls, err := resolveCalls(ctx, resolver, res, jobs)
			if err != nil {
				return "", err
			}
			res.Calls = calls
			failed := 0
			for _, c := range calls {
				if c.Err != nil {
					failed++
					dispatch.Report(diag.BagReporter{Bag: callBag}, in, c.Err, c.Site.Span)
				}
			}
			return fmt.Sprintf("calls=%d failed=%d", len(calls), failed), nil
		})
	})

	if !r.opts.SkipTable {
		g.Go(func() error {
			return r.phase(gctx, "runtime_table", func(ctx context.Context) (string, error) {
				table, err := BuildTable(ctx, res, cfg)
				if err != nil {
					return "", err
				}
				res.Table = table
				reportTable(diag.BagReporter{Bag: rtBag}, res, table)
				return fmt.Sprintf("entries=%d collisions=%d", len(table.Entries()), len(table.Collisions())), nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &analyses{bags: []*diag.Bag{ambBag, stbBag, callBag, rtBag}}, nil
}

// resolveCalls resolves every static call site, at most jobs at a time.
// Results keep declaration order.
func resolveCalls(ctx context.Context, resolver *dispatch.Resolver, res *Result, jobs int) ([]CallResult, error) {
	sites := res.Program.Calls
	out := make([]CallResult, len(sites))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, site := range sites {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = CallResult{Site: site}
			r, err := resolver.Resolve(site.Name, site.Args, site.Effects, dispatch.Options{Qualifier: site.Qualifier})
			if err != nil {
				var derr *dispatch.Error
				if !errors.As(err, &derr) {
					return err
				}
				out[i].Err = derr
				return nil
			}
			out[i].Resolution = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// BuildTable seeds the runtime table with every ground signature plus the
// declared dynamic calls.
func BuildTable(ctx context.Context, res *Result, cfg config.Config) (*rtdispatch.Table, error) {
	seeds := rtdispatch.GroundSeeds(res.Program.Registry)
	for _, d := range res.Program.Dynamic {
		seeds = append(seeds, rtdispatch.Seed{Name: d.Name, Args: d.Args, Span: d.Span})
	}
	return rtdispatch.Build(ctx, res.Resolver, seeds, cfg.RuntimeOptions())
}

// reportTable flags dynamic calls the table cannot serve and fingerprint
// tuples shared by several methods. Failed ground seeds are left to the
// ambiguity pass.
func reportTable(r diag.Reporter, res *Result, t *rtdispatch.Table) {
	dynamic := make(map[string]struct{}, len(res.Program.Dynamic))
	for _, d := range res.Program.Dynamic {
		dynamic[d.Span.String()] = struct{}{}
	}
	for _, u := range t.Unresolved() {
		if _, ok := dynamic[u.Seed.Span.String()]; !ok {
			continue
		}
		b := diag.ReportError(r, diag.RtdUnresolved, u.Seed.Span, "dynamic call cannot be dispatched at runtime: "+u.Err.Error())
		var derr *dispatch.Error
		if errors.As(u.Err, &derr) {
			for _, m := range derr.Candidates {
				b.WithNote(m.Span, "candidate "+m.Signature(res.Program.Interner))
			}
		}
		b.Emit()
	}
	in := res.Program.Interner
	for _, c := range t.Collisions() {
		first := c.Methods[0]
		b := diag.ReportInfo(r, diag.RtdFingerprintCollision, first.Span,
			fmt.Sprintf("%s: %d methods share fingerprint tuple %06x; lookups compare full type identities",
				c.Name, len(c.Methods), c.Fingerprints))
		for _, m := range c.Methods[1:] {
			b.WithNotef(m.Span, "shares the fingerprint: %s", m.Signature(in))
		}
		b.Emit()
	}
}
