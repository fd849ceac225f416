package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"mdisp/internal/decl"
	"mdisp/internal/registry"
	"mdisp/internal/source"
	"mdisp/internal/specificity"
)

// CheckSpanInvariants runs a minimal set of span invariants on a loaded file:
// 1) every method and call span is non-empty and within file content bounds
// 2) every body node span is contained in its method span
func CheckSpanInvariants(prog *decl.Program, sf *source.File) error {
	if prog == nil || sf == nil {
		return fmt.Errorf("nil program or file")
	}
	lenContent, err := safecast.Conv[uint32](len(sf.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	check := func(what string, sp source.Span) error {
		if sp.File != sf.ID {
			return fmt.Errorf("%s span file mismatch: got=%d want=%d", what, sp.File, sf.ID)
		}
		if sp.End <= sp.Start {
			return fmt.Errorf("empty %s span: %v", what, sp)
		}
		if sp.End > lenContent {
			return fmt.Errorf("%s span end beyond content: %d > %d", what, sp.End, lenContent)
		}
		return nil
	}
	for _, m := range prog.Registry.Methods() {
		if err := check("method "+m.Name, m.Span); err != nil {
			return err
		}
		if m.Body == nil {
			continue
		}
		if sp := m.Body.At; sp.Start < m.Span.Start || sp.End > m.Span.End {
			return fmt.Errorf("body span %v is outside method span %v", sp, m.Span)
		}
	}
	for _, c := range prog.Calls {
		if err := check("call "+c.Name, c.Span); err != nil {
			return err
		}
	}
	return nil
}

// CheckSpecificityInvariants verifies that the comparator is a partial order
// on the family: reflexive, antisymmetric and consistent in both directions.
func CheckSpecificityInvariants(cmp *specificity.Comparator, family []*registry.Method) error {
	for _, a := range family {
		if got := cmp.Compare(a, a); got != specificity.Equivalent {
			return fmt.Errorf("method %d is %s than itself", a.ID, got)
		}
		for _, b := range family {
			ab, ba := cmp.Compare(a, b), cmp.Compare(b, a)
			if ab != ba.Reverse() {
				return fmt.Errorf("compare(%d, %d) = %s but compare(%d, %d) = %s", a.ID, b.ID, ab, b.ID, a.ID, ba)
			}
			if ab == specificity.MoreSpecific && ba == specificity.MoreSpecific {
				return fmt.Errorf("methods %d and %d are each more specific than the other", a.ID, b.ID)
			}
			for _, c := range family {
				if cmp.MoreSpecific(a, b) && cmp.MoreSpecific(b, c) && !cmp.MoreSpecific(a, c) {
					return fmt.Errorf("specificity not transitive over %d, %d, %d", a.ID, b.ID, c.ID)
				}
			}
		}
	}
	return nil
}
