// Package specificity orders method signatures by how specific they are.
package specificity

import (
	"fmt"
	"sync"

	"mdisp/internal/registry"
	"mdisp/internal/types"
	"mdisp/internal/unify"
)

// Ordering is the result of comparing two methods.
type Ordering uint8

const (
	Incomparable Ordering = iota
	MoreSpecific
	LessSpecific
	Equivalent
)

func (o Ordering) String() string {
	switch o {
	case Incomparable:
		return "incomparable"
	case MoreSpecific:
		return "more specific"
	case LessSpecific:
		return "less specific"
	case Equivalent:
		return "equivalent"
	default:
		return fmt.Sprintf("Ordering(%d)", o)
	}
}

// Reverse swaps the roles of the two compared methods.
func (o Ordering) Reverse() Ordering {
	switch o {
	case MoreSpecific:
		return LessSpecific
	case LessSpecific:
		return MoreSpecific
	default:
		return o
	}
}

// Comparator decides the partial order. Results are memoized per method pair;
// it is safe for concurrent use once the registry is frozen.
type Comparator struct {
	in   *types.Interner
	u    *unify.Unifier
	memo sync.Map // [2]registry.MethodID -> Ordering
}

// New creates a comparator.
func New(u *unify.Unifier) *Comparator {
	return &Comparator{in: u.Interner(), u: u}
}

// Compare orders m1 relative to m2: parameters first; effect rows only break
// ties between signatures whose parameters are mutually applicable.
func (c *Comparator) Compare(m1, m2 *registry.Method) Ordering {
	if m1.ID == m2.ID {
		return Equivalent
	}
	key := [2]registry.MethodID{m1.ID, m2.ID}
	if m1.ID.IsValid() && m2.ID.IsValid() {
		if v, ok := c.memo.Load(key); ok {
			return v.(Ordering)
		}
	}
	ord := c.compare(m1, m2)
	if m1.ID.IsValid() && m2.ID.IsValid() {
		c.memo.Store(key, ord)
		c.memo.Store([2]registry.MethodID{m2.ID, m1.ID}, ord.Reverse())
	}
	return ord
}

// MoreSpecific reports whether m1 is strictly more specific than m2.
func (c *Comparator) MoreSpecific(m1, m2 *registry.Method) bool {
	return c.Compare(m1, m2) == MoreSpecific
}

func (c *Comparator) compare(m1, m2 *registry.Method) Ordering {
	if len(m1.Params) != len(m2.Params) {
		return Incomparable
	}
	s12, le12 := c.paramsLE(m1, m2)
	s21, le21 := c.paramsLE(m2, m1)
	switch {
	case le12 && !le21:
		return MoreSpecific
	case le21 && !le12:
		return LessSpecific
	case !le12 && !le21:
		return Incomparable
	}
	e12 := c.u.RowIncluded(m1.Effects, s12.effects, s12.subst)
	e21 := c.u.RowIncluded(m2.Effects, s21.effects, s21.subst)
	switch {
	case e12 && e21:
		return Equivalent
	case e12:
		return MoreSpecific
	case e21:
		return LessSpecific
	default:
		return Incomparable
	}
}

type match struct {
	subst   *unify.Subst
	effects types.RowID
}

// paramsLE reports whether every parameter of lo is a subtype-or-instance of
// the matching parameter of hi. lo keeps its variables rigid; hi is instantiated.
func (c *Comparator) paramsLE(lo, hi *registry.Method) (match, bool) {
	inst := registry.Instantiate(c.in, hi)
	s, err := c.u.MatchArgs(inst.Params, lo.Params, nil)
	if err != nil {
		return match{}, false
	}
	return match{subst: s, effects: inst.Effects}, true
}
