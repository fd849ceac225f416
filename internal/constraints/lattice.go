// Package constraints holds the constraint lattice, declared implementations
// and nominal subtype edges consulted by unification and specificity.
package constraints

import (
	"errors"
	"fmt"
	"slices"
)

// Any is the top of the lattice; every type satisfies it.
const Any = "Any"

// ErrFrozen is returned by declarations after Freeze.
var ErrFrozen = errors.New("constraint lattice is frozen")

// Lattice is populated during declaration collection and read-only after Freeze.
// Reads are not synchronized: callers must not declare concurrently with checking.
type Lattice struct {
	order    []string            // declaration order, for listings
	supers   map[string][]string // constraint -> direct super-constraints
	impls    map[string][]string // type head -> directly implemented constraints
	heads    []string            // type heads in declaration order
	subtypes map[string][]string // type head -> direct nominal supertypes
	frozen   bool
}

// New returns a lattice containing only Any.
func New() *Lattice {
	l := &Lattice{
		supers:   make(map[string][]string),
		impls:    make(map[string][]string),
		subtypes: make(map[string][]string),
	}
	l.order = append(l.order, Any)
	l.supers[Any] = nil
	return l
}

// Default returns the built-in lattice Copy <: Clone <: Default/Display/Sized <: Any
// plus Numeric and the primitive numeric implementations.
func Default() *Lattice {
	l := New()
	for _, c := range []string{"Default", "Display", "Sized", "Numeric"} {
		l.mustConstraint(c)
	}
	l.mustConstraint("Clone", "Default", "Display", "Sized")
	l.mustConstraint("Copy", "Clone")
	for _, num := range []string{"i8", "i16", "i32", "i64", "u8", "u16", "u32", "u64", "f32", "f64"} {
		l.mustImpl(num, "Copy", "Numeric")
	}
	l.mustImpl("Bool", "Copy")
	l.mustImpl("String", "Clone")
	return l
}

func (l *Lattice) mustConstraint(name string, supers ...string) {
	if err := l.DeclareConstraint(name, supers...); err != nil {
		panic(err)
	}
}

func (l *Lattice) mustImpl(head string, cs ...string) {
	if err := l.DeclareImpl(head, cs...); err != nil {
		panic(err)
	}
}

// DeclareConstraint adds a constraint with its direct super-constraints.
// Supers must already be known. Redeclaring extends the super list.
func (l *Lattice) DeclareConstraint(name string, supers ...string) error {
	if l.frozen {
		return ErrFrozen
	}
	if name == "" {
		return errors.New("empty constraint name")
	}
	for _, s := range supers {
		if !l.Known(s) {
			return fmt.Errorf("constraint %s: unknown super-constraint %s", name, s)
		}
		if s == name || l.Implies([]string{s}, name) {
			return fmt.Errorf("constraint %s: cycle through %s", name, s)
		}
	}
	if _, ok := l.supers[name]; !ok {
		l.order = append(l.order, name)
	}
	l.supers[name] = appendUnique(l.supers[name], supers...)
	return nil
}

// DeclareImpl records that the type head implements the constraints.
func (l *Lattice) DeclareImpl(head string, cs ...string) error {
	if l.frozen {
		return ErrFrozen
	}
	for _, c := range cs {
		if !l.Known(c) {
			return fmt.Errorf("impl %s: unknown constraint %s", head, c)
		}
	}
	l.noteHead(head)
	l.impls[head] = appendUnique(l.impls[head], cs...)
	return nil
}

// DeclareSubtype records the nominal edge sub <: super.
func (l *Lattice) DeclareSubtype(sub, super string) error {
	if l.frozen {
		return ErrFrozen
	}
	if sub == super {
		return nil
	}
	if l.IsSubtype(super, sub) {
		return fmt.Errorf("subtype %s <: %s: cycle", sub, super)
	}
	l.noteHead(sub)
	l.noteHead(super)
	l.subtypes[sub] = appendUnique(l.subtypes[sub], super)
	return nil
}

func (l *Lattice) noteHead(head string) {
	if _, ok := l.impls[head]; !ok {
		l.impls[head] = nil
		l.heads = append(l.heads, head)
	}
}

// Freeze ends declaration collection.
func (l *Lattice) Freeze() { l.frozen = true }

// Frozen reports whether Freeze was called.
func (l *Lattice) Frozen() bool { return l.frozen }

// Known reports whether the constraint was declared.
func (l *Lattice) Known(c string) bool {
	_, ok := l.supers[c]
	return ok
}

// Constraints lists declared constraints in declaration order.
func (l *Lattice) Constraints() []string { return slices.Clone(l.order) }

// Heads lists type heads that have impls or subtype edges, in declaration order.
func (l *Lattice) Heads() []string { return slices.Clone(l.heads) }

// Closure returns every constraint implied by cs, including Any, sorted.
func (l *Lattice) Closure(cs []string) []string {
	seen := map[string]struct{}{Any: {}}
	stack := slices.Clone(cs)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		stack = append(stack, l.supers[c]...)
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Implies reports whether having all of have entails want.
func (l *Lattice) Implies(have []string, want string) bool {
	if want == Any {
		return true
	}
	_, found := slices.BinarySearch(l.Closure(have), want)
	return found
}

// ImpliesAll reports whether have entails every constraint in want.
func (l *Lattice) ImpliesAll(have, want []string) bool {
	closure := l.Closure(have)
	for _, w := range want {
		if _, found := slices.BinarySearch(closure, w); !found {
			return false
		}
	}
	return true
}

// StrictlyStronger reports whether closure(a) is a strict superset of closure(b).
func (l *Lattice) StrictlyStronger(a, b []string) bool {
	ca, cb := l.Closure(a), l.Closure(b)
	if len(ca) <= len(cb) {
		return false
	}
	for _, c := range cb {
		if _, found := slices.BinarySearch(ca, c); !found {
			return false
		}
	}
	return true
}

// Satisfies reports whether a type with the given head implements c.
// Implementations are not inherited along subtype edges.
func (l *Lattice) Satisfies(head, c string) bool {
	if c == Any {
		return true
	}
	if head == "" {
		return false
	}
	return l.Implies(l.impls[head], c)
}

// SatisfiesAll reports whether the head implements every constraint.
func (l *Lattice) SatisfiesAll(head string, cs []string) bool {
	for _, c := range cs {
		if !l.Satisfies(head, c) {
			return false
		}
	}
	return true
}

// Inhabited reports whether some declared type head satisfies every constraint in cs.
// The empty set and {Any} are always inhabited.
func (l *Lattice) Inhabited(cs []string) bool {
	need := 0
	for _, c := range cs {
		if c != Any {
			need++
		}
	}
	if need == 0 {
		return true
	}
	for _, head := range l.heads {
		if l.SatisfiesAll(head, cs) {
			return true
		}
	}
	return false
}

// IsSubtype reports sub <: super along declared nominal edges (reflexive, transitive).
func (l *Lattice) IsSubtype(sub, super string) bool {
	if sub == super {
		return true
	}
	seen := map[string]struct{}{}
	stack := []string{sub}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == super {
			return true
		}
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		stack = append(stack, l.subtypes[cur]...)
	}
	return false
}

// Join returns the least common nominal supertype of a and b, or "" when none is unique.
func (l *Lattice) Join(a, b string) string {
	switch {
	case l.IsSubtype(a, b):
		return b
	case l.IsSubtype(b, a):
		return a
	}
	var common []string
	for _, up := range l.ancestors(a) {
		if l.IsSubtype(b, up) {
			common = append(common, up)
		}
	}
	var minimal []string
	for _, c := range common {
		isMin := true
		for _, d := range common {
			if c != d && l.IsSubtype(d, c) {
				isMin = false
				break
			}
		}
		if isMin {
			minimal = append(minimal, c)
		}
	}
	if len(minimal) != 1 {
		return ""
	}
	return minimal[0]
}

// ancestors lists strict supertypes of head in breadth-first order.
func (l *Lattice) ancestors(head string) []string {
	var out []string
	seen := map[string]struct{}{head: {}}
	queue := slices.Clone(l.subtypes[head])
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		out = append(out, cur)
		queue = append(queue, l.subtypes[cur]...)
	}
	return out
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(dst, it) {
			dst = append(dst, it)
		}
	}
	return dst
}
