// Package registry stores declared methods grouped into families by name.
// It is filled once during declaration collection and is read-only after Freeze.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"fortio.org/safecast"

	"mdisp/internal/body"
	"mdisp/internal/source"
	"mdisp/internal/types"
)

// MethodID indexes the method arena.
type MethodID uint32

// NoMethodID is the arena sentinel.
const NoMethodID MethodID = 0

// IsValid reports whether the id refers to a registered method.
func (id MethodID) IsValid() bool { return id != NoMethodID }

// ErrFrozen is returned by Register after Freeze.
var ErrFrozen = errors.New("method registry is frozen")

// TypeParam is a declared generic parameter of a method.
type TypeParam struct {
	Var         types.VarID
	Name        string
	Constraints []string
}

// Method is an immutable registered signature.
type Method struct {
	ID         MethodID
	Name       string
	Trait      string // declaring trait, "" for free functions
	TypeParams []TypeParam
	Params     []types.TypeID
	Result     types.TypeID
	Effects    types.RowID
	Body       *body.Block // nil for declarations without a body
	Span       source.Span

	// free variables of the signature; all rigid
	typeVars []types.VarID
	rowVars  []types.VarID
}

// TypeVars lists the type variables quantified by the signature.
func (m *Method) TypeVars() []types.VarID { return m.typeVars }

// RowVars lists the effect-row variables quantified by the signature.
func (m *Method) RowVars() []types.VarID { return m.rowVars }

// Qualified returns "Trait::name" for trait methods and the plain name otherwise.
func (m *Method) Qualified() string {
	if m.Trait == "" {
		return m.Name
	}
	return m.Trait + "::" + m.Name
}

// Signature renders the method like its declaration.
func (m *Method) Signature(in *types.Interner) string {
	var sb strings.Builder
	sb.WriteString(m.Qualified())
	if len(m.TypeParams) > 0 {
		sb.WriteByte('<')
		for i, tp := range m.TypeParams {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(tp.Name)
			if len(tp.Constraints) > 0 {
				sb.WriteString(": ")
				sb.WriteString(strings.Join(tp.Constraints, " + "))
			}
		}
		sb.WriteByte('>')
	}
	sb.WriteByte('(')
	sb.WriteString(types.Labels(in, m.Params))
	sb.WriteString(") -> ")
	sb.WriteString(types.Label(in, m.Result))
	if m.Effects != in.Pure() {
		sb.WriteString(" ! ")
		sb.WriteString(types.RowLabel(in, m.Effects))
	}
	return sb.String()
}

// Registry is an arena of methods plus a family index.
// Register must not run concurrently with any reader.
type Registry struct {
	in       *types.Interner
	methods  []*Method // index 0 reserved for NoMethodID
	families map[string][]MethodID
	order    []string
	frozen   bool
}

// New creates an empty registry bound to an interner.
func New(in *types.Interner) *Registry {
	return &Registry{
		in:       in,
		methods:  make([]*Method, 1, 64),
		families: make(map[string][]MethodID),
	}
}

// Interner returns the interner signatures live in.
func (r *Registry) Interner() *types.Interner { return r.in }

// Register adds a method to its family and returns the assigned id.
// Every free variable of the signature must be rigid.
func (r *Registry) Register(m Method) (MethodID, error) {
	if r.frozen {
		return NoMethodID, ErrFrozen
	}
	if m.Name == "" {
		return NoMethodID, errors.New("method without a name")
	}
	if m.Effects == types.NoRowID {
		m.Effects = r.in.Pure()
	}
	fv := r.in.FreeVarsOf(append(slices.Clone(m.Params), m.Result)...)
	rowFV := r.in.FreeVarsOfRow(m.Effects)
	for _, v := range rowFV.Types {
		if !fv.HasType(v) {
			fv.Types = append(fv.Types, v)
		}
	}
	for _, v := range rowFV.Rows {
		if !fv.HasRow(v) {
			fv.Rows = append(fv.Rows, v)
		}
	}
	for _, v := range append(slices.Clone(fv.Types), fv.Rows...) {
		if info, _ := r.in.VarInfo(v); !info.Rigid {
			return NoMethodID, fmt.Errorf("method %s: signature variable %s is not quantified", m.Name, info.Name)
		}
	}
	n, err := safecast.Conv[uint32](len(r.methods))
	if err != nil {
		panic(fmt.Errorf("method arena overflow: %w", err))
	}
	id := MethodID(n)
	m.ID = id
	m.Params = slices.Clone(m.Params)
	m.TypeParams = slices.Clone(m.TypeParams)
	m.typeVars, m.rowVars = fv.Types, fv.Rows
	stored := m
	r.methods = append(r.methods, &stored)
	if _, ok := r.families[m.Name]; !ok {
		r.order = append(r.order, m.Name)
	}
	r.families[m.Name] = append(r.families[m.Name], id)
	return id, nil
}

// Freeze ends declaration collection.
func (r *Registry) Freeze() { r.frozen = true }

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool { return r.frozen }

// Method returns the method for id or nil.
func (r *Registry) Method(id MethodID) *Method {
	if !id.IsValid() || int(id) >= len(r.methods) {
		return nil
	}
	return r.methods[id]
}

// Len reports the number of registered methods.
func (r *Registry) Len() int { return len(r.methods) - 1 }

// Families lists family names in first-registration order.
func (r *Registry) Families() []string { return slices.Clone(r.order) }

// Family returns the methods of a family in insertion order.
func (r *Registry) Family(name string) []*Method {
	ids := r.families[name]
	out := make([]*Method, len(ids))
	for i, id := range ids {
		out[i] = r.methods[id]
	}
	return out
}

// Methods returns every method in registration order.
func (r *Registry) Methods() []*Method {
	return slices.Clone(r.methods[1:])
}

// Traits lists the distinct traits declaring methods of the family, sorted.
func (r *Registry) Traits(name string) []string {
	var out []string
	for _, m := range r.Family(name) {
		if m.Trait != "" && !slices.Contains(out, m.Trait) {
			out = append(out, m.Trait)
		}
	}
	slices.Sort(out)
	return out
}
