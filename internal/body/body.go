// Package body describes the control-flow skeleton of a method body: just
// enough structure to find the expressions that produce the method's result
// and the effects it performs.
package body

import (
	"mdisp/internal/source"
	"mdisp/internal/types"
)

// Node is one skeleton element.
type Node interface {
	Span() source.Span
	node()
}

// Expr is a typed expression; in result position it contributes its type.
type Expr struct {
	Type types.TypeID
	Desc string // short description used in diagnostics
	At   source.Span
}

// Block runs Stmts for effect and yields Tail. A nil Tail yields Unit.
type Block struct {
	Stmts []Node
	Tail  Node
	At    source.Span
}

// If yields one of its branches. A missing Else yields Unit.
type If struct {
	Then Node
	Else Node
	At   source.Span
}

// Match yields one of its arms.
type Match struct {
	Arms []Node
	At   source.Span
}

// Return leaves the method with Value regardless of position.
type Return struct {
	Value Node
	At    source.Span
}

// Perform performs an effect label.
type Perform struct {
	Effect types.TypeID
	At     source.Span
}

// Call invokes a function with the given result type and effect row.
type Call struct {
	Name    string
	Result  types.TypeID
	Effects types.RowID
	At      source.Span
}

// Diverge never produces a value (panic, infinite loop).
type Diverge struct {
	At source.Span
}

func (n *Expr) Span() source.Span    { return n.At }
func (n *Block) Span() source.Span   { return n.At }
func (n *If) Span() source.Span      { return n.At }
func (n *Match) Span() source.Span   { return n.At }
func (n *Return) Span() source.Span  { return n.At }
func (n *Perform) Span() source.Span { return n.At }
func (n *Call) Span() source.Span    { return n.At }
func (n *Diverge) Span() source.Span { return n.At }

func (*Expr) node()    {}
func (*Block) node()   {}
func (*If) node()      {}
func (*Match) node()   {}
func (*Return) node()  {}
func (*Perform) node() {}
func (*Call) node()    {}
func (*Diverge) node() {}

// Walk visits n and its children depth first. Returning false from fn skips children.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *Block:
		for _, s := range n.Stmts {
			Walk(s, fn)
		}
		Walk(n.Tail, fn)
	case *If:
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *Match:
		for _, a := range n.Arms {
			Walk(a, fn)
		}
	case *Return:
		Walk(n.Value, fn)
	}
}
