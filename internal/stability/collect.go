package stability

import (
	"mdisp/internal/body"
	"mdisp/internal/source"
	"mdisp/internal/types"
)

// result is a type produced in result position.
type result struct {
	typ  types.TypeID
	at   source.Span
	desc string
}

// effect is an effect row the body may perform.
type effect struct {
	row types.RowID
	at  source.Span
}

type collector struct {
	in      *types.Interner
	unit    types.TypeID
	results []result
	effects []effect
}

func newCollector(in *types.Interner) *collector {
	return &collector{in: in, unit: in.Con("Unit")}
}

// value visits a node whose value leaves the method.
func (c *collector) value(n body.Node) {
	switch n := n.(type) {
	case *body.Expr:
		c.add(n.Type, n.At, n.Desc)
	case *body.Block:
		for _, s := range n.Stmts {
			c.stmt(s)
			if diverges(s) {
				return
			}
		}
		switch {
		case n.Tail != nil:
			c.value(n.Tail)
		default:
			c.add(c.unit, n.At, "empty block")
		}
	case *body.If:
		c.value(n.Then)
		if n.Else == nil {
			c.add(c.unit, n.At, "if without else")
		} else {
			c.value(n.Else)
		}
	case *body.Match:
		for _, arm := range n.Arms {
			c.value(arm)
		}
	case *body.Return:
		c.ret(n)
	case *body.Call:
		c.effects = append(c.effects, effect{row: n.Effects, at: n.At})
		c.add(n.Result, n.At, "call "+n.Name)
	case *body.Perform:
		c.perform(n)
		c.add(c.unit, n.At, "perform")
	case *body.Diverge:
	}
}

// stmt visits a node whose value is discarded.
func (c *collector) stmt(n body.Node) {
	switch n := n.(type) {
	case *body.Block:
		for _, s := range n.Stmts {
			c.stmt(s)
			if diverges(s) {
				return
			}
		}
		if n.Tail != nil {
			c.stmt(n.Tail)
		}
	case *body.If:
		c.stmt(n.Then)
		if n.Else != nil {
			c.stmt(n.Else)
		}
	case *body.Match:
		for _, arm := range n.Arms {
			c.stmt(arm)
		}
	case *body.Return:
		c.ret(n)
	case *body.Call:
		c.effects = append(c.effects, effect{row: n.Effects, at: n.At})
	case *body.Perform:
		c.perform(n)
	}
}

func (c *collector) ret(n *body.Return) {
	if n.Value == nil {
		c.add(c.unit, n.At, "return")
		return
	}
	c.value(n.Value)
}

func (c *collector) perform(n *body.Perform) {
	c.effects = append(c.effects, effect{row: c.in.Row([]types.TypeID{n.Effect}, types.NoVarID), at: n.At})
}

func (c *collector) add(t types.TypeID, at source.Span, desc string) {
	if desc == "" {
		desc = types.Label(c.in, t)
	}
	c.results = append(c.results, result{typ: t, at: at, desc: desc})
}

// diverges reports whether control never continues past n.
func diverges(n body.Node) bool {
	switch n := n.(type) {
	case *body.Return, *body.Diverge:
		return true
	case *body.Block:
		for _, s := range n.Stmts {
			if diverges(s) {
				return true
			}
		}
		return n.Tail != nil && diverges(n.Tail)
	case *body.If:
		return n.Else != nil && diverges(n.Then) && diverges(n.Else)
	case *body.Match:
		for _, arm := range n.Arms {
			if !diverges(arm) {
				return false
			}
		}
		return true
	}
	return false
}
