package sandbox

// node is an expression tree node. Every node remembers the rune offset it
// started at so errors can point back into the source text.
type node interface {
	pos() int
}

type literalNode struct {
	at    int
	value any
}

type nameNode struct {
	at   int
	name string
}

type attrNode struct {
	at     int
	target node
	name   string
}

type indexNode struct {
	at     int
	target node
	index  node
}

type callNode struct {
	at   int
	fn   node
	args []node
}

type unaryNode struct {
	at      int
	op      string // -, +, not
	operand node
}

type binaryNode struct {
	at          int
	op          string
	left, right node
}

// boolNode is a short-circuit and/or.
type boolNode struct {
	at          int
	op          string // and, or
	left, right node
}

// compareNode is a comparison chain: a < b <= c.
type compareNode struct {
	at    int
	first node
	ops   []string
	rest  []node
}

type listNode struct {
	at    int
	items []node
	tuple bool
}

type dictNode struct {
	at     int
	keys   []node
	values []node
}

type condNode struct {
	at              int
	cond, then, els node
}

func (n *literalNode) pos() int { return n.at }
func (n *nameNode) pos() int    { return n.at }
func (n *attrNode) pos() int    { return n.at }
func (n *indexNode) pos() int   { return n.at }
func (n *callNode) pos() int    { return n.at }
func (n *unaryNode) pos() int   { return n.at }
func (n *binaryNode) pos() int  { return n.at }
func (n *boolNode) pos() int    { return n.at }
func (n *compareNode) pos() int { return n.at }
func (n *listNode) pos() int    { return n.at }
func (n *dictNode) pos() int    { return n.at }
func (n *condNode) pos() int    { return n.at }

// children returns the direct sub-expressions of n in source order.
func children(n node) []node {
	switch n := n.(type) {
	case *attrNode:
		return []node{n.target}
	case *indexNode:
		return []node{n.target, n.index}
	case *callNode:
		return append([]node{n.fn}, n.args...)
	case *unaryNode:
		return []node{n.operand}
	case *binaryNode:
		return []node{n.left, n.right}
	case *boolNode:
		return []node{n.left, n.right}
	case *compareNode:
		return append([]node{n.first}, n.rest...)
	case *listNode:
		return n.items
	case *dictNode:
		out := make([]node, 0, len(n.keys)*2)
		for i := range n.keys {
			out = append(out, n.keys[i], n.values[i])
		}
		return out
	case *condNode:
		return []node{n.then, n.cond, n.els}
	default:
		return nil
	}
}
