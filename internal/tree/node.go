package tree

import "github.com/standardbeagle/bcq/internal/types"

// Node is a handle to one instruction in a Forest. The zero Node is invalid;
// navigation methods return it when there is nothing to return.
type Node struct {
	f  *Forest
	id int
}

// Valid reports whether the handle refers to an instruction
func (n Node) Valid() bool { return n.f != nil }

// ID is the instruction's position in its method
func (n Node) ID() int { return n.id }

// Forest returns the owning forest
func (n Node) Forest() *Forest { return n.f }

// Insn returns the instruction. It panics on an invalid node.
func (n Node) Insn() types.Instruction { return n.f.insns[n.id] }

// Op is the instruction mnemonic
func (n Node) Op() string { return n.f.insns[n.id].Op }

// Pull is the resolved number of operands consumed
func (n Node) Pull() int { return n.f.pull[n.id] }

// Push is the resolved number of values produced
func (n Node) Push() int { return n.f.push[n.id] }

// IsRoot reports whether the node is a top-level statement
func (n Node) IsRoot() bool { return n.f.parent[n.id] == none }

// Parent returns the consuming instruction, or an invalid node for roots
func (n Node) Parent() Node {
	return n.wrap(n.f.parent[n.id])
}

// Children returns the operands in left-to-right order
func (n Node) Children() []Node {
	kids := n.f.children(n.id)
	out := make([]Node, len(kids))
	for i, k := range kids {
		out[i] = Node{f: n.f, id: k}
	}
	return out
}

// NumChildren is the number of operands, always equal to Pull
func (n Node) NumChildren() int { return n.f.childLen[n.id] }

// Child returns operand i, or an invalid node when out of range
func (n Node) Child(i int) Node {
	kids := n.f.children(n.id)
	if i < 0 || i >= len(kids) {
		return Node{}
	}
	return Node{f: n.f, id: kids[i]}
}

// NextInTree is the following node in forest pre-order
func (n Node) NextInTree() Node {
	return n.wrap(n.f.next[n.id])
}

// PrevInTree is the preceding node in forest pre-order
func (n Node) PrevInTree() Node {
	return n.wrap(n.f.prev[n.id])
}

// NextInTreeMatching searches forward along the pre-order chain, examining
// at most maxHops nodes after n, and returns the first one pred accepts.
func (n Node) NextInTreeMatching(pred func(Node) bool, maxHops int) Node {
	cur := n
	for hop := 1; hop <= maxHops; hop++ {
		cur = cur.NextInTree()
		if !cur.Valid() {
			return Node{}
		}
		if pred(cur) {
			return cur
		}
	}
	return Node{}
}

// Depth is the number of ancestors; roots have depth zero
func (n Node) Depth() int {
	d := 0
	for p := n.f.parent[n.id]; p != none; p = n.f.parent[p] {
		d++
	}
	return d
}

// Root returns the top-level statement containing n
func (n Node) Root() Node {
	id := n.id
	for n.f.parent[id] != none {
		id = n.f.parent[id]
	}
	return Node{f: n.f, id: id}
}

// Size is the number of nodes in the subtree rooted at n
func (n Node) Size() int {
	size := 1
	for _, k := range n.f.children(n.id) {
		size += Node{f: n.f, id: k}.Size()
	}
	return size
}

// Subtree returns n and its descendants in pre-order
func (n Node) Subtree() []Node {
	size := n.Size()
	out := make([]Node, 0, size)
	for cur := n; len(out) < size; cur = cur.NextInTree() {
		out = append(out, cur)
	}
	return out
}

func (n Node) String() string {
	if !n.Valid() {
		return "<invalid>"
	}
	return n.Insn().Verbose()
}

func (n Node) wrap(id int) Node {
	if id == none {
		return Node{}
	}
	return Node{f: n.f, id: id}
}
