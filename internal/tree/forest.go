// Package tree rebuilds expression trees from a flat operand-stack
// instruction sequence and indexes them for navigation.
//
// A Forest is an arena: the method's instructions live in one slice and
// every relationship (parent, children, pre-order neighbours, resolved
// arity) is a plain array indexed by instruction position. Node handles
// carry their Forest, so a handle from one build can never be read against
// another.
package tree

import (
	"sync/atomic"

	"github.com/standardbeagle/bcq/internal/types"
)

const none = -1

var generations atomic.Uint64

// Forest is the set of expression trees covering one method body. It is
// immutable once Build returns and safe for concurrent readers.
type Forest struct {
	method     string
	insns      []types.Instruction
	parent     []int
	childStart []int
	childLen   []int
	childIdx   []int
	next       []int
	prev       []int
	pull       []int
	push       []int
	roots      []int
	generation uint64
}

func newForest(method string, insns []types.Instruction) *Forest {
	n := len(insns)
	f := &Forest{
		method:     method,
		insns:      insns,
		parent:     make([]int, n),
		childStart: make([]int, n),
		childLen:   make([]int, n),
		childIdx:   make([]int, 0, n),
		next:       make([]int, n),
		prev:       make([]int, n),
		pull:       make([]int, n),
		push:       make([]int, n),
		generation: generations.Add(1),
	}
	for i := range insns {
		f.parent[i] = none
		f.next[i] = none
		f.prev[i] = none
	}
	return f
}

// Method is the key of the method the forest was built from
func (f *Forest) Method() string { return f.method }

// Len is the number of instructions, equal to the number of nodes
func (f *Forest) Len() int { return len(f.insns) }

// Generation identifies this build; every Build call gets a new one
func (f *Forest) Generation() uint64 { return f.generation }

// Instructions returns the underlying instruction sequence
func (f *Forest) Instructions() []types.Instruction { return f.insns }

// Roots returns the top-level statements in source order
func (f *Forest) Roots() []Node {
	out := make([]Node, len(f.roots))
	for i, r := range f.roots {
		out[i] = Node{f: f, id: r}
	}
	return out
}

// Node returns the handle for instruction position i
func (f *Forest) Node(i int) Node {
	if i < 0 || i >= len(f.insns) {
		return Node{}
	}
	return Node{f: f, id: i}
}

// First returns the first node in pre-order, or an invalid node when the
// forest is empty.
func (f *Forest) First() Node {
	if len(f.roots) == 0 {
		return Node{}
	}
	return Node{f: f, id: f.roots[0]}
}

// Walk visits every node in pre-order (root, then its subtree left to right,
// then the next root). Returning false from visit stops the walk.
func (f *Forest) Walk(visit func(Node) bool) {
	for n := f.First(); n.Valid(); n = n.NextInTree() {
		if !visit(n) {
			return
		}
	}
}

// PreOrder returns all nodes in next-in-tree order
func (f *Forest) PreOrder() []Node {
	out := make([]Node, 0, len(f.insns))
	f.Walk(func(n Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// link fills next/prev by an explicit-stack pre-order traversal
func (f *Forest) link() {
	last := none
	stack := make([]int, 0, 16)
	for i := len(f.roots) - 1; i >= 0; i-- {
		stack = append(stack, f.roots[i])
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if last != none {
			f.next[last] = id
			f.prev[id] = last
		}
		last = id
		kids := f.children(id)
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
}

func (f *Forest) children(id int) []int {
	start := f.childStart[id]
	return f.childIdx[start : start+f.childLen[id]]
}
