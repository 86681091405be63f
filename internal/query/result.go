package query

import (
	"strconv"

	"github.com/standardbeagle/bcq/internal/tree"
	"github.com/standardbeagle/bcq/internal/types"
)

// Capture is the list of nodes bound to one key
type Capture struct {
	Key       string
	Anonymous bool
	Nodes     []tree.Node
}

// Result maps capture keys to the nodes bound to them, in the order they
// were first recorded. Anonymous captures are keyed by the node position
// they matched ("#12") and flagged so they can be told apart from names.
type Result struct {
	order     []string
	captures  map[string]*Capture
	positions int
}

func newResult() *Result {
	return &Result{captures: make(map[string]*Capture)}
}

func (r *Result) record(q *Query, n tree.Node) {
	key, anon := q.name, q.Anonymous()
	if anon {
		key = "#" + strconv.Itoa(n.ID())
	}
	c, ok := r.captures[key]
	if !ok {
		c = &Capture{Key: key, Anonymous: anon}
		r.captures[key] = c
		r.order = append(r.order, key)
	}
	c.Nodes = append(c.Nodes, n)
}

func (r *Result) merge(other *Result) {
	for _, key := range other.order {
		src := other.captures[key]
		dst, ok := r.captures[key]
		if !ok {
			dst = &Capture{Key: key, Anonymous: src.Anonymous}
			r.captures[key] = dst
			r.order = append(r.order, key)
		}
		dst.Nodes = append(dst.Nodes, src.Nodes...)
	}
}

// named returns a copy without anonymous captures
func (r *Result) named() *Result {
	out := newResult()
	for _, key := range r.order {
		c := r.captures[key]
		if c.Anonymous {
			continue
		}
		cp := *c
		cp.Nodes = append([]tree.Node(nil), c.Nodes...)
		out.captures[key] = &cp
		out.order = append(out.order, key)
	}
	return out
}

// Get returns the nodes bound to key
func (r *Result) Get(key string) []tree.Node {
	if c, ok := r.captures[key]; ok {
		return c.Nodes
	}
	return nil
}

// Instructions returns the instructions bound to key
func (r *Result) Instructions(key string) []types.Instruction {
	nodes := r.Get(key)
	if nodes == nil {
		return nil
	}
	out := make([]types.Instruction, len(nodes))
	for i, n := range nodes {
		out[i] = n.Insn()
	}
	return out
}

// Keys returns every capture key in first-recorded order
func (r *Result) Keys() []string {
	return append([]string(nil), r.order...)
}

// Names returns the named capture keys in first-recorded order
func (r *Result) Names() []string {
	var out []string
	for _, key := range r.order {
		if !r.captures[key].Anonymous {
			out = append(out, key)
		}
	}
	return out
}

// Captures returns all captures in first-recorded order
func (r *Result) Captures() []Capture {
	out := make([]Capture, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.captures[key])
	}
	return out
}

// Map returns the result as capture key to instructions
func (r *Result) Map() map[string][]types.Instruction {
	out := make(map[string][]types.Instruction, len(r.order))
	for _, key := range r.order {
		out[key] = r.Instructions(key)
	}
	return out
}

// Len is the number of capture keys
func (r *Result) Len() int { return len(r.order) }

// Empty reports whether nothing was captured
func (r *Result) Empty() bool { return len(r.order) == 0 }

// Positions is the number of walk positions where the whole chain matched,
// including matches made only of anonymous queries
func (r *Result) Positions() int { return r.positions }

// Matched reports whether the chain matched anywhere
func (r *Result) Matched() bool { return r.positions > 0 }
