// Package query matches structural patterns against instruction forests.
//
// A Query is a predicate over one node plus two kinds of constraints:
// near constraints, matched one after another along the forest's pre-order
// neighbour chain, and child constraints, matched among a node's operand
// children. Every satisfied query records the node it matched under its
// capture name.
package query

import (
	"strings"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/tree"
)

// DefaultDistance is the hop bound of a query unless Dist overrides it
const DefaultDistance = 10

// Predicate tests a single node
type Predicate func(n tree.Node) bool

// Query is a composable structural pattern. Queries are built once and may
// be evaluated concurrently.
type Query struct {
	desc  string
	pred  Predicate
	near  []*Query
	child []*Query
	name  string
	dist  int
	errs  []error
}

// New creates a query from a predicate; desc is used when printing it
func New(desc string, pred Predicate) *Query {
	return &Query{desc: desc, pred: pred, dist: DefaultDistance}
}

// Named sets the capture name. Unnamed queries are anonymous: they still
// constrain the match, but walk results leave them out.
func (q *Query) Named(name string) *Query {
	q.name = name
	return q
}

// Near appends near constraints
func (q *Query) Near(qs ...*Query) *Query {
	q.near = append(q.near, qs...)
	return q
}

// Child appends child constraints
func (q *Query) Child(qs ...*Query) *Query {
	q.child = append(q.child, qs...)
	return q
}

// Dist sets how many neighbour hops may be taken to find this query when it
// is part of a near chain
func (q *Query) Dist(hops int) *Query {
	q.dist = hops
	return q
}

// Where narrows the predicate with another condition
func (q *Query) Where(desc string, pred Predicate) *Query {
	base := q.pred
	q.pred = func(n tree.Node) bool { return base(n) && pred(n) }
	if desc != "" {
		q.desc += "." + desc
	}
	return q
}

// Clone copies the query and its constraint lists (not the sub-queries)
func (q *Query) Clone() *Query {
	c := *q
	c.near = append([]*Query(nil), q.near...)
	c.child = append([]*Query(nil), q.child...)
	c.errs = append([]error(nil), q.errs...)
	return &c
}

// Name is the capture name, empty when anonymous
func (q *Query) Name() string { return q.name }

// Anonymous reports whether the query has no capture name
func (q *Query) Anonymous() bool { return q.name == "" }

// Distance is the hop bound
func (q *Query) Distance() int { return q.dist }

// NearQueries returns the near constraints
func (q *Query) NearQueries() []*Query { return q.near }

// ChildQueries returns the child constraints
func (q *Query) ChildQueries() []*Query { return q.child }

// Test applies just the predicate, ignoring constraints
func (q *Query) Test(n tree.Node) bool { return q.pred(n) }

// fail records a construction error, such as a bad string pattern
func (q *Query) fail(err error) *Query {
	if err != nil {
		q.errs = append(q.errs, err)
	}
	return q
}

// Validate reports every construction error in q and its sub-queries
func (q *Query) Validate() error {
	var errs []error
	q.collect(&errs)
	return bcqerrors.NewMultiError(errs).ErrorOrNil()
}

func (q *Query) collect(errs *[]error) {
	*errs = append(*errs, q.errs...)
	if q.pred == nil {
		*errs = append(*errs, bcqerrors.NewInvalidPatternError(q.desc, errNoPredicate))
	}
	if q.dist < 0 {
		*errs = append(*errs, bcqerrors.NewInvalidPatternError(q.desc, errNegativeDistance))
	}
	for _, s := range q.near {
		s.collect(errs)
	}
	for _, s := range q.child {
		s.collect(errs)
	}
}

// String renders the query in a compact form such as
// num(765) near[num(503), op(sipush) as revision]
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString(q.desc)
	if q.name != "" {
		b.WriteString(" as ")
		b.WriteString(q.name)
	}
	if q.dist != DefaultDistance {
		b.WriteString(" within ")
		b.WriteString(itoa(q.dist))
	}
	writeList(&b, " near", q.near)
	writeList(&b, " child", q.child)
	return b.String()
}

func writeList(b *strings.Builder, label string, qs []*Query) {
	if len(qs) == 0 {
		return
	}
	b.WriteString(label)
	b.WriteByte('[')
	for i, s := range qs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.String())
	}
	b.WriteByte(']')
}
