package query

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/standardbeagle/bcq/internal/debug"
	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/tree"
)

// DefaultMaxVisits caps node evaluations per invocation
const DefaultMaxVisits = 1_000_000

// checkEvery is how many visits pass between context and clock checks
const checkEvery = 64

var (
	errNoPredicate      = errors.New("query has no predicate")
	errNegativeDistance = errors.New("negative hop distance")
	errEmptyChain       = errors.New("empty query chain")
)

// Options bound the work of a single Match or Walk call
type Options struct {
	// MaxVisits caps predicate evaluations; zero means DefaultMaxVisits and a
	// negative value disables the cap.
	MaxVisits int
	// Timeout caps wall-clock time; zero disables it.
	Timeout time.Duration
}

// Engine evaluates queries against a built forest. Implementations must not
// mutate the forest.
type Engine interface {
	// Match evaluates q rooted at n. Anonymous captures are kept.
	Match(ctx context.Context, n tree.Node, q *Query) (*Result, error)
	// Walk tries the chain at every node in pre-order. chain[0] must match
	// the node itself; each later query must match within its own hop
	// distance of the previous match. Anonymous captures are dropped from
	// the returned result.
	Walk(ctx context.Context, f *tree.Forest, chain ...*Query) (*Result, error)
}

// GreedyEngine is the first-match, non-backtracking engine: a near
// constraint binds to the first node that satisfies it and is never
// revisited.
type GreedyEngine struct {
	opts Options
}

var _ Engine = (*GreedyEngine)(nil)

// NewGreedyEngine creates an engine with the given work bounds
func NewGreedyEngine(opts Options) *GreedyEngine {
	if opts.MaxVisits == 0 {
		opts.MaxVisits = DefaultMaxVisits
	}
	return &GreedyEngine{opts: opts}
}

// Run walks f with the chain using a default engine
func Run(f *tree.Forest, chain ...*Query) (*Result, error) {
	return NewGreedyEngine(Options{}).Walk(context.Background(), f, chain...)
}

// Match implements Engine
func (g *GreedyEngine) Match(ctx context.Context, n tree.Node, q *Query) (*Result, error) {
	res := newResult()
	if err := q.Validate(); err != nil {
		return res, err
	}
	if !n.Valid() {
		return res, nil
	}
	e := g.newEval(ctx)
	if e.match(q, n, res) {
		res.positions = 1
	}
	return res, e.finish()
}

// Walk implements Engine
func (g *GreedyEngine) Walk(ctx context.Context, f *tree.Forest, chain ...*Query) (*Result, error) {
	res := newResult()
	if len(chain) == 0 {
		return res, bcqerrors.NewInvalidPatternError("", errEmptyChain)
	}
	for _, q := range chain {
		if err := q.Validate(); err != nil {
			return res, err
		}
	}

	e := g.newEval(ctx)
	f.Walk(func(n tree.Node) bool {
		pos := newResult()
		if e.chain(chain, n, pos) {
			res.positions++
			res.merge(pos.named())
		}
		return e.err == nil
	})

	debug.LogQuery("%s: %d positions, %d captures, %d visits\n", f.Method(), res.positions, res.Len(), e.visits)
	return res, e.finish()
}

type eval struct {
	ctx      context.Context
	opts     Options
	deadline time.Time
	start    time.Time
	visits   int
	err      error
}

func (g *GreedyEngine) newEval(ctx context.Context) *eval {
	if ctx == nil {
		ctx = context.Background()
	}
	e := &eval{ctx: ctx, opts: g.opts, start: time.Now()}
	if g.opts.Timeout > 0 {
		e.deadline = e.start.Add(g.opts.Timeout)
	}
	return e
}

func (e *eval) finish() error {
	return e.err
}

// visit counts one node evaluation and reports whether work may continue
func (e *eval) visit() bool {
	if e.err != nil {
		return false
	}
	e.visits++
	if e.opts.MaxVisits > 0 && e.visits > e.opts.MaxVisits {
		e.err = bcqerrors.NewBudgetExceededError("visit", e.visits-1, time.Since(e.start))
		return false
	}
	if e.visits%checkEvery == 0 {
		if err := e.ctx.Err(); err != nil {
			e.err = err
			return false
		}
		if !e.deadline.IsZero() && time.Now().After(e.deadline) {
			e.err = bcqerrors.NewBudgetExceededError("time", e.visits, time.Since(e.start))
			return false
		}
	}
	return true
}

// chain matches chain[0] at n and each following query within its hop
// distance of the previous match. The hop counter restarts after each match.
func (e *eval) chain(chain []*Query, n tree.Node, out *Result) bool {
	if !e.match(chain[0], n, out) {
		return false
	}
	idx, travel := 1, 0
	for next := n.NextInTree(); next.Valid() && idx < len(chain); next = next.NextInTree() {
		travel++
		if travel > chain[idx].dist {
			break
		}
		if e.match(chain[idx], next, out) {
			idx++
			travel = 0
		}
		if e.err != nil {
			return false
		}
	}
	return idx == len(chain)
}

// match evaluates q at n, recording into out only on full success
func (e *eval) match(q *Query, n tree.Node, out *Result) bool {
	if !e.visit() || !q.pred(n) {
		return false
	}

	var nearRes, childRes *Result
	if len(q.near) > 0 {
		nearRes = newResult()
		if !e.nexts(n, q.near, nearRes) {
			return false
		}
	}
	if len(q.child) > 0 {
		childRes = newResult()
		if !e.children(n, q.child, childRes) {
			return false
		}
	}

	out.record(q, n)
	if nearRes != nil {
		out.merge(nearRes)
	}
	if childRes != nil {
		out.merge(childRes)
	}
	return true
}

// nexts matches qs in order along the neighbour chain starting after
// origin. Each query binds to the first node within its distance that fully
// satisfies it, and that node becomes the origin for the next query.
func (e *eval) nexts(origin tree.Node, qs []*Query, out *Result) bool {
	acc := newResult()
	cur := origin
	for _, q := range qs {
		found := cur.NextInTreeMatching(func(n tree.Node) bool {
			return e.match(q, n, acc)
		}, q.dist)
		if !found.Valid() {
			return false
		}
		cur = found
	}
	out.merge(acc)
	return true
}

// children matches qs[0] among the direct children of parent. Each child
// passing the predicate is tried independently: the rest of qs must follow
// it as a near chain, and qs[0]'s own constraints must hold relative to it.
// Captures of every succeeding candidate are kept.
func (e *eval) children(parent tree.Node, qs []*Query, out *Result) bool {
	first, rest := qs[0], qs[1:]
	matched := false
	for _, c := range parent.Children() {
		if !e.visit() {
			return false
		}
		if !first.pred(c) {
			continue
		}

		cand := newResult()
		cand.record(first, c)
		if len(rest) > 0 && !e.nexts(c, rest, cand) {
			continue
		}
		if len(first.near) > 0 && !e.nexts(c, first.near, cand) {
			continue
		}
		if len(first.child) > 0 && !e.children(c, first.child, cand) {
			continue
		}
		out.merge(cand)
		matched = true
	}
	return matched
}

func itoa(i int) string { return strconv.Itoa(i) }
