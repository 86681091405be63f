package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/opcodes"
	"github.com/standardbeagle/bcq/internal/testing/builders"
	"github.com/standardbeagle/bcq/internal/tree"
	"github.com/standardbeagle/bcq/internal/types"
)

func build(t *testing.T, m *types.Method) *tree.Forest {
	t.Helper()
	f, err := tree.Build(m, opcodes.Default())
	require.NoError(t, err)
	return f
}

func verbose(nodes []tree.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Insn().Verbose()
	}
	return out
}

func revisionMethod(first, second int) *types.Method {
	return builders.NewMethod("Client", "init", "()V").
		Int("sipush", first).Var("istore", 1).
		Int("sipush", second).Var("istore", 2).
		Int("sipush", 42).Var("istore", 3).
		Op("return").
		Build()
}

// TestWalkRevisionChain tests a consecutive near chain with a named capture.
func TestWalkRevisionChain(t *testing.T) {
	chain := func() []*Query {
		return []*Query{Num(765), Num(503), Op("sipush").Named("revision")}
	}

	present := build(t, revisionMethod(765, 503))
	res, err := Run(present, chain()...)
	require.NoError(t, err)
	assert.Equal(t, []string{"revision"}, res.Keys())
	assert.Equal(t, []string{"sipush 42"}, verbose(res.Get("revision")))
	assert.Equal(t, 1, res.Positions())

	m := res.Map()
	require.Len(t, m, 1)
	assert.Equal(t, 42, m["revision"][0].Payload.(types.IntOperand).Value)

	absent := build(t, revisionMethod(503, 765))
	res, err = Run(absent, chain()...)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.False(t, res.Matched())
}

// TestWalkNearConstraint tests the same pattern written as near constraints.
func TestWalkNearConstraint(t *testing.T) {
	q := Num(765).Near(Num(503), Op("sipush").Named("revision"))

	res, err := Run(build(t, revisionMethod(765, 503)), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"sipush 42"}, verbose(res.Get("revision")))

	res, err = Run(build(t, revisionMethod(503, 765)), Num(765).Near(Num(503), Op("sipush").Named("revision")))
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

// TestWalkDistance tests that hop bounds are enforced and reset per match.
func TestWalkDistance(t *testing.T) {
	b := builders.NewMethod("D", "d", "()V").Int("sipush", 765).Var("istore", 1)
	for i := 0; i < 12; i++ {
		b.Op("nop")
	}
	m := b.Int("sipush", 503).Var("istore", 2).Op("return").Build()
	f := build(t, m)

	// sipush 503 is 14 hops after sipush 765
	res, err := Run(f, Num(765), Num(503).Named("far"))
	require.NoError(t, err)
	assert.True(t, res.Empty())

	res, err = Run(f, Num(765), Num(503).Named("far").Dist(14))
	require.NoError(t, err)
	assert.Len(t, res.Get("far"), 1)

	res, err = Run(f, Num(765), Num(503).Named("far").Dist(13))
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func initChild() *types.Method {
	return builders.NewMethod("Bar", "setup", "()V").
		Var("aload", 0).
		Var("aload", 0).
		Invoke("invokevirtual", "Foo", "initCache", "()Ljava/lang/Object;").
		Field("putfield", "Bar", "cache", "Ljava/lang/Object;").
		Op("return").
		Build()
}

func initNearby() *types.Method {
	return builders.NewMethod("Bar", "setup", "()V").
		Var("aload", 0).
		Invoke("invokevirtual", "Foo", "initCache", "()V").
		Var("aload", 0).
		Op("aconst_null").
		Field("putfield", "Bar", "cache", "Ljava/lang/Object;").
		Op("return").
		Build()
}

func initGrandchild() *types.Method {
	return builders.NewMethod("Bar", "setup", "()V").
		Var("aload", 0).
		Var("aload", 0).
		Invoke("invokevirtual", "Foo", "initCache", "()Ljava/lang/Object;").
		Type("checkcast", "java/lang/String").
		Field("putfield", "Bar", "cache", "Ljava/lang/String;").
		Op("return").
		Build()
}

// TestChildConstraintIsStructural tests that child constraints only see
// operand children, never flat-sequence neighbours or deeper descendants.
func TestChildConstraintIsStructural(t *testing.T) {
	q := func() *Query {
		return Putter("cache", "").Named("store").Child(Method("^>init", "").Named("call"))
	}

	res, err := Run(build(t, initChild()), q())
	require.NoError(t, err)
	assert.Equal(t, []string{"putfield Bar.cache Ljava/lang/Object;"}, verbose(res.Get("store")))
	assert.Equal(t, []string{"invokevirtual Foo.initCache()Ljava/lang/Object;"}, verbose(res.Get("call")))

	res, err = Run(build(t, initNearby()), q())
	require.NoError(t, err)
	assert.True(t, res.Empty(), "adjacent but not an operand")

	res, err = Run(build(t, initGrandchild()), q())
	require.NoError(t, err)
	assert.True(t, res.Empty(), "grandchildren are not direct children")
}

// TestChildChain tests the rest of a child list following the candidate.
func TestChildChain(t *testing.T) {
	f := build(t, builders.AddOne())
	root := f.Roots()[0].Child(0)
	require.Equal(t, "iadd", root.Op())

	engine := NewGreedyEngine(Options{})
	res, err := engine.Match(context.Background(), root,
		Op("iadd").Child(Op("iconst_1").Named("a"), Op("iconst_2").Named("b")))
	require.NoError(t, err)
	assert.Equal(t, []string{"#2", "a", "b"}, res.Keys(), "Match keeps anonymous captures")
	assert.Equal(t, []string{"a", "b"}, res.Names())
	assert.True(t, res.Captures()[0].Anonymous)
	assert.Equal(t, 1, res.Positions())

	res, err = engine.Match(context.Background(), root,
		Op("iadd").Child(Op("iconst_2"), Op("iconst_1")))
	require.NoError(t, err)
	assert.True(t, res.Empty(), "iconst_1 does not follow iconst_2")
}

// TestChildCandidatesAccumulate tests that every succeeding child is captured.
func TestChildCandidatesAccumulate(t *testing.T) {
	m := builders.NewMethod("A", "a", "()I").
		Int("bipush", 3).Int("bipush", 4).Op("iadd").Op("ireturn").Build()

	res, err := Run(build(t, m), Op("iadd").Child(AnyNum().Named("n")))
	require.NoError(t, err)
	assert.Equal(t, []string{"bipush 3", "bipush 4"}, verbose(res.Get("n")))
}

// TestNestedChildConstraints tests constraints on a matched child.
func TestNestedChildConstraints(t *testing.T) {
	f := build(t, builders.AddOne())

	res, err := Run(f, Op("istore").Named("store").Child(
		Op("iadd").Named("add").Child(Op("iconst_2").Named("two"))))
	require.NoError(t, err)
	assert.Equal(t, []string{"istore 0"}, verbose(res.Get("store")))
	assert.Equal(t, []string{"iadd"}, verbose(res.Get("add")))
	assert.Equal(t, []string{"iconst_2"}, verbose(res.Get("two")))

	res, err = Run(f, Op("istore").Child(Op("iadd").Child(Op("iconst_5"))))
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

// TestNearIsGreedy tests that a near constraint never rebinds.
func TestNearIsGreedy(t *testing.T) {
	m := builders.NewMethod("G", "g", "()V").
		Label(0).
		Int("bipush", 1).Op("pop").
		Int("bipush", 5).Op("pop").
		Int("bipush", 1).Op("pop").
		Int("bipush", 2).Op("pop").
		Build()
	f := build(t, m)

	// the first bipush 1 wins, and bipush 2 is not within 2 hops of it
	res, err := Run(f, Label().Near(Num(1).Named("x"), Num(2).Named("y").Dist(2)))
	require.NoError(t, err)
	assert.True(t, res.Empty())

	res, err = Run(f, Label().Near(Num(1).Named("x"), Num(2).Named("y")))
	require.NoError(t, err)
	assert.Len(t, res.Get("x"), 1)
	assert.Len(t, res.Get("y"), 1)
}

// TestNearBindsWithNestedConstraints tests that a near query skips nodes
// whose own child constraints fail.
func TestNearBindsWithNestedConstraints(t *testing.T) {
	m := builders.NewMethod("N", "n", "()V").
		Label(0).
		Int("bipush", 3).Var("istore", 1).
		Int("bipush", 7).Var("istore", 2).
		Op("return").
		Build()
	f := build(t, m)

	res, err := Run(f, Label().Near(Op("istore").Named("st").Child(Num(7))))
	require.NoError(t, err)
	require.Len(t, res.Get("st"), 1)
	assert.Equal(t, "istore 2", res.Get("st")[0].String())
}

// TestWalkAccumulates tests that captures gather across walk positions.
func TestWalkAccumulates(t *testing.T) {
	m := builders.NewMethod("A", "a", "()V").
		Int("bipush", 1).Op("pop").
		Int("bipush", 2).Op("pop").
		Int("bipush", 3).Op("pop").
		Op("return").
		Build()

	res, err := Run(build(t, m), AnyNum().Named("n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"bipush 1", "bipush 2", "bipush 3"}, verbose(res.Get("n")))
	assert.Equal(t, 3, res.Positions())
}

// TestWalkAnonymousOnly tests that an all-anonymous match is retained as an
// empty contribution: counted, but with no captures.
func TestWalkAnonymousOnly(t *testing.T) {
	f := build(t, builders.AddOne())

	res, err := Run(f, Op("iadd").Child(Op("iconst_1")))
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.True(t, res.Matched())
	assert.Equal(t, 1, res.Positions())

	res, err = Run(f, Op("iadd").Child(Op("iconst_1").Named("one")))
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, res.Keys())
}

// TestWalkBudget tests the visit cap.
func TestWalkBudget(t *testing.T) {
	b := builders.NewMethod("B", "b", "()V")
	for i := 0; i < 50; i++ {
		b.Int("bipush", i).Op("pop")
	}
	f := build(t, b.Build())

	engine := NewGreedyEngine(Options{MaxVisits: 10})
	res, err := engine.Walk(context.Background(), f, AnyNum().Named("n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, bcqerrors.ErrBudgetExceeded))
	assert.NotEmpty(t, res.Get("n"), "partial result is returned")
	assert.Less(t, len(res.Get("n")), 50)

	unbounded := NewGreedyEngine(Options{MaxVisits: -1})
	res, err = unbounded.Walk(context.Background(), f, AnyNum().Named("n"))
	require.NoError(t, err)
	assert.Len(t, res.Get("n"), 50)
}

// TestWalkTimeout tests the wall-clock cap with the visit cap disabled.
func TestWalkTimeout(t *testing.T) {
	b := builders.NewMethod("T", "t", "()V")
	for i := 0; i < 2000; i++ {
		b.Op("nop")
	}
	f := build(t, b.Build())

	engine := NewGreedyEngine(Options{MaxVisits: -1, Timeout: time.Nanosecond})
	res, err := engine.Walk(context.Background(), f, Op("athrow"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, bcqerrors.ErrBudgetExceeded))
	assert.NotNil(t, res)

	var budget *bcqerrors.BudgetExceededError
	require.True(t, errors.As(err, &budget))
	assert.Equal(t, "time", budget.Limit)
	assert.Less(t, budget.Visits, 2000)
}

// TestWalkCancelled tests context cancellation.
func TestWalkCancelled(t *testing.T) {
	b := builders.NewMethod("C", "c", "()V")
	for i := 0; i < 200; i++ {
		b.Op("nop")
	}
	f := build(t, b.Build())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGreedyEngine(Options{}).Walk(ctx, f, Op("athrow"))
	assert.ErrorIs(t, err, context.Canceled)
}

// TestInvalidPatternReportedBeforeWalk tests construction errors.
func TestInvalidPatternReportedBeforeWalk(t *testing.T) {
	f := build(t, initChild())

	q := Putter("", "").Child(Method("~>(init", ""))
	require.Error(t, q.Validate())

	res, err := Run(f, q)
	assert.True(t, errors.Is(err, bcqerrors.ErrInvalidPattern))
	assert.True(t, res.Empty())

	_, err = Run(f)
	assert.True(t, errors.Is(err, bcqerrors.ErrInvalidPattern))

	_, err = Run(f, Any().Dist(-1))
	assert.Error(t, err)
}

// TestMatchInvalidNode tests matching against the zero node.
func TestMatchInvalidNode(t *testing.T) {
	res, err := NewGreedyEngine(Options{}).Match(context.Background(), tree.Node{}, Any())
	require.NoError(t, err)
	assert.False(t, res.Matched())
}
