package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/bcq/internal/opcodes"
	"github.com/standardbeagle/bcq/internal/testing/builders"
	"github.com/standardbeagle/bcq/internal/tree"
)

func sampleForests(t *testing.T) []*tree.Forest {
	t.Helper()
	inc, err := tree.Build(builders.NewMethod("demo/C", "inc", "(I)V").
		Var("iload", 1).
		Op("iconst_1", "iadd").
		Var("istore", 1).
		Op("return").
		Build(), opcodes.Default())
	require.NoError(t, err)

	empty, err := tree.Build(builders.NewMethod("demo/C", "nop", "()V").Op("return").Build(), opcodes.Default())
	require.NoError(t, err)
	return []*tree.Forest{inc, empty}
}

func TestCalculate(t *testing.T) {
	stats := Calculate(sampleForests(t))

	assert.Equal(t, int64(2), stats.Methods)
	assert.Equal(t, int64(6), stats.Instructions)
	assert.Equal(t, int64(3), stats.Roots)
	assert.Equal(t, int64(5), stats.MaxMethodLength)
	assert.Equal(t, "demo/C.inc(I)V", stats.MaxMethodLengthKey)
	assert.Equal(t, int64(2), stats.MaxDepth)
	assert.Equal(t, "demo/C.inc(I)V", stats.MaxDepthKey)
	assert.InDelta(t, 3.0, stats.AverageMethodLength, 0.001)
	assert.InDelta(t, 2.0, stats.AverageRootSize, 0.001)
	assert.Equal(t, int64(2), stats.OpDistribution["return"])
}

func TestCalculateEmpty(t *testing.T) {
	stats := Calculate(nil)
	assert.Zero(t, stats.Methods)
	assert.Zero(t, stats.AverageMethodLength)
	assert.Empty(t, stats.TopOps(0))
	assert.NotContains(t, stats.FormatAsText(5), "OPCODES")
}

func TestTopOps(t *testing.T) {
	stats := Calculate(sampleForests(t))

	assert.Equal(t, []OpCount{{"return", 2}, {"iadd", 1}}, stats.TopOps(2))
	assert.Len(t, stats.TopOps(0), 5)
}

func TestFormat(t *testing.T) {
	stats := Calculate(sampleForests(t))

	text := stats.FormatAsText(3)
	assert.Contains(t, text, "Methods:            2")
	assert.Contains(t, text, "Max Tree Depth:     2 (demo/C.inc(I)V)")
	assert.Contains(t, text, "return:")

	js := stats.FormatAsJSON(1)
	summary := js["summary"].(map[string]interface{})
	assert.Equal(t, int64(6), summary["instructions"])
	assert.Equal(t, []OpCount{{"return", 2}}, js["ops"])
}
