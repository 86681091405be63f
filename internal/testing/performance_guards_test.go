package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentileAndAverage(t *testing.T) {
	var ds []time.Duration
	for i := 10; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	assert.Equal(t, 5*time.Millisecond, percentile(ds, 50))
	assert.Equal(t, 10*time.Millisecond, percentile(ds, 95))
	assert.Equal(t, 1*time.Millisecond, percentile(ds, 0))
	assert.Equal(t, 5500*time.Microsecond, average(ds))
}

func TestPerformanceGuardCheck(t *testing.T) {
	t.Setenv("BCQ_PERF_SCALE", "1")
	g := NewPerformanceGuard(t).
		WithThreshold("fast", PerformanceThreshold{MaxDuration: time.Second}).
		WithThreshold("slow", PerformanceThreshold{MaxDuration: time.Nanosecond}).
		WithThreshold("idle", PerformanceThreshold{MaxDuration: time.Second})

	g.MeasureN("fast", 5, func() {})
	g.Measure("slow", func() { time.Sleep(time.Millisecond) })

	assert.True(t, g.Check("fast").Passed)
	assert.True(t, g.Check("untracked").Passed)

	slow := g.Check("slow")
	assert.False(t, slow.Passed)
	require.Len(t, slow.Violations, 1)
	assert.Contains(t, slow.Violations[0], "exceeds max")

	idle := g.Check("idle")
	assert.False(t, idle.Passed)
	assert.Equal(t, []string{"no measurements recorded"}, idle.Violations)
}

func TestPerformanceGuardScale(t *testing.T) {
	t.Setenv("BCQ_PERF_SCALE", "3")
	g := NewPerformanceGuard(t).WithThreshold("op", PerformanceThreshold{MaxDuration: time.Millisecond})
	assert.Equal(t, 3*time.Millisecond, g.thresholds["op"].MaxDuration)
}
