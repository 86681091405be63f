// Package testing holds shared test support: performance guards here and
// instruction/class-file builders in the builders subpackage.
package testing

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// PerformanceGuard records timings of named operations and fails the test
// when they exceed their thresholds
type PerformanceGuard struct {
	t            *testing.T
	scale        float64
	thresholds   map[string]PerformanceThreshold
	measurements map[string][]time.Duration
	mu           sync.Mutex
}

// PerformanceThreshold defines acceptable performance bounds. Zero fields
// are not checked.
type PerformanceThreshold struct {
	Name         string
	MaxDuration  time.Duration // bound on the average
	P95Threshold time.Duration
}

// PerformanceResult is the outcome of checking one operation
type PerformanceResult struct {
	Name       string
	Passed     bool
	Average    time.Duration
	P95        time.Duration
	Violations []string
}

// NewPerformanceGuard creates a guard whose thresholds are scaled for slow
// environments. BCQ_PERF_SCALE sets the factor explicitly; CI doubles it.
func NewPerformanceGuard(t *testing.T) *PerformanceGuard {
	return &PerformanceGuard{
		t:            t,
		scale:        environmentScale(),
		thresholds:   make(map[string]PerformanceThreshold),
		measurements: make(map[string][]time.Duration),
	}
}

func environmentScale() float64 {
	if v := os.Getenv("BCQ_PERF_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	scale := 1.0
	if os.Getenv("CI") != "" {
		scale *= 2
	}
	if runtime.NumCPU() < 4 {
		scale *= 1.5
	}
	return scale
}

// WithThreshold adds a performance threshold, scaled for the environment
func (g *PerformanceGuard) WithThreshold(name string, threshold PerformanceThreshold) *PerformanceGuard {
	threshold.Name = name
	threshold.MaxDuration = time.Duration(float64(threshold.MaxDuration) * g.scale)
	threshold.P95Threshold = time.Duration(float64(threshold.P95Threshold) * g.scale)
	g.thresholds[name] = threshold
	return g
}

// Measure runs fn once and records its duration
func (g *PerformanceGuard) Measure(name string, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)

	g.mu.Lock()
	g.measurements[name] = append(g.measurements[name], d)
	g.mu.Unlock()
	return d
}

// MeasureN runs fn n times after a short warm-up
func (g *PerformanceGuard) MeasureN(name string, n int, fn func()) {
	for i := 0; i < min(3, n/10+1); i++ {
		fn()
	}
	for i := 0; i < n; i++ {
		g.Measure(name, fn)
	}
}

// Check compares the recorded timings of name with its threshold. An
// operation without a threshold always passes.
func (g *PerformanceGuard) Check(name string) PerformanceResult {
	g.mu.Lock()
	durations := append([]time.Duration(nil), g.measurements[name]...)
	g.mu.Unlock()

	result := PerformanceResult{Name: name}
	threshold, ok := g.thresholds[name]
	if !ok {
		result.Passed = true
		return result
	}
	if len(durations) == 0 {
		result.Violations = append(result.Violations, "no measurements recorded")
		return result
	}

	result.Average = average(durations)
	result.P95 = percentile(durations, 95)

	if threshold.MaxDuration > 0 && result.Average > threshold.MaxDuration {
		result.Violations = append(result.Violations,
			fmt.Sprintf("average %v exceeds max %v", result.Average, threshold.MaxDuration))
	}
	if threshold.P95Threshold > 0 && result.P95 > threshold.P95Threshold {
		result.Violations = append(result.Violations,
			fmt.Sprintf("P95 %v exceeds threshold %v", result.P95, threshold.P95Threshold))
	}

	result.Passed = len(result.Violations) == 0
	return result
}

// AssertPassed fails the test if name missed its threshold
func (g *PerformanceGuard) AssertPassed(name string) {
	g.t.Helper()
	result := g.Check(name)
	if !result.Passed {
		g.t.Errorf("Performance check failed for %s:\n  - %s", name, strings.Join(result.Violations, "\n  - "))
	}
}

// AssertAllPassed checks every operation with a threshold
func (g *PerformanceGuard) AssertAllPassed() {
	g.t.Helper()
	names := make([]string, 0, len(g.thresholds))
	for name := range g.thresholds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g.AssertPassed(name)
	}
}

func average(durations []time.Duration) time.Duration {
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

func percentile(durations []time.Duration, p int) time.Duration {
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (len(sorted)*p + 99) / 100
	if idx < 1 {
		idx = 1
	}
	if idx > len(sorted) {
		idx = len(sorted)
	}
	return sorted[idx-1]
}
