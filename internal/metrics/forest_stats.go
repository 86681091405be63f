package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/standardbeagle/bcq/internal/tree"
)

// ForestStats summarizes the shape of a set of built method trees
type ForestStats struct {
	Methods      int64
	Instructions int64
	Roots        int64

	// Complexity
	AverageMethodLength float64
	MaxMethodLength     int64
	MaxMethodLengthKey  string
	MaxDepth            int64
	MaxDepthKey         string
	AverageRootSize     float64

	OpDistribution map[string]int64
}

// OpCount is one row of the opcode histogram
type OpCount struct {
	Op    string `json:"op"`
	Count int64  `json:"count"`
}

// NewForestStats creates an empty calculator
func NewForestStats() *ForestStats {
	return &ForestStats{OpDistribution: make(map[string]int64)}
}

// Calculate computes every metric from forests
func Calculate(forests []*tree.Forest) *ForestStats {
	fs := NewForestStats()
	for _, f := range forests {
		fs.add(f)
	}
	if fs.Methods > 0 {
		fs.AverageMethodLength = float64(fs.Instructions) / float64(fs.Methods)
	}
	if fs.Roots > 0 {
		fs.AverageRootSize = float64(fs.Instructions) / float64(fs.Roots)
	}
	return fs
}

func (fs *ForestStats) add(f *tree.Forest) {
	fs.Methods++
	length := int64(f.Len())
	fs.Instructions += length
	fs.Roots += int64(len(f.Roots()))
	if length > fs.MaxMethodLength {
		fs.MaxMethodLength = length
		fs.MaxMethodLengthKey = f.Method()
	}

	f.Walk(func(n tree.Node) bool {
		fs.OpDistribution[n.Op()]++
		if d := int64(n.Depth()); d > fs.MaxDepth {
			fs.MaxDepth = d
			fs.MaxDepthKey = f.Method()
		}
		return true
	})
}

// TopOps returns the n most frequent opcodes, ties broken by name. A
// non-positive n returns all of them.
func (fs *ForestStats) TopOps(n int) []OpCount {
	ops := make([]OpCount, 0, len(fs.OpDistribution))
	for op, count := range fs.OpDistribution {
		ops = append(ops, OpCount{Op: op, Count: count})
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Count != ops[j].Count {
			return ops[i].Count > ops[j].Count
		}
		return ops[i].Op < ops[j].Op
	})
	if n > 0 && len(ops) > n {
		ops = ops[:n]
	}
	return ops
}

// FormatAsJSON returns stats as a JSON-serializable map
func (fs *ForestStats) FormatAsJSON(top int) map[string]interface{} {
	return map[string]interface{}{
		"summary": map[string]interface{}{
			"methods":      fs.Methods,
			"instructions": fs.Instructions,
			"roots":        fs.Roots,
		},
		"complexity": map[string]interface{}{
			"avg_method_length": fs.AverageMethodLength,
			"max_method_length": fs.MaxMethodLength,
			"longest_method":    fs.MaxMethodLengthKey,
			"max_depth":         fs.MaxDepth,
			"deepest_method":    fs.MaxDepthKey,
			"avg_root_size":     fs.AverageRootSize,
		},
		"ops": fs.TopOps(top),
	}
}

// FormatAsText returns stats as a human-readable report
func (fs *ForestStats) FormatAsText(top int) string {
	var sb strings.Builder

	sb.WriteString("SUMMARY\n")
	sb.WriteString("─────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("  Methods:            %d\n", fs.Methods))
	sb.WriteString(fmt.Sprintf("  Instructions:       %d\n", fs.Instructions))
	sb.WriteString(fmt.Sprintf("  Statements:         %d\n", fs.Roots))

	sb.WriteString("\nCOMPLEXITY\n")
	sb.WriteString("─────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("  Avg Method Length:  %.1f\n", fs.AverageMethodLength))
	sb.WriteString(fmt.Sprintf("  Max Method Length:  %d", fs.MaxMethodLength))
	if fs.MaxMethodLengthKey != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", fs.MaxMethodLengthKey))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  Max Tree Depth:     %d", fs.MaxDepth))
	if fs.MaxDepthKey != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", fs.MaxDepthKey))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  Avg Statement Size: %.1f\n", fs.AverageRootSize))

	ops := fs.TopOps(top)
	if len(ops) == 0 {
		return sb.String()
	}
	sb.WriteString("\nOPCODES\n")
	sb.WriteString("─────────────────────────────────────────\n")
	for _, oc := range ops {
		sb.WriteString(fmt.Sprintf("  %-18s %8d\n", oc.Op+":", oc.Count))
	}
	return sb.String()
}
