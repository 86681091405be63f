package display

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/standardbeagle/bcq/internal/query"
	"github.com/standardbeagle/bcq/internal/scan"
)

// MethodMatch is one method's query result
type MethodMatch struct {
	Method string
	Result *query.Result
}

// CaptureJSON is the JSON shape of one capture
type CaptureJSON struct {
	Key       string      `json:"key"`
	Anonymous bool        `json:"anonymous,omitempty"`
	Nodes     []*NodeJSON `json:"nodes"`
}

// MatchJSON is the JSON shape of one method's result
type MatchJSON struct {
	Method    string         `json:"method"`
	Positions int            `json:"positions"`
	Captures  []*CaptureJSON `json:"captures"`
}

// ResultFormatter renders query results
type ResultFormatter struct {
	options          FormatterOptions
	includeAnonymous bool
}

// NewResultFormatter creates a result formatter. Anonymous captures only
// appear in results from Engine.Match; includeAnonymous controls whether
// they are rendered.
func NewResultFormatter(options FormatterOptions, includeAnonymous bool) *ResultFormatter {
	if options.Indent == "" {
		options.Indent = "  "
	}
	return &ResultFormatter{options: options, includeAnonymous: includeAnonymous}
}

func (rf *ResultFormatter) captures(res *query.Result) []query.Capture {
	var out []query.Capture
	for _, c := range res.Captures() {
		if c.Anonymous && !rf.includeAnonymous {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Format renders every method's matches
func (rf *ResultFormatter) Format(matches []MethodMatch) string {
	switch rf.options.Format {
	case "json":
		return rf.formatJSON(matches)
	case "compact":
		return rf.formatCompact(matches)
	default:
		return rf.formatText(matches)
	}
}

func (rf *ResultFormatter) formatText(matches []MethodMatch) string {
	if len(matches) == 0 {
		return "No matches\n"
	}
	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(fmt.Sprintf("%s (%d match", m.Method, m.Result.Positions()))
		if m.Result.Positions() != 1 {
			sb.WriteString("es")
		}
		sb.WriteString(")\n")
		for _, c := range rf.captures(m.Result) {
			sb.WriteString(rf.options.Indent)
			sb.WriteString(c.Key)
			sb.WriteString(":\n")
			for _, n := range c.Nodes {
				sb.WriteString(rf.options.Indent)
				sb.WriteString("└─→ ")
				sb.WriteString(n.String())
				if rf.options.ShowOffsets && n.Insn().Offset >= 0 {
					sb.WriteString(fmt.Sprintf(" [@%d]", n.Insn().Offset))
				}
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// formatCompact prints one "method key=insn; key=insn" line per method
func (rf *ResultFormatter) formatCompact(matches []MethodMatch) string {
	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		var parts []string
		for _, c := range rf.captures(m.Result) {
			for _, n := range c.Nodes {
				parts = append(parts, c.Key+"="+n.String())
			}
		}
		lines = append(lines, m.Method+" "+strings.Join(parts, "; "))
	}
	return strings.Join(lines, "\n")
}

// NewMatchJSON converts one method's result
func (rf *ResultFormatter) NewMatchJSON(m MethodMatch) *MatchJSON {
	out := &MatchJSON{Method: m.Method, Positions: m.Result.Positions(), Captures: []*CaptureJSON{}}
	for _, c := range rf.captures(m.Result) {
		cj := &CaptureJSON{Key: c.Key, Anonymous: c.Anonymous}
		for _, n := range c.Nodes {
			cj.Nodes = append(cj.Nodes, NewNodeJSON(n, 1))
		}
		out.Captures = append(out.Captures, cj)
	}
	return out
}

func (rf *ResultFormatter) formatJSON(matches []MethodMatch) string {
	out := make([]*MatchJSON, 0, len(matches))
	for _, m := range matches {
		out = append(out, rf.NewMatchJSON(m))
	}
	data, err := json.MarshalIndent(out, "", rf.options.Indent)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// FromScan adapts scanner results
func FromScan(results []scan.MethodResult) []MethodMatch {
	out := make([]MethodMatch, len(results))
	for i, r := range results {
		out[i] = MethodMatch{Method: r.Method, Result: r.Result}
	}
	return out
}

// FormatReport summarises a scan
func FormatReport(r *scan.Report, verbose bool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Scanned %d classes: %d methods built, %d failed, %d duplicates, %d skipped (%v)\n",
		r.Classes, len(r.Built), len(r.Failed), r.Duplicates, r.Skipped, r.Elapsed.Round(time.Millisecond)))
	if verbose {
		for _, key := range r.Built {
			sb.WriteString("  ok   ")
			sb.WriteString(key)
			sb.WriteString("\n")
		}
	}
	for _, f := range r.Failed {
		sb.WriteString("  FAIL ")
		sb.WriteString(f.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
