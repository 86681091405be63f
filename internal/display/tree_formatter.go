package display

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/standardbeagle/bcq/internal/tree"
)

// TreeFormatter formats instruction forests for display
type TreeFormatter struct {
	options FormatterOptions
}

// FormatterOptions controls tree formatting
type FormatterOptions struct {
	Format      string // "text", "json", "compact"
	ShowOffsets bool   // Show bytecode offsets
	ShowArity   bool   // Show pull/push counts
	MaxDepth    int    // Maximum depth to display; 0 is unlimited
	Indent      string // Indentation string for JSON
}

// NewTreeFormatter creates a new tree formatter
func NewTreeFormatter(options FormatterOptions) *TreeFormatter {
	if options.Indent == "" {
		options.Indent = "  "
	}
	return &TreeFormatter{options: options}
}

// Format formats a forest for display
func (tf *TreeFormatter) Format(f *tree.Forest) string {
	if f == nil {
		return "No tree data available"
	}

	switch tf.options.Format {
	case "json":
		return tf.formatJSON(f)
	case "compact":
		return tf.formatCompact(f)
	default:
		return tf.formatText(f)
	}
}

// formatText formats the forest as ASCII art, one tree per root
func (tf *TreeFormatter) formatText(f *tree.Forest) string {
	var sb strings.Builder

	roots := f.Roots()
	sb.WriteString(fmt.Sprintf("Instruction tree for '%s'\n", f.Method()))
	sb.WriteString(fmt.Sprintf("Instructions: %d, Roots: %d\n", f.Len(), len(roots)))
	sb.WriteString("\n")

	for _, root := range roots {
		tf.formatNode(&sb, root, "", true, true)
	}

	return sb.String()
}

// formatNode recursively formats a node and its operands
func (tf *TreeFormatter) formatNode(sb *strings.Builder, node tree.Node, prefix string, isLast bool, isRoot bool) {
	if !node.Valid() {
		return
	}
	if tf.options.MaxDepth > 0 && node.Depth() > tf.options.MaxDepth {
		return
	}

	var branch string
	if isRoot {
		branch = "→ "
	} else if isLast {
		branch = "└─→ "
	} else {
		branch = "├─→ "
	}

	sb.WriteString(prefix)
	sb.WriteString(branch)
	sb.WriteString(node.String())
	sb.WriteString(tf.annotations(node))
	sb.WriteString("\n")

	children := node.Children()
	for i, child := range children {
		var childPrefix string
		if isRoot || isLast {
			childPrefix = prefix + "  "
		} else {
			childPrefix = prefix + "│ "
		}
		tf.formatNode(sb, child, childPrefix, i == len(children)-1, false)
	}
}

func (tf *TreeFormatter) annotations(node tree.Node) string {
	var parts []string
	if tf.options.ShowOffsets {
		if off := node.Insn().Offset; off >= 0 {
			parts = append(parts, fmt.Sprintf("@%d", off))
		}
	}
	if tf.options.ShowArity {
		parts = append(parts, fmt.Sprintf("%d→%d", node.Pull(), node.Push()))
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, " ") + "]"
}

// formatCompact renders each root as a nested call expression on one line,
// e.g. putfield demo/A.x I(aload 0, iadd(iload 1, iconst_1))
func (tf *TreeFormatter) formatCompact(f *tree.Forest) string {
	lines := make([]string, 0, len(f.Roots()))
	for _, root := range f.Roots() {
		var sb strings.Builder
		tf.writeCompact(&sb, root)
		lines = append(lines, sb.String())
	}
	return strings.Join(lines, "\n")
}

func (tf *TreeFormatter) writeCompact(sb *strings.Builder, node tree.Node) {
	sb.WriteString(node.String())
	if node.NumChildren() == 0 {
		return
	}
	if tf.options.MaxDepth > 0 && node.Depth() >= tf.options.MaxDepth {
		sb.WriteString(fmt.Sprintf("(+%d more)", node.Size()-1))
		return
	}
	sb.WriteString("(")
	for i, child := range node.Children() {
		if i > 0 {
			sb.WriteString(", ")
		}
		tf.writeCompact(sb, child)
	}
	sb.WriteString(")")
}

// NodeJSON is the JSON shape of one tree node
type NodeJSON struct {
	Index    int         `json:"index"`
	Offset   int         `json:"offset"`
	Op       string      `json:"op"`
	Operand  string      `json:"operand,omitempty"`
	Pull     int         `json:"pull"`
	Push     int         `json:"push"`
	Children []*NodeJSON `json:"children,omitempty"`
}

// ForestJSON is the JSON shape of a forest
type ForestJSON struct {
	Method       string      `json:"method"`
	Instructions int         `json:"instructions"`
	Roots        []*NodeJSON `json:"roots"`
}

// NewNodeJSON converts node and up to maxDepth levels of its operands; a
// non-positive maxDepth converts the whole subtree
func NewNodeJSON(node tree.Node, maxDepth int) *NodeJSON {
	return nodeJSON(node, maxDepth, 0)
}

func nodeJSON(node tree.Node, maxDepth, level int) *NodeJSON {
	insn := node.Insn()
	out := &NodeJSON{
		Index:  insn.Index,
		Offset: insn.Offset,
		Op:     insn.Op,
		Pull:   node.Pull(),
		Push:   node.Push(),
	}
	if insn.Payload != nil {
		out.Operand = insn.Payload.Operand()
	}
	if maxDepth > 0 && level >= maxDepth {
		return out
	}
	for _, child := range node.Children() {
		out.Children = append(out.Children, nodeJSON(child, maxDepth, level+1))
	}
	return out
}

// NewForestJSON converts a whole forest
func NewForestJSON(f *tree.Forest, maxDepth int) *ForestJSON {
	out := &ForestJSON{Method: f.Method(), Instructions: f.Len(), Roots: []*NodeJSON{}}
	for _, root := range f.Roots() {
		out.Roots = append(out.Roots, NewNodeJSON(root, maxDepth))
	}
	return out
}

func (tf *TreeFormatter) formatJSON(f *tree.Forest) string {
	data, err := json.MarshalIndent(NewForestJSON(f, tf.options.MaxDepth), "", tf.options.Indent)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}
