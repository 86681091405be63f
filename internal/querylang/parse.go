// Package querylang reads queries written as KDL documents.
//
// Each top-level node is one query of a walk chain. The node name picks the
// predicate, arguments and properties configure it, and the common
// properties capture= and dist= name the query and bound its hop distance.
// Near and child constraints are nested blocks:
//
//	putter "cache" capture="store" {
//	    child {
//	        method "^>init" capture="call"
//	    }
//	}
package querylang

import (
	"fmt"
	"os"
	"sort"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/opcodes"
	"github.com/standardbeagle/bcq/internal/query"
)

// Parse reads a query chain from KDL source
func Parse(src string) ([]*query.Query, error) {
	return ParseWithDistance(src, query.DefaultDistance)
}

// ParseWithDistance is Parse with a different hop bound for nodes that do
// not set dist=
func ParseWithDistance(src string, dist int) ([]*query.Query, error) {
	doc, err := kdl.Parse(strings.NewReader(src))
	if err != nil {
		return nil, bcqerrors.NewInvalidPatternError(firstLine(src), fmt.Errorf("parse KDL query: %w", err))
	}
	if len(doc.Nodes) == 0 {
		return nil, bcqerrors.NewInvalidPatternError("", fmt.Errorf("query document has no nodes"))
	}

	chain := make([]*query.Query, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		q, err := buildNode(n, dist)
		if err != nil {
			return nil, err
		}
		chain = append(chain, q)
	}
	return chain, nil
}

// ParseFile reads a query chain from a .kdl file
func ParseFile(path string) ([]*query.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query file: %w", err)
	}
	return Parse(string(data))
}

// Kinds lists every node name understood as a predicate
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func buildNode(n *document.Node, dist int) (*query.Query, error) {
	kind := nodeName(n)
	build, ok := kinds[kind]
	if !ok {
		msg := fmt.Sprintf("unknown query kind %q", kind)
		if s := opcodes.Closest(kind, Kinds(), 2); s != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", s)
		}
		return nil, bcqerrors.NewInvalidPatternError(kind, fmt.Errorf("%s", msg))
	}

	a := newArgs(kind, n)
	q := build(a)
	if a.err != nil {
		return nil, a.err
	}

	if name, ok := a.stringProp("capture"); ok {
		q.Named(name)
	}
	if d, ok := a.intProp("dist"); ok {
		q.Dist(d)
	} else {
		q.Dist(dist)
	}
	if owner, ok := a.stringProp("owner"); ok {
		q.Owner(owner)
	}
	if err := a.unused(); err != nil {
		return nil, err
	}

	for _, c := range n.Children {
		section := nodeName(c)
		if section != "near" && section != "child" {
			return nil, bcqerrors.NewInvalidPatternError(kind,
				fmt.Errorf("unexpected block %q, want near or child", section))
		}
		for _, sub := range c.Children {
			sq, err := buildNode(sub, dist)
			if err != nil {
				return nil, err
			}
			if section == "near" {
				q.Near(sq)
			} else {
				q.Child(sq)
			}
		}
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
