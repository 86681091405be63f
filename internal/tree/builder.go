package tree

import (
	"fmt"

	"github.com/standardbeagle/bcq/internal/debug"
	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/types"
)

// Resolver supplies the operand-stack arity of an instruction.
// *opcodes.Table implements it.
type Resolver interface {
	Resolve(insn types.Instruction) (pull, push int, err error)
}

// Build reconstructs the expression forest of a decoded method
func Build(m *types.Method, r Resolver) (*Forest, error) {
	return BuildInstructions(m.Key(), m.Instructions, r)
}

// BuildInstructions reconstructs the expression forest of insns. The
// sequence is walked from the end: each position not already consumed as an
// operand becomes a root, and consumes exactly its pull count of preceding
// instructions as children, each of which does the same recursively.
//
// If an instruction needs more operands than precede it, the whole build
// fails with a StructuralError and no forest is returned.
func BuildInstructions(method string, insns []types.Instruction, r Resolver) (*Forest, error) {
	own := make([]types.Instruction, len(insns))
	for i, insn := range insns {
		if insn.Payload == nil {
			insn.Payload = types.NoOperand{}
		}
		insn.Index = i
		own[i] = insn
	}

	f := newForest(method, own)
	b := &builder{f: f, r: r}

	for cursor := len(own) - 1; cursor >= 0; {
		root := cursor
		next, err := b.subtree(cursor)
		if err != nil {
			debug.LogBuild("%s: %v\n", method, err)
			return nil, err
		}
		f.roots = append(f.roots, root)
		cursor = next
	}
	reverseInts(f.roots)
	f.link()

	debug.LogBuild("%s: %d instructions, %d roots\n", method, len(own), len(f.roots))
	return f, nil
}

type builder struct {
	f *Forest
	r Resolver
}

// subtree resolves the node at pos and consumes its operands. It returns the
// position of the first instruction left unconsumed (-1 when exhausted).
func (b *builder) subtree(pos int) (int, error) {
	insn := b.f.insns[pos]
	pull, push, err := b.r.Resolve(insn)
	if err != nil {
		return 0, fmt.Errorf("%s at #%d: %w", b.f.method, pos, err)
	}
	b.f.pull[pos] = pull
	b.f.push[pos] = push

	var kids []int
	if pull > 0 {
		kids = make([]int, 0, pull)
	}
	cursor := pos - 1
	for len(kids) < pull {
		if cursor < 0 {
			return 0, bcqerrors.NewStructuralError(b.f.method, pos, insn.Offset, insn.Op, pull, len(kids))
		}
		child := cursor
		if cursor, err = b.subtree(cursor); err != nil {
			return 0, err
		}
		b.f.parent[child] = pos
		kids = append(kids, child)
	}

	// operands were found right to left
	reverseInts(kids)
	b.f.childStart[pos] = len(b.f.childIdx)
	b.f.childLen[pos] = len(kids)
	b.f.childIdx = append(b.f.childIdx, kids...)
	return cursor, nil
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
