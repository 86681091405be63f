// Package opcodes maps JVM mnemonics to their operand-stack arity.
package opcodes

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hbollon/go-edlib"
	"github.com/pelletier/go-toml/v2"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/types"
)

//go:embed listing.toml
var listingTOML []byte

// Dynamic marks a pull count that depends on the instruction's operand
const Dynamic = -1

// maxSuggestDistance bounds the edit distance of "did you mean" hints
const maxSuggestDistance = 3

// Entry is one row of an opcode listing
type Entry struct {
	Mnemonic string `toml:"mnemonic"`
	Code     int    `toml:"code"`
	Stack    string `toml:"stack"`
}

type listing struct {
	Opcode []Entry `toml:"opcode"`
}

// Descriptor is a parsed opcode listing row
type Descriptor struct {
	Name  string
	Code  byte
	Stack string
	Pull  int
	Push  int
}

// Table resolves instructions to (pull, push) counts. A Table is immutable
// after construction and safe for concurrent use.
type Table struct {
	byName map[string]*Descriptor
	byCode [256]*Descriptor
	names  []string
}

var (
	defaultTable *Table
	defaultErr   error
	defaultOnce  sync.Once
)

// Default returns the table built from the embedded JVM listing
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = Parse(listingTOML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("opcodes: embedded listing: %v", defaultErr))
	}
	return defaultTable
}

// Parse builds a table from a TOML listing document
func Parse(data []byte) (*Table, error) {
	var l listing
	if err := toml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse opcode listing: %w", err)
	}
	return NewTable(l.Opcode)
}

// NewTable parses every entry's stack description. Any description that
// cannot be split into pulled and pushed operands fails the whole table.
func NewTable(entries []Entry) (*Table, error) {
	t := &Table{byName: make(map[string]*Descriptor, len(entries))}
	for _, e := range entries {
		name := strings.ToLower(strings.TrimSpace(e.Mnemonic))
		if name == "" {
			return nil, bcqerrors.NewMalformedPatternError("?", e.Stack, "missing mnemonic")
		}
		if _, dup := t.byName[name]; dup {
			return nil, bcqerrors.NewMalformedPatternError(name, e.Stack, "duplicate mnemonic")
		}
		if e.Code < 0 || e.Code > 0xff {
			return nil, bcqerrors.NewMalformedPatternError(name, e.Stack, fmt.Sprintf("opcode 0x%x out of range", e.Code))
		}
		if t.byCode[e.Code] != nil {
			return nil, bcqerrors.NewMalformedPatternError(name, e.Stack,
				fmt.Sprintf("opcode 0x%02x already used by %s", e.Code, t.byCode[e.Code].Name))
		}
		pull, push, err := ParseStackEffect(e.Stack)
		if err != nil {
			return nil, bcqerrors.NewMalformedPatternError(name, e.Stack, err.Error())
		}
		d := &Descriptor{Name: name, Code: byte(e.Code), Stack: e.Stack, Pull: pull, Push: push}
		t.byName[name] = d
		t.byCode[e.Code] = d
		t.names = append(t.names, name)
	}
	sort.Strings(t.names)
	return t, nil
}

// Lookup finds a descriptor by mnemonic
func (t *Table) Lookup(name string) (*Descriptor, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// ByCode finds a descriptor by opcode byte
func (t *Table) ByCode(code byte) (*Descriptor, bool) {
	d := t.byCode[code]
	return d, d != nil
}

// Names returns every mnemonic in sorted order
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Len is the number of opcodes in the table
func (t *Table) Len() int {
	return len(t.names)
}

// Resolve returns how many values insn pops and pushes. Label, line and
// frame markers resolve to (0, 0). Operand-dependent entries defer to the
// payload's own stack effect.
func (t *Table) Resolve(insn types.Instruction) (pull, push int, err error) {
	if insn.IsPseudo() {
		return 0, 0, nil
	}
	d, ok := t.byName[insn.Op]
	if !ok {
		return 0, 0, bcqerrors.NewUnknownOpcodeError(insn.Op, t.Suggest(insn.Op))
	}
	if d.Pull != Dynamic {
		return d.Pull, d.Push, nil
	}
	dyn, ok := insn.Payload.(types.DynamicArity)
	if !ok {
		kind := "none"
		if insn.Payload != nil {
			kind = insn.Payload.Kind().String()
		}
		return 0, 0, bcqerrors.NewPayloadMismatchError(d.Name, kind)
	}
	pull, push = dyn.StackEffect(d.Name)
	return pull, push, nil
}

// Suggest returns the closest known mnemonic to name, or "" if nothing is
// near enough.
func (t *Table) Suggest(name string) string {
	return Closest(strings.ToLower(name), t.names, maxSuggestDistance)
}

// Closest returns the candidate with the smallest Levenshtein distance to
// input, provided it is within maxDistance.
func Closest(input string, candidates []string, maxDistance int) string {
	best, bestDistance := "", maxDistance+1
	for _, c := range candidates {
		d := edlib.LevenshteinDistance(input, c)
		if d < bestDistance {
			best, bestDistance = c, d
		}
	}
	return best
}
