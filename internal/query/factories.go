package query

import (
	"fmt"
	"strings"

	"github.com/standardbeagle/bcq/internal/matcher"
	"github.com/standardbeagle/bcq/internal/tree"
	"github.com/standardbeagle/bcq/internal/types"
)

// Opcode groups used by the member factories
var (
	invokeOps       = opSet("invokevirtual", "invokespecial", "invokestatic", "invokeinterface")
	memberInvokeOps = opSet("invokevirtual", "invokespecial", "invokeinterface")
	fieldOps        = opSet("getfield", "putfield", "getstatic", "putstatic")
	memberFieldOps  = opSet("getfield", "putfield")
	staticFieldOps  = opSet("getstatic", "putstatic")
	getterOps       = opSet("getfield", "getstatic")
	putterOps       = opSet("putfield", "putstatic")
)

func opSet(ops ...string) map[string]bool {
	m := make(map[string]bool, len(ops))
	for _, op := range ops {
		m[op] = true
	}
	return m
}

// pattern compiles a string-matcher pattern; "" matches anything
func pattern(q *Query, p string) func(string) bool {
	if p == "" {
		return func(string) bool { return true }
	}
	m, err := matcher.Compile(p)
	if err != nil {
		q.fail(err)
		return func(string) bool { return false }
	}
	return m.Match
}

func describe(kind string, args ...string) string {
	var parts []string
	for _, a := range args {
		if a != "" {
			parts = append(parts, a)
		}
	}
	return kind + "(" + strings.Join(parts, ", ") + ")"
}

// Any matches every node
func Any() *Query {
	return New("any()", func(tree.Node) bool { return true })
}

// Op matches any of the given mnemonics
func Op(ops ...string) *Query {
	set := opSet(ops...)
	return New(describe("op", ops...), func(n tree.Node) bool { return set[n.Op()] })
}

// Filter matches nodes accepted by pred
func Filter(desc string, pred Predicate) *Query {
	return New(describe("filter", desc), pred)
}

// AnyNum matches any instruction with an immediate integer operand
// (bipush, sipush, newarray)
func AnyNum() *Query {
	return New("num()", func(n tree.Node) bool {
		_, ok := n.Insn().Payload.(types.IntOperand)
		return ok
	})
}

// Num matches an immediate integer operand equal to v
func Num(v int) *Query {
	return New(describe("num", itoa(v)), func(n tree.Node) bool {
		p, ok := n.Insn().Payload.(types.IntOperand)
		return ok && p.Value == v
	})
}

func member(kind string, ops map[string]bool, name, desc string) *Query {
	q := New(describe(kind, name, desc), nil)
	nameOK, descOK := pattern(q, name), pattern(q, desc)
	q.pred = func(n tree.Node) bool {
		insn := n.Insn()
		ref, ok := insn.Payload.(types.MemberRef)
		return ok && ops[insn.Op] && nameOK(ref.Name) && descOK(ref.Desc)
	}
	return q
}

// Method matches a method call whose name and descriptor match the given
// patterns; an empty pattern matches anything
func Method(name, desc string) *Query { return member("method", invokeOps, name, desc) }

// MemberMethod matches calls with a receiver (virtual, special, interface)
func MemberMethod(name, desc string) *Query {
	return member("membmethod", memberInvokeOps, name, desc)
}

// StaticMethod matches invokestatic calls
func StaticMethod(name, desc string) *Query {
	return member("statmethod", opSet("invokestatic"), name, desc)
}

// Field matches any field access
func Field(name, desc string) *Query { return member("field", fieldOps, name, desc) }

// MemberField matches getfield and putfield
func MemberField(name, desc string) *Query {
	return member("membfield", memberFieldOps, name, desc)
}

// StaticField matches getstatic and putstatic
func StaticField(name, desc string) *Query {
	return member("statfield", staticFieldOps, name, desc)
}

// Getter matches field reads
func Getter(name, desc string) *Query { return member("getter", getterOps, name, desc) }

// Putter matches field writes
func Putter(name, desc string) *Query { return member("putter", putterOps, name, desc) }

// Owner narrows a member or type query to owners matching pattern p
func (q *Query) Owner(p string) *Query {
	ok := pattern(q, p)
	return q.Where("owner("+p+")", func(n tree.Node) bool {
		switch pl := n.Insn().Payload.(type) {
		case types.MemberRef:
			return ok(pl.Owner)
		case types.InvokeDynamic:
			return ok(pl.Bootstrap.Owner)
		}
		return false
	})
}

// AnyLocalVar matches any local variable load, store or ret
func AnyLocalVar() *Query {
	return New("lvar()", func(n tree.Node) bool {
		_, ok := n.Insn().Payload.(types.VarOperand)
		return ok
	})
}

// LocalVar matches a local variable access of slot
func LocalVar(slot int) *Query {
	return New(describe("lvar", itoa(slot)), func(n tree.Node) bool {
		p, ok := n.Insn().Payload.(types.VarOperand)
		return ok && p.Var == slot
	})
}

// Jump matches branch instructions, optionally restricted to ops
func Jump(ops ...string) *Query {
	set := opSet(ops...)
	return New(describe("jump", ops...), func(n tree.Node) bool {
		insn := n.Insn()
		_, ok := insn.Payload.(types.JumpTarget)
		return ok && (len(set) == 0 || set[insn.Op])
	})
}

// Frame matches stack map frame markers, optionally of the given types
func Frame(frameTypes ...int) *Query {
	return New(describe("frame", joinInts(frameTypes)), func(n tree.Node) bool {
		p, ok := n.Insn().Payload.(types.FrameMarker)
		return ok && (len(frameTypes) == 0 || containsInt(frameTypes, p.Type))
	})
}

// Label matches label markers
func Label() *Query {
	return New("label()", func(n tree.Node) bool {
		_, ok := n.Insn().Payload.(types.LabelMarker)
		return ok
	})
}

// Line matches line number markers, optionally for the given lines
func Line(lines ...int) *Query {
	return New(describe("line", joinInts(lines)), func(n tree.Node) bool {
		p, ok := n.Insn().Payload.(types.LineMarker)
		return ok && (len(lines) == 0 || containsInt(lines, p.Line))
	})
}

// Constant matches ldc instructions whose constant, as text, matches p
func Constant(p string) *Query {
	q := New(describe("constant", p), nil)
	ok := pattern(q, p)
	q.pred = func(n tree.Node) bool {
		c, isConst := n.Insn().Payload.(types.Constant)
		return isConst && ok(c.Text())
	}
	return q
}

// TableSwitch matches any tableswitch
func TableSwitch() *Query {
	return New("tswitch()", func(n tree.Node) bool {
		_, ok := n.Insn().Payload.(types.TableSwitch)
		return ok
	})
}

// TableSwitchRange matches a tableswitch over exactly [min, max]
func TableSwitchRange(min, max int32) *Query {
	return New(fmt.Sprintf("tswitch(%d, %d)", min, max), func(n tree.Node) bool {
		p, ok := n.Insn().Payload.(types.TableSwitch)
		return ok && p.Min == min && p.Max == max
	})
}

// LookupSwitch matches a lookupswitch containing every key given
func LookupSwitch(keys ...int32) *Query {
	parts := make([]int, len(keys))
	for i, k := range keys {
		parts[i] = int(k)
	}
	return New(describe("lswitch", joinInts(parts)), func(n tree.Node) bool {
		p, ok := n.Insn().Payload.(types.LookupSwitch)
		if !ok {
			return false
		}
		for _, k := range keys {
			found := false
			for _, have := range p.Keys {
				if have == k {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	})
}

// MultiArray matches multianewarray by descriptor pattern and, when dims is
// positive, dimension count
func MultiArray(desc string, dims int) *Query {
	d := ""
	if dims > 0 {
		d = itoa(dims)
	}
	q := New(describe("mana", desc, d), nil)
	ok := pattern(q, desc)
	q.pred = func(n tree.Node) bool {
		p, isArr := n.Insn().Payload.(types.MultiArray)
		return isArr && ok(p.Desc) && (dims <= 0 || p.Dims == dims)
	}
	return q
}

// Type matches new, anewarray, checkcast and instanceof by type pattern
func Type(desc string) *Query {
	q := New(describe("type", desc), nil)
	ok := pattern(q, desc)
	q.pred = func(n tree.Node) bool {
		p, isType := n.Insn().Payload.(types.TypeOperand)
		return isType && ok(p.Desc)
	}
	return q
}

// Dynamic matches invokedynamic call sites by name and descriptor pattern
func Dynamic(name, desc string) *Query {
	q := New(describe("dynamic", name, desc), nil)
	nameOK, descOK := pattern(q, name), pattern(q, desc)
	q.pred = func(n tree.Node) bool {
		p, ok := n.Insn().Payload.(types.InvokeDynamic)
		return ok && nameOK(p.Name) && descOK(p.Desc)
	}
	return q
}

// Inc matches any iinc
func Inc() *Query {
	return New("inc()", func(n tree.Node) bool {
		_, ok := n.Insn().Payload.(types.IincOperand)
		return ok
	})
}

// IncOf matches iinc of slot by incr
func IncOf(slot, incr int) *Query {
	return New(describe("inc", itoa(slot), itoa(incr)), func(n tree.Node) bool {
		p, ok := n.Insn().Payload.(types.IincOperand)
		return ok && p.Var == slot && p.Incr == incr
	})
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = itoa(v)
	}
	return strings.Join(parts, ", ")
}
