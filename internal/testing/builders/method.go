package builders

import (
	"github.com/standardbeagle/bcq/internal/types"
)

// MethodBuilder assembles decoded method bodies for tests
type MethodBuilder struct {
	owner  string
	name   string
	desc   string
	access uint16
	insns  []types.Instruction
	offset int
}

// NewMethod starts a method body. Instructions get consecutive bytecode
// offsets; pseudo-instructions get -1.
func NewMethod(owner, name, desc string) *MethodBuilder {
	return &MethodBuilder{owner: owner, name: name, desc: desc}
}

// Static marks the method ACC_STATIC
func (b *MethodBuilder) Static() *MethodBuilder {
	b.access |= types.AccStatic
	return b
}

// Add appends an arbitrary instruction
func (b *MethodBuilder) Add(op string, payload types.Payload) *MethodBuilder {
	insn := types.Insn(op, payload)
	if !insn.IsPseudo() {
		insn.Offset = b.offset
		b.offset++
	}
	b.insns = append(b.insns, insn)
	return b
}

// Op appends zero-operand instructions
func (b *MethodBuilder) Op(ops ...string) *MethodBuilder {
	for _, op := range ops {
		b.Add(op, nil)
	}
	return b
}

// Int appends bipush, sipush or newarray
func (b *MethodBuilder) Int(op string, v int) *MethodBuilder {
	return b.Add(op, types.IntOperand{Value: v})
}

// Var appends a local variable load or store
func (b *MethodBuilder) Var(op string, slot int) *MethodBuilder {
	return b.Add(op, types.VarOperand{Var: slot})
}

// Invoke appends a method call
func (b *MethodBuilder) Invoke(op, owner, name, desc string) *MethodBuilder {
	return b.Add(op, types.MemberRef{Owner: owner, Name: name, Desc: desc, Interface: op == "invokeinterface"})
}

// Field appends a field access
func (b *MethodBuilder) Field(op, owner, name, desc string) *MethodBuilder {
	return b.Add(op, types.MemberRef{Owner: owner, Name: name, Desc: desc})
}

// Type appends new, anewarray, checkcast or instanceof
func (b *MethodBuilder) Type(op, desc string) *MethodBuilder {
	return b.Add(op, types.TypeOperand{Desc: desc})
}

// Ldc appends a constant load
func (b *MethodBuilder) Ldc(v interface{}) *MethodBuilder {
	return b.Add("ldc", types.Constant{Value: v})
}

// Jump appends a branch to label
func (b *MethodBuilder) Jump(op string, label int) *MethodBuilder {
	return b.Add(op, types.JumpTarget{Label: label})
}

// Label appends a label marker
func (b *MethodBuilder) Label(id int) *MethodBuilder {
	return b.Add(types.OpLabel, types.LabelMarker{ID: id})
}

// Line appends a line number marker
func (b *MethodBuilder) Line(line, label int) *MethodBuilder {
	return b.Add(types.OpLine, types.LineMarker{Line: line, Label: label})
}

// Iinc appends an iinc
func (b *MethodBuilder) Iinc(slot, incr int) *MethodBuilder {
	return b.Add("iinc", types.IincOperand{Var: slot, Incr: incr})
}

// MultiArray appends multianewarray
func (b *MethodBuilder) MultiArray(desc string, dims int) *MethodBuilder {
	return b.Add("multianewarray", types.MultiArray{Desc: desc, Dims: dims})
}

// Build returns the method
func (b *MethodBuilder) Build() *types.Method {
	return types.NewMethod(b.owner, b.name, b.desc, b.access, b.insns)
}

// Instructions returns just the instruction list
func (b *MethodBuilder) Instructions() []types.Instruction {
	return b.Build().Instructions
}

// AddOne is the method body of `a = 1 + 2; return a;`
func AddOne() *types.Method {
	return NewMethod("Sample", "addOne", "()I").Static().
		Op("iconst_1", "iconst_2", "iadd").
		Var("istore", 0).
		Var("iload", 0).
		Op("ireturn").
		Build()
}
