package types

import (
	"fmt"
	"strconv"
	"strings"
)

// PayloadKind tags the operand variant carried by an Instruction
type PayloadKind uint8

const (
	KindNone PayloadKind = iota
	KindInt
	KindVar
	KindMember
	KindDynamic
	KindType
	KindConstant
	KindJump
	KindTableSwitch
	KindLookupSwitch
	KindMultiArray
	KindIinc
	KindLabel
	KindLine
	KindFrame
)

var kindNames = [...]string{
	KindNone:         "none",
	KindInt:          "int",
	KindVar:          "var",
	KindMember:       "member",
	KindDynamic:      "dynamic",
	KindType:         "type",
	KindConstant:     "constant",
	KindJump:         "jump",
	KindTableSwitch:  "tableswitch",
	KindLookupSwitch: "lookupswitch",
	KindMultiArray:   "multiarray",
	KindIinc:         "iinc",
	KindLabel:        "label",
	KindLine:         "line",
	KindFrame:        "frame",
}

func (k PayloadKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Payload is the decoded operand of an instruction. Exactly one concrete
// variant below is attached to every instruction.
type Payload interface {
	Kind() PayloadKind
	// Operand renders the operand the way it follows the mnemonic in
	// verbose listings; empty when there is nothing to show.
	Operand() string
}

// DynamicArity is implemented by payloads whose stack effect depends on the
// operand rather than the opcode alone (method calls, invokedynamic,
// multianewarray).
type DynamicArity interface {
	StackEffect(op string) (pull, push int)
}

// NoOperand is the payload of zero-operand instructions
type NoOperand struct{}

func (NoOperand) Kind() PayloadKind { return KindNone }
func (NoOperand) Operand() string   { return "" }

// IntOperand is the immediate of bipush, sipush and newarray
type IntOperand struct {
	Value int
}

func (IntOperand) Kind() PayloadKind  { return KindInt }
func (p IntOperand) Operand() string { return strconv.Itoa(p.Value) }

// VarOperand is a local variable slot (loads, stores, ret)
type VarOperand struct {
	Var int
}

func (VarOperand) Kind() PayloadKind  { return KindVar }
func (p VarOperand) Operand() string { return strconv.Itoa(p.Var) }

// MemberRef is a field or method reference
type MemberRef struct {
	Owner     string
	Name      string
	Desc      string
	Interface bool
}

func (MemberRef) Kind() PayloadKind { return KindMember }

func (p MemberRef) Operand() string {
	if p.IsMethod() {
		return p.Owner + "." + p.Name + p.Desc
	}
	return p.Owner + "." + p.Name + " " + p.Desc
}

// IsMethod reports whether the reference names a method (descriptor "(...)R")
func (p MemberRef) IsMethod() bool {
	return strings.HasPrefix(p.Desc, "(")
}

// Key is the "<owner>.<name><desc>" form
func (p MemberRef) Key() string {
	return p.Owner + "." + p.Name + p.Desc
}

// StackEffect pulls the arguments plus the receiver for every invoke except
// invokestatic, and pushes nothing for void methods.
func (p MemberRef) StackEffect(op string) (int, int) {
	pull := ArgumentCount(p.Desc)
	if op != "invokestatic" {
		pull++
	}
	push := 1
	if ReturnType(p.Desc) == "V" {
		push = 0
	}
	return pull, push
}

// InvokeDynamic is the call site of an invokedynamic instruction
type InvokeDynamic struct {
	Name          string
	Desc          string
	Bootstrap     MemberRef
	BootstrapArgs []string
}

func (InvokeDynamic) Kind() PayloadKind { return KindDynamic }

func (p InvokeDynamic) Operand() string {
	return p.Name + p.Desc + " " + p.Bootstrap.Key()
}

// StackEffect pulls exactly the call-site arguments; there is no receiver.
func (p InvokeDynamic) StackEffect(string) (int, int) {
	push := 1
	if ReturnType(p.Desc) == "V" {
		push = 0
	}
	return ArgumentCount(p.Desc), push
}

// TypeOperand is the class operand of new, anewarray, checkcast and instanceof
type TypeOperand struct {
	Desc string
}

func (TypeOperand) Kind() PayloadKind  { return KindType }
func (p TypeOperand) Operand() string { return p.Desc }

// Constant is an ldc literal. Value holds int32, int64, float32, float64,
// string, or one of the ClassConstant, MethodTypeConstant, HandleConstant
// and DynamicConstant wrappers.
type Constant struct {
	Value interface{}
}

// ClassConstant is a class literal loaded by ldc
type ClassConstant struct {
	Name string
}

func (c ClassConstant) String() string { return c.Name + ".class" }

// MethodTypeConstant is a method type loaded by ldc
type MethodTypeConstant struct {
	Desc string
}

func (c MethodTypeConstant) String() string { return c.Desc }

// HandleConstant is a method handle loaded by ldc or passed to a bootstrap
// method
type HandleConstant struct {
	RefKind int
	Ref     MemberRef
}

func (c HandleConstant) String() string { return "handle " + c.Ref.Key() }

// DynamicConstant is a CONSTANT_Dynamic computed by a bootstrap method
type DynamicConstant struct {
	Name string
	Desc string
}

func (c DynamicConstant) String() string { return c.Name + ":" + c.Desc }

func (Constant) Kind() PayloadKind { return KindConstant }

func (p Constant) Operand() string {
	if s, ok := p.Value.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(p.Value)
}

// Text is the constant's value as plain text, used for pattern matching
func (p Constant) Text() string {
	return fmt.Sprint(p.Value)
}

// JumpTarget references the label a branch transfers to
type JumpTarget struct {
	Label int
}

func (JumpTarget) Kind() PayloadKind  { return KindJump }
func (p JumpTarget) Operand() string { return "L" + strconv.Itoa(p.Label) }

// TableSwitch is a dense switch over [Min, Max]
type TableSwitch struct {
	Min     int32
	Max     int32
	Default int
	Labels  []int
}

func (TableSwitch) Kind() PayloadKind { return KindTableSwitch }

func (p TableSwitch) Operand() string {
	return fmt.Sprintf("%d..%d default L%d", p.Min, p.Max, p.Default)
}

// LookupSwitch is a sparse switch over Keys
type LookupSwitch struct {
	Keys    []int32
	Default int
	Labels  []int
}

func (LookupSwitch) Kind() PayloadKind { return KindLookupSwitch }

func (p LookupSwitch) Operand() string {
	return fmt.Sprintf("%d keys default L%d", len(p.Keys), p.Default)
}

// MultiArray is the operand of multianewarray
type MultiArray struct {
	Desc string
	Dims int
}

func (MultiArray) Kind() PayloadKind { return KindMultiArray }

func (p MultiArray) Operand() string {
	return p.Desc + " " + strconv.Itoa(p.Dims)
}

// StackEffect pulls one count per dimension and pushes the array
func (p MultiArray) StackEffect(string) (int, int) {
	return p.Dims, 1
}

// IincOperand is the operand of iinc
type IincOperand struct {
	Var  int
	Incr int
}

func (IincOperand) Kind() PayloadKind { return KindIinc }

func (p IincOperand) Operand() string {
	return strconv.Itoa(p.Var) + " " + strconv.Itoa(p.Incr)
}

// LabelMarker marks a branch target inside the instruction list
type LabelMarker struct {
	ID int
}

func (LabelMarker) Kind() PayloadKind  { return KindLabel }
func (p LabelMarker) Operand() string { return "L" + strconv.Itoa(p.ID) }

// LineMarker associates a source line with the following label
type LineMarker struct {
	Line  int
	Label int
}

func (LineMarker) Kind() PayloadKind { return KindLine }

func (p LineMarker) Operand() string {
	return strconv.Itoa(p.Line) + " L" + strconv.Itoa(p.Label)
}

// FrameMarker is a stack map frame entry
type FrameMarker struct {
	Type int
}

func (FrameMarker) Kind() PayloadKind  { return KindFrame }
func (p FrameMarker) Operand() string { return strconv.Itoa(p.Type) }
