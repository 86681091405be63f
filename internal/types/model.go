package types

// Access flags shared by classes, fields and methods
const (
	AccPublic     uint16 = 0x0001
	AccPrivate    uint16 = 0x0002
	AccProtected  uint16 = 0x0004
	AccStatic     uint16 = 0x0008
	AccFinal      uint16 = 0x0010
	AccSuper      uint16 = 0x0020
	AccInterface  uint16 = 0x0200
	AccAbstract   uint16 = 0x0400
	AccSynthetic  uint16 = 0x1000
	AccAnnotation uint16 = 0x2000
	AccEnum       uint16 = 0x4000
)

// Pseudo-instruction mnemonics. They occupy list positions but have no stack
// effect.
const (
	OpLabel = "label"
	OpLine  = "line"
	OpFrame = "frame"
)

// Instruction is one decoded element of a method body. Index is its position
// in the method's instruction list and doubles as its identity within a
// single decode.
type Instruction struct {
	Index   int
	Offset  int
	Op      string
	Payload Payload
}

// Insn creates an instruction with no bytecode offset; Index is assigned
// when it is added to a Method.
func Insn(op string, payload Payload) Instruction {
	if payload == nil {
		payload = NoOperand{}
	}
	return Instruction{Offset: -1, Op: op, Payload: payload}
}

// IsPseudo reports whether the instruction is a label, line or frame marker
func (i Instruction) IsPseudo() bool {
	switch i.Op {
	case OpLabel, OpLine, OpFrame:
		return true
	}
	return false
}

// Verbose renders the mnemonic followed by its operand, if any
func (i Instruction) Verbose() string {
	if i.Payload == nil {
		return i.Op
	}
	if operand := i.Payload.Operand(); operand != "" {
		return i.Op + " " + operand
	}
	return i.Op
}

func (i Instruction) String() string {
	return i.Verbose()
}

// Method is a decoded method body
type Method struct {
	Owner        string
	Name         string
	Desc         string
	Access       uint16
	MaxStack     int
	MaxLocals    int
	Instructions []Instruction
}

// NewMethod creates a method and renumbers insns so Index matches position
func NewMethod(owner, name, desc string, access uint16, insns []Instruction) *Method {
	m := &Method{Owner: owner, Name: name, Desc: desc, Access: access}
	m.SetInstructions(insns)
	return m
}

// SetInstructions replaces the body, renumbering Index fields
func (m *Method) SetInstructions(insns []Instruction) {
	m.Instructions = make([]Instruction, len(insns))
	for i, insn := range insns {
		if insn.Payload == nil {
			insn.Payload = NoOperand{}
		}
		insn.Index = i
		m.Instructions[i] = insn
	}
}

// Key is "<owner>.<name><desc>"
func (m *Method) Key() string {
	return m.Owner + "." + m.Name + m.Desc
}

// IsLocal reports whether the method is an instance (non-static) method
func (m *Method) IsLocal() bool {
	return m.Access&AccStatic == 0
}

// ParamCount is the number of declared parameters
func (m *Method) ParamCount() int {
	return ArgumentCount(m.Desc)
}

// HasCode reports whether the method has a body (not abstract or native)
func (m *Method) HasCode() bool {
	return len(m.Instructions) > 0
}

// NextValid returns the first non-label instruction after position from
func (m *Method) NextValid(from int) (Instruction, bool) {
	for i := from + 1; i < len(m.Instructions); i++ {
		if m.Instructions[i].Op != OpLabel {
			return m.Instructions[i], true
		}
	}
	return Instruction{}, false
}

// NextPattern returns the instructions immediately after position from if
// their mnemonics equal ops in order, and nil otherwise.
func (m *Method) NextPattern(from int, ops ...string) []Instruction {
	if from+len(ops) >= len(m.Instructions) {
		return nil
	}
	out := make([]Instruction, 0, len(ops))
	for i, op := range ops {
		insn := m.Instructions[from+1+i]
		if insn.Op != op {
			return nil
		}
		out = append(out, insn)
	}
	return out
}

// NextValidPattern is NextPattern over the instruction stream with labels
// skipped.
func (m *Method) NextValidPattern(from int, ops ...string) []Instruction {
	out := make([]Instruction, 0, len(ops))
	cur := from
	for _, op := range ops {
		next, ok := m.NextValid(cur)
		if !ok || next.Op != op {
			return nil
		}
		out = append(out, next)
		cur = next.Index
	}
	return out
}

// Field is a declared field
type Field struct {
	Owner  string
	Name   string
	Desc   string
	Access uint16
}

// Key is "<owner>.<name>"
func (f *Field) Key() string {
	return f.Owner + "." + f.Name
}

// IsStatic reports whether the field has ACC_STATIC
func (f *Field) IsStatic() bool {
	return f.Access&AccStatic != 0
}

// Class is a decoded class file
type Class struct {
	Name       string
	SuperName  string
	Interfaces []string
	Access     uint16
	Major      uint16
	Minor      uint16
	Fields     []*Field
	Methods    []*Method
	Source     string
}

// Method finds a declared method by name and descriptor
func (c *Class) Method(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Desc == desc {
			return m
		}
	}
	return nil
}

// Field finds a declared field by name and descriptor. An empty desc matches
// any descriptor.
func (c *Class) Field(name, desc string) *Field {
	for _, f := range c.Fields {
		if f.Name == name && (desc == "" || f.Desc == desc) {
			return f
		}
	}
	return nil
}

// IsInterface reports whether the class is an interface
func (c *Class) IsInterface() bool {
	return c.Access&AccInterface != 0
}
