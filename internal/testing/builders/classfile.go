package builders

import (
	"encoding/binary"
	"math"
	"strconv"
)

// ClassFile assembles minimal class files byte by byte for decoder and
// scanner tests. Constant pool entries are interned, so asking for the same
// constant twice returns the same index.
type ClassFile struct {
	name       string
	super      string
	access     uint16
	major      uint16
	interfaces []string
	pool       [][]byte
	slots      uint16
	interned   map[string]uint16
	fields     [][]byte
	methods    [][]byte
	attrs      [][]byte
	bootstraps [][]byte
}

// ExceptionEntry is one row of a Code attribute's exception table
type ExceptionEntry struct {
	Start, End, Handler uint16
	CatchType           string
}

// CodeAttr describes a method body
type CodeAttr struct {
	MaxStack   uint16
	MaxLocals  uint16
	Code       []byte
	Exceptions []ExceptionEntry
	// Lines maps bytecode offsets to source lines, in table order
	Lines [][2]uint16
}

// NewClassFile starts a class with the given internal name and superclass
func NewClassFile(name, super string) *ClassFile {
	return &ClassFile{
		name:     name,
		super:    super,
		access:   0x0021,
		major:    52,
		slots:    1,
		interned: make(map[string]uint16),
	}
}

// Access sets the class access flags
func (c *ClassFile) Access(flags uint16) *ClassFile {
	c.access = flags
	return c
}

// Implements adds interfaces
func (c *ClassFile) Implements(names ...string) *ClassFile {
	c.interfaces = append(c.interfaces, names...)
	return c
}

func (c *ClassFile) add(key string, body []byte, wide bool) uint16 {
	if idx, ok := c.interned[key]; ok {
		return idx
	}
	idx := c.slots
	c.pool = append(c.pool, body)
	c.slots++
	if wide {
		c.slots++
	}
	c.interned[key] = idx
	return idx
}

func u2(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func u4(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Utf8 interns a CONSTANT_Utf8 (ASCII only)
func (c *ClassFile) Utf8(s string) uint16 {
	return c.add("u:"+s, cat([]byte{1}, u2(uint16(len(s))), []byte(s)), false)
}

// Class interns a CONSTANT_Class
func (c *ClassFile) Class(name string) uint16 {
	n := c.Utf8(name)
	return c.add("c:"+name, cat([]byte{7}, u2(n)), false)
}

// StringConst interns a CONSTANT_String
func (c *ClassFile) StringConst(s string) uint16 {
	n := c.Utf8(s)
	return c.add("s:"+s, cat([]byte{8}, u2(n)), false)
}

// Int interns a CONSTANT_Integer
func (c *ClassFile) Int(v int32) uint16 {
	return c.add("i:"+strconv.Itoa(int(v)), cat([]byte{3}, u4(uint32(v))), false)
}

// Long interns a CONSTANT_Long, which takes two pool slots
func (c *ClassFile) Long(v int64) uint16 {
	b := binary.BigEndian.AppendUint64([]byte{5}, uint64(v))
	return c.add("j:"+strconv.FormatInt(v, 10), b, true)
}

// Double interns a CONSTANT_Double
func (c *ClassFile) Double(v float64) uint16 {
	b := binary.BigEndian.AppendUint64([]byte{6}, math.Float64bits(v))
	return c.add("d:"+strconv.FormatUint(math.Float64bits(v), 16), b, true)
}

// NameAndType interns a CONSTANT_NameAndType
func (c *ClassFile) NameAndType(name, desc string) uint16 {
	n, d := c.Utf8(name), c.Utf8(desc)
	return c.add("nt:"+name+":"+desc, cat([]byte{12}, u2(n), u2(d)), false)
}

func (c *ClassFile) ref(tag byte, owner, name, desc string) uint16 {
	o, nt := c.Class(owner), c.NameAndType(name, desc)
	return c.add("r"+strconv.Itoa(int(tag))+":"+owner+"."+name+desc, cat([]byte{tag}, u2(o), u2(nt)), false)
}

// FieldRef interns a CONSTANT_Fieldref
func (c *ClassFile) FieldRef(owner, name, desc string) uint16 { return c.ref(9, owner, name, desc) }

// MethodRef interns a CONSTANT_Methodref
func (c *ClassFile) MethodRef(owner, name, desc string) uint16 { return c.ref(10, owner, name, desc) }

// InterfaceMethodRef interns a CONSTANT_InterfaceMethodref
func (c *ClassFile) InterfaceMethodRef(owner, name, desc string) uint16 {
	return c.ref(11, owner, name, desc)
}

// MethodHandle interns a CONSTANT_MethodHandle to a static method
func (c *ClassFile) MethodHandle(owner, name, desc string) uint16 {
	m := c.MethodRef(owner, name, desc)
	return c.add("h:"+owner+"."+name+desc, cat([]byte{15, 6}, u2(m)), false)
}

// InvokeDynamic interns a CONSTANT_InvokeDynamic whose bootstrap method is a
// static method handle with the given string arguments
func (c *ClassFile) InvokeDynamic(name, desc, bsmOwner, bsmName, bsmDesc string, args ...string) uint16 {
	h := c.MethodHandle(bsmOwner, bsmName, bsmDesc)
	bsm := cat(u2(h), u2(uint16(len(args))))
	for _, a := range args {
		bsm = append(bsm, u2(c.StringConst(a))...)
	}
	idx := uint16(len(c.bootstraps))
	c.bootstraps = append(c.bootstraps, bsm)
	nt := c.NameAndType(name, desc)
	return c.add("id:"+strconv.Itoa(int(idx))+name+desc, cat([]byte{18}, u2(idx), u2(nt)), false)
}

// Field declares a field
func (c *ClassFile) Field(access uint16, name, desc string) *ClassFile {
	c.fields = append(c.fields, cat(u2(access), u2(c.Utf8(name)), u2(c.Utf8(desc)), u2(0)))
	return c
}

// Method declares a method; a nil code declares an abstract or native one
func (c *ClassFile) Method(access uint16, name, desc string, code *CodeAttr) *ClassFile {
	body := cat(u2(access), u2(c.Utf8(name)), u2(c.Utf8(desc)))
	if code == nil {
		c.methods = append(c.methods, append(body, u2(0)...))
		return c
	}

	attr := cat(u2(code.MaxStack), u2(code.MaxLocals), u4(uint32(len(code.Code))), code.Code)
	attr = append(attr, u2(uint16(len(code.Exceptions)))...)
	for _, e := range code.Exceptions {
		var catchType uint16
		if e.CatchType != "" {
			catchType = c.Class(e.CatchType)
		}
		attr = append(attr, cat(u2(e.Start), u2(e.End), u2(e.Handler), u2(catchType))...)
	}
	if len(code.Lines) > 0 {
		table := u2(uint16(len(code.Lines)))
		for _, l := range code.Lines {
			table = append(table, cat(u2(l[0]), u2(l[1]))...)
		}
		attr = append(attr, u2(1)...)
		attr = append(attr, cat(u2(c.Utf8("LineNumberTable")), u4(uint32(len(table))), table)...)
	} else {
		attr = append(attr, u2(0)...)
	}

	body = append(body, u2(1)...)
	body = append(body, cat(u2(c.Utf8("Code")), u4(uint32(len(attr))), attr)...)
	c.methods = append(c.methods, body)
	return c
}

// Source sets the SourceFile attribute
func (c *ClassFile) Source(file string) *ClassFile {
	c.attrs = append(c.attrs, cat(u2(c.Utf8("SourceFile")), u4(2), u2(c.Utf8(file))))
	return c
}

// Bytes renders the class file
func (c *ClassFile) Bytes() []byte {
	this, super := c.Class(c.name), uint16(0)
	if c.super != "" {
		super = c.Class(c.super)
	}
	ifaces := make([]uint16, len(c.interfaces))
	for i, name := range c.interfaces {
		ifaces[i] = c.Class(name)
	}
	attrs := c.attrs
	if len(c.bootstraps) > 0 {
		table := cat(u2(uint16(len(c.bootstraps))), cat(c.bootstraps...))
		// interned last so the pool is complete before it is written
		attrs = append(attrs, cat(u2(c.Utf8("BootstrapMethods")), u4(uint32(len(table))), table))
	}

	out := cat(u4(0xcafebabe), u2(0), u2(c.major), u2(c.slots))
	out = append(out, cat(c.pool...)...)
	out = append(out, cat(u2(c.access), u2(this), u2(super), u2(uint16(len(ifaces))))...)
	for _, i := range ifaces {
		out = append(out, u2(i)...)
	}
	out = append(out, u2(uint16(len(c.fields)))...)
	out = append(out, cat(c.fields...)...)
	out = append(out, u2(uint16(len(c.methods)))...)
	out = append(out, cat(c.methods...)...)
	out = append(out, u2(uint16(len(attrs)))...)
	out = append(out, cat(attrs...)...)
	return out
}
