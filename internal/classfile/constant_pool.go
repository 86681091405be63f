package classfile

import (
	"fmt"
	"math"

	"github.com/standardbeagle/bcq/internal/types"
)

// Constant pool tags
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// entry is one constant pool slot. a and b hold the referenced indexes (or
// the reference kind for method handles); value holds resolved literals.
type entry struct {
	tag   uint8
	a, b  uint16
	str   string
	value interface{}
}

type constantPool []entry

func readConstantPool(r *reader) (constantPool, error) {
	count := int(r.u2())
	if count == 0 {
		return nil, fmt.Errorf("constant pool count is zero")
	}
	cp := make(constantPool, count)
	for i := 1; i < count; i++ {
		start := r.pos
		e := entry{tag: r.u1()}
		switch e.tag {
		case tagUtf8:
			e.str = modifiedUTF8(r.bytes(int(r.u2())))
		case tagInteger:
			e.value = r.s4()
		case tagFloat:
			e.value = math.Float32frombits(r.u4())
		case tagLong:
			e.value = int64(r.u8())
		case tagDouble:
			e.value = math.Float64frombits(r.u8())
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			e.a = r.u2()
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType,
			tagDynamic, tagInvokeDynamic:
			e.a, e.b = r.u2(), r.u2()
		case tagMethodHandle:
			e.a, e.b = uint16(r.u1()), r.u2()
		default:
			if r.err == nil {
				return nil, fmt.Errorf("constant #%d at byte %d has unknown tag %d", i, start, e.tag)
			}
		}
		if r.err != nil {
			return nil, r.err
		}
		cp[i] = e
		// long and double take two slots
		if e.tag == tagLong || e.tag == tagDouble {
			i++
		}
	}
	return cp, nil
}

func (cp constantPool) get(i uint16, tags ...uint8) (entry, error) {
	if i == 0 || int(i) >= len(cp) {
		return entry{}, fmt.Errorf("constant index %d out of range", i)
	}
	e := cp[i]
	if len(tags) == 0 {
		return e, nil
	}
	for _, t := range tags {
		if e.tag == t {
			return e, nil
		}
	}
	return entry{}, fmt.Errorf("constant #%d has tag %d, want %v", i, e.tag, tags)
}

func (cp constantPool) utf8(i uint16) (string, error) {
	e, err := cp.get(i, tagUtf8)
	if err != nil {
		return "", err
	}
	return e.str, nil
}

// className resolves a CONSTANT_Class to its internal name
func (cp constantPool) className(i uint16) (string, error) {
	e, err := cp.get(i, tagClass)
	if err != nil {
		return "", err
	}
	return cp.utf8(e.a)
}

func (cp constantPool) nameAndType(i uint16) (name, desc string, err error) {
	e, err := cp.get(i, tagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = cp.utf8(e.a); err != nil {
		return "", "", err
	}
	desc, err = cp.utf8(e.b)
	return name, desc, err
}

// member resolves a field, method or interface method reference
func (cp constantPool) member(i uint16) (types.MemberRef, error) {
	e, err := cp.get(i, tagFieldref, tagMethodref, tagInterfaceMethodref)
	if err != nil {
		return types.MemberRef{}, err
	}
	owner, err := cp.className(e.a)
	if err != nil {
		return types.MemberRef{}, err
	}
	name, desc, err := cp.nameAndType(e.b)
	if err != nil {
		return types.MemberRef{}, err
	}
	return types.MemberRef{Owner: owner, Name: name, Desc: desc, Interface: e.tag == tagInterfaceMethodref}, nil
}

func (cp constantPool) handle(i uint16) (types.HandleConstant, error) {
	e, err := cp.get(i, tagMethodHandle)
	if err != nil {
		return types.HandleConstant{}, err
	}
	ref, err := cp.member(e.b)
	if err != nil {
		return types.HandleConstant{}, err
	}
	return types.HandleConstant{RefKind: int(e.a), Ref: ref}, nil
}

// loadable resolves an ldc operand or a bootstrap argument
func (cp constantPool) loadable(i uint16) (interface{}, error) {
	e, err := cp.get(i)
	if err != nil {
		return nil, err
	}
	switch e.tag {
	case tagInteger, tagFloat, tagLong, tagDouble:
		return e.value, nil
	case tagString:
		return cp.utf8(e.a)
	case tagClass:
		name, err := cp.utf8(e.a)
		return types.ClassConstant{Name: name}, err
	case tagMethodType:
		desc, err := cp.utf8(e.a)
		return types.MethodTypeConstant{Desc: desc}, err
	case tagMethodHandle:
		return cp.handle(i)
	case tagDynamic:
		name, desc, err := cp.nameAndType(e.b)
		return types.DynamicConstant{Name: name, Desc: desc}, err
	}
	return nil, fmt.Errorf("constant #%d (tag %d) is not loadable", i, e.tag)
}
