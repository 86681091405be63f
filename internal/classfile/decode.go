// Package classfile decodes JVM class files into the instruction model used
// by the tree builder.
//
// Method bodies come out the way a tree-based bytecode reader presents them.
// Short forms such as aload_0, ldc_w and goto_w are folded into their
// canonical mnemonic with an explicit operand, the wide prefix is absorbed
// into the instruction it widens, and a label marker precedes every branch,
// switch and exception-handler target. Stack map frames are skipped. Line
// numbers are only emitted when Options.LineNumbers is set.
package classfile

import (
	"errors"
	"fmt"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/opcodes"
	"github.com/standardbeagle/bcq/internal/types"
)

// Magic is the class file signature
const Magic = 0xcafebabe

var errBadMagic = errors.New("not a class file")

// Options controls what Decode keeps
type Options struct {
	// LineNumbers emits a line marker after the label of each
	// LineNumberTable entry.
	LineNumbers bool
	// Table supplies opcode names; nil means opcodes.Default().
	Table *opcodes.Table
}

// Decode reads a class file without debug information
func Decode(data []byte) (*types.Class, error) {
	return DecodeWith(data, Options{})
}

// DecodeWith reads a class file
func DecodeWith(data []byte, opts Options) (*types.Class, error) {
	if opts.Table == nil {
		opts.Table = opcodes.Default()
	}
	d := &decoder{r: newReader(data), opts: opts}
	class, err := d.class()
	if err != nil {
		var de *bcqerrors.DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, bcqerrors.NewDecodeError(d.stage, d.r.pos, err)
	}
	return class, nil
}

// rawMethod holds a method whose Code attribute is decoded after the class
// attributes, since invokedynamic needs BootstrapMethods.
type rawMethod struct {
	method *types.Method
	code   []byte
	codeAt int
}

type bootstrap struct {
	handle types.HandleConstant
	args   []string
}

type decoder struct {
	r          *reader
	opts       Options
	cp         constantPool
	stage      string
	bootstraps []bootstrap
}

func (d *decoder) class() (*types.Class, error) {
	r := d.r
	d.stage = "header"
	if r.u4() != Magic {
		if r.err != nil {
			return nil, r.err
		}
		return nil, errBadMagic
	}
	c := &types.Class{}
	c.Minor = r.u2()
	c.Major = r.u2()

	d.stage = "constant pool"
	cp, err := readConstantPool(r)
	if err != nil {
		return nil, err
	}
	d.cp = cp

	d.stage = "class info"
	c.Access = r.u2()
	this, super := r.u2(), r.u2()
	if r.err != nil {
		return nil, r.err
	}
	if c.Name, err = cp.className(this); err != nil {
		return nil, err
	}
	if super != 0 {
		if c.SuperName, err = cp.className(super); err != nil {
			return nil, err
		}
	}
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		iface, err := cp.className(r.u2())
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, iface)
	}

	d.stage = "fields"
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		f, err := d.field(c.Name)
		if err != nil {
			return nil, err
		}
		c.Fields = append(c.Fields, f)
	}

	d.stage = "methods"
	var raws []rawMethod
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		raw, err := d.method(c.Name)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}

	d.stage = "class attributes"
	if err := d.classAttributes(c); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}

	for _, raw := range raws {
		if raw.code != nil {
			if err := d.code(raw); err != nil {
				return nil, err
			}
		}
		c.Methods = append(c.Methods, raw.method)
	}
	return c, nil
}

func (d *decoder) member() (access uint16, name, desc string, err error) {
	access = d.r.u2()
	nameIdx, descIdx := d.r.u2(), d.r.u2()
	if d.r.err != nil {
		return 0, "", "", d.r.err
	}
	if name, err = d.cp.utf8(nameIdx); err != nil {
		return 0, "", "", err
	}
	desc, err = d.cp.utf8(descIdx)
	return access, name, desc, err
}

// attributes calls visit with the body of each attribute in the table at the
// cursor; at is the body's byte offset in the class file.
func (d *decoder) attributes(visit func(name string, body []byte, at int) error) error {
	r := d.r
	for n := int(r.u2()); n > 0; n-- {
		nameIdx := r.u2()
		length := int(r.u4())
		at := r.pos
		body := r.bytes(length)
		if r.err != nil {
			return r.err
		}
		name, err := d.cp.utf8(nameIdx)
		if err != nil {
			return err
		}
		if err := visit(name, body, at); err != nil {
			return err
		}
	}
	return r.err
}

func (d *decoder) field(owner string) (*types.Field, error) {
	access, name, desc, err := d.member()
	if err != nil {
		return nil, err
	}
	if err := d.attributes(func(string, []byte, int) error { return nil }); err != nil {
		return nil, err
	}
	return &types.Field{Owner: owner, Name: name, Desc: desc, Access: access}, nil
}

func (d *decoder) method(owner string) (rawMethod, error) {
	access, name, desc, err := d.member()
	if err != nil {
		return rawMethod{}, err
	}
	raw := rawMethod{method: &types.Method{Owner: owner, Name: name, Desc: desc, Access: access}}
	err = d.attributes(func(attr string, body []byte, at int) error {
		if attr == "Code" {
			raw.code, raw.codeAt = body, at
		}
		return nil
	})
	return raw, err
}

func (d *decoder) classAttributes(c *types.Class) error {
	return d.attributes(func(name string, body []byte, at int) error {
		switch name {
		case "SourceFile":
			br := newReader(body)
			src, err := d.cp.utf8(br.u2())
			if br.err != nil {
				return br.err
			}
			if err != nil {
				return err
			}
			c.Source = src
		case "BootstrapMethods":
			return d.bootstrapMethods(body)
		}
		return nil
	})
}

func (d *decoder) bootstrapMethods(body []byte) error {
	br := newReader(body)
	for n := int(br.u2()); n > 0 && br.err == nil; n-- {
		h, err := d.cp.handle(br.u2())
		if err != nil {
			return err
		}
		b := bootstrap{handle: h}
		for k := int(br.u2()); k > 0 && br.err == nil; k-- {
			arg, err := d.cp.loadable(br.u2())
			if err != nil {
				return err
			}
			b.args = append(b.args, fmt.Sprint(arg))
		}
		d.bootstraps = append(d.bootstraps, b)
	}
	return br.err
}

func (d *decoder) code(raw rawMethod) error {
	m := raw.method
	d.stage = "code of " + m.Key()
	cr := newReader(raw.code)
	m.MaxStack = int(cr.u2())
	m.MaxLocals = int(cr.u2())
	bytecode := cr.bytes(int(cr.u4()))
	if cr.err != nil {
		return bcqerrors.NewDecodeError(d.stage, raw.codeAt+cr.pos, cr.err)
	}

	var handlers []uint16
	for n := int(cr.u2()); n > 0 && cr.err == nil; n-- {
		start, end, handler := cr.u2(), cr.u2(), cr.u2()
		cr.u2() // catch type
		handlers = append(handlers, start, end, handler)
	}

	var lines []lineEntry
	for n := int(cr.u2()); n > 0 && cr.err == nil; n-- {
		nameIdx := cr.u2()
		body := cr.bytes(int(cr.u4()))
		name, err := d.cp.utf8(nameIdx)
		if err != nil {
			return bcqerrors.NewDecodeError(d.stage, raw.codeAt+cr.pos, err)
		}
		if name == "LineNumberTable" && d.opts.LineNumbers {
			lr := newReader(body)
			for k := int(lr.u2()); k > 0 && lr.err == nil; k-- {
				lines = append(lines, lineEntry{pc: int(lr.u2()), line: int(lr.u2())})
			}
		}
	}
	if cr.err != nil {
		return bcqerrors.NewDecodeError(d.stage, raw.codeAt+cr.pos, cr.err)
	}

	insns, err := d.instructions(bytecode, handlers, lines)
	if err != nil {
		var de *bcqerrors.DecodeError
		if errors.As(err, &de) {
			de.Operation = d.stage
			de.Offset += raw.codeAt + 8
			return de
		}
		return bcqerrors.NewDecodeError(d.stage, raw.codeAt, err)
	}
	m.SetInstructions(insns)
	return nil
}
