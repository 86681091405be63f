package classfile

import (
	"fmt"
	"sort"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/types"
)

const opWide = 0xc4

// Short-form ranges folded into a canonical opcode plus slot
var (
	shortLoads  = [...]string{"iload", "lload", "fload", "dload", "aload"}
	shortStores = [...]string{"istore", "lstore", "fstore", "dstore", "astore"}
)

// aliases fold wide-index and wide-offset variants into the base mnemonic
var aliases = map[string]string{
	"ldc_w":  "ldc",
	"ldc2_w": "ldc",
	"goto_w": "goto",
	"jsr_w":  "jsr",
}

type lineEntry struct {
	pc   int
	line int
}

// decoded is an instruction whose branch operands still hold bytecode
// offsets instead of label ids
type decoded struct {
	pc      int
	op      string
	payload types.Payload
}

func (d *decoder) instructions(code []byte, handlers []uint16, lines []lineEntry) ([]types.Instruction, error) {
	var list []decoded
	targets := make(map[int]bool)
	for _, h := range handlers {
		targets[int(h)] = true
	}
	for _, l := range lines {
		targets[l.pc] = true
	}

	r := newReader(code)
	for r.remaining() > 0 {
		pc := r.pos
		insn, err := d.instruction(r, pc, targets)
		if err != nil {
			return nil, bcqerrors.NewDecodeError("instruction", pc, err)
		}
		if r.err != nil {
			return nil, bcqerrors.NewDecodeError("instruction", pc, r.err)
		}
		list = append(list, insn)
	}

	// label ids follow bytecode order
	offsets := make([]int, 0, len(targets))
	for pc := range targets {
		if pc < 0 || pc > len(code) {
			return nil, bcqerrors.NewDecodeError("branch target", pc, fmt.Errorf("target outside code of length %d", len(code)))
		}
		offsets = append(offsets, pc)
	}
	sort.Ints(offsets)
	ids := make(map[int]int, len(offsets))
	for i, pc := range offsets {
		ids[pc] = i
	}
	lineAt := make(map[int][]int)
	for _, l := range lines {
		lineAt[l.pc] = append(lineAt[l.pc], l.line)
	}

	out := make([]types.Instruction, 0, len(list)+len(offsets)+len(lines))
	emitMarkers := func(pc int) {
		id, ok := ids[pc]
		if !ok {
			return
		}
		out = append(out, types.Insn(types.OpLabel, types.LabelMarker{ID: id}))
		for _, line := range lineAt[pc] {
			out = append(out, types.Insn(types.OpLine, types.LineMarker{Line: line, Label: id}))
		}
	}
	for _, insn := range list {
		emitMarkers(insn.pc)
		out = append(out, types.Instruction{Offset: insn.pc, Op: insn.op, Payload: relabel(insn.payload, ids)})
	}
	emitMarkers(len(code))
	return out, nil
}

// relabel replaces bytecode offsets in branch payloads with label ids
func relabel(p types.Payload, ids map[int]int) types.Payload {
	switch v := p.(type) {
	case types.JumpTarget:
		v.Label = ids[v.Label]
		return v
	case types.TableSwitch:
		v.Default = ids[v.Default]
		v.Labels = relabelAll(v.Labels, ids)
		return v
	case types.LookupSwitch:
		v.Default = ids[v.Default]
		v.Labels = relabelAll(v.Labels, ids)
		return v
	}
	return p
}

func relabelAll(pcs []int, ids map[int]int) []int {
	out := make([]int, len(pcs))
	for i, pc := range pcs {
		out[i] = ids[pc]
	}
	return out
}

func (d *decoder) instruction(r *reader, pc int, targets map[int]bool) (decoded, error) {
	code := r.u1()
	wide := false
	if code == opWide {
		wide = true
		code = r.u1()
	}
	desc, ok := d.opts.Table.ByCode(code)
	if !ok {
		return decoded{}, fmt.Errorf("unknown opcode 0x%02x", code)
	}
	op := desc.Name
	if alias, ok := aliases[op]; ok {
		op = alias
	}
	insn := decoded{pc: pc, op: op, payload: types.NoOperand{}}

	index := func() int {
		if wide {
			return int(r.u2())
		}
		return int(r.u1())
	}
	branch := func(offset int) int {
		target := pc + offset
		targets[target] = true
		return target
	}

	switch {
	case code >= 0x1a && code <= 0x2d:
		insn.op = shortLoads[(code-0x1a)/4]
		insn.payload = types.VarOperand{Var: int(code-0x1a) % 4}
		return insn, nil
	case code >= 0x3b && code <= 0x4e:
		insn.op = shortStores[(code-0x3b)/4]
		insn.payload = types.VarOperand{Var: int(code-0x3b) % 4}
		return insn, nil
	}

	switch op {
	case "bipush":
		insn.payload = types.IntOperand{Value: int(r.s1())}
	case "sipush":
		insn.payload = types.IntOperand{Value: int(r.s2())}
	case "newarray":
		insn.payload = types.IntOperand{Value: int(r.u1())}
	case "ldc":
		var idx uint16
		if desc.Name == "ldc" {
			idx = uint16(r.u1())
		} else {
			idx = r.u2()
		}
		v, err := d.cp.loadable(idx)
		if err != nil {
			return insn, err
		}
		insn.payload = types.Constant{Value: v}
	case "iload", "lload", "fload", "dload", "aload",
		"istore", "lstore", "fstore", "dstore", "astore", "ret":
		insn.payload = types.VarOperand{Var: index()}
	case "iinc":
		if wide {
			insn.payload = types.IincOperand{Var: int(r.u2()), Incr: int(r.s2())}
		} else {
			insn.payload = types.IincOperand{Var: int(r.u1()), Incr: int(r.s1())}
		}
	case "ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle",
		"if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple",
		"if_acmpeq", "if_acmpne", "ifnull", "ifnonnull", "goto", "jsr":
		var offset int
		if desc.Name == "goto_w" || desc.Name == "jsr_w" {
			offset = int(r.s4())
		} else {
			offset = int(r.s2())
		}
		insn.payload = types.JumpTarget{Label: branch(offset)}
	case "tableswitch":
		r.skip((4 - (pc+1)%4) % 4)
		def := branch(int(r.s4()))
		lo, hi := r.s4(), r.s4()
		if hi < lo {
			return insn, fmt.Errorf("tableswitch high %d below low %d", hi, lo)
		}
		n := int(int64(hi) - int64(lo) + 1)
		if n*4 > r.remaining() {
			return insn, errTruncated
		}
		labels := make([]int, n)
		for i := range labels {
			labels[i] = branch(int(r.s4()))
		}
		insn.payload = types.TableSwitch{Min: lo, Max: hi, Default: def, Labels: labels}
	case "lookupswitch":
		r.skip((4 - (pc+1)%4) % 4)
		def := branch(int(r.s4()))
		n := int(r.s4())
		if n < 0 || n*8 > r.remaining() {
			return insn, fmt.Errorf("lookupswitch with %d pairs exceeds code", n)
		}
		keys := make([]int32, n)
		labels := make([]int, n)
		for i := 0; i < n; i++ {
			keys[i] = r.s4()
			labels[i] = branch(int(r.s4()))
		}
		insn.payload = types.LookupSwitch{Keys: keys, Default: def, Labels: labels}
	case "getstatic", "putstatic", "getfield", "putfield",
		"invokevirtual", "invokespecial", "invokestatic":
		ref, err := d.cp.member(r.u2())
		if err != nil {
			return insn, err
		}
		insn.payload = ref
	case "invokeinterface":
		ref, err := d.cp.member(r.u2())
		if err != nil {
			return insn, err
		}
		r.skip(2) // count, 0
		insn.payload = ref
	case "invokedynamic":
		dyn, err := d.invokeDynamic(r.u2())
		if err != nil {
			return insn, err
		}
		r.skip(2)
		insn.payload = dyn
	case "new", "anewarray", "checkcast", "instanceof":
		name, err := d.cp.className(r.u2())
		if err != nil {
			return insn, err
		}
		insn.payload = types.TypeOperand{Desc: name}
	case "multianewarray":
		name, err := d.cp.className(r.u2())
		if err != nil {
			return insn, err
		}
		insn.payload = types.MultiArray{Desc: name, Dims: int(r.u1())}
	default:
		if wide {
			return insn, fmt.Errorf("wide cannot prefix %s", op)
		}
	}
	return insn, nil
}

func (d *decoder) invokeDynamic(idx uint16) (types.InvokeDynamic, error) {
	e, err := d.cp.get(idx, tagInvokeDynamic)
	if err != nil {
		return types.InvokeDynamic{}, err
	}
	name, desc, err := d.cp.nameAndType(e.b)
	if err != nil {
		return types.InvokeDynamic{}, err
	}
	dyn := types.InvokeDynamic{Name: name, Desc: desc}
	if int(e.a) < len(d.bootstraps) {
		b := d.bootstraps[e.a]
		dyn.Bootstrap = b.handle.Ref
		dyn.BootstrapArgs = b.args
	}
	return dyn, nil
}
