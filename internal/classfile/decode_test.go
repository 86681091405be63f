package classfile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/opcodes"
	"github.com/standardbeagle/bcq/internal/testing/builders"
	"github.com/standardbeagle/bcq/internal/tree"
	"github.com/standardbeagle/bcq/internal/types"
)

func hi(idx uint16) byte { return byte(idx >> 8) }
func lo(idx uint16) byte { return byte(idx) }

// counterClass assembles demo/Counter with one method per decoding concern
func counterClass() *builders.ClassFile {
	cf := builders.NewClassFile("demo/Counter", "java/lang/Object").
		Implements("java/lang/Runnable").
		Source("Counter.java").
		Field(types.AccPrivate, "count", "I")

	count := cf.FieldRef("demo/Counter", "count", "I")
	cf.Method(types.AccPublic, "add", "(I)V", &builders.CodeAttr{
		MaxStack: 3, MaxLocals: 2,
		Code: []byte{
			0x2a,                         // aload_0
			0x2a,                         // aload_0
			0xb4, hi(count), lo(count),   // getfield
			0x1b,                         // iload_1
			0x60,                         // iadd
			0xb5, hi(count), lo(count),   // putfield
			0xb1,                         // return
		},
	})

	big := cf.Int(70000)
	cf.Method(types.AccStatic, "pick", "(I)I", &builders.CodeAttr{
		MaxStack: 1, MaxLocals: 1,
		Code: []byte{
			0x1a,             // 0: iload_0
			0x99, 0x00, 0x07, // 1: ifeq +7 -> 8
			0x11, 0x01, 0x2c, // 4: sipush 300
			0xac,             // 7: ireturn
			0x12, lo(big),    // 8: ldc 70000
			0xac,             // 10: ireturn
		},
	})

	long := cf.Long(5000000000)
	cf.Method(types.AccStatic, "sw", "(I)J", &builders.CodeAttr{
		MaxStack: 2, MaxLocals: 1,
		Code: []byte{
			0x1a,       // 0: iload_0
			0xaa,       // 1: tableswitch
			0x00, 0x00, // 2: padding
			0x00, 0x00, 0x00, 33, // 4: default -> 34
			0x00, 0x00, 0x00, 0x00, // 8: low 0
			0x00, 0x00, 0x00, 0x01, // 12: high 1
			0x00, 0x00, 0x00, 23, // 16: case 0 -> 24
			0x00, 0x00, 0x00, 29, // 20: case 1 -> 30
			0xc4, 0x84, 0x00, 0x00, 0x03, 0xe8, // 24: wide iinc 0 1000
			0x14, hi(long), lo(long), // 30: ldc2_w
			0xad,       // 33: lreturn
			0x0a,       // 34: lconst_1
			0xad,       // 35: lreturn
		},
	})

	dyn := cf.InvokeDynamic("get", "()Ljava/lang/Runnable;",
		"java/lang/invoke/LambdaMetafactory", "metafactory", "()Ljava/lang/invoke/CallSite;", "demo")
	run := cf.InterfaceMethodRef("java/lang/Runnable", "run", "()V")
	grid := cf.Class("[[I")
	cf.Method(types.AccPublic, "run", "()V", &builders.CodeAttr{
		MaxStack: 2, MaxLocals: 2,
		Code: []byte{
			0xba, hi(dyn), lo(dyn), 0x00, 0x00, // 0: invokedynamic
			0xb9, hi(run), lo(run), 0x01, 0x00, // 5: invokeinterface
			0x05,                               // 10: iconst_2
			0x06,                               // 11: iconst_3
			0xc5, hi(grid), lo(grid), 0x02,     // 12: multianewarray
			0x57,                               // 16: pop
			0xb1,                               // 17: return
			0x4c,                               // 18: astore_1
			0xb1,                               // 19: return
		},
		Exceptions: []builders.ExceptionEntry{{Start: 0, End: 17, Handler: 18, CatchType: "java/lang/Exception"}},
		Lines:      [][2]uint16{{0, 10}, {10, 11}},
	})

	cf.Method(types.AccPublic|types.AccAbstract, "size", "()I", nil)
	return cf
}

func verboseList(m *types.Method) []string {
	out := make([]string, len(m.Instructions))
	for i, insn := range m.Instructions {
		out[i] = insn.Verbose()
	}
	return out
}

func TestDecodeClassInfo(t *testing.T) {
	c, err := Decode(counterClass().Bytes())
	require.NoError(t, err)

	assert.Equal(t, "demo/Counter", c.Name)
	assert.Equal(t, "java/lang/Object", c.SuperName)
	assert.Equal(t, []string{"java/lang/Runnable"}, c.Interfaces)
	assert.Equal(t, "Counter.java", c.Source)
	assert.Equal(t, uint16(52), c.Major)
	assert.False(t, c.IsInterface())

	require.Len(t, c.Fields, 1)
	assert.Equal(t, "demo/Counter.count", c.Fields[0].Key())
	assert.False(t, c.Fields[0].IsStatic())

	require.Len(t, c.Methods, 5)
	size := c.Method("size", "()I")
	require.NotNil(t, size)
	assert.False(t, size.HasCode())

	add := c.Method("add", "(I)V")
	require.NotNil(t, add)
	assert.Equal(t, 3, add.MaxStack)
	assert.Equal(t, 2, add.MaxLocals)
	assert.True(t, add.IsLocal())
}

func TestDecodeFoldsShortForms(t *testing.T) {
	c, err := Decode(counterClass().Bytes())
	require.NoError(t, err)

	add := c.Method("add", "(I)V")
	assert.Equal(t, []string{
		"aload 0",
		"aload 0",
		"getfield demo/Counter.count I",
		"iload 1",
		"iadd",
		"putfield demo/Counter.count I",
		"return",
	}, verboseList(add))
	assert.Equal(t, 2, add.Instructions[2].Offset)

	f, err := tree.Build(add, opcodes.Default())
	require.NoError(t, err)
	require.Len(t, f.Roots(), 2)
	store := f.Roots()[0]
	assert.Equal(t, "putfield", store.Op())
	assert.Equal(t, []string{"aload", "iadd"}, []string{store.Child(0).Op(), store.Child(1).Op()})
}

func TestDecodeBranches(t *testing.T) {
	c, err := Decode(counterClass().Bytes())
	require.NoError(t, err)

	pick := c.Method("pick", "(I)I")
	assert.Equal(t, []string{
		"iload 0",
		"ifeq L0",
		"sipush 300",
		"ireturn",
		"label L0",
		"ldc 70000",
		"ireturn",
	}, verboseList(pick))
	assert.Equal(t, -1, pick.Instructions[4].Offset)
	assert.Equal(t, int32(70000), pick.Instructions[5].Payload.(types.Constant).Value)

	_, err = tree.Build(pick, opcodes.Default())
	require.NoError(t, err)
}

func TestDecodeSwitchAndWide(t *testing.T) {
	c, err := Decode(counterClass().Bytes())
	require.NoError(t, err)

	sw := c.Method("sw", "(I)J")
	assert.Equal(t, []string{
		"iload 0",
		"tableswitch 0..1 default L2",
		"label L0",
		"iinc 0 1000",
		"label L1",
		"ldc 5000000000",
		"lreturn",
		"label L2",
		"lconst_1",
		"lreturn",
	}, verboseList(sw))

	ts := sw.Instructions[1].Payload.(types.TableSwitch)
	assert.Equal(t, []int{0, 1}, ts.Labels)
	assert.Equal(t, int64(5000000000), sw.Instructions[5].Payload.(types.Constant).Value)

	_, err = tree.Build(sw, opcodes.Default())
	require.NoError(t, err)
}

func TestDecodeDynamicAndHandlers(t *testing.T) {
	data := counterClass().Bytes()

	c, err := Decode(data)
	require.NoError(t, err)
	run := c.Method("run", "()V")
	assert.Equal(t, []string{
		"label L0",
		"invokedynamic get()Ljava/lang/Runnable; java/lang/invoke/LambdaMetafactory.metafactory()Ljava/lang/invoke/CallSite;",
		"invokeinterface java/lang/Runnable.run()V",
		"iconst_2",
		"iconst_3",
		"multianewarray [[I 2",
		"pop",
		"label L1",
		"return",
		"label L2",
		"astore 1",
		"return",
	}, verboseList(run))

	dyn := run.Instructions[1].Payload.(types.InvokeDynamic)
	assert.Equal(t, []string{"demo"}, dyn.BootstrapArgs)
	assert.True(t, run.Instructions[2].Payload.(types.MemberRef).Interface)

	f, err := tree.Build(run, opcodes.Default())
	require.NoError(t, err)
	var invoke tree.Node
	f.Walk(func(n tree.Node) bool {
		if n.Op() == "invokeinterface" {
			invoke = n
			return false
		}
		return true
	})
	require.True(t, invoke.Valid())
	require.Equal(t, 1, invoke.NumChildren())
	assert.Equal(t, "invokedynamic", invoke.Child(0).Op())

	withLines, err := DecodeWith(data, Options{LineNumbers: true})
	require.NoError(t, err)
	lines := withLines.Method("run", "()V")
	assert.Equal(t, "label L0", lines.Instructions[0].Verbose())
	assert.Equal(t, "line 10 L0", lines.Instructions[1].Verbose())
	assert.Contains(t, verboseList(lines), "line 11 L1")
}

func TestDecodeErrors(t *testing.T) {
	valid := counterClass().Bytes()

	badCode := builders.NewClassFile("demo/Bad", "java/lang/Object").
		Method(types.AccStatic, "x", "()V", &builders.CodeAttr{Code: []byte{0xcb, 0xb1}}).
		Bytes()

	badBranch := builders.NewClassFile("demo/Jump", "java/lang/Object").
		Method(types.AccStatic, "x", "()V", &builders.CodeAttr{Code: []byte{0xa7, 0x00, 0x40, 0xb1}}).
		Bytes()

	tests := []struct {
		name    string
		data    []byte
		message string
	}{
		{"empty", nil, "unexpected end"},
		{"bad magic", []byte{0xca, 0xfe, 0xd0, 0x0d, 0, 0, 0, 52}, "not a class file"},
		{"truncated", valid[:len(valid)/2], "decode"},
		{"unknown opcode", badCode, "unknown opcode 0xcb"},
		{"branch outside code", badBranch, "outside code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			var de *bcqerrors.DecodeError
			require.True(t, errors.As(err, &de), "got %T", err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestModifiedUTF8(t *testing.T) {
	assert.Equal(t, "plain", modifiedUTF8([]byte("plain")))
	assert.Equal(t, "a\x00b", modifiedUTF8([]byte{'a', 0xc0, 0x80, 'b'}))
	assert.Equal(t, "é", modifiedUTF8([]byte{0xc3, 0xa9}))
	// U+1F600 as a surrogate pair
	assert.Equal(t, "\U0001F600", modifiedUTF8([]byte{0xed, 0xa0, 0xbd, 0xed, 0xb8, 0x80}))
}
