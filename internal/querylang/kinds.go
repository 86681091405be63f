package querylang

import (
	"fmt"
	"math"
	"sort"

	"github.com/sblinch/kdl-go/document"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/query"
)

type builder func(a *args) *query.Query

var kinds = map[string]builder{
	"any": func(a *args) *query.Query {
		return query.Any()
	},
	"op": func(a *args) *query.Query {
		ops := a.strings()
		if len(ops) == 0 {
			a.fail(fmt.Errorf("op needs at least one mnemonic"))
		}
		return query.Op(ops...)
	},
	"num": func(a *args) *query.Query {
		if v, ok := a.int(0, "value"); ok {
			return query.Num(v)
		}
		return query.AnyNum()
	},
	"method":     member(query.Method),
	"membmethod": member(query.MemberMethod),
	"statmethod": member(query.StaticMethod),
	"field":      member(query.Field),
	"membfield":  member(query.MemberField),
	"statfield":  member(query.StaticField),
	"getter":     member(query.Getter),
	"putter":     member(query.Putter),
	"dynamic":    member(query.Dynamic),
	"lvar": func(a *args) *query.Query {
		if v, ok := a.int(0, "var"); ok {
			return query.LocalVar(v)
		}
		return query.AnyLocalVar()
	},
	"jump": func(a *args) *query.Query {
		return query.Jump(a.strings()...)
	},
	"frame": func(a *args) *query.Query {
		return query.Frame(a.ints()...)
	},
	"label": func(a *args) *query.Query {
		return query.Label()
	},
	"line": func(a *args) *query.Query {
		return query.Line(a.ints()...)
	},
	"constant": func(a *args) *query.Query {
		p, _ := a.string(0, "value")
		return query.Constant(p)
	},
	"tswitch": func(a *args) *query.Query {
		lo, hasMin := a.int(0, "min")
		hi, hasMax := a.int(1, "max")
		switch {
		case hasMin && hasMax:
			return query.TableSwitchRange(a.int32(lo), a.int32(hi))
		case hasMin || hasMax:
			a.fail(fmt.Errorf("tswitch needs both min and max"))
		}
		return query.TableSwitch()
	},
	"lswitch": func(a *args) *query.Query {
		ints := a.ints()
		keys := make([]int32, len(ints))
		for i, k := range ints {
			keys[i] = a.int32(k)
		}
		return query.LookupSwitch(keys...)
	},
	"mana": func(a *args) *query.Query {
		desc, _ := a.string(0, "desc")
		dims, _ := a.int(1, "dims")
		return query.MultiArray(desc, dims)
	},
	"type": func(a *args) *query.Query {
		desc, _ := a.string(0, "desc")
		return query.Type(desc)
	},
	"inc": func(a *args) *query.Query {
		slot, hasVar := a.int(0, "var")
		incr, hasIncr := a.int(1, "incr")
		switch {
		case hasVar && hasIncr:
			return query.IncOf(slot, incr)
		case hasVar || hasIncr:
			a.fail(fmt.Errorf("inc needs both var and incr"))
		}
		return query.Inc()
	},
}

// member adapts a (name, desc) factory; both may be given positionally or as
// name= and desc= properties
func member(factory func(name, desc string) *query.Query) builder {
	return func(a *args) *query.Query {
		name, _ := a.string(0, "name")
		desc, _ := a.string(1, "desc")
		return factory(name, desc)
	}
}

// args reads a node's arguments and properties and remembers which were
// consumed so leftovers can be reported.
type args struct {
	kind     string
	node     *document.Node
	usedArgs int
	usedProp map[string]bool
	err      error
}

func newArgs(kind string, n *document.Node) *args {
	return &args{kind: kind, node: n, usedProp: make(map[string]bool)}
}

func (a *args) fail(err error) {
	if a.err == nil {
		a.err = bcqerrors.NewInvalidPatternError(a.kind, err)
	}
}

func (a *args) positional(i int) (interface{}, bool) {
	if i >= len(a.node.Arguments) || a.node.Arguments[i] == nil {
		return nil, false
	}
	if i+1 > a.usedArgs {
		a.usedArgs = i + 1
	}
	return a.node.Arguments[i].Value, true
}

func (a *args) prop(name string) (interface{}, bool) {
	v, ok := a.node.Properties[name]
	if !ok || v == nil {
		return nil, false
	}
	a.usedProp[name] = true
	return v.Value, true
}

// lookup prefers the property, falling back to positional argument i when
// i is non-negative
func (a *args) lookup(i int, name string) (interface{}, bool) {
	if v, ok := a.prop(name); ok {
		return v, true
	}
	if i < 0 {
		return nil, false
	}
	return a.positional(i)
}

func (a *args) string(i int, name string) (string, bool) {
	v, ok := a.lookup(i, name)
	if !ok {
		return "", false
	}
	s, isString := v.(string)
	if !isString {
		a.fail(fmt.Errorf("%s must be a string, got %v", name, v))
		return "", false
	}
	return s, true
}

func (a *args) int(i int, name string) (int, bool) {
	v, ok := a.lookup(i, name)
	if !ok {
		return 0, false
	}
	n, isInt := toInt(v)
	if !isInt {
		a.fail(fmt.Errorf("%s must be an integer, got %v", name, v))
		return 0, false
	}
	return n, true
}

func (a *args) int32(v int) int32 {
	if v < math.MinInt32 || v > math.MaxInt32 {
		a.fail(fmt.Errorf("%d does not fit a switch key", v))
		return 0
	}
	return int32(v)
}

// strings consumes every positional argument as a string
func (a *args) strings() []string {
	out := make([]string, 0, len(a.node.Arguments))
	for i := range a.node.Arguments {
		v, _ := a.positional(i)
		s, ok := v.(string)
		if !ok {
			a.fail(fmt.Errorf("argument %d must be a string, got %v", i, v))
			return nil
		}
		out = append(out, s)
	}
	return out
}

// ints consumes every positional argument as an integer
func (a *args) ints() []int {
	out := make([]int, 0, len(a.node.Arguments))
	for i := range a.node.Arguments {
		v, _ := a.positional(i)
		n, ok := toInt(v)
		if !ok {
			a.fail(fmt.Errorf("argument %d must be an integer, got %v", i, v))
			return nil
		}
		out = append(out, n)
	}
	return out
}

func (a *args) stringProp(name string) (string, bool) { return a.string(-1, name) }

func (a *args) intProp(name string) (int, bool) { return a.int(-1, name) }

// unused reports arguments or properties the kind did not consume
func (a *args) unused() error {
	if a.err != nil {
		return a.err
	}
	if extra := len(a.node.Arguments) - a.usedArgs; extra > 0 {
		return bcqerrors.NewInvalidPatternError(a.kind,
			fmt.Errorf("%d unexpected argument(s)", extra))
	}
	var names []string
	for name := range a.node.Properties {
		if !a.usedProp[name] {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		sort.Strings(names)
		return bcqerrors.NewInvalidPatternError(a.kind,
			fmt.Errorf("unknown propert(ies) %v", names))
	}
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}
