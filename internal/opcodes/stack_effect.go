package opcodes

import (
	"errors"
	"strings"
)

// Arrow separates the pulled operands from the pushed values
const Arrow = "→"

const emptyToken = "[empty]"

// ParseStackEffect turns "value1, value2 → result" into (2, 1). A bracketed
// list on the pulled side yields Dynamic. Braced groups count as one value
// and "[empty]" counts as none.
func ParseStackEffect(desc string) (pull, push int, err error) {
	parts := strings.Split(desc, Arrow)
	if len(parts) != 2 {
		return 0, 0, errors.New("expected exactly one " + Arrow)
	}

	pull, variadic, err := countOperands(parts[0])
	if err != nil {
		return 0, 0, err
	}
	if variadic {
		pull = Dynamic
	}

	push, variadic, err = countOperands(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if variadic {
		return 0, 0, errors.New("variadic pushed values")
	}
	return pull, push, nil
}

// countOperands counts the comma-separated values on one side of the arrow.
// Commas nested in [] or {} do not split.
func countOperands(side string) (n int, variadic bool, err error) {
	side = strings.TrimSpace(side)
	if side == "" {
		return 0, false, nil
	}

	tokens, err := splitTopLevel(side)
	if err != nil {
		return 0, false, err
	}
	for _, tok := range tokens {
		switch {
		case tok == "":
			return 0, false, errors.New("empty operand in " + `"` + side + `"`)
		case tok == emptyToken:
		case strings.HasPrefix(tok, "["):
			variadic = true
		default:
			n++
		}
	}
	return n, variadic, nil
}

func splitTopLevel(s string) ([]string, error) {
	var (
		tokens []string
		stack  []byte
		start  int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '[', '{':
			stack = append(stack, c)
		case ']', '}':
			open := byte('[')
			if c == '}' {
				open = '{'
			}
			if len(stack) == 0 || stack[len(stack)-1] != open {
				return nil, errors.New("unbalanced " + string(c))
			}
			stack = stack[:len(stack)-1]
		case ',':
			if len(stack) == 0 {
				tokens = append(tokens, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if len(stack) != 0 {
		return nil, errors.New("unclosed " + string(stack[len(stack)-1]))
	}
	return append(tokens, strings.TrimSpace(s[start:])), nil
}
