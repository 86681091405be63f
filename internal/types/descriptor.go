package types

import "strings"

// ArgumentTypes splits a method descriptor's parameter list into individual
// field descriptors. Malformed input yields the types parsed before the
// problem.
func ArgumentTypes(desc string) []string {
	if !strings.HasPrefix(desc, "(") {
		return nil
	}
	var args []string
	i := 1
	for i < len(desc) && desc[i] != ')' {
		end := fieldTypeEnd(desc, i)
		if end < 0 {
			return args
		}
		args = append(args, desc[i:end])
		i = end
	}
	return args
}

// ArgumentCount is the number of declared parameters of a method descriptor.
// Wide types (J, D) count once; the tree is built over values, not slots.
func ArgumentCount(desc string) int {
	return len(ArgumentTypes(desc))
}

// ReturnType is the descriptor after ')', or "" if desc is not a method
// descriptor.
func ReturnType(desc string) string {
	i := strings.LastIndexByte(desc, ')')
	if i < 0 || !strings.HasPrefix(desc, "(") {
		return ""
	}
	return desc[i+1:]
}

// fieldTypeEnd returns the index just past the field type starting at i, or
// -1 when the descriptor is truncated.
func fieldTypeEnd(desc string, i int) int {
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i >= len(desc) {
		return -1
	}
	switch desc[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 'V':
		return i + 1
	case 'L':
		semi := strings.IndexByte(desc[i:], ';')
		if semi < 0 {
			return -1
		}
		return i + semi + 1
	}
	return -1
}

// InternalName converts "java.lang.String" to "java/lang/String"
func InternalName(className string) string {
	return strings.ReplaceAll(className, ".", "/")
}
