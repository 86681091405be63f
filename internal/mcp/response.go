package mcp

import (
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// errorResult reports a tool failure inside the result with IsError set, so
// the client sees the message instead of a protocol error
func errorResult(operation string, err error) *mcp.CallToolResult {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}
	if hint := errorHint(err); hint != "" {
		errorData["hint"] = hint
	}

	text := err.Error()
	if content, marshalErr := json.Marshal(errorData); marshalErr == nil {
		text = string(content)
	}
	result := textResult(text)
	result.IsError = true
	return result
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, bcqerrors.ErrInvalidPattern):
		return "check the query syntax; each KDL node is one predicate and children go in child or near blocks"
	case errors.Is(err, bcqerrors.ErrBudgetExceeded):
		return "narrow the query with method, or raise max_visits and query_timeout_ms in .bcq.kdl"
	case errors.Is(err, bcqerrors.ErrStructural), errors.Is(err, bcqerrors.ErrPayloadMismatch):
		return "the method's bytecode does not balance the operand stack; it cannot be shown as a tree"
	}
	return ""
}
