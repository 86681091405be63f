package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error types for the bytecode query system
type ErrorType string

const (
	// Opcode table errors
	ErrorTypeUnknownOpcode    ErrorType = "unknown_opcode"
	ErrorTypeMalformedPattern ErrorType = "malformed_pattern"

	// Tree construction errors
	ErrorTypeStructural      ErrorType = "structural"
	ErrorTypePayloadMismatch ErrorType = "payload_mismatch"

	// Query errors
	ErrorTypeInvalidPattern ErrorType = "invalid_pattern"
	ErrorTypeBudgetExceeded ErrorType = "budget_exceeded"

	// Input errors
	ErrorTypeDecode ErrorType = "decode"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// Sentinels usable with errors.Is against the typed errors below.
var (
	ErrUnknownOpcode    = errors.New("unknown opcode")
	ErrMalformedPattern = errors.New("malformed stack-effect pattern")
	ErrStructural       = errors.New("operand stack underflow")
	ErrPayloadMismatch  = errors.New("operand payload does not fit opcode")
	ErrInvalidPattern   = errors.New("invalid match pattern")
	ErrBudgetExceeded   = errors.New("query budget exceeded")
)

// UnknownOpcodeError is raised when an instruction's mnemonic has no entry in
// the arity table. It is fatal for the method being built.
type UnknownOpcodeError struct {
	Type       ErrorType
	Opcode     string
	Suggestion string
	Timestamp  time.Time
}

// NewUnknownOpcodeError creates an unknown opcode error
func NewUnknownOpcodeError(opcode, suggestion string) *UnknownOpcodeError {
	return &UnknownOpcodeError{
		Type:       ErrorTypeUnknownOpcode,
		Opcode:     opcode,
		Suggestion: suggestion,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *UnknownOpcodeError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown opcode %q (did you mean %q?)", e.Opcode, e.Suggestion)
	}
	return fmt.Sprintf("unknown opcode %q", e.Opcode)
}

// Is matches ErrUnknownOpcode
func (e *UnknownOpcodeError) Is(target error) bool {
	return target == ErrUnknownOpcode
}

// MalformedPatternError reports a stack-effect description that could not be
// split into before and after operand lists.
type MalformedPatternError struct {
	Type        ErrorType
	Opcode      string
	Description string
	Reason      string
	Timestamp   time.Time
}

// NewMalformedPatternError creates a malformed pattern error
func NewMalformedPatternError(opcode, description, reason string) *MalformedPatternError {
	return &MalformedPatternError{
		Type:        ErrorTypeMalformedPattern,
		Opcode:      opcode,
		Description: description,
		Reason:      reason,
		Timestamp:   time.Now(),
	}
}

// Error implements the error interface
func (e *MalformedPatternError) Error() string {
	return fmt.Sprintf("malformed stack effect for %s (%q): %s", e.Opcode, e.Description, e.Reason)
}

// Is matches ErrMalformedPattern
func (e *MalformedPatternError) Is(target error) bool {
	return target == ErrMalformedPattern
}

// StructuralError means an instruction needed more operands than the
// preceding instructions could supply.
type StructuralError struct {
	Type      ErrorType
	Method    string
	Index     int
	Offset    int
	Opcode    string
	Need      int
	Have      int
	Timestamp time.Time
}

// NewStructuralError creates a structural error
func NewStructuralError(method string, index, offset int, opcode string, need, have int) *StructuralError {
	return &StructuralError{
		Type:      ErrorTypeStructural,
		Method:    method,
		Index:     index,
		Offset:    offset,
		Opcode:    opcode,
		Need:      need,
		Have:      have,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *StructuralError) Error() string {
	loc := fmt.Sprintf("#%d", e.Index)
	if e.Offset >= 0 {
		loc = fmt.Sprintf("#%d (offset %d)", e.Index, e.Offset)
	}
	return fmt.Sprintf("%s: %s at %s needs %d operands, only %d available",
		e.Method, e.Opcode, loc, e.Need, e.Have)
}

// Is matches ErrStructural
func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

// PayloadMismatchError is an instruction whose arity depends on its operand
// but whose payload does not carry one, e.g. an invoke without a member
// reference. Like a structural error it fails only the method being built.
type PayloadMismatchError struct {
	Type      ErrorType
	Opcode    string
	Payload   string
	Timestamp time.Time
}

// NewPayloadMismatchError creates a payload mismatch error
func NewPayloadMismatchError(opcode, payload string) *PayloadMismatchError {
	return &PayloadMismatchError{
		Type:      ErrorTypePayloadMismatch,
		Opcode:    opcode,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *PayloadMismatchError) Error() string {
	return fmt.Sprintf("%s needs an operand-dependent arity but its payload is %s", e.Opcode, e.Payload)
}

// Is reports a match against ErrPayloadMismatch
func (e *PayloadMismatchError) Is(target error) bool {
	return target == ErrPayloadMismatch
}

// InvalidPatternError is a match pattern that failed to compile, such as a
// bad regular expression after a "~>" prefix.
type InvalidPatternError struct {
	Type       ErrorType
	Pattern    string
	Underlying error
	Timestamp  time.Time
}

// NewInvalidPatternError creates an invalid pattern error
func NewInvalidPatternError(pattern string, err error) *InvalidPatternError {
	return &InvalidPatternError{
		Type:       ErrorTypeInvalidPattern,
		Pattern:    pattern,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Underlying)
}

// Unwrap returns the underlying error
func (e *InvalidPatternError) Unwrap() error {
	return e.Underlying
}

// Is matches ErrInvalidPattern
func (e *InvalidPatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

// BudgetExceededError is returned with a partial result when a query runs out
// of visits or time.
type BudgetExceededError struct {
	Type      ErrorType
	Limit     string
	Visits    int
	Elapsed   time.Duration
	Timestamp time.Time
}

// NewBudgetExceededError creates a budget error; limit names the cap hit
func NewBudgetExceededError(limit string, visits int, elapsed time.Duration) *BudgetExceededError {
	return &BudgetExceededError{
		Type:      ErrorTypeBudgetExceeded,
		Limit:     limit,
		Visits:    visits,
		Elapsed:   elapsed,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("query %s limit exceeded after %d visits (%s)", e.Limit, e.Visits, e.Elapsed)
}

// Is matches ErrBudgetExceeded
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// DecodeError represents a class-file decoding failure
type DecodeError struct {
	Type       ErrorType
	Source     string
	Offset     int
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewDecodeError creates a new decode error
func NewDecodeError(op string, offset int, err error) *DecodeError {
	return &DecodeError{
		Type:       ErrorTypeDecode,
		Operation:  op,
		Offset:     offset,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithSource records the file or archive entry being decoded
func (e *DecodeError) WithSource(source string) *DecodeError {
	e.Source = source
	return e
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("decode %s failed for %s at byte %d: %v", e.Operation, e.Source, e.Offset, e.Underlying)
	}
	return fmt.Sprintf("decode %s failed at byte %d: %v", e.Operation, e.Offset, e.Underlying)
}

// Unwrap returns the underlying error
func (e *DecodeError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error, dropping nils
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// ErrorOrNil returns nil when no errors were collected
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
