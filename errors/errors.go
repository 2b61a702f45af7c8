package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad        Phase = "load"        // module loading
	PhaseInstantiate Phase = "instantiate" // instance construction
	PhaseExecute     Phase = "execute"     // interpreter execution
	PhaseCall        Phase = "call"        // function dispatch
	PhaseMemory      Phase = "memory"      // linear memory access
	PhasePolicy      Phase = "policy"      // capability checks
	PhaseWASI        Phase = "wasi"        // host/guest bridge
	PhaseHost        Phase = "host"        // host function registration
	PhaseConfig      Phase = "config"      // policy/engine configuration
)

// Kind categorizes the error
type Kind string

const (
	KindStackUnderflow    Kind = "stack_underflow"
	KindStackOverflow     Kind = "stack_overflow"
	KindInvalidLocalIndex Kind = "invalid_local_index"
	KindUnimplementedOp   Kind = "unimplemented_opcode"
	KindDivisionByZero    Kind = "division_by_zero"
	KindIntegerOverflow   Kind = "integer_overflow"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindMemoryGrowFailed  Kind = "memory_grow_failed"
	KindFunctionNotFound  Kind = "function_not_found"
	KindInvalidParamCount Kind = "invalid_parameter_count"
	KindInvalidLEB128     Kind = "invalid_leb128"
	KindUnexpectedEnd     Kind = "unexpected_end"
	KindNoMemory          Kind = "no_memory"
	KindPermissionDenied  Kind = "permission_denied"
	KindMemoryLimit       Kind = "memory_limit_exceeded"
	KindCPUTimeLimit      Kind = "cpu_time_limit_exceeded"
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindRegistration      Kind = "registration"
)

// Error is the structured error type used throughout the engine
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two Errors match when their
// Phase and Kind are equal; a target with an empty Phase matches any phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase != "" && e.Phase != t.Phase {
			return false
		}
		return e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err is (or wraps) an *Error with the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the function or resource path
func (b *Builder) Path(elems ...string) *Builder {
	b.err.Path = elems
	return b
}

// Offset records a bytecode or memory offset on the path
func (b *Builder) Offset(off uint32) *Builder {
	b.err.Path = append(b.err.Path, fmt.Sprintf("+0x%x", off))
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// StackUnderflow creates a stack underflow error at a bytecode offset
func StackUnderflow(phase Phase, pc uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStackUnderflow,
		Detail: fmt.Sprintf("value stack empty at offset 0x%x", pc),
	}
}

// OutOfBounds creates an out of bounds memory access error
func OutOfBounds(phase Phase, offset uint64, length, size uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access of %d bytes at offset %d exceeds memory size %d", length, offset, size),
		Value:  offset,
	}
}

// UnimplementedOpcode creates an error for an opcode outside the supported set
func UnimplementedOpcode(opcode byte, pc uint32) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindUnimplementedOp,
		Detail: fmt.Sprintf("opcode 0x%02x at offset 0x%x is not implemented", opcode, pc),
		Value:  opcode,
	}
}

// DivisionByZero creates a division by zero error
func DivisionByZero(pc uint32) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindDivisionByZero,
		Detail: fmt.Sprintf("integer division by zero at offset 0x%x", pc),
	}
}

// FunctionNotFound creates an error for a missing function table entry
func FunctionNotFound(name string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindFunctionNotFound,
		Path:   []string{name},
		Detail: fmt.Sprintf("no function registered under %q", name),
	}
}

// InvalidParameterCount creates an arity mismatch error
func InvalidParameterCount(name string, want, got int) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindInvalidParamCount,
		Path:   []string{name},
		Detail: fmt.Sprintf("function declares %d parameters, got %d arguments", want, got),
	}
}

// PermissionDenied creates a capability denial error
func PermissionDenied(capability, detail string) *Error {
	return &Error{
		Phase:  PhasePolicy,
		Kind:   KindPermissionDenied,
		Path:   []string{capability},
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
