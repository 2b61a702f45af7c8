// Package errors provides structured error types for the enclave engine.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes context: the function or resource path,
// the offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseExecute, errors.KindDivisionByZero).
//		Path("fib").
//		Offset(12).
//		Detail("i32.div_s divisor is zero").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.StackUnderflow(errors.PhaseExecute, pc)
//	err := errors.OutOfBounds(errors.PhaseExecute, offset, length, size)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
