package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseExecute,
				Kind:   KindDivisionByZero,
				Path:   []string{"main", "+0xc"},
				Detail: "i32.div_s divisor is zero",
			},
			contains: []string{"[execute]", "division_by_zero", "main.+0xc", "divisor is zero"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseMemory,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[memory]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindInvalidInput,
				Detail: "short read",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "invalid_input", "short read", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseWASI, KindPermissionDenied, cause, "env access")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_Is(t *testing.T) {
	err := New(PhaseExecute, KindStackUnderflow).Detail("pop on empty stack").Build()

	if !errors.Is(err, &Error{Phase: PhaseExecute, Kind: KindStackUnderflow}) {
		t.Error("expected match on phase and kind")
	}
	if !errors.Is(err, &Error{Kind: KindStackUnderflow}) {
		t.Error("expected match on kind with empty phase")
	}
	if errors.Is(err, &Error{Phase: PhasePolicy, Kind: KindStackUnderflow}) {
		t.Error("unexpected match with different phase")
	}
	if errors.Is(err, &Error{Phase: PhaseExecute, Kind: KindOutOfBounds}) {
		t.Error("unexpected match with different kind")
	}
}

func TestIsKind(t *testing.T) {
	inner := FunctionNotFound("missing")
	outer := Wrap(PhaseCall, KindRegistration, inner, "dispatch failed")

	if !IsKind(outer, KindRegistration) {
		t.Error("expected outer kind to match")
	}
	if !IsKind(outer, KindFunctionNotFound) {
		t.Error("expected wrapped kind to match")
	}
	if IsKind(outer, KindNoMemory) {
		t.Error("unexpected kind match")
	}
	if IsKind(nil, KindNoMemory) {
		t.Error("nil error should never match")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseExecute, KindUnimplementedOp).
		Path("f").
		Offset(0x10).
		Value(byte(0xD0)).
		Detail("opcode 0x%02x", 0xD0).
		Build()

	if err.Phase != PhaseExecute || err.Kind != KindUnimplementedOp {
		t.Errorf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if len(err.Path) != 2 || err.Path[1] != "+0x10" {
		t.Errorf("unexpected path: %v", err.Path)
	}
	if err.Detail != "opcode 0xd0" {
		t.Errorf("unexpected detail: %q", err.Detail)
	}
}
