package engine

import (
	"math"
	"testing"
)

func TestFromGo_Inference(t *testing.T) {
	tests := []struct {
		in   any
		want ValueType
	}{
		{int8(-1), I32},
		{int16(300), I32},
		{int32(1 << 20), I32},
		{uint8(255), I32},
		{uint16(65535), I32},
		{uint32(1 << 31), I32},
		{int64(1 << 40), I64},
		{uint64(1 << 40), I64},
		{int(7), I64},
		{uint(7), I64},
		{float32(1.5), F32},
		{float64(2.5), F64},
	}

	for _, tt := range tests {
		if got := FromGo(tt.in).Type(); got != tt.want {
			t.Errorf("FromGo(%T(%v)).Type() = %s, want %s", tt.in, tt.in, got, tt.want)
		}
	}
}

func TestFromGo_Unsupported(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unsupported type")
		}
	}()
	FromGo("nope")
}

func TestValue_Accessors(t *testing.T) {
	if v := NewI32(-42); v.I32() != -42 {
		t.Errorf("I32() = %d, want -42", v.I32())
	}
	if v := NewI64(math.MinInt64); v.I64() != math.MinInt64 {
		t.Errorf("I64() = %d", v.I64())
	}
	if v := NewF32(1.5); v.F32() != 1.5 {
		t.Errorf("F32() = %g, want 1.5", v.F32())
	}
	if v := NewF64(-2.25); v.F64() != -2.25 {
		t.Errorf("F64() = %g, want -2.25", v.F64())
	}
}

func TestValue_Coercions(t *testing.T) {
	if got := NewF64(3.9).ToI32(); got != 3 {
		t.Errorf("f64 3.9 ToI32 = %d, want 3 (truncation toward zero)", got)
	}
	if got := NewF32(-3.9).ToI64(); got != -3 {
		t.Errorf("f32 -3.9 ToI64 = %d, want -3", got)
	}
	if got := NewI64(1 << 35).ToI32(); got != 0 {
		t.Errorf("i64 1<<35 ToI32 = %d, want 0 (truncation)", got)
	}
	if got := NewI32(7).ToF64(); got != 7.0 {
		t.Errorf("i32 7 ToF64 = %g, want 7", got)
	}
	if got := NewI32(3).ToF32(); got != 3.0 {
		t.Errorf("i32 3 ToF32 = %g, want 3", got)
	}
	if got := NewF64(1.5).ToF32(); got != 1.5 {
		t.Errorf("f64 1.5 ToF32 = %g, want 1.5", got)
	}
	if got := NewI32(-1).ToI64(); got != -1 {
		t.Errorf("i32 -1 ToI64 = %d, want -1 (sign extension)", got)
	}
}

func TestValue_Interface(t *testing.T) {
	if got := NewI32(5).Interface(); got != int32(5) {
		t.Errorf("Interface() = %v (%T), want int32 5", got, got)
	}
	if got := NewF64(2.5).Interface(); got != 2.5 {
		t.Errorf("Interface() = %v (%T), want float64 2.5", got, got)
	}
}

func TestValue_String(t *testing.T) {
	if got := NewI32(42).String(); got != "i32:42" {
		t.Errorf("String() = %q, want i32:42", got)
	}
	if got := NewF32(1.5).String(); got != "f32:1.5" {
		t.Errorf("String() = %q, want f32:1.5", got)
	}
}
