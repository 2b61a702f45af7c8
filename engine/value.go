package engine

import (
	"fmt"
	"math"
)

// ValueType is the tag of a Value. The numbering matches the wasm binary
// encoding of value types.
type ValueType byte

const (
	I32 ValueType = 0x7F
	I64 ValueType = 0x7E
	F32 ValueType = 0x7D
	F64 ValueType = 0x7C
)

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("ValueType(0x%02x)", byte(t))
	}
}

// Value is a tagged numeric value. Floats are stored by their IEEE 754 bit
// pattern so a Value is always two words.
type Value struct {
	bits uint64
	typ  ValueType
}

func NewI32(v int32) Value {
	return Value{bits: uint64(uint32(v)), typ: I32}
}

func NewI64(v int64) Value {
	return Value{bits: uint64(v), typ: I64}
}

func NewF32(v float32) Value {
	return Value{bits: uint64(math.Float32bits(v)), typ: F32}
}

func NewF64(v float64) Value {
	return Value{bits: math.Float64bits(v), typ: F64}
}

// FromGo infers a Value from a Go numeric value. Integers narrower than 64
// bits promote to i32, 64-bit integers (and int/uint) to i64; float32 maps
// to f32 and float64 to f64.
func FromGo(v any) Value {
	switch n := v.(type) {
	case int8:
		return NewI32(int32(n))
	case int16:
		return NewI32(int32(n))
	case int32:
		return NewI32(n)
	case uint8:
		return NewI32(int32(n))
	case uint16:
		return NewI32(int32(n))
	case uint32:
		return NewI32(int32(n))
	case int64:
		return NewI64(n)
	case uint64:
		return NewI64(int64(n))
	case int:
		return NewI64(int64(n))
	case uint:
		return NewI64(int64(n))
	case float32:
		return NewF32(n)
	case float64:
		return NewF64(n)
	default:
		panic(fmt.Sprintf("engine: cannot infer value type for %T", v))
	}
}

// Type returns the value's tag.
func (v Value) Type() ValueType { return v.typ }

// I32 returns the value's bits as a signed 32-bit integer.
func (v Value) I32() int32 { return int32(uint32(v.bits)) }

// I64 returns the value's bits as a signed 64-bit integer.
func (v Value) I64() int64 { return int64(v.bits) }

// F32 returns the value's bits as a 32-bit float.
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.bits)) }

// F64 returns the value's bits as a 64-bit float.
func (v Value) F64() float64 { return math.Float64frombits(v.bits) }

// ToI32 coerces the value to a 32-bit integer, truncating floats toward
// zero. Coercions are total functions.
func (v Value) ToI32() int32 {
	switch v.typ {
	case I32:
		return v.I32()
	case I64:
		return int32(v.I64())
	case F32:
		return int32(v.F32())
	case F64:
		return int32(v.F64())
	default:
		panic("unreachable")
	}
}

// ToI64 coerces the value to a 64-bit integer, truncating floats toward zero.
func (v Value) ToI64() int64 {
	switch v.typ {
	case I32:
		return int64(v.I32())
	case I64:
		return v.I64()
	case F32:
		return int64(v.F32())
	case F64:
		return int64(v.F64())
	default:
		panic("unreachable")
	}
}

// ToF32 coerces the value to a 32-bit float.
func (v Value) ToF32() float32 {
	switch v.typ {
	case I32:
		return float32(v.I32())
	case I64:
		return float32(v.I64())
	case F32:
		return v.F32()
	case F64:
		return float32(v.F64())
	default:
		panic("unreachable")
	}
}

// ToF64 coerces the value to a 64-bit float.
func (v Value) ToF64() float64 {
	switch v.typ {
	case I32:
		return float64(v.I32())
	case I64:
		return float64(v.I64())
	case F32:
		return float64(v.F32())
	case F64:
		return v.F64()
	default:
		panic("unreachable")
	}
}

// Interface returns the value as the Go type matching its tag.
func (v Value) Interface() any {
	switch v.typ {
	case I32:
		return v.I32()
	case I64:
		return v.I64()
	case F32:
		return v.F32()
	case F64:
		return v.F64()
	default:
		panic("unreachable")
	}
}

func (v Value) String() string {
	switch v.typ {
	case I32:
		return fmt.Sprintf("i32:%d", v.I32())
	case I64:
		return fmt.Sprintf("i64:%d", v.I64())
	case F32:
		return fmt.Sprintf("f32:%g", v.F32())
	case F64:
		return fmt.Sprintf("f64:%g", v.F64())
	default:
		return fmt.Sprintf("value(0x%02x:%x)", byte(v.typ), v.bits)
	}
}
