package engine

import (
	"testing"
	"time"

	"github.com/enclavevm/enclave/errors"
	"github.com/enclavevm/enclave/policy"
)

// sleb32 encodes v as a signed LEB128 immediate.
func sleb32(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func i32Const(v int32) []byte {
	return append([]byte{opI32Const}, sleb32(v)...)
}

func wasmInstance(t *testing.T, opts ...InstanceOption) *Instance {
	t.Helper()
	inst, err := New().CreateModule().Instantiate(opts...)
	if err != nil {
		t.Fatalf("Instantiate error: %v", err)
	}
	return inst
}

// runWasm registers code as a zero-parameter function and calls it.
func runWasm(t *testing.T, inst *Instance, code []byte, args ...Value) ([]Value, error) {
	t.Helper()
	params := make([]ValueType, len(args))
	for i, a := range args {
		params[i] = a.Type()
	}
	if err := inst.RegisterWasmFunction("f", params, nil, code); err != nil {
		t.Fatalf("RegisterWasmFunction error: %v", err)
	}
	return inst.Call("f", args...)
}

func singleI32(t *testing.T) func(results []Value, err error) int32 {
	t.Helper()
	return func(results []Value, err error) int32 {
		t.Helper()
		if err != nil {
			t.Fatalf("Call error: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		return results[0].I32()
	}
}

func TestExec_ConstAdd(t *testing.T) {
	inst := wasmInstance(t)
	code := append(append(i32Const(40), i32Const(2)...), opI32Add, opEnd)

	got := singleI32(t)(runWasm(t, inst, code))
	if got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
}

func TestExec_WrappingArithmetic(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int32
	}{
		{"add wraps", append(append(i32Const(2147483647), i32Const(1)...), opI32Add, opEnd), -2147483648},
		{"sub wraps", append(append(i32Const(-2147483648), i32Const(1)...), opI32Sub, opEnd), 2147483647},
		{"mul wraps", append(append(i32Const(1<<16), i32Const(1<<16)...), opI32Mul, opEnd), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := singleI32(t)(runWasm(t, wasmInstance(t), tt.code))
			if got != tt.want {
				t.Errorf("result = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExec_Division(t *testing.T) {
	tests := []struct {
		name string
		op   byte
		a, b int32
		want int32
	}{
		{"div_s", opI32DivS, -7, 2, -3},
		{"div_u reinterprets", opI32DivU, -2, 2, 2147483647},
		{"rem_s", opI32RemS, -7, 2, -1},
		{"rem_u reinterprets", opI32RemU, -1, 10, 5}, // 4294967295 % 10
		{"rem_s overflow case", opI32RemS, -2147483648, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := append(append(i32Const(tt.a), i32Const(tt.b)...), tt.op, opEnd)
			got := singleI32(t)(runWasm(t, wasmInstance(t), code))
			if got != tt.want {
				t.Errorf("result = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExec_DivisionByZero(t *testing.T) {
	for _, op := range []byte{opI32DivS, opI32DivU, opI32RemS, opI32RemU} {
		code := append(append(i32Const(1), i32Const(0)...), op, opEnd)
		_, err := runWasm(t, wasmInstance(t), code)
		if !errors.IsKind(err, errors.KindDivisionByZero) {
			t.Errorf("opcode %#x: expected division_by_zero, got %v", op, err)
		}
	}
}

func TestExec_DivSOverflow(t *testing.T) {
	code := append(append(i32Const(-2147483648), i32Const(-1)...), opI32DivS, opEnd)
	_, err := runWasm(t, wasmInstance(t), code)
	if !errors.IsKind(err, errors.KindIntegerOverflow) {
		t.Fatalf("expected integer_overflow, got %v", err)
	}
}

func TestExec_ShiftsModuloWidth(t *testing.T) {
	// Shift amount 33 is taken modulo 32.
	code := append(append(i32Const(1), i32Const(33)...), opI32Shl, opEnd)
	got := singleI32(t)(runWasm(t, wasmInstance(t), code))
	if got != 2 {
		t.Errorf("1 << 33 = %d, want 2", got)
	}

	code = append(append(i32Const(-8), i32Const(1)...), opI32ShrS, opEnd)
	got = singleI32(t)(runWasm(t, wasmInstance(t), code))
	if got != -4 {
		t.Errorf("-8 >>s 1 = %d, want -4", got)
	}

	code = append(append(i32Const(-8), i32Const(1)...), opI32ShrU, opEnd)
	got = singleI32(t)(runWasm(t, wasmInstance(t), code))
	if got != 2147483644 {
		t.Errorf("-8 >>u 1 = %d, want 2147483644", got)
	}
}

func TestExec_Bitwise(t *testing.T) {
	tests := []struct {
		op   byte
		want int32
	}{
		{opI32And, 0b1000},
		{opI32Or, 0b1110},
		{opI32Xor, 0b0110},
	}
	for _, tt := range tests {
		code := append(append(i32Const(0b1100), i32Const(0b1010)...), tt.op, opEnd)
		got := singleI32(t)(runWasm(t, wasmInstance(t), code))
		if got != tt.want {
			t.Errorf("opcode %#x = %b, want %b", tt.op, got, tt.want)
		}
	}
}

func TestExec_Comparisons(t *testing.T) {
	tests := []struct {
		name string
		op   byte
		a, b int32
		want int32
	}{
		{"eq true", opI32Eq, 5, 5, 1},
		{"eq false", opI32Eq, 5, 6, 0},
		{"ne", opI32Ne, 5, 6, 1},
		{"lt_s signed", opI32LtS, -1, 0, 1},
		{"lt_u reinterprets", opI32LtU, -1, 0, 0},
		{"gt_s", opI32GtS, 3, 2, 1},
		{"ge_u", opI32GeU, -1, 1, 1},
		{"le_s", opI32LeS, 2, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := append(append(i32Const(tt.a), i32Const(tt.b)...), tt.op, opEnd)
			got := singleI32(t)(runWasm(t, wasmInstance(t), code))
			if got != tt.want {
				t.Errorf("result = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExec_I64Arithmetic(t *testing.T) {
	// Wide constants come in through locals rather than hand-encoded
	// immediates.
	inst := wasmInstance(t)
	body := []byte{opLocalGet, 0x00, opLocalGet, 0x01, opI64Add, opEnd}
	if err := inst.RegisterWasmFunction("add64", []ValueType{I64, I64}, []ValueType{I64}, body); err != nil {
		t.Fatalf("RegisterWasmFunction error: %v", err)
	}
	results, err := inst.Call("add64", NewI64(1<<40), NewI64(5))
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if got := results[0].I64(); got != (1<<40)+5 {
		t.Errorf("result = %d, want %d", got, int64(1<<40)+5)
	}
}

func TestExec_Eqz(t *testing.T) {
	code := append(i32Const(0), opI32Eqz, opEnd)
	if got := singleI32(t)(runWasm(t, wasmInstance(t), code)); got != 1 {
		t.Errorf("eqz(0) = %d, want 1", got)
	}
	code = append(i32Const(3), opI32Eqz, opEnd)
	if got := singleI32(t)(runWasm(t, wasmInstance(t), code)); got != 0 {
		t.Errorf("eqz(3) = %d, want 0", got)
	}
}

func TestExec_Locals(t *testing.T) {
	inst := wasmInstance(t)
	// swapped difference: f(a, b) = b - a via local.get ordering.
	body := []byte{opLocalGet, 0x01, opLocalGet, 0x00, opI32Sub, opEnd}
	if err := inst.RegisterWasmFunction("rsub", []ValueType{I32, I32}, []ValueType{I32}, body); err != nil {
		t.Fatalf("RegisterWasmFunction error: %v", err)
	}
	results, err := inst.Call("rsub", NewI32(2), NewI32(10))
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if got := results[0].I32(); got != 8 {
		t.Errorf("result = %d, want 8", got)
	}
}

func TestExec_LocalSetTee(t *testing.T) {
	inst := wasmInstance(t)
	// tee leaves the value on the stack, set consumes it.
	body := []byte{
		opI32Const, 0x05,
		opLocalTee, 0x00,
		opLocalGet, 0x00,
		opI32Add,
		opLocalSet, 0x00,
		opLocalGet, 0x00,
		opEnd,
	}
	if err := inst.RegisterWasmFunction("f", []ValueType{I32}, []ValueType{I32}, body); err != nil {
		t.Fatalf("RegisterWasmFunction error: %v", err)
	}
	results, err := inst.Call("f", NewI32(0))
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if got := results[0].I32(); got != 10 {
		t.Errorf("result = %d, want 10", got)
	}
}

func TestExec_InvalidLocalIndex(t *testing.T) {
	code := []byte{opLocalGet, 0x02, opEnd}
	_, err := runWasm(t, wasmInstance(t), code, NewI32(1))
	if !errors.IsKind(err, errors.KindInvalidLocalIndex) {
		t.Fatalf("expected invalid_local_index, got %v", err)
	}
}

func TestExec_MemoryLoadStore(t *testing.T) {
	inst := wasmInstance(t, WithMemory(1, 0))
	code := []byte{}
	code = append(code, i32Const(8)...)          // address
	code = append(code, i32Const(0x11223344)...) // value
	code = append(code, opI32Store, 0x02, 0x00)  // align 2, offset 0
	code = append(code, i32Const(0)...)          // address
	code = append(code, opI32Load, 0x02, 0x08)   // align 2, offset 8
	code = append(code, opEnd)

	got := singleI32(t)(runWasm(t, inst, code))
	if got != 0x11223344 {
		t.Errorf("loaded %#x, want 0x11223344", got)
	}
}

func TestExec_MemoryLoadOutOfBounds(t *testing.T) {
	inst := wasmInstance(t, WithMemory(1, 0))
	code := append(i32Const(PageSize-2), opI32Load, 0x02, 0x00, opEnd)
	_, err := runWasm(t, inst, code)
	if !errors.IsKind(err, errors.KindOutOfBounds) {
		t.Fatalf("expected out_of_bounds, got %v", err)
	}
}

func TestExec_NoMemory(t *testing.T) {
	inst := wasmInstance(t)
	code := append(i32Const(0), opI32Load, 0x02, 0x00, opEnd)
	_, err := runWasm(t, inst, code)
	if !errors.IsKind(err, errors.KindNoMemory) {
		t.Fatalf("expected no_memory, got %v", err)
	}
}

func TestExec_FloatConsts(t *testing.T) {
	inst := wasmInstance(t)
	// f32.const 1.5 (0x3FC00000 little-endian)
	code := []byte{opF32Const, 0x00, 0x00, 0xC0, 0x3F, opEnd}
	if err := inst.RegisterWasmFunction("c32", nil, []ValueType{F32}, code); err != nil {
		t.Fatalf("RegisterWasmFunction error: %v", err)
	}
	results, err := inst.Call("c32")
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if got := results[0].F32(); got != 1.5 {
		t.Errorf("f32 const = %g, want 1.5", got)
	}

	// f64.const -2.0 (0xC000000000000000 little-endian)
	code = []byte{opF64Const, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC0, opEnd}
	if err := inst.RegisterWasmFunction("c64", nil, []ValueType{F64}, code); err != nil {
		t.Fatalf("RegisterWasmFunction error: %v", err)
	}
	results, err = inst.Call("c64")
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if got := results[0].F64(); got != -2.0 {
		t.Errorf("f64 const = %g, want -2", got)
	}
}

func TestExec_Drop(t *testing.T) {
	code := append(append(i32Const(1), i32Const(2)...), opDrop, opEnd)
	got := singleI32(t)(runWasm(t, wasmInstance(t), code))
	if got != 1 {
		t.Errorf("result = %d, want 1", got)
	}
}

func TestExec_MultipleResults(t *testing.T) {
	// Everything left on the stack is returned, bottom first.
	code := append(append(i32Const(1), i32Const(2)...), opEnd)
	results, err := runWasm(t, wasmInstance(t), code)
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if len(results) != 2 || results[0].I32() != 1 || results[1].I32() != 2 {
		t.Errorf("results = %v, want [1 2]", results)
	}
}

func TestExec_StackUnderflow(t *testing.T) {
	code := append(i32Const(1), opI32Add, opEnd)
	_, err := runWasm(t, wasmInstance(t), code)
	if !errors.IsKind(err, errors.KindStackUnderflow) {
		t.Fatalf("expected stack_underflow, got %v", err)
	}
}

func TestExec_UnimplementedOpcode(t *testing.T) {
	// Structured control flow must fail loudly, not be skipped.
	for _, op := range []byte{0x00 /* unreachable */, 0x02 /* block */, 0x10 /* call */} {
		_, err := runWasm(t, wasmInstance(t), []byte{op, opEnd})
		if !errors.IsKind(err, errors.KindUnimplementedOp) {
			t.Errorf("opcode %#x: expected unimplemented_opcode, got %v", op, err)
		}
	}
}

func TestExec_TruncatedImmediate(t *testing.T) {
	_, err := runWasm(t, wasmInstance(t), []byte{opI32Const})
	if !errors.IsKind(err, errors.KindUnexpectedEnd) {
		t.Fatalf("expected unexpected_end, got %v", err)
	}
}

func TestExec_OverlongImmediate(t *testing.T) {
	code := []byte{opI32Const, 0x80, 0x80, 0x80, 0x80, 0x80, 0x00, opEnd}
	_, err := runWasm(t, wasmInstance(t), code)
	if !errors.IsKind(err, errors.KindInvalidLEB128) {
		t.Fatalf("expected invalid_leb128, got %v", err)
	}
}

func TestExec_StackDepthLimit(t *testing.T) {
	p := &policy.Policy{MaxStackDepth: 4, MaxCPUTime: time.Second}
	inst := wasmInstance(t, WithPolicy(p))

	var code []byte
	for i := 0; i < 5; i++ {
		code = append(code, i32Const(int32(i))...)
	}
	code = append(code, opEnd)

	_, err := runWasm(t, inst, code)
	if !errors.IsKind(err, errors.KindStackOverflow) {
		t.Fatalf("expected stack_overflow, got %v", err)
	}
}

func TestExec_CPUDeadline(t *testing.T) {
	p := &policy.Policy{MaxCPUTime: time.Nanosecond, MaxStackDepth: 1 << 16}
	inst := wasmInstance(t, WithPolicy(p), WithCPULimit())

	// Enough straight-line work to reach the periodic deadline check.
	var code []byte
	for i := 0; i < 2048; i++ {
		code = append(code, i32Const(1)...)
		code = append(code, opDrop)
	}
	code = append(code, opEnd)

	_, err := runWasm(t, inst, code)
	if !errors.IsKind(err, errors.KindCPUTimeLimit) {
		t.Fatalf("expected cpu_time_limit_exceeded, got %v", err)
	}
}

func TestExec_ImplicitEnd(t *testing.T) {
	// Reaching the end of the buffer terminates like an explicit end.
	got := singleI32(t)(runWasm(t, wasmInstance(t), i32Const(7)))
	if got != 7 {
		t.Errorf("result = %d, want 7", got)
	}
}

func TestExec_ReturnTerminates(t *testing.T) {
	code := append(i32Const(3), opReturn, opI32Add)
	got := singleI32(t)(runWasm(t, wasmInstance(t), code))
	if got != 3 {
		t.Errorf("result = %d, want 3", got)
	}
}
