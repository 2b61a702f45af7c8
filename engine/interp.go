package engine

import (
	"math"
	"math/bits"
	"time"

	"github.com/enclavevm/enclave/errors"
)

// fuelCheckInterval is how many instructions run between deadline checks
// when in-loop CPU enforcement is armed.
const fuelCheckInterval = 1024

// frame is the execution state of one guest function invocation: a byte
// buffer with a program counter plus the locals array. The operand stack
// lives alongside it in exec.
type frame struct {
	code   []byte
	locals []Value
	pc     uint32
}

func (f *frame) readByte() (byte, error) {
	if f.pc >= uint32(len(f.code)) {
		return 0, errors.New(errors.PhaseExecute, errors.KindUnexpectedEnd).
			Detail("bytecode exhausted at offset 0x%x", f.pc).
			Build()
	}
	b := f.code[f.pc]
	f.pc++
	return b, nil
}

func (f *frame) readBytes(n uint32) ([]byte, error) {
	if uint64(f.pc)+uint64(n) > uint64(len(f.code)) {
		return nil, errors.New(errors.PhaseExecute, errors.KindUnexpectedEnd).
			Detail("bytecode exhausted at offset 0x%x", f.pc).
			Build()
	}
	out := f.code[f.pc : f.pc+n]
	f.pc += n
	return out, nil
}

// memArg decodes the alignment and offset immediates of a load or store.
// Alignment is a hint only and is discarded.
func (f *frame) memArg() (offset uint32, err error) {
	if _, err = f.readUleb(32); err != nil {
		return 0, err
	}
	off, err := f.readUleb(32)
	if err != nil {
		return 0, err
	}
	return uint32(off), nil
}

// exec runs the fetch-decode-execute loop over fn's bytecode. Whatever
// remains on the operand stack when execution terminates is returned, bottom
// first, as the function's result list. Execution terminates on end, return,
// or the end of the buffer.
func (inst *Instance) exec(fn *function, args []Value, deadline time.Time) ([]Value, error) {
	stackLimit := 0
	if inst.policy != nil {
		stackLimit = inst.policy.MaxStackDepth
	}
	stack := newValueStack(stackLimit)

	locals := make([]Value, len(args))
	copy(locals, args)
	f := &frame{code: fn.code, locals: locals}

	var steps uint64
	for {
		if f.pc >= uint32(len(f.code)) {
			break
		}
		steps++
		if steps%fuelCheckInterval == 0 && !deadline.IsZero() && time.Now().After(deadline) {
			return nil, errors.New(errors.PhaseExecute, errors.KindCPUTimeLimit).
				Path(fn.name).
				Detail("call exceeded its CPU deadline").
				Build()
		}

		opPC := f.pc
		op, err := f.readByte()
		if err != nil {
			return nil, err
		}

		switch op {
		case opEnd, opReturn:
			return stack.drain(), nil

		case opDrop:
			if _, err := stack.pop(); err != nil {
				return nil, err
			}

		case opI32Const:
			v, err := f.readSleb(32)
			if err != nil {
				return nil, err
			}
			if err := stack.push(NewI32(int32(v))); err != nil {
				return nil, err
			}

		case opI64Const:
			v, err := f.readSleb(64)
			if err != nil {
				return nil, err
			}
			if err := stack.push(NewI64(v)); err != nil {
				return nil, err
			}

		case opF32Const:
			raw, err := f.readBytes(4)
			if err != nil {
				return nil, err
			}
			v := math.Float32frombits(uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24)
			if err := stack.push(NewF32(v)); err != nil {
				return nil, err
			}

		case opF64Const:
			raw, err := f.readBytes(8)
			if err != nil {
				return nil, err
			}
			var b uint64
			for i := 7; i >= 0; i-- {
				b = b<<8 | uint64(raw[i])
			}
			if err := stack.push(NewF64(math.Float64frombits(b))); err != nil {
				return nil, err
			}

		case opLocalGet:
			idx, err := f.localIndex()
			if err != nil {
				return nil, err
			}
			if err := stack.push(f.locals[idx]); err != nil {
				return nil, err
			}

		case opLocalSet:
			idx, err := f.localIndex()
			if err != nil {
				return nil, err
			}
			v, err := stack.pop()
			if err != nil {
				return nil, err
			}
			f.locals[idx] = v

		case opLocalTee:
			idx, err := f.localIndex()
			if err != nil {
				return nil, err
			}
			v, err := stack.pop()
			if err != nil {
				return nil, err
			}
			f.locals[idx] = v
			if err := stack.push(v); err != nil {
				return nil, err
			}

		case opI32Load, opI64Load, opF32Load, opF64Load:
			if err := inst.execLoad(f, stack, op); err != nil {
				return nil, err
			}

		case opI32Store, opI64Store, opF32Store, opF64Store:
			if err := inst.execStore(f, stack, op); err != nil {
				return nil, err
			}

		case opI32Eqz:
			v, err := stack.pop()
			if err != nil {
				return nil, err
			}
			if err := stack.push(boolValue(v.I32() == 0)); err != nil {
				return nil, err
			}

		case opI64Eqz:
			v, err := stack.pop()
			if err != nil {
				return nil, err
			}
			if err := stack.push(boolValue(v.I64() == 0)); err != nil {
				return nil, err
			}

		case opI32Eq, opI32Ne, opI32LtS, opI32LtU, opI32GtS, opI32GtU,
			opI32LeS, opI32LeU, opI32GeS, opI32GeU:
			a, b, err := stack.pop2()
			if err != nil {
				return nil, err
			}
			if err := stack.push(boolValue(compareI32(op, a.I32(), b.I32()))); err != nil {
				return nil, err
			}

		case opI64Eq, opI64Ne, opI64LtS, opI64LtU, opI64GtS, opI64GtU,
			opI64LeS, opI64LeU, opI64GeS, opI64GeU:
			a, b, err := stack.pop2()
			if err != nil {
				return nil, err
			}
			if err := stack.push(boolValue(compareI64(op, a.I64(), b.I64()))); err != nil {
				return nil, err
			}

		case opI32Add, opI32Sub, opI32Mul, opI32And, opI32Or, opI32Xor,
			opI32Shl, opI32ShrS, opI32ShrU, opI32Rotl, opI32Rotr:
			a, b, err := stack.pop2()
			if err != nil {
				return nil, err
			}
			if err := stack.push(NewI32(arithI32(op, a.I32(), b.I32()))); err != nil {
				return nil, err
			}

		case opI64Add, opI64Sub, opI64Mul, opI64And, opI64Or, opI64Xor,
			opI64Shl, opI64ShrS, opI64ShrU, opI64Rotl, opI64Rotr:
			a, b, err := stack.pop2()
			if err != nil {
				return nil, err
			}
			if err := stack.push(NewI64(arithI64(op, a.I64(), b.I64()))); err != nil {
				return nil, err
			}

		case opI32DivS, opI32DivU, opI32RemS, opI32RemU:
			a, b, err := stack.pop2()
			if err != nil {
				return nil, err
			}
			r, err := divI32(op, a.I32(), b.I32(), opPC)
			if err != nil {
				return nil, err
			}
			if err := stack.push(NewI32(r)); err != nil {
				return nil, err
			}

		case opI64DivS, opI64DivU, opI64RemS, opI64RemU:
			a, b, err := stack.pop2()
			if err != nil {
				return nil, err
			}
			r, err := divI64(op, a.I64(), b.I64(), opPC)
			if err != nil {
				return nil, err
			}
			if err := stack.push(NewI64(r)); err != nil {
				return nil, err
			}

		default:
			return nil, errors.UnimplementedOpcode(op, opPC)
		}
	}
	return stack.drain(), nil
}

func (f *frame) localIndex() (uint32, error) {
	idx, err := f.readUleb(32)
	if err != nil {
		return 0, err
	}
	if idx >= uint64(len(f.locals)) {
		return 0, errors.New(errors.PhaseExecute, errors.KindInvalidLocalIndex).
			Detail("local index %d out of range (have %d locals)", idx, len(f.locals)).
			Build()
	}
	return uint32(idx), nil
}

// effectiveAddress combines the popped address with the offset immediate.
// The sum is widened so it cannot wrap around 32 bits.
func (inst *Instance) effectiveAddress(stack *valueStack, offset uint32) (uint32, *Memory, error) {
	if inst.memory == nil {
		return 0, nil, errors.New(errors.PhaseExecute, errors.KindNoMemory).
			Detail("memory access with no memory attached").
			Build()
	}
	addr, err := stack.pop()
	if err != nil {
		return 0, nil, err
	}
	eff := uint64(uint32(addr.I32())) + uint64(offset)
	if eff > math.MaxUint32 {
		return 0, nil, errors.OutOfBounds(errors.PhaseExecute, eff, 0, uint64(inst.memory.Size()))
	}
	return uint32(eff), inst.memory, nil
}

func (inst *Instance) execLoad(f *frame, stack *valueStack, op byte) error {
	offset, err := f.memArg()
	if err != nil {
		return err
	}
	eff, mem, err := inst.effectiveAddress(stack, offset)
	if err != nil {
		return err
	}

	var v Value
	switch op {
	case opI32Load:
		raw, err := mem.ReadU32(eff)
		if err != nil {
			return err
		}
		v = NewI32(int32(raw))
	case opI64Load:
		raw, err := mem.ReadU64(eff)
		if err != nil {
			return err
		}
		v = NewI64(int64(raw))
	case opF32Load:
		raw, err := mem.ReadU32(eff)
		if err != nil {
			return err
		}
		v = NewF32(math.Float32frombits(raw))
	case opF64Load:
		raw, err := mem.ReadU64(eff)
		if err != nil {
			return err
		}
		v = NewF64(math.Float64frombits(raw))
	}
	return stack.push(v)
}

func (inst *Instance) execStore(f *frame, stack *valueStack, op byte) error {
	offset, err := f.memArg()
	if err != nil {
		return err
	}
	v, err := stack.pop()
	if err != nil {
		return err
	}
	eff, mem, err := inst.effectiveAddress(stack, offset)
	if err != nil {
		return err
	}

	switch op {
	case opI32Store, opF32Store:
		return mem.WriteU32(eff, uint32(v.bits))
	case opI64Store, opF64Store:
		return mem.WriteU64(eff, v.bits)
	}
	return nil
}

func boolValue(b bool) Value {
	if b {
		return NewI32(1)
	}
	return NewI32(0)
}

func compareI32(op byte, a, b int32) bool {
	switch op {
	case opI32Eq:
		return a == b
	case opI32Ne:
		return a != b
	case opI32LtS:
		return a < b
	case opI32LtU:
		return uint32(a) < uint32(b)
	case opI32GtS:
		return a > b
	case opI32GtU:
		return uint32(a) > uint32(b)
	case opI32LeS:
		return a <= b
	case opI32LeU:
		return uint32(a) <= uint32(b)
	case opI32GeS:
		return a >= b
	case opI32GeU:
		return uint32(a) >= uint32(b)
	}
	panic("unreachable")
}

func compareI64(op byte, a, b int64) bool {
	switch op {
	case opI64Eq:
		return a == b
	case opI64Ne:
		return a != b
	case opI64LtS:
		return a < b
	case opI64LtU:
		return uint64(a) < uint64(b)
	case opI64GtS:
		return a > b
	case opI64GtU:
		return uint64(a) > uint64(b)
	case opI64LeS:
		return a <= b
	case opI64LeU:
		return uint64(a) <= uint64(b)
	case opI64GeS:
		return a >= b
	case opI64GeU:
		return uint64(a) >= uint64(b)
	}
	panic("unreachable")
}

// arithI32 implements the non-trapping i32 binary operations. Add, sub and
// mul wrap on overflow; shift amounts are taken modulo the operand width.
func arithI32(op byte, a, b int32) int32 {
	switch op {
	case opI32Add:
		return a + b
	case opI32Sub:
		return a - b
	case opI32Mul:
		return a * b
	case opI32And:
		return a & b
	case opI32Or:
		return a | b
	case opI32Xor:
		return a ^ b
	case opI32Shl:
		return a << (uint32(b) % 32)
	case opI32ShrS:
		return a >> (uint32(b) % 32)
	case opI32ShrU:
		return int32(uint32(a) >> (uint32(b) % 32))
	case opI32Rotl:
		return int32(bits.RotateLeft32(uint32(a), int(uint32(b)%32)))
	case opI32Rotr:
		return int32(bits.RotateLeft32(uint32(a), -int(uint32(b)%32)))
	}
	panic("unreachable")
}

func arithI64(op byte, a, b int64) int64 {
	switch op {
	case opI64Add:
		return a + b
	case opI64Sub:
		return a - b
	case opI64Mul:
		return a * b
	case opI64And:
		return a & b
	case opI64Or:
		return a | b
	case opI64Xor:
		return a ^ b
	case opI64Shl:
		return a << (uint64(b) % 64)
	case opI64ShrS:
		return a >> (uint64(b) % 64)
	case opI64ShrU:
		return int64(uint64(a) >> (uint64(b) % 64))
	case opI64Rotl:
		return int64(bits.RotateLeft64(uint64(a), int(uint64(b)%64)))
	case opI64Rotr:
		return int64(bits.RotateLeft64(uint64(a), -int(uint64(b)%64)))
	}
	panic("unreachable")
}

// divI32 implements division and remainder. Division by zero traps, as does
// the one signed quotient that cannot be represented (MinInt32 / -1).
// Unsigned variants reinterpret the operand bit patterns before dividing.
func divI32(op byte, a, b int32, pc uint32) (int32, error) {
	if b == 0 {
		return 0, errors.DivisionByZero(pc)
	}
	switch op {
	case opI32DivS:
		if a == math.MinInt32 && b == -1 {
			return 0, errors.New(errors.PhaseExecute, errors.KindIntegerOverflow).
				Detail("i32.div_s overflow at offset 0x%x", pc).
				Build()
		}
		return a / b, nil
	case opI32DivU:
		return int32(uint32(a) / uint32(b)), nil
	case opI32RemS:
		if a == math.MinInt32 && b == -1 {
			return 0, nil
		}
		return a % b, nil
	case opI32RemU:
		return int32(uint32(a) % uint32(b)), nil
	}
	panic("unreachable")
}

func divI64(op byte, a, b int64, pc uint32) (int64, error) {
	if b == 0 {
		return 0, errors.DivisionByZero(pc)
	}
	switch op {
	case opI64DivS:
		if a == math.MinInt64 && b == -1 {
			return 0, errors.New(errors.PhaseExecute, errors.KindIntegerOverflow).
				Detail("i64.div_s overflow at offset 0x%x", pc).
				Build()
		}
		return a / b, nil
	case opI64DivU:
		return int64(uint64(a) / uint64(b)), nil
	case opI64RemS:
		if a == math.MinInt64 && b == -1 {
			return 0, nil
		}
		return a % b, nil
	case opI64RemU:
		return int64(uint64(a) % uint64(b)), nil
	}
	panic("unreachable")
}
