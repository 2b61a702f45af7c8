package wasi

import (
	"github.com/enclavevm/enclave"
	"github.com/enclavevm/enclave/engine"
	"github.com/enclavevm/enclave/errors"
)

// Register installs the bridge functions on an Instance under their
// syscall names. The instance's memory is resolved at call time, so
// Register may run before a memory is attached; bridge calls made without
// one fail with INVAL.
func (h *Host) Register(inst *engine.Instance) error {
	i32 := engine.I32
	errnoResult := []engine.ValueType{i32}

	memory := func() (enclave.Memory, bool) {
		if m := inst.Memory(); m != nil {
			return m, true
		}
		return nil, false
	}

	bind2 := func(call func(mem enclave.Memory, a, b uint32) Errno) engine.HostFunc {
		return func(args []engine.Value) ([]engine.Value, error) {
			mem, ok := memory()
			if !ok {
				return []engine.Value{engine.NewI32(int32(ErrnoInval))}, nil
			}
			errno := call(mem, uint32(args[0].I32()), uint32(args[1].I32()))
			return []engine.Value{engine.NewI32(int32(errno))}, nil
		}
	}
	bind3 := func(call func(mem enclave.Memory, a, b, c uint32) Errno) engine.HostFunc {
		return func(args []engine.Value) ([]engine.Value, error) {
			mem, ok := memory()
			if !ok {
				return []engine.Value{engine.NewI32(int32(ErrnoInval))}, nil
			}
			errno := call(mem, uint32(args[0].I32()), uint32(args[1].I32()), uint32(args[2].I32()))
			return []engine.Value{engine.NewI32(int32(errno))}, nil
		}
	}
	bind4 := func(call func(mem enclave.Memory, a, b, c, d uint32) Errno) engine.HostFunc {
		return func(args []engine.Value) ([]engine.Value, error) {
			mem, ok := memory()
			if !ok {
				return []engine.Value{engine.NewI32(int32(ErrnoInval))}, nil
			}
			errno := call(mem,
				uint32(args[0].I32()), uint32(args[1].I32()),
				uint32(args[2].I32()), uint32(args[3].I32()))
			return []engine.Value{engine.NewI32(int32(errno))}, nil
		}
	}

	bindings := []struct {
		name   string
		params []engine.ValueType
		fn     engine.HostFunc
	}{
		{"args_sizes_get", []engine.ValueType{i32, i32}, bind2(h.ArgsSizesGet)},
		{"args_get", []engine.ValueType{i32, i32}, bind2(h.ArgsGet)},
		{"environ_sizes_get", []engine.ValueType{i32, i32}, bind2(h.EnvironSizesGet)},
		{"environ_get", []engine.ValueType{i32, i32}, bind2(h.EnvironGet)},
		{"fd_write", []engine.ValueType{i32, i32, i32, i32}, bind4(h.FdWrite)},
		{"fd_read", []engine.ValueType{i32, i32, i32, i32}, bind4(h.FdRead)},
		{"fd_prestat_get", []engine.ValueType{i32, i32}, bind2(h.FdPrestatGet)},
		{"fd_prestat_dir_name", []engine.ValueType{i32, i32, i32}, bind3(h.FdPrestatDirName)},
	}

	for _, b := range bindings {
		if err := inst.RegisterHostFunction(b.name, b.params, errnoResult, b.fn); err != nil {
			return errors.Wrap(errors.PhaseHost, errors.KindRegistration, err, "register "+b.name)
		}
	}

	procExit := func(args []engine.Value) ([]engine.Value, error) {
		return nil, h.ProcExit(args[0].I32())
	}
	if err := inst.RegisterHostFunction("proc_exit", []engine.ValueType{i32}, nil, procExit); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindRegistration, err, "register proc_exit")
	}
	return nil
}
