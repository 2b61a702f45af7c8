package wasi

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/enclavevm/enclave/engine"
)

func registeredInstance(t *testing.T, ctx *Context, opts ...engine.InstanceOption) *engine.Instance {
	t.Helper()
	inst, err := engine.New().CreateModule().Instantiate(opts...)
	if err != nil {
		t.Fatalf("Instantiate error: %v", err)
	}
	if err := NewHost(ctx, nil).Register(inst); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	return inst
}

func TestRegister_InstallsBridge(t *testing.T) {
	inst := registeredInstance(t, NewContext())

	want := []string{
		"args_sizes_get", "args_get",
		"environ_sizes_get", "environ_get",
		"fd_write", "fd_read",
		"fd_prestat_get", "fd_prestat_dir_name",
		"proc_exit",
	}
	for _, name := range want {
		if _, _, err := inst.Signature(name); err != nil {
			t.Errorf("%s not registered: %v", name, err)
		}
	}
}

func TestRegister_FdWriteThroughCall(t *testing.T) {
	var out bytes.Buffer
	ctx := NewContext().WithStdout(&out)
	inst := registeredInstance(t, ctx, engine.WithMemory(1, 0))

	mem := inst.Memory()
	if err := mem.Write(100, []byte("hi")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := mem.WriteU32(0, 100); err != nil {
		t.Fatalf("WriteU32 error: %v", err)
	}
	if err := mem.WriteU32(4, 2); err != nil {
		t.Fatalf("WriteU32 error: %v", err)
	}

	results, err := inst.Call("fd_write",
		engine.NewI32(1), engine.NewI32(0), engine.NewI32(1), engine.NewI32(64))
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if errno := Errno(results[0].I32()); errno != ErrnoSuccess {
		t.Fatalf("errno = %v", errno)
	}
	if out.String() != "hi" {
		t.Errorf("stdout = %q, want %q", out.String(), "hi")
	}
}

func TestRegister_NoMemoryYieldsInval(t *testing.T) {
	inst := registeredInstance(t, NewContext())

	results, err := inst.Call("args_sizes_get", engine.NewI32(0), engine.NewI32(4))
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if errno := Errno(results[0].I32()); errno != ErrnoInval {
		t.Errorf("errno = %v, want INVAL", errno)
	}
}

func TestRegister_LateMemoryAttachment(t *testing.T) {
	// Register runs before WithMemory here because the memory is resolved
	// at call time, not at registration time.
	inst := registeredInstance(t, NewContext().WithArgs([]string{"p"}),
		engine.WithMemory(1, 0))

	results, err := inst.Call("args_sizes_get", engine.NewI32(0), engine.NewI32(4))
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if errno := Errno(results[0].I32()); errno != ErrnoSuccess {
		t.Errorf("errno = %v, want SUCCESS", errno)
	}
	argc, _ := inst.Memory().ReadU32(0)
	if argc != 1 {
		t.Errorf("argc = %d, want 1", argc)
	}
}

func TestRegister_ProcExitPropagates(t *testing.T) {
	inst := registeredInstance(t, NewContext())

	_, err := inst.Call("proc_exit", engine.NewI32(42))
	var exit *ExitError
	if !stderrors.As(err, &exit) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exit.Code != 42 {
		t.Errorf("exit code = %d, want 42", exit.Code)
	}
}
