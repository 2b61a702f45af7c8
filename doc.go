// Package enclave provides a minimal sandboxed bytecode execution engine.
//
// The engine loads binary modules, exposes typed functions (host closures or
// guest bytecode) under a shared calling convention, executes guest bytecode
// against a bounds-checked linear memory, and gates every security-sensitive
// operation behind an explicit capability policy.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	enclave/          Root package with the core Memory interface
//	├── engine/       Value model, linear memory, instances, the interpreter
//	├── policy/       Deny-by-default capability policy and resource limits
//	├── wasi/         Syscall-style host/guest bridge (args, env, fd I/O)
//	├── errors/       Structured error types for debugging
//	└── cmd/run/      CLI driver for loading and invoking modules
//
// # Quick Start
//
// Load a module, register a function, and call it:
//
//	eng := engine.New()
//	mod := eng.CreateModule()
//
//	inst, err := mod.Instantiate(engine.WithMemory(1, 16))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close()
//
//	inst.RegisterWasmFunction("answer", nil, []engine.ValueType{engine.I32},
//	    []byte{0x41, 0x28, 0x41, 0x02, 0x6A, 0x0B})
//
//	results, err := inst.Call("answer")
//	fmt.Println(results[0].I32()) // 42
//
// # Capability Policy
//
// Every memory growth, filesystem, network, or environment-touching bridge
// call first consults a policy.Policy. A freshly constructed policy denies
// everything; grants are explicit:
//
//	p := policy.Restrictive()
//	inst, err := mod.Instantiate(engine.WithPolicy(p))
//
// # Thread Safety
//
// Engine and Module are safe for concurrent use. Instance is NOT thread-safe:
// keep one call in flight per Instance at a time, or synchronize externally.
//
// # Memory Model
//
// Linear memory can only grow, never shrink. Growth appends zero-filled
// 64KiB pages and fails without mutating state when it would exceed the
// configured maximum.
package enclave
