package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/enclavevm/enclave/errors"
	"github.com/enclavevm/enclave/policy"
)

// Instance is one instantiation of a Module: at most one linear Memory, a
// name-keyed function table, and a name-keyed global table. Instances are
// not safe for concurrent mutation; keep one call in flight at a time.
type Instance struct {
	module   *Module
	memory   *Memory
	funcs    map[string]*function
	globals  map[string]Value
	policy   *policy.Policy
	cpuLimit bool
	closed   bool
}

// InstanceOption configures an Instance at instantiation time.
type InstanceOption func(*Instance) error

// WithMemory attaches a linear memory of minPages zero-filled pages.
// maxPages of 0 means no explicit ceiling beyond the 4GiB hard cap.
func WithMemory(minPages, maxPages uint32) InstanceOption {
	return func(inst *Instance) error {
		mem, err := NewMemory(minPages, maxPages)
		if err != nil {
			return err
		}
		mem.policy = inst.policy
		inst.memory = mem
		return nil
	}
}

// WithPolicy attaches a capability policy. The policy gates memory growth
// and every bridge call made on behalf of this instance.
func WithPolicy(p *policy.Policy) InstanceOption {
	return func(inst *Instance) error {
		inst.policy = p
		if inst.memory != nil {
			inst.memory.policy = p
		}
		return nil
	}
}

// WithCPULimit arms the in-loop deadline check: each guest call gets a
// deadline of the policy's CPU budget and the interpreter fails the call
// once it is exceeded. Without this option the budget is advisory and
// callers are expected to wrap Call with their own timer and
// Policy.CheckCPUTime.
func WithCPULimit() InstanceOption {
	return func(inst *Instance) error {
		inst.cpuLimit = true
		return nil
	}
}

// RegisterHostFunction inserts a host closure under name, overwriting any
// prior entry. Parameter and result types are duplicated into
// instance-owned storage.
func (inst *Instance) RegisterHostFunction(name string, params, results []ValueType, fn HostFunc) error {
	if fn == nil {
		return errors.InvalidInput(errors.PhaseHost, "nil host function")
	}
	inst.funcs[name] = newHostFunction(name, params, results, fn)
	Logger().Debug("registered host function",
		zap.String("name", name),
		zap.Int("params", len(params)),
		zap.Int("results", len(results)))
	return nil
}

// RegisterWasmFunction inserts a guest bytecode function under name,
// overwriting any prior entry. The bytecode is copied, so the caller's
// buffer may be reused afterwards.
func (inst *Instance) RegisterWasmFunction(name string, params, results []ValueType, code []byte) error {
	if len(code) == 0 {
		return errors.InvalidInput(errors.PhaseHost, "empty bytecode")
	}
	inst.funcs[name] = newWasmFunction(name, params, results, code)
	Logger().Debug("registered wasm function",
		zap.String("name", name),
		zap.Int("code_bytes", len(code)))
	return nil
}

// Call looks up name and dispatches: host closures run directly, guest
// bytecode runs through the interpreter. Only arity is validated against
// the declared signature; argument type correctness is the caller's
// responsibility.
func (inst *Instance) Call(name string, args ...Value) ([]Value, error) {
	fn, ok := inst.funcs[name]
	if !ok {
		return nil, errors.FunctionNotFound(name)
	}
	if len(args) != len(fn.params) {
		return nil, errors.InvalidParameterCount(name, len(fn.params), len(args))
	}

	Logger().Debug("calling function",
		zap.String("name", name),
		zap.Bool("host", fn.host != nil),
		zap.Int("args", len(args)))

	if fn.host != nil {
		return fn.host(args)
	}

	var deadline time.Time
	if inst.cpuLimit && inst.policy != nil && inst.policy.MaxCPUTime > 0 {
		deadline = time.Now().Add(inst.policy.MaxCPUTime)
	}
	return inst.exec(fn, args, deadline)
}

// Memory returns the instance's linear memory, or nil if none is attached.
func (inst *Instance) Memory() *Memory {
	return inst.memory
}

// Policy returns the instance's capability policy, or nil.
func (inst *Instance) Policy() *policy.Policy {
	return inst.policy
}

// SetGlobal inserts or overwrites a named global value.
func (inst *Instance) SetGlobal(name string, v Value) {
	inst.globals[name] = v
}

// Global returns a named global value.
func (inst *Instance) Global(name string) (Value, bool) {
	v, ok := inst.globals[name]
	return v, ok
}

// Functions returns the names of all registered functions.
func (inst *Instance) Functions() []string {
	names := make([]string, 0, len(inst.funcs))
	for name := range inst.funcs {
		names = append(names, name)
	}
	return names
}

// Signature returns the declared parameter and result types of a registered
// function.
func (inst *Instance) Signature(name string) (params, results []ValueType, err error) {
	fn, ok := inst.funcs[name]
	if !ok {
		return nil, nil, errors.FunctionNotFound(name)
	}
	return cloneTypes(fn.params), cloneTypes(fn.results), nil
}

// Close releases the instance's memory and every registered function.
// Subsequent calls fail.
func (inst *Instance) Close() error {
	if inst.closed {
		return nil
	}
	inst.closed = true
	inst.memory = nil
	inst.funcs = map[string]*function{}
	inst.globals = map[string]Value{}
	return nil
}
