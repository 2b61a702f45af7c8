package engine

// HostFunc is the shape of a host-provided function. Arguments arrive
// exactly as passed to Instance.Call; any context a host function needs is
// captured by closure.
type HostFunc func(args []Value) ([]Value, error)

// function is an immutable registry entry. Exactly one of host and code is
// set: host closures dispatch directly, guest bytecode runs through the
// interpreter. Parameter and result types and the bytecode are duplicated
// into instance-owned storage at registration time, so callers may reuse
// their buffers afterwards.
type function struct {
	name    string
	params  []ValueType
	results []ValueType
	host    HostFunc
	code    []byte
}

func newHostFunction(name string, params, results []ValueType, fn HostFunc) *function {
	return &function{
		name:    name,
		params:  cloneTypes(params),
		results: cloneTypes(results),
		host:    fn,
	}
}

func newWasmFunction(name string, params, results []ValueType, code []byte) *function {
	owned := make([]byte, len(code))
	copy(owned, code)
	return &function{
		name:    name,
		params:  cloneTypes(params),
		results: cloneTypes(results),
		code:    owned,
	}
}

func cloneTypes(types []ValueType) []ValueType {
	if len(types) == 0 {
		return nil
	}
	out := make([]ValueType, len(types))
	copy(out, types)
	return out
}
