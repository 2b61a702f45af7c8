package engine

import (
	"sync"

	"go.uber.org/zap"
)

// Module is the unit of loading: a name, the loaded bytes, and the ordered
// collection of Instances created from them. Multiple instantiations of one
// module are independent.
type Module struct {
	engine *Engine
	name   string
	bytes  []byte

	mu        sync.Mutex
	instances []*Instance
}

// Name returns the module's source path, or a placeholder for host-created
// modules.
func (m *Module) Name() string { return m.name }

// Bytes returns the module's loaded bytes. Host-created modules have none.
func (m *Module) Bytes() []byte { return m.bytes }

// Instantiate builds a fresh Instance: empty function and global tables,
// and whatever the options attach (memory, policy). Instances start with no
// memory; pass WithMemory to allocate one.
func (m *Module) Instantiate(opts ...InstanceOption) (*Instance, error) {
	inst := &Instance{
		module:  m,
		funcs:   map[string]*function{},
		globals: map[string]Value{},
	}
	for _, opt := range opts {
		if err := opt(inst); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.instances = append(m.instances, inst)
	m.mu.Unlock()

	Logger().Debug("instantiated module",
		zap.String("module", m.name),
		zap.Bool("memory", inst.memory != nil),
		zap.Bool("policy", inst.policy != nil))
	return inst, nil
}

// Instances returns the instances created from this module.
func (m *Module) Instances() []*Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Instance, len(m.instances))
	copy(out, m.instances)
	return out
}

// Close closes every instance created from this module.
func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range m.instances {
		inst.Close()
	}
	m.instances = nil
	return nil
}
