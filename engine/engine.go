package engine

import (
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/enclavevm/enclave/errors"
)

// Engine owns an ordered collection of Modules. It is the top-level entry
// point for loading module bytes from storage or from an in-memory buffer,
// and holds no process-wide mutable state: engines are plain owned objects
// passed explicitly.
type Engine struct {
	mu      sync.Mutex
	modules []*Module
}

// New creates an empty Engine.
func New() *Engine {
	return &Engine{}
}

// LoadModule reads module bytes from path.
func (e *Engine) LoadModule(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "read module file")
	}
	Logger().Debug("loaded module from file",
		zap.String("path", path),
		zap.Int("bytes", len(data)))
	return e.add(path, data), nil
}

// LoadModuleFromBytes loads a module from an in-memory buffer. The bytes
// are copied into engine-owned storage.
func (e *Engine) LoadModuleFromBytes(data []byte) (*Module, error) {
	if len(data) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty module bytes")
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	return e.add("<bytes>", owned), nil
}

// CreateModule creates an empty, host-populated module: instances of it
// carry only the functions the host registers.
func (e *Engine) CreateModule() *Module {
	return e.add("<host>", nil)
}

func (e *Engine) add(name string, data []byte) *Module {
	mod := &Module{engine: e, name: name, bytes: data}
	e.mu.Lock()
	e.modules = append(e.modules, mod)
	e.mu.Unlock()
	return mod
}

// Modules returns the modules loaded so far.
func (e *Engine) Modules() []*Module {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Module, len(e.modules))
	copy(out, e.modules)
	return out
}

// Close closes every module and instance owned by the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, mod := range e.modules {
		mod.Close()
	}
	e.modules = nil
	return nil
}
