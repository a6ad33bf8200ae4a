package core

// Module endpoint registry: a module is added once, in full, and enumerates
// the names it wants to expose; the registry never allows a later add to
// silently shadow an earlier one.

import (
	"fmt"
	"sync"
)

// Module is a single installed WASM contract's exported surface: the set of
// endpoint names it answers to, addressed by its Address in storage.
type Module struct {
	Address   Address
	Name      string
	Endpoints []string
}

const endpointExportPrefix = "endpoint "

// EndpointsFromExports filters a WASM module's export names down to the
// ones declaring MANY endpoints, stripping the "endpoint " prefix.
func EndpointsFromExports(exports []string) []string {
	var out []string
	for _, e := range exports {
		if len(e) > len(endpointExportPrefix) && e[:len(endpointExportPrefix)] == endpointExportPrefix {
			out = append(out, e[len(endpointExportPrefix):])
		}
	}
	return out
}

// ModuleLibrary maps endpoint names and module names to installed modules,
// preserving insertion order for iteration. A single mutex guards all three
// indexes.
type ModuleLibrary struct {
	mu        sync.RWMutex
	endpoints map[string]int
	names     map[string]int
	modules   []Module
}

// NewModuleLibrary constructs an empty library.
func NewModuleLibrary() *ModuleLibrary {
	return &ModuleLibrary{
		endpoints: make(map[string]int),
		names:     make(map[string]int),
	}
}

// Add registers m under name, atomically: if any of m's endpoints is
// already claimed by a different module, or name is already registered,
// the whole add is rejected and the library is left unchanged.
func (l *ModuleLibrary) Add(m Module, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.names[name]; exists {
		return fmt.Errorf("%w: module name %q already registered", ErrDuplicateEndpoint, name)
	}
	for _, ep := range m.Endpoints {
		if _, exists := l.endpoints[ep]; exists {
			return fmt.Errorf("%w: endpoint %q already registered", ErrDuplicateEndpoint, ep)
		}
	}

	idx := len(l.modules)
	m.Name = name
	l.modules = append(l.modules, m)
	l.names[name] = idx
	for _, ep := range m.Endpoints {
		l.endpoints[ep] = idx
	}
	return nil
}

// ByEndpoint resolves the module answering the given endpoint name.
func (l *ModuleLibrary) ByEndpoint(endpoint string) (Module, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.endpoints[endpoint]
	if !ok {
		return Module{}, fmt.Errorf("%w: %s", ErrEndpointNotFound, endpoint)
	}
	return l.modules[idx], nil
}

// ByName resolves a module by its registered name.
func (l *ModuleLibrary) ByName(name string) (Module, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.names[name]
	if !ok {
		return Module{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return l.modules[idx], nil
}

// All returns every registered module in insertion order.
func (l *ModuleLibrary) All() []Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Module, len(l.modules))
	copy(out, l.modules)
	return out
}
