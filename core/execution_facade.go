package core

// Execution module facade: the "execution" namespace's list/create/install
// RPC surface over the module library and WASM host, module id 1100.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ExecutionModuleID is the well-known module id of the execution facade.
const ExecutionModuleID = 1100

// ExecutionNamespace is the endpoint prefix this facade answers under.
const ExecutionNamespace = "execution"

// ExecutionFacade implements the execution namespace's list/create/install
// operations, gluing together the module library, wasm host, and storage.
type ExecutionFacade struct {
	store     *MerkleStore
	library   *ModuleLibrary
	host      *WasmHost
	moduleDir string
}

// NewExecutionFacade wires a facade over an already-constructed library and
// host, persisting installed wasm bytes under moduleDir.
func NewExecutionFacade(store *MerkleStore, library *ModuleLibrary, host *WasmHost, moduleDir string) *ExecutionFacade {
	return &ExecutionFacade{store: store, library: library, host: host, moduleDir: moduleDir}
}

// ModuleSummary is the list() operation's per-module result.
type ModuleSummary struct {
	Address   Address  `cbor:"1,keyasint"`
	Name      string   `cbor:"2,keyasint"`
	Endpoints []string `cbor:"3,keyasint"`
	Version   uint64   `cbor:"4,keyasint"`
}

// List returns a summary of every module that has a ModuleInfo in storage
// and is registered with the module library. Stored addresses with no
// library entry (such as one whose Install failed on an endpoint
// collision) are left out.
func (f *ExecutionFacade) List() ([]ModuleSummary, error) {
	byAddr := make(map[Address]Module)
	for _, m := range f.library.All() {
		byAddr[m.Address] = m
	}

	addrs, err := ListModuleAddresses(f.store)
	if err != nil {
		return nil, err
	}
	out := make([]ModuleSummary, 0, len(addrs))
	for _, addr := range addrs {
		mod, ok := byAddr[addr]
		if !ok {
			continue
		}
		ref, err := LoadModuleInfo(f.store, addr)
		if err != nil || ref == nil {
			continue
		}
		info := ref.Get()
		ref.Release()
		out = append(out, ModuleSummary{Address: addr, Name: mod.Name, Endpoints: mod.Endpoints, Version: info.Version})
	}
	return out, nil
}

// Create allocates a fresh, unused address for a module about to be
// installed, derived from a random UUID rather than any caller-supplied
// material, so concurrent creates never collide.
func (f *ExecutionFacade) Create() (Address, error) {
	id := uuid.New()
	b := id[:]
	padded := make([]byte, AddressSize)
	copy(padded, b)
	addr, err := AddressFromBytes(padded)
	if err != nil {
		return Address{}, err
	}
	if ref, err := LoadModuleInfo(f.store, addr); err == nil && ref != nil {
		ref.Release()
		return Address{}, fmt.Errorf("%w: %s", ErrAddressAlreadyInstalled, addr)
	}
	return addr, nil
}

// Install persists wasmBytes to disk under addr, writes its ModuleInfo at
// version 0, derives the module's endpoints from its real compiled exports
// and registers them with the module library, then, if initPayload is
// non-empty, runs its init export with it. Installing over an address that
// already has a ModuleInfo fails before anything is written. An endpoint
// collision is detected by the library Add, which runs after the wasm
// file and ModuleInfo are written, so that failure leaves both in place —
// callers should treat a failed Install as requiring a fresh address.
func (f *ExecutionFacade) Install(addr Address, name string, wasmBytes []byte, initPayload []byte) error {
	if ref, err := LoadModuleInfo(f.store, addr); err == nil && ref != nil {
		ref.Release()
		return fmt.Errorf("%w: %s", ErrAddressAlreadyInstalled, addr)
	}

	modulePath := filepath.Join(f.moduleDir, addr.String()+".wasm")
	if err := os.MkdirAll(f.moduleDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	if err := os.WriteFile(modulePath, wasmBytes, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}

	info := ModuleInfo{Version: 0, Address: addr, ModulePath: modulePath}

	exports, err := f.host.Exports(info)
	if err != nil {
		return err
	}
	endpoints := EndpointsFromExports(exports)

	infoRef := CreateModuleInfo(f.store, info)
	if err := infoRef.Commit(); err != nil {
		return err
	}

	if err := f.library.Add(Module{Address: addr, Endpoints: endpoints}, name); err != nil {
		return err
	}

	if len(initPayload) > 0 {
		if err := f.host.Initialize(addr, info, initPayload); err != nil {
			return err
		}
	}
	return nil
}
