package core

// WASM execution host. A store is created per call, host functions are
// exposed under the "env" import module, and guest memory is read/written
// through byte-slice helpers. This host executes full WASM modules compiled
// ahead of time against the Address type defined in address.go.
//
// WASI preview-1 wiring, the debug HTTP surface (gorilla/mux), the call
// rate limiter (golang.org/x/time/rate), and the call counters
// (prometheus/client_golang) round out the host's operational surface.

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	logrus "github.com/sirupsen/logrus"
	"github.com/wasmerio/wasmer-go/wasmer"
	"golang.org/x/time/rate"
)

// CallKind distinguishes the two lifecycle entry points a guest module may
// be invoked with.
type CallKind int

const (
	CallInitialize CallKind = iota
	CallManyRequest
)

// CallContext carries one host/guest round trip's request and captures its
// response or trap. A fresh CallContext is built for every call; nothing
// about it survives across calls.
type CallContext struct {
	Kind     CallKind
	Request  []byte
	Response []byte
	Trap     error
}

// WasmContext is the per-instance host context wired into the guest's
// imports: it owns the instance's memory export, the module's storage
// scope, and the in-flight CallContext.
type WasmContext struct {
	mem        *wasmer.Memory
	wasiEnv    *wasmer.WasiEnvironment
	storage    *MerkleStore
	moduleAddr Address
	call       *CallContext
	logger     *logrus.Logger
}

func (c *WasmContext) read(ptr, length int32) ([]byte, error) {
	data := c.mem.Data()
	if ptr < 0 || length < 0 || int(ptr)+int(length) > len(data) {
		return nil, fmt.Errorf("%w: guest memory access out of bounds", ErrGuestTrap)
	}
	out := make([]byte, length)
	copy(out, data[ptr:int(ptr)+int(length)])
	return out, nil
}

func (c *WasmContext) write(ptr int32, payload []byte) error {
	data := c.mem.Data()
	if ptr < 0 || int(ptr)+len(payload) > len(data) {
		return fmt.Errorf("%w: guest memory access out of bounds", ErrGuestTrap)
	}
	copy(data[ptr:], payload)
	return nil
}

// scopedKey prefixes key with the calling module's address, so one module
// can never read or write another's storage namespace.
func (c *WasmContext) scopedKey(key []byte) []byte {
	out := make([]byte, 0, AddressSize+len(key))
	out = append(out, c.moduleAddr.Bytes()...)
	return append(out, key...)
}

// hostMetrics are the Prometheus counters exposed by the execution host.
type hostMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHostMetrics(reg prometheus.Registerer) *hostMetrics {
	m := &hostMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execd",
			Subsystem: "wasm",
			Name:      "calls_total",
			Help:      "WASM guest calls by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "execd",
			Subsystem: "wasm",
			Name:      "call_duration_seconds",
			Help:      "WASM guest call latency by endpoint.",
		}, []string{"endpoint"}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.duration)
	}
	return m
}

// WasmHost compiles and executes installed guest modules against a
// MerkleStore, dispatching by endpoint name through a ModuleLibrary.
type WasmHost struct {
	mu        sync.Mutex
	engine    *wasmer.Engine
	store     *MerkleStore
	library   *ModuleLibrary
	moduleDir string
	logger    *logrus.Logger
	limiter   *rate.Limiter
	metrics   *hostMetrics
}

// WasmHostOption configures optional WasmHost behavior.
type WasmHostOption func(*WasmHost)

// WithRateLimit caps the call rate the host will accept, rejecting bursts
// beyond burst with a non-trap error.
func WithRateLimit(rps float64, burst int) WasmHostOption {
	return func(h *WasmHost) { h.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithMetricsRegisterer attaches the host's Prometheus counters to reg.
func WithMetricsRegisterer(reg prometheus.Registerer) WasmHostOption {
	return func(h *WasmHost) { h.metrics = newHostMetrics(reg) }
}

// NewWasmHost constructs a host over moduleDir (where install persists
// compiled wasm bytes) backed by store, dispatching through library.
func NewWasmHost(store *MerkleStore, library *ModuleLibrary, moduleDir string, lg *logrus.Logger, opts ...WasmHostOption) *WasmHost {
	if lg == nil {
		lg = logrus.New()
	}
	h := &WasmHost{
		engine:    wasmer.NewEngine(),
		store:     store,
		library:   library,
		moduleDir: moduleDir,
		logger:    lg,
		metrics:   newHostMetrics(nil),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// compile loads and compiles a module's wasm bytes fresh for every call.
// Guest instances are cheap, short-lived, and never shared across calls, so
// there is no instance cache to invalidate on upgrade.
func (h *WasmHost) compile(info ModuleInfo) (*wasmer.Store, *wasmer.Module, error) {
	bytecode, err := os.ReadFile(info.ModulePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read module bytes: %v", ErrStorageIO, err)
	}
	store := wasmer.NewStore(h.engine)
	mod, err := wasmer.NewModule(store, bytecode)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: compile module: %v", ErrGuestTrap, err)
	}
	return store, mod, nil
}

// Exports compiles info's module and returns the names of everything it
// exports, without instantiating it. Used at install time to derive a
// module's real endpoint set instead of trusting a caller-supplied list.
func (h *WasmHost) Exports(info ModuleInfo) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, mod, err := h.compile(info)
	if err != nil {
		return nil, err
	}
	exports := mod.Exports()
	names := make([]string, 0, len(exports))
	for _, e := range exports {
		names = append(names, e.Name())
	}
	return names, nil
}

// instantiate builds a guest instance with host imports (storage, request/
// response ABI, logging) plus WASI preview-1, bound to ctx.
func (h *WasmHost) instantiate(store *wasmer.Store, mod *wasmer.Module, ctx *WasmContext) (*wasmer.Instance, error) {
	wasiEnv, err := wasmer.NewWasiStateBuilder(ctx.moduleAddr.String()).
		CaptureStdout().
		CaptureStderr().
		Finalize()
	if err != nil {
		return nil, fmt.Errorf("%w: wasi state: %v", ErrGuestTrap, err)
	}
	imports, err := wasiEnv.GenerateImportObject(store, mod)
	if err != nil {
		return nil, fmt.Errorf("%w: wasi imports: %v", ErrGuestTrap, err)
	}
	imports.Register("env", hostImports(store, ctx))

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, fmt.Errorf("%w: instantiate: %v", ErrGuestTrap, err)
	}
	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, fmt.Errorf("%w: module does not export memory", ErrGuestTrap)
	}
	ctx.mem = mem
	ctx.wasiEnv = wasiEnv
	return instance, nil
}

// drainWasi forwards whatever the guest wrote to its captured WASI
// stdout/stderr into the host logger, since nothing else reads a guest's
// process streams in this execution model.
func (ctx *WasmContext) drainWasi() {
	if ctx.wasiEnv == nil {
		return
	}
	if out, err := ctx.wasiEnv.ReadStdout(); err == nil && len(out) > 0 {
		ctx.logger.WithField("module", ctx.moduleAddr).WithField("stream", "stdout").Info(string(out))
	}
	if errOut, err := ctx.wasiEnv.ReadStderr(); err == nil && len(errOut) > 0 {
		ctx.logger.WithField("module", ctx.moduleAddr).WithField("stream", "stderr").Warn(string(errOut))
	}
}

// hostImports builds the "env" import set: the request/response ABI and
// the per-module scoped storage ABI, both closing over ctx.
func hostImports(store *wasmer.Store, ctx *WasmContext) map[string]wasmer.IntoExtern {
	i32 := wasmer.ValueKind(wasmer.I32)

	requestLen := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(), wasmer.NewValueTypes(i32)),
		func([]wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI32(int32(len(ctx.call.Request)))}, nil
		},
	)

	requestRead := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := ctx.write(args[0].I32(), ctx.call.Request); err != nil {
				return nil, err
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(ctx.call.Request)))}, nil
		},
	)

	responseWrite := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			buf, err := ctx.read(args[0].I32(), args[1].I32())
			if err != nil {
				return nil, err
			}
			ctx.call.Response = buf
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	storageGet := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			key, err := ctx.read(args[0].I32(), args[1].I32())
			if err != nil {
				return nil, err
			}
			val, err := ctx.storage.get(ctx.scopedKey(key))
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if val == nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if err := ctx.write(args[2].I32(), val); err != nil {
				return nil, err
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(val)))}, nil
		},
	)

	storagePut := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			key, err := ctx.read(args[0].I32(), args[1].I32())
			if err != nil {
				return nil, err
			}
			val, err := ctx.read(args[2].I32(), args[3].I32())
			if err != nil {
				return nil, err
			}
			if err := ctx.storage.put(ctx.scopedKey(key), val); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	logFn := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			msg, err := ctx.read(args[0].I32(), args[1].I32())
			if err != nil {
				return nil, err
			}
			ctx.logger.WithField("module", ctx.moduleAddr).Info(string(msg))
			return []wasmer.Value{}, nil
		},
	)

	return map[string]wasmer.IntoExtern{
		"many_request_len":    requestLen,
		"many_request_read":   requestRead,
		"many_response_write": responseWrite,
		"many_storage_get":    storageGet,
		"many_storage_put":    storagePut,
		"many_log":            logFn,
	}
}

// Initialize runs a freshly-installed module's "init" export with the
// given initialization payload.
func (h *WasmHost) Initialize(addr Address, info ModuleInfo, payload []byte) error {
	return h.run(addr, info, "init", &CallContext{Kind: CallInitialize, Request: payload})
}

// ModuleBootEntry is one module to warm-instantiate and register with the
// module library at boot.
type ModuleBootEntry struct {
	Address    Address
	Name       string
	ModulePath string
}

// AddModuleConfig loads each configured module, derives its endpoints from
// its real compiled exports, instantiates it once against the host imports
// (the instance is discarded; compile keeps no cache, so later calls
// compile again), and registers it with the module library. Any failure
// aborts the remaining entries.
func (h *WasmHost) AddModuleConfig(entries []ModuleBootEntry) error {
	for _, e := range entries {
		info := ModuleInfo{Version: 0, Address: e.Address, ModulePath: e.ModulePath}

		exports, err := h.Exports(info)
		if err != nil {
			return fmt.Errorf("add_module_config %s: %w", e.Name, err)
		}

		if err := func() error {
			h.mu.Lock()
			defer h.mu.Unlock()
			store, mod, err := h.compile(info)
			if err != nil {
				return err
			}
			ctx := &WasmContext{storage: h.store, moduleAddr: e.Address, call: &CallContext{Kind: CallInitialize}, logger: h.logger}
			_, err = h.instantiate(store, mod, ctx)
			return err
		}(); err != nil {
			return fmt.Errorf("add_module_config %s: warm instantiate: %w", e.Name, err)
		}

		infoRef := CreateModuleInfo(h.store, info)
		if err := infoRef.Commit(); err != nil {
			return fmt.Errorf("add_module_config %s: %w", e.Name, err)
		}
		if err := h.library.Add(Module{Address: e.Address, Endpoints: EndpointsFromExports(exports)}, e.Name); err != nil {
			return fmt.Errorf("add_module_config %s: %w", e.Name, err)
		}
	}
	return nil
}

// InitBootEntry is one module whose init export must run before boot
// completes, together with its init payload.
type InitBootEntry struct {
	Address Address
	Payload []byte
}

// Init runs each configured module's init export in order. A failure is
// fatal to the boot sequence: the caller should abort startup rather than
// continue with a partially-initialized node.
func (h *WasmHost) Init(entries []InitBootEntry) error {
	for _, e := range entries {
		ref, err := LoadModuleInfo(h.store, e.Address)
		if err != nil {
			return fmt.Errorf("init %s: %w", e.Address, err)
		}
		if ref == nil {
			return fmt.Errorf("init %s: %w", e.Address, ErrModuleNotFound)
		}
		info := ref.Get()
		ref.Release()
		if err := h.Initialize(e.Address, info, e.Payload); err != nil {
			return fmt.Errorf("init %s: %w", e.Address, err)
		}
	}
	return nil
}

// CallEndpoint resolves endpoint through the library, runs the owning
// module's "endpoint "+endpoint export with request as the MANY request
// body, and returns the captured response.
func (h *WasmHost) CallEndpoint(endpoint string, request []byte) ([]byte, error) {
	if h.limiter != nil && !h.limiter.Allow() {
		return nil, fmt.Errorf("%w: call rate limit exceeded", ErrUnknown)
	}

	start := time.Now()
	mod, err := h.library.ByEndpoint(endpoint)
	if err != nil {
		h.metrics.calls.WithLabelValues(endpoint, "not_found").Inc()
		return nil, err
	}
	infoRef, err := LoadModuleInfo(h.store, mod.Address)
	if err != nil || infoRef == nil {
		h.metrics.calls.WithLabelValues(endpoint, "missing_info").Inc()
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, mod.Address)
	}
	defer infoRef.Release()

	call := &CallContext{Kind: CallManyRequest, Request: request}
	if err := h.run(mod.Address, infoRef.Get(), endpointExportPrefix+endpoint, call); err != nil {
		h.metrics.calls.WithLabelValues(endpoint, "trap").Inc()
		return nil, err
	}
	h.metrics.calls.WithLabelValues(endpoint, "ok").Inc()
	h.metrics.duration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	return call.Response, nil
}

// run compiles info's module, instantiates it bound to a fresh WasmContext,
// and invokes export with call. A single host is serialized on compile +
// execute: wasmer stores are not safe for concurrent use from multiple
// goroutines against the same engine without this.
func (h *WasmHost) run(addr Address, info ModuleInfo, export string, call *CallContext) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	store, mod, err := h.compile(info)
	if err != nil {
		return err
	}
	ctx := &WasmContext{storage: h.store, moduleAddr: addr, call: call, logger: h.logger}
	instance, err := h.instantiate(store, mod, ctx)
	if err != nil {
		return err
	}
	fn, err := instance.Exports.GetFunction(export)
	if err != nil {
		return fmt.Errorf("%w: module does not export %q", ErrGuestTrap, export)
	}
	_, callErr := fn()
	ctx.drainWasi()
	if callErr != nil {
		call.Trap = callErr
		return fmt.Errorf("%w: %v", ErrGuestTrap, callErr)
	}
	return nil
}

// DebugServer returns an HTTP server exposing read-only /status and
// /roothash endpoints for operators.
func (h *WasmHost) DebugServer(addr string) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		for _, m := range h.library.All() {
			fmt.Fprintf(w, "%s\t%s\t%v\n", m.Address, m.Name, m.Endpoints)
		}
	}).Methods(http.MethodGet)
	r.HandleFunc("/roothash", func(w http.ResponseWriter, req *http.Request) {
		root, err := h.store.RootHash()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "%x\n", root)
	}).Methods(http.MethodGet)
	return &http.Server{Addr: addr, Handler: r}
}
