package executorhost

import (
	"context"

	"github.com/bytecodealliance/wasmtime-go/v3"

	"github.com/yagehu/wasit-sub000/internal/engine"
	"github.com/yagehu/wasit-sub000/internal/metricsx"
	"github.com/yagehu/wasit-sub000/internal/werr"
	"github.com/yagehu/wasit-sub000/internal/wire"
)

var _ engine.Runtime = (*WasmtimeBackend)(nil)

// WasmtimeBackend is the alternate in-process backend, grounded on
// open-policy-agent-opa's internal/wasm/sdk/opa VM (same "load module,
// export-function round trip" shape, rewired to this protocol) and on the
// wasmtime-go usage in tetratelabs/wazero's cross-runtime benchmark harness
// for the Engine/Store/Linker/Module wiring itself — adapted from driving
// a policy eval entrypoint to driving the guest executor's two exports.
type WasmtimeBackend struct {
	engine   *wasmtime.Engine
	module   *wasmtime.Module
	preopens []Preopen
	pool     *instancePool
	metrics  *metricsx.Metrics
}

// NewWasmtimeBackend compiles wasmBytes once against a shared
// wasmtime.Engine and prepares a pool of poolSize guest instances, each
// with its own Store (wasmtime instances cannot safely share a Store
// across concurrent pool slots).
func NewWasmtimeBackend(wasmBytes []byte, preopens []Preopen, poolSize int, m *metricsx.Metrics) (*WasmtimeBackend, error) {
	eng := wasmtime.NewEngine()
	mod, err := wasmtime.NewModule(eng, wasmBytes)
	if err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "compiling guest executor module")
	}
	b := &WasmtimeBackend{engine: eng, module: mod, preopens: preopens, metrics: m}
	b.pool = newInstancePool(poolSize, b.newGuest)
	return b, nil
}

func (b *WasmtimeBackend) newGuest(ctx context.Context) (guestModule, error) {
	store := wasmtime.NewStore(b.engine)

	wasiCfg := wasmtime.NewWasiConfig()
	for _, p := range b.preopens {
		wasiCfg.PreopenDir(p.HostPath, p.GuestPath)
	}
	store.SetWasi(wasiCfg)

	linker := wasmtime.NewLinker(b.engine)
	if err := linker.DefineWasi(); err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "defining WASI imports")
	}

	instance, err := linker.Instantiate(store, b.module)
	if err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "instantiating guest executor module")
	}

	if start := instance.GetFunc(store, "_start"); start != nil {
		if _, err := start.Call(store); err != nil {
			return nil, werr.Wrap(werr.Dispatch, err, "running guest executor's _start")
		}
	}

	mem := instance.GetExport(store, "memory").Memory()
	if mem == nil {
		return nil, werr.New(werr.Dispatch, `guest executor module does not export "memory"`)
	}

	g := &wasmtimeGuest{
		store:           store,
		mem:             mem,
		mallocFn:        instance.GetFunc(store, "wazzi_malloc"),
		freeFn:          instance.GetFunc(store, "wazzi_free"),
		initPreopensFn:  instance.GetFunc(store, "wazzi_init_preopens"),
		handleRequestFn: instance.GetFunc(store, "wazzi_handle_request"),
	}
	if g.mallocFn == nil || g.freeFn == nil || g.initPreopensFn == nil || g.handleRequestFn == nil {
		return nil, werr.New(werr.Dispatch, "guest executor module is missing a required export")
	}
	return g, nil
}

// InitializePreopens implements engine.Runtime.
func (b *WasmtimeBackend) InitializePreopens(ctx context.Context, hostPaths []string) ([]uint32, error) {
	guestPaths := make([]string, len(hostPaths))
	for i, h := range hostPaths {
		guestPaths[i] = b.guestPathFor(h)
	}
	g, err := b.pool.acquire(ctx, b.metrics)
	if err != nil {
		return nil, err
	}
	defer b.pool.release(g)
	return dispatchInitPreopens(ctx, g, guestPaths)
}

func (b *WasmtimeBackend) guestPathFor(hostPath string) string {
	for _, p := range b.preopens {
		if p.HostPath == hostPath {
			return p.GuestPath
		}
	}
	return hostPath
}

// Call implements engine.Runtime.
func (b *WasmtimeBackend) Call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	req.IsDecl = false
	return b.dispatch(ctx, req)
}

// Decl implements engine.Runtime.
func (b *WasmtimeBackend) Decl(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	req.IsDecl = true
	return b.dispatch(ctx, req)
}

func (b *WasmtimeBackend) dispatch(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	g, err := b.pool.acquire(ctx, b.metrics)
	if err != nil {
		return nil, err
	}
	defer b.pool.release(g)
	return dispatchRequest(ctx, g, req)
}

// Kill implements engine.Runtime. Wasmtime instances have no explicit
// destroy call; closing the pool drops every Store reference so the Go GC
// can finalize the underlying Rust objects (same caveat the vs/wasmtime
// integration harness this is grounded on notes: "wasmtime only closes via
// finalizer").
func (b *WasmtimeBackend) Kill() error {
	return b.pool.close(context.Background())
}

type wasmtimeGuest struct {
	store           *wasmtime.Store
	mem             *wasmtime.Memory
	mallocFn        *wasmtime.Func
	freeFn          *wasmtime.Func
	initPreopensFn  *wasmtime.Func
	handleRequestFn *wasmtime.Func
}

func (g *wasmtimeGuest) malloc(ctx context.Context, size uint32) (uint32, error) {
	res, err := g.mallocFn.Call(g.store, int32(size))
	if err != nil {
		return 0, err
	}
	return uint32(res.(int32)), nil
}

func (g *wasmtimeGuest) free(ctx context.Context, ptr uint32) error {
	_, err := g.freeFn.Call(g.store, int32(ptr))
	return err
}

func (g *wasmtimeGuest) write(ctx context.Context, ptr uint32, data []byte) error {
	mem := g.mem.UnsafeData(g.store)
	if uint64(ptr)+uint64(len(data)) > uint64(len(mem)) {
		return werr.New(werr.Dispatch, "writing %d bytes at guest offset %d: out of range", len(data), ptr)
	}
	copy(mem[ptr:], data)
	return nil
}

func (g *wasmtimeGuest) read(ctx context.Context, ptr, n uint32) ([]byte, error) {
	mem := g.mem.UnsafeData(g.store)
	if uint64(ptr)+uint64(n) > uint64(len(mem)) {
		return nil, werr.New(werr.Dispatch, "reading %d bytes at guest offset %d: out of range", n, ptr)
	}
	out := make([]byte, n)
	copy(out, mem[ptr:ptr+n])
	return out, nil
}

func (g *wasmtimeGuest) initPreopens(ctx context.Context, ptr, n uint32) (uint32, error) {
	res, err := g.initPreopensFn.Call(g.store, int32(ptr), int32(n))
	if err != nil {
		return 0, err
	}
	return uint32(res.(int32)), nil
}

func (g *wasmtimeGuest) handleRequest(ctx context.Context, ptr, n uint32) (uint32, error) {
	res, err := g.handleRequestFn.Call(g.store, int32(ptr), int32(n))
	if err != nil {
		return 0, err
	}
	return uint32(res.(int32)), nil
}

func (g *wasmtimeGuest) close(ctx context.Context) error {
	return nil
}
