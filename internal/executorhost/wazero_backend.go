package executorhost

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/yagehu/wasit-sub000/internal/engine"
	"github.com/yagehu/wasit-sub000/internal/metricsx"
	"github.com/yagehu/wasit-sub000/internal/werr"
	"github.com/yagehu/wasit-sub000/internal/wire"
)

// Preopen is one host directory to grant the guest executor at
// instantiation time, paired with the path the guest sees it under.
type Preopen struct {
	HostPath  string
	GuestPath string
}

var _ engine.Runtime = (*WazeroBackend)(nil)

// WazeroBackend drives a guest executor module in-process via
// tetratelabs/wazero, grounded on open-policy-agent-opa's
// internal/wasm/wazero_sdk VM: compile once, instantiate per pooled slot,
// with a WASI Preview 1 host module and the preopened directories wired in
// at instantiation (the point, per real WASI semantics, at which preopens
// are fixed for a module instance).
type WazeroBackend struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	preopens []Preopen
	pool     *instancePool
	metrics  *metricsx.Metrics
}

// NewWazeroBackend compiles wasmBytes once, instantiates the WASI host
// module, and prepares a pool of poolSize guest instances sharing that
// compiled module. poolSize 1 is sufficient for one sequential fuzzing run
// (spec §5: a run is single-threaded with respect to its environment and
// IPC channel); a larger value only matters to a future concurrent
// strategy.
func NewWazeroBackend(ctx context.Context, wasmBytes []byte, preopens []Preopen, poolSize int, m *metricsx.Metrics) (*WazeroBackend, error) {
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, werr.Wrap(werr.Dispatch, err, "instantiating WASI host module")
	}
	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, werr.Wrap(werr.Dispatch, err, "compiling guest executor module")
	}
	b := &WazeroBackend{runtime: rt, compiled: compiled, preopens: preopens, metrics: m}
	b.pool = newInstancePool(poolSize, b.newGuest)
	return b, nil
}

func (b *WazeroBackend) newGuest(ctx context.Context) (guestModule, error) {
	cfg := wazero.NewModuleConfig().WithStartFunctions("_start")
	if len(b.preopens) > 0 {
		fs := wazero.NewFSConfig()
		for _, p := range b.preopens {
			fs = fs.WithDirMount(p.HostPath, p.GuestPath)
		}
		cfg = cfg.WithFSConfig(fs)
	}

	mod, err := b.runtime.InstantiateModule(ctx, b.compiled, cfg)
	if err != nil {
		return nil, err
	}

	g := &wazeroGuest{
		mod:             mod,
		mem:             mod.Memory(),
		mallocFn:        mod.ExportedFunction("wazzi_malloc"),
		freeFn:          mod.ExportedFunction("wazzi_free"),
		initPreopensFn:  mod.ExportedFunction("wazzi_init_preopens"),
		handleRequestFn: mod.ExportedFunction("wazzi_handle_request"),
	}
	if g.mem == nil || g.mallocFn == nil || g.freeFn == nil || g.initPreopensFn == nil || g.handleRequestFn == nil {
		mod.Close(ctx)
		return nil, werr.New(werr.Dispatch, "guest executor module is missing a required export")
	}
	return g, nil
}

// InitializePreopens implements engine.Runtime.
func (b *WazeroBackend) InitializePreopens(ctx context.Context, hostPaths []string) ([]uint32, error) {
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

func (b *WazeroBackend) guestPathFor(hostPath string) string {
	for _, p := range b.preopens {
		if p.HostPath == hostPath {
			return p.GuestPath
		}
	}
	return hostPath
}

// Call implements engine.Runtime.
func (b *WazeroBackend) Call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	req.IsDecl = false
	return b.dispatch(ctx, req)
}

// Decl implements engine.Runtime.
func (b *WazeroBackend) Decl(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	req.IsDecl = true
	return b.dispatch(ctx, req)
}

func (b *WazeroBackend) dispatch(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	g, err := b.pool.acquire(ctx, b.metrics)
	if err != nil {
		return nil, err
	}
	defer b.pool.release(g)
	return dispatchRequest(ctx, g, req)
}

// Kill implements engine.Runtime.
func (b *WazeroBackend) Kill() error {
	ctx := context.Background()
	err := b.pool.close(ctx)
	if cerr := b.runtime.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

type wazeroGuest struct {
	mod             api.Module
	mem             api.Memory
	mallocFn        api.Function
	freeFn          api.Function
	initPreopensFn  api.Function
	handleRequestFn api.Function
}

func (g *wazeroGuest) malloc(ctx context.Context, size uint32) (uint32, error) {
	res, err := g.mallocFn.Call(ctx, uint64(size))
	if err != nil {
		return 0, err
	}
	return uint32(res[0]), nil
}

func (g *wazeroGuest) free(ctx context.Context, ptr uint32) error {
	_, err := g.freeFn.Call(ctx, uint64(ptr))
	return err
}

func (g *wazeroGuest) write(ctx context.Context, ptr uint32, data []byte) error {
	if !g.mem.Write(ptr, data) {
		return werr.New(werr.Dispatch, "writing %d bytes at guest offset %d: out of range", len(data), ptr)
	}
	return nil
}

func (g *wazeroGuest) read(ctx context.Context, ptr, n uint32) ([]byte, error) {
	data, ok := g.mem.Read(ptr, n)
	if !ok {
		return nil, werr.New(werr.Dispatch, "reading %d bytes at guest offset %d: out of range", n, ptr)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (g *wazeroGuest) initPreopens(ctx context.Context, ptr, n uint32) (uint32, error) {
	res, err := g.initPreopensFn.Call(ctx, uint64(ptr), uint64(n))
	if err != nil {
		return 0, err
	}
	return uint32(res[0]), nil
}

func (g *wazeroGuest) handleRequest(ctx context.Context, ptr, n uint32) (uint32, error) {
	res, err := g.handleRequestFn.Call(ctx, uint64(ptr), uint64(n))
	if err != nil {
		return 0, err
	}
	return uint32(res[0]), nil
}

func (g *wazeroGuest) close(ctx context.Context) error {
	return g.mod.Close(ctx)
}
