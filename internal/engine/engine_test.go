package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/yagehu/wasit-sub000/internal/logging"
	"github.com/yagehu/wasit-sub000/internal/randpool"
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/solver"
	"github.com/yagehu/wasit-sub000/internal/trace"
	"github.com/yagehu/wasit-sub000/internal/vfs"
	"github.com/yagehu/wasit-sub000/internal/wire"
)

// fakeRuntime is an in-memory engine.Runtime standing in for a guest
// executor: preopens get fd numbers counted up from 3 (the first number a
// real WASI runtime hands out after stdio), and every call echoes its
// parameters back with errno 0.
type fakeRuntime struct {
	calls  []*wire.Request
	killed bool
}

func (f *fakeRuntime) InitializePreopens(_ context.Context, hostPaths []string) ([]uint32, error) {
	fds := make([]uint32, len(hostPaths))
	for i := range hostPaths {
		fds[i] = uint32(3 + i)
	}
	return fds, nil
}

func (f *fakeRuntime) Call(_ context.Context, req *wire.Request) (*wire.Response, error) {
	f.calls = append(f.calls, req)
	return &wire.Response{ParamsAfter: req.Params, HasErrno: true, Errno: 0}, nil
}

func (f *fakeRuntime) Decl(_ context.Context, req *wire.Request) (*wire.Response, error) {
	return &wire.Response{}, nil
}

func (f *fakeRuntime) Kill() error {
	f.killed = true
	return nil
}

const engineTestSchema = `
(typename $errno (enum $success $badf))
(typename $filesize u64)
(typename $dirname string)
(typename $fd (handle)
  (@attribute $offset $filesize)
  (@attribute $dir_name $dirname))

(module $wasi_snapshot_preview1
  (@interface func (export "fd_tell")
    (param $fd $fd)
    (result $r (expected $filesize $errno))))
`

func newTestEngine(t *testing.T) (*Engine, *fakeRuntime, string) {
	t.Helper()
	pkg, err := schema.Load(engineTestSchema)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defs := pkg.Interfaces[0].Types
	resources := pkg.Interfaces[0].Resources

	preopen := t.TempDir()
	if err := os.WriteFile(filepath.Join(preopen, "a"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seeding preopen: %v", err)
	}

	store, err := trace.Open(t.TempDir(), "fake")
	if err != nil {
		t.Fatalf("trace.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rt := &fakeRuntime{}
	e := &Engine{
		Log:              logging.New(),
		Pkg:              pkg,
		Defs:             defs,
		Resources:        resources,
		Descriptors:      schema.NewDescriptorCache(defs, 64),
		Env:              vfs.NewEnvironment(resources),
		Pool:             randpool.New(1, 256),
		Runtime:          rt,
		Store:            store,
		PreopenHostPaths: []string{preopen},
	}
	return e, rt, preopen
}

func TestBootstrapRegistersPreopenAsResource(t *testing.T) {
	e, _, preopen := newTestEngine(t)
	if err := e.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	ids := e.Env.ResourcesOfType("fd")
	if len(ids) != 1 {
		t.Fatalf("len(fd resources) = %d, want 1", len(ids))
	}
	r := e.Env.GetResource(ids[0])
	if r.Value.Handle != 3 {
		t.Fatalf("preopen fd = %d, want 3", r.Value.Handle)
	}

	p := e.Env.Preopen(ids[0])
	if p == nil {
		t.Fatalf("preopen not registered in the environment")
	}
	if p.DirName != filepath.Base(preopen) {
		t.Fatalf("DirName = %q, want %q", p.DirName, filepath.Base(preopen))
	}
	if p.Root.Lookup([]string{"a"}) == nil {
		t.Fatalf("preopen tree snapshot is missing file %q", "a")
	}

	// The schema declares a dir_name attribute, so bootstrap records the
	// discovered name on the resource.
	got := r.Attributes["dir_name"]
	if got == nil || got.Str != filepath.Base(preopen) {
		t.Fatalf("dir_name attribute = %+v, want %q", got, filepath.Base(preopen))
	}

	// Bootstrap records a decl action, so the store's next index advances.
	if e.Store.NextIndex() != 1 {
		t.Fatalf("NextIndex = %d after bootstrap, want 1", e.Store.NextIndex())
	}
}

func TestBuildRequestCarriesParamsAndResultSkeletons(t *testing.T) {
	e, _, _ := newTestEngine(t)
	fn := e.Pkg.Interfaces[0].FindFunction("fd_tell")

	model := &solver.Model{Params: map[string]*schema.Value{
		"fd": {Kind: schema.KindHandle, Handle: 3},
	}}
	req, err := e.buildRequest(fn, model)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.Function != "fd_tell" {
		t.Fatalf("Function = %q", req.Function)
	}
	if len(req.Params) != 1 || req.Params[0].Tag != wire.TagHandle || req.Params[0].Handle != 3 {
		t.Fatalf("Params = %+v, want one handle 3", req.Params)
	}
	// fd_tell's expected result unpacks to one $filesize; its skeleton is
	// an all-zero integer with its layout metadata attached.
	if len(req.Results) != 1 {
		t.Fatalf("Results = %+v, want one zero skeleton", req.Results)
	}
	if req.Results[0].Tag != wire.TagInt || req.Results[0].Int != 0 || req.Results[0].Size != 8 {
		t.Fatalf("result skeleton = %+v, want a zero u64", req.Results[0])
	}
}

func TestDecodeResponseMapsParamsAndResultsByName(t *testing.T) {
	e, _, _ := newTestEngine(t)
	fn := e.Pkg.Interfaces[0].FindFunction("fd_tell")

	resp := &wire.Response{
		ParamsAfter: []wire.Value{{Tag: wire.TagHandle, Handle: 3}},
		Results:     []wire.Value{{Tag: wire.TagInt, Int: 128, Width: 8}},
		HasErrno:    true,
		Errno:       0,
	}
	paramsAfter, results, err := e.decodeResponse(fn, resp)
	if err != nil {
		t.Fatalf("decodeResponse: %v", err)
	}
	if paramsAfter["fd"].Handle != 3 {
		t.Fatalf("paramsAfter = %+v", paramsAfter)
	}
	if results["r"].Int != 128 {
		t.Fatalf("results = %+v, want r=128", results)
	}
}

func TestResumeRestoresEnvironmentAndPoolCursor(t *testing.T) {
	e, _, preopen := newTestEngine(t)
	if err := e.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	e.Pool.TakeBytes(17)
	fdID := e.Env.ResourcesOfType("fd")[0]
	if err := e.Env.SetAttribute(fdID, "offset", &schema.Value{Kind: schema.KindInt, Int: 99}); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	cp := &trace.Checkpoint{
		Env: &trace.EnvironmentSnapshot{Resources: []trace.ResourceSnapshot{{
			ID:       0,
			TypeName: "fd",
			Value:    e.Env.GetResource(fdID).Value,
			Attributes: map[string]*schema.Value{
				"offset": {Kind: schema.KindInt, Int: 99},
			},
		}}},
		PoolCursor: e.Pool.Cursor(),
	}

	fresh, _, _ := newTestEngine(t)
	fresh.PreopenHostPaths = []string{preopen}
	if err := fresh.Resume(context.Background(), cp); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if fresh.Pool.Cursor() != cp.PoolCursor {
		t.Fatalf("pool cursor = %d, want %d", fresh.Pool.Cursor(), cp.PoolCursor)
	}
	ids := fresh.Env.ResourcesOfType("fd")
	if len(ids) != 1 {
		t.Fatalf("restored fd count = %d, want 1", len(ids))
	}
	r := fresh.Env.GetResource(ids[0])
	if r.Value.Handle != 3 || r.Attributes["offset"].Int != 99 {
		t.Fatalf("restored resource = %+v, want handle 3 with offset 99", r)
	}
	if fresh.Env.Preopen(ids[0]) == nil {
		t.Fatalf("preopen tree not re-registered on resume")
	}
}

func TestFinalizePersistsPoolAndKillsRuntime(t *testing.T) {
	e, rt, _ := newTestEngine(t)
	if err := e.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !rt.killed {
		t.Fatalf("Finalize did not kill the runtime")
	}
}
