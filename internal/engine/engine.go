package engine

import (
	"context"
	"sort"
	"time"

	"github.com/yagehu/wasit-sub000/internal/logging"
	"github.com/yagehu/wasit-sub000/internal/metricsx"
	"github.com/yagehu/wasit-sub000/internal/randpool"
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/solver"
	"github.com/yagehu/wasit-sub000/internal/trace"
	"github.com/yagehu/wasit-sub000/internal/vfs"
	"github.com/yagehu/wasit-sub000/internal/werr"
	"github.com/yagehu/wasit-sub000/internal/wire"
)

// Engine drives one runtime thread's Init/Bootstrap/Loop/Finalize state
// machine (spec §4.6). One Engine is created per runtime under test; it
// owns that runtime's environment, trace store, and IPC channel, and shares
// nothing mutable with any other Engine in the run (spec §5).
type Engine struct {
	Log     logging.Logger
	Metrics *metricsx.Metrics

	Pkg         *schema.Package
	Defs        map[string]*schema.Type
	Resources   map[string]*schema.Resource
	Descriptors *schema.DescriptorCache

	Env      *vfs.Environment
	Watcher  *vfs.Watcher
	Pool     *randpool.Pool
	Runtime  Runtime
	Strategy Strategy
	Store    *trace.Store

	CallBudget      int
	CallDeadline    time.Duration
	SolveTimeBudget time.Duration
	MaxModels       int

	PreopenHostPaths []string

	// ResumeFrom, when non-nil, replaces Bootstrap with Resume against this
	// checkpoint (SPEC_FULL §4.6 crash resume).
	ResumeFrom *trace.Checkpoint
}

// Run executes Bootstrap (or Resume) then Loop until the pool is exhausted,
// the call budget is reached, or ctx is canceled, then Finalize (spec §4.6).
func (e *Engine) Run(ctx context.Context) error {
	if e.ResumeFrom != nil {
		if err := e.Resume(ctx, e.ResumeFrom); err != nil {
			return err
		}
	} else if err := e.Bootstrap(ctx); err != nil {
		return err
	}
	calls := 0
	for calls < e.CallBudget && !e.Pool.Exhausted() {
		select {
		case <-ctx.Done():
			return e.Finalize()
		default:
		}
		if err := e.step(ctx); err != nil {
			if werr.KindOf(err).Fatal() {
				// Terminate cleanly with a flushed trace even on a fatal
				// dispatch or store failure (spec §7's recovery policy).
				if ferr := e.Finalize(); ferr != nil {
					e.Log.WithError(ferr).Warn("finalize after fatal error")
				}
				return err
			}
			e.Log.WithError(err).Warn("call step recovered")
		}
		calls++
	}
	return e.Finalize()
}

// Bootstrap discovers preopened directories (spec §4.6 step 2) by asking
// the Runtime to initialize the configured host paths as preopens,
// registering each returned fd as a resource, and recording the result as
// a decl action.
func (e *Engine) Bootstrap(ctx context.Context) error {
	fds, err := e.Runtime.InitializePreopens(ctx, e.PreopenHostPaths)
	if err != nil {
		return werr.Wrap(werr.Dispatch, err, "initializing preopens")
	}
	before := e.snapshot()
	preopens := make([]trace.PreopenSnapshot, 0, len(fds))
	for i, fd := range fds {
		hostPath := e.PreopenHostPaths[i]
		val := &schema.Value{Kind: schema.KindHandle, Handle: fd}
		id := e.Env.InsertResource("fd", val, nil)
		p, err := e.Env.RegisterPreopen(hostPath, id)
		if err != nil {
			return err
		}
		// Record the discovered dir-name on the resource when the schema
		// declares an attribute for it (spec §4.6: "register each as a
		// resource with known dir-name attribute").
		if rt, ok := e.Resources["fd"]; ok {
			for _, attr := range rt.AttributeOrder {
				if attr == "dir_name" {
					_ = e.Env.SetAttribute(id, attr, &schema.Value{Kind: schema.KindString, Str: p.DirName})
				}
			}
		}
		if e.Watcher != nil {
			if err := e.Watcher.Add(id, p); err != nil {
				e.Log.WithError(err).Warn("failed to watch preopen")
			}
		}
		preopens = append(preopens, trace.PreopenSnapshot{ResourceID: int(id), DirName: p.DirName})
	}
	if err := e.Store.RecordDecl(before, &trace.DeclRecord{Interface: e.Pkg.Name, Preopens: preopens}); err != nil {
		return err
	}
	return e.checkpoint()
}

// step implements one Loop iteration (spec §4.6 step 3): pick a candidate
// function, solve for arguments, dispatch, apply effects on success, record
// the call.
func (e *Engine) step(ctx context.Context) error {
	ifc := e.Pkg.Interfaces[0]
	candidates := CandidatesOf(ifc.Functions, e.Resources, e.Env, e.Defs)
	fn := e.Strategy.Pick(candidates, e.Resources, e.Env)
	if fn == nil {
		return werr.New(werr.Solve, "no candidate function available")
	}

	paramTypes := make(map[string]*schema.Type, len(fn.Params))
	for _, p := range fn.Params {
		paramTypes[p.Name] = p.Type.Resolve(e.Defs)
	}

	sctx := solver.NewContext(e.Defs, e.MaxModels, e.SolveTimeBudget)
	defer sctx.Close()

	start := time.Now()
	models, err := sctx.Solve(&solver.Request{
		Function:      fn,
		ParamTypes:    paramTypes,
		ResourceTypes: e.Resources,
		Env:           e.Env,
	})
	e.Metrics.SolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.Metrics.SolveFailuresTotal.WithLabelValues(fn.Name, werr.KindOf(err).String()).Inc()
		return err
	}
	e.Metrics.ModelsPerCall.Observe(float64(len(models)))

	model := solver.Sample(models, e.Pool)
	dirName, rootDir := e.firstPreopen()
	model.RenderPaths(e.Pool, dirName, rootDir)
	before := e.snapshot()

	dctx := ctx
	var cancel context.CancelFunc
	if e.CallDeadline > 0 {
		dctx, cancel = context.WithTimeout(ctx, e.CallDeadline)
		defer cancel()
	}

	req, err := e.buildRequest(fn, model)
	if err != nil {
		return err
	}

	dstart := time.Now()
	resp, err := e.Runtime.Call(dctx, req)
	e.Metrics.DispatchDuration.Observe(time.Since(dstart).Seconds())
	if err != nil {
		return werr.Wrap(werr.Dispatch, err, "calling %q", fn.Name)
	}

	errnoLabel := "none"
	var errnoPtr *int32
	if resp.HasErrno {
		errnoLabel = itoa32(resp.Errno)
		errnoPtr = &resp.Errno
	}
	e.Metrics.CallsTotal.WithLabelValues(fn.Name, errnoLabel).Inc()

	blamedResource, hasBlamedResource := firstResourceParamID(fn, e.Resources, e.Env, model.Params)
	e.Strategy.Observe(fn, blamedResource, hasBlamedResource, resp.HasErrno && resp.Errno != 0)

	paramsAfter, results, err := e.decodeResponse(fn, resp)
	if err != nil {
		return err
	}

	if !resp.HasErrno || resp.Errno == 0 {
		for _, rp := range fn.Results {
			rv := results[rp.Name]
			if rv == nil || rv.Kind != schema.KindHandle {
				continue
			}
			typeName := rp.Type.Name
			if _, ok := e.Resources[typeName]; ok {
				e.Env.InsertResource(typeName, rv, nil)
			}
		}
		if err := ApplyEffects(e.Env, e.Resources, e.Defs, fn.Effects, model.Params, paramsAfter, results); err != nil {
			return err
		}
	}

	if e.Watcher != nil {
		for _, id := range e.Watcher.Drain() {
			if err := e.Env.Rescan(id); err != nil {
				e.Log.WithError(err).Warn("rescan failed")
			}
		}
	}

	if err := e.Store.RecordCall(before, &trace.CallRecord{
		Function:  fn.Name,
		ParamsIn:  model.Params,
		ParamsOut: paramsAfter,
		Results:   results,
		Errno:     errnoPtr,
	}); err != nil {
		return err
	}
	return e.checkpoint()
}

// Finalize flushes the trace and tears down resources (spec §4.6 step 4).
func (e *Engine) Finalize() error {
	if e.Watcher != nil {
		_ = e.Watcher.Close()
	}
	if err := e.Runtime.Kill(); err != nil {
		e.Log.WithError(err).Warn("kill returned an error")
	}
	if err := e.Store.PersistPool(e.Pool); err != nil {
		return err
	}
	return e.Store.Close()
}

func (e *Engine) buildRequest(fn *schema.Function, model *solver.Model) (*wire.Request, error) {
	layout := e.layout()
	req := &wire.Request{Function: fn.Name}
	for _, p := range fn.Params {
		v := model.Params[p.Name]
		t := p.Type.Resolve(e.Defs)
		wv, err := wire.Encode(v, t, e.Defs, layout)
		if err != nil {
			return nil, werr.Wrap(werr.Internal, err, "encoding parameter %q", p.Name)
		}
		req.Params = append(req.Params, *wv)
	}
	for _, r := range fn.Results {
		zero, t := e.zeroResult(r)
		wv, err := wire.Encode(zero, t, e.Defs, layout)
		if err != nil {
			return nil, werr.Wrap(werr.Internal, err, "encoding result skeleton %q", r.Name)
		}
		req.Results = append(req.Results, *wv)
	}
	return req, nil
}

// zeroResult builds the all-zero skeleton for one declared result (spec
// §4.2), going through the compiled descriptor table for named types so
// repeated calls against the same schema don't re-walk the type shape.
func (e *Engine) zeroResult(r schema.Param) (*schema.Value, *schema.Type) {
	if e.Descriptors != nil && r.Type.Name != "" {
		if d := e.Descriptors.Get(r.Type.Name); d != nil {
			return d.Zero(), d.Type
		}
	}
	t := r.Type.Resolve(e.Defs)
	return schema.Zero(t, e.Defs), t
}

func (e *Engine) layout() *schema.Layout {
	if e.Descriptors != nil {
		return e.Descriptors.Layout()
	}
	return schema.NewLayout(e.Defs)
}

// firstPreopen returns the dir-name and tree root of the first registered
// preopen, the prefix RenderPaths applies to relative path arguments (spec
// §4.5: "prefixed with the preopen directory's dir-name discovered during
// bootstrap").
func (e *Engine) firstPreopen() (string, *vfs.File) {
	ps := e.Env.Preopens()
	if len(ps) == 0 {
		return "", nil
	}
	return ps[0].DirName, ps[0].Root
}

func (e *Engine) decodeResponse(fn *schema.Function, resp *wire.Response) (map[string]*schema.Value, map[string]*schema.Value, error) {
	paramsAfter := make(map[string]*schema.Value, len(fn.Params))
	for i, p := range fn.Params {
		if i >= len(resp.ParamsAfter) {
			break
		}
		t := p.Type.Resolve(e.Defs)
		v, err := wire.Decode(&resp.ParamsAfter[i], t, e.Defs)
		if err != nil {
			return nil, nil, werr.Wrap(werr.Internal, err, "decoding returned parameter %q", p.Name)
		}
		paramsAfter[p.Name] = v
	}
	results := make(map[string]*schema.Value, len(fn.Results))
	for i, r := range fn.Results {
		if i >= len(resp.Results) {
			break
		}
		t := r.Type.Resolve(e.Defs)
		v, err := wire.Decode(&resp.Results[i], t, e.Defs)
		if err != nil {
			return nil, nil, werr.Wrap(werr.Internal, err, "decoding result %q", r.Name)
		}
		results[r.Name] = v
	}
	return paramsAfter, results, nil
}

// firstResourceParamID returns the environment id bound to fn's first
// resource-typed parameter, for StatefulStrategy.Observe to blame on a
// nonzero errno.
func firstResourceParamID(fn *schema.Function, resources map[string]*schema.Resource, env *vfs.Environment, params map[string]*schema.Value) (vfs.ResourceID, bool) {
	for _, p := range fn.Params {
		name := p.Type.Name
		if name == "" {
			continue
		}
		if _, ok := resources[name]; !ok {
			continue
		}
		v := params[p.Name]
		if v == nil {
			continue
		}
		id, ok := env.ResolveValueToID(name, v)
		if !ok {
			continue
		}
		return id, true
	}
	return 0, false
}

func (e *Engine) snapshot() *trace.EnvironmentSnapshot {
	snap := &trace.EnvironmentSnapshot{}
	for typeName := range e.Resources {
		for _, id := range e.Env.ResourcesOfType(typeName) {
			r := e.Env.GetResource(id)
			snap.Resources = append(snap.Resources, trace.ResourceSnapshot{
				ID:         int(r.ID),
				TypeName:   r.TypeName,
				Value:      r.Value,
				Attributes: r.Attributes,
			})
		}
	}
	// Resource-id order makes the serialized snapshot deterministic and is
	// what Resume relies on to re-insert instances under their original ids.
	sort.Slice(snap.Resources, func(i, j int) bool {
		return snap.Resources[i].ID < snap.Resources[j].ID
	})
	return snap
}

// checkpoint persists the current environment and pool cursor so an
// interrupted run can be resumed (SPEC_FULL §4.6). A checkpoint failure is
// a trace-store failure and fatal like any other.
func (e *Engine) checkpoint() error {
	return e.Store.SaveCheckpoint(&trace.Checkpoint{
		Env:        e.snapshot(),
		PoolCursor: e.Pool.Cursor(),
	})
}

// Resume restores a prior run's model state (SPEC_FULL §4.6): recorded
// resources are re-inserted in id order, the fresh guest's preopens are
// re-initialized and their trees re-captured under the resource ids they
// held in the interrupted run, and the pool cursor seeks to the first
// unconsumed byte.
func (e *Engine) Resume(ctx context.Context, cp *trace.Checkpoint) error {
	for _, rs := range cp.Env.Resources {
		e.Env.InsertResource(rs.TypeName, rs.Value, rs.Attributes)
	}
	fds, err := e.Runtime.InitializePreopens(ctx, e.PreopenHostPaths)
	if err != nil {
		return werr.Wrap(werr.Dispatch, err, "re-initializing preopens on resume")
	}
	ids := e.Env.ResourcesOfType("fd")
	for i := range fds {
		if i >= len(ids) || i >= len(e.PreopenHostPaths) {
			break
		}
		p, err := e.Env.RegisterPreopen(e.PreopenHostPaths[i], ids[i])
		if err != nil {
			return err
		}
		if e.Watcher != nil {
			if err := e.Watcher.Add(ids[i], p); err != nil {
				e.Log.WithError(err).Warn("failed to watch preopen")
			}
		}
	}
	e.Pool.Seek(cp.PoolCursor)
	return nil
}

func itoa32(v int32) string {
	neg := v < 0
	if neg {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
