package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yagehu/wasit-sub000/internal/config"
	"github.com/yagehu/wasit-sub000/internal/engine"
	"github.com/yagehu/wasit-sub000/internal/executorhost"
	"github.com/yagehu/wasit-sub000/internal/logging"
	"github.com/yagehu/wasit-sub000/internal/metricsx"
	"github.com/yagehu/wasit-sub000/internal/randpool"
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/trace"
	"github.com/yagehu/wasit-sub000/internal/vfs"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a fuzzing run against one or more WASI runtime backends",
		Long: "run loads a witx-dialect schema, seeds a shared random byte " +
			"pool, and drives one call engine per configured runtime " +
			"backend in its own goroutine, each owning its own " +
			"environment, trace store, and IPC channel (spec §5).",
	}
	materialize := config.BindFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := materialize()
		if err != nil {
			return err
		}
		return runCommand(cmd.Context(), cfg)
	}
	RootCommand.AddCommand(cmd)
}

func runCommand(ctx context.Context, cfg *config.Config) error {
	log := logging.New()
	if cfg.SchemaPath == "" {
		return fmt.Errorf("--schema is required")
	}
	if len(cfg.Runtimes) == 0 {
		return fmt.Errorf("at least one --runtime is required")
	}

	src, err := os.ReadFile(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	pkg, err := schema.Load(string(src))
	if err != nil {
		return err
	}
	defs, resources := mergeSchema(pkg)

	var wasmBytes []byte
	if cfg.ExecutorPath != "" {
		wasmBytes, err = os.ReadFile(cfg.ExecutorPath)
		if err != nil {
			return fmt.Errorf("reading executor module: %w", err)
		}
	}

	traceDir := cfg.TraceDir
	if traceDir == "" {
		if cfg.Resume != "" && !cfg.Replay {
			traceDir = cfg.Resume
		} else {
			traceDir = filepath.Join(os.TempDir(), "wazzi-run-"+uuid.NewString())
		}
	}
	if err := os.MkdirAll(traceDir, 0o755); err != nil {
		return fmt.Errorf("creating trace directory: %w", err)
	}

	seedPool := randpool.New(cfg.Seed, cfg.PoolSize)
	if cfg.Resume == "" {
		meta := &trace.RunMeta{
			ID:           uuid.NewString(),
			Seed:         cfg.Seed,
			PoolSize:     cfg.PoolSize,
			SchemaDigest: trace.DigestOf(src),
			PoolDigest:   trace.DigestOf(seedPool.Bytes()),
			StartedAt:    time.Now().UTC(),
			Runtimes:     cfg.Runtimes,
		}
		if err := trace.WriteRunMeta(traceDir, meta); err != nil {
			return err
		}
		log.WithField("trace_dir", traceDir).WithField("run_id", meta.ID).Info("starting run")
	} else {
		log.WithField("trace_dir", traceDir).WithField("resume", cfg.Resume).Info("resuming run")
	}

	descriptors := schema.NewDescriptorCache(defs, 1024)

	preopens := preopenList(cfg.PreopenDirs)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, len(cfg.Runtimes))
	for i, name := range cfg.Runtimes {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			rlog := log.WithField("runtime", name)
			if err := runOneRuntime(runCtx, cfg, name, traceDir, pkg, defs, resources, descriptors, src, seedPool, wasmBytes, preopens, rlog); err != nil {
				rlog.WithError(err).Error("runtime thread terminated")
				errs[i] = err
			}
		}(i, name)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runOneRuntime is one runtime thread's full lifecycle (spec §5: "Each
// thread owns its own environment, trace store, and IPC channel; threads
// do not share mutable state"): build the backend, wire an Engine around
// it, and run to completion or cancellation.
func runOneRuntime(
	ctx context.Context,
	cfg *config.Config,
	name, traceDir string,
	pkg *schema.Package,
	defs map[string]*schema.Type,
	resources map[string]*schema.Resource,
	descriptors *schema.DescriptorCache,
	schemaSrc []byte,
	seedPool *randpool.Pool,
	wasmBytes []byte,
	preopens []executorhost.Preopen,
	log logging.Logger,
) error {
	m := metricsx.New(name)

	var pool *randpool.Pool
	var resumeFrom *trace.Checkpoint
	if cfg.Resume != "" {
		var err error
		pool, err = trace.LoadPool(cfg.Resume, name)
		if err != nil {
			return err
		}
		if meta, err := trace.ReadRunMeta(cfg.Resume); err == nil {
			if err := trace.VerifyRunInputs(meta, schemaSrc, pool.Bytes()); err != nil {
				return err
			}
		}
		if !cfg.Replay {
			// Replay starts the pool over from its first byte; resume
			// continues from the recorded checkpoint's environment and
			// cursor.
			resumeFrom, err = trace.LoadCheckpoint(cfg.Resume, name)
			if err != nil {
				return err
			}
		}
	} else {
		// Each thread gets its own cursor over the shared seeded bytes
		// (spec §5: "it is cloned or sliced per thread").
		pool = seedPool.Clone()
	}

	env := vfs.NewEnvironment(resources)
	watcher, err := vfs.NewWatcher(log)
	if err != nil {
		log.WithError(err).Warn("filesystem watcher unavailable; runtime-caused mutations won't be auto-rescanned")
		watcher = nil
	}

	store, err := trace.Open(traceDir, name)
	if err != nil {
		return err
	}

	rt, err := newBackend(ctx, name, cfg, wasmBytes, preopens, m)
	if err != nil {
		return err
	}

	hostPaths := make([]string, len(preopens))
	for i, p := range preopens {
		hostPaths[i] = p.HostPath
	}

	e := &engine.Engine{
		Log:              log,
		Metrics:          m,
		Pkg:              pkg,
		Defs:             defs,
		Resources:        resources,
		Descriptors:      descriptors,
		Env:              env,
		Watcher:          watcher,
		Pool:             pool,
		Runtime:          rt,
		Strategy:         newStrategy(cfg.Strategy, pool),
		Store:            store,
		CallBudget:       cfg.CallBudget,
		CallDeadline:     cfg.CallDeadline,
		SolveTimeBudget:  cfg.SolveTimeBudget,
		MaxModels:        cfg.MaxModels,
		PreopenHostPaths: hostPaths,
		ResumeFrom:       resumeFrom,
	}
	return e.Run(ctx)
}

// mergeSchema flattens every interface's type and resource tables into one
// map, for the (common, single-interface) case as well as a
// multi-interface package.
func mergeSchema(pkg *schema.Package) (map[string]*schema.Type, map[string]*schema.Resource) {
	defs := make(map[string]*schema.Type)
	resources := make(map[string]*schema.Resource)
	for _, ifc := range pkg.Interfaces {
		for name, t := range ifc.Types {
			defs[name] = t
		}
		for name, r := range ifc.Resources {
			resources[name] = r
		}
	}
	return defs, resources
}

// newStrategy resolves --strategy into a concrete engine.Strategy, defaulting
// to uniform selection for any unrecognized value.
func newStrategy(name string, pool *randpool.Pool) engine.Strategy {
	if name == "stateful" {
		return &engine.StatefulStrategy{Pool: pool}
	}
	return &engine.UniformStrategy{Pool: pool}
}

// preopenList assigns each configured host directory a deterministic
// guest-visible path, since the in-process backends must fix preopens at
// module instantiation time rather than discover them dynamically.
func preopenList(hostPaths []string) []executorhost.Preopen {
	preopens := make([]executorhost.Preopen, len(hostPaths))
	for i, d := range hostPaths {
		preopens[i] = executorhost.Preopen{HostPath: d, GuestPath: fmt.Sprintf("/preopen%d", i)}
	}
	return preopens
}
