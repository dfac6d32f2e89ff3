package main

import (
	"context"
	"fmt"

	"github.com/yagehu/wasit-sub000/internal/config"
	"github.com/yagehu/wasit-sub000/internal/engine"
	"github.com/yagehu/wasit-sub000/internal/executorhost"
	"github.com/yagehu/wasit-sub000/internal/metricsx"
)

// newBackend resolves one runtime thread's engine.Runtime (spec design
// note §9's narrow runtime interface). A runtime identifier that is itself
// one of the known in-process backend names selects that backend directly,
// so a run can drive "wazero" and "wasmtime" in parallel as two of the
// independent WASI implementations under test; any other identifier falls
// back to --backend, letting a run label several in-process instances of
// the same backend as distinct runtimes (e.g. to compare two executor
// builds).
func newBackend(ctx context.Context, runtimeName string, cfg *config.Config, wasmBytes []byte, preopens []executorhost.Preopen, m *metricsx.Metrics) (engine.Runtime, error) {
	kind := cfg.Backend
	switch runtimeName {
	case "wazero", "wasmtime":
		kind = runtimeName
	}
	switch kind {
	case "wazero":
		return executorhost.NewWazeroBackend(ctx, wasmBytes, preopens, 1, m)
	case "wasmtime":
		return executorhost.NewWasmtimeBackend(wasmBytes, preopens, 1, m)
	default:
		return nil, fmt.Errorf("unknown executor backend %q for runtime %q", kind, runtimeName)
	}
}
