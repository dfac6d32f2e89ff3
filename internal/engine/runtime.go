// Package engine implements the call engine state machine (spec §4.6):
// Init, Bootstrap, Loop, Finalize. It ties together the schema, the virtual
// environment, the constraint solver, the wire codec, and a Runtime
// implementation that actually dispatches calls to a guest executor.
package engine

import (
	"context"

	"github.com/yagehu/wasit-sub000/internal/wire"
)

// Runtime is the narrow interface design note §9 calls for in place of
// global mutable per-runtime dispatch: "(initialize_preopens, call, kill)".
// internal/executorhost provides two concrete implementations
// (WazeroBackend, WasmtimeBackend); an external-process launcher speaking
// the same §6 IPC protocol over OS pipes would satisfy the same interface
// but is out of scope here.
type Runtime interface {
	// InitializePreopens tells the guest which host directories to
	// preopen, returning the guest's view of each as a raw fd number.
	InitializePreopens(ctx context.Context, hostPaths []string) ([]uint32, error)

	// Call dispatches one function call, returning the guest's response or
	// an error if the IPC round-trip itself failed (as opposed to the call
	// returning a nonzero errno, which is carried inside Response).
	Call(ctx context.Context, req *wire.Request) (*wire.Response, error)

	// Decl dispatches a declaration query. The engine does not call it:
	// Bootstrap discovers preopens through InitializePreopens.
	Decl(ctx context.Context, req *wire.Request) (*wire.Response, error)

	// Kill terminates the guest process/instance, used on deadline
	// exceeded or on cancellation (spec §5).
	Kill() error
}
