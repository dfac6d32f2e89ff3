// Package executorhost provides in-process implementations of
// engine.Runtime (spec design note §9: "Model runtimes as values
// implementing a narrow interface (initialize_preopens, call, kill);
// inject them via constructor rather than through a pluggable global").
//
// Each backend compiles a guest executor WASM module once and drives it
// through the §6 request/response protocol over guest linear memory
// instead of OS pipes: a request is framed (4-byte little-endian length
// prefix + the wire-encoded payload), written into memory the guest
// malloc'd, and the guest's exported "wazzi_handle_request" function is
// invoked; the response is read back the same way. The guest module is
// itself linked against a real WASI Preview 1 implementation supplied by
// the backend, so dispatched calls exercise actual host filesystem state
// under the preopened directories configured at instantiation time — this
// package stands in for the combination of "runtime launcher" + "in-guest
// executor" that spec §1 calls out as an external collaborator, letting
// the fuzzer be driven end-to-end without a separately built runtime
// binary.
//
// Two backends are provided, grounded on open-policy-agent-opa's two
// interchangeable WASM host SDKs (internal/wasm/wazero_sdk and
// internal/wasm/sdk/opa), adapted from "load a policy, call opa_eval" to
// "load a guest executor, dispatch one call/decl request, read back
// mutated params": WazeroBackend (tetratelabs/wazero) and WasmtimeBackend
// (bytecodealliance/wasmtime-go/v3).
package executorhost

import "encoding/binary"

// frame prepends a 4-byte little-endian length prefix to payload, matching
// the length-prefixed framing the §6 IPC protocol uses over stdio and
// which this package's in-process transport reuses over guest memory.
func frame(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}
