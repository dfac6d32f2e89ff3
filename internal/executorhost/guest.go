package executorhost

import (
	"context"
	"encoding/binary"

	"github.com/yagehu/wasit-sub000/internal/werr"
	"github.com/yagehu/wasit-sub000/internal/wire"
)

// guestModule is the narrow surface both backends' guest instances expose
// to the shared dispatch logic below: enough to move bytes into and out of
// guest linear memory and invoke the two exports the protocol needs.
// Keeping this interface tiny is what lets dispatchRequest/dispatchPreopens
// be written once instead of twice (design note §9's "compiled per-type
// descriptor" idea applied one level up, to the transport instead of the
// type system).
type guestModule interface {
	malloc(ctx context.Context, size uint32) (uint32, error)
	free(ctx context.Context, ptr uint32) error
	write(ctx context.Context, ptr uint32, data []byte) error
	read(ctx context.Context, ptr, n uint32) ([]byte, error)
	initPreopens(ctx context.Context, ptr, n uint32) (uint32, error)
	handleRequest(ctx context.Context, ptr, n uint32) (uint32, error)
	close(ctx context.Context) error
}

// dispatchRequest sends one call/decl request to the guest and decodes its
// response, implementing the host side of spec §6's protocol over guest
// memory rather than a pipe.
func dispatchRequest(ctx context.Context, g guestModule, req *wire.Request) (*wire.Response, error) {
	framed := frame(wire.EncodeRequest(req))

	reqPtr, err := g.malloc(ctx, uint32(len(framed)))
	if err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "allocating guest request buffer")
	}
	defer g.free(ctx, reqPtr)

	if err := g.write(ctx, reqPtr, framed); err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "writing request into guest memory")
	}

	respPtr, err := g.handleRequest(ctx, reqPtr, uint32(len(framed)))
	if err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "invoking guest executor")
	}
	defer g.free(ctx, respPtr)

	respLenBytes, err := g.read(ctx, respPtr, 4)
	if err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "reading response length prefix")
	}
	respLen := binary.LittleEndian.Uint32(respLenBytes)

	body, err := g.read(ctx, respPtr+4, respLen)
	if err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "reading response body")
	}

	resp, err := wire.DecodeResponse(body)
	if err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "decoding guest response")
	}
	return resp, nil
}

// dispatchInitPreopens asks the guest for the fd numbers its already
// WASI-preopened directories were assigned, by name, implementing the host
// side of spec §4.6 Bootstrap's "fd_prestat_get / fd_prestat_dir_name (or
// equivalent)" discovery step. The request payload is a count followed by
// length-prefixed guest-path strings; the response is a count followed by
// that many little-endian u32 fd numbers, in the same order.
func dispatchInitPreopens(ctx context.Context, g guestModule, guestPaths []string) ([]uint32, error) {
	var payload []byte
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(guestPaths)))
	for _, p := range guestPaths {
		payload = binary.LittleEndian.AppendUint32(payload, uint32(len(p)))
		payload = append(payload, p...)
	}
	framed := frame(payload)

	reqPtr, err := g.malloc(ctx, uint32(len(framed)))
	if err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "allocating guest preopen request buffer")
	}
	defer g.free(ctx, reqPtr)

	if err := g.write(ctx, reqPtr, framed); err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "writing preopen request into guest memory")
	}

	respPtr, err := g.initPreopens(ctx, reqPtr, uint32(len(framed)))
	if err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "querying guest preopens")
	}
	defer g.free(ctx, respPtr)

	countBytes, err := g.read(ctx, respPtr, 4)
	if err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "reading preopen count")
	}
	count := binary.LittleEndian.Uint32(countBytes)

	body, err := g.read(ctx, respPtr+4, count*4)
	if err != nil {
		return nil, werr.Wrap(werr.Dispatch, err, "reading preopen fd list")
	}
	fds := make([]uint32, count)
	for i := range fds {
		fds[i] = binary.LittleEndian.Uint32(body[i*4:])
	}
	return fds, nil
}
