package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yagehu/wasit-sub000/internal/werr"
)

// Request is one IPC request to the guest executor: either a call dispatch
// or a declaration query (spec §6: "Each request is one of {call, decl}").
type Request struct {
	IsDecl bool

	Function string  // call and decl
	Params   []Value // call only

	// Results carries the all-zero skeletons of the function's declared
	// results (spec §4.2's zero-value construction): the guest needs their
	// layout metadata to reserve correctly sized and aligned result memory
	// before performing the call.
	Results []Value
}

// Response is the guest's reply: mutated parameter values, result values,
// and an optional errno (spec §6).
type Response struct {
	ParamsAfter []Value
	Results     []Value
	HasErrno    bool
	Errno       int32
}

const (
	reqFieldIsDecl   = 1
	reqFieldFunction = 2
	reqFieldParam    = 3
	reqFieldResult   = 4

	respFieldParamAfter = 1
	respFieldResult     = 2
	respFieldErrno      = 3
)

// EncodeRequest serializes a Request to its IPC payload bytes.
func EncodeRequest(req *Request) []byte {
	var b []byte
	isDecl := uint64(0)
	if req.IsDecl {
		isDecl = 1
	}
	b = protowire.AppendTag(b, reqFieldIsDecl, protowire.VarintType)
	b = protowire.AppendVarint(b, isDecl)
	b = protowire.AppendTag(b, reqFieldFunction, protowire.BytesType)
	b = protowire.AppendString(b, req.Function)
	for i := range req.Params {
		sub := EncodeValue(nil, &req.Params[i])
		b = protowire.AppendTag(b, reqFieldParam, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	for i := range req.Results {
		sub := EncodeValue(nil, &req.Results[i])
		b = protowire.AppendTag(b, reqFieldResult, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(b []byte) (*Request, error) {
	req := &Request{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, werr.New(werr.Dispatch, "wire: malformed request tag")
		}
		b = b[n:]
		switch num {
		case reqFieldIsDecl:
			x, n := protowire.ConsumeVarint(b)
			b = b[n:]
			req.IsDecl = x == 1
		case reqFieldFunction:
			s, n := protowire.ConsumeBytes(b)
			b = b[n:]
			req.Function = string(s)
		case reqFieldParam:
			sub, n := protowire.ConsumeBytes(b)
			b = b[n:]
			v, _, err := DecodeValue(sub)
			if err != nil {
				return nil, err
			}
			req.Params = append(req.Params, *v)
		case reqFieldResult:
			sub, n := protowire.ConsumeBytes(b)
			b = b[n:]
			v, _, err := DecodeValue(sub)
			if err != nil {
				return nil, err
			}
			req.Results = append(req.Results, *v)
		default:
			n := skipField(b, typ)
			if n < 0 {
				return nil, werr.New(werr.Dispatch, "wire: malformed request field %d", num)
			}
			b = b[n:]
		}
	}
	return req, nil
}

// EncodeResponse serializes a Response to its IPC payload bytes.
func EncodeResponse(resp *Response) []byte {
	var b []byte
	for i := range resp.ParamsAfter {
		sub := EncodeValue(nil, &resp.ParamsAfter[i])
		b = protowire.AppendTag(b, respFieldParamAfter, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	for i := range resp.Results {
		sub := EncodeValue(nil, &resp.Results[i])
		b = protowire.AppendTag(b, respFieldResult, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	if resp.HasErrno {
		b = protowire.AppendTag(b, respFieldErrno, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(resp.Errno)))
	}
	return b
}

// DecodeResponse is the inverse of EncodeResponse.
func DecodeResponse(b []byte) (*Response, error) {
	resp := &Response{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, werr.New(werr.Dispatch, "wire: malformed response tag")
		}
		b = b[n:]
		switch num {
		case respFieldParamAfter:
			sub, n := protowire.ConsumeBytes(b)
			b = b[n:]
			v, _, err := DecodeValue(sub)
			if err != nil {
				return nil, err
			}
			resp.ParamsAfter = append(resp.ParamsAfter, *v)
		case respFieldResult:
			sub, n := protowire.ConsumeBytes(b)
			b = b[n:]
			v, _, err := DecodeValue(sub)
			if err != nil {
				return nil, err
			}
			resp.Results = append(resp.Results, *v)
		case respFieldErrno:
			x, n := protowire.ConsumeVarint(b)
			b = b[n:]
			resp.HasErrno = true
			resp.Errno = int32(protowire.DecodeZigZag(x))
		default:
			n := skipField(b, typ)
			if n < 0 {
				return nil, werr.New(werr.Dispatch, "wire: malformed response field %d", num)
			}
			b = b[n:]
		}
	}
	return resp, nil
}
