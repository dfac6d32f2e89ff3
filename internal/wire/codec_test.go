package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yagehu/wasit-sub000/internal/schema"
)

func TestRoundTripPrimitives(t *testing.T) {
	defs := map[string]*schema.Type{}
	layout := schema.NewLayout(defs)

	cases := []struct {
		name string
		typ  *schema.Type
		val  *schema.Value
	}{
		{"int", &schema.Type{Kind: schema.KindInt, IntWidth: schema.Width32}, &schema.Value{Kind: schema.KindInt, Int: 42}},
		{"handle", &schema.Type{Kind: schema.KindHandle}, &schema.Value{Kind: schema.KindHandle, Handle: 7}},
		{"string", &schema.Type{Kind: schema.KindString}, &schema.Value{Kind: schema.KindString, Str: "hello"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wv, err := Encode(tc.val, tc.typ, defs, layout)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := Decode(wv, tc.typ, defs)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !got.Equal(tc.val) {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, tc.val)
			}
		})
	}
}

func TestRoundTripRecord(t *testing.T) {
	defs := map[string]*schema.Type{
		"u32": {Kind: schema.KindInt, IntWidth: schema.Width32},
	}
	rt := &schema.Type{
		Kind: schema.KindRecord,
		RecordMembers: []schema.RecordMember{
			{Name: "offset", Type: &schema.TypeRef{Name: "u32"}},
			{Name: "length", Type: &schema.TypeRef{Name: "u32"}},
		},
	}
	layout := schema.NewLayout(defs)
	val := &schema.Value{
		Kind: schema.KindRecord,
		RecordFields: map[string]*schema.Value{
			"offset": {Kind: schema.KindInt, Int: 10},
			"length": {Kind: schema.KindInt, Int: 20},
		},
	}

	wv, err := Encode(val, rt, defs, layout)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(wv, rt, defs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(val.RecordFields["offset"].Int, got.RecordFields["offset"].Int); diff != "" {
		t.Errorf("offset mismatch (-want +got):\n%s", diff)
	}
	if !got.Equal(val) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, val)
	}
}

func TestIPCEnvelopeRoundTrip(t *testing.T) {
	req := &Request{
		Function: "fd_write",
		Params: []Value{
			{Tag: TagInt, Int: 3, Width: 4},
			{Tag: TagString, Str: []byte("payload")},
		},
	}
	b := EncodeRequest(req)
	got, err := DecodeRequest(b)
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if got.Function != req.Function || len(got.Params) != len(req.Params) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
	}

	resp := &Response{
		Results:  []Value{{Tag: TagInt, Int: 0}},
		HasErrno: true,
		Errno:    0,
	}
	rb := EncodeResponse(resp)
	gotResp, err := DecodeResponse(rb)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !gotResp.HasErrno || gotResp.Errno != 0 || len(gotResp.Results) != 1 {
		t.Fatalf("round trip mismatch: got %+v", gotResp)
	}
}
