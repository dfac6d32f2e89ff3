package wire

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValueRoundTripNestedVariant(t *testing.T) {
	v := &Value{
		Tag:               TagVariant,
		Size:              16,
		Align:             8,
		VariantTagWidth:   1,
		VariantCaseIndex:  1,
		VariantPayloadOff: 8,
		VariantPayload: &Value{
			Tag:  TagRecord,
			Size: 8,
			RecordMembers: []RecordMember{
				{Name: "lo", Offset: 0, Value: Value{Tag: TagInt, Size: 4, Align: 4, Int: -5, Width: 4}},
				{Name: "hi", Offset: 4, Value: Value{Tag: TagInt, Size: 4, Align: 4, Int: 7, Width: 4}},
			},
		},
	}
	b := EncodeValue(nil, v)
	got, _, err := DecodeValue(b)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Fatalf("value round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValueRoundTripFlags(t *testing.T) {
	v := &Value{
		Tag:        TagFlags,
		Size:       4,
		Align:      4,
		FlagsWidth: 4,
		FlagsBits: []FlagsBit{
			{Name: "fd_read", Set: true},
			{Name: "fd_write", Set: false},
		},
	}
	b := EncodeValue(nil, v)
	got, _, err := DecodeValue(b)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Fatalf("flags round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestCarriesResultSkeletons(t *testing.T) {
	req := &Request{
		Function: "fd_tell",
		Params:   []Value{{Tag: TagHandle, Size: 4, Align: 4, Handle: 3}},
		Results:  []Value{{Tag: TagInt, Size: 8, Align: 8, Int: 0, Width: 8}},
	}
	b := EncodeRequest(req)
	got, err := DecodeRequest(b)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Fatalf("request round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDeclFlagSurvivesRoundTrip(t *testing.T) {
	req := &Request{IsDecl: true, Function: "fd_prestat_get"}
	got, err := DecodeRequest(EncodeRequest(req))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if !got.IsDecl {
		t.Fatalf("IsDecl flag lost in transit")
	}
}

func TestResponseNegativeErrno(t *testing.T) {
	resp := &Response{HasErrno: true, Errno: -1}
	got, err := DecodeResponse(EncodeResponse(resp))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !got.HasErrno || got.Errno != -1 {
		t.Fatalf("errno round trip = %+v, want -1", got)
	}
}

func TestLengthPrefixedMessageFraming(t *testing.T) {
	payload := []byte("the message body")
	var buf bytes.Buffer
	if err := WriteMessage(&buf, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := ReadMessage(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("framed payload = %q, want %q", got, payload)
	}
}

func TestReadMessageTruncatedPayloadFails(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, []byte("full payload")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]
	if _, err := ReadMessage(bufio.NewReader(bytes.NewReader(truncated))); err == nil {
		t.Fatalf("expected an error for a truncated payload")
	}
}
