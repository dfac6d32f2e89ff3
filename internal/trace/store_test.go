package trace

import (
	"testing"

	"github.com/yagehu/wasit-sub000/internal/randpool"
	"github.com/yagehu/wasit-sub000/internal/schema"
)

func TestRecordCallThenReadActionRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "wazero")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	before := &EnvironmentSnapshot{Resources: []ResourceSnapshot{
		{ID: 1, TypeName: "fd", Value: &schema.Value{Kind: schema.KindHandle, Handle: 3}},
	}}
	call := &CallRecord{
		Function: "fd_close",
		ParamsIn: map[string]*schema.Value{"fd": {Kind: schema.KindHandle, Handle: 3}},
		Results:  map[string]*schema.Value{},
	}
	if err := s.RecordCall(before, call); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}

	a, err := ReadAction(dir, "wazero", 0)
	if err != nil {
		t.Fatalf("ReadAction: %v", err)
	}
	if a.Call == nil || a.Call.Function != "fd_close" {
		t.Fatalf("got %+v, want a call record for fd_close", a.Call)
	}
	if len(a.Before.Resources) != 1 || a.Before.Resources[0].TypeName != "fd" {
		t.Fatalf("before snapshot not round-tripped: %+v", a.Before)
	}
}

func TestNextIndexAdvancesAfterEachRecordedAction(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "wasmtime")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.NextIndex() != 0 {
		t.Fatalf("NextIndex() = %d, want 0 on a fresh store", s.NextIndex())
	}
	if err := s.RecordCall(&EnvironmentSnapshot{}, &CallRecord{Function: "a"}); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}
	if s.NextIndex() != 1 {
		t.Fatalf("NextIndex() = %d, want 1 after one recorded action", s.NextIndex())
	}
}

func TestResumeReopensAtNextIncompleteIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "wazero")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.RecordCall(&EnvironmentSnapshot{}, &CallRecord{Function: "a"}); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}
	if err := s.RecordCall(&EnvironmentSnapshot{}, &CallRecord{Function: "b"}); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	resumed, err := Open(dir, "wazero")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer resumed.Close()
	if resumed.NextIndex() != 2 {
		t.Fatalf("resumed NextIndex() = %d, want 2", resumed.NextIndex())
	}
}

func TestPersistPoolThenLoadPoolRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "wazero")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	pool := randpool.New(99, 128)
	if err := s.PersistPool(pool); err != nil {
		t.Fatalf("PersistPool: %v", err)
	}

	loaded, err := LoadPool(dir, "wazero")
	if err != nil {
		t.Fatalf("LoadPool: %v", err)
	}
	if string(loaded.Bytes()) != string(pool.Bytes()) {
		t.Fatalf("loaded pool bytes differ from persisted pool bytes")
	}
}
