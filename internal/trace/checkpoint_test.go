package trace

import (
	"testing"

	"github.com/yagehu/wasit-sub000/internal/schema"
)

func TestCheckpointRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "wazero")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	cp := &Checkpoint{
		Env: &EnvironmentSnapshot{Resources: []ResourceSnapshot{
			{
				ID:       0,
				TypeName: "fd",
				Value:    &schema.Value{Kind: schema.KindHandle, Handle: 3},
				Attributes: map[string]*schema.Value{
					"offset": {Kind: schema.KindInt, Int: 12},
				},
			},
		}},
		PoolCursor: 640,
	}
	if err := s.SaveCheckpoint(cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	got, err := LoadCheckpoint(dir, "wazero")
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got.PoolCursor != 640 {
		t.Fatalf("PoolCursor = %d, want 640", got.PoolCursor)
	}
	if len(got.Env.Resources) != 1 {
		t.Fatalf("Resources = %+v, want one", got.Env.Resources)
	}
	r := got.Env.Resources[0]
	if r.TypeName != "fd" || r.Value.Handle != 3 || r.Attributes["offset"].Int != 12 {
		t.Fatalf("resource round trip mismatch: %+v", r)
	}
}

func TestSaveCheckpointOverwrites(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "wazero")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.SaveCheckpoint(&Checkpoint{Env: &EnvironmentSnapshot{}, PoolCursor: 1}); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if err := s.SaveCheckpoint(&Checkpoint{Env: &EnvironmentSnapshot{}, PoolCursor: 2}); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	got, err := LoadCheckpoint(dir, "wazero")
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got.PoolCursor != 2 {
		t.Fatalf("PoolCursor = %d, want the latest checkpoint", got.PoolCursor)
	}
}

func TestLoadCheckpointMissingFails(t *testing.T) {
	if _, err := LoadCheckpoint(t.TempDir(), "wazero"); err == nil {
		t.Fatalf("expected an error loading a checkpoint that was never saved")
	}
}
