package solver

import (
	"strings"
	"testing"

	"github.com/yagehu/wasit-sub000/internal/randpool"
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/vfs"
)

func TestSamplePicksOneOfTheModels(t *testing.T) {
	models := []*Model{
		{Params: map[string]*schema.Value{"n": {Kind: schema.KindInt, Int: 1}}},
		{Params: map[string]*schema.Value{"n": {Kind: schema.KindInt, Int: 2}}},
	}
	pool := randpool.New(1, 64)
	out := Sample(models, pool)
	if out.Params["n"].Int != 1 && out.Params["n"].Int != 2 {
		t.Fatalf("sampled value %d is neither model's value", out.Params["n"].Int)
	}
}

func TestSampleFillsStringPlaceholderToRequestedLength(t *testing.T) {
	models := []*Model{
		{Params: map[string]*schema.Value{"s": {Kind: schema.KindString, Str: "xxxxx"}}},
	}
	pool := randpool.New(1, 64)
	out := Sample(models, pool)
	if len(out.Params["s"].Str) != 5 {
		t.Fatalf("filled string length = %d, want 5 (placeholder length preserved)", len(out.Params["s"].Str))
	}
}

func TestSampleFillsStringsInsideNestedRecord(t *testing.T) {
	models := []*Model{{
		Params: map[string]*schema.Value{
			"rec": {
				Kind: schema.KindRecord,
				RecordFields: map[string]*schema.Value{
					"name": {Kind: schema.KindString, Str: "abc"},
				},
			},
		},
	}}
	pool := randpool.New(1, 64)
	out := Sample(models, pool)
	if len(out.Params["rec"].RecordFields["name"].Str) != 3 {
		t.Fatalf("nested string not filled to placeholder length")
	}
}

func TestSamplePathStringAvoidsEscapingStartDir(t *testing.T) {
	root := &vfs.File{Kind: vfs.Directory, Children: map[string]*vfs.File{}}
	pool := randpool.New(2, 4096)
	for i := 0; i < 50; i++ {
		s := SamplePathString(pool, root)
		if s == "" {
			t.Fatalf("SamplePathString returned an empty string")
		}
		// Rebuild the segments from the rendered string (pool components
		// never contain '/') and check the no-backtrack property directly.
		p := &vfs.Path{}
		for j, name := range strings.Split(s, "/") {
			if j > 0 {
				p.Segments = append(p.Segments, vfs.Segment{Kind: vfs.Separator})
			}
			p.Segments = append(p.Segments, vfs.Segment{Kind: vfs.Component, Name: name})
		}
		if vfs.BacktracksAbovePreopen(p, root) {
			t.Fatalf("SamplePathString returned %q, which escapes the start directory", s)
		}
	}
}

func TestSampleOnePathAlwaysHasAtLeastOneComponent(t *testing.T) {
	pool := randpool.New(3, 256)
	for i := 0; i < 20; i++ {
		p := sampleOnePath(pool)
		if len(p.Components()) == 0 {
			t.Fatalf("sampled path has no components")
		}
	}
}
