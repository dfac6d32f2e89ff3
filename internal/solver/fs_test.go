package solver

import (
	"strings"
	"testing"

	"github.com/yagehu/wasit-sub000/internal/contract/ilang"
	"github.com/yagehu/wasit-sub000/internal/randpool"
	"github.com/yagehu/wasit-sub000/internal/schema"
)

func pathTestRequest(input ilang.Term) *Request {
	strT := &schema.Type{Kind: schema.KindString}
	fdT := &schema.Type{Kind: schema.KindHandle}
	return &Request{
		Function: &schema.Function{
			Name: "path_open",
			Params: []schema.Param{
				{Name: "fd", Type: &schema.TypeRef{Name: "fd"}},
				{Name: "target", Type: &schema.TypeRef{Inline: strT}},
				{Name: "old_path", Type: &schema.TypeRef{Inline: strT}},
				{Name: "buf", Type: &schema.TypeRef{Inline: strT}},
			},
			Input: input,
		},
		ParamTypes: map[string]*schema.Type{
			"fd":       fdT,
			"target":   strT,
			"old_path": strT,
			"buf":      strT,
		},
	}
}

func TestCollectPathParamsFromContract(t *testing.T) {
	input := &ilang.NoBacktrackAbovePreopen{
		Path: &ilang.ParamRef{Name: "target"},
		Fd:   &ilang.ParamRef{Name: "fd"},
	}
	got := collectPathParams(pathTestRequest(input))
	pc, ok := got["target"]
	if !ok {
		t.Fatalf("contract-named path parameter not collected: %v", got)
	}
	if pc.FdParam != "fd" {
		t.Fatalf("FdParam = %q, want fd", pc.FdParam)
	}
}

func TestCollectPathParamsByNamingConvention(t *testing.T) {
	got := collectPathParams(pathTestRequest(nil))
	if _, ok := got["old_path"]; !ok {
		t.Fatalf("old_path not collected despite the *_path naming convention")
	}
	if _, ok := got["buf"]; ok {
		t.Fatalf("buf collected as a path parameter; it matches no convention and no contract")
	}
	if _, ok := got["target"]; ok {
		t.Fatalf("target collected without a contract constraint naming it")
	}
}

func TestRenderPathsFromDeltas(t *testing.T) {
	m := &Model{
		Params: map[string]*schema.Value{
			"path": {Kind: schema.KindString, Str: "____"},
		},
		PathStructure: map[string][]int{
			"path": {1, 1, -1},
		},
	}
	m.RenderPaths(randpool.New(1, 1024), "", nil)
	s := m.Params["path"].Str
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		t.Fatalf("rendered path %q has %d components, want 3", s, len(parts))
	}
	if parts[2] != ".." {
		t.Fatalf("descend-descend-ascend should end in %q, got %q", "..", s)
	}
	for _, p := range parts {
		if p == "" {
			t.Fatalf("rendered path %q has an empty component", s)
		}
	}
}

func TestRenderPathsPrefixesPreopenDirName(t *testing.T) {
	m := &Model{
		Params: map[string]*schema.Value{
			"path": {Kind: schema.KindString, Str: "_"},
		},
		PathStructure: map[string][]int{
			"path": {1},
		},
	}
	m.RenderPaths(randpool.New(7, 1024), "preopen0", nil)
	s := m.Params["path"].Str
	if !strings.HasPrefix(s, "preopen0/") {
		t.Fatalf("rendered path %q not prefixed with the preopen dir-name", s)
	}
}

func TestRenderPathsLeavesNonPathParamsAlone(t *testing.T) {
	m := &Model{
		Params: map[string]*schema.Value{
			"buf": {Kind: schema.KindString, Str: "abc"},
		},
		PathStructure: map[string][]int{},
	}
	m.RenderPaths(randpool.New(1, 64), "preopen0", nil)
	if m.Params["buf"].Str != "abc" {
		t.Fatalf("non-path string parameter was rewritten")
	}
}

func TestRenderPathsDeterministicForSamePool(t *testing.T) {
	build := func() string {
		m := &Model{
			Params:        map[string]*schema.Value{"path": {Kind: schema.KindString, Str: "__"}},
			PathStructure: map[string][]int{"path": {1, 1}},
		}
		m.RenderPaths(randpool.New(42, 1024), "d", nil)
		return m.Params["path"].Str
	}
	if a, b := build(), build(); a != b {
		t.Fatalf("identical pools rendered different paths: %q vs %q", a, b)
	}
}
