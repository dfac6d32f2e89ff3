package engine

import (
	"testing"

	"github.com/yagehu/wasit-sub000/internal/randpool"
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/vfs"
)

func fdParam(name string) schema.Param {
	return schema.Param{Name: name, Type: &schema.TypeRef{Name: "fd"}}
}

func TestUniformStrategyPicksAmongCandidates(t *testing.T) {
	fns := []*schema.Function{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	s := &UniformStrategy{Pool: randpool.New(1, 64)}
	fn := s.Pick(fns, nil, nil)
	if fn == nil {
		t.Fatalf("Pick returned nil for a nonempty candidate set")
	}
}

func TestUniformStrategyPickNilOnEmptyCandidates(t *testing.T) {
	s := &UniformStrategy{Pool: randpool.New(1, 64)}
	if fn := s.Pick(nil, nil, nil); fn != nil {
		t.Fatalf("Pick(empty) = %+v, want nil", fn)
	}
}

func TestStatefulStrategyFiltersFunctionWhoseOnlyResourceJustFailed(t *testing.T) {
	resources := map[string]*schema.Resource{"fd": {TypeName: "fd"}}
	env := vfs.NewEnvironment(resources)
	id := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 3}, nil)

	readsFd := &schema.Function{Name: "fd_read", Params: []schema.Param{fdParam("fd")}}
	noParams := &schema.Function{Name: "random_get"}
	candidates := []*schema.Function{readsFd, noParams}

	s := &StatefulStrategy{Pool: randpool.New(1, 64)}
	s.Observe(readsFd, id, true, true)

	for i := 0; i < 20; i++ {
		fn := s.Pick(candidates, resources, env)
		if fn == readsFd {
			t.Fatalf("Pick returned fd_read immediately after it failed on the sole live fd")
		}
	}
}

func TestStatefulStrategyResetsAfterZeroErrno(t *testing.T) {
	resources := map[string]*schema.Resource{"fd": {TypeName: "fd"}}
	env := vfs.NewEnvironment(resources)
	id := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 3}, nil)

	readsFd := &schema.Function{Name: "fd_read", Params: []schema.Param{fdParam("fd")}}

	s := &StatefulStrategy{Pool: randpool.New(1, 64)}
	s.Observe(readsFd, id, true, false)

	if s.LastErrnoWasNonzero {
		t.Fatalf("Observe with errnoNonzero=false should clear LastErrnoWasNonzero")
	}
}

func TestCandidatesOfExcludesFunctionsWithNoLiveResource(t *testing.T) {
	resources := map[string]*schema.Resource{"fd": {TypeName: "fd"}}
	env := vfs.NewEnvironment(resources)

	needsFd := &schema.Function{Name: "fd_read", Params: []schema.Param{fdParam("fd")}}
	needsNone := &schema.Function{Name: "random_get"}

	got := CandidatesOf([]*schema.Function{needsFd, needsNone}, resources, env, nil)
	if len(got) != 1 || got[0] != needsNone {
		t.Fatalf("CandidatesOf = %v, want only the no-resource function", got)
	}

	env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 1}, nil)
	got = CandidatesOf([]*schema.Function{needsFd, needsNone}, resources, env, nil)
	if len(got) != 2 {
		t.Fatalf("CandidatesOf after inserting a live fd = %v, want both functions", got)
	}
}
