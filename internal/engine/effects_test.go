package engine

import (
	"testing"

	"github.com/yagehu/wasit-sub000/internal/contract/olang"
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/vfs"
)

func effectsTestEnv(t *testing.T) (*vfs.Environment, map[string]*schema.Resource, vfs.ResourceID) {
	t.Helper()
	resources := map[string]*schema.Resource{
		"fd": {
			TypeName:       "fd",
			AttributeOrder: []string{"offset", "state"},
		},
	}
	env := vfs.NewEnvironment(resources)
	id := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 4}, map[string]*schema.Value{
		"offset": {Kind: schema.KindInt, Int: 10},
	})
	return env, resources, id
}

// TestZeroEffectsLeaveEnvironmentUnchanged checks the spec §8.4 property:
// a function declaring zero output effects leaves the environment unchanged
// regardless of results.
func TestZeroEffectsLeaveEnvironmentUnchanged(t *testing.T) {
	env, resources, id := effectsTestEnv(t)
	results := map[string]*schema.Value{
		"nread": {Kind: schema.KindInt, Int: 999},
	}
	if err := ApplyEffects(env, resources, nil, nil, nil, nil, results); err != nil {
		t.Fatalf("ApplyEffects: %v", err)
	}
	if got := env.GetResource(id).Attributes["offset"].Int; got != 10 {
		t.Fatalf("offset = %d after zero effects, want 10 unchanged", got)
	}
	if env.GetResource(id).Attributes["state"] != nil {
		t.Fatalf("state mutated by a no-op effect list")
	}
}

func TestAttrSetLiteralMutatesNamedResource(t *testing.T) {
	env, resources, id := effectsTestEnv(t)
	effects := []olang.Stmt{
		&olang.AttrSet{Resource: "fd", Attr: "offset", Value: &olang.IntConst{Value: 0}},
	}
	params := map[string]*schema.Value{
		"fd": {Kind: schema.KindHandle, Handle: 4},
	}
	if err := ApplyEffects(env, resources, nil, effects, params, nil, nil); err != nil {
		t.Fatalf("ApplyEffects: %v", err)
	}
	if got := env.GetResource(id).Attributes["offset"].Int; got != 0 {
		t.Fatalf("offset = %d, want 0", got)
	}
}

func TestAttrSetVariantConst(t *testing.T) {
	env, resources, id := effectsTestEnv(t)
	effects := []olang.Stmt{
		&olang.AttrSet{Resource: "fd", Attr: "state", Value: &olang.VariantConst{TypeName: "fdstate", CaseName: "open"}},
	}
	params := map[string]*schema.Value{
		"fd": {Kind: schema.KindHandle, Handle: 4},
	}
	if err := ApplyEffects(env, resources, nil, effects, params, nil, nil); err != nil {
		t.Fatalf("ApplyEffects: %v", err)
	}
	got := env.GetResource(id).Attributes["state"]
	if got == nil || got.VariantCase != "open" {
		t.Fatalf("state = %+v, want variant case open", got)
	}
}

func TestAttrSetCopiesResultValue(t *testing.T) {
	env, resources, id := effectsTestEnv(t)
	effects := []olang.Stmt{
		&olang.AttrSet{Resource: "fd", Attr: "offset", Value: &olang.ResultRef{Name: "nwritten"}},
	}
	params := map[string]*schema.Value{
		"fd": {Kind: schema.KindHandle, Handle: 4},
	}
	results := map[string]*schema.Value{
		"nwritten": {Kind: schema.KindInt, Int: 2},
	}
	if err := ApplyEffects(env, resources, nil, effects, params, nil, results); err != nil {
		t.Fatalf("ApplyEffects: %v", err)
	}
	if got := env.GetResource(id).Attributes["offset"].Int; got != 2 {
		t.Fatalf("offset = %d, want the copied result value 2", got)
	}
}

func TestAttrSetOnUnknownResourceBindingFails(t *testing.T) {
	env, resources, _ := effectsTestEnv(t)
	effects := []olang.Stmt{
		&olang.AttrSet{Resource: "fd", Attr: "offset", Value: &olang.IntConst{Value: 1}},
	}
	// The parameter's handle value does not correspond to any inserted
	// resource, so the binding cannot be resolved.
	params := map[string]*schema.Value{
		"fd": {Kind: schema.KindHandle, Handle: 77},
	}
	if err := ApplyEffects(env, resources, nil, effects, params, nil, nil); err == nil {
		t.Fatalf("expected an error for an unresolvable resource binding")
	}
}

func TestParamsAfterTakePrecedenceOverParamsBefore(t *testing.T) {
	env, resources, _ := effectsTestEnv(t)
	second := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 9}, nil)
	effects := []olang.Stmt{
		&olang.AttrSet{Resource: "fd", Attr: "offset", Value: &olang.IntConst{Value: 5}},
	}
	before := map[string]*schema.Value{"fd": {Kind: schema.KindHandle, Handle: 4}}
	after := map[string]*schema.Value{"fd": {Kind: schema.KindHandle, Handle: 9}}
	if err := ApplyEffects(env, resources, nil, effects, before, after, nil); err != nil {
		t.Fatalf("ApplyEffects: %v", err)
	}
	if got := env.GetResource(second).Attributes["offset"].Int; got != 5 {
		t.Fatalf("mutated the pre-call binding; params_after must win")
	}
}
