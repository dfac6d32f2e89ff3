package vfs

import (
	"testing"

	"github.com/yagehu/wasit-sub000/internal/schema"
)

func testResourceTypes() map[string]*schema.Resource {
	return map[string]*schema.Resource{
		"fd": {
			TypeName:       "fd",
			AttributeOrder: []string{"rights", "name"},
		},
	}
}

func TestInsertResourceFillsDeclaredAttributesWithNil(t *testing.T) {
	env := NewEnvironment(testResourceTypes())
	id := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 3}, map[string]*schema.Value{
		"name": {Kind: schema.KindString, Str: "/tmp"},
	})
	r := env.GetResource(id)
	if r == nil {
		t.Fatalf("GetResource(%d) = nil", id)
	}
	if _, ok := r.Attributes["rights"]; !ok {
		t.Fatalf("undeclared-but-unset attribute %q missing from Attributes", "rights")
	}
	if r.Attributes["rights"] != nil {
		t.Fatalf("rights = %+v, want nil (not set at insert time)", r.Attributes["rights"])
	}
	if r.Attributes["name"].Str != "/tmp" {
		t.Fatalf("name = %+v, want /tmp", r.Attributes["name"])
	}
}

func TestGetResourceOutOfRangeReturnsNil(t *testing.T) {
	env := NewEnvironment(testResourceTypes())
	if r := env.GetResource(42); r != nil {
		t.Fatalf("GetResource(42) = %+v, want nil", r)
	}
}

func TestResourcesOfTypeReturnsOnlyMatchingIDsInOrder(t *testing.T) {
	env := NewEnvironment(testResourceTypes())
	a := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 1}, nil)
	env.InsertResource("dirent", &schema.Value{Kind: schema.KindHandle, Handle: 2}, nil)
	b := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 3}, nil)

	ids := env.ResourcesOfType("fd")
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Fatalf("ResourcesOfType(fd) = %v, want [%d %d]", ids, a, b)
	}
}

func TestSetAttributeRejectsUndeclaredName(t *testing.T) {
	env := NewEnvironment(testResourceTypes())
	id := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 1}, nil)
	if err := env.SetAttribute(id, "bogus", &schema.Value{Kind: schema.KindInt, Int: 1}); err == nil {
		t.Fatalf("expected an error setting an undeclared attribute")
	}
}

func TestSetAttributeUpdatesDeclaredName(t *testing.T) {
	env := NewEnvironment(testResourceTypes())
	id := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 1}, nil)
	if err := env.SetAttribute(id, "rights", &schema.Value{Kind: schema.KindInt, Int: 7}); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	if env.GetResource(id).Attributes["rights"].Int != 7 {
		t.Fatalf("rights not updated")
	}
}

func TestResolveValueToIDFindsStructurallyEqualValue(t *testing.T) {
	env := NewEnvironment(testResourceTypes())
	id := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 5}, nil)

	got, ok := env.ResolveValueToID("fd", &schema.Value{Kind: schema.KindHandle, Handle: 5})
	if !ok || got != id {
		t.Fatalf("ResolveValueToID = (%d, %v), want (%d, true)", got, ok, id)
	}
	if _, ok := env.ResolveValueToID("fd", &schema.Value{Kind: schema.KindHandle, Handle: 999}); ok {
		t.Fatalf("ResolveValueToID matched a value that was never inserted")
	}
}

func TestFdEdgeRoundTrip(t *testing.T) {
	env := NewEnvironment(testResourceTypes())
	parent := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 3}, nil)
	child := env.InsertResource("fd", &schema.Value{Kind: schema.KindHandle, Handle: 4}, nil)
	env.AddFdEdge(parent, "sub", child)

	got, ok := env.ResolveFdPath(parent, "sub")
	if !ok || got != child {
		t.Fatalf("ResolveFdPath = (%d, %v), want (%d, true)", got, ok, child)
	}
	if _, ok := env.ResolveFdPath(parent, "missing"); ok {
		t.Fatalf("ResolveFdPath matched a never-added edge")
	}
}
