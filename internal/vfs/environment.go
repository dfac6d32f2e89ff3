// Package vfs implements the virtual environment (spec §4.4): the mutable
// model state shared by the solver and the call engine — resource
// instances, per-type indices, the reverse value->id index, preopened
// filesystem snapshots, and the fd parent/relative-path graph.
package vfs

import (
	"sort"
	"sync"

	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/werr"
)

// ResourceID identifies one resource instance, monotonically assigned
// (spec §3: "a monotonically assigned index").
type ResourceID int

// Resource is one resource instance: an identity paired with a concrete
// wire value and an attribute map (spec §3).
type Resource struct {
	ID         ResourceID
	TypeName   string
	Value      *schema.Value
	Attributes map[string]*schema.Value
}

// fdEdge is one edge of the directed graph of parent-fd + relative-path
// relationships that implements directory-fd traversal for the
// distinguished "fd" resource type (spec §3).
type fdEdge struct {
	parent ResourceID
	name   string
	child  ResourceID
}

// Environment owns every piece of mutable model state for one run against
// one runtime (spec §4.4). It is single-writer: only the call engine
// mutates it, between solve and dispatch and after dispatch (spec §4.4
// "Concurrency policy").
type Environment struct {
	mu sync.Mutex

	resources      []*Resource
	byType         map[string][]ResourceID
	reverseIndex   map[string]map[string]ResourceID // type name -> value key -> id
	fdEdges        []fdEdge
	preopens       map[ResourceID]*Preopen
	resourceTypes  map[string]*schema.Resource
}

// NewEnvironment constructs an empty Environment bound to the schema's
// declared resource types (used to validate SetAttribute calls against the
// declared attribute keys, spec §3's resource-instance invariant).
func NewEnvironment(resourceTypes map[string]*schema.Resource) *Environment {
	return &Environment{
		byType:        make(map[string][]ResourceID),
		reverseIndex:  make(map[string]map[string]ResourceID),
		preopens:      make(map[ResourceID]*Preopen),
		resourceTypes: resourceTypes,
	}
}

// InsertResource appends a new resource instance, updating the type index
// and the reverse value->id index (spec §4.4 insert_resource). attrs must
// have exactly the keys declared by the resource type's attribute map
// (spec §3's resource-instance invariant); InsertResource fills in any
// missing declared key with nil rather than rejecting the call, since
// callers build up attrs incrementally as output effects run.
func (e *Environment) InsertResource(typeName string, value *schema.Value, attrs map[string]*schema.Value) ResourceID {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := ResourceID(len(e.resources))
	full := make(map[string]*schema.Value, len(attrs))
	if rt, ok := e.resourceTypes[typeName]; ok {
		// The instance's attribute map has exactly the declared keys;
		// anything else the caller passed is dropped rather than smuggled in
		// past the type's declaration.
		for _, name := range rt.AttributeOrder {
			full[name] = attrs[name]
		}
	} else {
		for k, v := range attrs {
			full[k] = v
		}
	}
	r := &Resource{ID: id, TypeName: typeName, Value: value, Attributes: full}
	e.resources = append(e.resources, r)
	e.byType[typeName] = append(e.byType[typeName], id)

	key := valueKey(value)
	if e.reverseIndex[typeName] == nil {
		e.reverseIndex[typeName] = make(map[string]ResourceID)
	}
	e.reverseIndex[typeName][key] = id
	return id
}

// GetResource is total over valid ids (spec §4.4 get_resource): returns nil
// if id is out of range.
func (e *Environment) GetResource(id ResourceID) *Resource {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(id) < 0 || int(id) >= len(e.resources) {
		return nil
	}
	return e.resources[id]
}

// ResourcesOfType returns the ordered set of live resource ids of the given
// type, used by the solver to enumerate candidate bindings (spec §4.4
// resources_of_type).
func (e *Environment) ResourcesOfType(typeName string) []ResourceID {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ResourceID, len(e.byType[typeName]))
	copy(out, e.byType[typeName])
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetAttribute updates a resource's named attribute in place, failing if
// (id, name) is not a declared attribute (spec §4.4 set_attribute).
func (e *Environment) SetAttribute(id ResourceID, name string, value *schema.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(id) < 0 || int(id) >= len(e.resources) {
		return werr.New(werr.Internal, "set_attribute: unknown resource id %d", id)
	}
	r := e.resources[id]
	rt, ok := e.resourceTypes[r.TypeName]
	if !ok {
		return werr.New(werr.Contract, "set_attribute: type %q declares no attributes", r.TypeName)
	}
	declared := false
	for _, a := range rt.AttributeOrder {
		if a == name {
			declared = true
			break
		}
	}
	if !declared {
		return werr.New(werr.Contract, "set_attribute: %q not declared on type %q", name, r.TypeName)
	}
	r.Attributes[name] = value
	return nil
}

// ResolveValueToID decodes a solver model's value back to the resource id
// it denotes (spec §4.4 resolve_value_to_id, §4.5 model extraction).
func (e *Environment) ResolveValueToID(typeName string, value *schema.Value) (ResourceID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byValue, ok := e.reverseIndex[typeName]
	if !ok {
		return 0, false
	}
	id, ok := byValue[valueKey(value)]
	return id, ok
}

// valueKey derives a stable map key from a schema.Value, used by the
// reverse index. It is deliberately structural (not pointer identity) so
// two distinct Value instances carrying the same wire bits map to the same
// resource.
func valueKey(v *schema.Value) string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case schema.KindHandle:
		return "handle:" + itoa(int64(v.Handle))
	case schema.KindInt:
		return "int:" + itoa(v.Int)
	case schema.KindRecord:
		keys := make([]string, 0, len(v.RecordFields))
		for k := range v.RecordFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := "record:{"
		for _, k := range keys {
			s += k + "=" + valueKey(v.RecordFields[k]) + ","
		}
		return s + "}"
	default:
		return "str:" + v.Str
	}
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// AddFdEdge records a parent-fd + relative-path relationship, used by the
// distinguished fd resource type's directory-traversal graph (spec §3).
func (e *Environment) AddFdEdge(parent ResourceID, name string, child ResourceID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fdEdges = append(e.fdEdges, fdEdge{parent: parent, name: name, child: child})
}

// ResolveFdPath walks the fd edge graph one hop: given a parent fd and a
// relative path component, returns the child fd if this exact traversal
// has already occurred.
func (e *Environment) ResolveFdPath(parent ResourceID, name string) (ResourceID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, edge := range e.fdEdges {
		if edge.parent == parent && edge.name == name {
			return edge.child, true
		}
	}
	return 0, false
}

// ParentOf returns the fd this fd was derived from, scanning the edge list
// back to front so the most recently recorded edge wins if a child fd was
// ever re-derived under a different parent.
func (e *Environment) ParentOf(id ResourceID) (ResourceID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.fdEdges) - 1; i >= 0; i-- {
		if e.fdEdges[i].child == id {
			return e.fdEdges[i].parent, true
		}
	}
	return 0, false
}

// Depth returns how many fd-derivation hops id is below a registered
// preopen root: 0 for a preopen root itself, 1 for a direct child, and so
// on. It returns 0 for an id that is neither a preopen nor reachable from
// one, since a solver or renderer that picked such an fd has nothing to
// walk up through; the depth-delta path encoding (internal/solver/fs.go)
// treats that as "no ancestry to escape above."
func (e *Environment) Depth(id ResourceID) int {
	depth := 0
	cur := id
	for i := 0; i < 64; i++ {
		if e.Preopen(cur) != nil {
			return depth
		}
		parent, ok := e.ParentOf(cur)
		if !ok {
			return 0
		}
		cur = parent
		depth++
	}
	return depth
}
