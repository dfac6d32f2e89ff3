package schema

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Descriptor is the per-named-type descriptor for design note §9 ("Dynamic
// type-driven encoding"): the type's size, alignment and a zero-value
// closure, built once per named type. It holds no encode or decode
// closures; internal/wire's Encode and Decode dispatch on Type.Kind.
type Descriptor struct {
	Type  *Type
	Zero  func() *Value
	Size  int
	Align int
}

// DescriptorCache memoizes Descriptors for named types, building each on
// its first lookup. The call engine uses it for result zero values and
// layout queries; the solver does not consult it.
type DescriptorCache struct {
	defs   map[string]*Type
	layout *Layout
	cache  *lru.Cache[string, *Descriptor]
}

// NewDescriptorCache builds a cache bounded to maxEntries distinct named
// types — generous enough to hold every type in a preview1-sized schema
// (on the order of a few hundred type definitions) without unbounded
// growth across very long fuzzing runs that load many schema revisions in
// one process (e.g. a test harness looping over schema variants).
func NewDescriptorCache(defs map[string]*Type, maxEntries int) *DescriptorCache {
	c, _ := lru.New[string, *Descriptor](maxEntries)
	return &DescriptorCache{defs: defs, layout: NewLayout(defs), cache: c}
}

// Get returns the compiled Descriptor for the named type, building and
// caching it on first access.
func (dc *DescriptorCache) Get(name string) *Descriptor {
	if d, ok := dc.cache.Get(name); ok {
		return d
	}
	t := dc.defs[name]
	if t == nil {
		return nil
	}
	d := &Descriptor{
		Type:  t,
		Zero:  func() *Value { return Zero(t, dc.defs) },
		Size:  dc.layout.Size(t),
		Align: dc.layout.Align(t),
	}
	dc.cache.Add(name, d)
	return d
}

// Layout exposes the underlying Layout for callers (e.g. internal/wire)
// that need offset/tag-width queries beyond size/align.
func (dc *DescriptorCache) Layout() *Layout { return dc.layout }
