// Package schema builds the typed WASI interface schema described by the
// data model (spec §3): named and anonymous types with deterministic memory
// layout, resource types with attribute maps, and function declarations
// with input contracts and output effects. It consumes the AST produced by
// internal/witx and performs the single-pass name resolution described in
// component 4.1, then the layout computation described in component 4.2.
package schema

import (
	"github.com/yagehu/wasit-sub000/internal/contract/ilang"
	"github.com/yagehu/wasit-sub000/internal/contract/olang"
)

// IntWidth is one of the four supported integer bit widths.
type IntWidth int

const (
	Width8 IntWidth = 8
	Width16 IntWidth = 16
	Width32 IntWidth = 32
	Width64 IntWidth = 64
)

// Signedness distinguishes u8/u16/u32/u64 from s64 (the only signed width
// the dialect exposes, per spec §6's integer width keyword list).
type Signedness int

const (
	Unsigned Signedness = iota
	Signed
)

// Kind discriminates the structural cases of the type universe (spec §3).
type Kind int

const (
	KindInt Kind = iota
	KindHandle
	KindFlags
	KindVariant
	KindRecord
	KindList
	KindPointer
	KindString
)

// Type is any type in the universe: either an anonymous structural type or
// a reference to one via TypeRef's Name field. Every Type knows its own
// memory Size and Align (spec §3, computed per §4.2's C-ABI layout rules).
type Type struct {
	Kind Kind

	// KindInt
	IntWidth   IntWidth
	Signedness Signedness

	// KindFlags
	FlagsRepr    IntWidth
	FlagsMembers []string

	// KindVariant
	VariantCases []VariantCase

	// KindRecord
	RecordMembers []RecordMember

	// KindList / KindPointer
	Elem     *TypeRef
	Mutable  bool // KindPointer only

	// computed by Layout() and cached here
	size, align int
	sizeSet     bool
}

// VariantCase is one ordered, named case of a variant type. Payload is nil
// for a payloadless case.
type VariantCase struct {
	Name    string
	Payload *TypeRef
}

// RecordMember is one ordered, named member of a record type.
type RecordMember struct {
	Name string
	Type *TypeRef
}

// TypeRef is a reference to a type: either by symbolic name (resolved
// against the enclosing interface's type table) or an inline anonymous
// type.
type TypeRef struct {
	Name   string // non-empty iff this is a named reference
	Inline *Type  // non-nil iff this is an anonymous structural type
}

// Resolve returns the concrete Type this reference denotes, looking named
// references up in defs.
func (r *TypeRef) Resolve(defs map[string]*Type) *Type {
	if r.Inline != nil {
		return r.Inline
	}
	return defs[r.Name]
}

// Resource is a named type carrying a model-only attribute map (spec §3).
type Resource struct {
	TypeName   string
	Attributes map[string]*TypeRef // attribute name -> type reference
	// AttributeOrder preserves declaration order for deterministic
	// iteration (e.g. when building SMT attribute records, §4.5).
	AttributeOrder []string
}

// Function is one WASI function declaration (spec §3).
type Function struct {
	Name    string
	Params  []Param
	Results []Param // after unpacking an expected/error sole result, see unpackResults in load.go

	Input   ilang.Term      // optional; nil means "no precondition"
	Effects []olang.Stmt // ordered output statements, spec §4.3/4.6
}

// Param is a named, typed parameter or result.
type Param struct {
	Name string
	Type *TypeRef
}

// Interface is an ordered collection of function declarations plus the
// package's typename table. Every interface of a package shares that one
// table; the loader keeps no per-interface type scope.
type Interface struct {
	Name      string
	Functions []*Function
	Types     map[string]*Type // symbolic name -> definition, shared package-wide
	TypeOrder []string
	Resources map[string]*Resource // subset of Types that carry attributes
}

// Package is the schema loader's top-level result (spec §4.1): "one package
// containing an ordered collection of interfaces."
type Package struct {
	Name       string
	Interfaces []*Interface
}

// FindInterface returns the named interface, or nil.
func (p *Package) FindInterface(name string) *Interface {
	for _, i := range p.Interfaces {
		if i.Name == name {
			return i
		}
	}
	return nil
}

// FindFunction returns the named function within the interface, or nil.
func (i *Interface) FindFunction(name string) *Function {
	for _, f := range i.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
