package schema

import (
	"fmt"
	"strings"

	"github.com/yagehu/wasit-sub000/internal/contract/ilang"
	"github.com/yagehu/wasit-sub000/internal/contract/olang"
	"github.com/yagehu/wasit-sub000/internal/werr"
	"github.com/yagehu/wasit-sub000/internal/witx"
)

// Load parses and resolves a witx-dialect source document into a Package
// (spec §4.1). Name resolution is single-pass: every top-level (typename
// ...) form is collected into one global type table before any (module
// ...) form's functions are built, so forward references within and across
// typename declarations are supported the way a single-pass resolver that
// sees all typenames first naturally allows; duplicate definitions — of a
// type, of an attribute on the same type, or of a function name within an
// interface — fail loudly as schema errors (spec §4.1, and the Open
// Question resolution in DESIGN.md rejecting duplicate @attribute
// annotations rather than last-writer-wins).
func Load(src string) (*Package, error) {
	doc, err := witx.Parse(src)
	if err != nil {
		return nil, werr.Wrap(werr.Schema, err, "parsing witx document")
	}

	types := make(map[string]*Type)
	typeOrder := make([]string, 0)
	resources := make(map[string]*Resource)
	var moduleForms []*witx.Node

	for _, form := range doc.Forms {
		if form.IsAtom() || len(form.List) == 0 {
			return nil, werr.New(werr.Schema, "%d:%d: unexpected top-level atom", form.Pos.Line, form.Pos.Col)
		}
		head := form.List[0]
		switch head.Atom {
		case "typename":
			if err := loadTypename(form, types, &typeOrder, resources); err != nil {
				return nil, err
			}
		case "module":
			moduleForms = append(moduleForms, form)
		default:
			return nil, werr.New(werr.Schema, "%d:%d: unknown top-level form %q", head.Pos.Line, head.Pos.Col, head.Atom)
		}
	}

	pkg := &Package{Name: "preview1"}
	for _, form := range moduleForms {
		iface, err := loadModule(form, types, typeOrder, resources)
		if err != nil {
			return nil, err
		}
		pkg.Interfaces = append(pkg.Interfaces, iface)
	}
	return pkg, nil
}

func loadTypename(form *witx.Node, types map[string]*Type, order *[]string, resources map[string]*Resource) error {
	args := form.List[1:]
	if len(args) < 2 {
		return werr.New(werr.Schema, "%d:%d: typename requires a name and a type", form.Pos.Line, form.Pos.Col)
	}
	name := strings.TrimPrefix(args[0].Atom, "$")
	if _, exists := types[name]; exists {
		return werr.New(werr.Schema, "%d:%d: duplicate type definition %q", form.Pos.Line, form.Pos.Col, name)
	}
	t, err := parseType(args[1], types)
	if err != nil {
		return err
	}
	types[name] = t
	*order = append(*order, name)

	// Remaining args, if any, are (@attribute $name $type) annotations
	// declaring this a resource type (spec §3, §6).
	if len(args) > 2 {
		res := &Resource{TypeName: name, Attributes: map[string]*TypeRef{}}
		for _, ann := range args[2:] {
			if ann.IsAtom() || len(ann.List) != 3 || ann.List[0].Atom != "@attribute" {
				return werr.New(werr.Schema, "%d:%d: expected (@attribute $name $type) annotation", ann.Pos.Line, ann.Pos.Col)
			}
			attrName := strings.TrimPrefix(ann.List[1].Atom, "$")
			if _, dup := res.Attributes[attrName]; dup {
				return werr.New(werr.Schema, "%d:%d: duplicate @attribute %q on type %q", ann.Pos.Line, ann.Pos.Col, attrName, name)
			}
			attrType, err := parseTypeRef(ann.List[2], types)
			if err != nil {
				return err
			}
			res.Attributes[attrName] = attrType
			res.AttributeOrder = append(res.AttributeOrder, attrName)
		}
		resources[name] = res
	}
	return nil
}

// parseTypeRef parses a type reference: a primitive keyword, a bare $name
// (named reference), or an inline (type ...) form.
func parseTypeRef(n *witx.Node, types map[string]*Type) (*TypeRef, error) {
	if n.IsAtom() {
		switch n.Atom {
		case "u8", "u16", "u32", "u64", "s64", "handle", "string":
			t, err := parseType(n, types)
			if err != nil {
				return nil, err
			}
			return &TypeRef{Inline: t}, nil
		}
		name := strings.TrimPrefix(n.Atom, "$")
		return &TypeRef{Name: name}, nil
	}
	t, err := parseType(n, types)
	if err != nil {
		return nil, err
	}
	return &TypeRef{Inline: t}, nil
}

func parseType(n *witx.Node, types map[string]*Type) (*Type, error) {
	if n.IsAtom() {
		switch n.Atom {
		case "u8":
			return &Type{Kind: KindInt, IntWidth: Width8, Signedness: Unsigned}, nil
		case "u16":
			return &Type{Kind: KindInt, IntWidth: Width16, Signedness: Unsigned}, nil
		case "u32":
			return &Type{Kind: KindInt, IntWidth: Width32, Signedness: Unsigned}, nil
		case "u64":
			return &Type{Kind: KindInt, IntWidth: Width64, Signedness: Unsigned}, nil
		case "s64":
			return &Type{Kind: KindInt, IntWidth: Width64, Signedness: Signed}, nil
		case "handle":
			return &Type{Kind: KindHandle}, nil
		case "string":
			return &Type{Kind: KindString}, nil
		default:
			// Bare reference to a previously-defined named type used in
			// type position (e.g. nested record member naming another
			// typename directly rather than via $name — not standard
			// witx, but parseTypeRef is the normal entry point for that
			// case; treat this as an error here).
			return nil, werr.New(werr.Schema, "%d:%d: unknown type atom %q", n.Pos.Line, n.Pos.Col, n.Atom)
		}
	}
	if len(n.List) == 0 {
		return nil, werr.New(werr.Schema, "%d:%d: empty type form", n.Pos.Line, n.Pos.Col)
	}
	head := n.List[0]
	args := n.List[1:]
	switch head.Atom {
	case "handle":
		// Both the bare-atom and parenthesized spellings appear in the wild.
		return &Type{Kind: KindHandle}, nil
	case "string":
		return &Type{Kind: KindString}, nil
	case "record":
		return parseRecord(args, types)
	case "flags":
		return parseFlags(args)
	case "variant", "union", "enum":
		return parseVariant(head.Atom, args, types)
	case "list":
		return parseListOrPointer(KindList, args, types)
	case "pointer":
		t, err := parseListOrPointer(KindPointer, args, types)
		if err != nil {
			return nil, err
		}
		t.Mutable = true
		return t, nil
	case "const-pointer":
		return parseListOrPointer(KindPointer, args, types)
	case "expected":
		return parseExpected(args, types)
	default:
		return nil, werr.New(werr.Schema, "%d:%d: unknown type form %q", head.Pos.Line, head.Pos.Col, head.Atom)
	}
}

func parseRecord(args []*witx.Node, types map[string]*Type) (*Type, error) {
	t := &Type{Kind: KindRecord}
	seen := map[string]bool{}
	for _, field := range args {
		if field.IsAtom() || len(field.List) != 3 || field.List[0].Atom != "field" {
			return nil, werr.New(werr.Schema, "%d:%d: expected (field $name <type>)", field.Pos.Line, field.Pos.Col)
		}
		name := strings.TrimPrefix(field.List[1].Atom, "$")
		if seen[name] {
			return nil, werr.New(werr.Schema, "%d:%d: duplicate record member %q", field.Pos.Line, field.Pos.Col, name)
		}
		seen[name] = true
		tref, err := parseTypeRef(field.List[2], types)
		if err != nil {
			return nil, err
		}
		t.RecordMembers = append(t.RecordMembers, RecordMember{Name: name, Type: tref})
	}
	return t, nil
}

func parseFlags(args []*witx.Node) (*Type, error) {
	t := &Type{Kind: KindFlags, FlagsRepr: Width32}
	for _, a := range args {
		if !a.IsAtom() && len(a.List) == 2 && a.List[0].Atom == "repr" {
			switch a.List[1].Atom {
			case "u8":
				t.FlagsRepr = Width8
			case "u16":
				t.FlagsRepr = Width16
			case "u32":
				t.FlagsRepr = Width32
			case "u64":
				t.FlagsRepr = Width64
			default:
				return nil, werr.New(werr.Schema, "%d:%d: unknown flags repr %q", a.Pos.Line, a.Pos.Col, a.List[1].Atom)
			}
			continue
		}
		if !a.IsAtom() {
			return nil, werr.New(werr.Schema, "%d:%d: expected a flag member symbol", a.Pos.Line, a.Pos.Col)
		}
		t.FlagsMembers = append(t.FlagsMembers, strings.TrimPrefix(a.Atom, "$"))
	}
	return t, nil
}

func parseVariant(keyword string, args []*witx.Node, types map[string]*Type) (*Type, error) {
	t := &Type{Kind: KindVariant}
	for _, c := range args {
		switch {
		case c.IsAtom():
			// (enum $a $b $c) shorthand: bare payloadless case names.
			t.VariantCases = append(t.VariantCases, VariantCase{Name: strings.TrimPrefix(c.Atom, "$")})
		case len(c.List) >= 1 && c.List[0].Atom == "case":
			name := strings.TrimPrefix(c.List[1].Atom, "$")
			vc := VariantCase{Name: name}
			if len(c.List) == 3 {
				tref, err := parseTypeRef(c.List[2], types)
				if err != nil {
					return nil, err
				}
				vc.Payload = tref
			}
			t.VariantCases = append(t.VariantCases, vc)
		default:
			return nil, werr.New(werr.Schema, "%d:%d: expected (case $name <type>?) in %s", c.Pos.Line, c.Pos.Col, keyword)
		}
	}
	return t, nil
}

func parseListOrPointer(kind Kind, args []*witx.Node, types map[string]*Type) (*Type, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("list/pointer type requires exactly one element type")
	}
	elem, err := parseTypeRef(args[0], types)
	if err != nil {
		return nil, err
	}
	return &Type{Kind: kind, Elem: elem}, nil
}

// parseExpected desugars (expected <ok> <err>) into a two-case variant,
// matching spec §3's "unpacked" result handling: the sole declared result
// being an expected/error variant has its "expected" payload exposed as the
// function's results (handled in loadFunction's unpackResults).
func parseExpected(args []*witx.Node, types map[string]*Type) (*Type, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("expected type requires exactly ok and err type arguments")
	}
	ok, err := parseTypeRef(args[0], types)
	if err != nil {
		return nil, err
	}
	errT, err := parseTypeRef(args[1], types)
	if err != nil {
		return nil, err
	}
	return &Type{
		Kind: KindVariant,
		VariantCases: []VariantCase{
			{Name: "ok", Payload: ok},
			{Name: "error", Payload: errT},
		},
	}, nil
}

func loadModule(form *witx.Node, types map[string]*Type, typeOrder []string, resources map[string]*Resource) (*Interface, error) {
	args := form.List[1:]
	if len(args) == 0 {
		return nil, werr.New(werr.Schema, "%d:%d: module requires a name", form.Pos.Line, form.Pos.Col)
	}
	name := strings.TrimPrefix(args[0].Atom, "$")
	iface := &Interface{Name: name, Types: types, TypeOrder: typeOrder, Resources: resources}
	seenFuncs := map[string]bool{}
	for _, decl := range args[1:] {
		if decl.IsAtom() || len(decl.List) == 0 || decl.List[0].Atom != "@interface" {
			return nil, werr.New(werr.Schema, "%d:%d: expected @interface func declaration", decl.Pos.Line, decl.Pos.Col)
		}
		fn, err := loadFunction(decl.List[1:], types)
		if err != nil {
			return nil, err
		}
		if seenFuncs[fn.Name] {
			return nil, werr.New(werr.Schema, "%d:%d: duplicate function %q in interface %q", decl.Pos.Line, decl.Pos.Col, fn.Name, name)
		}
		seenFuncs[fn.Name] = true
		iface.Functions = append(iface.Functions, fn)
	}
	return iface, nil
}

func loadFunction(args []*witx.Node, types map[string]*Type) (*Function, error) {
	if len(args) == 0 || args[0].Atom != "func" {
		return nil, fmt.Errorf("expected 'func' after @interface")
	}
	rest := args[1:]
	fn := &Function{}
	var declaredResults []Param
	for _, form := range rest {
		if form.IsAtom() || len(form.List) == 0 {
			return nil, werr.New(werr.Schema, "%d:%d: unexpected atom in function declaration", form.Pos.Line, form.Pos.Col)
		}
		switch form.List[0].Atom {
		case "export":
			fn.Name = strings.Trim(form.List[1].Atom, "\"")
		case "param":
			name := strings.TrimPrefix(form.List[1].Atom, "$")
			tref, err := parseTypeRef(form.List[2], types)
			if err != nil {
				return nil, err
			}
			fn.Params = append(fn.Params, Param{Name: name, Type: tref})
		case "result":
			name := strings.TrimPrefix(form.List[1].Atom, "$")
			tref, err := parseTypeRef(form.List[2], types)
			if err != nil {
				return nil, err
			}
			declaredResults = append(declaredResults, Param{Name: name, Type: tref})
		case "@input":
			term, err := ilang.Parse(form.List[1])
			if err != nil {
				return nil, werr.Wrap(werr.Contract, err, "parsing @input for function %q", fn.Name)
			}
			fn.Input = term
		case "@effects":
			stmts, err := olang.Parse(form.List[1:])
			if err != nil {
				return nil, werr.Wrap(werr.Contract, err, "parsing @effects for function %q", fn.Name)
			}
			fn.Effects = stmts
		default:
			return nil, werr.New(werr.Schema, "%d:%d: unknown function clause %q", form.Pos.Line, form.Pos.Col, form.List[0].Atom)
		}
	}
	if fn.Name == "" {
		return nil, fmt.Errorf("function declaration missing (export \"name\")")
	}
	fn.Results = unpackResults(declaredResults, types)
	return fn, nil
}

// unpackResults implements spec §3's "Functions" unpacking rule: if the
// sole declared result is an expected/error variant, the "expected"
// payload is exposed as the function's results (a tuple flattens to
// multiple results); in this schema, `expected` is desugared to a
// two-case variant at parse time (parseExpected), so "is the sole result an
// expected/error variant" is recognized by case-name shape rather than a
// distinct Kind.
func unpackResults(declared []Param, types map[string]*Type) []Param {
	if len(declared) != 1 {
		return declared
	}
	sole := declared[0]
	t := sole.Type.Resolve(types)
	if t == nil || t.Kind != KindVariant || len(t.VariantCases) != 2 {
		return declared
	}
	if t.VariantCases[0].Name != "ok" || t.VariantCases[1].Name != "error" {
		return declared
	}
	ok := t.VariantCases[0].Payload
	if ok == nil {
		return nil
	}
	okType := ok.Resolve(types)
	if okType != nil && okType.Kind == KindRecord {
		results := make([]Param, 0, len(okType.RecordMembers))
		for _, m := range okType.RecordMembers {
			results = append(results, Param{Name: m.Name, Type: m.Type})
		}
		return results
	}
	return []Param{{Name: sole.Name, Type: ok}}
}
