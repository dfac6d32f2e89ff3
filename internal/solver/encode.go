package solver

import (
	z3 "github.com/mitchellh/go-z3"

	"github.com/yagehu/wasit-sub000/internal/contract/ilang"
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/vfs"
	"github.com/yagehu/wasit-sub000/internal/werr"
)

// EncodedValue is a type-driven decomposition of a parameter's or
// attribute's SMT encoding (spec §4.5). Rather than building one z3
// datatype sort per named type — which would require threading per-case
// constructor/accessor handles through every consuming package — a
// composite value is represented here as a Go-side tuple of the primitive
// z3 terms that make it up, tied together by field name. Equality, the
// per-resource disjunction, and the blocking clause all operate field-wise,
// which is semantically equivalent to datatype equality for the purposes
// this solver needs (it never passes a composite value to an uninterpreted
// function, only compares and extracts it).
type EncodedValue struct {
	Type *schema.Type

	Int  *mvar // KindInt, KindHandle
	Bool *mvar // individual flag bits projected as standalone values

	FlagsBits map[string]*mvar // KindFlags: member name -> bool var

	VariantTag      *mvar                    // KindVariant: index into t.VariantCases
	VariantPayloads map[string]*EncodedValue // KindVariant: case name -> payload encoding (always built; tag picks which is live)

	RecordFields map[string]*EncodedValue // KindRecord

	ListLen *mvar // KindList, KindPointer: abstract length, no element enumeration

	StrLen *mvar // KindString: abstract length; characters sampled post-hoc (design note §9)

	// PathDeltas/PathCount are set only on KindString parameters collected
	// by collectPathParams (fs.go): a fixed-length vector of {-1,0,+1}
	// depth-deltas and the count of how many are live, standing in for the
	// path's rendered components when a contract references
	// path.no-backtrack-above-preopen or when the parameter's name follows
	// the WASI path-argument naming convention.
	PathDeltas []*mvar
	PathCount  *mvar
}

// encodeType allocates a fresh EncodedValue of type t named by a unique
// prefix, recursing into composite members.
func (c *Context) encodeType(prefix string, t *schema.Type) *EncodedValue {
	switch t.Kind {
	case schema.KindInt, schema.KindHandle:
		return &EncodedValue{Type: t, Int: c.constVar(prefix, c.intSort())}
	case schema.KindFlags:
		bits := make(map[string]*mvar, len(t.FlagsMembers))
		for _, m := range t.FlagsMembers {
			bits[m] = c.constVar(prefix+"."+m, c.boolSort())
		}
		return &EncodedValue{Type: t, FlagsBits: bits}
	case schema.KindVariant:
		tag := c.constVar(prefix+".tag", c.intSort())
		payloads := make(map[string]*EncodedValue, len(t.VariantCases))
		for _, vc := range t.VariantCases {
			if vc.Payload == nil {
				continue
			}
			payloads[vc.Name] = c.encodeType(prefix+"."+vc.Name, vc.Payload.Resolve(c.defs))
		}
		return &EncodedValue{Type: t, VariantTag: tag, VariantPayloads: payloads}
	case schema.KindRecord:
		fields := make(map[string]*EncodedValue, len(t.RecordMembers))
		for _, m := range t.RecordMembers {
			fields[m.Name] = c.encodeType(prefix+"."+m.Name, m.Type.Resolve(c.defs))
		}
		return &EncodedValue{Type: t, RecordFields: fields}
	case schema.KindList, schema.KindPointer:
		return &EncodedValue{Type: t, ListLen: c.constVar(prefix+".len", c.intSort())}
	case schema.KindString:
		return &EncodedValue{Type: t, StrLen: c.constVar(prefix+".len", c.intSort())}
	default:
		return &EncodedValue{Type: t}
	}
}

// assertNonNegativeLengths constrains every list/pointer/string length
// variable reachable from v to be >= 0, since the Int sort is otherwise
// unbounded below.
func (c *Context) assertNonNegativeLengths(s *z3.Solver, v *EncodedValue) {
	zero := c.intLit(0)
	switch {
	case v.ListLen != nil:
		s.Assert(v.ListLen.ast.Ge(zero))
	case v.StrLen != nil:
		s.Assert(v.StrLen.ast.Ge(zero))
	case v.RecordFields != nil:
		for _, f := range v.RecordFields {
			c.assertNonNegativeLengths(s, f)
		}
	case v.VariantPayloads != nil:
		for _, p := range v.VariantPayloads {
			c.assertNonNegativeLengths(s, p)
		}
	}
}

// equal builds the field-wise equality assertion between two encodings.
// Structurally mismatched operands (a contract comparing a record against
// an integer) collapse to false rather than crashing, leaving the kind
// mismatch to surface as unsat, which the engine treats as "no candidate".
func (c *Context) equal(a, b *EncodedValue) *z3.AST {
	switch {
	case a.Int != nil:
		if b.Int == nil {
			return c.boolLit(false)
		}
		return a.Int.ast.Eq(b.Int.ast)
	case a.Bool != nil:
		if b.Bool == nil {
			return c.boolLit(false)
		}
		return a.Bool.ast.Eq(b.Bool.ast)
	case a.FlagsBits != nil:
		if b.FlagsBits == nil {
			return c.boolLit(false)
		}
		eq := c.boolLit(true)
		for name, bit := range a.FlagsBits {
			other, ok := b.FlagsBits[name]
			if !ok {
				return c.boolLit(false)
			}
			eq = eq.And(bit.ast.Eq(other.ast))
		}
		return eq
	case a.VariantTag != nil:
		if b.VariantTag == nil {
			return c.boolLit(false)
		}
		eq := a.VariantTag.ast.Eq(b.VariantTag.ast)
		for name, payload := range a.VariantPayloads {
			other, ok := b.VariantPayloads[name]
			if !ok {
				continue
			}
			eq = eq.And(c.equal(payload, other))
		}
		return eq
	case a.RecordFields != nil:
		if b.RecordFields == nil {
			return c.boolLit(false)
		}
		eq := c.boolLit(true)
		for name, f := range a.RecordFields {
			other, ok := b.RecordFields[name]
			if !ok {
				return c.boolLit(false)
			}
			eq = eq.And(c.equal(f, other))
		}
		return eq
	case a.ListLen != nil:
		if b.ListLen == nil {
			return c.boolLit(false)
		}
		return a.ListLen.ast.Eq(b.ListLen.ast)
	case a.StrLen != nil:
		if b.StrLen == nil {
			return c.boolLit(false)
		}
		return a.StrLen.ast.Eq(b.StrLen.ast)
	default:
		return c.boolLit(true)
	}
}

// resourceParamDisjunction asserts the per-resource-parameter disjunction of
// spec §4.5: the parameter's wire-value variable equals some live resource's
// wire value AND the parameter's attribute-record variables equal that same
// resource's current attribute values. Tying wire value and attributes
// together in one disjunct is what keeps the decoded model resolvable back
// to a single resource id through the environment's (type, wire value)
// reverse index while still exposing the attribute record to the contract
// (spec §4.5: "Resource types are encoded by the algebraic datatype of
// their attribute record"). Returns false (no assertion made; the caller
// fails the solve as "no candidate") if the environment holds no resource
// of the type.
func (c *Context) resourceParamDisjunction(s *z3.Solver, env *vfs.Environment, rt *schema.Resource, enc *EncodedValue, attrVars map[string]*EncodedValue) bool {
	ids := env.ResourcesOfType(rt.TypeName)
	if len(ids) == 0 {
		return false
	}
	disj := c.boolLit(false)
	for _, id := range ids {
		r := env.GetResource(id)
		if r == nil {
			continue
		}
		conj := c.wireEq(enc, r.Value)
		recEnc := c.encodeAttributeRecord(s, fmtPrefix(rt.TypeName, id), rt, r.Attributes)
		for name, av := range attrVars {
			if other, ok := recEnc.RecordFields[name]; ok {
				conj = conj.And(c.equal(av, other))
			}
		}
		disj = disj.Or(conj)
	}
	s.Assert(disj)
	return true
}

// wireEq asserts enc's primary variable equal to a concrete wire value.
func (c *Context) wireEq(enc *EncodedValue, val *schema.Value) *z3.AST {
	if enc.Int == nil || val == nil {
		return c.boolLit(false)
	}
	switch val.Kind {
	case schema.KindHandle:
		return enc.Int.ast.Eq(c.intLit(int64(val.Handle)))
	case schema.KindInt:
		return enc.Int.ast.Eq(c.intLit(val.Int))
	default:
		return c.boolLit(false)
	}
}

// encodeAttributeRecord builds the EncodedValue for a resource's attribute
// record and pins it to the resource's current concrete attribute values,
// so comparisons against it are comparisons against the environment's
// stored state (spec §4.5: "The encoded attribute record is built
// recursively from the environment's stored attribute values").
func (c *Context) encodeAttributeRecord(s *z3.Solver, prefix string, rt *schema.Resource, attrs map[string]*schema.Value) *EncodedValue {
	fields := make(map[string]*EncodedValue, len(rt.AttributeOrder))
	for _, name := range rt.AttributeOrder {
		ref := rt.Attributes[name]
		t := ref.Resolve(c.defs)
		enc := c.encodeType(prefix+"."+name, t)
		c.bindConst(s, enc, attrs[name])
		fields[name] = enc
	}
	return &EncodedValue{RecordFields: fields}
}

// bindConst asserts enc equal to the literal value val, used to pin an
// attribute record's encoding to its current concrete value before
// comparing it against a parameter variable.
func (c *Context) bindConst(s *z3.Solver, enc *EncodedValue, val *schema.Value) {
	if val == nil {
		return
	}
	switch {
	case enc.Int != nil:
		if val.Kind == schema.KindHandle {
			s.Assert(enc.Int.ast.Eq(c.intLit(int64(val.Handle))))
		} else {
			s.Assert(enc.Int.ast.Eq(c.intLit(val.Int)))
		}
	case enc.FlagsBits != nil:
		for name, bit := range enc.FlagsBits {
			s.Assert(bit.ast.Eq(c.boolLit(val.FlagsBits[name])))
		}
	case enc.VariantTag != nil:
		idx := variantCaseIndex(enc.Type, val.VariantCase)
		s.Assert(enc.VariantTag.ast.Eq(c.intLit(int64(idx))))
		if payload, ok := enc.VariantPayloads[val.VariantCase]; ok && val.VariantPayload != nil {
			c.bindConst(s, payload, val.VariantPayload)
		}
	case enc.RecordFields != nil:
		for name, f := range enc.RecordFields {
			c.bindConst(s, f, val.RecordFields[name])
		}
	case enc.ListLen != nil:
		s.Assert(enc.ListLen.ast.Eq(c.intLit(int64(len(val.ListItems)))))
	case enc.StrLen != nil:
		s.Assert(enc.StrLen.ast.Eq(c.intLit(int64(len(val.Str)))))
	}
}

func variantCaseIndex(t *schema.Type, caseName string) int {
	if t == nil {
		return 0
	}
	for i, vc := range t.VariantCases {
		if vc.Name == caseName {
			return i
		}
	}
	return 0
}

// EncodeTerm compiles an ilang.Term into a boolean z3.AST against a symbol
// table of already-encoded parameters/results and the live environment
// (spec §4.3/§4.5).
func (c *Context) EncodeTerm(s *z3.Solver, env *vfs.Environment, resources map[string]*schema.Resource, syms map[string]*EncodedValue, t ilang.Term) (*z3.AST, error) {
	switch n := t.(type) {
	case *ilang.BoolConst:
		return c.boolLit(n.Value), nil
	case *ilang.IntConst:
		if n.Value != 0 && n.Value != 1 {
			return nil, werr.New(werr.Contract, "ilang: integer %d in boolean position", n.Value)
		}
		return c.boolLit(n.Value == 1), nil
	case *ilang.And:
		out := c.boolLit(true)
		for _, cl := range n.Clauses {
			a, err := c.EncodeTerm(s, env, resources, syms, cl)
			if err != nil {
				return nil, err
			}
			out = out.And(a)
		}
		return out, nil
	case *ilang.Or:
		out := c.boolLit(false)
		for _, cl := range n.Clauses {
			a, err := c.EncodeTerm(s, env, resources, syms, cl)
			if err != nil {
				return nil, err
			}
			out = out.Or(a)
		}
		return out, nil
	case *ilang.Not:
		a, err := c.EncodeTerm(s, env, resources, syms, n.Operand)
		if err != nil {
			return nil, err
		}
		return a.Not(), nil
	case *ilang.IntLe, *ilang.IntGe, *ilang.IntLt, *ilang.IntGt:
		return c.encodeIntCompare(s, env, resources, syms, n)
	case *ilang.ValueEq:
		lhs, err := c.encodeValueTerm(s, env, resources, syms, n.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := c.encodeValueTerm(s, env, resources, syms, n.RHS)
		if err != nil {
			return nil, err
		}
		return c.equal(lhs, rhs), nil
	case *ilang.FlagsBit:
		fl, err := c.encodeValueTerm(s, env, resources, syms, n.Flags)
		if err != nil {
			return nil, err
		}
		bit, ok := fl.FlagsBits[n.Bit]
		if !ok {
			return nil, werr.New(werr.Contract, "ilang: flags value has no bit %q", n.Bit)
		}
		return bit.ast, nil
	case *ilang.ErrnoEq:
		v, err := c.encodeValueTerm(s, env, resources, syms, n.Result)
		if err != nil {
			return nil, err
		}
		if v.VariantTag == nil {
			return nil, werr.New(werr.Contract, "ilang: errno.eq operand is not variant-encoded")
		}
		return v.VariantTag.ast.Eq(c.intLit(int64(variantCaseIndex(v.Type, n.Errno)))), nil
	case *ilang.NoBacktrackAbovePreopen:
		return c.encodeNoBacktrack(env, syms, n)
	case *ilang.ParamRef, *ilang.ResultRef, *ilang.AttrGet, *ilang.RecordField,
		*ilang.ListLen, *ilang.StringIndex, *ilang.VariantCase, *ilang.ResourceLit,
		*ilang.IntAdd, *ilang.IntSub:
		return nil, werr.New(werr.Contract, "ilang: term %T does not produce a boolean value on its own; wrap it in value.eq or an integer comparison", t)
	case *ilang.Lambda, *ilang.Map, *ilang.Foldl:
		return nil, werr.New(werr.Contract, "ilang: term %T requires per-element list modeling, unsupported by this solver's length-only list encoding", t)
	default:
		return nil, werr.New(werr.Contract, "ilang: term %T has no SMT encoding", t)
	}
}

func (c *Context) encodeIntCompare(s *z3.Solver, env *vfs.Environment, resources map[string]*schema.Resource, syms map[string]*EncodedValue, t ilang.Term) (*z3.AST, error) {
	var lhs, rhs ilang.Term
	var op func(a, b *z3.AST) *z3.AST
	switch n := t.(type) {
	case *ilang.IntLe:
		lhs, rhs, op = n.LHS, n.RHS, func(a, b *z3.AST) *z3.AST { return a.Le(b) }
	case *ilang.IntGe:
		lhs, rhs, op = n.LHS, n.RHS, func(a, b *z3.AST) *z3.AST { return a.Ge(b) }
	case *ilang.IntLt:
		lhs, rhs, op = n.LHS, n.RHS, func(a, b *z3.AST) *z3.AST { return a.Lt(b) }
	case *ilang.IntGt:
		lhs, rhs, op = n.LHS, n.RHS, func(a, b *z3.AST) *z3.AST { return a.Gt(b) }
	}
	a, err := c.encodeIntTerm(s, env, resources, syms, lhs)
	if err != nil {
		return nil, err
	}
	b, err := c.encodeIntTerm(s, env, resources, syms, rhs)
	if err != nil {
		return nil, err
	}
	return op(a, b), nil
}

func (c *Context) encodeIntTerm(s *z3.Solver, env *vfs.Environment, resources map[string]*schema.Resource, syms map[string]*EncodedValue, t ilang.Term) (*z3.AST, error) {
	switch n := t.(type) {
	case *ilang.IntConst:
		return c.intLit(n.Value), nil
	case *ilang.ParamRef:
		v, ok := syms[n.Name]
		if !ok {
			return nil, werr.New(werr.Contract, "ilang: unbound parameter %q", n.Name)
		}
		switch {
		case v.Int != nil:
			return v.Int.ast, nil
		case v.ListLen != nil:
			return v.ListLen.ast, nil
		case v.StrLen != nil:
			return v.StrLen.ast, nil
		}
		return nil, werr.New(werr.Contract, "ilang: %q has no integer projection", n.Name)
	case *ilang.AttrGet:
		v, err := c.encodeValueTerm(s, env, resources, syms, n)
		if err != nil {
			return nil, err
		}
		if v.Int == nil {
			return nil, werr.New(werr.Contract, "ilang: attribute %q is not integer-valued", n.Name)
		}
		return v.Int.ast, nil
	case *ilang.ListLen:
		v, err := c.encodeValueTerm(s, env, resources, syms, n.List)
		if err != nil {
			return nil, err
		}
		if v.ListLen == nil {
			return nil, werr.New(werr.Contract, "ilang: list.len on a non-list term")
		}
		return v.ListLen.ast, nil
	case *ilang.StringIndex:
		return nil, werr.New(werr.Contract, "ilang: string.index has no SMT encoding; string contents are sampled post-hoc from the random pool, not solved for")
	case *ilang.IntAdd:
		a, err := c.encodeIntTerm(s, env, resources, syms, n.LHS)
		if err != nil {
			return nil, err
		}
		b, err := c.encodeIntTerm(s, env, resources, syms, n.RHS)
		if err != nil {
			return nil, err
		}
		return a.Add(b), nil
	case *ilang.IntSub:
		a, err := c.encodeIntTerm(s, env, resources, syms, n.LHS)
		if err != nil {
			return nil, err
		}
		b, err := c.encodeIntTerm(s, env, resources, syms, n.RHS)
		if err != nil {
			return nil, err
		}
		return a.Sub(b), nil
	default:
		return nil, werr.New(werr.Contract, "ilang: term %T has no integer encoding", t)
	}
}

func (c *Context) encodeValueTerm(s *z3.Solver, env *vfs.Environment, resources map[string]*schema.Resource, syms map[string]*EncodedValue, t ilang.Term) (*EncodedValue, error) {
	switch n := t.(type) {
	case *ilang.ParamRef:
		v, ok := syms[n.Name]
		if !ok {
			return nil, werr.New(werr.Contract, "ilang: unbound parameter %q", n.Name)
		}
		return v, nil
	case *ilang.ResultRef:
		v, ok := syms["result."+n.Name]
		if !ok {
			return nil, werr.New(werr.Contract, "ilang: unbound result %q", n.Name)
		}
		return v, nil
	case *ilang.IntConst:
		return &EncodedValue{Int: &mvar{ast: c.intLit(n.Value)}}, nil
	case *ilang.BoolConst:
		return &EncodedValue{Bool: &mvar{ast: c.boolLit(n.Value)}}, nil
	case *ilang.RecordField:
		rec, err := c.encodeValueTerm(s, env, resources, syms, n.Record)
		if err != nil {
			return nil, err
		}
		f, ok := rec.RecordFields[n.Member]
		if !ok {
			return nil, werr.New(werr.Contract, "ilang: record has no member %q", n.Member)
		}
		return f, nil
	case *ilang.FlagsBit:
		fl, err := c.encodeValueTerm(s, env, resources, syms, n.Flags)
		if err != nil {
			return nil, err
		}
		bit, ok := fl.FlagsBits[n.Bit]
		if !ok {
			return nil, werr.New(werr.Contract, "ilang: flags value has no bit %q", n.Bit)
		}
		return &EncodedValue{Bool: bit}, nil
	case *ilang.VariantCase:
		vt, ok := c.defs[n.TypeName]
		if !ok {
			return nil, werr.New(werr.Contract, "ilang: variant type %q not declared", n.TypeName)
		}
		enc := &EncodedValue{Type: vt, VariantTag: &mvar{ast: c.intLit(int64(variantCaseIndex(vt, n.CaseName)))}}
		if n.Payload != nil {
			payload, err := c.encodeValueTerm(s, env, resources, syms, n.Payload)
			if err != nil {
				return nil, err
			}
			enc.VariantPayloads = map[string]*EncodedValue{n.CaseName: payload}
		}
		return enc, nil
	case *ilang.ResourceLit:
		// A resource literal denotes a specific live instance; compare by
		// its wire value so (value.eq (param $fd) (resource 3)) pins the
		// parameter to that instance through the same Int variable the
		// per-resource disjunction constrains.
		id := vfs.ResourceID(n.ID)
		r := env.GetResource(id)
		if r == nil {
			return nil, werr.New(werr.Contract, "ilang: resource literal %d does not denote a live resource", n.ID)
		}
		if r.Value == nil {
			return nil, werr.New(werr.Contract, "ilang: resource %d has no wire value", n.ID)
		}
		var lit *z3.AST
		if r.Value.Kind == schema.KindHandle {
			lit = c.intLit(int64(r.Value.Handle))
		} else {
			lit = c.intLit(r.Value.Int)
		}
		return &EncodedValue{Int: &mvar{ast: lit}}, nil
	case *ilang.AttrGet:
		// attr.get only ever appears applied to a resource-typed parameter,
		// whose attribute variables are installed in syms under a
		// "<param>.attr.<name>" key by Solve before the contract is
		// encoded; the per-resource disjunction ties them to the live
		// environment.
		if base, ok := n.Resource.(*ilang.ParamRef); ok {
			if v, ok := syms[base.Name+".attr."+n.Name]; ok {
				return v, nil
			}
		}
		return nil, werr.New(werr.Contract, "ilang: attr.get could not resolve binding")
	default:
		return nil, werr.New(werr.Contract, "ilang: term %T has no composite-value encoding", t)
	}
}

func fmtPrefix(typeName string, id vfs.ResourceID) string {
	return typeName + "#" + itoaID(int64(id))
}

func itoaID(v int64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := v < 0
	if neg {
		v = -v
	}
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
