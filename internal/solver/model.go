package solver

import (
	"time"

	z3 "github.com/mitchellh/go-z3"

	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/vfs"
	"github.com/yagehu/wasit-sub000/internal/werr"
)

// Model is one solution to a call's input contract: a concrete value per
// parameter, decoded from a z3 model (spec §4.5's "solution space").
type Model struct {
	Params map[string]*schema.Value

	// PathStructure holds, for every parameter collectPathParams judged to
	// be a path argument, the solved depth-delta vector (fs.go) that
	// RenderPaths (sample.go) turns into a rendered path string in place of
	// the parameter's placeholder value.
	PathStructure map[string][]int
}

// Request bundles everything Solve needs to build one call's SMT query.
type Request struct {
	Function      *schema.Function
	ParamTypes    map[string]*schema.Type // resolved, one per fn.Params entry
	ResourceTypes map[string]*schema.Resource
	Env           *vfs.Environment
}

// Solve builds the SMT query for one function call and extracts up to the
// configured model cap (or until the time budget elapses), per spec §4.5's
// "Model extraction" algorithm: solve, collect, add a blocking clause
// forbidding the same full assignment, repeat.
func (c *Context) Solve(req *Request) ([]*Model, error) {
	s := newSolver(c.ctx)
	defer s.Close()

	pathParams := collectPathParams(req)

	syms := make(map[string]*EncodedValue, len(req.Function.Params))
	for _, p := range req.Function.Params {
		t := req.ParamTypes[p.Name]
		enc := c.encodeType(p.Name, t)
		syms[p.Name] = enc
		c.assertNonNegativeLengths(s, enc)

		if _, ok := pathParams[p.Name]; ok {
			c.assertPathStructure(s, p.Name, enc)
		}

		if rt, ok := req.ResourceTypes[typeRefName(p.Type)]; ok {
			// Fresh attribute variables for this parameter, tied to whichever
			// live resource the disjunction binds it to, and exposed for
			// attr.get resolution under derived "<param>.attr.<name>" keys
			// (skipped by the decode loop below via isDerivedSymbol).
			attrVars := make(map[string]*EncodedValue, len(rt.AttributeOrder))
			for _, attrName := range rt.AttributeOrder {
				at := rt.Attributes[attrName].Resolve(c.defs)
				av := c.encodeType(p.Name+".attr."+attrName, at)
				attrVars[attrName] = av
				syms[p.Name+".attr."+attrName] = av
			}
			if !c.resourceParamDisjunction(s, req.Env, rt, enc, attrVars) {
				return nil, werr.New(werr.Solve, "no live resource of type %q for parameter %q", rt.TypeName, p.Name)
			}
		}
	}

	if req.Function.Input != nil {
		a, err := c.EncodeTerm(s, req.Env, req.ResourceTypes, syms, req.Function.Input)
		if err != nil {
			return nil, werr.Wrap(werr.Contract, err, "encoding input contract of %q", req.Function.Name)
		}
		s.Assert(a)
	}

	var models []*Model
	deadline := time.Time{}
	if c.timeBudget > 0 {
		deadline = timeNow().Add(c.timeBudget)
	}
	for len(models) < c.modelCap {
		if !deadline.IsZero() && timeNow().After(deadline) {
			break
		}
		res := s.Check()
		if res != z3.True {
			break
		}
		m := s.Model()
		asn := assignment(m.Assignments())
		m.Close()

		decoded := make(map[string]*schema.Value, len(syms))
		paths := make(map[string][]int)
		blocking := c.boolLit(false)
		for name, enc := range syms {
			if isDerivedSymbol(name) {
				continue
			}
			decoded[name] = c.decode(asn, enc)
			if enc.PathDeltas != nil {
				paths[name] = c.decodePathStructure(asn, enc)
			}
			blocking = blocking.Or(c.notEqualLit(asn, enc))
		}
		models = append(models, &Model{Params: decoded, PathStructure: paths})
		s.Assert(blocking)
	}

	if len(models) == 0 {
		return nil, werr.New(werr.Solve, "no candidate for %q", req.Function.Name)
	}
	return models, nil
}

// isDerivedSymbol reports whether a symbol name is a "<param>.attr.<name>"
// alias installed for attr.get resolution rather than a real parameter,
// which would otherwise be decoded (and blocked) redundantly alongside its
// owning parameter.
func isDerivedSymbol(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return true
		}
	}
	return false
}

func typeRefName(r *schema.TypeRef) string {
	if r == nil {
		return ""
	}
	return r.Name
}

// notEqualLit asserts that the next model must differ from asn's assignment
// to enc in at least this one respect — the field-wise component of the
// blocking clause's disjunction (spec §4.5: "forbids simultaneously
// assigning the same values to all parameter variables"). A variable the
// model left unconstrained contributes nothing: the solver was already free
// to vary it.
func (c *Context) notEqualLit(asn assignment, enc *EncodedValue) *z3.AST {
	out := c.boolLit(false)
	if enc.PathDeltas != nil {
		for _, d := range enc.PathDeltas {
			if v := asn.valueAST(d); v != nil {
				out = out.Or(d.ast.Eq(v).Not())
			}
		}
		if v := asn.valueAST(enc.PathCount); v != nil {
			out = out.Or(enc.PathCount.ast.Eq(v).Not())
		}
	}
	switch {
	case enc.Int != nil:
		if v := asn.valueAST(enc.Int); v != nil {
			out = out.Or(enc.Int.ast.Eq(v).Not())
		}
	case enc.FlagsBits != nil:
		for _, bit := range enc.FlagsBits {
			if v := asn.valueAST(bit); v != nil {
				out = out.Or(bit.ast.Eq(v).Not())
			}
		}
	case enc.VariantTag != nil:
		if v := asn.valueAST(enc.VariantTag); v != nil {
			out = out.Or(enc.VariantTag.ast.Eq(v).Not())
		}
		for _, p := range enc.VariantPayloads {
			out = out.Or(c.notEqualLit(asn, p))
		}
	case enc.RecordFields != nil:
		for _, f := range enc.RecordFields {
			out = out.Or(c.notEqualLit(asn, f))
		}
	case enc.ListLen != nil:
		if v := asn.valueAST(enc.ListLen); v != nil {
			out = out.Or(enc.ListLen.ast.Eq(v).Not())
		}
	case enc.StrLen != nil:
		if v := asn.valueAST(enc.StrLen); v != nil {
			out = out.Or(enc.StrLen.ast.Eq(v).Not())
		}
	}
	return out
}

func timeNow() time.Time { return time.Now() }
