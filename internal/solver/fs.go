package solver

import (
	z3 "github.com/mitchellh/go-z3"

	"github.com/yagehu/wasit-sub000/internal/contract/ilang"
	"github.com/yagehu/wasit-sub000/internal/schema"
	"github.com/yagehu/wasit-sub000/internal/vfs"
	"github.com/yagehu/wasit-sub000/internal/werr"
)

// maxPathSegments bounds how many components a generated path argument may
// carry. The filesystem-aware NoBacktrackAbovePreopen predicate (spec §4.5)
// is encoded here as ground arithmetic over a fixed-length vector of this
// many depth-deltas rather than via quantifiers over an uninterpreted
// "children" function: go-z3's exposed API offers Assert, Check, and the
// AST term algebra, but no uninterpreted-function declaration and no
// ForAll/Exists construction. A fixed upper bound keeps the encoding fully
// unrolled and quantifier-free — mathematically equivalent to the
// quantified formulation for any path actually reachable within
// maxPathSegments hops, which every live resource's fd ancestry is.
const maxPathSegments = 6

// collectPathParams returns, for one function call, the set of parameters
// that should receive depth-delta path structure: every path named by a
// NoBacktrackAbovePreopen node in the input contract, plus — per WASI
// preview1's naming convention — any string-typed parameter whose name
// vfs.IsPathParamName recognizes, so a path argument with no explicit
// no-backtrack precondition still gets well-formed segment structure
// instead of an arbitrary unstructured string.
func collectPathParams(req *Request) map[string]ilang.PathConstraint {
	out := make(map[string]ilang.PathConstraint)
	for _, pc := range ilang.CollectPathConstraints(req.Function.Input) {
		out[pc.PathParam] = pc
	}
	for _, p := range req.Function.Params {
		if _, ok := out[p.Name]; ok {
			continue
		}
		t := req.ParamTypes[p.Name]
		if t == nil || t.Kind != schema.KindString {
			continue
		}
		if vfs.IsPathParamName(p.Name) {
			out[p.Name] = ilang.PathConstraint{PathParam: p.Name}
		}
	}
	return out
}

// assertPathStructure allocates enc's depth-delta vector and segment count
// and constrains them to their legal ranges: each delta in {-1, 0, +1}
// (ascend/stay/descend) and count in [1, maxPathSegments]. This runs for
// every collected path parameter regardless of which fd it will turn out to
// be relative to; encodeNoBacktrack later ties the vector to a live fd's
// ancestry depth.
func (c *Context) assertPathStructure(s *z3.Solver, prefix string, enc *EncodedValue) {
	deltas := make([]*mvar, maxPathSegments)
	for i := 0; i < maxPathSegments; i++ {
		d := c.constVar(prefix+".delta"+itoaID(int64(i)), c.intSort())
		s.Assert(d.ast.Ge(c.intLit(-1)))
		s.Assert(d.ast.Le(c.intLit(1)))
		deltas[i] = d
	}
	count := c.constVar(prefix+".count", c.intSort())
	s.Assert(count.ast.Ge(c.intLit(1)))
	s.Assert(count.ast.Le(c.intLit(int64(maxPathSegments))))
	enc.PathDeltas = deltas
	enc.PathCount = count
}

// pathStaysWithinPreopen asserts that walking enc's depth-delta vector from
// startDepth never produces a negative running depth at any active prefix
// (gated by enc.PathCount), the ground arithmetic analogue of
// vfs.BacktracksAbovePreopen's step-by-step walk over a rendered path.
func (c *Context) pathStaysWithinPreopen(enc *EncodedValue, startDepth int) *z3.AST {
	zero := c.intLit(0)
	running := c.intLit(int64(startDepth))
	out := c.boolLit(true)
	for j, delta := range enc.PathDeltas {
		running = running.Add(delta.ast)
		active := enc.PathCount.ast.Gt(c.intLit(int64(j)))
		out = out.And(active.Not().Or(running.Ge(zero)))
	}
	return out
}

// encodeNoBacktrack compiles a path.no-backtrack-above-preopen node into a
// disjunction over every live fd resource (the same "disjunction over live
// resources" idiom resourceParamDisjunction uses for resource-typed
// parameters): whichever fd the Fd operand turns out to equal, the Path
// operand's solved deltas must never walk above that fd's current ancestry
// depth (vfs.Environment.Depth), mirroring §4.5's filesystem-aware
// predicate.
func (c *Context) encodeNoBacktrack(env *vfs.Environment, syms map[string]*EncodedValue, n *ilang.NoBacktrackAbovePreopen) (*z3.AST, error) {
	pathRef, ok := n.Path.(*ilang.ParamRef)
	if !ok {
		return nil, werr.New(werr.Contract, "path.no-backtrack-above-preopen: Path operand must be a parameter reference")
	}
	fdRef, ok := n.Fd.(*ilang.ParamRef)
	if !ok {
		return nil, werr.New(werr.Contract, "path.no-backtrack-above-preopen: Fd operand must be a parameter reference")
	}
	pathEnc, ok := syms[pathRef.Name]
	if !ok || pathEnc.PathDeltas == nil {
		return nil, werr.New(werr.Contract, "path.no-backtrack-above-preopen: %q has no path structure", pathRef.Name)
	}
	fdEnc, ok := syms[fdRef.Name]
	if !ok || fdEnc.Int == nil {
		return nil, werr.New(werr.Contract, "path.no-backtrack-above-preopen: %q has no fd encoding", fdRef.Name)
	}
	ids := env.ResourcesOfType("fd")
	if len(ids) == 0 {
		return nil, werr.New(werr.Contract, "path.no-backtrack-above-preopen: no live fd resources")
	}
	disj := c.boolLit(false)
	for _, id := range ids {
		r := env.GetResource(id)
		if r == nil || r.Value == nil {
			continue
		}
		isThisFd := c.wireEq(fdEnc, r.Value)
		staysIn := c.pathStaysWithinPreopen(pathEnc, env.Depth(id))
		disj = disj.Or(isThisFd.And(staysIn))
	}
	return disj, nil
}

// decodePathStructure extracts the solved depth-delta vector from asn,
// truncated to enc.PathCount's solved value (spec §4.5 model extraction,
// applied to the path-structure fields instead of the plain scalar fields
// decode handles).
func (c *Context) decodePathStructure(asn assignment, enc *EncodedValue) []int {
	if enc.PathCount == nil {
		return nil
	}
	count := asn.int64(enc.PathCount)
	if count < 1 {
		count = 1
	}
	if int(count) > len(enc.PathDeltas) {
		count = int64(len(enc.PathDeltas))
	}
	out := make([]int, count)
	for i := range out {
		out[i] = int(asn.int64(enc.PathDeltas[i]))
	}
	return out
}
