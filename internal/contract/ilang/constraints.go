package ilang

// PathConstraint records that a contract constrains a string-typed parameter
// to be a path interpreted relative to an fd-typed parameter, discovered by
// walking a NoBacktrackAbovePreopen node whose operands are both direct
// parameter references. Callers outside this package (the solver, the call
// engine) use it to know which string parameters need path-structured
// treatment and which fd parameter they are relative to, without each
// re-implementing the AST walk.
type PathConstraint struct {
	PathParam string
	FdParam   string
}

// CollectPathConstraints walks t's boolean structure (And/Or/Not) and
// returns one PathConstraint per NoBacktrackAbovePreopen node whose Path and
// Fd operands are both ParamRefs. A NoBacktrackAbovePreopen whose operands
// are not direct parameter references (e.g. a field access) contributes no
// constraint; the caller falls back to name-based heuristics for those.
func CollectPathConstraints(t Term) []PathConstraint {
	var out []PathConstraint
	collectPathConstraints(t, &out)
	return out
}

func collectPathConstraints(t Term, out *[]PathConstraint) {
	switch n := t.(type) {
	case nil:
	case *And:
		for _, c := range n.Clauses {
			collectPathConstraints(c, out)
		}
	case *Or:
		for _, c := range n.Clauses {
			collectPathConstraints(c, out)
		}
	case *Not:
		collectPathConstraints(n.Operand, out)
	case *NoBacktrackAbovePreopen:
		pathRef, pathOK := n.Path.(*ParamRef)
		fdRef, fdOK := n.Fd.(*ParamRef)
		if pathOK && fdOK {
			*out = append(*out, PathConstraint{PathParam: pathRef.Name, FdParam: fdRef.Name})
		}
	}
}
