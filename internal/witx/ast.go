// Package witx parses the .witx-dialect S-expression interface description
// language into an untyped AST (component 4.1's "black box producing an
// AST" boundary is the tokenizer; this package's Parse is the layer above
// it). The typed schema (names resolved, types laid out) is built from this
// AST by internal/schema.
package witx

// Node is a single S-expression node: either an Atom (a bare symbol,
// string literal, or integer literal) or a List of child Nodes.
type Node struct {
	Pos  Pos
	Atom string  // set iff List == nil
	List []*Node // set iff Atom == ""
}

// Pos is a source position, used to annotate schema/contract errors with a
// line/column so a human can find the offending form.
type Pos struct {
	Line, Col int
}

// IsAtom reports whether n is a leaf atom rather than a parenthesized list.
func (n *Node) IsAtom() bool { return n.List == nil }

// Head returns the first element of a list node's children, or nil.
func (n *Node) Head() *Node {
	if n.IsAtom() || len(n.List) == 0 {
		return nil
	}
	return n.List[0]
}

// Tail returns all but the first element of a list node's children.
func (n *Node) Tail() []*Node {
	if n.IsAtom() || len(n.List) == 0 {
		return nil
	}
	return n.List[1:]
}

// Document is a parsed top-level form sequence, before any name resolution.
type Document struct {
	Forms []*Node
}
