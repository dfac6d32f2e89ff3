package witx

import "fmt"

// Parse tokenizes and parses a witx-dialect source document into a sequence
// of top-level S-expression forms. It performs no semantic validation; that
// is the job of internal/schema, which resolves names against this AST.
func Parse(src string) (*Document, error) {
	l := newLexer(src)
	var forms []*Node
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokEOF {
			break
		}
		if tok.kind != tokLParen {
			return nil, fmt.Errorf("%d:%d: expected top-level form to start with '('", tok.pos.Line, tok.pos.Col)
		}
		node, err := parseList(l, tok.pos)
		if err != nil {
			return nil, err
		}
		forms = append(forms, node)
	}
	return &Document{Forms: forms}, nil
}

// parseList parses the children of a list whose opening '(' has already
// been consumed, up to and including the matching ')'.
func parseList(l *lexer, pos Pos) (*Node, error) {
	// Non-nil even for "()", so an empty list is never mistaken for an atom.
	children := []*Node{}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokEOF:
			return nil, fmt.Errorf("%d:%d: unexpected EOF inside list starting at %d:%d", tok.pos.Line, tok.pos.Col, pos.Line, pos.Col)
		case tokRParen:
			return &Node{Pos: pos, List: children}, nil
		case tokLParen:
			child, err := parseList(l, tok.pos)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		case tokString:
			children = append(children, &Node{Pos: tok.pos, Atom: tok.text})
		case tokAtom:
			children = append(children, &Node{Pos: tok.pos, Atom: tok.text})
		}
	}
}
