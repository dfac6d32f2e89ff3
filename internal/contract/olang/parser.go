package olang

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yagehu/wasit-sub000/internal/witx"
)

// Parse translates one (@effects ...) form's statement list into an ordered
// []Stmt. Both sub-languages share lexer grammars but are parsed into
// distinct ASTs (spec §4.3); this parser never calls into ilang.
func Parse(forms []*witx.Node) ([]Stmt, error) {
	stmts := make([]Stmt, 0, len(forms))
	for _, f := range forms {
		s, err := parseStmt(f)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func parseStmt(n *witx.Node) (Stmt, error) {
	if n.IsAtom() || len(n.List) == 0 {
		return nil, fmt.Errorf("%d:%d: expected a statement form", n.Pos.Line, n.Pos.Col)
	}
	head := n.List[0]
	if !head.IsAtom() || head.Atom != "attr.set" {
		return nil, fmt.Errorf("%d:%d: unknown OLANG statement %q", head.Pos.Line, head.Pos.Col, head.Atom)
	}
	args := n.List[1:]
	if len(args) != 3 {
		return nil, fmt.Errorf("%d:%d: attr.set takes 3 arguments (resource, attr, value), got %d", head.Pos.Line, head.Pos.Col, len(args))
	}
	resource, err := atomText(args[0])
	if err != nil {
		return nil, err
	}
	attr, err := atomText(args[1])
	if err != nil {
		return nil, err
	}
	value, err := parseExpr(args[2])
	if err != nil {
		return nil, err
	}
	return &AttrSet{
		Resource: strings.TrimPrefix(resource, "$"),
		Attr:     strings.TrimPrefix(attr, "$"),
		Value:    value,
	}, nil
}

func parseExpr(n *witx.Node) (Expr, error) {
	if n.IsAtom() {
		if v, err := strconv.ParseInt(n.Atom, 10, 64); err == nil {
			return &IntConst{Value: v}, nil
		}
		switch n.Atom {
		case "true":
			return &BoolConst{Value: true}, nil
		case "false":
			return &BoolConst{Value: false}, nil
		}
		return nil, fmt.Errorf("%d:%d: unexpected bare atom %q in OLANG expression position", n.Pos.Line, n.Pos.Col, n.Atom)
	}
	if len(n.List) == 0 {
		return nil, fmt.Errorf("%d:%d: empty OLANG expression", n.Pos.Line, n.Pos.Col)
	}
	head := n.List[0]
	args := n.List[1:]
	switch head.Atom {
	case "variant":
		if len(args) != 2 {
			return nil, fmt.Errorf("%d:%d: variant takes a type name and case name", head.Pos.Line, head.Pos.Col)
		}
		typeName, err := atomText(args[0])
		if err != nil {
			return nil, err
		}
		caseName, err := atomText(args[1])
		if err != nil {
			return nil, err
		}
		return &VariantConst{TypeName: strings.TrimPrefix(typeName, "$"), CaseName: caseName}, nil
	case "param":
		name, err := singleSymbol(args, "param")
		if err != nil {
			return nil, err
		}
		return &ParamRef{Name: name}, nil
	case "result":
		name, err := singleSymbol(args, "result")
		if err != nil {
			return nil, err
		}
		return &ResultRef{Name: name}, nil
	default:
		return nil, fmt.Errorf("%d:%d: unknown OLANG expression form %q", head.Pos.Line, head.Pos.Col, head.Atom)
	}
}

func singleSymbol(args []*witx.Node, op string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s takes exactly 1 argument, got %d", op, len(args))
	}
	s, err := atomText(args[0])
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(s, "$"), nil
}

func atomText(n *witx.Node) (string, error) {
	if n == nil || !n.IsAtom() {
		return "", fmt.Errorf("expected atom")
	}
	return n.Atom, nil
}
