package ilang

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yagehu/wasit-sub000/internal/witx"
)

// Parse translates a (@input ...) form's single expression node into a
// Term. It checks syntax only, and internal/schema reports a parse failure
// as a contract error; parameter/attribute names are not resolved at load
// time, and an unbound name is reported when the solver encodes the term,
// per spec §4.1 ("it does not check contract well-formedness against types;
// that is done lazily at solve time").
func Parse(n *witx.Node) (Term, error) {
	if n.IsAtom() {
		return parseAtom(n)
	}
	if len(n.List) == 0 {
		return nil, fmt.Errorf("%d:%d: empty term", n.Pos.Line, n.Pos.Col)
	}
	head := n.List[0]
	if !head.IsAtom() {
		return nil, fmt.Errorf("%d:%d: expected operator symbol", head.Pos.Line, head.Pos.Col)
	}
	args := n.List[1:]
	switch head.Atom {
	case "and":
		return parseVariadic(args, func(cs []Term) Term { return &And{Clauses: cs} })
	case "or":
		return parseVariadic(args, func(cs []Term) Term { return &Or{Clauses: cs} })
	case "not":
		t, err := requireOne(args, "not")
		if err != nil {
			return nil, err
		}
		operand, err := Parse(t)
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	case "value.eq":
		return parseBinary(args, "value.eq", func(l, r Term) Term { return &ValueEq{LHS: l, RHS: r} })
	case "i64.add":
		return parseBinary(args, "i64.add", func(l, r Term) Term { return &IntAdd{LHS: l, RHS: r} })
	case "i64.sub":
		return parseBinary(args, "i64.sub", func(l, r Term) Term { return &IntSub{LHS: l, RHS: r} })
	case "i64.le_s":
		return parseBinary(args, "i64.le_s", func(l, r Term) Term { return &IntLe{LHS: l, RHS: r} })
	case "i64.ge_s":
		return parseBinary(args, "i64.ge_s", func(l, r Term) Term { return &IntGe{LHS: l, RHS: r} })
	case "i64.lt_s":
		return parseBinary(args, "i64.lt_s", func(l, r Term) Term { return &IntLt{LHS: l, RHS: r} })
	case "i64.gt_s":
		return parseBinary(args, "i64.gt_s", func(l, r Term) Term { return &IntGt{LHS: l, RHS: r} })
	case "i64.const":
		return parseIntConst(args)
	case "param":
		name, err := requireSymbol(args, "param")
		if err != nil {
			return nil, err
		}
		return &ParamRef{Name: name}, nil
	case "result":
		name, err := requireSymbol(args, "result")
		if err != nil {
			return nil, err
		}
		return &ResultRef{Name: name}, nil
	case "attr.get":
		if len(args) != 2 {
			return nil, fmt.Errorf("%d:%d: attr.get takes 2 arguments", head.Pos.Line, head.Pos.Col)
		}
		res, err := Parse(args[0])
		if err != nil {
			return nil, err
		}
		name, err := atomText(args[1])
		if err != nil {
			return nil, err
		}
		return &AttrGet{Resource: res, Name: strings.TrimPrefix(name, "$")}, nil
	case "field.get":
		if len(args) != 2 {
			return nil, fmt.Errorf("%d:%d: field.get takes 2 arguments", head.Pos.Line, head.Pos.Col)
		}
		rec, err := Parse(args[0])
		if err != nil {
			return nil, err
		}
		name, err := atomText(args[1])
		if err != nil {
			return nil, err
		}
		return &RecordField{Record: rec, Member: name}, nil
	case "flags.get":
		if len(args) != 2 {
			return nil, fmt.Errorf("%d:%d: flags.get takes 2 arguments", head.Pos.Line, head.Pos.Col)
		}
		fl, err := Parse(args[0])
		if err != nil {
			return nil, err
		}
		name, err := atomText(args[1])
		if err != nil {
			return nil, err
		}
		return &FlagsBit{Flags: fl, Bit: name}, nil
	case "list.len":
		t, err := requireOne(args, "list.len")
		if err != nil {
			return nil, err
		}
		l, err := Parse(t)
		if err != nil {
			return nil, err
		}
		return &ListLen{List: l}, nil
	case "string.index":
		if len(args) != 2 {
			return nil, fmt.Errorf("%d:%d: string.index takes 2 arguments", head.Pos.Line, head.Pos.Col)
		}
		s, err := Parse(args[0])
		if err != nil {
			return nil, err
		}
		i, err := Parse(args[1])
		if err != nil {
			return nil, err
		}
		return &StringIndex{Str: s, Index: i}, nil
	case "variant":
		return parseVariantCase(args)
	case "resource":
		id, err := requireInt(args, "resource")
		if err != nil {
			return nil, err
		}
		return &ResourceLit{ID: int(id)}, nil
	case "errno.eq":
		if len(args) != 2 {
			return nil, fmt.Errorf("%d:%d: errno.eq takes 2 arguments", head.Pos.Line, head.Pos.Col)
		}
		r, err := Parse(args[0])
		if err != nil {
			return nil, err
		}
		errnoName, err := atomText(args[1])
		if err != nil {
			return nil, err
		}
		return &ErrnoEq{Result: r, Errno: errnoName}, nil
	case "path.no-backtrack-above-preopen":
		if len(args) != 2 {
			return nil, fmt.Errorf("%d:%d: path.no-backtrack-above-preopen takes 2 arguments", head.Pos.Line, head.Pos.Col)
		}
		path, err := Parse(args[0])
		if err != nil {
			return nil, err
		}
		fd, err := Parse(args[1])
		if err != nil {
			return nil, err
		}
		return &NoBacktrackAbovePreopen{Path: path, Fd: fd}, nil
	case "lambda":
		return parseLambda(args)
	case "map":
		if len(args) != 2 {
			return nil, fmt.Errorf("%d:%d: map takes a lambda and a list", head.Pos.Line, head.Pos.Col)
		}
		lam, err := parseLambda(args[0].List[1:])
		if err != nil {
			return nil, err
		}
		lst, err := Parse(args[1])
		if err != nil {
			return nil, err
		}
		return &Map{Func: *lam, List: lst}, nil
	case "foldl":
		return parseFoldl(args)
	default:
		return nil, fmt.Errorf("%d:%d: unknown ILANG operator %q", head.Pos.Line, head.Pos.Col, head.Atom)
	}
}

func parseAtom(n *witx.Node) (Term, error) {
	switch n.Atom {
	case "true":
		return &BoolConst{Value: true}, nil
	case "false":
		return &BoolConst{Value: false}, nil
	default:
		if v, err := strconv.ParseInt(n.Atom, 10, 64); err == nil {
			return &IntConst{Value: v}, nil
		}
		return nil, fmt.Errorf("%d:%d: unexpected bare atom %q in term position", n.Pos.Line, n.Pos.Col, n.Atom)
	}
}

func parseVariadic(args []*witx.Node, build func([]Term) Term) (Term, error) {
	clauses := make([]Term, 0, len(args))
	for _, a := range args {
		t, err := Parse(a)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, t)
	}
	return build(clauses), nil
}

func parseBinary(args []*witx.Node, op string, build func(l, r Term) Term) (Term, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s takes exactly 2 arguments, got %d", op, len(args))
	}
	l, err := Parse(args[0])
	if err != nil {
		return nil, err
	}
	r, err := Parse(args[1])
	if err != nil {
		return nil, err
	}
	return build(l, r), nil
}

func parseIntConst(args []*witx.Node) (Term, error) {
	v, err := requireInt(args, "i64.const")
	if err != nil {
		return nil, err
	}
	return &IntConst{Value: v}, nil
}

func parseVariantCase(args []*witx.Node) (Term, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("variant requires a type name and case name")
	}
	typeName, err := atomText(args[0])
	if err != nil {
		return nil, err
	}
	caseName, err := atomText(args[1])
	if err != nil {
		return nil, err
	}
	var payload Term
	if len(args) == 3 {
		payload, err = Parse(args[2])
		if err != nil {
			return nil, err
		}
	}
	return &VariantCase{TypeName: strings.TrimPrefix(typeName, "$"), CaseName: caseName, Payload: payload}, nil
}

func parseLambda(args []*witx.Node) (*Lambda, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("lambda takes a parameter name and a body")
	}
	param, err := atomText(args[0])
	if err != nil {
		return nil, err
	}
	body, err := Parse(args[1])
	if err != nil {
		return nil, err
	}
	return &Lambda{Param: strings.TrimPrefix(param, "$"), Body: body}, nil
}

func parseFoldl(args []*witx.Node) (Term, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("foldl takes a fold-function, an initial value, and a list")
	}
	fn := args[0]
	if fn.IsAtom() || len(fn.List) != 4 {
		return nil, fmt.Errorf("foldl's first argument must be (foldl-fn $acc $elem <body>)")
	}
	acc, err := atomText(fn.List[1])
	if err != nil {
		return nil, err
	}
	elem, err := atomText(fn.List[2])
	if err != nil {
		return nil, err
	}
	body, err := Parse(fn.List[3])
	if err != nil {
		return nil, err
	}
	init, err := Parse(args[1])
	if err != nil {
		return nil, err
	}
	list, err := Parse(args[2])
	if err != nil {
		return nil, err
	}
	return &Foldl{
		Func: FoldFunc{AccParam: strings.TrimPrefix(acc, "$"), ElemParam: strings.TrimPrefix(elem, "$"), Body: body},
		Init: init,
		List: list,
	}, nil
}

func requireOne(args []*witx.Node, op string) (*witx.Node, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s takes exactly 1 argument, got %d", op, len(args))
	}
	return args[0], nil
}

func requireSymbol(args []*witx.Node, op string) (string, error) {
	n, err := requireOne(args, op)
	if err != nil {
		return "", err
	}
	s, err := atomText(n)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(s, "$"), nil
}

func requireInt(args []*witx.Node, op string) (int64, error) {
	n, err := requireOne(args, op)
	if err != nil {
		return 0, err
	}
	s, err := atomText(n)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

func atomText(n *witx.Node) (string, error) {
	if !n.IsAtom() {
		return "", fmt.Errorf("%d:%d: expected atom", n.Pos.Line, n.Pos.Col)
	}
	return n.Atom, nil
}
