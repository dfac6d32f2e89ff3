package olang

import (
	"testing"

	"github.com/yagehu/wasit-sub000/internal/witx"
)

func parseStmts(t *testing.T, src string) []Stmt {
	t.Helper()
	doc, err := witx.Parse(src)
	if err != nil {
		t.Fatalf("witx.Parse(%q): %v", src, err)
	}
	stmts, err := Parse(doc.Forms)
	if err != nil {
		t.Fatalf("olang.Parse(%q): %v", src, err)
	}
	return stmts
}

func TestParseAttrSetWithResultRef(t *testing.T) {
	stmts := parseStmts(t, "(attr.set $fd name (result $path))")
	if len(stmts) != 1 {
		t.Fatalf("len(stmts) = %d, want 1", len(stmts))
	}
	set, ok := stmts[0].(*AttrSet)
	if !ok {
		t.Fatalf("got %T, want *AttrSet", stmts[0])
	}
	if set.Resource != "fd" || set.Attr != "name" {
		t.Fatalf("Resource/Attr = %q/%q, want fd/name", set.Resource, set.Attr)
	}
	ref, ok := set.Value.(*ResultRef)
	if !ok || ref.Name != "path" {
		t.Fatalf("Value = %+v, want ResultRef{path}", set.Value)
	}
}

func TestParseAttrSetWithIntLiteral(t *testing.T) {
	stmts := parseStmts(t, "(attr.set $fd offset 0)")
	set := stmts[0].(*AttrSet)
	lit, ok := set.Value.(*IntConst)
	if !ok || lit.Value != 0 {
		t.Fatalf("Value = %+v, want IntConst{0}", set.Value)
	}
}

func TestParseAttrSetWithVariantConst(t *testing.T) {
	stmts := parseStmts(t, "(attr.set $fd state (variant filetype directory))")
	set := stmts[0].(*AttrSet)
	variant, ok := set.Value.(*VariantConst)
	if !ok {
		t.Fatalf("Value = %T, want *VariantConst", set.Value)
	}
	if variant.TypeName != "filetype" || variant.CaseName != "directory" {
		t.Fatalf("variant = %+v, want filetype/directory", variant)
	}
}

func TestParseMultipleStatementsPreservesOrder(t *testing.T) {
	stmts := parseStmts(t, "(attr.set $fd a 1) (attr.set $fd b 2)")
	if len(stmts) != 2 {
		t.Fatalf("len(stmts) = %d, want 2", len(stmts))
	}
	first := stmts[0].(*AttrSet)
	second := stmts[1].(*AttrSet)
	if first.Attr != "a" || second.Attr != "b" {
		t.Fatalf("statement order not preserved: %q then %q", first.Attr, second.Attr)
	}
}

func TestParseUnknownStatementFormIsError(t *testing.T) {
	doc, err := witx.Parse("(attr.del $fd name)")
	if err != nil {
		t.Fatalf("witx.Parse: %v", err)
	}
	if _, err := Parse(doc.Forms); err == nil {
		t.Fatalf("expected an error for an unrecognized statement form")
	}
}

func TestParseWrongArityIsError(t *testing.T) {
	doc, err := witx.Parse("(attr.set $fd name)")
	if err != nil {
		t.Fatalf("witx.Parse: %v", err)
	}
	if _, err := Parse(doc.Forms); err == nil {
		t.Fatalf("expected an error for attr.set with too few arguments")
	}
}
