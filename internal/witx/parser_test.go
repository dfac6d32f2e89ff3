package witx

import "testing"

func TestParseNestedForms(t *testing.T) {
	doc, err := Parse("(module $wasi (@interface func (export \"fd_close\") (param $fd $fd)))")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Forms) != 1 {
		t.Fatalf("len(Forms) = %d, want 1", len(doc.Forms))
	}
	mod := doc.Forms[0]
	if mod.Head().Atom != "module" {
		t.Fatalf("Head() = %q, want module", mod.Head().Atom)
	}
	if len(mod.Tail()) != 2 {
		t.Fatalf("len(Tail()) = %d, want 2", len(mod.Tail()))
	}
	ifc := mod.List[2]
	if ifc.Head().Atom != "@interface" {
		t.Fatalf("nested head = %q, want @interface", ifc.Head().Atom)
	}
}

func TestParseSkipsLineComments(t *testing.T) {
	doc, err := Parse(";; a leading comment\n(typename $fd (handle)) ;; trailing\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Forms) != 1 {
		t.Fatalf("len(Forms) = %d, want 1", len(doc.Forms))
	}
}

func TestParseStringLiteralWithEscapes(t *testing.T) {
	doc, err := Parse(`(export "a\"b")`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := doc.Forms[0].List[1].Atom
	if got != `a"b` {
		t.Fatalf("string literal = %q, want %q", got, `a"b`)
	}
}

func TestParseUnterminatedStringIsError(t *testing.T) {
	if _, err := Parse(`(export "oops)`); err == nil {
		t.Fatalf("expected an error for an unterminated string literal")
	}
}

func TestParseUnbalancedParensIsError(t *testing.T) {
	if _, err := Parse("(module $wasi"); err == nil {
		t.Fatalf("expected an error for an unclosed list")
	}
}

func TestParseTopLevelAtomIsError(t *testing.T) {
	if _, err := Parse("stray"); err == nil {
		t.Fatalf("expected an error for a bare top-level atom")
	}
}

func TestPositionsTrackLinesAndColumns(t *testing.T) {
	doc, err := Parse("\n\n  (typename $fd (handle))")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pos := doc.Forms[0].Pos
	if pos.Line != 3 {
		t.Fatalf("Pos.Line = %d, want 3", pos.Line)
	}
	if pos.Col != 3 {
		t.Fatalf("Pos.Col = %d, want 3", pos.Col)
	}
}
