package schema

import (
	"testing"
)

const testSchema = `
;; minimal preview1-flavored package exercising every type keyword the
;; loader understands
(typename $errno (enum $success $badf $notsup))
(typename $fd (handle)
  (@attribute $offset $filesize)
  (@attribute $dir_name $dirname))
(typename $filesize u64)
(typename $dirname string)
(typename $rights (flags (repr u64) $fd_read $fd_write))
(typename $iovec (record (field $buf u32) (field $buf_len u32)))
(typename $filestat (record (field $size $filesize) (field $kind u8)))

(module $wasi_snapshot_preview1
  (@interface func (export "fd_read")
    (param $fd $fd)
    (param $iovs (list $iovec))
    (result $r (expected $filesize $errno))
    (@input (i64.ge_s (list.len (param $iovs)) (i64.const 1)))
    (@effects (attr.set $fd $offset 0)))
  (@interface func (export "fd_filestat_get")
    (param $fd $fd)
    (result $r (expected $filestat $errno))))
`

func TestLoadResolvesTypesAndFunctions(t *testing.T) {
	pkg, err := Load(testSchema)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ifc := pkg.FindInterface("wasi_snapshot_preview1")
	if ifc == nil {
		t.Fatalf("interface not found")
	}
	if len(ifc.Functions) != 2 {
		t.Fatalf("len(Functions) = %d, want 2", len(ifc.Functions))
	}

	fd, ok := ifc.Types["fd"]
	if !ok || fd.Kind != KindHandle {
		t.Fatalf("fd type = %+v, want a handle", fd)
	}
	rights := ifc.Types["rights"]
	if rights.Kind != KindFlags || rights.FlagsRepr != Width64 {
		t.Fatalf("rights = %+v, want flags with u64 repr", rights)
	}
	if len(rights.FlagsMembers) != 2 {
		t.Fatalf("rights members = %v, want 2", rights.FlagsMembers)
	}
	errno := ifc.Types["errno"]
	if errno.Kind != KindVariant || len(errno.VariantCases) != 3 {
		t.Fatalf("errno = %+v, want a 3-case variant", errno)
	}
}

func TestLoadDeclaresResourceAttributes(t *testing.T) {
	pkg, err := Load(testSchema)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ifc := pkg.Interfaces[0]
	fd, ok := ifc.Resources["fd"]
	if !ok {
		t.Fatalf("fd not registered as a resource")
	}
	if len(fd.AttributeOrder) != 2 || fd.AttributeOrder[0] != "offset" || fd.AttributeOrder[1] != "dir_name" {
		t.Fatalf("AttributeOrder = %v, want [offset dir_name]", fd.AttributeOrder)
	}
	if fd.Attributes["offset"].Name != "filesize" {
		t.Fatalf("offset attribute type = %+v, want $filesize", fd.Attributes["offset"])
	}
}

func TestLoadUnpacksExpectedResult(t *testing.T) {
	pkg, err := Load(testSchema)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ifc := pkg.Interfaces[0]

	// Scalar ok payload: exposed as a single result.
	read := ifc.FindFunction("fd_read")
	if read == nil {
		t.Fatalf("fd_read not found")
	}
	if len(read.Results) != 1 || read.Results[0].Type.Name != "filesize" {
		t.Fatalf("fd_read results = %+v, want one $filesize", read.Results)
	}
	if read.Input == nil {
		t.Fatalf("fd_read @input contract was dropped")
	}
	if len(read.Effects) != 1 {
		t.Fatalf("fd_read effects = %d, want 1", len(read.Effects))
	}

	// Record ok payload: flattened to one result per member.
	stat := ifc.FindFunction("fd_filestat_get")
	if len(stat.Results) != 2 {
		t.Fatalf("fd_filestat_get results = %+v, want the record's members flattened", stat.Results)
	}
}

func TestLoadRejectsDuplicateTypename(t *testing.T) {
	_, err := Load("(typename $fd (handle)) (typename $fd u32)")
	if err == nil {
		t.Fatalf("expected an error for a duplicate typename")
	}
}

func TestLoadRejectsDuplicateAttribute(t *testing.T) {
	_, err := Load("(typename $fd (handle) (@attribute $offset u64) (@attribute $offset u64))")
	if err == nil {
		t.Fatalf("expected an error for a duplicate @attribute on the same type")
	}
}

func TestLoadRejectsDuplicateFunction(t *testing.T) {
	src := `(module $m
	  (@interface func (export "f"))
	  (@interface func (export "f")))`
	if _, err := Load(src); err == nil {
		t.Fatalf("expected an error for a duplicate function name")
	}
}

func TestLoadRejectsUnknownTopLevelForm(t *testing.T) {
	if _, err := Load("(bogus $x)"); err == nil {
		t.Fatalf("expected an error for an unknown top-level form")
	}
}

func TestZeroValueConstruction(t *testing.T) {
	pkg, err := Load(testSchema)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defs := pkg.Interfaces[0].Types

	z := Zero(defs["filestat"], defs)
	if z.Kind != KindRecord {
		t.Fatalf("Zero(filestat).Kind = %v, want record", z.Kind)
	}
	if z.RecordFields["size"].Int != 0 || z.RecordFields["kind"].Int != 0 {
		t.Fatalf("Zero(filestat) has nonzero members: %+v", z.RecordFields)
	}

	e := Zero(defs["errno"], defs)
	if e.Kind != KindVariant || e.VariantCase != "success" {
		t.Fatalf("Zero(errno) = %+v, want the first case", e)
	}

	r := Zero(defs["rights"], defs)
	for name, set := range r.FlagsBits {
		if set {
			t.Fatalf("Zero(rights) has bit %q set", name)
		}
	}
}

func TestDescriptorCacheMemoizes(t *testing.T) {
	pkg, err := Load(testSchema)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defs := pkg.Interfaces[0].Types
	dc := NewDescriptorCache(defs, 16)

	d1 := dc.Get("filestat")
	if d1 == nil {
		t.Fatalf("Get(filestat) = nil")
	}
	d2 := dc.Get("filestat")
	if d1 != d2 {
		t.Fatalf("descriptor not memoized across Get calls")
	}
	if d1.Size != dc.Layout().Size(defs["filestat"]) {
		t.Fatalf("descriptor size %d disagrees with layout", d1.Size)
	}
	if z := d1.Zero(); z.Kind != KindRecord {
		t.Fatalf("descriptor Zero() kind = %v, want record", z.Kind)
	}
	if dc.Get("no_such_type") != nil {
		t.Fatalf("Get of an unknown type should return nil")
	}
}
