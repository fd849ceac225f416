package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSetVersioning(t *testing.T) {
	fs := NewFileSet()
	id1 := fs.AddVirtual("decls.md", []byte("fn a(i32) -> i32"))
	id2 := fs.AddVirtual("decls.md", []byte("fn b(i32) -> i32"))
	if id1 == id2 {
		t.Fatalf("re-adding a path must allocate a new id")
	}
	latest, ok := fs.GetLatest("decls.md")
	if !ok || latest != id2 {
		t.Fatalf("expected latest id %d, got %d (ok=%v)", id2, latest, ok)
	}
	if string(fs.Get(id1).Content) != "fn a(i32) -> i32" {
		t.Fatalf("old version must stay reachable")
	}
	if fs.Get(FileID(99)) != nil {
		t.Fatalf("unknown id must return nil")
	}
}

func TestResolveLineCol(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("x", []byte("ab\ncd\n\nef"))
	cases := []struct {
		off  uint32
		want LineCol
	}{
		{0, LineCol{1, 1}},
		{2, LineCol{1, 3}},
		{3, LineCol{2, 1}},
		{4, LineCol{2, 2}},
		{6, LineCol{3, 1}},
		{8, LineCol{4, 2}},
	}
	for _, tc := range cases {
		start, _ := fs.Resolve(Span{File: id, Start: tc.off, End: tc.off})
		if start != tc.want {
			t.Fatalf("offset %d: got %+v, want %+v", tc.off, start, tc.want)
		}
	}
	f := fs.Get(id)
	if got := f.Line(2); got != "cd" {
		t.Fatalf("line 2 = %q", got)
	}
	if got := f.Line(3); got != "" {
		t.Fatalf("line 3 = %q", got)
	}
	if got := f.Line(4); got != "ef" {
		t.Fatalf("line 4 = %q", got)
	}
	if got := f.Line(5); got != "" {
		t.Fatalf("line 5 = %q", got)
	}
}

func TestLoadNormalizesBOMAndCRLF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decls.mdisp")
	if err := os.WriteFile(path, []byte("\xEF\xBB\xBFa\r\nb\r\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fs := NewFileSet()
	id, err := fs.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	f := fs.Get(id)
	if string(f.Content) != "a\nb\n" {
		t.Fatalf("unexpected content %q", f.Content)
	}
	if f.Flags&FileHadBOM == 0 || f.Flags&FileNormalizedCRLF == 0 {
		t.Fatalf("expected BOM and CRLF flags, got %b", f.Flags)
	}
}

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 10, End: 20}
	b := Span{File: 1, Start: 5, End: 12}
	if got := a.Cover(b); got != (Span{File: 1, Start: 5, End: 20}) {
		t.Fatalf("cover = %v", got)
	}
	if got := a.Cover(Span{File: 2, Start: 0, End: 50}); got != a {
		t.Fatalf("spans from other files must be ignored")
	}
}
