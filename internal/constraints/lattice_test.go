package constraints

import (
	"errors"
	"testing"
)

func TestDefaultLatticeOrder(t *testing.T) {
	l := Default()
	cases := []struct {
		have []string
		want string
		ok   bool
	}{
		{[]string{"Copy"}, "Clone", true},
		{[]string{"Copy"}, "Display", true},
		{[]string{"Copy"}, "Any", true},
		{[]string{"Clone"}, "Copy", false},
		{nil, "Any", true},
		{nil, "Clone", false},
		{[]string{"Numeric"}, "Clone", false},
	}
	for _, tc := range cases {
		if got := l.Implies(tc.have, tc.want); got != tc.ok {
			t.Fatalf("Implies(%v, %s) = %v, want %v", tc.have, tc.want, got, tc.ok)
		}
	}
	if !l.StrictlyStronger([]string{"Copy"}, []string{"Clone"}) {
		t.Fatalf("Copy should be strictly stronger than Clone")
	}
	if l.StrictlyStronger([]string{"Clone"}, []string{"Clone", "Sized"}) {
		t.Fatalf("equal closures are not strictly stronger")
	}
}

func TestSatisfiesAndInhabited(t *testing.T) {
	l := Default()
	if !l.Satisfies("i32", "Clone") || !l.Satisfies("i32", "Numeric") {
		t.Fatalf("i32 should satisfy Clone and Numeric")
	}
	if l.Satisfies("String", "Copy") {
		t.Fatalf("String must not be Copy")
	}
	if !l.Satisfies("Anything", Any) {
		t.Fatalf("every type satisfies Any")
	}
	if !l.Inhabited([]string{"Copy", "Numeric"}) {
		t.Fatalf("Copy+Numeric is inhabited by i32")
	}
	if err := l.DeclareConstraint("Hash"); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if l.Inhabited([]string{"Hash", "Numeric"}) {
		t.Fatalf("nothing implements Hash yet")
	}
}

func TestDeclarationErrors(t *testing.T) {
	l := Default()
	if err := l.DeclareImpl("Foo", "Missing"); err == nil {
		t.Fatalf("expected unknown constraint error")
	}
	if err := l.DeclareConstraint("Clone", "Copy"); err == nil {
		t.Fatalf("expected cycle error")
	}
	l.Freeze()
	if err := l.DeclareSubtype("u8", "i32"); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}

func TestSubtypeJoin(t *testing.T) {
	l := Default()
	for _, edge := range [][2]string{{"u8", "u16"}, {"u16", "i32"}, {"i8", "i32"}, {"i32", "i64"}} {
		if err := l.DeclareSubtype(edge[0], edge[1]); err != nil {
			t.Fatalf("declare %v: %v", edge, err)
		}
	}
	if !l.IsSubtype("u8", "i64") {
		t.Fatalf("subtyping must be transitive")
	}
	if l.IsSubtype("i64", "u8") {
		t.Fatalf("subtyping must not be symmetric")
	}
	if got := l.Join("u8", "i8"); got != "i32" {
		t.Fatalf("Join(u8, i8) = %q, want i32", got)
	}
	if got := l.Join("u8", "i32"); got != "i32" {
		t.Fatalf("Join(u8, i32) = %q, want i32", got)
	}
	if got := l.Join("u8", "String"); got != "" {
		t.Fatalf("Join(u8, String) = %q, want none", got)
	}
	if err := l.DeclareSubtype("i64", "u8"); err == nil {
		t.Fatalf("expected cycle error")
	}
}
