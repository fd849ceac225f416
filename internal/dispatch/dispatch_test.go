package dispatch

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"mdisp/internal/registry"
	"mdisp/internal/specificity"
	"mdisp/internal/testkit"
	"mdisp/internal/types"
)

func resolveSite(t *testing.T, env *testkit.Env, n int) (*Resolution, error) {
	t.Helper()
	site := env.Call(t, n)
	r := NewResolver(env.Prog.Registry, env.U, nil)
	return r.Resolve(site.Name, site.Args, site.Effects, Options{Qualifier: site.Qualifier})
}

func mustResolve(t *testing.T, env *testkit.Env, n int) *Resolution {
	t.Helper()
	res, err := resolveSite(t, env, n)
	if err != nil {
		t.Fatalf("call %d: unexpected error: %v", n, err)
	}
	return res
}

func expectError(t *testing.T, env *testkit.Env, n int, kind ErrorKind) *Error {
	t.Helper()
	_, err := resolveSite(t, env, n)
	var derr *Error
	if !errors.As(err, &derr) {
		t.Fatalf("call %d: expected dispatch error %s, got %v", n, kind, err)
	}
	if derr.Kind != kind {
		t.Fatalf("call %d: expected %s, got %s (%v)", n, kind, derr.Kind, derr)
	}
	return derr
}

func signatures(in *types.Interner, ms []*registry.Method) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Signature(in)
	}
	return out
}

func expectWinner(t *testing.T, env *testkit.Env, n int, want string) *Resolution {
	t.Helper()
	res := mustResolve(t, env, n)
	if got := res.Method.Signature(env.Prog.Interner); got != want {
		t.Fatalf("call %d: winner %q, want %q", n, got, want)
	}
	return res
}

const addOverloads = `
subtype u8 <: i32
fn add(i32, i32) -> i32
fn add<T: Numeric>(T, T) -> T
fn add(String, String) -> String
fn mul<T: Numeric>(T, T) -> T

call add(i32, i32)
call add(f64, f64)
call add(i32, u8)
call add(Bool, Bool)
call mul(u8, i32)
call missing(i32)
`

func TestAddOverloads(t *testing.T) {
	env := testkit.MustLoad(t, addOverloads)
	in := env.Prog.Interner

	res := expectWinner(t, env, 0, "add(i32, i32) -> i32")
	if len(res.Applicable) != 2 {
		t.Fatalf("expected concrete and generic to be applicable, got %v", signatures(in, res.Applicable))
	}

	res = expectWinner(t, env, 1, "add<T: Numeric>(T, T) -> T")
	if got := types.Label(in, res.Result); got != "f64" {
		t.Fatalf("instantiated result %q, want f64", got)
	}

	expectWinner(t, env, 2, "add(i32, i32) -> i32")

	derr := expectError(t, env, 3, NoMethodFound)
	if len(derr.Candidates) != 3 || len(derr.Rejections) != 3 {
		t.Fatalf("expected full candidate list, got %d candidates %d rejections", len(derr.Candidates), len(derr.Rejections))
	}
	if !strings.Contains(derr.Error(), "add(Bool, Bool)") {
		t.Fatalf("message must name the call: %q", derr.Error())
	}

	res = expectWinner(t, env, 4, "mul<T: Numeric>(T, T) -> T")
	if got := types.Label(in, res.Result); got != "i32" {
		t.Fatalf("arguments must be joined to their common supertype, got %q", got)
	}

	derr = expectError(t, env, 5, NoMethodFound)
	if len(derr.Candidates) != 0 || derr.Error() != "no method named missing" {
		t.Fatalf("unexpected error for unknown family: %v", derr)
	}
}

func TestGenericAcceptsArgumentsWithoutCommonSupertype(t *testing.T) {
	env := testkit.MustLoad(t, `
fn add(i32, i32) -> i32
fn add(f64, f64) -> f64
fn add<T: Numeric>(T, T) -> T
call add(i32, i32)
call add(i32, u8)
call add(u8, i32)
call add(i32, String)
`)
	in := env.Prog.Interner
	expectWinner(t, env, 0, "add(i32, i32) -> i32")
	for _, n := range []int{1, 2} {
		res := expectWinner(t, env, n, "add<T: Numeric>(T, T) -> T")
		if len(res.Applicable) != 1 {
			t.Fatalf("call %d: only the generic applies, got %v", n, signatures(in, res.Applicable))
		}
		if got := types.Label(in, res.Result); got != "T'" {
			t.Fatalf("call %d: result must stay generic, got %q", n, got)
		}
	}
	derr := expectError(t, env, 3, NoMethodFound)
	if len(derr.Rejections) != 3 {
		t.Fatalf("expected every overload rejected, got %+v", derr.Rejections)
	}
}

func TestAmbiguousDispatch(t *testing.T) {
	env := testkit.MustLoad(t, `
fn f<T>(i32, T) -> Unit
fn f<T>(T, i32) -> Unit
call f(i32, i32)
call f(i32, Bool)
`)
	derr := expectError(t, env, 0, AmbiguousDispatch)
	got := signatures(env.Prog.Interner, derr.Candidates)
	want := []string{"f<T>(T, i32) -> Unit", "f<T>(i32, T) -> Unit"}
	if !slices.Equal(got, want) {
		t.Fatalf("tied candidates %v, want %v", got, want)
	}
	expectWinner(t, env, 1, "f<T>(i32, T) -> Unit")
}

const loadEffects = `
effect IO
effect Exc
fn load(Path) -> Data
fn load(Path) -> Data ! {IO}
fn load(Path) -> Data ! {IO, Exc}
fn save(Path) ! {IO}
fn save(Path) ! {IO, Exc}

call load(Path)
call load(Path) ! {IO, Exc}
call save(Path) ! {IO, Exc}
call save(Path) ! {Exc}
call save(Path) ! {Exc | e}
call save(Path) ! pure
`

func TestEffectTiebreak(t *testing.T) {
	env := testkit.MustLoad(t, loadEffects)
	expectWinner(t, env, 0, "load(Path) -> Data")
	expectWinner(t, env, 1, "load(Path) -> Data")
	expectWinner(t, env, 2, "save(Path) -> Unit ! {IO}")

	derr := expectError(t, env, 3, EffectNotAllowed)
	if derr.Available != "{Exc}" {
		t.Fatalf("available effects %q, want {Exc}", derr.Available)
	}
	if len(derr.Required) != 2 {
		t.Fatalf("expected required effects per candidate, got %v", derr.Required)
	}
	if got := derr.Required["save(Path) -> Unit ! {IO}"]; !slices.Equal(got, []string{"IO"}) {
		t.Fatalf("required for save ! {IO}: %v", got)
	}

	expectWinner(t, env, 4, "save(Path) -> Unit ! {IO}")
	expectError(t, env, 5, EffectNotAllowed)
}

func TestTraitDiamond(t *testing.T) {
	env := testkit.MustLoad(t, `
trait Show fn show<T: Display>(T) -> String
trait Debug fn show<T: Display>(T) -> String
call show(i32)
call show(i32) via Show
call show(i32) via Eq
`)
	derr := expectError(t, env, 0, AmbiguousTrait)
	if !slices.Equal(derr.Traits, []string{"Debug", "Show"}) {
		t.Fatalf("traits %v", derr.Traits)
	}
	res := expectWinner(t, env, 1, "Show::show<T: Display>(T) -> String")
	if res.Method.Trait != "Show" {
		t.Fatalf("qualified call must pick Show")
	}
	derr = expectError(t, env, 2, NoMethodFound)
	if len(derr.Rejections) != 2 {
		t.Fatalf("both trait methods must be rejected by the qualifier: %+v", derr.Rejections)
	}
}

func TestTraitQualifierRequiredDespiteSpecificity(t *testing.T) {
	env := testkit.MustLoad(t, `
trait Show fn show<T: Display>(T) -> String
trait Debug fn show(i32) -> String
call show(i32)
call show(i32) via Show
call show(i32) via Debug
call show(Bool)
`)
	derr := expectError(t, env, 0, AmbiguousTrait)
	if !slices.Equal(derr.Traits, []string{"Debug", "Show"}) {
		t.Fatalf("traits %v", derr.Traits)
	}
	if len(derr.Candidates) != 2 {
		t.Fatalf("both trait methods are candidates, got %v", signatures(env.Prog.Interner, derr.Candidates))
	}
	expectWinner(t, env, 1, "Show::show<T: Display>(T) -> String")
	expectWinner(t, env, 2, "Debug::show(i32) -> String")
	expectWinner(t, env, 3, "Show::show<T: Display>(T) -> String")
}

func TestInstantiatedResultAndRecords(t *testing.T) {
	env := testkit.MustLoad(t, `
effect IO
fn first<T>(Vec<T>) -> T
fn name<r>({name: String | r}) -> String
fn each<A>(Vec<A>, fn(A) -> Unit ! {IO | e}) -> Unit ! {IO | e}
call first(Vec<i32>)
call name({name: String, age: i32})
call name({age: i32})
call each(Vec<Bool>, fn(Bool) -> Unit ! {IO})
`)
	in := env.Prog.Interner
	res := mustResolve(t, env, 0)
	if got := types.Label(in, res.Result); got != "i32" {
		t.Fatalf("first(Vec<i32>) result %q", got)
	}
	res = mustResolve(t, env, 1)
	if got := types.Label(in, res.Params[0]); got != "{age: i32, name: String}" {
		t.Fatalf("record parameter after binding the tail: %q", got)
	}
	expectError(t, env, 2, NoMethodFound)
	res = mustResolve(t, env, 3)
	if got := types.RowLabel(in, res.Effects); got != "{IO}" {
		t.Fatalf("effect tail must close over the argument's row, got %s", got)
	}
}

func TestResolutionIsDeclarationOrderIndependent(t *testing.T) {
	decls := []string{
		"fn g(i32, i32) -> i32",
		"fn g<T: Numeric>(T, T) -> T",
		"fn g<T: Copy>(T, Bool) -> T",
		"fn g<T>(T, T) -> T",
		"fn g<T>(Vec<T>, Vec<T>) -> Vec<T>",
	}
	calls := "\ncall g(i32, i32)\ncall g(u8, Bool)\ncall g(Bool, Bool)\ncall g(Vec<i32>, Vec<i32>)\ncall g(String, String)\n"
	reversed := slices.Clone(decls)
	slices.Reverse(reversed)

	a := testkit.MustLoad(t, strings.Join(decls, "\n")+calls)
	b := testkit.MustLoad(t, strings.Join(reversed, "\n")+calls)
	for i := range a.Prog.Calls {
		ra, ea := resolveSite(t, a, i)
		rb, eb := resolveSite(t, b, i)
		if (ea == nil) != (eb == nil) {
			t.Fatalf("call %d: errors differ: %v vs %v", i, ea, eb)
		}
		if ea != nil {
			if ea.Error() != eb.Error() {
				t.Fatalf("call %d: %q vs %q", i, ea, eb)
			}
			continue
		}
		if sa, sb := ra.Method.Signature(a.Prog.Interner), rb.Method.Signature(b.Prog.Interner); sa != sb {
			t.Fatalf("call %d: winner %q vs %q", i, sa, sb)
		}
	}
	cmp := specificity.New(a.U)
	if err := testkit.CheckSpecificityInvariants(cmp, a.Prog.Registry.Family("g")); err != nil {
		t.Fatal(err)
	}
}
