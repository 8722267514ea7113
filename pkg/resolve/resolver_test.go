package resolve

import (
	"testing"

	"github.com/albertocavalcante/wsbind/pkg/version"
)

func newTestResolver(t *testing.T, store *Store, locs ...*Location) *Resolver {
	t.Helper()
	idx := NewIndex()
	for _, loc := range locs {
		owner := loc.SourceProject()
		if owner == "" {
			owner = "repo"
		}
		if _, err := idx.Put(owner, loc); err != nil {
			t.Fatalf("Put(%v) error = %v", loc, err)
		}
	}
	return NewResolver(NewCycleDetector(store), idx)
}

func TestResolveLowestCompatibleVersion(t *testing.T) {
	r := newTestResolver(t, NewStore(),
		prebuilt("com.foo", "1.2.0", "repo/foo-1.2.0.jar"),
		prebuilt("com.foo", "1.0.0", "repo/foo-1.0.0.jar"),
	)

	d := dep("com.foo", "[1.0.0,2.0.0)")
	binding, problems := r.Resolve("X", []Dependency{d})

	if len(problems) != 0 {
		t.Fatalf("problems = %v, want none", problems)
	}
	got := binding[d]
	if got == nil || got.Version != version.New(1, 0, 0) {
		t.Errorf("bound to %v, want com.foo;1.0.0", got)
	}
}

func TestResolveUnknownName(t *testing.T) {
	r := newTestResolver(t, NewStore(),
		prebuilt("com.foo", "1.0.0", "repo/foo-1.0.0.jar"),
		prebuilt("com.foo", "1.2.0", "repo/foo-1.2.0.jar"),
	)

	d := dep("com.bar", "[1.0.0,2.0.0)")
	binding, problems := r.Resolve("X", []Dependency{d})

	if len(binding) != 0 {
		t.Errorf("binding = %v, want empty", binding)
	}
	if len(problems) != 1 {
		t.Fatalf("problems = %d, want 1", len(problems))
	}
	p := problems[0]
	if p.Dependency != d {
		t.Errorf("problem dependency = %v, want %v", p.Dependency, d)
	}
	if len(p.Rejections) != 0 {
		t.Errorf("rejections = %v, want none", p.Rejections)
	}
	want := `No available exports matching the version range "[1.0.0,2.0.0)". No candidates rejected.`
	if p.Message != want {
		t.Errorf("message = %q, want %q", p.Message, want)
	}
}

func TestResolveIgnoresOutOfRange(t *testing.T) {
	r := newTestResolver(t, NewStore(),
		prebuilt("com.foo", "0.5.0", "repo/foo-0.5.0.jar"),
		prebuilt("com.foo", "2.0.0", "repo/foo-2.0.0.jar"),
	)

	_, problems := r.Resolve("X", []Dependency{dep("com.foo", "[1.0.0,2.0.0)")})
	if len(problems) != 1 {
		t.Fatalf("problems = %d, want 1", len(problems))
	}
	if n := len(problems[0].Rejections); n != 0 {
		t.Errorf("out-of-range versions should not be rejections, got %d", n)
	}
}

func TestResolveCycleRejection(t *testing.T) {
	// A's export is built from B's sources, so B binding it is a cycle.
	aExport := built("com.a", "1.0.0", "a/generated/a.jar", "b/a.bnd")
	r := newTestResolver(t, NewStore(), aExport)

	d := dep("com.a", "[1.0.0,2.0.0)")
	binding, problems := r.Resolve("b", []Dependency{d})

	if _, ok := binding[d]; ok {
		t.Fatal("cyclic candidate should leave the dependency unresolved")
	}
	if len(problems) != 1 || len(problems[0].Rejections) != 1 {
		t.Fatalf("want one problem with one rejection, got %+v", problems)
	}
	rej := problems[0].Rejections[0]
	if !rej.Cycle || rej.Location != aExport || rej.Reason != ReasonCycle {
		t.Errorf("rejection = %+v, want cycle rejection of %v", rej, aExport)
	}
	want := `No available exports matching the version range "[1.0.0,2.0.0)". One candidate rejected.`
	if problems[0].Message != want {
		t.Errorf("message = %q, want %q", problems[0].Message, want)
	}
}

func TestResolveSkipsCycleForSafeCandidate(t *testing.T) {
	store := NewStore()
	bExport := built("com.b", "1.0.0", "b/generated/b.jar", "b/bnd.bnd")
	cycling := built("com.a", "1.0.0", "a/generated/a-1.0.jar", "a/bnd.bnd")
	safe := prebuilt("com.a", "1.5.0", "repo/a-1.5.jar")

	// a is bound to b, so b taking a's own export is a cycle.
	store.Set("a", []Dependency{dep("com.b", "1.0")}, Binding{dep("com.b", "1.0"): bExport}, nil)
	r := newTestResolver(t, store, bExport, cycling, safe)

	d := dep("com.a", "[1.0,2.0)")
	binding, problems := r.Resolve("b", []Dependency{d})
	if len(problems) != 0 {
		t.Fatalf("problems = %+v, want none", problems)
	}
	if binding[d] != safe {
		t.Errorf("bound to %v, want higher but cycle-safe %v", binding[d], safe)
	}
}

func TestResolveProblemsKeepDeclarationOrder(t *testing.T) {
	r := newTestResolver(t, NewStore(), prebuilt("com.mid", "1.0.0", "repo/mid.jar"))

	deps := []Dependency{
		dep("com.zeta", "1.0"),
		dep("com.mid", "1.0"),
		dep("com.alpha", "1.0"),
	}
	_, problems := r.Resolve("X", deps)
	if len(problems) != 2 {
		t.Fatalf("problems = %d, want 2", len(problems))
	}
	if problems[0].Dependency.Name != "com.zeta" || problems[1].Dependency.Name != "com.alpha" {
		t.Errorf("problem order = [%s %s], want [com.zeta com.alpha]",
			problems[0].Dependency.Name, problems[1].Dependency.Name)
	}
}

func TestResolveIdempotent(t *testing.T) {
	store := NewStore()
	r := newTestResolver(t, store,
		prebuilt("com.foo", "1.0.0", "repo/foo-1.0.0.jar"),
		prebuilt("com.foo", "1.0.0", "repo/foo-1.0.0-copy.jar"),
		built("com.x", "1.0.0", "X/generated/x.jar", "X/bnd.bnd"),
	)
	deps := []Dependency{dep("com.foo", "1.0"), dep("com.x", "1.0"), dep("com.none", "1.0")}

	first, firstProblems := r.Resolve("X", deps)
	second, secondProblems := r.Resolve("X", deps)

	if !first.Equal(second) {
		t.Errorf("bindings differ: %v vs %v", first, second)
	}
	if len(firstProblems) != len(secondProblems) {
		t.Fatalf("problem counts differ: %d vs %d", len(firstProblems), len(secondProblems))
	}
	for i := range firstProblems {
		if firstProblems[i].Message != secondProblems[i].Message ||
			firstProblems[i].Dependency != secondProblems[i].Dependency ||
			len(firstProblems[i].Rejections) != len(secondProblems[i].Rejections) {
			t.Errorf("problem %d differs: %+v vs %+v", i, firstProblems[i], secondProblems[i])
		}
	}
	// Equal versions break ties by path.
	if got := first[dep("com.foo", "1.0")]; got.Path != "repo/foo-1.0.0-copy.jar" {
		t.Errorf("tie broken to %s, want repo/foo-1.0.0-copy.jar", got.Path)
	}
}

func TestResolveMergesRepositories(t *testing.T) {
	idx := NewIndex()
	if _, err := idx.Put("lib", built("com.foo", "1.1.0", "lib/generated/foo.jar", "lib/bnd.bnd")); err != nil {
		t.Fatal(err)
	}
	external := &fakeRepo{name: "external", locs: []*Location{
		prebuilt("com.foo", "1.0.0", "cache/foo-1.0.0.jar"),
		prebuilt("com.foo", "3.0.0", "cache/foo-3.0.0.jar"),
	}}
	r := NewResolver(NewCycleDetector(NewStore()), idx, external)

	d := dep("com.foo", "[1.0,2.0)")
	binding, _ := r.Resolve("app", []Dependency{d})
	if got := binding[d]; got == nil || got.Path != "cache/foo-1.0.0.jar" {
		t.Errorf("bound to %v, want lowest across repositories cache/foo-1.0.0.jar", got)
	}
}

func TestResolveLowestWinsProperty(t *testing.T) {
	locs := []*Location{
		prebuilt("com.p", "0.1.0", "repo/p-0.1.jar"),
		prebuilt("com.p", "1.0.0", "repo/p-1.0.jar"),
		prebuilt("com.p", "1.3.0", "repo/p-1.3.jar"),
		prebuilt("com.p", "2.0.0", "repo/p-2.0.jar"),
		prebuilt("com.p", "2.4.1", "repo/p-2.4.1.jar"),
	}
	r := newTestResolver(t, NewStore(), locs...)

	ranges := []string{"[0,1)", "[1.0,2.0)", "(1.0,2.0]", "[1.3,1.3]", "2.1", "[0.1.0,5)"}
	for _, rng := range ranges {
		t.Run(rng, func(t *testing.T) {
			d := dep("com.p", rng)
			binding, _ := r.Resolve("X", []Dependency{d})
			got := binding[d]
			if got == nil {
				t.Fatalf("%s should resolve", rng)
			}
			if !d.Range.Includes(got.Version) {
				t.Errorf("bound version %s outside %s", got.Version, rng)
			}
			for _, loc := range locs {
				if d.Range.Includes(loc.Version) && loc.Version.Less(got.Version) {
					t.Errorf("lower in-range %s was available, bound %s", loc.Version, got.Version)
				}
			}
		})
	}
}

func TestUnresolvedMessageCounts(t *testing.T) {
	d := dep("com.x", "[1.0,2.0)")
	tests := []struct {
		n    int
		want string
	}{
		{0, `No available exports matching the version range "[1.0.0,2.0.0)". No candidates rejected.`},
		{1, `No available exports matching the version range "[1.0.0,2.0.0)". One candidate rejected.`},
		{3, `No available exports matching the version range "[1.0.0,2.0.0)". 3 candidates rejected.`},
	}
	for _, tt := range tests {
		if got := unresolvedMessage(d, tt.n); got != tt.want {
			t.Errorf("unresolvedMessage(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
