package depgraph

import (
	"errors"
	"testing"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

func TestResolveOrdersDependenciesBeforeDependents(t *testing.T) {
	g := NewGraph()
	g.AddNode(&plugin.DependencyNode{Name: "a"})
	g.AddNode(&plugin.DependencyNode{Name: "b"})
	g.AddNode(&plugin.DependencyNode{Name: "c"})
	g.AddEdge("a", "b") // a depends on b
	g.AddEdge("b", "c") // b depends on c

	order, err := g.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	index := map[string]int{}
	for i, name := range order {
		index[name] = i
	}
	if index["c"] >= index["b"] || index["b"] >= index["a"] {
		t.Fatalf("order %v does not place dependencies before dependents", order)
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	// A -> B -> C -> A
	g := NewGraph()
	g.AddNode(&plugin.DependencyNode{Name: "A"})
	g.AddNode(&plugin.DependencyNode{Name: "B"})
	g.AddNode(&plugin.DependencyNode{Name: "C"})
	g.AddEdge("A", "B")
	g.AddEdge("B", "C")
	g.AddEdge("C", "A")

	_, err := g.Resolve()
	if err == nil {
		t.Fatal("expected CircularDependencyError")
	}
	var cycleErr *plugin.CircularDependencyError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *plugin.CircularDependencyError, got %T: %v", err, err)
	}
	seen := map[string]bool{}
	for _, n := range cycleErr.Cycle {
		seen[n] = true
	}
	for _, want := range []string{"A", "B", "C"} {
		if !seen[want] {
			t.Errorf("cycle %v missing %q", cycleErr.Cycle, want)
		}
	}
}

func TestParseDependencyURL(t *testing.T) {
	cases := []struct {
		url, fallback, wantRepo, wantName, wantVersion string
		wantErr                                        bool
	}{
		{"", "recon", "default", "recon", "", false},
		{"widgets", "recon", "default", "widgets", "", false},
		{"community:widgets", "recon", "community", "widgets", "", false},
		{"community:widgets@2.1.0", "recon", "community", "widgets", "2.1.0", false},
		{"https://example.com/widgets.zip", "recon", "", "", "", true},
	}

	for _, c := range cases {
		repo, name, version, err := ParseDependencyURL(c.url, c.fallback)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseDependencyURL(%q): expected error", c.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDependencyURL(%q): unexpected error: %v", c.url, err)
			continue
		}
		if repo != c.wantRepo || name != c.wantName || version != c.wantVersion {
			t.Errorf("ParseDependencyURL(%q) = (%q,%q,%q), want (%q,%q,%q)",
				c.url, repo, name, version, c.wantRepo, c.wantName, c.wantVersion)
		}
	}
}

func TestResolveDependenciesRaisesIncompatibleVersion(t *testing.T) {
	r := NewResolver(zapNop())
	root := &plugin.Manifest{
		Name:    "a",
		Version: "1.0.0",
		Dependencies: []plugin.Dependency{
			{Name: "b", Version: ">=1.3.0"},
		},
	}
	installed := map[string]*plugin.Manifest{
		"b": {Name: "b", Version: "1.2.3"},
	}

	_, _, err := r.ResolveDependencies(ResolveInput{
		Root:        root,
		Installed:   installed,
		CoreVersion: "1.0.0",
	})
	if err == nil {
		t.Fatal("expected IncompatibleVersionError")
	}
	var verErr *plugin.IncompatibleVersionError
	if !errors.As(err, &verErr) {
		t.Fatalf("expected *plugin.IncompatibleVersionError, got %T: %v", err, err)
	}
	if verErr.Required != ">=1.3.0" || verErr.Available != "1.2.3" {
		t.Fatalf("unexpected error fields: %+v", verErr)
	}
}
