package skills

import "testing"

func TestNewPluginArtifactProvenanceAndPriority(t *testing.T) {
	a := NewPluginArtifact("review", "# review steps", "acme-linter")
	if a.Provenance != "plugin:acme-linter" {
		t.Errorf("expected provenance plugin:acme-linter, got %s", a.Provenance)
	}
	if a.Priority != pluginPriority {
		t.Errorf("expected priority %d, got %d", pluginPriority, a.Priority)
	}
	if a.Source != SourceGlobal {
		t.Errorf("expected source global, got %s", a.Source)
	}
}

func TestNewWorkspaceArtifactOutranksPlugin(t *testing.T) {
	w := NewWorkspaceArtifact("review", "# workspace review")
	if w.Priority <= pluginPriority {
		t.Errorf("expected workspace priority to exceed plugin priority")
	}
}

func TestRegistryFirstWinsOnCollision(t *testing.T) {
	r := NewRegistry()
	r.Add(NewPluginArtifact("review", "from plugin A", "plugin-a"))
	r.Add(NewPluginArtifact("review", "from plugin B", "plugin-b"))

	if r.Size() != 1 {
		t.Fatalf("expected 1 artifact after collision, got %d", r.Size())
	}
	got, ok := r.Get("review")
	if !ok {
		t.Fatal("expected review to be registered")
	}
	if got.Provenance != "plugin:plugin-a" {
		t.Errorf("expected first-registered artifact to win, got %s", got.Provenance)
	}
}

func TestRegistryWorkspaceFirstAlwaysWins(t *testing.T) {
	r := NewRegistry()
	r.Add(NewWorkspaceArtifact("review", "workspace version"))
	r.Add(NewPluginArtifact("review", "plugin version", "acme-linter"))

	got, _ := r.Get("review")
	if got.Source != SourceWorkspace {
		t.Errorf("expected workspace artifact registered first to win, got source %s", got.Source)
	}
}

func TestRegistryPreservesCompositionOrder(t *testing.T) {
	r := NewRegistry()
	r.AddAll([]Artifact{
		NewPluginArtifact("zeta", "z", "plugin-a"),
		NewPluginArtifact("alpha", "a", "plugin-b"),
	})

	names := r.Names()
	if len(names) != 2 || names[0] != "zeta" || names[1] != "alpha" {
		t.Errorf("expected composition order [zeta, alpha], got %v", names)
	}

	all := r.All()
	if len(all) != 2 || all[0].Name != "zeta" || all[1].Name != "alpha" {
		t.Errorf("expected All() to preserve composition order, got %+v", all)
	}
}

func TestRegistryHasAndMissing(t *testing.T) {
	r := NewRegistry()
	if r.Has("missing") {
		t.Error("expected empty registry to not have any artifact")
	}
	r.Add(NewWorkspaceArtifact("present", "content"))
	if !r.Has("present") {
		t.Error("expected registered artifact to be present")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("expected Get for missing artifact to return ok=false")
	}
}
