package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vellum-dev/vellum/pkg/logging"
)

func writePluginFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func TestFingerprintDeterministic(t *testing.T) {
	root := writePluginFiles(t, map[string]string{
		".vellum-plugin/plugin.json": `{"name":"acme-linter","version":"1.0.0"}`,
		"hooks/lint.sh":              "#!/bin/sh\necho lint",
	})

	manifest := Manifest{RelativePaths: []string{".vellum-plugin/plugin.json", "hooks/lint.sh"}}
	fp := New(logging.New("test"))

	a, err := fp.Fingerprint(context.Background(), root, manifest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Valid() {
		t.Fatalf("fingerprint %q is not 64 lowercase hex chars", a)
	}

	b, err := fp.Fingerprint(context.Background(), root, manifest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("expected deterministic fingerprint, got %s and %s", a, b)
	}
}

// P5: fingerprint is invariant to the order the manifest lists files in.
func TestFingerprintOrderInvariant(t *testing.T) {
	root := writePluginFiles(t, map[string]string{
		".vellum-plugin/plugin.json": `{"name":"acme-linter","version":"1.0.0"}`,
		"hooks/lint.sh":              "#!/bin/sh\necho lint",
		"skills/review.md":          "# review",
	})

	fp := New(logging.New("test"))

	forward := Manifest{RelativePaths: []string{
		".vellum-plugin/plugin.json", "hooks/lint.sh", "skills/review.md",
	}}
	reversed := Manifest{RelativePaths: []string{
		"skills/review.md", "hooks/lint.sh", ".vellum-plugin/plugin.json",
	}}

	a, err := fp.Fingerprint(context.Background(), root, forward)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := fp.Fingerprint(context.Background(), root, reversed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("expected order-invariant fingerprint, got %s and %s", a, b)
	}
}

// P4: any byte-level change to a declared file changes the fingerprint.
func TestFingerprintChangesOnByteEdit(t *testing.T) {
	manifest := Manifest{RelativePaths: []string{".vellum-plugin/plugin.json"}}
	fp := New(logging.New("test"))

	rootA := writePluginFiles(t, map[string]string{
		".vellum-plugin/plugin.json": `{"name":"acme-linter","version":"1.0.0"}`,
	})
	rootB := writePluginFiles(t, map[string]string{
		".vellum-plugin/plugin.json": `{"name":"acme-linter","version":"1.0.1"}`,
	})

	a, err := fp.Fingerprint(context.Background(), rootA, manifest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := fp.Fingerprint(context.Background(), rootB, manifest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Error("expected differing bytes to produce differing fingerprints")
	}
}

func TestFingerprintMissingRoot(t *testing.T) {
	fp := New(logging.New("test"))
	_, err := fp.Fingerprint(context.Background(), "/nonexistent/plugin/root", Manifest{})
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestFingerprintCancellation(t *testing.T) {
	root := writePluginFiles(t, map[string]string{
		"a": "1", "b": "2", "c": "3",
	})
	manifest := Manifest{RelativePaths: []string{"a", "b", "c"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fp := New(logging.New("test"))
	_, err := fp.Fingerprint(ctx, root, manifest)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
