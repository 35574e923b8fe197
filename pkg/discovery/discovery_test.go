package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vellum-dev/vellum/pkg/capability"
	"github.com/vellum-dev/vellum/pkg/logging"
)

func makePlugin(t *testing.T, parent, name string) string {
	t.Helper()
	root := filepath.Join(parent, name)
	manifestDirPath := filepath.Join(root, manifestDir)
	if err := os.MkdirAll(manifestDirPath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := `{"name":"` + name + `","version":"1.0.0"}`
	if err := os.WriteFile(filepath.Join(manifestDirPath, manifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return root
}

func TestScanRootFindsCandidate(t *testing.T) {
	root := t.TempDir()
	makePlugin(t, root, "acme-linter")

	s := New(logging.New("test"))
	found := s.ScanRoot(root, capability.SourceProject)
	if len(found) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(found))
	}
	if found[0].Name != "acme-linter" {
		t.Errorf("expected name acme-linter, got %s", found[0].Name)
	}
	if found[0].Source != capability.SourceProject {
		t.Errorf("expected source project, got %s", found[0].Source)
	}
}

func TestScanRootIgnoresNonPlugins(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "not-a-plugin"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "stray-file.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := New(logging.New("test"))
	found := s.ScanRoot(root, capability.SourceProject)
	if len(found) != 0 {
		t.Fatalf("expected 0 candidates, got %d", len(found))
	}
}

func TestScanRootMissingIsEmpty(t *testing.T) {
	s := New(logging.New("test"))
	found := s.ScanRoot(filepath.Join(t.TempDir(), "does-not-exist"), capability.SourceProject)
	if found != nil {
		t.Fatalf("expected nil for missing root, got %v", found)
	}
}

// S6: roots A and B both contain a plugin named "shared"; discovery must
// keep only the one from the earlier (higher-priority) root.
func TestDiscoverFirstWinsOnNameCollision(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	makePlugin(t, rootA, "shared")
	makePlugin(t, rootB, "shared")

	s := New(logging.New("test"))
	result := s.Discover([]Root{
		{Path: rootA, Source: capability.SourceProject},
		{Path: rootB, Source: capability.SourceUser},
	})

	if len(result) != 1 {
		t.Fatalf("expected 1 deduplicated candidate, got %d", len(result))
	}
	if result[0].Source != capability.SourceProject {
		t.Errorf("expected winning candidate from project root, got source %s", result[0].Source)
	}
	if filepath.Dir(filepath.Dir(filepath.Dir(result[0].ManifestPath))) != rootA {
		t.Errorf("expected manifest path rooted at %s, got %s", rootA, result[0].ManifestPath)
	}
}

func TestDiscoverPreservesFirstOccurrenceOrder(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	makePlugin(t, rootA, "zeta")
	makePlugin(t, rootB, "alpha")

	s := New(logging.New("test"))
	result := s.Discover([]Root{
		{Path: rootA, Source: capability.SourceProject},
		{Path: rootB, Source: capability.SourceUser},
	})

	if len(result) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(result))
	}
	if result[0].Name != "zeta" || result[1].Name != "alpha" {
		t.Errorf("expected first-occurrence order [zeta, alpha], got [%s, %s]", result[0].Name, result[1].Name)
	}
}

// A manifest that declares skills/hooks/entryPoints/resources must have
// every one of those paths, plus the manifest path itself, show up in
// DeclaredFiles — otherwise identity.Fingerprint never covers them and a
// substituted hook or skill goes undetected (spec.md §4.1).
func TestScanRootPopulatesDeclaredFilesFromManifest(t *testing.T) {
	root := t.TempDir()
	pluginRoot := filepath.Join(root, "acme-linter")
	manifestDirPath := filepath.Join(pluginRoot, manifestDir)
	if err := os.MkdirAll(manifestDirPath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := `{
		"name": "acme-linter",
		"version": "1.0.0",
		"skills": ["skills/lint.md"],
		"hooks": ["hooks/pre-commit.sh"],
		"entryPoints": ["bin/acme-linter"],
		"resources": ["data/rules.yaml"]
	}`
	if err := os.WriteFile(filepath.Join(manifestDirPath, manifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	s := New(logging.New("test"))
	found := s.ScanRoot(root, capability.SourceProject)
	if len(found) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(found))
	}

	want := []string{
		manifestDir + "/" + manifestFile,
		"skills/lint.md",
		"hooks/pre-commit.sh",
		"bin/acme-linter",
		"data/rules.yaml",
	}
	got := found[0].DeclaredFiles
	if len(got) != len(want) {
		t.Fatalf("expected %d declared files, got %d (%v)", len(want), len(got), got)
	}
	for i, p := range want {
		if got[i] != p {
			t.Errorf("declared file %d: expected %q, got %q", i, p, got[i])
		}
	}
}

// A manifest with no skills/hooks/entryPoints/resources still contributes
// its own path, so a bare single-file plugin fingerprints correctly.
func TestScanRootDeclaredFilesDefaultsToManifestOnly(t *testing.T) {
	root := t.TempDir()
	makePlugin(t, root, "acme-linter")

	s := New(logging.New("test"))
	found := s.ScanRoot(root, capability.SourceProject)
	if len(found) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(found))
	}
	if len(found[0].DeclaredFiles) != 1 || found[0].DeclaredFiles[0] != manifestDir+"/"+manifestFile {
		t.Errorf("expected declared files to default to [%s], got %v", manifestDir+"/"+manifestFile, found[0].DeclaredFiles)
	}
}

// DeclaredFiles is the entry point callers outside a scan (the
// vellum-trust CLI) use to read the same declared-files list.
func TestDeclaredFilesReadsManifestDirectly(t *testing.T) {
	root := t.TempDir()
	manifestDirPath := filepath.Join(root, manifestDir)
	if err := os.MkdirAll(manifestDirPath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := `{"name":"acme-linter","version":"1.0.0","hooks":["hooks/pre-commit.sh"]}`
	if err := os.WriteFile(filepath.Join(manifestDirPath, manifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	files, err := DeclaredFiles(root)
	if err != nil {
		t.Fatalf("DeclaredFiles: %v", err)
	}
	want := []string{manifestDir + "/" + manifestFile, "hooks/pre-commit.sh"}
	if len(files) != len(want) || files[0] != want[0] || files[1] != want[1] {
		t.Errorf("expected %v, got %v", want, files)
	}
}

func TestDeclaredFilesMissingManifestErrors(t *testing.T) {
	if _, err := DeclaredFiles(t.TempDir()); err == nil {
		t.Fatal("expected an error for a root with no manifest")
	}
}

func TestDiscoverSkipsMissingRoots(t *testing.T) {
	rootA := filepath.Join(t.TempDir(), "missing")
	rootB := t.TempDir()
	makePlugin(t, rootB, "acme-linter")

	s := New(logging.New("test"))
	result := s.Discover([]Root{
		{Path: rootA, Source: capability.SourceProject},
		{Path: rootB, Source: capability.SourceUser},
	})

	if len(result) != 1 {
		t.Fatalf("expected 1 candidate from reachable root, got %d", len(result))
	}
}
