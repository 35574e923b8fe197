package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vellum-dev/vellum/pkg/capability"
	"github.com/vellum-dev/vellum/pkg/discovery"
	"github.com/vellum-dev/vellum/pkg/identity"
	"github.com/vellum-dev/vellum/pkg/logging"
	"github.com/vellum-dev/vellum/pkg/metrics"
	"github.com/vellum-dev/vellum/pkg/trust"
)

func makeTestPlugin(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name, ".vellum-plugin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := `{"name":"` + name + `","version":"1.0.0"}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return filepath.Join(root, name)
}

func newTestSupervisor(t *testing.T, roots []discovery.Root, storePath string) *Supervisor {
	t.Helper()
	cfg := Config{
		TrustStorePath:     storePath,
		DiscoveryRoots:     roots,
		FingerprintWorkers: 2,
	}
	return New(cfg, logging.New("test"), metrics.NewProductionMetrics(logging.New("test")))
}

func TestBootstrapActivatesTrustedPlugin(t *testing.T) {
	root := t.TempDir()
	pluginRoot := makeTestPlugin(t, root, "acme-linter")

	fp, err := identity.New(logging.New("test")).Fingerprint(context.Background(), pluginRoot,
		identity.Manifest{RelativePaths: []string{".vellum-plugin/plugin.json"}})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	storePath := filepath.Join(t.TempDir(), "trust.json")
	store := trust.New(storePath, logging.New("test"), metrics.NewProductionMetrics(logging.New("test")))
	_ = store.Load()
	if err := store.Set(trust.TrustedPlugin{
		PluginName:   "acme-linter",
		Version:      "1.0.0",
		TrustedAt:    "2025-01-02T12:00:00.000Z",
		Capabilities: []capability.Capability{capability.ExecuteHooks},
		ContentHash:  string(fp),
		TrustLevel:   capability.TrustFull,
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	sup := newTestSupervisor(t, []discovery.Root{{Path: root, Source: capability.SourceProject}}, storePath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sup.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(result.Activated) != 1 {
		t.Fatalf("expected 1 activated plugin, got %d (pending=%+v)", len(result.Activated), result.Pending)
	}
	if result.Activated[0].DiscoveredPlugin.Name != "acme-linter" {
		t.Errorf("expected acme-linter activated, got %s", result.Activated[0].DiscoveredPlugin.Name)
	}

	d := sup.Check("acme-linter", fp, capability.Operation{Kind: capability.OpExecuteHook})
	if !d.Allowed {
		t.Errorf("expected activated plugin's hook execution to be allowed, got %+v", d)
	}
}

func TestBootstrapReportsPendingForUntrustedPlugin(t *testing.T) {
	root := t.TempDir()
	makeTestPlugin(t, root, "unknown-plugin")

	storePath := filepath.Join(t.TempDir(), "trust.json")
	sup := newTestSupervisor(t, []discovery.Root{{Path: root, Source: capability.SourceProject}}, storePath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sup.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(result.Pending) != 1 || result.Pending[0].Reason != "untrusted" {
		t.Fatalf("expected 1 pending-untrusted plugin, got %+v", result.Pending)
	}
}

func TestBootstrapReportsPendingOnFingerprintMismatch(t *testing.T) {
	root := t.TempDir()
	pluginRoot := makeTestPlugin(t, root, "acme-linter")
	_ = pluginRoot

	storePath := filepath.Join(t.TempDir(), "trust.json")
	store := trust.New(storePath, logging.New("test"), metrics.NewProductionMetrics(logging.New("test")))
	_ = store.Load()
	if err := store.Set(trust.TrustedPlugin{
		PluginName:   "acme-linter",
		Version:      "1.0.0",
		TrustedAt:    "2025-01-02T12:00:00.000Z",
		Capabilities: []capability.Capability{capability.ExecuteHooks},
		ContentHash:  "a10000000000000000000000000000000000000000000000000000000000aaaa"[:64],
		TrustLevel:   capability.TrustFull,
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	sup := newTestSupervisor(t, []discovery.Root{{Path: root, Source: capability.SourceProject}}, storePath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sup.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(result.Pending) != 1 || result.Pending[0].Reason != "fingerprint-mismatch" {
		t.Fatalf("expected 1 pending-fingerprint-mismatch plugin, got %+v", result.Pending)
	}
}

// makeTestPluginWithHook writes a manifest that declares a hook script
// alongside the manifest itself, so the resulting fingerprint covers more
// than just plugin.json.
func makeTestPluginWithHook(t *testing.T, root, name, hookContents string) string {
	t.Helper()
	pluginRoot := filepath.Join(root, name)
	dir := filepath.Join(pluginRoot, ".vellum-plugin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := `{"name":"` + name + `","version":"1.0.0","hooks":["hooks/pre-commit.sh"]}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	hookDir := filepath.Join(pluginRoot, "hooks")
	if err := os.MkdirAll(hookDir, 0o755); err != nil {
		t.Fatalf("mkdir hooks: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hookDir, "pre-commit.sh"), []byte(hookContents), 0o755); err != nil {
		t.Fatalf("write hook: %v", err)
	}
	return pluginRoot
}

// A substituted hook script — the manifest byte-for-byte unchanged — must
// flip the plugin to pending on the next bootstrap. If fingerprinting only
// ever covered plugin.json, this would stay silently activated.
func TestBootstrapDetectsMismatchOnDeclaredNonManifestFileChange(t *testing.T) {
	root := t.TempDir()
	pluginRoot := makeTestPluginWithHook(t, root, "acme-linter", "echo original\n")

	declared, err := discovery.DeclaredFiles(pluginRoot)
	if err != nil {
		t.Fatalf("declared files: %v", err)
	}
	fp, err := identity.New(logging.New("test")).Fingerprint(context.Background(), pluginRoot,
		identity.Manifest{RelativePaths: declared})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	storePath := filepath.Join(t.TempDir(), "trust.json")
	store := trust.New(storePath, logging.New("test"), metrics.NewProductionMetrics(logging.New("test")))
	_ = store.Load()
	if err := store.Set(trust.TrustedPlugin{
		PluginName:   "acme-linter",
		Version:      "1.0.0",
		TrustedAt:    "2025-01-02T12:00:00.000Z",
		Capabilities: []capability.Capability{capability.ExecuteHooks},
		ContentHash:  string(fp),
		TrustLevel:   capability.TrustFull,
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Substitute the hook script without touching the manifest.
	if err := os.WriteFile(filepath.Join(pluginRoot, "hooks", "pre-commit.sh"), []byte("echo malicious\n"), 0o755); err != nil {
		t.Fatalf("rewrite hook: %v", err)
	}

	sup := newTestSupervisor(t, []discovery.Root{{Path: root, Source: capability.SourceProject}}, storePath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sup.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(result.Activated) != 0 {
		t.Fatalf("expected the plugin with a substituted hook not to activate, got %+v", result.Activated)
	}
	if len(result.Pending) != 1 || result.Pending[0].Reason != "fingerprint-mismatch" {
		t.Fatalf("expected 1 pending-fingerprint-mismatch plugin, got %+v", result.Pending)
	}
}

// makeTestPluginWithSkill writes a manifest declaring a skill artifact,
// plus the skill file's content, under root/name.
func makeTestPluginWithSkill(t *testing.T, root, name, skillContent string) string {
	t.Helper()
	pluginRoot := filepath.Join(root, name)
	dir := filepath.Join(pluginRoot, ".vellum-plugin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := `{"name":"` + name + `","version":"1.0.0","skills":["skills/review.md"]}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	skillDir := filepath.Join(pluginRoot, "skills")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatalf("mkdir skills: %v", err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "review.md"), []byte(skillContent), 0o644); err != nil {
		t.Fatalf("write skill: %v", err)
	}
	return pluginRoot
}

// Bootstrap must publish an activated plugin's declared skill artifacts
// into the Skill Registry; a registry that is never populated makes C5
// dead weight regardless of how well-tested it is in isolation.
func TestBootstrapPublishesActivatedPluginSkills(t *testing.T) {
	root := t.TempDir()
	pluginRoot := makeTestPluginWithSkill(t, root, "acme-linter", "# review steps")

	declared, err := discovery.DeclaredFiles(pluginRoot)
	if err != nil {
		t.Fatalf("declared files: %v", err)
	}
	fp, err := identity.New(logging.New("test")).Fingerprint(context.Background(), pluginRoot,
		identity.Manifest{RelativePaths: declared})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	storePath := filepath.Join(t.TempDir(), "trust.json")
	store := trust.New(storePath, logging.New("test"), metrics.NewProductionMetrics(logging.New("test")))
	_ = store.Load()
	if err := store.Set(trust.TrustedPlugin{
		PluginName:   "acme-linter",
		Version:      "1.0.0",
		TrustedAt:    "2025-01-02T12:00:00.000Z",
		Capabilities: []capability.Capability{capability.ExecuteHooks},
		ContentHash:  string(fp),
		TrustLevel:   capability.TrustFull,
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	sup := newTestSupervisor(t, []discovery.Root{{Path: root, Source: capability.SourceProject}}, storePath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sup.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(result.Activated) != 1 {
		t.Fatalf("expected 1 activated plugin, got %d", len(result.Activated))
	}

	if sup.Skills().Size() != 1 {
		t.Fatalf("expected 1 published skill artifact, got %d", sup.Skills().Size())
	}
	a, ok := sup.Skills().Get("review")
	if !ok {
		t.Fatal("expected a skill artifact named review")
	}
	if a.Content != "# review steps" || a.Provenance != "plugin:acme-linter" {
		t.Errorf("unexpected artifact %+v", a)
	}
}

// A pending (not yet activated) plugin's skills must not be published —
// publishing them would leak an untrusted plugin's artifacts into the
// host registry before it has been approved.
func TestBootstrapDoesNotPublishPendingPluginSkills(t *testing.T) {
	root := t.TempDir()
	makeTestPluginWithSkill(t, root, "unknown-plugin", "# untrusted")

	storePath := filepath.Join(t.TempDir(), "trust.json")
	sup := newTestSupervisor(t, []discovery.Root{{Path: root, Source: capability.SourceProject}}, storePath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sup.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(result.Pending) != 1 {
		t.Fatalf("expected 1 pending plugin, got %d", len(result.Pending))
	}
	if sup.Skills().Size() != 0 {
		t.Errorf("expected no published skills for an unapproved plugin, got %d", sup.Skills().Size())
	}
}

func TestCheckUntrustedPlugin(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "trust.json")
	sup := newTestSupervisor(t, nil, storePath)
	_ = sup.Store().Load()

	d := sup.Check("never-seen", "deadbeef", capability.Operation{Kind: capability.OpExecuteHook})
	if d.Allowed {
		t.Error("expected unknown plugin to be denied as untrusted")
	}
}
