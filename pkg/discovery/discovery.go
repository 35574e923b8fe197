// Package discovery implements C2: scanning configured search roots for
// plugin candidates and deduplicating them into a single priority-ordered
// list, per spec.md §4.2.
package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/vellum-dev/vellum/pkg/capability"
	"github.com/vellum-dev/vellum/pkg/logging"
)

const component = "discovery"

const (
	manifestDir  = ".vellum-plugin"
	manifestFile = "plugin.json"
)

// DiscoveredPlugin is the ephemeral, pre-trust record produced by a scan.
// It is never persisted; it lives only between discovery and trust
// evaluation.
type DiscoveredPlugin struct {
	Name         string            `json:"name"`
	RootPath     string            `json:"rootPath"`
	ManifestPath string            `json:"manifestPath"`
	Source       capability.Source `json:"source"`

	// DeclaredFiles are the plugin-root-relative, forward-slash paths
	// that contribute to the plugin's behavior: the manifest itself plus
	// every skill, hook, entry point, and resource it declares. This is
	// the complete input set identity.Fingerprint requires (spec.md
	// §4.1) — fingerprinting only the manifest path would leave every
	// other declared file free to change without moving the fingerprint.
	DeclaredFiles []string `json:"declaredFiles"`

	// Skills are the plugin-root-relative paths of just the skill
	// artifacts the manifest declares, the subset of DeclaredFiles the
	// Skill/Artifact Adapter (C5) publishes into the host registry
	// (spec.md §4.5).
	Skills []string `json:"skills,omitempty"`
}

// manifestStub is the subset of plugin.json discovery needs to read: the
// plugin's name for identification, plus the declared-files lists that
// feed identity's fingerprint algorithm. Everything else in the manifest
// is a collaborator concern (spec.md §7's out-of-scope manifest parsing
// stops at name, version, and requested capabilities; the declared-files
// lists below are read only because identity's contract in spec.md §4.1
// requires them, not because discovery interprets plugin behavior).
type manifestStub struct {
	Name        string   `json:"name"`
	Skills      []string `json:"skills,omitempty"`
	Hooks       []string `json:"hooks,omitempty"`
	EntryPoints []string `json:"entryPoints,omitempty"`
	Resources   []string `json:"resources,omitempty"`
}

// declaredFiles returns the manifest's own relative path followed by
// every relative path m declares across skills, hooks, entry points, and
// resources, in that order. The manifest path is always present, even
// when the manifest declares nothing else.
func (m manifestStub) declaredFiles() []string {
	files := make([]string, 0, 1+len(m.Skills)+len(m.Hooks)+len(m.EntryPoints)+len(m.Resources))
	files = append(files, manifestDir+"/"+manifestFile)
	files = append(files, m.Skills...)
	files = append(files, m.Hooks...)
	files = append(files, m.EntryPoints...)
	files = append(files, m.Resources...)
	return files
}

// DeclaredFiles reads <rootPath>/.vellum-plugin/plugin.json and returns
// its declared-files list (see manifestStub.declaredFiles). It exists for
// callers that fingerprint a bare root path outside of a Scan/Discover
// pass (the vellum-trust CLI's approve and check commands); callers that
// already hold a DiscoveredPlugin from a scan should use its
// DeclaredFiles field instead of re-reading the manifest.
func DeclaredFiles(rootPath string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(rootPath, manifestDir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m manifestStub
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m.declaredFiles(), nil
}

// Root names a single search root and the priority source it contributes
// under. Priority is purely positional: the caller assigns Source by the
// order roots are listed, not by anything discovery infers.
type Root struct {
	Path   string
	Source capability.Source
}

// Scanner scans configured roots for plugin candidates.
type Scanner struct {
	logger logging.Logger
}

// New constructs a Scanner.
func New(logger logging.Logger) *Scanner {
	return &Scanner{logger: logger.WithComponent(component)}
}

// ScanRoot examines each direct child of path and returns every one that
// is a directory (or a symlink resolving to one) containing a readable
// .vellum-plugin/plugin.json. Order is unspecified. A missing root is
// treated as empty, not an error. Permission-denied on the root itself
// emits a single diagnostic and is treated as empty; permission errors on
// individual children are silently skipped.
func (s *Scanner) ScanRoot(path string, source capability.Source) []DiscoveredPlugin {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if os.IsPermission(err) {
			s.logger.Warn("discovery_root_permission_denied",
				"root_path", path,
				"source", string(source))
			return nil
		}
		s.logger.Warn("discovery_root_unreadable",
			"root_path", path,
			"source", string(source),
			"error", err.Error())
		return nil
	}

	var found []DiscoveredPlugin
	for _, entry := range entries {
		childPath := filepath.Join(path, entry.Name())

		info, err := os.Stat(childPath)
		if err != nil {
			// Broken symlink or a child that vanished mid-scan; skip.
			continue
		}
		if !info.IsDir() {
			continue
		}

		manifestPath := filepath.Join(childPath, manifestDir, manifestFile)
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			// No manifest, or unreadable: not a plugin candidate.
			continue
		}

		var m manifestStub
		if err := json.Unmarshal(data, &m); err != nil || m.Name == "" {
			continue
		}

		skills := make([]string, len(m.Skills))
		copy(skills, m.Skills)

		found = append(found, DiscoveredPlugin{
			Name:          m.Name,
			RootPath:      childPath,
			ManifestPath:  manifestPath,
			Source:        source,
			DeclaredFiles: m.declaredFiles(),
			Skills:        skills,
		})
	}

	return found
}

// Discover scans every root in order and returns the deduplicated,
// first-occurrence-ordered candidate list: a later root's candidate with
// a name already emitted by an earlier root is dropped (spec.md I5 — the
// priority ordering of roots is the sole tie-breaker).
func (s *Scanner) Discover(roots []Root) []DiscoveredPlugin {
	seen := make(map[string]bool)
	var result []DiscoveredPlugin

	for _, root := range roots {
		for _, candidate := range s.ScanRoot(root.Path, root.Source) {
			if seen[candidate.Name] {
				continue
			}
			seen[candidate.Name] = true
			result = append(result, candidate)
		}
	}

	return result
}
