// Package skills implements C5: the Skill/Artifact Adapter, a host-wide
// registry surfacing plugin-contributed artifacts with provenance and
// priority tagging (spec.md §4.5).
package skills

const (
	// pluginPriority is the fixed priority every plugin-sourced artifact
	// is assigned; workspace-sourced artifacts always outrank it.
	pluginPriority  = 50
	workspacePriority = 100
)

// Source discriminates where an Artifact originated.
type Source string

const (
	SourceGlobal    Source = "global"
	SourceWorkspace Source = "workspace"
)

// Artifact is a named text document contributed by a plugin or the
// workspace itself (chiefly "skills"). Provenance is tagged
// "plugin:<pluginName>" for plugin-sourced artifacts.
type Artifact struct {
	Name       string
	Content    string
	Provenance string
	Source     Source
	Priority   int
}

// NewPluginArtifact tags content as originating from pluginName, fixed
// at SourceGlobal/priority 50 regardless of the plugin's discovery
// source — plugin trust and discovery priority are orthogonal to
// artifact merge priority.
func NewPluginArtifact(name, content, pluginName string) Artifact {
	return Artifact{
		Name:       name,
		Content:    content,
		Provenance: "plugin:" + pluginName,
		Source:     SourceGlobal,
		Priority:   pluginPriority,
	}
}

// NewWorkspaceArtifact tags content as host/workspace-owned, fixed at
// priority 100 — always outranking plugin-sourced artifacts on name
// collision, though collision resolution here is first-wins by
// composition order (Priority is informational/diagnostic, not a
// resolver input).
func NewWorkspaceArtifact(name, content string) Artifact {
	return Artifact{
		Name:       name,
		Content:    content,
		Provenance: "workspace",
		Source:     SourceWorkspace,
		Priority:   workspacePriority,
	}
}

// Registry is the host-wide artifact registry. Deduplication across
// multiple plugins (and the workspace) is first-wins by the order
// artifacts are added — the host controls merge policy by controlling
// that order (e.g. adding workspace artifacts first so they always win).
type Registry struct {
	order []string
	byName map[string]Artifact
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Artifact)}
}

// Add inserts artifact iff no artifact with the same Name has already
// been added; later additions with a colliding name are silently
// dropped (first-wins).
func (r *Registry) Add(a Artifact) {
	if _, exists := r.byName[a.Name]; exists {
		return
	}
	r.byName[a.Name] = a
	r.order = append(r.order, a.Name)
}

// AddAll adds each artifact in slice order, applying the same
// first-wins rule.
func (r *Registry) AddAll(artifacts []Artifact) {
	for _, a := range artifacts {
		r.Add(a)
	}
}

// Size returns the number of distinct artifacts in the registry.
func (r *Registry) Size() int {
	return len(r.order)
}

// Has reports whether name has a registered artifact.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Get returns the artifact registered under name, and whether it exists.
func (r *Registry) Get(name string) (Artifact, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Names returns every registered name in composition order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns every registered artifact in composition order.
func (r *Registry) All() []Artifact {
	out := make([]Artifact, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
