// Package supervisor implements C0: owning the process-lifetime
// instances of the Discovery Scanner, Identity hasher, Trust Store,
// Permission Bridge, and Skill Registry, and running the startup
// control-flow pipeline exactly once (SPEC_FULL.md §4.0).
//
// Grounded on internal/plugins/integration.go's PluginIntegration facade
// shape (construct sub-components once, run a bootstrap pass, expose a
// thin facade to callers) before that file's own imports were deleted as
// out of scope; generalized here from wiring an MCP gateway's plugin
// manager to wiring the five trust components into the host CLI.
package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vellum-dev/vellum/pkg/capability"
	"github.com/vellum-dev/vellum/pkg/concurrency"
	"github.com/vellum-dev/vellum/pkg/discovery"
	"github.com/vellum-dev/vellum/pkg/identity"
	"github.com/vellum-dev/vellum/pkg/logging"
	"github.com/vellum-dev/vellum/pkg/metrics"
	"github.com/vellum-dev/vellum/pkg/permission"
	"github.com/vellum-dev/vellum/pkg/skills"
	"github.com/vellum-dev/vellum/pkg/trust"
)

const component = "supervisor"

// Config configures a Supervisor's process-lifetime components.
type Config struct {
	TrustStorePath    string
	DiscoveryRoots    []discovery.Root
	FingerprintWorkers int
}

// ActivatedPlugin is a discovered plugin whose trust-store entry's
// fingerprint matched its currently computed content fingerprint, i.e.
// one the host may load without re-prompting for approval.
type ActivatedPlugin struct {
	discovery.DiscoveredPlugin
	Fingerprint identity.ContentFingerprint
	Entry       trust.TrustedPlugin
}

// PendingPlugin is a discovered plugin the store either has no entry
// for, or whose entry's fingerprint no longer matches — the host must
// prompt for (re-)approval before loading it.
type PendingPlugin struct {
	discovery.DiscoveredPlugin
	Fingerprint identity.ContentFingerprint
	Reason      string
}

// BootstrapResult is the outcome of a single Bootstrap pass.
type BootstrapResult struct {
	RunID      string
	Activated  []ActivatedPlugin
	Pending    []PendingPlugin
	Discovered int
}

// Supervisor wires C1–C5 into a single facade: Bootstrap runs the
// startup pipeline, Check delegates to the Permission Bridge over the
// current store snapshot, and Store/Skills expose accessors for callers
// that need direct access (the admin API, the host CLI).
type Supervisor struct {
	cfg Config

	scanner      *discovery.Scanner
	fingerprinter *identity.Fingerprinter
	store        *trust.Store
	skillRegistry *skills.Registry

	logger logging.Logger
	metrics *metrics.ComponentMetrics
}

// New constructs a Supervisor. The Trust Store is not yet loaded; call
// Bootstrap to load it and run discovery.
func New(cfg Config, logger logging.Logger, m metrics.Metrics) *Supervisor {
	l := logger.WithComponent(component)
	return &Supervisor{
		cfg:           cfg,
		scanner:       discovery.New(l),
		fingerprinter: identity.New(l),
		store:         trust.New(cfg.TrustStorePath, l, m),
		skillRegistry: skills.NewRegistry(),
		logger:        l,
		metrics:       metrics.NewComponentMetrics(component, m, l),
	}
}

// Bootstrap runs the startup control-flow pipeline exactly once:
// discovery over the configured roots, fingerprinting each candidate
// (fanned out across a bounded worker pool), loading the trust store,
// and classifying each discovered plugin as activated or pending based
// on whether its store entry's fingerprint matches.
func (s *Supervisor) Bootstrap(ctx context.Context) (*BootstrapResult, error) {
	done := s.metrics.StartOperation("bootstrap")
	runID := uuid.NewString()

	s.logger.Info("bootstrap_started", "run_id", runID)

	discovered := s.scanner.Discover(s.cfg.DiscoveryRoots)

	fingerprints, err := s.fingerprintAll(ctx, discovered)
	if err != nil {
		done(err)
		return nil, err
	}

	if err := s.store.Load(); err != nil {
		done(err)
		return nil, err
	}

	result := &BootstrapResult{RunID: runID, Discovered: len(discovered)}
	for _, d := range discovered {
		fp := fingerprints[d.Name]

		entry, ok := s.store.Get(d.Name)
		if !ok {
			result.Pending = append(result.Pending, PendingPlugin{
				DiscoveredPlugin: d,
				Fingerprint:      fp,
				Reason:           "untrusted",
			})
			continue
		}
		if entry.ContentHash != string(fp) {
			result.Pending = append(result.Pending, PendingPlugin{
				DiscoveredPlugin: d,
				Fingerprint:      fp,
				Reason:           "fingerprint-mismatch",
			})
			continue
		}

		result.Activated = append(result.Activated, ActivatedPlugin{
			DiscoveredPlugin: d,
			Fingerprint:      fp,
			Entry:            entry,
		})
	}

	s.publishSkills(result.Activated)

	s.logger.Info("bootstrap_completed",
		"run_id", runID,
		"discovered", result.Discovered,
		"activated", len(result.Activated),
		"pending", len(result.Pending),
		"skills", s.skillRegistry.Size())

	done(nil)
	return result, nil
}

// publishSkills implements C5's startup responsibility: publish every
// activated plugin's declared skill artifacts into the host-wide registry
// at the fixed plugin-artifact priority (spec.md §4.5). Only activated plugins
// contribute — a plugin pending re-approval has not earned a place in the
// registry yet. A skill file that fails to read is logged and skipped
// rather than failing the whole bootstrap pass.
func (s *Supervisor) publishSkills(activated []ActivatedPlugin) {
	var artifacts []skills.Artifact
	for _, p := range activated {
		for _, relPath := range p.Skills {
			data, err := os.ReadFile(filepath.Join(p.RootPath, filepath.FromSlash(relPath)))
			if err != nil {
				s.logger.Warn("skill_artifact_unreadable",
					"plugin", p.Name,
					"path", relPath,
					"error", err.Error())
				continue
			}

			name := strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))
			artifacts = append(artifacts, skills.NewPluginArtifact(name, string(data), p.Name))
		}
	}
	s.skillRegistry.AddAll(artifacts)
}

// fingerprintAll computes the content fingerprint of every discovered
// plugin's root, fanning the work out across a bounded worker pool
// (spec.md §5's parallel-within-a-pass allowance). Results are collected
// keyed by plugin name so the caller's iteration stays in discovery's
// first-occurrence order regardless of completion order.
func (s *Supervisor) fingerprintAll(ctx context.Context, plugins []discovery.DiscoveredPlugin) (map[string]identity.ContentFingerprint, error) {
	results := make(map[string]identity.ContentFingerprint, len(plugins))
	errs := make(map[string]error)

	workers := s.cfg.FingerprintWorkers
	if workers <= 0 {
		workers = 4
	}

	pool := concurrency.NewWorkerPool(workers, len(plugins)+1, 30*time.Second, s.logger)

	var resultsMu sync.Mutex
	for _, p := range plugins {
		p := p
		task := concurrency.NewTaskFunc("fingerprint:"+p.Name, func(taskCtx context.Context) error {
			manifest := identity.Manifest{RelativePaths: p.DeclaredFiles}
			fp, err := s.fingerprinter.Fingerprint(taskCtx, p.RootPath, manifest)

			resultsMu.Lock()
			if err != nil {
				errs[p.Name] = err
			} else {
				results[p.Name] = fp
			}
			resultsMu.Unlock()
			return err
		})

		if err := pool.Submit(ctx, task); err != nil {
			return nil, err
		}
	}

	if err := pool.Close(ctx); err != nil {
		return nil, err
	}

	for name, err := range errs {
		s.logger.Warn("fingerprint_failed", "plugin", name, "error", err.Error())
	}

	return results, nil
}

// Check delegates to the Permission Bridge over the currently loaded
// store snapshot.
func (s *Supervisor) Check(pluginName string, fingerprint identity.ContentFingerprint, op capability.Operation) permission.Decision {
	t, ok := s.store.Get(pluginName)
	entry := permission.Entry{
		ContentHash:  t.ContentHash,
		TrustLevel:   t.TrustLevel,
		Capabilities: t.Capabilities,
	}
	d := permission.Check(entry, ok, string(fingerprint), op)
	if !d.Allowed {
		s.logger.Warn("permission_denied",
			"plugin", pluginName,
			"operation", string(op.Kind),
			"reason", string(d.Reason))
	}
	return d
}

// Store returns the process-lifetime Trust Store handle.
func (s *Supervisor) Store() *trust.Store {
	return s.store
}

// Skills returns the process-lifetime Skill Registry handle.
func (s *Supervisor) Skills() *skills.Registry {
	return s.skillRegistry
}

// Config returns the Supervisor's configuration, for callers (the admin
// API's discover route) that need the configured discovery roots
// without re-deriving them.
func (s *Supervisor) Config() Config {
	return s.cfg
}
