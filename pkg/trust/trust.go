// Package trust implements C3: the authoritative, on-disk-durable map of
// pluginName to TrustedPlugin, per spec.md §4.3.
package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/vellum-dev/vellum/pkg/capability"
	trusterrors "github.com/vellum-dev/vellum/pkg/errors"
	"github.com/vellum-dev/vellum/pkg/logging"
	"github.com/vellum-dev/vellum/pkg/metrics"
)

const component = "trust"

// schemaVersion is the current TrustStoreFile envelope version. Readers
// reject any other value by falling back to empty-state recovery.
const schemaVersion = 1

var contentHashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// TrustedPlugin is the only entity the store persists, keyed uniquely by
// PluginName (spec.md §3, I4).
type TrustedPlugin struct {
	PluginName   string                `json:"pluginName"`
	Version      string                `json:"version"`
	TrustedAt    string                `json:"trustedAt"`
	Capabilities []capability.Capability `json:"capabilities"`
	ContentHash  string                `json:"contentHash"`
	TrustLevel   capability.TrustLevel `json:"trustLevel"`
}

// storeFile is the on-disk envelope (spec.md §4.1's TrustStoreFile).
type storeFile struct {
	Version int                      `json:"version"`
	Plugins map[string]TrustedPlugin `json:"plugins"`
}

// Store is the single-writer, same-process Trust Store. Cross-process
// concurrent writers are out of scope; within a process, callers must
// serialize Save calls, while non-mutating reads are safe to call
// concurrently (spec.md §4.3, Concurrency).
type Store struct {
	mu        sync.RWMutex
	path      string
	plugins   map[string]TrustedPlugin
	loaded    bool
	corrupted bool

	logger  logging.Logger
	metrics *metrics.ComponentMetrics
}

// New constructs a Store bound to path. Callers must call Load before
// relying on its contents.
func New(path string, logger logging.Logger, m metrics.Metrics) *Store {
	l := logger.WithComponent(component)
	return &Store{
		path:    path,
		plugins: make(map[string]TrustedPlugin),
		logger:  l,
		metrics: metrics.NewComponentMetrics(component, m, l),
	}
}

// Loaded reports whether Load has completed, successfully or via
// corruption recovery, at least once. Used by health checks (spec.md
// §4.3's TrustStoreLoadedChecker analogue).
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Size returns the current number of in-memory entries.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.plugins)
}

// Corrupted reports whether the most recent Load recovered from a
// corrupted store file. Used by health checks to distinguish a fresh,
// intentionally empty store from one that was reset after a failed read.
func (s *Store) Corrupted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corrupted
}

// LoadState returns the (loaded, size, corrupted) triple
// health.NewTrustStoreLoadedChecker expects.
func (s *Store) LoadState() (bool, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded, len(s.plugins), s.corrupted
}

// Load reads the store file, validates it, and populates the in-memory
// map. A missing file initializes to empty and marks loaded, not an
// error. A permission failure propagates as PERMISSION_DENIED. Any parse
// or schema failure (including an unknown schema version) triggers
// corruption recovery: the existing file is copied best-effort to
// <path>.backup, the in-memory map resets to empty, and loaded is set —
// a recovery is not an error to the caller.
func (s *Store) Load() error {
	done := s.metrics.StartOperation("load")

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.plugins = make(map[string]TrustedPlugin)
			s.loaded = true
			s.mu.Unlock()
			done(nil)
			return nil
		}
		if os.IsPermission(err) {
			wrapped := trusterrors.PermissionDenied(component, "load", "trust store file unreadable", err).
				WithContext(map[string]interface{}{"path": s.path})
			done(wrapped)
			return wrapped
		}
		wrapped := trusterrors.IOError(component, "load", "failed to read trust store file", err).
			WithContext(map[string]interface{}{"path": s.path})
		done(wrapped)
		return wrapped
	}

	plugins, validateErr := parseAndValidate(data)
	if validateErr != nil {
		s.logger.Warn("trust_store_corrupted",
			"path", s.path,
			"reason", validateErr.Error())
		s.recoverFromCorruption()
		done(nil)
		return nil
	}

	s.mu.Lock()
	s.plugins = plugins
	s.loaded = true
	s.mu.Unlock()

	done(nil)
	return nil
}

// recoverFromCorruption copies the existing file to <path>.backup
// best-effort (a source that no longer exists is not an error) and
// resets the in-memory map to empty.
func (s *Store) recoverFromCorruption() {
	if data, err := os.ReadFile(s.path); err == nil {
		backupPath := s.path + ".backup"
		if err := os.WriteFile(backupPath, data, 0o600); err != nil {
			s.logger.Warn("trust_store_backup_failed",
				"path", s.path,
				"backup_path", backupPath,
				"error", err.Error())
		}
	}

	s.mu.Lock()
	s.plugins = make(map[string]TrustedPlugin)
	s.loaded = true
	s.corrupted = true
	s.mu.Unlock()
}

// parseAndValidate decodes data as a storeFile and validates every entry
// against the whole-file schema contract (spec.md §4.3). A single
// invalid entry invalidates the entire file.
func parseAndValidate(data []byte) (map[string]TrustedPlugin, error) {
	var sf storeFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("malformed trust store JSON: %w", err)
	}

	if sf.Version != schemaVersion {
		return nil, fmt.Errorf("unknown schema version %d", sf.Version)
	}

	for name, entry := range sf.Plugins {
		if err := validateEntry(name, entry); err != nil {
			return nil, err
		}
	}

	if sf.Plugins == nil {
		sf.Plugins = make(map[string]TrustedPlugin)
	}
	return sf.Plugins, nil
}

func validateEntry(key string, t TrustedPlugin) error {
	if t.PluginName == "" {
		return fmt.Errorf("entry %q: pluginName must be non-empty", key)
	}
	if t.Version == "" {
		return fmt.Errorf("entry %q: version must be non-empty", key)
	}
	if _, err := time.Parse(time.RFC3339, t.TrustedAt); err != nil {
		if _, err2 := time.Parse("2006-01-02T15:04:05.000Z07:00", t.TrustedAt); err2 != nil {
			return fmt.Errorf("entry %q: trustedAt %q is not ISO-8601 with a timezone offset", key, t.TrustedAt)
		}
	}
	for _, c := range t.Capabilities {
		if !capability.Valid(c) {
			return fmt.Errorf("entry %q: unknown capability %q", key, c)
		}
	}
	if !contentHashPattern.MatchString(t.ContentHash) {
		return fmt.Errorf("entry %q: contentHash %q does not match ^[a-f0-9]{64}$", key, t.ContentHash)
	}
	if !capability.ValidTrustLevel(t.TrustLevel) {
		return fmt.Errorf("entry %q: unknown trustLevel %q", key, t.TrustLevel)
	}
	return nil
}

// Save serializes the current in-memory map under the current schema
// version, writing it to a sibling <path>.tmp file and renaming it over
// path — a single rename, relied upon as the atomic commit point.
// Every entry is re-validated against the same schema Load enforces
// before anything is written; Set already rejects invalid entries on
// the way in, but Save re-checks so no caller-side bypass of Set can
// write a file the next Load would reject as corrupted. Permission
// errors fail as PERMISSION_DENIED; any other I/O error fails as
// IO_ERROR.
func (s *Store) Save() error {
	done := s.metrics.StartOperation("save")

	s.mu.RLock()
	sf := storeFile{Version: schemaVersion, Plugins: make(map[string]TrustedPlugin, len(s.plugins))}
	for k, v := range s.plugins {
		sf.Plugins[k] = v
	}
	s.mu.RUnlock()

	for name, entry := range sf.Plugins {
		if err := validateEntry(name, entry); err != nil {
			wrapped := trusterrors.InvalidArgument(component, "save", err.Error())
			done(wrapped)
			return wrapped
		}
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		wrapped := trusterrors.IOError(component, "save", "failed to marshal trust store", err)
		done(wrapped)
		return wrapped
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		wrapped := classifyWriteErr("save", "failed to create trust store directory", err, s.path)
		done(wrapped)
		return wrapped
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		wrapped := classifyWriteErr("save", "failed to write trust store tmp file", err, s.path)
		done(wrapped)
		return wrapped
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		wrapped := classifyWriteErr("save", "failed to commit trust store via rename", err, s.path)
		done(wrapped)
		return wrapped
	}

	done(nil)
	return nil
}

func classifyWriteErr(operation, message string, err error, path string) *trusterrors.TrustError {
	ctx := map[string]interface{}{"path": path}
	if os.IsPermission(err) {
		return trusterrors.PermissionDenied(component, operation, message, err).WithContext(ctx)
	}
	return trusterrors.IOError(component, operation, message, err).WithContext(ctx)
}

// validateTrustedPlugin applies the same whole-entry checks Load applies
// to every entry it reads back, so a caller-supplied entry can never
// reach disk in a shape Load would reject. Set always keys by
// entry.PluginName, so the entry's own name is passed as the key.
func validateTrustedPlugin(t TrustedPlugin) error {
	return validateEntry(t.PluginName, t)
}

// Get returns the entry for name and whether it exists.
func (s *Store) Get(name string) (TrustedPlugin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.plugins[name]
	return t, ok
}

// Set upserts entry under entry.PluginName. The entry is validated
// against the same whole-entry schema Load enforces on read; an invalid
// entry is rejected synchronously with INVALID_ARGUMENT rather than
// being admitted to the in-memory map, where a later Save would write it
// to disk and the next Load would reject the whole file as corrupted
// (spec.md §4.3's whole-file validation semantics).
func (s *Store) Set(entry TrustedPlugin) error {
	if err := validateTrustedPlugin(entry); err != nil {
		return trusterrors.InvalidArgument(component, "set", err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.plugins[entry.PluginName] = entry
	return nil
}

// Delete removes name's entry, if present, and reports whether it
// existed. Idempotent: deleting an absent name returns false without
// error.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.plugins[name]
	delete(s.plugins, name)
	return existed
}

// Has reports whether name has an entry.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.plugins[name]
	return ok
}

// List returns every entry, sorted by pluginName for deterministic
// iteration.
func (s *Store) List() []TrustedPlugin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TrustedPlugin, 0, len(s.plugins))
	for _, t := range s.plugins {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PluginName < out[j].PluginName })
	return out
}

// Clear empties the in-memory map. Not persisted until the next Save.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plugins = make(map[string]TrustedPlugin)
}
