package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/vellum-dev/vellum/pkg/capability"
	"github.com/vellum-dev/vellum/pkg/config"
	"github.com/vellum-dev/vellum/pkg/discovery"
	"github.com/vellum-dev/vellum/pkg/health"
	"github.com/vellum-dev/vellum/pkg/logging"
	"github.com/vellum-dev/vellum/pkg/metrics"
	"github.com/vellum-dev/vellum/pkg/rbac"
	"github.com/vellum-dev/vellum/pkg/supervisor"
	"github.com/vellum-dev/vellum/pkg/trust"
)

func newTestServer(t *testing.T, rateLimit config.RateLimitConfig) (*AdminServer, *supervisor.Supervisor) {
	t.Helper()
	logger := logging.New("test")
	m := metrics.NewProductionMetrics(logger)

	storePath := filepath.Join(t.TempDir(), "trust.json")
	sup := supervisor.New(supervisor.Config{
		TrustStorePath: storePath,
		DiscoveryRoots: []discovery.Root{},
	}, logger, m)
	if err := sup.Store().Load(); err != nil {
		t.Fatalf("load store: %v", err)
	}

	healthMgr := health.NewHealthManager(logger, m, "test")

	engine, err := rbac.NewEngine(rbac.Config{DefaultPolicy: "readonly"}, logger, m)
	if err != nil {
		t.Fatalf("new rbac engine: %v", err)
	}

	cfg := config.ServerConfig{RateLimit: rateLimit}
	return NewAdminServer(cfg, sup, engine, healthMgr, logger, m), sup
}

func TestHealthzUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t, config.RateLimitConfig{})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 from /healthz, got %d", w.Code)
	}
}

func TestV1RoutesRejectMissingBearerToken(t *testing.T) {
	srv, _ := newTestServer(t, config.RateLimitConfig{})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/v1/trust", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without bearer token, got %d", w.Code)
	}
}

func TestV1RoutesRejectMalformedToken(t *testing.T) {
	srv, _ := newTestServer(t, config.RateLimitConfig{})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/v1/trust", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unparseable token, got %d", w.Code)
	}
}

// requirePermission denies a caller whose resolved capabilities don't
// grant the requested action, exercised directly against the context
// helpers rather than through a full signed-JWT round trip.
func TestRequirePermissionDeniesWithoutCapability(t *testing.T) {
	srv, _ := newTestServer(t, config.RateLimitConfig{})

	caps := &rbac.ProcessedCapabilities{
		Subject:   "test-caller",
		Resources: map[string]rbac.ResourcePermission{},
		ExpiresAt: time.Now().Add(time.Hour),
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/trust", nil)
	req = req.WithContext(withCapabilities(req.Context(), caps))
	w := httptest.NewRecorder()

	if srv.requirePermission(w, req, "read") {
		t.Error("expected requirePermission to deny a caller with no granted resources")
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestRequirePermissionAllowsWithCapability(t *testing.T) {
	srv, _ := newTestServer(t, config.RateLimitConfig{})

	caps := &rbac.ProcessedCapabilities{
		Subject: "test-caller",
		Resources: map[string]rbac.ResourcePermission{
			resourceTrustStore: {CanRead: true},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/trust", nil)
	req = req.WithContext(withCapabilities(req.Context(), caps))
	w := httptest.NewRecorder()

	if !srv.requirePermission(w, req, "read") {
		t.Error("expected requirePermission to allow a caller granted read on trust-store")
	}
}

func TestHandleListTrustViaDirectContext(t *testing.T) {
	srv, sup := newTestServer(t, config.RateLimitConfig{})
	if err := sup.Store().Set(trust.TrustedPlugin{
		PluginName:   "acme-linter",
		Version:      "1.0.0",
		TrustedAt:    "2025-01-02T12:00:00.000Z",
		Capabilities: []capability.Capability{capability.ExecuteHooks},
		ContentHash:  "a10000000000000000000000000000000000000000000000000000000000aaaa"[:64],
		TrustLevel:   capability.TrustFull,
	}); err != nil {
		t.Fatalf("set: %v", err)
	}

	caps := &rbac.ProcessedCapabilities{
		Resources: map[string]rbac.ResourcePermission{resourceTrustStore: {CanRead: true}},
		ExpiresAt: time.Now().Add(time.Hour),
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/trust", nil)
	req = req.WithContext(withCapabilities(req.Context(), caps))
	w := httptest.NewRecorder()

	srv.handleListTrust(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
}

// An invalid PUT body (unknown capability) must be rejected synchronously
// with 400 and never reach the store, so a single bad write from a caller
// holding only write permission on one entry can't corrupt the whole
// trust store for every other plugin on the next process start.
func TestHandlePutTrustRejectsInvalidEntry(t *testing.T) {
	srv, sup := newTestServer(t, config.RateLimitConfig{})

	caps := &rbac.ProcessedCapabilities{
		Resources: map[string]rbac.ResourcePermission{resourceTrustStore: {CanWrite: true}},
		ExpiresAt: time.Now().Add(time.Hour),
	}

	body := `{"version":"1.0.0","trustedAt":"2025-01-02T12:00:00.000Z","capabilities":["read-everything"],"contentHash":"a10000000000000000000000000000000000000000000000000000000000aaaa","trustLevel":"full"}`
	req := httptest.NewRequest(http.MethodPut, "/v1/trust/acme-linter", strings.NewReader(body))
	req = req.WithContext(withCapabilities(req.Context(), caps))
	req = mux.SetURLVars(req, map[string]string{"name": "acme-linter"})
	w := httptest.NewRecorder()

	srv.handlePutTrust(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid entry, got %d body=%s", w.Code, w.Body.String())
	}
	if sup.Store().Has("acme-linter") {
		t.Error("expected invalid entry not to reach the store")
	}
}

// handleListSkills must surface whatever Bootstrap has already published
// into the Skill Registry (an empty registry is a valid, if unexciting,
// response — no plugin has been activated yet in this test's supervisor).
func TestHandleListSkillsViaDirectContext(t *testing.T) {
	srv, _ := newTestServer(t, config.RateLimitConfig{})

	caps := &rbac.ProcessedCapabilities{
		Resources: map[string]rbac.ResourcePermission{resourceTrustStore: {CanRead: true}},
		ExpiresAt: time.Now().Add(time.Hour),
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/skills", nil)
	req = req.WithContext(withCapabilities(req.Context(), caps))
	w := httptest.NewRecorder()

	srv.handleListSkills(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) == "" {
		t.Error("expected a JSON body, even for an empty registry")
	}
}

func TestRateLimiterStoreRejectsBurst(t *testing.T) {
	ls := newLimiterStore(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	l := ls.get("127.0.0.1:1234")

	if !l.Allow() {
		t.Error("expected first request within burst to be allowed")
	}
	if l.Allow() {
		t.Error("expected second immediate request to exceed burst of 1")
	}
}

func TestRateLimiterStorePerAddress(t *testing.T) {
	ls := newLimiterStore(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	a := ls.get("10.0.0.1:1")
	b := ls.get("10.0.0.2:1")

	if !a.Allow() {
		t.Fatal("expected first request from address a to be allowed")
	}
	if !b.Allow() {
		t.Error("expected independent burst allowance for a distinct remote address")
	}
}

