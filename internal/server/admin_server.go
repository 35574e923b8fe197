// Package server implements SPEC_FULL.md §6.1's admin HTTP API: a small
// gorilla/mux-routed surface letting operators and tooling inspect and
// manage the trust store out-of-band from the host CLI, fronted by
// JWT/RBAC authentication and per-remote-address rate limiting.
//
// This auth layer gates API access to the trust store's management
// surface; it is a wholly separate authorization question from the
// Permission Bridge's plugin-capability decision (pkg/permission stays
// pure and is reached only through the already-loaded in-memory
// supervisor, never directly over HTTP).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/vellum-dev/vellum/pkg/capability"
	"github.com/vellum-dev/vellum/pkg/config"
	"github.com/vellum-dev/vellum/pkg/discovery"
	"github.com/vellum-dev/vellum/pkg/health"
	"github.com/vellum-dev/vellum/pkg/identity"
	"github.com/vellum-dev/vellum/pkg/logging"
	"github.com/vellum-dev/vellum/pkg/metrics"
	"github.com/vellum-dev/vellum/pkg/rbac"
	"github.com/vellum-dev/vellum/pkg/supervisor"
	"github.com/vellum-dev/vellum/pkg/trust"
)

const resourceTrustStore = "trust-store"

// AdminServer hosts the routes named in SPEC_FULL.md §6.1 over a shared
// Supervisor instance.
type AdminServer struct {
	cfg        config.ServerConfig
	supervisor *supervisor.Supervisor
	rbac       *rbac.Engine
	healthMgr  *health.HealthManager
	logger     logging.Logger
	metrics    metrics.Metrics
	limiters   *limiterStore

	httpServer *http.Server
}

// NewAdminServer constructs an AdminServer. rbacEngine may be nil only in
// tests that exercise unauthenticated routes.
func NewAdminServer(cfg config.ServerConfig, sup *supervisor.Supervisor, rbacEngine *rbac.Engine, healthMgr *health.HealthManager, logger logging.Logger, m metrics.Metrics) *AdminServer {
	return &AdminServer{
		cfg:        cfg,
		supervisor: sup,
		rbac:       rbacEngine,
		healthMgr:  healthMgr,
		logger:     logger.WithComponent("admin_server"),
		metrics:    m,
		limiters:   newLimiterStore(cfg.RateLimit),
	}
}

// Router builds the mux.Router serving every admin API route.
func (s *AdminServer) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	if s.cfg.RateLimit.Enabled {
		v1.Use(s.rateLimitMiddleware)
	}
	v1.Use(s.authMiddleware)

	v1.HandleFunc("/trust", s.handleListTrust).Methods(http.MethodGet)
	v1.HandleFunc("/trust/{name}", s.handleGetTrust).Methods(http.MethodGet)
	v1.HandleFunc("/trust/{name}", s.handlePutTrust).Methods(http.MethodPut)
	v1.HandleFunc("/trust/{name}", s.handleDeleteTrust).Methods(http.MethodDelete)
	v1.HandleFunc("/check", s.handleCheck).Methods(http.MethodPost)
	v1.HandleFunc("/discover", s.handleDiscover).Methods(http.MethodPost)
	v1.HandleFunc("/skills", s.handleListSkills).Methods(http.MethodGet)

	return router
}

// Start runs the Supervisor's bootstrap pass, then serves the admin API
// until ctx is cancelled, at which point it shuts down gracefully within
// the configured ShutdownTimeout.
func (s *AdminServer) Start(ctx context.Context) error {
	if _, err := s.supervisor.Bootstrap(ctx); err != nil {
		return fmt.Errorf("supervisor bootstrap failed: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("admin_server_starting", "address", addr, "tls_enabled", s.cfg.TLS.Enabled)

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	s.logger.Info("admin_server_started", "address", addr)

	select {
	case <-ctx.Done():
		s.logger.Info("admin_server_stopping", "reason", "context_cancelled")
		return s.Stop()
	case err := <-errChan:
		s.logger.Error("admin_server_error", "error", err.Error())
		return err
	}
}

// Stop gracefully shuts down the HTTP listener within the configured
// ShutdownTimeout.
func (s *AdminServer) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h := s.healthMgr.GetQuickHealth()
	status := http.StatusOK
	if h.Status != health.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// authMiddleware requires a bearer JWT on every /v1 route, resolves it
// through RBAC, and stashes the resolved capabilities in the request
// context for handlers to consult.
func (s *AdminServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rbac == nil {
			writeError(w, http.StatusInternalServerError, "rbac engine not configured")
			return
		}

		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token := strings.TrimPrefix(header, prefix)

		caps, err := s.rbac.ProcessToken(token)
		if err != nil {
			s.logger.Warn("admin_auth_rejected", "error", err.Error(), "remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if !caps.IsValid() {
			writeError(w, http.StatusUnauthorized, "token capabilities expired")
			return
		}

		r = r.WithContext(withCapabilities(r.Context(), caps))
		next.ServeHTTP(w, r)
	})
}

func (s *AdminServer) requirePermission(w http.ResponseWriter, r *http.Request, action string) bool {
	caps := capabilitiesFromContext(r.Context())
	if caps == nil || !caps.HasPermission(resourceTrustStore, action) {
		writeError(w, http.StatusForbidden, "caller lacks "+action+" permission on "+resourceTrustStore)
		return false
	}
	return true
}

func (s *AdminServer) handleListTrust(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, "read") {
		return
	}
	writeJSON(w, http.StatusOK, s.supervisor.Store().List())
}

func (s *AdminServer) handleGetTrust(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, "read") {
		return
	}
	name := mux.Vars(r)["name"]
	entry, ok := s.supervisor.Store().Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "no trust entry for "+name)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *AdminServer) handlePutTrust(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, "write") {
		return
	}
	name := mux.Vars(r)["name"]

	var entry trust.TrustedPlugin
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "malformed trust entry: "+err.Error())
		return
	}
	entry.PluginName = name

	if err := s.supervisor.Store().Set(entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid trust entry: "+err.Error())
		return
	}
	if err := s.supervisor.Store().Save(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist trust store: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *AdminServer) handleDeleteTrust(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, "write") {
		return
	}
	name := mux.Vars(r)["name"]
	existed := s.supervisor.Store().Delete(name)
	if err := s.supervisor.Store().Save(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist trust store: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"existed": existed})
}

type checkRequest struct {
	Plugin      string `json:"plugin"`
	Operation   string `json:"operation"`
	Fingerprint string `json:"fingerprint"`
}

func (s *AdminServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, "read") {
		return
	}

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed check request: "+err.Error())
		return
	}

	op := capability.Operation{Kind: capability.OperationKind(req.Operation)}
	decision := s.supervisor.Check(req.Plugin, identity.ContentFingerprint(req.Fingerprint), op)
	writeJSON(w, http.StatusOK, decision)
}

// handleListSkills exposes C5's registry — populated once, at bootstrap,
// from every activated plugin's declared skill artifacts — for operators
// and tooling inspecting what a plugin contributed.
func (s *AdminServer) handleListSkills(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, "read") {
		return
	}
	writeJSON(w, http.StatusOK, s.supervisor.Skills().All())
}

func (s *AdminServer) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, "execute") {
		return
	}

	scanner := discovery.New(s.logger)
	found := scanner.Discover(s.supervisor.Config().DiscoveryRoots)
	writeJSON(w, http.StatusOK, found)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// rateLimitMiddleware enforces a golang.org/x/time/rate token bucket per
// remote address.
func (s *AdminServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := s.limiters.get(r.RemoteAddr)
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type limiterStore struct {
	mu       sync.Mutex
	cfg      config.RateLimitConfig
	limiters map[string]*rate.Limiter
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	return &limiterStore{cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

func (ls *limiterStore) get(remoteAddr string) *rate.Limiter {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	l, ok := ls.limiters[remoteAddr]
	if !ok {
		l = rate.NewLimiter(rate.Limit(ls.cfg.RequestsPerSecond), ls.cfg.Burst)
		ls.limiters[remoteAddr] = l
	}
	return l
}

