// Package adminapi is the HTTP admin transport in front of the Adapter
// Manager: the reload endpoint and a liveness probe. It is deliberately
// thin — routing, auth, and response shaping only — grounded on the
// teacher's gorilla/mux router (internal/api/router.go) and its bearer
// middleware, generalized from API-key/JWT auth down to the single
// bearer-token check the admin surface needs (spec §6).
package adminapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/orbit-project/orbit/internal/adaptermanager"
	"github.com/orbit-project/orbit/internal/config"
	"github.com/orbit-project/orbit/internal/reloadlock"
	logger "github.com/orbit-project/orbit/pkg/logging"
)

const reloadLockKey = "orbit:adapter-reload"

// Server wires the admin HTTP surface to the live adapter catalog and the
// config manager that reconciles it.
type Server struct {
	manager *adaptermanager.Manager
	config  *config.Manager
	locks   *reloadlock.Manager // nil when lock.enabled is false
	admin   config.AdminConfig
	log     *slog.Logger
}

// NewServer builds an admin server. locks may be nil, meaning this replica
// does not coordinate reloads with others.
func NewServer(manager *adaptermanager.Manager, cfgManager *config.Manager, locks *reloadlock.Manager, admin config.AdminConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{manager: manager, config: cfgManager, locks: locks, admin: admin, log: log}
}

// Router builds the mux.Router exposing the admin surface.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(logger.LoggingMiddleware(s.log))

	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	reload := router.PathPrefix("/admin").Subrouter()
	reload.Use(s.authMiddleware)
	reload.HandleFunc("/reload-adapters", s.handleReload).Methods(http.MethodPost)

	return router
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.admin.AuthEnabled {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header || token != s.admin.BearerToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid bearer token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReload implements POST /admin/reload-adapters[?adapter_name=<name>]
// (spec §6). It re-reads config from disk (invalidating the Config
// Manager's TTL cache first) and runs the reload algorithm either for one
// named adapter or the whole catalog.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("adapter_name")

	if s.locks != nil {
		lock, err := s.locks.Acquire(r.Context(), reloadLockKey)
		if err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "reload already in progress on another replica"})
			return
		}
		defer s.locks.Release(r.Context(), reloadLockKey)
		_ = lock
	}

	s.config.Invalidate()
	cfg, err := s.config.Load()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	summary, err := s.manager.Reload(r.Context(), cfg, name)
	if err != nil {
		if _, ok := err.(*adaptermanager.ErrNotFound); ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"summary": summaryJSON(summary)})
}

func summaryJSON(s *adaptermanager.Summary) map[string]interface{} {
	failed := make([]map[string]string, 0, len(s.Failed))
	for _, f := range s.Failed {
		failed = append(failed, map[string]string{"name": f.Name, "reason": f.Reason})
	}
	return map[string]interface{}{
		"added":     s.Added,
		"removed":   s.Removed,
		"updated":   s.Updated,
		"enabled":   s.Enabled,
		"disabled":  s.Disabled,
		"unchanged": s.Unchanged,
		"total":     s.Total,
		"failed":    failed,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
