package http

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"go-chemviz-dashboard-ui/internal/config"
	"go-chemviz-dashboard-ui/internal/connectors/chemstats"
	"go-chemviz-dashboard-ui/internal/connectors/prefs"
	"go-chemviz-dashboard-ui/internal/session"
)

// Server wraps the HTTP server, the backend client and session state.
type Server struct {
	httpServer *nethttp.Server
	backend    *chemstats.Client
	prefsStore *prefs.SQLiteStore
	sessions   *session.Registry
	cfg        config.Config
}

// NewServer creates a configured HTTP server with v1 endpoints.
func NewServer(cfg config.Config) (*Server, error) {
	backend := chemstats.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, cfg.BackendRetryMax, cfg.BackendRetryBackoff)

	var prefsStore *prefs.SQLiteStore
	if cfg.PrefsSQLitePath != "" {
		createdStore, err := prefs.NewSQLiteStore(cfg.PrefsSQLitePath)
		if err != nil {
			return nil, err
		}
		prefsStore = createdStore
	}

	sessions := session.NewRegistry()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(observabilityMiddleware)

	r.Get("/", dashboardHandler)
	r.Get("/favicon.ico", faviconHandler)
	r.Method(nethttp.MethodGet, "/metrics", metricsHandler())
	r.Get("/api/v1/metrics/app", appMetricsSummaryHandler())
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", loginHandler(backend, sessions, prefsStore))
		r.Post("/auth/register", registerHandler(backend))
		r.Post("/auth/logout", logoutHandler(sessions, prefsStore))

		r.Get("/state", stateHandler(backend, sessions, prefsStore))
		r.Get("/datasets", historyHandler(backend, sessions))
		r.Post("/datasets", uploadHandler(cfg, backend, sessions, prefsStore))
		r.Post("/datasets/{id}/select", selectDatasetHandler(backend, sessions, prefsStore))
		r.Get("/view", viewHandler(backend, sessions, prefsStore))
		r.Post("/view", viewHandler(backend, sessions, prefsStore))
		r.Get("/charts", chartsHandler(backend, sessions))
		r.Post("/uploads/preflight", preflightHandler(cfg, backend, sessions))
		r.Get("/reports/{id}", reportDownloadHandler(backend, sessions, prefsStore))
		r.Get("/activity", activityHandler(cfg, backend, sessions, prefsStore))

		r.Get("/status/services", servicesStatusHandler(backend, prefsStore, sessions))
		r.Get("/settings/upload-policy", uploadPolicyHandler(cfg))
	})

	httpServer := &nethttp.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		httpServer: httpServer,
		backend:    backend,
		prefsStore: prefsStore,
		sessions:   sessions,
		cfg:        cfg,
	}, nil
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.prefsStore != nil {
		_ = s.prefsStore.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func readyHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ready",
	})
}

func requestIDMiddleware(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: nethttp.StatusOK}
		next.ServeHTTP(rec, r)
		fmt.Printf("%s %s %s %s\n", r.Method, r.URL.Path, strconv.Itoa(rec.status), time.Since(start))
	})
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
