package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/citizenly/autopilot/internal/capability"
	"github.com/citizenly/autopilot/internal/config"
	"github.com/citizenly/autopilot/internal/engine"
	"github.com/citizenly/autopilot/internal/eventbus"
	"github.com/citizenly/autopilot/internal/memory"
	"github.com/citizenly/autopilot/internal/task"
	"github.com/citizenly/autopilot/pkg/cerr"
	"github.com/citizenly/autopilot/pkg/clog"
)

// Server exposes the caller-facing operations as a JSON API. It holds no
// domain logic of its own; handlers translate requests and delegate to the
// engine and the stores.
type Server struct {
	server   *http.Server
	env      *config.Env
	engine   *engine.Engine
	store    *task.Store
	registry *capability.Registry
	memories *memory.Store
	bus      *eventbus.Bus
}

func NewServer(
	env *config.Env,
	eng *engine.Engine,
	store *task.Store,
	registry *capability.Registry,
	memories *memory.Store,
	bus *eventbus.Bus,
) *Server {
	return &Server{
		env:      env,
		engine:   eng,
		store:    store,
		registry: registry,
		memories: memories,
		bus:      bus,
	}
}

// ListenAndServe starts the HTTP server. The provided context is the base
// context for all incoming requests, so cancelling it on shutdown also
// terminates the event stream handlers.
func (s *Server) ListenAndServe(ctx context.Context) error {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		// The event stream writes directly; everything else goes through
		// the JSON response middleware.
		r.Group(func(r chi.Router) {
			r.Use(clog.SlogChiMiddleware())
			r.Get("/events", s.handleEvents)
		})
		r.Group(func(r chi.Router) {
			r.Use(
				clog.SlogChiMiddleware(),
				cerr.NewJSONResponseChiMiddleware(),
			)
			r.Post("/tasks", s.handleCreateTask)
			r.Get("/tasks", s.handleListTasks)
			r.Get("/tasks/{id}", s.handleGetTask)
			r.Post("/tasks/{id}/execute", s.handleExecuteTask)
			r.Post("/tasks/{id}/confirm", s.handleConfirmTask)
			r.Post("/tasks/{id}/cancel", s.handleCancelTask)
			r.Get("/tasks/{id}/audit", s.handleAuditTrail)
			r.Put("/automation/level", s.handleSetAutomationLevel)
			r.Put("/automation/thresholds/{type}", s.handleSetThreshold)
			r.Get("/capabilities", s.handleListCapabilities)
			r.Put("/capabilities/{id}/enabled", s.handleSetCapabilityEnabled)
			r.Get("/memory/{category}", s.handleReadMemory)
			r.Put("/memory/{category}", s.handleMergeMemory)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)

	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(s.apiKeyMiddleware(mux)),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip API key check for the health endpoint.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.Header.Get("Authorization")
			if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
				apiKey = apiKey[7:]
			}
		}
		if apiKey != s.env.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
