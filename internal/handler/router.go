package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Events    *service.EventService
	Users     *service.UserService
	Store     Pinger
	Security  config.SecurityConfig
	StaticDir string
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	events := NewEventHandler(cfg.Events)
	users := NewUserHandler(cfg.Users)
	limit := RateLimit(cfg.Security)

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(RequestID)               // request + correlation IDs into the log context
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(Logger)                  // structured access log
	r.Use(Metrics)                 // prometheus request metrics
	r.Use(CORS(cfg.Security))

	r.Get("/health", HealthCheck(cfg.Store))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/users", func(r chi.Router) {
		r.With(limit).Post("/", users.CreateUser)
		r.Get("/{id}", users.GetUser)
		r.Get("/{id}/registrations", users.ListRegistrations)
	})
	r.Get("/dashboard/{id}/registrations", users.ListRegistrations)

	r.Route("/events", func(r chi.Router) {
		r.With(limit).Post("/", events.CreateEvent)
		r.Get("/", events.ListEvents)
		r.Get("/{id}", events.GetEvent)
		r.With(limit).Post("/{id}/register", events.Register)
		r.Get("/{id}/registrations", events.ListRegistrations)
	})

	r.Route("/tickets", func(r chi.Router) {
		r.Use(limit)
		r.Post("/scan", events.ScanCredential)
		r.Post("/{ticketId}/validate", events.ValidateTicket)
	})

	// Optional static frontend served at the root.
	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}

// HealthCheck handles GET /health
// Reports 200 while the store answers a ping, 503 otherwise.
func HealthCheck(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
