package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/scry-queue/internal/api/middleware"
)

// RouterConfig holds what NewRouter needs to build the route tree.
type RouterConfig struct {
	Logger *slog.Logger
	Tasks  *TaskHandler

	// Tokens guards the /api routes. Nil leaves them open.
	Tokens apiMiddleware.TokenValidator
}

// NewRouter creates the application router with all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(cfg.Logger))

	r.Route("/api", func(r chi.Router) {
		if cfg.Tokens != nil {
			r.Use(apiMiddleware.NewAuthMiddleware(cfg.Tokens).Authenticate)
		}

		r.Post("/tasks/{type}", cfg.Tasks.CreateTask)
		r.Get("/task-types", cfg.Tasks.ListTaskTypes)
		r.Get("/channels", cfg.Tasks.ListChannels)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			cfg.Logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
