package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/runway-sim/internal/config"
	"github.com/yegors/runway-sim/internal/storage/sqlite"
	"github.com/yegors/runway-sim/internal/trials"
	"github.com/yegors/runway-sim/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router. storage may be nil.
func NewRouter(runner *trials.Runner, storage *sqlite.RunStorage, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(runner, storage, config, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/health", r.handler.GetHealth)
		router.Get("/config", r.handler.GetConfig)

		// Trial batches
		router.Post("/runs", r.handler.CreateRun)
		router.Get("/runs", r.handler.GetRuns)
		router.Get("/runs/{id}", r.handler.GetRun)
		router.Get("/runs/{id}/trials", r.handler.GetRunTrials)
		router.Delete("/runs/{id}", r.handler.DeleteRun)

		// Frame-by-frame event stream of a single trial
		router.Get("/trials/stream", r.handler.StreamTrial)
	})

	return router
}
