package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	handlers "github.com/de-tools/variance-atlas/pkg/handlers/report"
	atlasmiddleware "github.com/de-tools/variance-atlas/pkg/server/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

type WebAPI struct {
	router          *chi.Mux
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

type Dependencies struct {
	Commentary handlers.Service
	// Runs is optional; without it the ingest runs endpoint reports 404.
	Runs   handlers.RunLister
	Logger zerolog.Logger
}

type Config struct {
	Addr            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

func ConfigureRouter(config Config) *chi.Mux {
	h := handlers.NewHandler(config.Dependencies.Commentary, config.Dependencies.Runs)
	logger := config.Dependencies.Logger

	router := chi.NewRouter()

	router.Use(atlasmiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", atlasmiddleware.RequestIDHeader},
		ExposedHeaders: []string{atlasmiddleware.RequestIDHeader},
		MaxAge:         300,
	}))

	router.Get("/health", h.Health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/reports", h.ListReports)
		r.Route("/reports/{report}", func(r chi.Router) {
			r.Get("/periods", h.GetPeriods)
			r.Get("/summary", h.GetSummary)
			r.Post("/attributions", h.Attribute)
			r.Post("/commentary", h.GenerateCommentary)
			r.Post("/commentary/refresh", h.RefreshCommentary)
		})
		r.Post("/commentary/modify", h.ModifyCommentary)
		r.Post("/ask", h.Ask)
		r.Get("/ingest/runs", h.ListIngestRuns)
	})

	return router
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	config.Dependencies.Logger = logger
	router := ConfigureRouter(config)

	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: timeout,
	}
}

// Start serves until ctx is cancelled, then drains outstanding requests.
func (w *WebAPI) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.shutdownTimeout)
		defer cancel()

		if err := w.server.Shutdown(shutdownCtx); err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			return w.server.Close()
		}
	}

	return nil
}
