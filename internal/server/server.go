// Package server exposes the tracker registry over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"wheel-tracker/internal/logging"
	"wheel-tracker/internal/metrics"
	"wheel-tracker/internal/tracker"
)

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server routes API requests to the tracker of the requested mode.
type Server struct {
	cfg      Config
	registry *tracker.Registry
	logger   zerolog.Logger
	router   chi.Router
}

// New builds the router.
func New(cfg Config, registry *tracker.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   logger.With().Str("component", "server").Logger(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/{mode}", func(r chi.Router) {
		r.Use(s.withTracker)

		r.Get("/events", s.listEvents)
		r.Post("/events", s.recordEvent)
		r.Get("/events/{id}", s.getEvent)
		r.Get("/export.csv", s.exportCSV)

		r.Get("/positions", s.listPositions)
		r.Get("/positions/{ticker}", s.getPosition)
		r.Get("/legs/open", s.openLegs)

		r.Get("/premium", s.premiumSummary)
		r.Get("/income", s.income)
		r.Get("/tickers", s.tickerTotals)
		r.Get("/top", s.topPerformers)

		r.Get("/rankings", s.rankings)
		r.Get("/value", s.portfolioValue)
		r.Get("/snapshot", s.snapshot)
	})
	return r
}

// requestLogger puts a request-scoped logger on the context and logs each
// request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), logger)))

		event := logger.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
