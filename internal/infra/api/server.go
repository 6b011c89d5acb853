// File: internal/infra/api/server.go
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"expert-assistant/internal/config"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/domain/ports/repository"
	"expert-assistant/internal/persona"
	"expert-assistant/internal/usecase"
)

// PersonaDirectory is satisfied by *persona.Catalog.
type PersonaDirectory interface {
	Resolve(mode model.Mode) persona.Persona
	Personas() []persona.Persona
}

type Option func(*Server)

func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func WithRateLimiter(l Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// Server exposes the session registry over JSON/HTTP.
type Server struct {
	registry usecase.SessionRegistry
	personas PersonaDirectory
	creds    repository.CredentialStore
	auth     *ClientAuth
	limiter  Limiter
	metrics  http.Handler
	log      *zerolog.Logger

	defaultMode    model.Mode
	requestTimeout time.Duration
	httpSrv        *http.Server
}

func NewServer(
	cfg config.ServerConfig,
	defaultMode model.Mode,
	registry usecase.SessionRegistry,
	personas PersonaDirectory,
	creds repository.CredentialStore,
	auth *ClientAuth,
	logger *zerolog.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		registry:       registry,
		personas:       personas,
		creds:          creds,
		auth:           auth,
		log:            logger,
		defaultMode:    defaultMode,
		requestTimeout: cfg.RequestTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "live_sessions": s.registry.Len()})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Identify(s.log))
		if s.requestTimeout > 0 {
			r.Use(Timeout(s.requestTimeout))
		}

		r.Get("/personas", s.handlePersonas)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.With(RateLimit(s.limiter, s.log)).Post("/messages", s.handleSend)
				r.With(RateLimit(s.limiter, s.log)).Post("/retry", s.handleRetry)
				r.Post("/mode", s.handleSwitchMode)
				r.Post("/clear", s.handleClear)
			})
		})

		r.Put("/settings/api-key", s.handlePutAPIKey)
		r.Delete("/settings/api-key", s.handleDeleteAPIKey)
	})
	return r
}

func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
