// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the guestflow daemon: the guest
// journey endpoints, the operator API, and the health and metrics probes.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guestflow/guestflow/internal/api/middleware"
	"github.com/guestflow/guestflow/internal/health"
	"github.com/guestflow/guestflow/internal/journey/orchestrator"
	"github.com/guestflow/guestflow/internal/journey/store"
	xglog "github.com/guestflow/guestflow/internal/log"
)

// Server hosts the journey HTTP API.
type Server struct {
	ProjectID    string
	AdminToken   string
	Orchestrator *orchestrator.Orchestrator
	Sessions     *store.Sessions
	Guests       *store.Guests
	Health       *health.Manager

	// RateLimit is requests per client per minute. Zero disables.
	RateLimit int

	httpServer *http.Server
}

// Router builds the full route tree with the canonical middleware stack.
func (s *Server) Router() *chi.Mux {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: "guestflow",
		EnableLogging:  true,
		RateLimit:      s.RateLimit,
	})

	// Probes bypass guest resolution.
	if s.Health != nil {
		r.Get("/healthz", s.Health.ServeHealth)
		r.Get("/readyz", s.Health.ServeReady)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/journey", func(r chi.Router) {
		r.Use(s.withGuest)

		r.Get("/welcome", s.handleWelcome)
		r.Post("/select", s.handleSelect)

		r.Post("/gate/enter", s.handleGateEnter)
		r.Post("/gate/complete", s.handleGateComplete)
		r.Post("/main/enter", s.handleMainEnter)
		r.Post("/main/complete", s.handleMainComplete)
		r.Post("/post/enter", s.handlePostEnter)
		r.Post("/post/complete", s.handlePostComplete)

		r.Get("/share", s.handleShare) // ?session={anchorID}
		r.Get("/share/{anchorID}", s.handleShare)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/answers", s.handleAppendAnswer)
			r.Post("/media", s.handleAppendMedia)
			r.Post("/abandon", s.handleAbandon)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.adminAuth)

		r.Get("/guests/{guestID}", s.handleAdminGetGuest)
		r.Get("/experiences", s.handleAdminListExperiences)
		r.Get("/catalog", s.handleAdminGetCatalog)
		r.Post("/catalog/reload", s.handleAdminReloadCatalog)
		r.Put("/catalog", s.handleAdminSaveCatalog)
	})

	return r
}

// Start begins serving on addr and blocks until the listener fails or the
// server is shut down.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	alog := xglog.WithComponent("api")
	alog.Info().Str("addr", addr).Msg("http server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
