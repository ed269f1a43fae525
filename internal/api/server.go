// SPDX-License-Identifier: MIT

// Package api exposes the tenant-facing HTTP surface of the control plane.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/orionhq/orion/internal/alloc"
	"github.com/orionhq/orion/internal/auth"
	"github.com/orionhq/orion/internal/catalog"
	"github.com/orionhq/orion/internal/log"
)

// authRateLimit bounds credential-guessing on the auth endpoints, per IP.
const (
	authRateLimit  = 20
	authRateWindow = time.Minute
)

// Server carries the handler dependencies.
type Server struct {
	alloc  *alloc.Service
	cat    catalog.Catalog
	issuer *auth.Issuer
	logger zerolog.Logger
}

// New builds the API server.
func New(allocSvc *alloc.Service, cat catalog.Catalog, issuer *auth.Issuer) *Server {
	return &Server{
		alloc:  allocSvc,
		cat:    cat,
		issuer: issuer,
		logger: log.WithComponent("api"),
	}
}

// Router assembles the route tree with the canonical middleware stack.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(requestID)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(authRateLimit, authRateWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
	})

	// Worker self-registration is unauthenticated: agents run before any
	// tenant exists and the endpoint is idempotent.
	r.Post("/api/workers/register", s.handleRegisterWorker)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/api/rent", s.handleRent)
		r.Post("/api/release/{id}", s.handleRelease)
		r.Post("/api/extend/{id}", s.handleExtend)
		r.Get("/api/nodes", s.handleListNodes)
		r.Get("/api/leases/{id}/secret", s.handleLeaseSecret)
		r.Post("/api/reset", s.handleReset)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
