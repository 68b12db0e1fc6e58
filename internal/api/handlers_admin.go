// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guestflow/guestflow/internal/catalog"
	xglog "github.com/guestflow/guestflow/internal/log"
)

// Operator endpoints. These are not part of the guest journey surface and
// sit behind the admin token when one is configured.

func (s *Server) handleAdminGetGuest(w http.ResponseWriter, r *http.Request) {
	guest, err := s.Guests.Get(r.Context(), chi.URLParam(r, "guestID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, guest)
}

func (s *Server) handleAdminListExperiences(w http.ResponseWriter, r *http.Request) {
	exps, err := s.Orchestrator.Catalog.List(r.Context())
	if err != nil {
		writeInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiences": exps})
}

func (s *Server) handleAdminGetCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Orchestrator.Catalog.Current())
}

// handleAdminReloadCatalog forces a snapshot reload outside the file
// watcher, for deployments where the snapshot is replaced in place.
func (s *Server) handleAdminReloadCatalog(w http.ResponseWriter, r *http.Request) {
	if err := s.Orchestrator.Catalog.Reload(r.Context()); err != nil {
		alog := xglog.WithComponentFromContext(r.Context(), "api")
		alog.Error().Err(err).
			Msg("catalog reload failed")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// handleAdminSaveCatalog publishes a new snapshot atomically and applies it.
func (s *Server) handleAdminSaveCatalog(w http.ResponseWriter, r *http.Request) {
	var snap catalog.Snapshot
	if err := decodeBody(r, &snap); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Orchestrator.Catalog.Save(r.Context(), snap); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "published"})
}

// adminAuth guards operator routes with a bearer token. An empty
// configured token disables the admin surface entirely rather than leaving
// it open.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminToken == "" {
			writeNotFound(w)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.AdminToken {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
