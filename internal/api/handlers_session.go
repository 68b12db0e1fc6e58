// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guestflow/guestflow/internal/journey/flow"
	"github.com/guestflow/guestflow/internal/journey/model"
)

type answerRequest struct {
	StepID string `json:"stepId"`
	Value  string `json:"value"`
}

// handleAppendAnswer records one step answer on an active session. The
// executing phase owns its session's answers; completed sessions reject
// further writes.
func (s *Server) handleAppendAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.Sessions.AppendAnswer(r.Context(), chi.URLParam(r, "sessionID"), model.Answer{
		StepID:     req.StepID,
		Value:      req.Value,
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type mediaRequest struct {
	StepID string `json:"stepId"`
	Kind   string `json:"kind"`
	URL    string `json:"url"`
}

func (s *Server) handleAppendMedia(w http.ResponseWriter, r *http.Request) {
	var req mediaRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.Sessions.AppendMedia(r.Context(), chi.URLParam(r, "sessionID"), model.CapturedMedia{
		StepID:     req.StepID,
		Kind:       req.Kind,
		URL:        req.URL,
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type abandonRequest struct {
	Phase string `json:"phase,omitempty"`
}

// handleAbandon marks a session abandoned. The phase label is advisory and
// only feeds metrics.
func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	var req abandonRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	phase := flow.State(req.Phase)
	if !phase.Valid() {
		phase = flow.StateMain
	}
	sess, err := s.Orchestrator.Abandon(r.Context(), phase, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleGetSession returns one session document.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
