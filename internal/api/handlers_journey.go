// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// decodeBody decodes a JSON request body into v, tolerating an empty body
// for requests whose parameters are all optional or URL-carried.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// queryFallback fills dst from the named query parameter when the body did
// not carry the value. Phase context rides in the URL (?experience=,
// ?gate=, ?session=) so deep links and refreshes keep working.
func queryFallback(r *http.Request, dst *string, param string) {
	if *dst == "" {
		*dst = r.URL.Query().Get(param)
	}
}

// welcomeResponse lists the runnable main experiences a guest can choose
// from, with per-experience completion state for the client to render.
type welcomeResponse struct {
	ProjectID   string             `json:"projectId"`
	Experiences []welcomeEntry     `json:"experiences"`
	Guest       welcomeGuestStatus `json:"guest"`
}

type welcomeEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Completed bool   `json:"completed"`
}

type welcomeGuestStatus struct {
	ID          string `json:"id"`
	Completions int    `json:"completions"`
}

// handleWelcome renders the entry screen data. Direct entry here is always
// valid; Welcome is the recovery target for every broken deep link.
func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	guest := guestFrom(r.Context())

	resp := welcomeResponse{
		ProjectID: s.ProjectID,
		Guest:     welcomeGuestStatus{ID: guest.ID, Completions: len(guest.CompletedExperiences)},
	}
	for _, ref := range s.Orchestrator.Catalog.Phases().Main {
		if !ref.Enabled || ref.ExperienceID == "" {
			continue
		}
		exp, err := s.Orchestrator.Catalog.Experience(r.Context(), ref.ExperienceID)
		if err != nil || !exp.Runnable() {
			continue
		}
		resp.Experiences = append(resp.Experiences, welcomeEntry{
			ID:        exp.ID,
			Name:      exp.Name,
			Completed: guest.HasCompleted(exp.ID),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type selectRequest struct {
	ExperienceID string `json:"experienceId"`
}

// handleSelect is the Welcome-screen choice. The response's navigate
// instruction tells the client whether the journey detours through Gate.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Orchestrator.Select(r.Context(), guestFrom(r.Context()), req.ExperienceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type gateEnterRequest struct {
	ExperienceID string `json:"experienceId"`
	ResumeID     string `json:"resumeId,omitempty"`
}

func (s *Server) handleGateEnter(w http.ResponseWriter, r *http.Request) {
	var req gateEnterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	queryFallback(r, &req.ExperienceID, "experience")
	queryFallback(r, &req.ResumeID, "session")
	res, err := s.Orchestrator.EnterGate(r.Context(), guestFrom(r.Context()), req.ExperienceID, req.ResumeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type gateCompleteRequest struct {
	SessionID    string `json:"sessionId"`
	ExperienceID string `json:"experienceId"`
}

func (s *Server) handleGateComplete(w http.ResponseWriter, r *http.Request) {
	var req gateCompleteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Orchestrator.CompleteGate(r.Context(), guestFrom(r.Context()), req.SessionID, req.ExperienceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type mainEnterRequest struct {
	ExperienceID  string `json:"experienceId"`
	GateSessionID string `json:"gateSessionId,omitempty"`
	ResumeID      string `json:"resumeId,omitempty"`
}

func (s *Server) handleMainEnter(w http.ResponseWriter, r *http.Request) {
	var req mainEnterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	queryFallback(r, &req.ExperienceID, "experience")
	queryFallback(r, &req.GateSessionID, "gate")
	queryFallback(r, &req.ResumeID, "session")
	res, err := s.Orchestrator.EnterMain(r.Context(), guestFrom(r.Context()), req.ExperienceID, req.GateSessionID, req.ResumeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type mainCompleteRequest struct {
	SessionID string `json:"sessionId"`
	StepID    string `json:"stepId,omitempty"`
}

func (s *Server) handleMainComplete(w http.ResponseWriter, r *http.Request) {
	var req mainCompleteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Orchestrator.CompleteMain(r.Context(), guestFrom(r.Context()), req.SessionID, req.StepID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type postEnterRequest struct {
	AnchorID string `json:"anchorId"`
	ResumeID string `json:"resumeId,omitempty"`
}

func (s *Server) handlePostEnter(w http.ResponseWriter, r *http.Request) {
	var req postEnterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	queryFallback(r, &req.AnchorID, "session")
	res, err := s.Orchestrator.EnterPost(r.Context(), guestFrom(r.Context()), req.AnchorID, req.ResumeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type postCompleteRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handlePostComplete(w http.ResponseWriter, r *http.Request) {
	var req postCompleteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Orchestrator.CompletePost(r.Context(), guestFrom(r.Context()), req.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleShare reads the terminal screen. An invalid anchor id is not an
// error; the response carries the redirect instead.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	anchorID := chi.URLParam(r, "anchorID")
	queryFallback(r, &anchorID, "session")
	view, nav, err := s.Orchestrator.Share(r.Context(), anchorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if nav != nil {
		writeJSON(w, http.StatusOK, map[string]any{"navigate": nav})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": view})
}
