// SPDX-License-Identifier: MIT

// Package model defines the persistent record types of the guest journey core.
package model

import (
	"errors"
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a single phase execution.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusAbandoned SessionStatus = "abandoned"
	StatusError     SessionStatus = "error"
)

// IsTerminal returns true if the status is a final state.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusAbandoned, StatusError:
		return true
	}
	return false
}

// Valid reports whether the status is one of the known lifecycle states.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusAbandoned, StatusError:
		return true
	}
	return false
}

// Answer is one captured step answer. Answers are append-only and owned by
// the executing phase while the session is active.
type Answer struct {
	StepID     string    `json:"stepId"`
	Value      string    `json:"value"`
	RecordedAt time.Time `json:"recordedAt"`
}

// CapturedMedia is one media artifact captured during a phase.
type CapturedMedia struct {
	StepID     string    `json:"stepId"`
	Kind       string    `json:"kind"` // "image", "audio", "video"
	URL        string    `json:"url"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Session is the record of one phase execution.
//
// MainSessionID is empty for the anchor (main-phase) session and for
// gate/post sessions that have not been linked yet. Once set it never
// changes.
type Session struct {
	ID            string        `json:"id"`
	ExperienceID  string        `json:"experienceId"`
	MainSessionID string        `json:"mainSessionId,omitempty"`
	Status        SessionStatus `json:"status"`

	Answers       []Answer        `json:"answers,omitempty"`
	CapturedMedia []CapturedMedia `json:"capturedMedia,omitempty"`

	// TransformDispatched marks that the downstream transform pipeline has
	// been triggered for this (anchor) session. At most one dispatch per
	// session.
	TransformDispatched bool `json:"transformDispatched,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

var (
	ErrMissingID           = errors.New("session id is required")
	ErrMissingExperienceID = errors.New("experience id is required")
)

// Validate checks structural invariants on a session record. The store calls
// this on every read and write boundary so that loosely shaped documents
// never enter the core.
func (s *Session) Validate() error {
	if s.ID == "" {
		return ErrMissingID
	}
	if s.ExperienceID == "" {
		return ErrMissingExperienceID
	}
	if !s.Status.Valid() {
		return fmt.Errorf("session %s: invalid status %q", s.ID, s.Status)
	}
	if s.Status == StatusCompleted && s.CompletedAt == nil {
		return fmt.Errorf("session %s: completed without completedAt", s.ID)
	}
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	cp := *s
	if s.Answers != nil {
		cp.Answers = append([]Answer(nil), s.Answers...)
	}
	if s.CapturedMedia != nil {
		cp.CapturedMedia = append([]CapturedMedia(nil), s.CapturedMedia...)
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
