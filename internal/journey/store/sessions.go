// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guestflow/guestflow/internal/journey/model"
)

// Sessions layers the domain session operations over a raw Store.
type Sessions struct {
	store Store
	now   func() time.Time
}

func NewSessions(s Store) *Sessions {
	return &Sessions{store: s, now: time.Now}
}

// WithClock overrides the time source; tests only.
func (s *Sessions) WithClock(now func() time.Time) *Sessions {
	s.now = now
	return s
}

// Create creates a new active session, or resumes an existing one when the
// calling route was re-entered with a session id already present (refresh,
// return-later URL). Resumption returns the stored record with its
// persisted answers and media intact; it never creates a duplicate. Only an
// active session running the same experience is resumable: a terminal id or
// one from a different phase in a stale URL falls through to a fresh
// session.
func (s *Sessions) Create(ctx context.Context, experienceID, mainSessionID, resumeID string) (*model.Session, bool, error) {
	if resumeID != "" {
		existing, err := s.store.GetSession(ctx, resumeID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil && existing.Status == model.StatusActive && existing.ExperienceID == experienceID {
			return existing, true, nil
		}
	}

	now := s.now().UTC()
	rec := &model.Session{
		ID:            uuid.NewString(),
		ExperienceID:  experienceID,
		MainSessionID: mainSessionID,
		Status:        model.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.PutSession(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("create session: %w", err)
	}
	return rec, false, nil
}

// Get returns the session or ErrSessionNotFound.
func (s *Sessions) Get(ctx context.Context, id string) (*model.Session, error) {
	rec, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return rec, nil
}

func (s *Sessions) applyEvent(ctx context.Context, id string, ev model.EventKind) (*model.Session, error) {
	return s.store.UpdateSession(ctx, id, func(rec *model.Session) error {
		tr, ok := model.TransitionFor(rec.Status, ev)
		if !ok {
			return fmt.Errorf("%w: %s is %s, cannot %s", ErrNotActive, rec.ID, rec.Status, ev)
		}
		model.ApplyTransition(rec, tr, s.now().UTC())
		return nil
	})
}

// Complete transitions active → completed and stamps completedAt. A session
// that is not active fails loudly; completion is at-most-once.
func (s *Sessions) Complete(ctx context.Context, id string) (*model.Session, error) {
	return s.applyEvent(ctx, id, model.EvComplete)
}

// Abandon transitions active → abandoned.
func (s *Sessions) Abandon(ctx context.Context, id string) (*model.Session, error) {
	return s.applyEvent(ctx, id, model.EvAbandon)
}

// Fail transitions active → error.
func (s *Sessions) Fail(ctx context.Context, id string) (*model.Session, error) {
	return s.applyEvent(ctx, id, model.EvFail)
}

// LinkToMain sets the anchor back-reference on a non-anchor session. The
// link is write-once: re-linking with the same anchor is a no-op, a
// different anchor is ErrLinkConflict. The anchor session must exist.
func (s *Sessions) LinkToMain(ctx context.Context, id, mainID string) error {
	if mainID == "" {
		return fmt.Errorf("link session %s: empty main session id", id)
	}
	anchor, err := s.store.GetSession(ctx, mainID)
	if err != nil {
		return err
	}
	if anchor == nil {
		return fmt.Errorf("%w: %s", ErrAnchorNotFound, mainID)
	}
	_, err = s.store.UpdateSession(ctx, id, func(rec *model.Session) error {
		switch rec.MainSessionID {
		case "":
			rec.MainSessionID = mainID
			rec.UpdatedAt = s.now().UTC()
			return nil
		case mainID:
			return nil // idempotent re-link
		default:
			return fmt.Errorf("%w: %s is linked to %s, refusing %s", ErrLinkConflict, id, rec.MainSessionID, mainID)
		}
	})
	return err
}

// AppendAnswer appends one answer to an active session.
func (s *Sessions) AppendAnswer(ctx context.Context, id string, a model.Answer) (*model.Session, error) {
	return s.store.UpdateSession(ctx, id, func(rec *model.Session) error {
		if rec.Status != model.StatusActive {
			return fmt.Errorf("%w: %s is %s", ErrNotActive, rec.ID, rec.Status)
		}
		if a.RecordedAt.IsZero() {
			a.RecordedAt = s.now().UTC()
		}
		rec.Answers = append(rec.Answers, a)
		rec.UpdatedAt = s.now().UTC()
		return nil
	})
}

// AppendMedia appends one captured media artifact to an active session.
func (s *Sessions) AppendMedia(ctx context.Context, id string, m model.CapturedMedia) (*model.Session, error) {
	return s.store.UpdateSession(ctx, id, func(rec *model.Session) error {
		if rec.Status != model.StatusActive {
			return fmt.Errorf("%w: %s is %s", ErrNotActive, rec.ID, rec.Status)
		}
		if m.RecordedAt.IsZero() {
			m.RecordedAt = s.now().UTC()
		}
		rec.CapturedMedia = append(rec.CapturedMedia, m)
		rec.UpdatedAt = s.now().UTC()
		return nil
	})
}

// MarkTransformDispatched flips the at-most-once dispatch flag on a
// completed anchor session. The second call returns ErrAlreadyDispatched,
// which is how the caller enforces the trigger idempotency contract.
func (s *Sessions) MarkTransformDispatched(ctx context.Context, id string) error {
	_, err := s.store.UpdateSession(ctx, id, func(rec *model.Session) error {
		if rec.Status != model.StatusCompleted {
			return fmt.Errorf("%w: %s is %s, transform requires completion", ErrNotActive, rec.ID, rec.Status)
		}
		if rec.TransformDispatched {
			return fmt.Errorf("%w: %s", ErrAlreadyDispatched, rec.ID)
		}
		rec.TransformDispatched = true
		rec.UpdatedAt = s.now().UTC()
		return nil
	})
	return err
}

// ByMain returns all sessions linked to the given anchor.
func (s *Sessions) ByMain(ctx context.Context, mainID string) ([]*model.Session, error) {
	return s.store.SessionsByMain(ctx, mainID)
}
