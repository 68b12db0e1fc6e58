// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guestflow/guestflow/internal/journey/model"
)

// Guests layers the completion-ledger operations over a raw Store.
type Guests struct {
	store Store
	now   func() time.Time
}

func NewGuests(s Store) *Guests {
	return &Guests{store: s, now: time.Now}
}

// WithClock overrides the time source; tests only.
func (g *Guests) WithClock(now func() time.Time) *Guests {
	g.now = now
	return g
}

// GetOrCreate resolves the guest for an anonymous credential within a
// project, creating the record on first visit.
func (g *Guests) GetOrCreate(ctx context.Context, projectID, credential string) (*model.Guest, error) {
	if projectID == "" || credential == "" {
		return nil, fmt.Errorf("guest identity requires project id and credential")
	}
	existing, err := g.store.GetGuestByCredential(ctx, projectID, credential)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := g.now().UTC()
	rec := &model.Guest{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Credential: credential,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := g.store.PutGuest(ctx, rec); err != nil {
		return nil, fmt.Errorf("create guest: %w", err)
	}
	return rec, nil
}

// Get returns the guest or ErrGuestNotFound.
func (g *Guests) Get(ctx context.Context, id string) (*model.Guest, error) {
	rec, err := g.store.GetGuest(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrGuestNotFound, id)
	}
	return rec, nil
}

// RecordCompletion appends one entry to the guest's completion ledger. The
// ledger is append-only; duplicate experience ids are allowed and the most
// recent entry wins for skip logic. Callers must sequence this strictly
// after the session's own completion succeeds.
func (g *Guests) RecordCompletion(ctx context.Context, guestID, experienceID, sessionID string) (*model.Guest, error) {
	if experienceID == "" || sessionID == "" {
		return nil, fmt.Errorf("record completion: experience id and session id are required")
	}
	return g.store.UpdateGuest(ctx, guestID, func(rec *model.Guest) error {
		now := g.now().UTC()
		rec.CompletedExperiences = append(rec.CompletedExperiences, model.CompletionEntry{
			ExperienceID: experienceID,
			SessionID:    sessionID,
			CompletedAt:  now,
		})
		rec.UpdatedAt = now
		return nil
	})
}
