// SPDX-License-Identifier: MIT

// Package store persists session and guest records. The Store interface is
// the raw document boundary: get/put/update per record plus the one
// query-by-field the core needs (all sessions linked to an anchor). The
// Sessions and Guests types layer the domain operations on top.
package store

import (
	"context"
	"fmt"

	"github.com/guestflow/guestflow/internal/journey/model"
)

// Store is the backing document store. Implementations must provide
// per-document atomic read-modify-write via UpdateSession/UpdateGuest.
type Store interface {
	PutSession(ctx context.Context, rec *model.Session) error
	// GetSession returns (nil, nil) when the id does not resolve.
	GetSession(ctx context.Context, id string) (*model.Session, error)
	// UpdateSession applies fn to the stored record atomically and persists
	// the result. Returns ErrSessionNotFound when the id does not resolve.
	UpdateSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error)
	// SessionsByMain returns all sessions whose MainSessionID equals mainID.
	SessionsByMain(ctx context.Context, mainID string) ([]*model.Session, error)

	PutExperience(ctx context.Context, rec *model.Experience) error
	// GetExperience returns (nil, nil) when the id does not resolve.
	GetExperience(ctx context.Context, id string) (*model.Experience, error)
	ListExperiences(ctx context.Context) ([]*model.Experience, error)

	PutGuest(ctx context.Context, rec *model.Guest) error
	// GetGuest returns (nil, nil) when the id does not resolve.
	GetGuest(ctx context.Context, id string) (*model.Guest, error)
	// GetGuestByCredential returns (nil, nil) when no guest exists for the
	// given project/credential pair.
	GetGuestByCredential(ctx context.Context, projectID, credential string) (*model.Guest, error)
	UpdateGuest(ctx context.Context, id string, fn func(*model.Guest) error) (*model.Guest, error)

	Close() error
}

// Open creates a Store for the configured backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		return OpenBadgerStore(path)
	case "sqlite":
		return OpenSqliteStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
