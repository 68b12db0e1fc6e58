// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sync"

	"github.com/guestflow/guestflow/internal/journey/model"
)

// MemoryStore is an in-memory Store intended for tests and local iteration.
// Not durable; not suitable for production.
type MemoryStore struct {
	mu sync.RWMutex

	sessions    map[string]*model.Session
	guests      map[string]*model.Guest
	experiences map[string]*model.Experience

	// projectID + "\x00" + credential -> guestID
	credentials map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*model.Session),
		guests:      make(map[string]*model.Guest),
		experiences: make(map[string]*model.Experience),
		credentials: make(map[string]string),
	}
}

func (m *MemoryStore) Close() error { return nil }

func credentialKey(projectID, credential string) string {
	return projectID + "\x00" + credential
}

func (m *MemoryStore) PutSession(ctx context.Context, rec *model.Session) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[rec.ID] = rec.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	rec, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cpy := rec.Clone()
	if err := fn(cpy); err != nil {
		return nil, err
	}
	if err := cpy.Validate(); err != nil {
		return nil, err
	}
	m.sessions[id] = cpy
	return cpy.Clone(), nil
}

func (m *MemoryStore) SessionsByMain(ctx context.Context, mainID string) ([]*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []*model.Session
	for _, rec := range m.sessions {
		if rec.MainSessionID == mainID && mainID != "" {
			list = append(list, rec.Clone())
		}
	}
	return list, nil
}

func (m *MemoryStore) PutExperience(ctx context.Context, rec *model.Experience) error {
	if rec.ID == "" {
		return ErrInvalidRecord
	}
	m.mu.Lock()
	cp := *rec
	m.experiences[rec.ID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetExperience(ctx context.Context, id string) (*model.Experience, error) {
	m.mu.RLock()
	rec, ok := m.experiences[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ListExperiences(ctx context.Context) ([]*model.Experience, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []*model.Experience
	for _, rec := range m.experiences {
		cp := *rec
		list = append(list, &cp)
	}
	return list, nil
}

func (m *MemoryStore) PutGuest(ctx context.Context, rec *model.Guest) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.guests[rec.ID] = rec.Clone()
	if rec.Credential != "" {
		m.credentials[credentialKey(rec.ProjectID, rec.Credential)] = rec.ID
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetGuest(ctx context.Context, id string) (*model.Guest, error) {
	m.mu.RLock()
	rec, ok := m.guests[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) GetGuestByCredential(ctx context.Context, projectID, credential string) (*model.Guest, error) {
	m.mu.RLock()
	id, ok := m.credentials[credentialKey(projectID, credential)]
	var rec *model.Guest
	if ok {
		rec = m.guests[id]
	}
	m.mu.RUnlock()
	if rec == nil {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) UpdateGuest(ctx context.Context, id string, fn func(*model.Guest) error) (*model.Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.guests[id]
	if !ok {
		return nil, ErrGuestNotFound
	}
	cpy := rec.Clone()
	if err := fn(cpy); err != nil {
		return nil, err
	}
	if err := cpy.Validate(); err != nil {
		return nil, err
	}
	m.guests[id] = cpy
	return cpy.Clone(), nil
}

// Ensure interface compliance at compile time.
var _ Store = (*MemoryStore)(nil)
