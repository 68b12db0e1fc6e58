// SPDX-License-Identifier: MIT

// Package catalog exposes the project's published configuration to the
// journey core: the phase slots and a read-only view of the experience
// definitions they reference. The phase configuration comes from a
// published YAML snapshot; experience definitions live in the document
// store behind a TTL cache, since the resolver probes them on every
// Welcome render and phase entry.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guestflow/guestflow/internal/cache"
	"github.com/guestflow/guestflow/internal/journey/model"
	"github.com/guestflow/guestflow/internal/journey/store"
	xglog "github.com/guestflow/guestflow/internal/log"
)

// Snapshot is one published project configuration.
type Snapshot struct {
	ProjectID   string             `yaml:"projectId" json:"projectId"`
	Phases      model.PhaseConfig  `yaml:"phases" json:"phases"`
	Experiences []model.Experience `yaml:"experiences" json:"experiences"`
}

// Validate checks the snapshot for structural problems. Slot references to
// unknown experiences are allowed (the resolver treats them as skip), so
// only hard shape errors fail here.
func (s *Snapshot) Validate() error {
	if s.ProjectID == "" {
		return fmt.Errorf("snapshot: projectId is required")
	}
	seen := map[string]bool{}
	for _, e := range s.Experiences {
		if e.ID == "" {
			return fmt.Errorf("snapshot: experience with empty id")
		}
		if seen[e.ID] {
			return fmt.Errorf("snapshot: duplicate experience id %q", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

const experienceTTL = 30 * time.Second

// Manager owns the current published snapshot and the experience lookup
// path. Reads are served from the cache, then the store.
type Manager struct {
	mu    sync.RWMutex
	path  string
	snap  Snapshot
	store store.Store
	cache cache.Cache
	ttl   time.Duration
}

// WithTTL overrides the experience cache lifetime. Non-positive values
// keep the default.
func (m *Manager) WithTTL(d time.Duration) *Manager {
	if d > 0 {
		m.ttl = d
	}
	return m
}

// NewManager loads the published snapshot from path and seeds the
// experience documents into the store.
func NewManager(ctx context.Context, path string, st store.Store, c cache.Cache) (*Manager, error) {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	m := &Manager{path: path, store: st, cache: c, ttl: experienceTTL}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads the snapshot file, re-seeds the store, and drops the
// cache. Called at boot and by the config watcher.
func (m *Manager) Reload(ctx context.Context) error {
	if m.path == "" {
		// No snapshot configured; the catalog stays empty and every
		// optional slot resolves to skip.
		return nil
	}
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", m.path, err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", m.path, err)
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	for i := range snap.Experiences {
		if err := m.store.PutExperience(ctx, &snap.Experiences[i]); err != nil {
			return fmt.Errorf("catalog: seed experience %s: %w", snap.Experiences[i].ID, err)
		}
	}

	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
	m.cache.Clear()

	clog := xglog.WithComponent("catalog")
	clog.Info().
		Str(xglog.FieldProjectID, snap.ProjectID).
		Int("experiences", len(snap.Experiences)).
		Msg("published snapshot loaded")
	return nil
}

// Current returns the active snapshot.
func (m *Manager) Current() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Phases returns the active phase configuration.
func (m *Manager) Phases() model.PhaseConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Phases
}

// ProjectID returns the active project id.
func (m *Manager) ProjectID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.ProjectID
}

// Experience resolves an experience definition by id, read-through cached.
// Returns (nil, nil) when the id does not resolve; the resolver maps that
// to a skip.
func (m *Manager) Experience(ctx context.Context, id string) (*model.Experience, error) {
	if id == "" {
		return nil, nil
	}
	key := "exp:" + id
	if v, ok := m.cache.Get(key); ok {
		if exp, ok := coerceExperience(v); ok {
			return exp, nil
		}
	}
	exp, err := m.store.GetExperience(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp != nil {
		m.cache.Set(key, *exp, m.ttl)
	}
	return exp, nil
}

// List returns all published experience definitions.
func (m *Manager) List(ctx context.Context) ([]*model.Experience, error) {
	return m.store.ListExperiences(ctx)
}

// coerceExperience recovers a typed experience from a cache value. The
// Redis cache round-trips values through JSON, so the stored shape may come
// back as a generic map.
func coerceExperience(v any) (*model.Experience, bool) {
	switch t := v.(type) {
	case model.Experience:
		return &t, true
	case *model.Experience:
		return t, true
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		var exp model.Experience
		if err := json.Unmarshal(buf, &exp); err != nil || exp.ID == "" {
			return nil, false
		}
		return &exp, true
	}
}
