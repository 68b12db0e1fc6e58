// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/guestflow/guestflow/internal/journey/model"
)

// BadgerStore is the default durable Store.
//   - sessions: key = "sess:<id>" (JSON)
//   - guests:   key = "guest:<id>" (JSON)
//   - credential index: key = "cred:<project>\x00<credential>" (value = guestID)
//
// SessionsByMain is a prefix scan over "sess:"; journeys link at most a
// handful of sessions per anchor, so no secondary index is kept.
type BadgerStore struct {
	db *badger.DB
}

func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func sessionKey(id string) []byte { return []byte("sess:" + id) }
func guestKey(id string) []byte   { return []byte("guest:" + id) }
func credKey(projectID, credential string) []byte {
	return []byte("cred:" + projectID + "\x00" + credential)
}

func (s *BadgerStore) PutSession(ctx context.Context, rec *model.Session) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(rec.ID), buf)
	})
}

func (s *BadgerStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var out model.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrInvalidRecord, id, err)
	}
	return &out, nil
}

func (s *BadgerStore) UpdateSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	var out model.Session
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		}); err != nil {
			return err
		}
		if err := fn(&out); err != nil {
			return err
		}
		if err := out.Validate(); err != nil {
			return err
		}
		buf, err := json.Marshal(out)
		if err != nil {
			return err
		}
		return txn.Set(sessionKey(id), buf)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) SessionsByMain(ctx context.Context, mainID string) ([]*model.Session, error) {
	if mainID == "" {
		return nil, nil
	}
	prefix := []byte("sess:")
	var list []*model.Session
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var rec model.Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidRecord, it.Item().Key(), err)
			}
			if rec.MainSessionID == mainID {
				cp := rec
				list = append(list, &cp)
			}
		}
		return nil
	})
	return list, err
}

func experienceKey(id string) []byte { return []byte("exp:" + id) }

func (s *BadgerStore) PutExperience(ctx context.Context, rec *model.Experience) error {
	if rec.ID == "" {
		return ErrInvalidRecord
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(experienceKey(rec.ID), buf)
	})
}

func (s *BadgerStore) GetExperience(ctx context.Context, id string) (*model.Experience, error) {
	var out model.Experience
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(experienceKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) ListExperiences(ctx context.Context) ([]*model.Experience, error) {
	prefix := []byte("exp:")
	var list []*model.Experience
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec model.Experience
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidRecord, it.Item().Key(), err)
			}
			cp := rec
			list = append(list, &cp)
		}
		return nil
	})
	return list, err
}

func (s *BadgerStore) PutGuest(ctx context.Context, rec *model.Guest) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if rec.Credential != "" {
			if err := txn.Set(credKey(rec.ProjectID, rec.Credential), []byte(rec.ID)); err != nil {
				return err
			}
		}
		return txn.Set(guestKey(rec.ID), buf)
	})
}

func (s *BadgerStore) GetGuest(ctx context.Context, id string) (*model.Guest, error) {
	var out model.Guest
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(guestKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%w: guest %s: %v", ErrInvalidRecord, id, err)
	}
	return &out, nil
}

func (s *BadgerStore) GetGuestByCredential(ctx context.Context, projectID, credential string) (*model.Guest, error) {
	var guestID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(credKey(projectID, credential))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			guestID = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetGuest(ctx, guestID)
}

func (s *BadgerStore) UpdateGuest(ctx context.Context, id string, fn func(*model.Guest) error) (*model.Guest, error) {
	var out model.Guest
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(guestKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrGuestNotFound
			}
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		}); err != nil {
			return err
		}
		if err := fn(&out); err != nil {
			return err
		}
		if err := out.Validate(); err != nil {
			return err
		}
		buf, err := json.Marshal(out)
		if err != nil {
			return err
		}
		return txn.Set(guestKey(id), buf)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Ensure interface compliance at compile time.
var _ Store = (*BadgerStore)(nil)
