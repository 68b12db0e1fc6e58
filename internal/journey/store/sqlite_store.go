// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/guestflow/guestflow/internal/journey/model"
)

const (
	schemaVersion = 1

	sqliteBusyTimeout = 5 * time.Second
	sqliteMaxConns    = 25
)

// SqliteStore implements Store using SQLite. main_session_id is an indexed
// column so SessionsByMain is an index scan; answers, media, and the guest
// completion ledger are JSON columns since the core never queries inside
// them.
type SqliteStore struct {
	db *sql.DB
}

// openSqliteDB carries the pragmas in the DSN so they apply to every
// connection the pool opens, not just the first.
func openSqliteDB(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, sqliteBusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(sqliteMaxConns)
	db.SetMaxIdleConns(sqliteMaxConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return db, nil
}

func OpenSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := openSqliteDB(dbPath)
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journey store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error { return s.db.Close() }

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		experience_id TEXT NOT NULL,
		main_session_id TEXT,
		status TEXT NOT NULL,
		answers_json TEXT,
		media_json TEXT,
		transform_dispatched INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		completed_at_ms INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_main ON sessions(main_session_id);

	CREATE TABLE IF NOT EXISTS experiences (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		step_count INTEGER NOT NULL,
		enabled INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS guests (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		credential TEXT NOT NULL,
		completions_json TEXT,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_guests_credential ON guests(project_id, credential);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func msOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func (s *SqliteStore) writeSession(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, rec *model.Session) error {
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return err
	}
	media, err := json.Marshal(rec.CapturedMedia)
	if err != nil {
		return err
	}
	dispatched := 0
	if rec.TransformDispatched {
		dispatched = 1
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO sessions (id, experience_id, main_session_id, status, answers_json, media_json, transform_dispatched, created_at_ms, updated_at_ms, completed_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			experience_id = excluded.experience_id,
			main_session_id = excluded.main_session_id,
			status = excluded.status,
			answers_json = excluded.answers_json,
			media_json = excluded.media_json,
			transform_dispatched = excluded.transform_dispatched,
			updated_at_ms = excluded.updated_at_ms,
			completed_at_ms = excluded.completed_at_ms`,
		rec.ID, rec.ExperienceID, nullable(rec.MainSessionID), string(rec.Status),
		string(answers), string(media), dispatched,
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(), msOrNil(rec.CompletedAt))
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *SqliteStore) PutSession(ctx context.Context, rec *model.Session) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.writeSession(ctx, s.db, rec)
}

func scanSession(row interface{ Scan(...any) error }) (*model.Session, error) {
	var (
		rec         model.Session
		mainID      sql.NullString
		answers     sql.NullString
		media       sql.NullString
		dispatched  int
		createdMS   int64
		updatedMS   int64
		completedMS sql.NullInt64
		status      string
	)
	err := row.Scan(&rec.ID, &rec.ExperienceID, &mainID, &status, &answers, &media, &dispatched, &createdMS, &updatedMS, &completedMS)
	if err != nil {
		return nil, err
	}
	rec.Status = model.SessionStatus(status)
	rec.MainSessionID = mainID.String
	rec.TransformDispatched = dispatched != 0
	rec.CreatedAt = time.UnixMilli(createdMS).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	if completedMS.Valid {
		t := time.UnixMilli(completedMS.Int64).UTC()
		rec.CompletedAt = &t
	}
	if answers.Valid && answers.String != "" {
		if err := json.Unmarshal([]byte(answers.String), &rec.Answers); err != nil {
			return nil, fmt.Errorf("%w: session %s answers: %v", ErrInvalidRecord, rec.ID, err)
		}
	}
	if media.Valid && media.String != "" {
		if err := json.Unmarshal([]byte(media.String), &rec.CapturedMedia); err != nil {
			return nil, fmt.Errorf("%w: session %s media: %v", ErrInvalidRecord, rec.ID, err)
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrInvalidRecord, rec.ID, err)
	}
	return &rec, nil
}

const sessionColumns = "id, experience_id, main_session_id, status, answers_json, media_json, transform_dispatched, created_at_ms, updated_at_ms, completed_at_ms"

func (s *SqliteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *SqliteStore) UpdateSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := s.writeSession(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SqliteStore) SessionsByMain(ctx context.Context, mainID string) ([]*model.Session, error) {
	if mainID == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE main_session_id = ?", mainID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var list []*model.Session
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func (s *SqliteStore) PutExperience(ctx context.Context, rec *model.Experience) error {
	if rec.ID == "" {
		return ErrInvalidRecord
	}
	enabled := 0
	if rec.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiences (id, name, step_count, enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			step_count = excluded.step_count,
			enabled = excluded.enabled`,
		rec.ID, rec.Name, rec.StepCount, enabled)
	return err
}

func (s *SqliteStore) GetExperience(ctx context.Context, id string) (*model.Experience, error) {
	var (
		rec     model.Experience
		enabled int
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, name, step_count, enabled FROM experiences WHERE id = ?", id).
		Scan(&rec.ID, &rec.Name, &rec.StepCount, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Enabled = enabled != 0
	return &rec, nil
}

func (s *SqliteStore) ListExperiences(ctx context.Context) ([]*model.Experience, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, step_count, enabled FROM experiences ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var list []*model.Experience
	for rows.Next() {
		var (
			rec     model.Experience
			enabled int
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.StepCount, &enabled); err != nil {
			return nil, err
		}
		rec.Enabled = enabled != 0
		list = append(list, &rec)
	}
	return list, rows.Err()
}

func (s *SqliteStore) writeGuest(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, rec *model.Guest) error {
	completions, err := json.Marshal(rec.CompletedExperiences)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO guests (id, project_id, credential, completions_json, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completions_json = excluded.completions_json,
			updated_at_ms = excluded.updated_at_ms`,
		rec.ID, rec.ProjectID, rec.Credential, string(completions),
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli())
	return err
}

func (s *SqliteStore) PutGuest(ctx context.Context, rec *model.Guest) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.writeGuest(ctx, s.db, rec)
}

const guestColumns = "id, project_id, credential, completions_json, created_at_ms, updated_at_ms"

func scanGuest(row interface{ Scan(...any) error }) (*model.Guest, error) {
	var (
		rec         model.Guest
		completions sql.NullString
		createdMS   int64
		updatedMS   int64
	)
	if err := row.Scan(&rec.ID, &rec.ProjectID, &rec.Credential, &completions, &createdMS, &updatedMS); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(createdMS).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	if completions.Valid && completions.String != "" {
		if err := json.Unmarshal([]byte(completions.String), &rec.CompletedExperiences); err != nil {
			return nil, fmt.Errorf("%w: guest %s ledger: %v", ErrInvalidRecord, rec.ID, err)
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: guest %s: %v", ErrInvalidRecord, rec.ID, err)
	}
	return &rec, nil
}

func (s *SqliteStore) GetGuest(ctx context.Context, id string) (*model.Guest, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+guestColumns+" FROM guests WHERE id = ?", id)
	rec, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *SqliteStore) GetGuestByCredential(ctx context.Context, projectID, credential string) (*model.Guest, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+guestColumns+" FROM guests WHERE project_id = ? AND credential = ?", projectID, credential)
	rec, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *SqliteStore) UpdateGuest(ctx context.Context, id string, fn func(*model.Guest) error) (*model.Guest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, "SELECT "+guestColumns+" FROM guests WHERE id = ?", id)
	rec, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGuestNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := s.writeGuest(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Ensure interface compliance at compile time.
var _ Store = (*SqliteStore)(nil)
