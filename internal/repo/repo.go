package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"storyline/internal/domain"
)

// Repo is the SQL-backed store for spaces, users, user stories and the event log.
type Repo struct {
	DB *sqlx.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a compare-and-swap write that lost to a concurrent writer.
	ErrConflict = errors.New("concurrent modification")
)

// LockConflict turns SQLite refusing a lock held by another writer into
// ErrConflict so callers can retry the whole read-validate-write sequence.
// Other errors are returned unchanged.
func LockConflict(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return errors.Wrap(ErrConflict, se.Error())
	}
	return err
}

// ext returns the transaction when present, the pool otherwise.
func (r Repo) ext(tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return r.DB
}

type spaceRow struct {
	ID          string         `db:"id"`
	DisplayName sql.NullString `db:"display_name"`
	CreatedAt   string         `db:"created_at"`
}

func (s spaceRow) toDomain() domain.Space {
	return domain.Space{ID: s.ID, DisplayName: s.DisplayName.String, CreatedAt: s.CreatedAt}
}

// UpsertSpace creates the space or refreshes its display name.
func (r Repo) UpsertSpace(ctx context.Context, tx *sqlx.Tx, s domain.Space) error {
	_, err := r.ext(tx).ExecContext(ctx, `INSERT INTO spaces(id,display_name,created_at) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET display_name=COALESCE(excluded.display_name, spaces.display_name)`,
		s.ID, nullable(s.DisplayName), s.CreatedAt)
	return err
}

// EnsureSpace registers the space if it is not known yet.
func (r Repo) EnsureSpace(ctx context.Context, tx *sqlx.Tx, id, now string) error {
	_, err := r.ext(tx).ExecContext(ctx, `INSERT OR IGNORE INTO spaces(id,created_at) VALUES (?,?)`, id, now)
	return err
}

func (r Repo) GetSpace(ctx context.Context, id string) (domain.Space, error) {
	var row spaceRow
	err := sqlx.GetContext(ctx, r.DB, &row, `SELECT id,display_name,created_at FROM spaces WHERE id=?`, id)
	if err == sql.ErrNoRows {
		return domain.Space{}, ErrNotFound
	}
	if err != nil {
		return domain.Space{}, err
	}
	return row.toDomain(), nil
}

func (r Repo) ListSpaces(ctx context.Context) ([]domain.Space, error) {
	var rows []spaceRow
	if err := sqlx.SelectContext(ctx, r.DB, &rows, `SELECT id,display_name,created_at FROM spaces ORDER BY created_at, id`); err != nil {
		return nil, err
	}
	res := make([]domain.Space, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res, nil
}

// DeleteSpace removes the space together with its users and user stories.
func (r Repo) DeleteSpace(ctx context.Context, tx *sqlx.Tx, id string) error {
	q := r.ext(tx)
	for _, stmt := range []string{
		`DELETE FROM user_stories WHERE space_id=?`,
		`DELETE FROM users WHERE space_id=?`,
		`DELETE FROM spaces WHERE id=?`,
	} {
		if _, err := q.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return nil
}

type eventRow struct {
	ID         int64          `db:"id"`
	TS         string         `db:"ts"`
	Type       string         `db:"type"`
	SpaceID    sql.NullString `db:"space_id"`
	EntityKind string         `db:"entity_kind"`
	EntityID   sql.NullString `db:"entity_id"`
	ActorID    string         `db:"actor_id"`
	Payload    sql.NullString `db:"payload_json"`
}

func (e eventRow) toDomain() domain.Event {
	return domain.Event{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		SpaceID:    e.SpaceID.String,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID.String,
		ActorID:    e.ActorID,
		Payload:    e.Payload.String,
	}
}

func mapEvents(rows []eventRow) []domain.Event {
	res := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res
}

// EventFilter narrows LatestEvents. Zero values match everything.
type EventFilter struct {
	SpaceID    string
	Type       string
	EntityKind string
	EntityID   string
	Before     int64
	Limit      int
}

// LatestEvents returns matching events, newest first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.SpaceID != "" {
		clauses = append(clauses, "space_id=?")
		args = append(args, f.SpaceID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id,ts,type,space_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, limit)
	var rows []eventRow
	if err := sqlx.SelectContext(ctx, r.DB, &rows, query, args...); err != nil {
		return nil, err
	}
	return mapEvents(rows), nil
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, spaceID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if spaceID != "" {
		clauses = append(clauses, "space_id=?")
		args = append(args, spaceID)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,space_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE %s ORDER BY id ASC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, limit)
	var rows []eventRow
	if err := sqlx.SelectContext(ctx, r.DB, &rows, query, args...); err != nil {
		return nil, err
	}
	return mapEvents(rows), nil
}

// LatestEventID returns the most recent event ID, optionally scoped to a space.
func (r Repo) LatestEventID(ctx context.Context, spaceID string) (int64, error) {
	var id int64
	var err error
	if spaceID == "" {
		err = sqlx.GetContext(ctx, r.DB, &id, `SELECT COALESCE(MAX(id),0) FROM events`)
	} else {
		err = sqlx.GetContext(ctx, r.DB, &id, `SELECT COALESCE(MAX(id),0) FROM events WHERE space_id=?`, spaceID)
	}
	return id, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
