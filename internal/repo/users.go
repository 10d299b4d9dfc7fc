package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"storyline/internal/domain"
)

type userRow struct {
	SpaceID     string         `db:"space_id"`
	ID          string         `db:"id"`
	DisplayName string         `db:"display_name"`
	AvatarURL   sql.NullString `db:"avatar_url"`
	UpdatedAt   string         `db:"updated_at"`
}

func (u userRow) toDomain() domain.User {
	return domain.User{
		SpaceID:     u.SpaceID,
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL.String,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (r Repo) UpsertUser(ctx context.Context, tx *sqlx.Tx, u domain.User) error {
	_, err := r.ext(tx).ExecContext(ctx, `INSERT INTO users(space_id,id,display_name,avatar_url,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(space_id,id) DO UPDATE SET display_name=excluded.display_name, avatar_url=excluded.avatar_url, updated_at=excluded.updated_at`,
		u.SpaceID, u.ID, u.DisplayName, nullable(u.AvatarURL), u.UpdatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, spaceID, id string) (domain.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, r.DB, &row, `SELECT space_id,id,display_name,avatar_url,updated_at FROM users WHERE space_id=? AND id=?`, spaceID, id)
	if err == sql.ErrNoRows {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return row.toDomain(), nil
}

// GetUsers returns the known users among ids keyed by id. Unknown ids are skipped.
func (r Repo) GetUsers(ctx context.Context, spaceID string, ids []string) (map[string]domain.User, error) {
	res := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	query, args, err := sqlx.In(`SELECT space_id,id,display_name,avatar_url,updated_at FROM users WHERE space_id=? AND id IN (?)`, spaceID, ids)
	if err != nil {
		return nil, err
	}
	var rows []userRow
	if err := sqlx.SelectContext(ctx, r.DB, &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, row := range rows {
		res[row.ID] = row.toDomain()
	}
	return res, nil
}
