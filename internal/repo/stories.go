package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"storyline/internal/domain"
)

const storyColumns = `space_id,id,title,description,status,priority,size,assignee,version,created_at,updated_at`

type storyRow struct {
	SpaceID     string         `db:"space_id"`
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Status      string         `db:"status"`
	Priority    sql.NullString `db:"priority"`
	Size        sql.NullString `db:"size"`
	Assignee    sql.NullString `db:"assignee"`
	Version     int64          `db:"version"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
}

func (s storyRow) toDomain() domain.UserStory {
	us := domain.UserStory{
		SpaceID:     s.SpaceID,
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description.String,
		Status:      domain.Status(s.Status),
		Version:     s.Version,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.Priority.Valid {
		p := domain.Priority(s.Priority.String)
		us.Priority = &p
	}
	if s.Size.Valid {
		sz := domain.Size(s.Size.String)
		us.Size = &sz
	}
	if s.Assignee.Valid {
		a := s.Assignee.String
		us.Assignee = &a
	}
	return us
}

func (r Repo) InsertUserStory(ctx context.Context, tx *sqlx.Tx, s domain.UserStory) error {
	if s.Version == 0 {
		s.Version = 1
	}
	_, err := r.ext(tx).ExecContext(ctx, `INSERT INTO user_stories(`+storyColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.SpaceID, s.ID, s.Title, nullable(s.Description), string(s.Status),
		nullable(s.PriorityText()), nullable(s.SizeText()), nullable(s.AssigneeID()),
		s.Version, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetUserStory(ctx context.Context, tx *sqlx.Tx, spaceID, id string) (domain.UserStory, error) {
	var row storyRow
	err := sqlx.GetContext(ctx, r.ext(tx), &row, `SELECT `+storyColumns+` FROM user_stories WHERE space_id=? AND id=?`, spaceID, id)
	if err == sql.ErrNoRows {
		return domain.UserStory{}, ErrNotFound
	}
	if err != nil {
		return domain.UserStory{}, err
	}
	return row.toDomain(), nil
}

// StoryFilter narrows ListUserStories. Zero values match everything in the space.
type StoryFilter struct {
	SpaceID  string
	Assignee string
	Status   domain.Status
}

func (r Repo) ListUserStories(ctx context.Context, f StoryFilter) ([]domain.UserStory, error) {
	clauses := []string{"space_id=?"}
	args := []any{f.SpaceID}
	if f.Assignee != "" {
		clauses = append(clauses, "assignee=?")
		args = append(args, f.Assignee)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	query := `SELECT ` + storyColumns + ` FROM user_stories WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at, id`
	var rows []storyRow
	if err := sqlx.SelectContext(ctx, r.DB, &rows, query, args...); err != nil {
		return nil, err
	}
	res := make([]domain.UserStory, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res, nil
}

// StoryChanges lists the columns to write; nil fields are left untouched.
type StoryChanges struct {
	Title         *string
	Description   *string
	Status        *domain.Status
	Priority      *domain.Priority
	ClearPriority bool
	Size          *domain.Size
	ClearSize     bool
	Assignee      *string
}

// Empty reports whether the changes would write nothing.
func (c StoryChanges) Empty() bool {
	return c.Title == nil && c.Description == nil && c.Status == nil &&
		c.Priority == nil && !c.ClearPriority && c.Size == nil && !c.ClearSize && c.Assignee == nil
}

// UpdateUserStory writes the changes only if the stored version still equals
// expectedVersion, bumping the version. It returns ErrConflict when another
// writer got there first and ErrNotFound when the story is gone.
func (r Repo) UpdateUserStory(ctx context.Context, tx *sqlx.Tx, spaceID, id string, expectedVersion int64, ch StoryChanges, now string) error {
	var (
		fields []string
		args   []any
	)
	if ch.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *ch.Title)
	}
	if ch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*ch.Description))
	}
	if ch.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, string(*ch.Status))
	}
	switch {
	case ch.ClearPriority:
		fields = append(fields, "priority=NULL")
	case ch.Priority != nil:
		fields = append(fields, "priority=?")
		args = append(args, string(*ch.Priority))
	}
	switch {
	case ch.ClearSize:
		fields = append(fields, "size=NULL")
	case ch.Size != nil:
		fields = append(fields, "size=?")
		args = append(args, string(*ch.Size))
	}
	if ch.Assignee != nil {
		fields = append(fields, "assignee=?")
		args = append(args, nullable(*ch.Assignee))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "version=version+1", "updated_at=?")
	args = append(args, now, spaceID, id, expectedVersion)
	q := r.ext(tx)
	res, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE user_stories SET %s WHERE space_id=? AND id=? AND version=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return LockConflict(err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}
	var n int
	if err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM user_stories WHERE space_id=? AND id=?`, spaceID, id); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// DeleteUserStoriesBatch deletes at most limit stories of the space and
// returns how many were removed.
func (r Repo) DeleteUserStoriesBatch(ctx context.Context, tx *sqlx.Tx, spaceID string, limit int) (int64, error) {
	res, err := r.ext(tx).ExecContext(ctx, `DELETE FROM user_stories WHERE rowid IN (SELECT rowid FROM user_stories WHERE space_id=? LIMIT ?)`, spaceID, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
