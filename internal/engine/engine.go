package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"storyline/internal/config"
	"storyline/internal/domain"
	"storyline/internal/events"
	"storyline/internal/logging"
	"storyline/internal/repo"
)

const (
	defaultCleanupBatch = 50
	maxWriteAttempts    = 3
)

// UserCache is a best-effort read-through cache for user records.
type UserCache interface {
	Get(ctx context.Context, spaceID, userID string) (domain.User, error)
	Set(ctx context.Context, u domain.User) error
	Delete(ctx context.Context, spaceID, userID string) error
	DeleteSpace(ctx context.Context, spaceID string) error
}

type Engine struct {
	DB     *sqlx.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Cache  UserCache
	Log    logging.Logger
	Now    func() time.Time
	NewID  func() string
}

func New(db *sqlx.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Log:    logging.NewNopLogger(),
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) log() logging.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logging.NewNopLogger()
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// CreateUserStory adds an OPEN story to the space. The title must not be
// blank; it is stored as given.
func (e Engine) CreateUserStory(ctx context.Context, spaceName, title, description, actorID string) (domain.UserStory, error) {
	if strings.TrimSpace(title) == "" {
		return domain.UserStory{}, badRequest("Title is required.")
	}
	now := e.timestamp()
	s := domain.UserStory{
		SpaceID:     domain.SpaceID(spaceName),
		ID:          e.newID(),
		Title:       title,
		Description: description,
		Status:      domain.StatusOpen,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.UserStory{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureSpace(ctx, tx, s.SpaceID, now); err != nil {
		return domain.UserStory{}, errors.Wrap(err, "ensure space")
	}
	if err := e.Repo.InsertUserStory(ctx, tx, s); err != nil {
		return domain.UserStory{}, errors.Wrap(err, "insert user story")
	}
	if err := e.events().Append(ctx, tx, events.StoryCreated, s.SpaceID, "user_story", s.ID, domain.UserID(actorID), events.EventPayload{"title": s.Title}); err != nil {
		return domain.UserStory{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.UserStory{}, err
	}
	return s, nil
}

func (e Engine) GetUserStory(ctx context.Context, spaceName, id string) (domain.UserStory, error) {
	s, err := e.Repo.GetUserStory(ctx, nil, domain.SpaceID(spaceName), id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.UserStory{}, errStoryNotFound
	}
	if err != nil {
		return domain.UserStory{}, errors.Wrapf(err, "get user story %s", id)
	}
	return s, nil
}

// UserStoryUpdate carries the fields a save writes. Nil fields are left as
// they are; ClearPriority and ClearSize unset the optional values.
type UserStoryUpdate struct {
	Title         *string
	Description   *string
	Status        *domain.Status
	Priority      *domain.Priority
	ClearPriority bool
	Size          *domain.Size
	ClearSize     bool
}

func ensureStatusTransition(oldStatus, newStatus domain.Status) error {
	if !newStatus.Valid() {
		return badRequest("Invalid status value.")
	}
	if newStatus.Rank() < oldStatus.Rank() {
		return badRequest("Invalid status transition.")
	}
	return nil
}

func (u UserStoryUpdate) validate(current domain.UserStory) error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return badRequest("Title is required.")
	}
	if u.Status != nil {
		if err := ensureStatusTransition(current.Status, *u.Status); err != nil {
			return err
		}
	}
	if u.Priority != nil && (u.ClearPriority || !u.Priority.Valid()) {
		return badRequest("Invalid priority value.")
	}
	if u.Size != nil && (u.ClearSize || !u.Size.Valid()) {
		return badRequest("Invalid size value.")
	}
	return nil
}

// UpdateUserStory applies a partial update after validating every supplied field.
func (e Engine) UpdateUserStory(ctx context.Context, spaceName, id string, u UserStoryUpdate, actorID string) (domain.UserStory, error) {
	return e.mutate(ctx, spaceName, id, events.StoryUpdated, actorID, func(current domain.UserStory) (repo.StoryChanges, events.EventPayload, error) {
		if err := u.validate(current); err != nil {
			return repo.StoryChanges{}, nil, err
		}
		ch := repo.StoryChanges{
			Title:         u.Title,
			Description:   u.Description,
			Status:        u.Status,
			Priority:      u.Priority,
			ClearPriority: u.ClearPriority,
			Size:          u.Size,
			ClearSize:     u.ClearSize,
		}
		return ch, changedFields(ch), nil
	})
}

// AssignUserStory makes userName the assignee unless the story is completed.
func (e Engine) AssignUserStory(ctx context.Context, spaceName, id, userName, actorID string) (domain.UserStory, error) {
	assignee := domain.UserID(userName)
	return e.mutate(ctx, spaceName, id, events.StoryAssigned, actorID, func(current domain.UserStory) (repo.StoryChanges, events.EventPayload, error) {
		if current.Status == domain.StatusCompleted {
			return repo.StoryChanges{}, nil, badRequest("User story is already completed.")
		}
		return repo.StoryChanges{Assignee: &assignee}, events.EventPayload{"assignee": assignee}, nil
	})
}

func (e Engine) StartUserStory(ctx context.Context, spaceName, id, actorID string) (domain.UserStory, error) {
	return e.setStatus(ctx, spaceName, id, actorID, domain.StatusStarted, events.StoryStarted, func(current domain.Status) error {
		if current != domain.StatusOpen {
			return badRequest("User story is already started or completed.")
		}
		return nil
	})
}

func (e Engine) CompleteUserStory(ctx context.Context, spaceName, id, actorID string) (domain.UserStory, error) {
	return e.setStatus(ctx, spaceName, id, actorID, domain.StatusCompleted, events.StoryCompleted, func(current domain.Status) error {
		if current == domain.StatusCompleted {
			return badRequest("User story is already completed.")
		}
		return nil
	})
}

func (e Engine) setStatus(ctx context.Context, spaceName, id, actorID string, next domain.Status, evtType string, guard func(domain.Status) error) (domain.UserStory, error) {
	return e.mutate(ctx, spaceName, id, evtType, actorID, func(current domain.UserStory) (repo.StoryChanges, events.EventPayload, error) {
		if err := guard(current.Status); err != nil {
			return repo.StoryChanges{}, nil, err
		}
		return repo.StoryChanges{Status: &next}, events.EventPayload{"from": current.Status, "to": next}, nil
	})
}

type mutation func(current domain.UserStory) (repo.StoryChanges, events.EventPayload, error)

// mutate runs read, validate and a version-checked write in one transaction.
// When another writer bumps the version between the read and the write, or
// holds the write lock past the busy timeout, the whole sequence is retried
// so validation always sees the latest state.
func (e Engine) mutate(ctx context.Context, spaceName, id, evtType, actorID string, fn mutation) (domain.UserStory, error) {
	spaceID := domain.SpaceID(spaceName)
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		s, err := e.tryMutate(ctx, spaceID, id, evtType, actorID, fn)
		if errors.Is(err, repo.ErrConflict) {
			e.log().Debugw("user story write conflict, retrying", "space", spaceID, "id", id, "attempt", attempt)
			continue
		}
		return s, err
	}
	return domain.UserStory{}, errors.Wrapf(repo.ErrConflict, "update user story %s", id)
}

func (e Engine) tryMutate(ctx context.Context, spaceID, id, evtType, actorID string, fn mutation) (domain.UserStory, error) {
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.UserStory{}, repo.LockConflict(err)
	}
	defer tx.Rollback()
	current, err := e.Repo.GetUserStory(ctx, tx, spaceID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.UserStory{}, errStoryNotFound
	}
	if err != nil {
		return domain.UserStory{}, errors.Wrapf(err, "get user story %s", id)
	}
	changes, payload, err := fn(current)
	if err != nil {
		return domain.UserStory{}, err
	}
	if changes.Empty() {
		return current, nil
	}
	switch err := e.Repo.UpdateUserStory(ctx, tx, spaceID, id, current.Version, changes, e.timestamp()); {
	case errors.Is(err, repo.ErrNotFound):
		return domain.UserStory{}, errStoryNotFound
	case errors.Is(err, repo.ErrConflict):
		return domain.UserStory{}, err
	case err != nil:
		return domain.UserStory{}, errors.Wrapf(err, "update user story %s", id)
	}
	if err := e.events().Append(ctx, tx, evtType, spaceID, "user_story", id, domain.UserID(actorID), payload); err != nil {
		return domain.UserStory{}, err
	}
	updated, err := e.Repo.GetUserStory(ctx, tx, spaceID, id)
	if err != nil {
		return domain.UserStory{}, errors.Wrapf(err, "reload user story %s", id)
	}
	if err := tx.Commit(); err != nil {
		return domain.UserStory{}, repo.LockConflict(err)
	}
	return updated, nil
}

func changedFields(ch repo.StoryChanges) events.EventPayload {
	var fields []string
	if ch.Title != nil {
		fields = append(fields, "title")
	}
	if ch.Description != nil {
		fields = append(fields, "description")
	}
	if ch.Status != nil {
		fields = append(fields, "status")
	}
	if ch.Priority != nil || ch.ClearPriority {
		fields = append(fields, "priority")
	}
	if ch.Size != nil || ch.ClearSize {
		fields = append(fields, "size")
	}
	return events.EventPayload{"fields": fields}
}

func (e Engine) ListUserStories(ctx context.Context, spaceName string) ([]domain.UserStory, error) {
	stories, err := e.Repo.ListUserStories(ctx, repo.StoryFilter{SpaceID: domain.SpaceID(spaceName)})
	return stories, errors.Wrap(err, "list user stories")
}

// ListUserStoriesByUser returns the stories assigned to userName.
func (e Engine) ListUserStoriesByUser(ctx context.Context, spaceName, userName string) ([]domain.UserStory, error) {
	stories, err := e.Repo.ListUserStories(ctx, repo.StoryFilter{SpaceID: domain.SpaceID(spaceName), Assignee: domain.UserID(userName)})
	return stories, errors.Wrap(err, "list user stories by user")
}

// FindUserStories lists the stories of a space matching an optional assignee
// and status.
func (e Engine) FindUserStories(ctx context.Context, spaceName, userName string, status domain.Status) ([]domain.UserStory, error) {
	if status != "" && !status.Valid() {
		return nil, badRequest("Invalid status value.")
	}
	f := repo.StoryFilter{SpaceID: domain.SpaceID(spaceName), Status: status}
	if userName != "" {
		f.Assignee = domain.UserID(userName)
	}
	stories, err := e.Repo.ListUserStories(ctx, f)
	return stories, errors.Wrap(err, "find user stories")
}

// CleanupUserStories deletes every story in the space in fixed-size batches.
func (e Engine) CleanupUserStories(ctx context.Context, spaceName, actorID string) error {
	spaceID := domain.SpaceID(spaceName)
	batch := e.Config.Store.CleanupBatchSize
	if batch <= 0 {
		batch = defaultCleanupBatch
	}
	var total int64
	for {
		n, err := e.Repo.DeleteUserStoriesBatch(ctx, nil, spaceID, batch)
		if err != nil {
			return errors.Wrap(err, "delete user stories")
		}
		total += n
		if n < int64(batch) {
			break
		}
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.events().Append(ctx, tx, events.StoriesCleaned, spaceID, "space", spaceID, domain.UserID(actorID), events.EventPayload{"deleted": total}); err != nil {
		return err
	}
	return tx.Commit()
}
