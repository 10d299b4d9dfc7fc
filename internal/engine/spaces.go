package engine

import (
	"context"

	"github.com/pkg/errors"

	"storyline/internal/domain"
	"storyline/internal/events"
	"storyline/internal/repo"
)

// CreateSpace records a space the app was added to.
func (e Engine) CreateSpace(ctx context.Context, spaceName, displayName, actorID string) (domain.Space, error) {
	s := domain.Space{ID: domain.SpaceID(spaceName), DisplayName: displayName, CreatedAt: e.timestamp()}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Space{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertSpace(ctx, tx, s); err != nil {
		return domain.Space{}, errors.Wrap(err, "upsert space")
	}
	if err := e.events().Append(ctx, tx, events.SpaceCreated, s.ID, "space", s.ID, domain.UserID(actorID), events.EventPayload{"displayName": displayName}); err != nil {
		return domain.Space{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Space{}, err
	}
	return e.Repo.GetSpace(ctx, s.ID)
}

// DeleteSpace drops the space with all of its users and user stories.
func (e Engine) DeleteSpace(ctx context.Context, spaceName, actorID string) error {
	spaceID := domain.SpaceID(spaceName)
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteSpace(ctx, tx, spaceID); err != nil {
		return errors.Wrap(err, "delete space")
	}
	if err := e.events().Append(ctx, tx, events.SpaceDeleted, spaceID, "space", spaceID, domain.UserID(actorID), nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if e.Cache != nil {
		if err := e.Cache.DeleteSpace(ctx, spaceID); err != nil {
			e.log().WithError(err).Warnw("failed to drop cached users", "space", spaceID)
		}
	}
	return nil
}

func (e Engine) ListSpaces(ctx context.Context) ([]domain.Space, error) {
	return e.Repo.ListSpaces(ctx)
}

func (e Engine) GetSpace(ctx context.Context, spaceName string) (domain.Space, error) {
	s, err := e.Repo.GetSpace(ctx, domain.SpaceID(spaceName))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Space{}, NotFoundError{Message: "Space not found."}
	}
	return s, err
}

// CreateOrUpdateUser stores the profile of a chat user seen in the space.
func (e Engine) CreateOrUpdateUser(ctx context.Context, spaceName string, u domain.User) (domain.User, error) {
	u.SpaceID = domain.SpaceID(spaceName)
	u.ID = domain.UserID(u.ID)
	if u.ID == "" {
		return domain.User{}, badRequest("User id is required.")
	}
	u.UpdatedAt = e.timestamp()
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureSpace(ctx, tx, u.SpaceID, u.UpdatedAt); err != nil {
		return domain.User{}, errors.Wrap(err, "ensure space")
	}
	if err := e.Repo.UpsertUser(ctx, tx, u); err != nil {
		return domain.User{}, errors.Wrap(err, "upsert user")
	}
	if err := e.events().Append(ctx, tx, events.UserUpserted, u.SpaceID, "user", u.ID, u.ID, events.EventPayload{"displayName": u.DisplayName}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	if e.Cache != nil {
		// the next GetUser repopulates from the store
		if err := e.Cache.Delete(ctx, u.SpaceID, u.ID); err != nil {
			e.log().WithError(err).Warnw("failed to invalidate cached user", "space", u.SpaceID, "user", u.ID)
		}
	}
	return u, nil
}

// GetUser reads through the cache when one is configured.
func (e Engine) GetUser(ctx context.Context, spaceName, userName string) (domain.User, error) {
	spaceID, userID := domain.SpaceID(spaceName), domain.UserID(userName)
	if e.Cache != nil {
		if u, err := e.Cache.Get(ctx, spaceID, userID); err == nil {
			return u, nil
		}
	}
	u, err := e.Repo.GetUser(ctx, spaceID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, errUserNotFound
	}
	if err != nil {
		return domain.User{}, errors.Wrapf(err, "get user %s", userID)
	}
	if e.Cache != nil {
		if err := e.Cache.Set(ctx, u); err != nil {
			e.log().WithError(err).Debugw("failed to cache user", "space", spaceID, "user", userID)
		}
	}
	return u, nil
}

// GetUsers returns the known users among userNames keyed by bare id.
func (e Engine) GetUsers(ctx context.Context, spaceName string, userNames []string) (map[string]domain.User, error) {
	ids := make([]string, 0, len(userNames))
	seen := map[string]bool{}
	for _, n := range userNames {
		id := domain.UserID(n)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	users, err := e.Repo.GetUsers(ctx, domain.SpaceID(spaceName), ids)
	return users, errors.Wrap(err, "get users")
}

// RecentEvents returns the newest events matching f.
func (e Engine) RecentEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	if f.SpaceID != "" {
		f.SpaceID = domain.SpaceID(f.SpaceID)
	}
	return e.Repo.LatestEvents(ctx, f)
}
