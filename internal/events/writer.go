package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Event types appended by the engine.
const (
	StoryCreated   = "story.created"
	StoryUpdated   = "story.updated"
	StoryAssigned  = "story.assigned"
	StoryStarted   = "story.started"
	StoryCompleted = "story.completed"
	StoriesCleaned = "stories.cleaned"
	SpaceCreated   = "space.created"
	SpaceDeleted   = "space.deleted"
	UserUpserted   = "user.upserted"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits or rolls back with the mutation.
func (w Writer) Append(ctx context.Context, tx *sqlx.Tx, evtType, spaceID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal event payload")
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,space_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(spaceID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
