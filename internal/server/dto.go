package server

import (
	"encoding/json"

	"storyline/internal/domain"
)

// Request payloads

type CreateStoryRequest struct {
	Title       string `json:"title" minLength:"1"`
	Description string `json:"description,omitempty"`
}

// Response payloads

type SpaceResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type StoryResponse struct {
	SpaceID     string  `json:"space_id"`
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status" enum:"OPEN,STARTED,COMPLETED"`
	Priority    *string `json:"priority,omitempty" enum:"Low,Medium,High"`
	Size        *string `json:"size,omitempty" enum:"Small,Medium,Large"`
	Assignee    *string `json:"assignee,omitempty"`
	Version     int64   `json:"version"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	SpaceID    string         `json:"space_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source" enum:"jwt,api_key"`
}

type storyList struct {
	Items []StoryResponse `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func spaceResponse(s domain.Space) SpaceResponse {
	return SpaceResponse(s)
}

func storyResponse(s domain.UserStory) StoryResponse {
	res := StoryResponse{
		SpaceID:     s.SpaceID,
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Status:      string(s.Status),
		Assignee:    s.Assignee,
		Version:     s.Version,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if v := s.PriorityText(); v != "" {
		res.Priority = &v
	}
	if v := s.SizeText(); v != "" {
		res.Size = &v
	}
	return res
}

func mapStories(items []domain.UserStory) []StoryResponse {
	res := make([]StoryResponse, 0, len(items))
	for _, s := range items {
		res = append(res, storyResponse(s))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		SpaceID:    e.SpaceID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}
