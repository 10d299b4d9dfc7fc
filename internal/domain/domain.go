package domain

import "strings"

const (
	UsersPrefix  = "users/"
	SpacesPrefix = "spaces/"
)

// Status is the workflow state of a user story. It only moves forward.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusStarted   Status = "STARTED"
	StatusCompleted Status = "COMPLETED"
)

// Statuses lists the workflow states in order.
var Statuses = []Status{StatusOpen, StatusStarted, StatusCompleted}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusStarted, StatusCompleted:
		return true
	}
	return false
}

// Rank orders statuses along the workflow; unknown values rank -1.
func (s Status) Rank() int {
	for i, v := range Statuses {
		if v == s {
			return i
		}
	}
	return -1
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Size string

const (
	SizeSmall  Size = "Small"
	SizeMedium Size = "Medium"
	SizeLarge  Size = "Large"
)

var Sizes = []Size{SizeSmall, SizeMedium, SizeLarge}

func (s Size) Valid() bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge:
		return true
	}
	return false
}

// UserStory is the tracked work item of a space. Priority, Size and Assignee
// are nil when unset.
type UserStory struct {
	SpaceID     string    `json:"space_id"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status" enum:"OPEN,STARTED,COMPLETED"`
	Priority    *Priority `json:"priority,omitempty" enum:"Low,Medium,High"`
	Size        *Size     `json:"size,omitempty" enum:"Small,Medium,Large"`
	Assignee    *string   `json:"assignee,omitempty"`
	Version     int64     `json:"version"`
	CreatedAt   string    `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt   string    `json:"updated_at,omitempty" format:"date-time"`
}

// AssigneeID returns the assignee or "" when unassigned.
func (s UserStory) AssigneeID() string {
	if s.Assignee == nil {
		return ""
	}
	return *s.Assignee
}

// PriorityText returns the priority or "" when unset.
func (s UserStory) PriorityText() string {
	if s.Priority == nil {
		return ""
	}
	return string(*s.Priority)
}

// SizeText returns the size or "" when unset.
func (s UserStory) SizeText() string {
	if s.Size == nil {
		return ""
	}
	return string(*s.Size)
}

// User is the cached display identity of a chat user within a space.
type User struct {
	SpaceID     string `json:"space_id"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty" format:"date-time"`
}

type Space struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SpaceID    string `json:"space_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// UserID strips the platform resource prefix from a user name.
func UserID(name string) string {
	return strings.TrimPrefix(name, UsersPrefix)
}

// SpaceID strips the platform resource prefix from a space name.
func SpaceID(name string) string {
	return strings.TrimPrefix(name, SpacesPrefix)
}
