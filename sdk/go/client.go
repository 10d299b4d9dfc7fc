package storylinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Storyline management API client scoped to one space.
type Client struct {
	BaseURL     string
	SpaceID     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, for example http://127.0.0.1:8080/v0.
func New(baseURL, spaceID string) *Client {
	return &Client{
		BaseURL: baseURL,
		SpaceID: strings.TrimPrefix(spaceID, "spaces/"),
		Timeout: 10 * time.Second,
	}
}

// Space represents a chat space the app was added to.
type Space struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

// UserStory represents the API story model.
type UserStory struct {
	SpaceID     string  `json:"space_id"`
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    *string `json:"priority,omitempty"`
	Size        *string `json:"size,omitempty"`
	Assignee    *string `json:"assignee,omitempty"`
	Version     int64   `json:"version"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	SpaceID    string         `json:"space_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps event listings with a cursor.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// StoryFilter narrows ListStories. Empty fields match everything.
type StoryFilter struct {
	Assignee string
	Status   string
}

// Spaces lists every known space.
func (c *Client) Spaces(ctx context.Context) ([]Space, error) {
	var resp []Space
	err := c.do(ctx, http.MethodGet, "spaces", nil, &resp)
	return resp, err
}

// CreateStory creates a story in the client's space.
func (c *Client) CreateStory(ctx context.Context, title, description string) (UserStory, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
	}
	var resp UserStory
	err := c.do(ctx, http.MethodPost, c.spacePath("stories"), body, &resp)
	return resp, err
}

// Story fetches a story by id.
func (c *Client) Story(ctx context.Context, id string) (UserStory, error) {
	var resp UserStory
	err := c.do(ctx, http.MethodGet, c.spacePath("stories/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// ListStories returns the stories of the client's space.
func (c *Client) ListStories(ctx context.Context, f StoryFilter) ([]UserStory, error) {
	q := url.Values{}
	if f.Assignee != "" {
		q.Set("assignee", f.Assignee)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	endpoint := c.spacePath("stories")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []UserStory `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// EventsPage returns up to limit events of the client's space after cursor.
// Pass the previous NextCursor to continue.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if c.SpaceID != "" {
		q.Set("space", c.SpaceID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("after", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) spacePath(p string) string {
	return fmt.Sprintf("spaces/%s/%s", url.PathEscape(c.SpaceID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
