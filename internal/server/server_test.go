package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storyline/internal/app"
	"storyline/internal/config"
	"storyline/internal/engine/auth"
	"storyline/internal/logging"
	storylinesdk "storyline/sdk/go"
)

const (
	testSpace  = "spaces/AAA"
	testSecret = "test-secret"
)

type staticGenerator string

func (g staticGenerator) Generate(context.Context, string) (string, error) {
	return string(g), nil
}

type testServer struct {
	URL    string
	APIKey string
	rt     *app.Runtime
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, cfg *config.Config) (*testServer, func()) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	rt, err := app.Open(context.Background(), app.Options{
		Workspace: t.TempDir(),
		Config:    cfg,
		Log:       logging.NewTestLogger(),
		Generator: staticGenerator("As a user I want it."),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	_, secret, err := auth.Service{Repo: rt.Engine.Repo}.CreateKey(context.Background(), "users/ops", "test")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	handler, err := New(Config{
		Engine:    rt.Engine,
		Chat:      rt.Chat,
		BasePath:  "/v0",
		ChatPath:  "/chat",
		Auth:      AuthConfig{JWTSecret: testSecret},
		Log:       rt.Log,
		LogEvents: true,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		APIKey: secret,
		rt:     rt,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			rt.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func chatMessage(arg, commandID string) map[string]any {
	msg := map[string]any{"argumentText": arg}
	if commandID != "" {
		msg["slashCommand"] = map[string]any{"commandId": commandID}
	}
	return map[string]any{
		"type":    "MESSAGE",
		"space":   map[string]any{"name": testSpace, "displayName": "Team"},
		"user":    map[string]any{"name": "users/1", "displayName": "Ada"},
		"message": msg,
	}
}

func TestChatRejectsNonChatRequests(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/chat", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("GET status %d: %s", res.StatusCode, string(body))
	}
	if strings.TrimSpace(string(body)) != notAChatRequest {
		t.Fatalf("unexpected GET body %q", string(body))
	}

	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/chat", map[string]any{"type": "MESSAGE"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing message status %d: %s", res.StatusCode, string(body))
	}
}

func TestChatCreateCommandThenListOverAPI(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/chat", chatMessage("Ship it", "1"), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chat status %d: %s", res.StatusCode, string(body))
	}
	if !strings.Contains(string(body), "<users/1> created a user story.") {
		t.Fatalf("unexpected chat response %s", string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/spaces/AAA/stories", nil, map[string]string{"X-Api-Key": srv.APIKey})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(body))
	}
	var list storyList
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 story, got %d", len(list.Items))
	}
	got := list.Items[0]
	if got.Title != "Ship it" || got.Status != "OPEN" || got.Description != "As a user I want it." {
		t.Fatalf("unexpected story %+v", got)
	}
}

func TestChatHelpForPlainMessage(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/chat", chatMessage("hello", ""), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chat status %d: %s", res.StatusCode, string(body))
	}
	if !strings.Contains(string(body), `"cardId":"helpCard"`) {
		t.Fatalf("expected help card, got %s", string(body))
	}
}

func TestManagementAPIRequiresAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/spaces", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", envelope.Error.Code)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/spaces", nil, map[string]string{"X-Api-Key": "sl_bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d %s", res.StatusCode, string(body))
	}
}

func TestJWTPrincipal(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "users/lead",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(body))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "users/lead" || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", me)
	}

	bad, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "users/lead"}).SignedString([]byte("other"))
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + bad})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong signature, got %d %s", res.StatusCode, string(body))
	}
}

func TestDomainErrorsUseEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	headers := map[string]string{"X-Api-Key": srv.APIKey}

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/spaces/AAA/stories/missing", nil, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	if envelope.Error.Code != "not_found" || envelope.Error.Message != "User story not found." {
		t.Fatalf("unexpected envelope %+v", envelope.Error)
	}

	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/spaces/AAA/stories", map[string]any{"title": "   "}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d %s", res.StatusCode, string(body))
	}
}

func TestSDKStoriesAndEvents(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	client := storylinesdk.New(srv.URL+"/v0", testSpace)
	client.APIKey = srv.APIKey
	for _, title := range []string{"One", "Two", "Three"} {
		if _, err := client.CreateStory(ctx, title, ""); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	stories, err := client.ListStories(ctx, storylinesdk.StoryFilter{Status: "OPEN"})
	if err != nil {
		t.Fatalf("list stories: %v", err)
	}
	if len(stories) != 3 {
		t.Fatalf("expected 3 stories, got %d", len(stories))
	}
	got, err := client.Story(ctx, stories[1].ID)
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if got.Title != stories[1].Title {
		t.Fatalf("expected %q, got %q", stories[1].Title, got.Title)
	}

	spaces, err := client.Spaces(ctx)
	if err != nil {
		t.Fatalf("list spaces: %v", err)
	}
	if len(spaces) != 1 || spaces[0].ID != "AAA" {
		t.Fatalf("unexpected spaces %+v", spaces)
	}

	page, err := client.EventsPage(ctx, 2, "")
	if err != nil {
		t.Fatalf("events page: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a full first page with cursor, got %+v", page)
	}
	rest, err := client.EventsPage(ctx, 2, page.NextCursor)
	if err != nil {
		t.Fatalf("events second page: %v", err)
	}
	if len(rest.Items) != 1 || rest.NextCursor != "" {
		t.Fatalf("expected last page with one event, got %+v", rest)
	}
	if rest.Items[0].Type != "story.created" {
		t.Fatalf("unexpected event type %s", rest.Items[0].Type)
	}

	_, err = client.Story(ctx, "missing")
	apiErr, ok := err.(*storylinesdk.APIError)
	if !ok || apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "not_found" {
		t.Fatalf("expected not_found api error, got %v", err)
	}
}

func TestWebhookDelivery(t *testing.T) {
	var (
		mu       sync.Mutex
		received []http.Header
		bodies   []webhookEvent
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		received = append(received, r.Header.Clone())
		bodies = append(bodies, evt)
		mu.Unlock()
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"story.created"}, Secret: "s3"}}
	srv, cleanup := newTestServer(t, cfg)
	defer cleanup()
	ctx := context.Background()

	d := NewWebhookDispatcher(srv.rt.Engine, srv.rt.Log)
	if d == nil {
		t.Fatalf("expected dispatcher for configured webhook")
	}
	d.DispatchAll(ctx)

	if _, err := srv.rt.Engine.CreateSpace(ctx, testSpace, "Team", "users/1"); err != nil {
		t.Fatalf("create space: %v", err)
	}
	s, err := srv.rt.Engine.CreateUserStory(ctx, testSpace, "Hooked", "", "users/1")
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected only the story.created delivery, got %d", len(received))
	}
	h := received[0]
	if h.Get("X-Storyline-Event") != "story.created" || h.Get("X-Storyline-Space") != testSpace || h.Get("X-Storyline-Secret") != "s3" {
		t.Fatalf("unexpected headers %v", h)
	}
	if h.Get("X-Storyline-Delivery") == "" {
		t.Fatalf("missing delivery id")
	}
	if bodies[0].EntityID != s.ID {
		t.Fatalf("expected entity %s, got %s", s.ID, bodies[0].EntityID)
	}
}
