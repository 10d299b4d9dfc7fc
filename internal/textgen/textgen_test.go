package textgen_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"storyline/internal/config"
	"storyline/internal/mocks/mock_textgen"
	"storyline/internal/textgen"
)

func TestServicePrompts(t *testing.T) {
	ctrl := gomock.NewController(t)
	gen := mock_textgen.NewMockGenerator(ctrl)
	svc := textgen.NewService(gen)
	ctx := context.Background()

	gen.EXPECT().Generate(gomock.Any(), "Generate a description for a user story with the following title:\n\nLogin page").
		Return("  A login page.\n", nil)
	out, err := svc.GenerateDescription(ctx, "Login page")
	require.NoError(t, err)
	require.Equal(t, "A login page.", out)

	gen.EXPECT().Generate(gomock.Any(), "Expand the following user story description:\n\nshort").Return("long", nil)
	out, err = svc.ExpandDescription(ctx, "short")
	require.NoError(t, err)
	require.Equal(t, "long", out)

	gen.EXPECT().Generate(gomock.Any(), "Correct the grammar of the following user story description:\n\nit are bad").Return("it is bad", nil)
	out, err = svc.CorrectDescription(ctx, "it are bad")
	require.NoError(t, err)
	require.Equal(t, "it is bad", out)

	boom := errors.New("quota")
	gen.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", boom)
	_, err = svc.ExpandDescription(ctx, "x")
	require.ErrorIs(t, err, boom)
}

func TestDisabledGeneratesNothing(t *testing.T) {
	svc := textgen.NewService(nil)
	out, err := svc.GenerateDescription(context.Background(), "anything")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestVertexClientPredict(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictions":[{"content":"generated text"}]}`))
	}))
	defer srv.Close()

	cfg := config.Default().TextGen
	cfg.Project = "proj"
	cfg.Endpoint = srv.URL
	client := textgen.NewVertexClientWithTokenSource(context.Background(), cfg,
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok", TokenType: "Bearer"}))

	out, err := client.Generate(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "generated text", out)
	require.Equal(t, "/v1/projects/proj/locations/us-central1/publishers/google/models/text-bison:predict", gotPath)
	require.Equal(t, "Bearer tok", gotAuth)

	params := gotBody["parameters"].(map[string]any)
	require.Equal(t, 0.2, params["temperature"])
	require.Equal(t, float64(256), params["maxOutputTokens"])
	require.Equal(t, 0.95, params["topP"])
	require.Equal(t, float64(40), params["topK"])
	instances := gotBody["instances"].([]any)
	require.Equal(t, "hello", instances[0].(map[string]any)["prompt"])
}

func TestVertexClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := config.Default().TextGen
	cfg.Project = "proj"
	cfg.Endpoint = srv.URL
	client := textgen.NewVertexClientWithTokenSource(context.Background(), cfg,
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}))

	_, err := client.Generate(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 403")
}
