package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"storyline/internal/config"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictResponse struct {
	Predictions []struct {
		Content string `json:"content"`
	} `json:"predictions"`
}

// VertexClient calls the Vertex AI predict endpoint of a text model.
type VertexClient struct {
	URL    string
	Params predictParameters
	HTTP   *http.Client
}

// NewVertexClient builds a client authenticated with Google application
// default credentials.
func NewVertexClient(ctx context.Context, cfg config.TextGenConfig) (*VertexClient, error) {
	ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
	if err != nil {
		return nil, errors.Wrap(err, "load google credentials")
	}
	return NewVertexClientWithTokenSource(ctx, cfg, ts), nil
}

// NewVertexClientWithTokenSource builds a client that authenticates every
// request with tokens from ts.
func NewVertexClientWithTokenSource(ctx context.Context, cfg config.TextGenConfig, ts oauth2.TokenSource) *VertexClient {
	httpClient := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, ts))
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient.Timeout = timeout
	return &VertexClient{
		URL: predictURL(cfg),
		Params: predictParameters{
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
			TopP:            cfg.TopP,
			TopK:            cfg.TopK,
		},
		HTTP: httpClient,
	}
}

func predictURL(cfg config.TextGenConfig) string {
	model := cfg.Model
	if model == "" {
		model = "text-bison"
	}
	base := strings.TrimRight(cfg.Endpoint, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", cfg.Location)
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:predict", base, cfg.Project, cfg.Location, model)
}

// Generate returns the first prediction for prompt.
func (c *VertexClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(predictRequest{
		Instances:  []predictInstance{{Prompt: prompt}},
		Parameters: c.Params,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal predict request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "predict")
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read predict response")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", errors.Errorf("predict: status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	var out predictResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", errors.Wrap(err, "decode predict response")
	}
	if len(out.Predictions) == 0 {
		return "", errors.New("predict: empty predictions")
	}
	return out.Predictions[0].Content, nil
}
