package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "/v0", cfg.Server.BasePath)
	require.Equal(t, "/chat", cfg.Server.ChatPath)
	require.Equal(t, 50, cfg.Store.CleanupBatchSize)
	require.False(t, cfg.TextGen.Enabled())
}

func TestFromYAMLKeepsDefaultsForMissingFields(t *testing.T) {
	cfg, err := FromYAML([]byte("textgen:\n  project: my-project\nstore:\n  cleanup_batch_size: 10\n"))
	require.NoError(t, err)
	require.True(t, cfg.TextGen.Enabled())
	require.Equal(t, "us-central1", cfg.TextGen.Location)
	require.Equal(t, 256, cfg.TextGen.MaxOutputTokens)
	require.Equal(t, 10, cfg.Store.CleanupBatchSize)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Server.BasePath = "v0"
	cfg.TextGen.Temperature = 2
	cfg.Cache.RedisURL = "http://cache"
	cfg.Logging.Level = "loud"
	cfg.Webhooks = []WebhookConfig{{URL: ""}, {URL: "ftp://x"}}

	err := cfg.Validate()
	require.Error(t, err)
	merr, ok := err.(*multierror.Error)
	require.True(t, ok, "expected a multierror, got %T", err)
	require.Len(t, merr.Errors, 6)
}

func TestChatPathMustNotLiveUnderBasePath(t *testing.T) {
	cfg := Default()
	cfg.Server.ChatPath = "/v0/chat"
	require.Error(t, cfg.Validate())
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	_, err = Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "storyline.yml"), []byte("cache:\n  redis_url: redis://localhost:6379/0\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	require.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
	require.Equal(t, 3600, cfg.Cache.TTLSeconds)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "storyline.yml"), []byte("server: ["), 0o644))
	_, err = LoadOptional(dir)
	require.Error(t, err)
}
