package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"storyline/internal/domain"
	"storyline/internal/repo"
)

const keyPrefix = "sl_"

// ErrInvalidKey reports an API key that does not match any stored key.
var ErrInvalidKey = errors.New("invalid api key")

// Service issues and verifies API keys for the management API.
type Service struct {
	Repo repo.Repo
	Now  func() time.Time
}

// CreateKey stores a new key for actorID and returns the plaintext secret,
// which is never persisted.
func (s Service) CreateKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.APIKey{}, "", errors.New("actor id required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", errors.Wrap(err, "generate api key")
	}
	secret := keyPrefix + hex.EncodeToString(buf)
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", errors.Wrap(err, "insert api key")
	}
	return key, secret, nil
}

// Authenticate resolves the actor owning secret.
func (s Service) Authenticate(ctx context.Context, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrInvalidKey
	}
	key, err := s.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(secret))
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", err
	}
	return key.ActorID, nil
}

func (s Service) ListKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	return s.Repo.ListAPIKeys(ctx, actorID)
}

func (s Service) RevokeKey(ctx context.Context, id string) error {
	return s.Repo.DeleteAPIKey(ctx, id)
}
