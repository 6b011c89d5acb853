package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/ports/repository"
	"expert-assistant/internal/infra/security"
)

var _ repository.CredentialStore = (*CredentialStore)(nil)

// CredentialStore keeps each client's API key sealed with the owner id as
// associated data.
type CredentialStore struct {
	client RedisClient
	sealer security.Sealer
	ttl    time.Duration
}

func NewCredentialStore(client RedisClient, sealer security.Sealer, ttl time.Duration) (*CredentialStore, error) {
	if sealer == nil {
		return nil, errors.New("credential store requires an encryption key")
	}
	return &CredentialStore{client: client, sealer: sealer, ttl: ttl}, nil
}

func credentialKey(owner string) string { return "api_key:" + owner }

func (c *CredentialStore) Get(ctx context.Context, ownerID string) (string, error) {
	sealed, err := c.client.Get(ctx, credentialKey(ownerID))
	if err != nil {
		return "", err
	}
	pt, err := c.sealer.Open(sealed, ownerID)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func (c *CredentialStore) Put(ctx context.Context, ownerID, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if ownerID == "" || apiKey == "" {
		return domain.Validationf("owner and api key are required")
	}
	sealed, err := c.sealer.Seal([]byte(apiKey), ownerID)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, credentialKey(ownerID), sealed, c.ttl)
}

func (c *CredentialStore) Delete(ctx context.Context, ownerID string) error {
	return c.client.Del(ctx, credentialKey(ownerID))
}
