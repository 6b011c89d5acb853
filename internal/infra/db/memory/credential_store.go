package memory

import (
	"context"
	"strings"
	"sync"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/ports/repository"
)

var _ repository.CredentialStore = (*CredentialStore)(nil)

type CredentialStore struct {
	mu   sync.RWMutex
	keys map[string]string
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{keys: make(map[string]string)}
}

func (c *CredentialStore) Get(ctx context.Context, ownerID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[ownerID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return k, nil
}

func (c *CredentialStore) Put(ctx context.Context, ownerID, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if ownerID == "" || apiKey == "" {
		return domain.Validationf("owner and api key are required")
	}
	c.mu.Lock()
	c.keys[ownerID] = apiKey
	c.mu.Unlock()
	return nil
}

func (c *CredentialStore) Delete(ctx context.Context, ownerID string) error {
	c.mu.Lock()
	delete(c.keys, ownerID)
	c.mu.Unlock()
	return nil
}
