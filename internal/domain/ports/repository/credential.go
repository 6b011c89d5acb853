package repository

import "context"

// -----------------------------
// Credentials
// -----------------------------

// CredentialStore keeps the provider API key a client entered in its settings.
// Get returns domain.ErrNotFound when the client has no stored key.
type CredentialStore interface {
	Get(ctx context.Context, ownerID string) (string, error)
	Put(ctx context.Context, ownerID, apiKey string) error
	Delete(ctx context.Context, ownerID string) error
}
