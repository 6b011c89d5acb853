package repository

import (
	"context"

	"expert-assistant/internal/domain/model"
)

// -----------------------------
// Session snapshots
// -----------------------------

// SessionSnapshotRepository persists point-in-time copies of sessions so a
// restarted process can restore them. FindByID returns domain.ErrNotFound when
// nothing is stored under id.
type SessionSnapshotRepository interface {
	Save(ctx context.Context, snapshot *model.SessionSnapshot) error
	FindByID(ctx context.Context, id string) (*model.SessionSnapshot, error)
	FindAllByOwner(ctx context.Context, ownerID string) ([]*model.SessionSnapshot, error)
	Delete(ctx context.Context, id string) error
}
