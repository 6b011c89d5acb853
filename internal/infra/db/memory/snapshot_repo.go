// File: internal/infra/db/memory/snapshot_repo.go
package memory

import (
	"context"
	"sort"
	"sync"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/domain/ports/repository"
)

var _ repository.SessionSnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo keeps snapshots in process memory. Stored and returned values
// are copies.
type SnapshotRepo struct {
	mu   sync.RWMutex
	byID map[string]*model.SessionSnapshot
}

func NewSnapshotRepo() *SnapshotRepo {
	return &SnapshotRepo{byID: make(map[string]*model.SessionSnapshot)}
}

func clone(s *model.SessionSnapshot) *model.SessionSnapshot {
	cp := *s
	cp.History = model.CloneHistory(s.History)
	return &cp
}

func (r *SnapshotRepo) Save(ctx context.Context, snapshot *model.SessionSnapshot) error {
	if snapshot == nil || snapshot.ID == "" {
		return domain.Validationf("snapshot without id")
	}
	r.mu.Lock()
	r.byID[snapshot.ID] = clone(snapshot)
	r.mu.Unlock()
	return nil
}

func (r *SnapshotRepo) FindByID(ctx context.Context, id string) (*model.SessionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(s), nil
}

// FindAllByOwner returns the owner's snapshots oldest first.
func (r *SnapshotRepo) FindAllByOwner(ctx context.Context, ownerID string) ([]*model.SessionSnapshot, error) {
	r.mu.RLock()
	var out []*model.SessionSnapshot
	for _, s := range r.byID {
		if s.OwnerID == ownerID {
			out = append(out, clone(s))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *SnapshotRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}
