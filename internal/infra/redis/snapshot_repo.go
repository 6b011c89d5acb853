// File: internal/infra/redis/snapshot_repo.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/domain/ports/repository"
)

var _ repository.SessionSnapshotRepository = (*SnapshotRepo)(nil)

func ownerKey(owner string) string { return "owner_sessions:" + owner }

// SnapshotRepo uses Redis as the primary snapshot store. Each owner has a set
// of session ids; ids whose snapshot expired are pruned on read.
type SnapshotRepo struct {
	client *Client
	cache  *SnapshotCache
}

func NewSnapshotRepo(client *Client, cache *SnapshotCache) *SnapshotRepo {
	return &SnapshotRepo{client: client, cache: cache}
}

func (r *SnapshotRepo) Save(ctx context.Context, s *model.SessionSnapshot) error {
	if s == nil || s.ID == "" {
		return domain.Validationf("snapshot without id")
	}
	if err := r.cache.Store(ctx, s); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	cli := r.client.cli
	_, err := cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, ownerKey(s.OwnerID), s.ID)
		p.Expire(ctx, ownerKey(s.OwnerID), r.cache.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) FindByID(ctx context.Context, id string) (*model.SessionSnapshot, error) {
	s, err := r.cache.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Extend(ctx, id)
	return s, nil
}

func (r *SnapshotRepo) FindAllByOwner(ctx context.Context, ownerID string) ([]*model.SessionSnapshot, error) {
	cli := r.client.cli
	ids, err := cli.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]*model.SessionSnapshot, 0, len(ids))
	for _, id := range ids {
		s, err := r.cache.Load(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			_ = cli.SRem(ctx, ownerKey(ownerID), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *SnapshotRepo) Delete(ctx context.Context, id string) error {
	s, err := r.cache.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := r.cache.Drop(ctx, id); err != nil {
		return err
	}
	return r.client.cli.SRem(ctx, ownerKey(s.OwnerID), id).Err()
}
