package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/infra/metrics"
	"expert-assistant/internal/infra/security"
)

const snapshotCacheName = "session_snapshot"

func snapshotKey(id string) string { return "session_snapshot:" + id }

// cachedSnapshot is the stored envelope. When Sealed is set every message
// content is AES-GCM sealed with the session id as associated data.
type cachedSnapshot struct {
	Sealed   bool                   `json:"sealed,omitempty"`
	Snapshot *model.SessionSnapshot `json:"snapshot"`
}

// SnapshotCache stores session snapshots as JSON with a sliding TTL. With a
// sealer, message contents never reach Redis in clear.
type SnapshotCache struct {
	client RedisClient
	sealer security.Sealer
	ttl    time.Duration
}

// NewSnapshotCache builds a cache; sealer may be nil.
func NewSnapshotCache(client RedisClient, sealer security.Sealer, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, sealer: sealer, ttl: ttl}
}

func (c *SnapshotCache) Store(ctx context.Context, s *model.SessionSnapshot) error {
	entry, err := c.seal(s)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(s.ID), string(data), c.ttl)
}

// Load returns domain.ErrNotFound on a miss and records hit/miss metrics.
func (c *SnapshotCache) Load(ctx context.Context, id string) (*model.SessionSnapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey(id))
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncCacheRequest(snapshotCacheName, "miss")
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	var entry cachedSnapshot
	if err := json.Unmarshal([]byte(data), &entry); err != nil || entry.Snapshot == nil {
		metrics.IncCacheRequest(snapshotCacheName, "corrupt")
		return nil, fmt.Errorf("decode cached snapshot %s: %w", id, errors.Join(domain.ErrMalformedResponse, err))
	}
	s, err := c.open(entry)
	if err != nil {
		metrics.IncCacheRequest(snapshotCacheName, "corrupt")
		return nil, err
	}
	metrics.IncCacheRequest(snapshotCacheName, "hit")
	return s, nil
}

func (c *SnapshotCache) Drop(ctx context.Context, id string) error {
	return c.client.Del(ctx, snapshotKey(id))
}

func (c *SnapshotCache) Extend(ctx context.Context, id string) error {
	return c.client.Expire(ctx, snapshotKey(id), c.ttl)
}

func (c *SnapshotCache) seal(s *model.SessionSnapshot) (cachedSnapshot, error) {
	if c.sealer == nil {
		return cachedSnapshot{Snapshot: s}, nil
	}
	out := *s
	out.History = model.CloneHistory(s.History)
	for i := range out.History {
		sealed, err := c.sealer.Seal([]byte(out.History[i].Content), s.ID)
		if err != nil {
			return cachedSnapshot{}, fmt.Errorf("seal cached msg: %w", err)
		}
		out.History[i].Content = sealed
	}
	return cachedSnapshot{Sealed: true, Snapshot: &out}, nil
}

func (c *SnapshotCache) open(entry cachedSnapshot) (*model.SessionSnapshot, error) {
	s := entry.Snapshot
	if !entry.Sealed {
		return s, nil
	}
	if c.sealer == nil {
		return nil, errors.New("sealed snapshot but no encryption key configured")
	}
	for i := range s.History {
		plain, err := c.sealer.Open(s.History[i].Content, s.ID)
		if err != nil {
			return nil, fmt.Errorf("open cached msg: %w", err)
		}
		s.History[i].Content = string(plain)
	}
	return s, nil
}
