// File: internal/infra/db/postgres/snapshot_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/domain/ports/repository"
	"expert-assistant/internal/infra/redis"
	"expert-assistant/internal/infra/security"
)

var _ repository.SessionSnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo persists sessions and their history. Message content is sealed
// when an encryption service is configured; the cache, when present, is
// read-through and best-effort.
type SnapshotRepo struct {
	pool   *pgxpool.Pool
	tx     *TxManager
	cache  *redis.SnapshotCache
	sealer security.Sealer
}

func NewSnapshotRepo(pool *pgxpool.Pool, cache *redis.SnapshotCache, sealer security.Sealer) *SnapshotRepo {
	return &SnapshotRepo{pool: pool, tx: NewTxManager(pool), cache: cache, sealer: sealer}
}

func (r *SnapshotRepo) Save(ctx context.Context, s *model.SessionSnapshot) error {
	if s == nil || s.ID == "" {
		return domain.Validationf("snapshot without id")
	}
	rows, err := r.messageRows(s)
	if err != nil {
		return err
	}

	const upsert = `
INSERT INTO sessions (id, owner_id, mode, status, last_error, error_kind, epoch, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  mode = EXCLUDED.mode,
  status = EXCLUDED.status,
  last_error = EXCLUDED.last_error,
  error_kind = EXCLUDED.error_kind,
  epoch = EXCLUDED.epoch,
  updated_at = EXCLUDED.updated_at;`

	err = r.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsert, s.ID, s.OwnerID, string(s.Mode), string(s.Status),
			s.LastError, string(s.ErrorKind), int64(s.Epoch), s.CreatedAt, s.UpdatedAt); err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM session_messages WHERE session_id = $1;`, s.ID); err != nil {
			return fmt.Errorf("clear messages: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"session_messages"},
			[]string{"session_id", "seq", "id", "role", "content", "encrypted", "created_at"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if r.cache != nil {
		_ = r.cache.Store(ctx, s)
	}
	return nil
}

func (r *SnapshotRepo) messageRows(s *model.SessionSnapshot) ([][]interface{}, error) {
	rows := make([][]interface{}, 0, len(s.History))
	for i, m := range s.History {
		content, enc := m.Content, false
		if r.sealer != nil {
			sealed, err := r.sealer.Seal([]byte(m.Content), s.ID)
			if err != nil {
				return nil, fmt.Errorf("encrypt msg: %w", err)
			}
			content, enc = sealed, true
		}
		rows = append(rows, []interface{}{s.ID, i, m.ID, string(m.Role), content, enc, m.Timestamp})
	}
	return rows, nil
}

func (r *SnapshotRepo) FindByID(ctx context.Context, id string) (*model.SessionSnapshot, error) {
	if r.cache != nil {
		if s, err := r.cache.Load(ctx, id); err == nil {
			return s, nil
		}
	}

	const q = `
SELECT id, owner_id, mode, status, last_error, error_kind, epoch, created_at, updated_at
  FROM sessions WHERE id = $1;`
	s, err := scanSession(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if err := r.loadMessages(ctx, r.pool, s); err != nil {
		return nil, err
	}

	if r.cache != nil {
		_ = r.cache.Store(ctx, s)
	}
	return s, nil
}

func (r *SnapshotRepo) FindAllByOwner(ctx context.Context, ownerID string) ([]*model.SessionSnapshot, error) {
	const q = `
SELECT id, owner_id, mode, status, last_error, error_kind, epoch, created_at, updated_at
  FROM sessions WHERE owner_id = $1 ORDER BY created_at ASC;`
	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	var out []*model.SessionSnapshot
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, s := range out {
		if err := r.loadMessages(ctx, r.pool, s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SnapshotRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if r.cache != nil {
		_ = r.cache.Drop(ctx, id)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (*model.SessionSnapshot, error) {
	var (
		s                       model.SessionSnapshot
		mode, status, errorKind string
		epoch                   int64
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &mode, &status, &s.LastError, &errorKind, &epoch, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Mode = model.Mode(mode)
	s.Status = model.SessionStatus(status)
	s.ErrorKind = domain.ErrorKind(errorKind)
	s.Epoch = uint64(epoch)
	return &s, nil
}

func (r *SnapshotRepo) loadMessages(ctx context.Context, q querier, s *model.SessionSnapshot) error {
	const qm = `SELECT id, role, content, encrypted, created_at FROM session_messages WHERE session_id = $1 ORDER BY seq ASC;`
	rows, err := q.Query(ctx, qm, s.ID)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m    model.ChatMessage
			role string
			enc  bool
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &enc, &m.Timestamp); err != nil {
			return fmt.Errorf("scan msg: %w", err)
		}
		if enc {
			if r.sealer == nil {
				return errors.New("encrypted message but no encryption key configured")
			}
			plain, err := r.sealer.Open(m.Content, s.ID)
			if err != nil {
				return fmt.Errorf("decrypt msg: %w", err)
			}
			m.Content = string(plain)
		}
		m.Role = model.Role(role)
		s.History = append(s.History, m)
	}
	return rows.Err()
}
