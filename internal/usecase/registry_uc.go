// File: internal/usecase/registry_uc.go
package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/domain/ports/adapter"
	"expert-assistant/internal/domain/ports/repository"
)

// Compile-time check
var _ SessionRegistry = (*sessionRegistry)(nil)

// SessionRegistry keeps the live sessions of every client. Sessions are owned;
// a session looked up by anyone but its owner is reported as not found.
type SessionRegistry interface {
	Create(ctx context.Context, ownerID string, mode model.Mode) (SessionStore, error)
	Get(ctx context.Context, ownerID, id string) (SessionStore, error)
	List(ctx context.Context, ownerID string) ([]*model.SessionSnapshot, error)
	Delete(ctx context.Context, ownerID, id string) error
	Len() int
	Close(ctx context.Context) error
}

type RegistryConfig struct {
	// MaxPerOwner caps live sessions per client; the oldest is evicted. 0 = unlimited.
	MaxPerOwner int
	// PersistTimeout bounds each snapshot write.
	PersistTimeout time.Duration
}

type RegistryOption func(*sessionRegistry)

// WithSnapshots persists every session event and restores sessions on Get.
func WithSnapshots(repo repository.SessionSnapshotRepository) RegistryOption {
	return func(r *sessionRegistry) { r.repo = repo }
}

func WithRegistryExecutor(e Executor) RegistryOption {
	return func(r *sessionRegistry) { r.exec = e }
}

func WithRegistryLogger(l *zerolog.Logger) RegistryOption {
	return func(r *sessionRegistry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithSessionListener attaches l to every session the registry creates or restores.
func WithSessionListener(l Listener) RegistryOption {
	return func(r *sessionRegistry) {
		if l != nil {
			r.listeners = append(r.listeners, l)
		}
	}
}

// WithLiveGauge is called with the number of live sessions after each change.
func WithLiveGauge(fn func(n int)) RegistryOption {
	return func(r *sessionRegistry) { r.gauge = fn }
}

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]SessionStore
	byOwner  map[string][]string // oldest first

	cfg       RegistryConfig
	personas  PersonaResolver
	client    adapter.ChatCompletionClient
	repo      repository.SessionSnapshotRepository
	exec      Executor
	log       *zerolog.Logger
	listeners []Listener
	gauge     func(n int)
}

func NewSessionRegistry(cfg RegistryConfig, personas PersonaResolver, client adapter.ChatCompletionClient, opts ...RegistryOption) *sessionRegistry {
	nop := zerolog.Nop()
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 3 * time.Second
	}
	r := &sessionRegistry{
		sessions: make(map[string]SessionStore),
		byOwner:  make(map[string][]string),
		cfg:      cfg,
		personas: personas,
		client:   client,
		log:      &nop,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *sessionRegistry) sessionOptions(ownerID string) []SessionOption {
	opts := []SessionOption{WithOwner(ownerID), WithSessionLogger(r.log), WithExecutor(r.exec)}
	if r.repo != nil {
		opts = append(opts, WithListener(r.persist))
	}
	for _, l := range r.listeners {
		opts = append(opts, WithListener(l))
	}
	return opts
}

func (r *sessionRegistry) persist(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PersistTimeout)
	defer cancel()
	if err := r.repo.Save(ctx, ev.Snapshot); err != nil {
		r.log.Warn().Err(err).
			Str("session_id", ev.Snapshot.ID).
			Str("event", string(ev.Type)).
			Msg("persist session snapshot")
	}
}

func (r *sessionRegistry) Create(ctx context.Context, ownerID string, mode model.Mode) (SessionStore, error) {
	if ownerID == "" {
		return nil, domain.Validationf("owner is required")
	}
	opts := append(r.sessionOptions(ownerID), WithMode(mode))
	s := NewSessionStore(r.personas, r.client, opts...)
	if r.repo != nil {
		if err := r.repo.Save(ctx, s.Snapshot()); err != nil {
			return nil, err
		}
	}
	_, evicted := r.addIfAbsent(s)
	r.drop(ctx, evicted)
	r.log.Info().Str("session_id", s.ID()).Str("client_id", ownerID).Str("mode", string(s.Mode())).Msg("session created")
	return s, nil
}

// addIfAbsent registers s unless a session with the same id is already live,
// in which case that session is returned and s is left unregistered. It also
// returns the sessions evicted to honour MaxPerOwner.
func (r *sessionRegistry) addIfAbsent(s SessionStore) (SessionStore, []SessionStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[s.ID()]; ok {
		return existing, nil
	}
	r.sessions[s.ID()] = s
	ids := append(r.byOwner[s.OwnerID()], s.ID())

	var evicted []SessionStore
	for r.cfg.MaxPerOwner > 0 && len(ids) > r.cfg.MaxPerOwner {
		old := ids[0]
		ids = ids[1:]
		if es, ok := r.sessions[old]; ok {
			evicted = append(evicted, es)
			delete(r.sessions, old)
		}
	}
	r.byOwner[s.OwnerID()] = ids
	r.reportLocked()
	return s, evicted
}

func (r *sessionRegistry) drop(ctx context.Context, sessions []SessionStore) {
	for _, s := range sessions {
		_ = s.Close()
		if r.repo != nil {
			if err := r.repo.Delete(ctx, s.ID()); err != nil && !errors.Is(err, domain.ErrNotFound) {
				r.log.Warn().Err(err).Str("session_id", s.ID()).Msg("delete evicted session")
			}
		}
		r.log.Info().Str("session_id", s.ID()).Str("client_id", s.OwnerID()).Msg("session evicted")
	}
}

func (r *sessionRegistry) Get(ctx context.Context, ownerID, id string) (SessionStore, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		if s.OwnerID() != ownerID {
			return nil, domain.ErrNotFound
		}
		return s, nil
	}
	if r.repo == nil {
		return nil, domain.ErrNotFound
	}

	snap, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	restored, err := RestoreSessionStore(snap, r.personas, r.client, r.sessionOptions(ownerID)...)
	if err != nil {
		return nil, err
	}

	live, evicted := r.addIfAbsent(restored)
	if live != restored {
		// a concurrent Get restored it first; restored was never registered
		return live, nil
	}
	r.drop(ctx, evicted)
	r.log.Debug().Str("session_id", id).Str("client_id", ownerID).Msg("session restored")
	return restored, nil
}

// List returns snapshots of the owner's sessions, live ones first, then any
// persisted sessions not currently loaded.
func (r *sessionRegistry) List(ctx context.Context, ownerID string) ([]*model.SessionSnapshot, error) {
	r.mu.Lock()
	live := make([]SessionStore, 0, len(r.byOwner[ownerID]))
	for _, id := range r.byOwner[ownerID] {
		if s, ok := r.sessions[id]; ok {
			live = append(live, s)
		}
	}
	r.mu.Unlock()

	out := make([]*model.SessionSnapshot, 0, len(live))
	seen := make(map[string]bool, len(live))
	for _, s := range live {
		out = append(out, s.Snapshot())
		seen[s.ID()] = true
	}
	if r.repo == nil {
		return out, nil
	}
	stored, err := r.repo.FindAllByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, snap := range stored {
		if !seen[snap.ID] {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (r *sessionRegistry) Delete(ctx context.Context, ownerID, id string) error {
	s, err := r.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.sessions, id)
	ids := r.byOwner[ownerID]
	for i, v := range ids {
		if v == id {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.byOwner, ownerID)
	} else {
		r.byOwner[ownerID] = ids
	}
	r.reportLocked()
	r.mu.Unlock()

	_ = s.Close()
	if r.repo != nil {
		if err := r.repo.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	r.log.Info().Str("session_id", id).Str("client_id", ownerID).Msg("session deleted")
	return nil
}

func (r *sessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close tears down every live session. Persisted snapshots are kept so the
// sessions can be restored after a restart.
func (r *sessionRegistry) Close(ctx context.Context) error {
	r.mu.Lock()
	all := make([]SessionStore, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]SessionStore)
	r.byOwner = make(map[string][]string)
	r.reportLocked()
	r.mu.Unlock()

	for _, s := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = s.Close()
	}
	return nil
}

func (r *sessionRegistry) reportLocked() {
	if r.gauge != nil {
		r.gauge(len(r.sessions))
	}
}
