// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/domain/ports/adapter"
	"expert-assistant/internal/persona"
)

// Compile-time check
var _ SessionStore = (*sessionStore)(nil)

// SessionStore owns one conversation: its history, active mode and the
// lifecycle of the single completion request it may have in flight.
type SessionStore interface {
	ID() string
	OwnerID() string
	Mode() model.Mode
	Persona() persona.Persona
	History() []model.ChatMessage
	Status() model.SessionStatus
	LastError() error
	Snapshot() *model.SessionSnapshot

	AppendUserMessage(text string) (model.ChatMessage, error)
	SubmitConversation(ctx context.Context, credentials string) (<-chan Outcome, error)
	Send(ctx context.Context, text, credentials string) (model.ChatMessage, error)
	Retry(ctx context.Context, credentials string) (model.ChatMessage, error)
	SwitchMode(mode model.Mode) error
	ClearHistory() error
	Close() error
}

// PersonaResolver is satisfied by *persona.Catalog.
type PersonaResolver interface {
	Resolve(mode model.Mode) persona.Persona
}

// Executor runs completion tasks. *worker.Pool satisfies it; the default
// starts one goroutine per task.
type Executor interface {
	Submit(task func(ctx context.Context) error) error
}

type goExecutor struct{}

func (goExecutor) Submit(task func(ctx context.Context) error) error {
	go func() { _ = task(context.Background()) }()
	return nil
}

// Outcome is the single result delivered for a submitted conversation.
type Outcome struct {
	Reply     *model.ChatMessage
	Err       error
	Discarded bool
}

type EventType string

const (
	EventAppended     EventType = "appended"
	EventSubmitted    EventType = "submitted"
	EventSucceeded    EventType = "succeeded"
	EventFailed       EventType = "failed"
	EventDiscarded    EventType = "discarded"
	EventModeSwitched EventType = "mode_switched"
	EventCleared      EventType = "cleared"
	EventClosed       EventType = "closed"
)

// Event describes one state change. Snapshot is taken after the change.
type Event struct {
	Type     EventType
	Snapshot *model.SessionSnapshot
	Err      error
}

// Listener observes session events. Listeners run synchronously with the
// session locked, in event order, and must not call back into the session.
type Listener func(Event)

type SessionOption func(*sessionStore)

func WithSessionID(id string) SessionOption {
	return func(s *sessionStore) { s.id = id }
}

func WithOwner(ownerID string) SessionOption {
	return func(s *sessionStore) { s.ownerID = ownerID }
}

func WithMode(mode model.Mode) SessionOption {
	return func(s *sessionStore) { s.mode = mode }
}

func WithExecutor(e Executor) SessionOption {
	return func(s *sessionStore) {
		if e != nil {
			s.exec = e
		}
	}
}

func WithSessionLogger(l *zerolog.Logger) SessionOption {
	return func(s *sessionStore) {
		if l != nil {
			s.log = l
		}
	}
}

func WithListener(l Listener) SessionOption {
	return func(s *sessionStore) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

type flight struct {
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
	done   chan Outcome
	once   sync.Once
}

func (f *flight) finish(o Outcome) {
	f.once.Do(func() { f.done <- o })
}

func (f *flight) release() {
	if f.stop != nil {
		f.stop()
	}
	f.cancel()
}

type sessionStore struct {
	mu        sync.Mutex
	id        string
	ownerID   string
	mode      model.Mode
	history   []model.ChatMessage
	status    model.SessionStatus
	lastErr   error
	epoch     uint64
	inflight  *flight
	closed    bool
	createdAt time.Time
	updatedAt time.Time

	personas  PersonaResolver
	client    adapter.ChatCompletionClient
	exec      Executor
	log       *zerolog.Logger
	listeners []Listener
}

// NewSessionStore starts a session in the default mode (or the one given by
// WithMode) with history [system(prompt)] and status idle.
func NewSessionStore(personas PersonaResolver, client adapter.ChatCompletionClient, opts ...SessionOption) SessionStore {
	s := newSessionStore(personas, client, opts...)
	p := s.personas.Resolve(s.mode)
	s.mode = p.Mode
	s.history = []model.ChatMessage{model.NewChatMessage(model.RoleSystem, p.SystemPrompt)}
	return s
}

// RestoreSessionStore rebuilds a session from a snapshot. History invariants
// are re-checked, the system prompt is re-derived for the snapshot's mode and
// an interrupted request leaves the session idle.
func RestoreSessionStore(snap *model.SessionSnapshot, personas PersonaResolver, client adapter.ChatCompletionClient, opts ...SessionOption) (SessionStore, error) {
	if snap == nil {
		return nil, domain.Validationf("nil snapshot")
	}
	if err := model.ValidateHistory(snap.History); err != nil {
		return nil, fmt.Errorf("restore session %s: %w", snap.ID, err)
	}
	base := []SessionOption{WithSessionID(snap.ID), WithOwner(snap.OwnerID), WithMode(snap.Mode)}
	s := newSessionStore(personas, client, append(base, opts...)...)

	p := s.personas.Resolve(s.mode)
	s.mode = p.Mode
	history := snap.History
	if len(history) > 0 && history[0].Role == model.RoleSystem {
		history = history[1:]
	}
	s.history = make([]model.ChatMessage, 0, len(history)+1)
	s.history = append(s.history, model.NewChatMessage(model.RoleSystem, p.SystemPrompt))
	s.history = append(s.history, history...)
	s.epoch = snap.Epoch
	s.lastErr = domain.RestoreError(snap.ErrorKind, snap.LastError)
	if !snap.CreatedAt.IsZero() {
		s.createdAt = snap.CreatedAt
	}
	if !snap.UpdatedAt.IsZero() {
		s.updatedAt = snap.UpdatedAt
	}
	return s, nil
}

func newSessionStore(personas PersonaResolver, client adapter.ChatCompletionClient, opts ...SessionOption) *sessionStore {
	nop := zerolog.Nop()
	now := time.Now()
	s := &sessionStore{
		mode:      model.DefaultMode,
		status:    model.StatusIdle,
		createdAt: now,
		updatedAt: now,
		personas:  personas,
		client:    client,
		exec:      goExecutor{},
		log:       &nop,
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = domain.NewUUID()
	}
	l := s.log.With().Str("session_id", s.id).Logger()
	s.log = &l
	return s
}

func (s *sessionStore) ID() string      { return s.id }
func (s *sessionStore) OwnerID() string { return s.ownerID }

func (s *sessionStore) Mode() model.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Persona re-resolves the active mode's persona.
func (s *sessionStore) Persona() persona.Persona {
	return s.personas.Resolve(s.Mode())
}

func (s *sessionStore) History() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneHistory(s.history)
}

func (s *sessionStore) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *sessionStore) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *sessionStore) Snapshot() *model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *sessionStore) snapshotLocked() *model.SessionSnapshot {
	snap := &model.SessionSnapshot{
		ID:        s.id,
		OwnerID:   s.ownerID,
		Mode:      s.mode,
		Status:    s.status,
		History:   model.CloneHistory(s.history),
		ErrorKind: domain.KindOf(s.lastErr),
		Epoch:     s.epoch,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

func (s *sessionStore) emitLocked(t EventType, err error) {
	s.updatedAt = time.Now()
	s.log.Debug().
		Str("event", string(t)).
		Str("mode", string(s.mode)).
		Str("status", string(s.status)).
		Uint64("epoch", s.epoch).
		Int("history_len", len(s.history)).
		Err(err).
		Msg("session event")
	if len(s.listeners) == 0 {
		return
	}
	ev := Event{Type: t, Snapshot: s.snapshotLocked(), Err: err}
	for _, l := range s.listeners {
		l(ev)
	}
}

// AppendUserMessage adds a user entry. It is rejected while a request is in
// flight and for empty or whitespace-only text.
func (s *sessionStore) AppendUserMessage(text string) (model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.ChatMessage{}, domain.ErrSessionClosed
	}
	if strings.TrimSpace(text) == "" {
		return model.ChatMessage{}, domain.Validationf("message is empty")
	}
	if s.status == model.StatusLoading {
		return model.ChatMessage{}, domain.Validationf("cannot append while a request is in flight")
	}
	msg := model.NewChatMessage(model.RoleUser, text)
	s.history = append(s.history, msg)
	s.lastErr = nil
	s.emitLocked(EventAppended, nil)
	return msg, nil
}

// SubmitConversation sends the full history to the completion client. The
// returned channel delivers exactly one Outcome. Cancelling ctx discards the
// result; a ctx deadline is reported as a network failure.
func (s *sessionStore) SubmitConversation(ctx context.Context, credentials string) (<-chan Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSessionClosed
	}
	if s.status == model.StatusLoading {
		return nil, domain.ErrAlreadyInProgress
	}
	if len(s.history) == 0 || s.history[len(s.history)-1].Role != model.RoleUser {
		return nil, domain.Validationf("last message must be from the user")
	}

	msgs := make([]adapter.Message, 0, len(s.history))
	for _, m := range s.history {
		msgs = append(msgs, adapter.Message{Role: string(m.Role), Content: m.Content})
	}

	reqCtx, cancel := context.WithCancel(ctx)
	f := &flight{epoch: s.epoch, ctx: reqCtx, cancel: cancel, done: make(chan Outcome, 1)}
	f.stop = context.AfterFunc(reqCtx, func() { s.interrupted(f) })

	task := func(workerCtx context.Context) error {
		stop := context.AfterFunc(workerCtx, cancel)
		defer stop()
		reply, err := s.call(reqCtx, msgs, credentials)
		s.complete(f, reply, err)
		return nil
	}
	if err := s.exec.Submit(task); err != nil {
		f.release()
		return nil, fmt.Errorf("schedule completion: %w", err)
	}

	s.inflight = f
	s.status = model.StatusLoading
	s.lastErr = nil
	s.emitLocked(EventSubmitted, nil)
	return f.done, nil
}

func (s *sessionStore) call(ctx context.Context, msgs []adapter.Message, credentials string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion client panicked: %v", r)
		}
	}()
	return s.client.Complete(ctx, msgs, credentials)
}

func (s *sessionStore) complete(f *flight, reply string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != f || s.epoch != f.epoch {
		f.release()
		f.finish(Outcome{Discarded: true, Err: domain.ErrRequestDiscarded})
		return
	}
	if cerr := f.ctx.Err(); cerr != nil {
		s.interruptLocked(f, cerr)
		return
	}
	s.inflight = nil
	f.release()
	s.status = model.StatusIdle

	if err != nil {
		s.lastErr = err
		s.emitLocked(EventFailed, err)
		f.finish(Outcome{Err: err})
		return
	}
	msg := model.NewChatMessage(model.RoleAssistant, reply)
	s.history = append(s.history, msg)
	s.lastErr = nil
	s.emitLocked(EventSucceeded, nil)
	f.finish(Outcome{Reply: &msg})
}

// interrupted runs when the request context ends before the client returns.
func (s *sessionStore) interrupted(f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != f {
		return
	}
	s.interruptLocked(f, f.ctx.Err())
}

func (s *sessionStore) interruptLocked(f *flight, cause error) {
	s.inflight = nil
	f.release()
	s.status = model.StatusIdle
	if errors.Is(cause, context.DeadlineExceeded) {
		err := fmt.Errorf("%w: %w", domain.ErrNetwork, cause)
		s.lastErr = err
		s.emitLocked(EventFailed, err)
		f.finish(Outcome{Err: err})
		return
	}
	err := fmt.Errorf("%w: %w", domain.ErrRequestDiscarded, cause)
	s.emitLocked(EventDiscarded, err)
	f.finish(Outcome{Discarded: true, Err: err})
}

// abandonLocked drops the in-flight request, if any. Its eventual result is
// ignored by complete because inflight no longer points at it.
func (s *sessionStore) abandonLocked() {
	f := s.inflight
	if f == nil {
		return
	}
	s.inflight = nil
	f.release()
	s.status = model.StatusIdle
	s.emitLocked(EventDiscarded, domain.ErrRequestDiscarded)
	f.finish(Outcome{Discarded: true, Err: domain.ErrRequestDiscarded})
}

// Send appends text, submits the conversation and waits for the reply.
func (s *sessionStore) Send(ctx context.Context, text, credentials string) (model.ChatMessage, error) {
	if _, err := s.AppendUserMessage(text); err != nil {
		return model.ChatMessage{}, err
	}
	return s.Retry(ctx, credentials)
}

// Retry resubmits the conversation as it stands, typically after a failure
// left the user's message unanswered, and waits for the reply.
func (s *sessionStore) Retry(ctx context.Context, credentials string) (model.ChatMessage, error) {
	ch, err := s.SubmitConversation(ctx, credentials)
	if err != nil {
		return model.ChatMessage{}, err
	}
	out := <-ch
	if out.Err != nil {
		return model.ChatMessage{}, out.Err
	}
	return *out.Reply, nil
}

// SwitchMode cancels any in-flight request and resets history to the new
// mode's system prompt. Unknown modes resolve to the default persona.
func (s *sessionStore) SwitchMode(mode model.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	s.abandonLocked()
	p := s.personas.Resolve(mode)
	s.epoch++
	s.mode = p.Mode
	s.history = []model.ChatMessage{model.NewChatMessage(model.RoleSystem, p.SystemPrompt)}
	s.status = model.StatusIdle
	s.lastErr = nil
	s.emitLocked(EventModeSwitched, nil)
	return nil
}

// ClearHistory cancels any in-flight request and resets history to the
// current mode's system prompt, re-derived from the persona catalog.
func (s *sessionStore) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	s.abandonLocked()
	p := s.personas.Resolve(s.mode)
	s.epoch++
	s.history = []model.ChatMessage{model.NewChatMessage(model.RoleSystem, p.SystemPrompt)}
	s.status = model.StatusIdle
	s.lastErr = nil
	s.emitLocked(EventCleared, nil)
	return nil
}

// Close tears the session down. It is idempotent.
func (s *sessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.abandonLocked()
	s.epoch++
	s.closed = true
	s.emitLocked(EventClosed, nil)
	return nil
}
