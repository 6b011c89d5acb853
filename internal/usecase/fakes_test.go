package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/domain/ports/adapter"
	"expert-assistant/internal/persona"
)

// ---- Personas ----

// fakePersonas renders prompts with a revision so tests can tell a re-derived
// prompt from a cached one.
type fakePersonas struct {
	mu  sync.Mutex
	rev int
}

func (f *fakePersonas) Resolve(m model.Mode) persona.Persona {
	if !m.Valid() {
		m = model.DefaultMode
	}
	f.mu.Lock()
	rev := f.rev
	f.mu.Unlock()
	return persona.Persona{Mode: m, DisplayName: string(m), SystemPrompt: fmt.Sprintf("%s prompt v%d", m, rev)}
}

func (f *fakePersonas) bump() {
	f.mu.Lock()
	f.rev++
	f.mu.Unlock()
}

func promptFor(p PersonaResolver, m model.Mode) string {
	return p.Resolve(m).SystemPrompt
}

// ---- Completion clients ----

type call struct {
	messages    []adapter.Message
	credentials string
}

// scriptedClient answers each call from fn and records what it was sent.
type scriptedClient struct {
	mu    sync.Mutex
	calls []call
	fn    func(n int, messages []adapter.Message) (string, error)
}

func (c *scriptedClient) Complete(ctx context.Context, messages []adapter.Message, credentials string) (string, error) {
	c.mu.Lock()
	n := len(c.calls)
	c.calls = append(c.calls, call{messages: append([]adapter.Message(nil), messages...), credentials: credentials})
	c.mu.Unlock()
	return c.fn(n, messages)
}

func (c *scriptedClient) lastCall(t *testing.T) call {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		t.Fatal("client was never called")
	}
	return c.calls[len(c.calls)-1]
}

func replyWith(text string) *scriptedClient {
	return &scriptedClient{fn: func(int, []adapter.Message) (string, error) { return text, nil }}
}

func failWith(err error) *scriptedClient {
	return &scriptedClient{fn: func(int, []adapter.Message) (string, error) { return "", err }}
}

// blockingClient holds each call until the test releases it.
type blockingClient struct {
	started  chan struct{}
	release  chan string
	honorCtx bool
}

func newBlockingClient(honorCtx bool) *blockingClient {
	return &blockingClient{started: make(chan struct{}, 16), release: make(chan string, 16), honorCtx: honorCtx}
}

func (c *blockingClient) Complete(ctx context.Context, messages []adapter.Message, credentials string) (string, error) {
	c.started <- struct{}{}
	if !c.honorCtx {
		return <-c.release, nil
	}
	select {
	case r := <-c.release:
		return r, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *blockingClient) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-c.started:
	case <-time.After(2 * time.Second):
		t.Fatal("completion never started")
	}
}

// ---- Executors ----

// trackingExecutor runs tasks on goroutines and lets tests wait for them.
type trackingExecutor struct {
	wg sync.WaitGroup
}

func (e *trackingExecutor) Submit(task func(ctx context.Context) error) error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_ = task(context.Background())
	}()
	return nil
}

func (e *trackingExecutor) wait(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() { e.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not finish")
	}
}

type rejectingExecutor struct{}

func (rejectingExecutor) Submit(func(ctx context.Context) error) error {
	return errors.New("worker queue full")
}

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome delivered")
		return Outcome{}
	}
}

// ---- Snapshot repository ----

type memSnapshotRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.SessionSnapshot
	saves   int
	saveErr error
}

func newMemSnapshotRepo() *memSnapshotRepo {
	return &memSnapshotRepo{byID: make(map[string]*model.SessionSnapshot)}
}

func (m *memSnapshotRepo) Save(ctx context.Context, s *model.SessionSnapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.History = model.CloneHistory(s.History)
	m.byID[s.ID] = &cp
	m.saves++
	return nil
}

func (m *memSnapshotRepo) FindByID(ctx context.Context, id string) (*model.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	cp.History = model.CloneHistory(s.History)
	return &cp, nil
}

func (m *memSnapshotRepo) FindAllByOwner(ctx context.Context, ownerID string) ([]*model.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SessionSnapshot
	for _, s := range m.byID {
		if s.OwnerID == ownerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memSnapshotRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memSnapshotRepo) get(id string) (*model.SessionSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	return s, ok
}
