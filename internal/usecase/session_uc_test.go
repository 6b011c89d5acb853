package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/domain/ports/adapter"
	"expert-assistant/internal/persona"
)

func roles(h []model.ChatMessage) []model.Role {
	out := make([]model.Role, len(h))
	for i, m := range h {
		out[i] = m.Role
	}
	return out
}

func assertOnlySystem(t *testing.T, s SessionStore, prompt string) {
	t.Helper()
	h := s.History()
	if len(h) != 1 || h[0].Role != model.RoleSystem || h[0].Content != prompt {
		t.Fatalf("expected history [system(%q)], got %+v", prompt, h)
	}
}

func TestNewSessionStore_StartsIdleWithSystemPrompt(t *testing.T) {
	p := &fakePersonas{}
	s := NewSessionStore(p, replyWith("x"))

	if s.ID() == "" {
		t.Fatal("expected generated id")
	}
	if s.Mode() != model.ModeProduct || s.Status() != model.StatusIdle || s.LastError() != nil {
		t.Fatalf("unexpected initial state: mode=%s status=%s err=%v", s.Mode(), s.Status(), s.LastError())
	}
	assertOnlySystem(t, s, promptFor(p, model.ModeProduct))
}

func TestSend_ProductPriceScenario(t *testing.T) {
	catalog, err := persona.NewCatalog(persona.StaticProducts{
		{Name: "Item X", Price: decimal.NewFromInt(10), Currency: "USD"},
	})
	if err != nil {
		t.Fatal(err)
	}
	client := replyWith("It costs $10.")
	s := NewSessionStore(catalog, client)

	reply, err := s.Send(context.Background(), "What's the price of item X?", "sk-test")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Role != model.RoleAssistant || reply.Content != "It costs $10." {
		t.Fatalf("unexpected reply %+v", reply)
	}

	h := s.History()
	productPrompt := catalog.Resolve(model.ModeProduct).SystemPrompt
	if len(h) != 3 ||
		h[0].Role != model.RoleSystem || h[0].Content != productPrompt ||
		h[1].Role != model.RoleUser || h[1].Content != "What's the price of item X?" ||
		h[2].Role != model.RoleAssistant || h[2].Content != "It costs $10." {
		t.Fatalf("unexpected history %+v", h)
	}
	if s.Status() != model.StatusIdle {
		t.Fatalf("expected idle, got %s", s.Status())
	}

	c := client.lastCall(t)
	if c.credentials != "sk-test" {
		t.Fatalf("credentials not passed through: %q", c.credentials)
	}
	if len(c.messages) != 2 || c.messages[0].Role != "system" || c.messages[1].Role != "user" {
		t.Fatalf("client received %+v", c.messages)
	}
}

func TestSend_RoundsGrowByTwoAndAlternate(t *testing.T) {
	client := &scriptedClient{fn: func(n int, _ []adapter.Message) (string, error) {
		return fmt.Sprintf("answer %d", n), nil
	}}
	s := NewSessionStore(&fakePersonas{}, client)

	for i := 0; i < 4; i++ {
		before := len(s.History())
		if _, err := s.Send(context.Background(), fmt.Sprintf("question %d", i), ""); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if got := len(s.History()); got != before+2 {
			t.Fatalf("round %d: history grew from %d to %d", i, before, got)
		}
	}

	rs := roles(s.History())
	for i, r := range rs[1:] {
		want := model.RoleUser
		if i%2 == 1 {
			want = model.RoleAssistant
		}
		if r != want {
			t.Fatalf("position %d: role %s, want %s (%v)", i+1, r, want, rs)
		}
	}
	if c := client.lastCall(t); len(c.messages) != 8 {
		t.Fatalf("last call carried %d messages, want full history of 8", len(c.messages))
	}
}

func TestSend_TimeoutKeepsUserMessage(t *testing.T) {
	s := NewSessionStore(&fakePersonas{}, failWith(fmt.Errorf("%w: i/o timeout", domain.ErrNetwork)))

	_, err := s.Send(context.Background(), "hello?", "")
	if domain.KindOf(err) != domain.KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if got := roles(s.History()); len(got) != 2 || got[1] != model.RoleUser {
		t.Fatalf("expected [system, user], got %v", got)
	}
	if domain.KindOf(s.LastError()) != domain.KindNetwork {
		t.Fatalf("lastError = %v", s.LastError())
	}
	if s.Status() != model.StatusIdle {
		t.Fatalf("expected idle, got %s", s.Status())
	}
}

func TestSend_CallerDeadlineIsNetworkFailure(t *testing.T) {
	client := newBlockingClient(false)
	s := NewSessionStore(&fakePersonas{}, client)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Send(ctx, "slow question", "")
	if domain.KindOf(err) != domain.KindNetwork || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected network deadline error, got %v", err)
	}
	if got := roles(s.History()); len(got) != 2 {
		t.Fatalf("expected [system, user], got %v", got)
	}
	if s.Status() != model.StatusIdle || domain.KindOf(s.LastError()) != domain.KindNetwork {
		t.Fatalf("status=%s lastError=%v", s.Status(), s.LastError())
	}

	client.release <- "too late"
}

func TestFailure_PreservesHistoryAndRecordsKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"auth", fmt.Errorf("openai: %w", domain.ErrAuthentication), domain.KindAuthentication},
		{"upstream", &domain.UpstreamError{StatusCode: 503, Code: "overloaded"}, domain.KindUpstream},
		{"malformed", domain.ErrMalformedResponse, domain.KindMalformedResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSessionStore(&fakePersonas{}, failWith(tc.err))
			if _, err := s.AppendUserMessage("hi"); err != nil {
				t.Fatal(err)
			}
			before := s.History()

			ch, err := s.SubmitConversation(context.Background(), "")
			if err != nil {
				t.Fatal(err)
			}
			out := waitOutcome(t, ch)
			if out.Discarded || out.Reply != nil || domain.KindOf(out.Err) != tc.want {
				t.Fatalf("unexpected outcome %+v", out)
			}
			after := s.History()
			if len(after) != len(before) || after[1].ID != before[1].ID {
				t.Fatalf("history changed on failure: %+v", after)
			}
			if domain.KindOf(s.LastError()) != tc.want {
				t.Fatalf("lastError kind %q, want %q", domain.KindOf(s.LastError()), tc.want)
			}
			snap := s.Snapshot()
			if snap.ErrorKind != tc.want || snap.LastError == "" || snap.Status != model.StatusIdle {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
		})
	}
}

func TestRetry_AfterFailureClearsLastError(t *testing.T) {
	client := &scriptedClient{fn: func(n int, _ []adapter.Message) (string, error) {
		if n == 0 {
			return "", domain.ErrAuthentication
		}
		return "welcome back", nil
	}}
	s := NewSessionStore(&fakePersonas{}, client)

	if _, err := s.Send(context.Background(), "hi", ""); !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("expected auth error, got %v", err)
	}
	reply, err := s.Retry(context.Background(), "sk-new")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if reply.Content != "welcome back" || s.LastError() != nil {
		t.Fatalf("reply=%+v lastError=%v", reply, s.LastError())
	}
	if got := roles(s.History()); len(got) != 3 {
		t.Fatalf("expected [system, user, assistant], got %v", got)
	}
}

func TestSubmit_WhileLoadingIsRejected(t *testing.T) {
	client := newBlockingClient(true)
	s := NewSessionStore(&fakePersonas{}, client)
	if _, err := s.AppendUserMessage("first"); err != nil {
		t.Fatal(err)
	}
	ch, err := s.SubmitConversation(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	client.waitStarted(t)

	before := s.History()
	if _, err := s.SubmitConversation(context.Background(), ""); !errors.Is(err, domain.ErrAlreadyInProgress) {
		t.Fatalf("expected ErrAlreadyInProgress, got %v", err)
	}
	if _, err := s.AppendUserMessage("second"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error appending while loading, got %v", err)
	}
	if len(s.History()) != len(before) || s.Status() != model.StatusLoading {
		t.Fatalf("state changed while loading: status=%s history=%d", s.Status(), len(s.History()))
	}

	client.release <- "done"
	out := waitOutcome(t, ch)
	if out.Err != nil || out.Reply == nil || out.Reply.Content != "done" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if s.Status() != model.StatusIdle {
		t.Fatalf("expected idle, got %s", s.Status())
	}
}

func TestSubmit_RequiresTrailingUserMessage(t *testing.T) {
	s := NewSessionStore(&fakePersonas{}, replyWith("ok"))

	if _, err := s.SubmitConversation(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error on system-only history, got %v", err)
	}
	if _, err := s.Send(context.Background(), "hi", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SubmitConversation(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error after assistant reply, got %v", err)
	}
	if s.Status() != model.StatusIdle {
		t.Fatalf("rejected submit changed status to %s", s.Status())
	}
}

func TestAppend_RejectsBlankText(t *testing.T) {
	s := NewSessionStore(&fakePersonas{}, replyWith("ok"))
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := s.AppendUserMessage(text); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("AppendUserMessage(%q) err = %v", text, err)
		}
	}
	if len(s.History()) != 1 {
		t.Fatalf("blank text mutated history: %+v", s.History())
	}
}

func TestSwitchMode_StockToFinanceResets(t *testing.T) {
	p := &fakePersonas{}
	s := NewSessionStore(p, replyWith("sure"), WithMode(model.ModeStock))
	for i := 0; i < 2; i++ {
		if _, err := s.Send(context.Background(), "ticker?", ""); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(s.Snapshot().Transcript()); n != 4 {
		t.Fatalf("expected 4 prior messages, got %d", n)
	}

	if err := s.SwitchMode(model.ModeFinance); err != nil {
		t.Fatal(err)
	}
	if s.Mode() != model.ModeFinance {
		t.Fatalf("mode = %s", s.Mode())
	}
	assertOnlySystem(t, s, promptFor(p, model.ModeFinance))
}

func TestSwitchMode_AlwaysYieldsSingleSystemMessage(t *testing.T) {
	p := &fakePersonas{}
	for _, target := range append(model.Modes(), model.Mode("bogus")) {
		s := NewSessionStore(p, failWith(domain.ErrNetwork))
		_, _ = s.Send(context.Background(), "x", "")
		if err := s.SwitchMode(target); err != nil {
			t.Fatal(err)
		}
		want := target
		if !target.Valid() {
			want = model.ModeProduct
		}
		if s.Mode() != want || s.LastError() != nil || s.Status() != model.StatusIdle {
			t.Fatalf("switch to %q: mode=%s err=%v status=%s", target, s.Mode(), s.LastError(), s.Status())
		}
		assertOnlySystem(t, s, promptFor(p, want))
	}
}

func TestSwitchMode_DiscardsInflightResult(t *testing.T) {
	for _, honor := range []bool{true, false} {
		t.Run(fmt.Sprintf("honorCtx=%v", honor), func(t *testing.T) {
			p := &fakePersonas{}
			client := newBlockingClient(honor)
			exec := &trackingExecutor{}
			s := NewSessionStore(p, client, WithExecutor(exec))

			if _, err := s.AppendUserMessage("long question"); err != nil {
				t.Fatal(err)
			}
			ch, err := s.SubmitConversation(context.Background(), "")
			if err != nil {
				t.Fatal(err)
			}
			client.waitStarted(t)

			if err := s.SwitchMode(model.ModeFinance); err != nil {
				t.Fatal(err)
			}
			out := waitOutcome(t, ch)
			if !out.Discarded || !errors.Is(out.Err, domain.ErrRequestDiscarded) {
				t.Fatalf("expected discarded outcome, got %+v", out)
			}
			if s.Status() != model.StatusIdle {
				t.Fatalf("expected idle after switch, got %s", s.Status())
			}

			if !honor {
				client.release <- "stale reply"
			}
			exec.wait(t)
			assertOnlySystem(t, s, promptFor(p, model.ModeFinance))
			if s.LastError() != nil {
				t.Fatalf("stale result set lastError: %v", s.LastError())
			}
		})
	}
}

func TestClearHistory_ReDerivesPromptAndCancels(t *testing.T) {
	p := &fakePersonas{}
	client := newBlockingClient(false)
	exec := &trackingExecutor{}
	s := NewSessionStore(p, client, WithExecutor(exec), WithMode(model.ModeStock))

	if _, err := s.AppendUserMessage("q"); err != nil {
		t.Fatal(err)
	}
	ch, err := s.SubmitConversation(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	client.waitStarted(t)

	p.bump()
	if err := s.ClearHistory(); err != nil {
		t.Fatal(err)
	}
	if out := waitOutcome(t, ch); !out.Discarded {
		t.Fatalf("expected discarded outcome, got %+v", out)
	}
	client.release <- "late"
	exec.wait(t)

	assertOnlySystem(t, s, "stock prompt v1")
	if s.Mode() != model.ModeStock || s.Status() != model.StatusIdle {
		t.Fatalf("mode=%s status=%s", s.Mode(), s.Status())
	}
}

func TestCallerCancel_DiscardsSilently(t *testing.T) {
	client := newBlockingClient(false)
	exec := &trackingExecutor{}
	s := NewSessionStore(&fakePersonas{}, client, WithExecutor(exec))
	if _, err := s.AppendUserMessage("q"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.SubmitConversation(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	client.waitStarted(t)
	cancel()

	out := waitOutcome(t, ch)
	if !out.Discarded || !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("expected discarded outcome, got %+v", out)
	}
	client.release <- "ignored"
	exec.wait(t)

	if got := roles(s.History()); len(got) != 2 {
		t.Fatalf("expected [system, user], got %v", got)
	}
	if s.Status() != model.StatusIdle || s.LastError() != nil {
		t.Fatalf("status=%s lastError=%v", s.Status(), s.LastError())
	}

	// The user message survives, so the conversation can be resubmitted.
	ch, err = s.SubmitConversation(context.Background(), "")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	client.waitStarted(t)
	client.release <- "answer"
	if out := waitOutcome(t, ch); out.Reply == nil || out.Reply.Content != "answer" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestClose_DiscardsAndRejectsFurtherUse(t *testing.T) {
	client := newBlockingClient(true)
	s := NewSessionStore(&fakePersonas{}, client)
	if _, err := s.AppendUserMessage("q"); err != nil {
		t.Fatal(err)
	}
	ch, err := s.SubmitConversation(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	client.waitStarted(t)

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if out := waitOutcome(t, ch); !out.Discarded {
		t.Fatalf("expected discarded outcome, got %+v", out)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.AppendUserMessage("again"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("append after close: %v", err)
	}
	if _, err := s.SubmitConversation(context.Background(), ""); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("submit after close: %v", err)
	}
	if err := s.SwitchMode(model.ModeStock); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("switch after close: %v", err)
	}
	if err := s.ClearHistory(); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("clear after close: %v", err)
	}
}

func TestSubmit_ExecutorRejection(t *testing.T) {
	s := NewSessionStore(&fakePersonas{}, replyWith("ok"), WithExecutor(rejectingExecutor{}))
	if _, err := s.AppendUserMessage("q"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SubmitConversation(context.Background(), ""); err == nil {
		t.Fatal("expected scheduling error")
	}
	if s.Status() != model.StatusIdle {
		t.Fatalf("expected idle after rejected submit, got %s", s.Status())
	}
}

func TestClientPanic_BecomesFailure(t *testing.T) {
	client := &scriptedClient{fn: func(int, []adapter.Message) (string, error) { panic("boom") }}
	s := NewSessionStore(&fakePersonas{}, client)
	if _, err := s.Send(context.Background(), "q", ""); err == nil {
		t.Fatal("expected error from panicking client")
	}
	if s.Status() != model.StatusIdle || s.LastError() == nil {
		t.Fatalf("status=%s lastError=%v", s.Status(), s.LastError())
	}
}

func TestListener_ReceivesEventsInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []EventType
	s := NewSessionStore(&fakePersonas{}, replyWith("ok"), WithListener(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
		if ev.Snapshot == nil || ev.Snapshot.ID == "" {
			t.Errorf("event %s without snapshot", ev.Type)
		}
	}))

	if _, err := s.Send(context.Background(), "q", ""); err != nil {
		t.Fatal(err)
	}
	_ = s.SwitchMode(model.ModeFinance)
	_ = s.ClearHistory()
	_ = s.Close()

	want := []EventType{EventAppended, EventSubmitted, EventSucceeded, EventModeSwitched, EventCleared, EventClosed}
	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestSend_ConcurrentCallersNeverOverlap(t *testing.T) {
	var inflight, maxInflight int
	var mu sync.Mutex
	client := &scriptedClient{fn: func(int, []adapter.Message) (string, error) {
		mu.Lock()
		inflight++
		if inflight > maxInflight {
			maxInflight = inflight
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
		return "ok", nil
	}}
	s := NewSessionStore(&fakePersonas{}, client)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Send(context.Background(), fmt.Sprintf("q%d", i), "")
			if err != nil && !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrAlreadyInProgress) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if maxInflight > 1 {
		t.Fatalf("%d completions overlapped", maxInflight)
	}
	if err := model.ValidateHistory(s.History()); err != nil {
		t.Fatal(err)
	}
	if s.Status() != model.StatusIdle {
		t.Fatalf("expected idle, got %s", s.Status())
	}
}

func TestRestoreSessionStore(t *testing.T) {
	p := &fakePersonas{}
	p.bump()
	now := time.Now().Add(-time.Hour)
	snap := &model.SessionSnapshot{
		ID:      "s-1",
		OwnerID: "client-1",
		Mode:    model.ModeFinance,
		Status:  model.StatusLoading,
		History: []model.ChatMessage{
			{ID: "a", Role: model.RoleSystem, Content: "finance prompt v0"},
			{ID: "b", Role: model.RoleUser, Content: "budget?"},
		},
		LastError: "network error: dial tcp",
		ErrorKind: domain.KindNetwork,
		Epoch:     7,
		CreatedAt: now,
	}

	s, err := RestoreSessionStore(snap, p, replyWith("ok"))
	if err != nil {
		t.Fatalf("RestoreSessionStore: %v", err)
	}
	if s.ID() != "s-1" || s.OwnerID() != "client-1" || s.Mode() != model.ModeFinance {
		t.Fatalf("identity not restored: %s %s %s", s.ID(), s.OwnerID(), s.Mode())
	}
	if s.Status() != model.StatusIdle {
		t.Fatalf("interrupted request should restore as idle, got %s", s.Status())
	}
	h := s.History()
	if len(h) != 2 || h[0].Content != "finance prompt v1" || h[1].ID != "b" {
		t.Fatalf("unexpected restored history %+v", h)
	}
	if domain.KindOf(s.LastError()) != domain.KindNetwork {
		t.Fatalf("lastError not restored: %v", s.LastError())
	}
	got := s.Snapshot()
	if got.Epoch != 7 || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	// A restored session with a trailing user message can be retried.
	if _, err := s.Retry(context.Background(), ""); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	bad := &model.SessionSnapshot{ID: "s-2", History: []model.ChatMessage{
		{Role: model.RoleUser, Content: "x"},
		{Role: model.RoleSystem, Content: "late system"},
	}}
	if _, err := RestoreSessionStore(bad, p, replyWith("ok")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
