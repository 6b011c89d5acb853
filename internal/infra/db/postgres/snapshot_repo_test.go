//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/infra/security"
)

func sampleSnapshot(owner string, created time.Time) *model.SessionSnapshot {
	return &model.SessionSnapshot{
		ID:      domain.NewUUID(),
		OwnerID: owner,
		Mode:    model.ModeProduct,
		Status:  model.StatusIdle,
		History: []model.ChatMessage{
			model.NewChatMessage(model.RoleSystem, "product prompt"),
			model.NewChatMessage(model.RoleUser, "What's the price of item X?"),
			model.NewChatMessage(model.RoleAssistant, "It costs $10."),
		},
		LastError: "network unreachable",
		ErrorKind: domain.KindNetwork,
		Epoch:     2,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestSnapshotRepo_Integration(t *testing.T) {
	ctx := context.Background()
	enc, err := security.NewEncryptionService("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("failed to create encryption service: %v", err)
	}

	for name, repo := range map[string]*SnapshotRepo{
		"plain":     NewSnapshotRepo(testPool, nil, nil),
		"encrypted": NewSnapshotRepo(testPool, nil, enc),
	} {
		t.Run(name, func(t *testing.T) {
			cleanup(t)
			now := time.Now().UTC().Truncate(time.Millisecond)
			s := sampleSnapshot("alice", now)
			if err := repo.Save(ctx, s); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := repo.FindByID(ctx, s.ID)
			if err != nil {
				t.Fatalf("FindByID: %v", err)
			}
			if len(got.History) != 3 || got.History[2].Content != "It costs $10." || got.History[0].Role != model.RoleSystem {
				t.Fatalf("history = %+v", got.History)
			}
			if got.Epoch != 2 || got.ErrorKind != domain.KindNetwork || got.LastError != "network unreachable" {
				t.Fatalf("metadata = %+v", got)
			}

			// saving again replaces the history instead of appending
			s.History = s.History[:1]
			s.Mode = model.ModeFinance
			if err := repo.Save(ctx, s); err != nil {
				t.Fatalf("second Save: %v", err)
			}
			got, _ = repo.FindByID(ctx, s.ID)
			if len(got.History) != 1 || got.Mode != model.ModeFinance {
				t.Fatalf("after reset = %+v", got)
			}

			other := sampleSnapshot("alice", now.Add(time.Second))
			_ = repo.Save(ctx, other)
			all, err := repo.FindAllByOwner(ctx, "alice")
			if err != nil || len(all) != 2 || all[0].ID != s.ID {
				t.Fatalf("FindAllByOwner = %v, %v", all, err)
			}

			if err := repo.Delete(ctx, s.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := repo.FindByID(ctx, s.ID); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("after delete: %v", err)
			}
			if err := repo.Delete(ctx, s.ID); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("second delete: %v", err)
			}
		})
	}
}

func TestSnapshotRepo_EncryptedAtRest(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	enc, _ := security.NewEncryptionService("0123456789abcdef")
	repo := NewSnapshotRepo(testPool, nil, enc)
	s := sampleSnapshot("bob", time.Now().UTC())
	if err := repo.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	var content string
	var encrypted bool
	err := testPool.QueryRow(ctx, `SELECT content, encrypted FROM session_messages WHERE session_id=$1 AND seq=1`, s.ID).Scan(&content, &encrypted)
	if err != nil {
		t.Fatal(err)
	}
	if !encrypted || content == "What's the price of item X?" {
		t.Fatalf("message stored in clear: %q", content)
	}
}
