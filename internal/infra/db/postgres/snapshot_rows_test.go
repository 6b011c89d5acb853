package postgres

import (
	"io/fs"
	"testing"
	"time"

	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/infra/security"
)

func TestMessageRows_SealsWithSessionID(t *testing.T) {
	enc, err := security.NewEncryptionService("0123456789abcdef")
	if err != nil {
		t.Fatal(err)
	}
	s := &model.SessionSnapshot{
		ID: "sess-1",
		History: []model.ChatMessage{
			{ID: "m1", Role: model.RoleSystem, Content: "prompt", Timestamp: time.Now()},
			{ID: "m2", Role: model.RoleUser, Content: "hello", Timestamp: time.Now()},
		},
	}

	plain, err := (&SnapshotRepo{}).messageRows(s)
	if err != nil {
		t.Fatal(err)
	}
	if plain[1][4] != "hello" || plain[1][5] != false || plain[1][1] != 1 {
		t.Fatalf("plain row = %v", plain[1])
	}

	sealed, err := (&SnapshotRepo{sealer: enc}).messageRows(s)
	if err != nil {
		t.Fatal(err)
	}
	content, _ := sealed[1][4].(string)
	if content == "hello" || sealed[1][5] != true {
		t.Fatalf("row not sealed: %v", sealed[1])
	}
	if pt, err := enc.Open(content, "sess-1"); err != nil || string(pt) != "hello" {
		t.Fatalf("Open = %q, %v", pt, err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Fatalf("migrations = %v", names)
	}
}
