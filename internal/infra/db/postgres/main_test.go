//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"expert-assistant/internal/config"
)

var testPool *pgxpool.Pool

// TestMain expects DATABASE_URL to point at a disposable database; the
// package's tests are skipped when it is unset or unreachable.
func TestMain(m *testing.M) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		fmt.Println("DATABASE_URL not set; skipping postgres integration tests")
		os.Exit(0)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log := zerolog.Nop()
	if err := RunMigrations(url, &log); err != nil {
		fmt.Printf("could not apply migrations: %v\n", err)
		os.Exit(1)
	}
	var err error
	testPool, err = Connect(ctx, config.DatabaseConfig{URL: url})
	if err != nil {
		fmt.Printf("could not connect: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	testPool.Close()
	os.Exit(code)
}

func cleanup(t *testing.T) {
	t.Helper()
	if _, err := testPool.Exec(context.Background(), `TRUNCATE sessions, session_messages;`); err != nil {
		t.Fatalf("Failed to clean up database: %v", err)
	}
}
