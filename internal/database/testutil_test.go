package database

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/victorivanov/courier/internal/models"
)

// testPool returns a pgxpool.Pool connected to the test database.
// It skips the test if DATABASE_URL is not set.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	pool, err := NewPostgresPool(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

// testIDCounter provides unique IDs across all tests in the package.
// Starts well above zero to avoid conflicts with any existing data.
var testIDCounter int64 = 500000

func nextID() int64 {
	return atomic.AddInt64(&testIDCounter, 1)
}

// createTestUser inserts a directory row directly; the service never writes
// the users table, so tests seed it by hand.
func createTestUser(t *testing.T, pool *pgxpool.Pool) models.Profile {
	t.Helper()
	id := nextID()
	username := fmt.Sprintf("testuser-%d", id)
	p := models.Profile{UserID: id, Username: username, DisplayName: "Test User"}

	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, username, display_name) VALUES ($1, $2, $3)`,
		p.UserID, p.Username, p.DisplayName,
	)
	if err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	t.Cleanup(func() {
		_, err := pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			t.Logf("cleanup user %d: %v", id, err)
		}
	})
	return p
}

// cleanupConversation deletes a conversation directly via SQL. Participants
// and messages have ON DELETE CASCADE, so deleting the conversation suffices.
func cleanupConversation(t *testing.T, pool *pgxpool.Pool, conversationID int64) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `DELETE FROM conversations WHERE id = $1`, conversationID)
	if err != nil {
		t.Logf("cleanupConversation: %v", err)
	}
}
