package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/victorivanov/courier/internal/auth"
	"github.com/victorivanov/courier/internal/models"
	"github.com/victorivanov/courier/internal/snowflake"
)

// Set via -ldflags at build time.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		if hasFlag("--help", os.Args[2:]) {
			fmt.Println("Usage: courier-cli migrate")
			fmt.Println()
			fmt.Println("Run database migrations from the migrations/ directory.")
			fmt.Println()
			fmt.Println("Environment:")
			fmt.Println("  DATABASE_URL  PostgreSQL connection string (required)")
			return
		}
		os.Exit(runMigrate())
	case "seed":
		if hasFlag("--help", os.Args[2:]) {
			fmt.Println("Usage: courier-cli seed")
			fmt.Println()
			fmt.Println("Seed the database with demo data: 2 users and a conversation.")
			fmt.Println()
			fmt.Println("Environment:")
			fmt.Println("  DATABASE_URL  PostgreSQL connection string (required)")
			fmt.Println("  JWT_SECRET    Token signing secret; prints demo tokens when set")
			return
		}
		os.Exit(runSeed())
	case "watch":
		if hasFlag("--help", os.Args[2:]) {
			fmt.Println("Usage: courier-cli watch <conversation-id>")
			fmt.Println()
			fmt.Println("Tail a conversation: print the thread and stream new messages live.")
			fmt.Println()
			fmt.Println("Environment:")
			fmt.Println("  TOKEN       Access token for the watching user (required)")
			fmt.Println("  SERVER_URL  Server base URL (default: http://localhost:8080)")
			return
		}
		os.Exit(runWatch(os.Args[2:]))
	case "health":
		if hasFlag("--help", os.Args[2:]) {
			fmt.Println("Usage: courier-cli health")
			fmt.Println()
			fmt.Println("Check if the Courier server is running.")
			fmt.Println()
			fmt.Println("Environment:")
			fmt.Println("  SERVER_URL  Server base URL (default: http://localhost:8080)")
			return
		}
		os.Exit(runHealth())
	case "version":
		fmt.Printf("courier-cli %s\n", version)
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: courier-cli <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  migrate  Run database migrations")
	fmt.Println("  seed     Seed demo data (users, a conversation, messages)")
	fmt.Println("  watch    Tail a conversation with live updates")
	fmt.Println("  health   Check if the server is running")
	fmt.Println("  version  Print version info")
	fmt.Println()
	fmt.Println("Run 'courier-cli <command> --help' for details on a command.")
}

func hasFlag(flag string, args []string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "error: %s environment variable is required\n", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --- migrate ---

// applyMigrations runs all pending up migrations and reports whether
// anything changed. migrate.ErrNoChange is not an error: an up-to-date
// database is the normal case for repeat runs.
func applyMigrations(m interface{ Up() error }) (bool, error) {
	switch err := m.Up(); err {
	case nil:
		return true, nil
	case migrate.ErrNoChange:
		return false, nil
	default:
		return false, err
	}
}

func runMigrate() int {
	dbURL := requireEnv("DATABASE_URL")

	fmt.Println("connecting to database...")
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: migration init failed: %v\n", err)
		return 1
	}
	defer m.Close()

	fmt.Println("running migrations...")
	applied, err := applyMigrations(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: migration failed: %v\n", err)
		return 1
	}

	v, dirty, _ := m.Version()
	if applied {
		fmt.Printf("migrations applied (version: %d, dirty: %v)\n", v, dirty)
	} else {
		fmt.Printf("no new migrations (current version: %d)\n", v)
	}
	return 0
}

// --- seed ---

func runSeed() int {
	dbURL := requireEnv("DATABASE_URL")
	ctx := context.Background()

	fmt.Println("connecting to database...")
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: database connection failed: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: database ping failed: %v\n", err)
		return 1
	}

	sf, err := snowflake.NewGenerator(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: snowflake init failed: %v\n", err)
		return 1
	}

	// Generate IDs.
	aliceID := sf.Generate()
	bobID := sf.Generate()
	convID := sf.Generate()
	msg1ID := sf.Generate()
	msg2ID := sf.Generate()

	now := time.Now()

	tx, err := pool.Begin(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: starting transaction: %v\n", err)
		return 1
	}
	defer tx.Rollback(ctx)

	// Users.
	fmt.Println("creating users...")
	_, err = tx.Exec(ctx,
		`INSERT INTO users (id, username, display_name, created_at) VALUES ($1,$2,$3,$4), ($5,$6,$7,$8)
		 ON CONFLICT (id) DO NOTHING`,
		aliceID.Int64(), "alice", "Alice", now,
		bobID.Int64(), "bob", "Bob", now,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: creating users: %v\n", err)
		return 1
	}

	// Conversation with both participants.
	fmt.Println("creating conversation...")
	_, err = tx.Exec(ctx,
		`INSERT INTO conversations (id, pair_key, created_at) VALUES ($1,$2,$3)
		 ON CONFLICT (pair_key) DO NOTHING`,
		convID.Int64(), models.PairKey(aliceID.Int64(), bobID.Int64()), now,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: creating conversation: %v\n", err)
		return 1
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO participants (conversation_id, user_id, joined_at) VALUES ($1,$2,$3), ($4,$5,$6)
		 ON CONFLICT (conversation_id, user_id) DO NOTHING`,
		convID.Int64(), aliceID.Int64(), now,
		convID.Int64(), bobID.Int64(), now,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: creating participants: %v\n", err)
		return 1
	}

	// Messages.
	fmt.Println("creating messages...")
	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, created_at) VALUES ($1,$2,$3,$4,$5), ($6,$7,$8,$9,$10)
		 ON CONFLICT (id) DO NOTHING`,
		msg1ID.Int64(), convID.Int64(), aliceID.Int64(), "hey, welcome to courier!", now,
		msg2ID.Int64(), convID.Int64(), bobID.Int64(), "thanks, glad to be here", now,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: creating messages: %v\n", err)
		return 1
	}

	if err := tx.Commit(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: committing transaction: %v\n", err)
		return 1
	}

	fmt.Println()
	fmt.Println("seed complete:")
	fmt.Printf("  users:        alice (%s), bob (%s)\n", aliceID, bobID)
	fmt.Printf("  conversation: %s with 2 messages\n", convID)

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		tokens := auth.NewTokenService(secret)
		aliceToken, err1 := tokens.GenerateAccessToken(aliceID.Int64())
		bobToken, err2 := tokens.GenerateAccessToken(bobID.Int64())
		if err1 == nil && err2 == nil {
			fmt.Println()
			fmt.Println("demo tokens (15 min):")
			fmt.Printf("  alice: %s\n", aliceToken)
			fmt.Printf("  bob:   %s\n", bobToken)
		}
	}
	return 0
}

// --- health ---

func runHealth() int {
	serverURL := envOr("SERVER_URL", "http://localhost:8080")
	url := serverURL + "/health"

	fmt.Printf("checking %s ...\n", url)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("status: %d\n", resp.StatusCode)
	if len(body) > 0 {
		fmt.Printf("body:   %s\n", string(body))
	}

	if resp.StatusCode == http.StatusOK {
		fmt.Println("server is healthy")
		return 0
	}
	fmt.Fprintln(os.Stderr, "server returned non-200 status")
	return 1
}
