// Package testhelpers provides shared test infrastructure for integration
// tests that need a real PostgreSQL instance, such as the connection
// manager and the postgres engine adapter.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB holds a shared PostgreSQL container and a connection string for it.
// Tests connect through their own pools; TestDB just owns the container.
type TestDB struct {
	Container testcontainers.Container
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("failed to set up test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "metadata_test",
			"POSTGRES_USER":     "metadata",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://metadata:test_password@%s:%s/metadata_test?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	var pingErr error
	for i := 0; i < 10; i++ {
		if pingErr = pool.Ping(ctx); pingErr == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if pingErr != nil {
		return nil, fmt.Errorf("database never became reachable: %w", pingErr)
	}

	if err := seedFixtureSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to seed fixture schema: %w", err)
	}

	return &TestDB{
		Container: container,
		ConnStr:   connStr,
	}, nil
}

// seedFixtureSchema creates a small, fixed schema (users, accounts, events)
// that every package's integration tests share: enough columns, primary
// keys, and foreign keys to exercise schema discovery, and exactly 100 rows
// in events so tests can assert on a known row count.
func seedFixtureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id SERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active'
		);

		CREATE TABLE IF NOT EXISTS events (
			id SERIAL PRIMARY KEY,
			account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create fixture tables: %w", err)
	}

	var userCount int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if userCount > 0 {
		return nil
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO users (email) VALUES
			('alice@example.com'), ('bob@example.com'), ('carol@example.com')
	`); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO accounts (user_id, name, status) VALUES
			(1, 'Alice Corp', 'active'),
			(2, 'Bob LLC', 'active'),
			(3, 'Carol Inc', 'suspended')
	`); err != nil {
		return fmt.Errorf("seed accounts: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO events (account_id, event_type, payload)
		SELECT (n % 3) + 1, CASE WHEN n % 2 = 0 THEN 'login' ELSE 'purchase' END, '{}'::jsonb
		FROM generate_series(1, 100) AS n
	`); err != nil {
		return fmt.Errorf("seed events: %w", err)
	}

	return nil
}
