package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

// TestMySQLDB holds a shared MySQL container for integration tests.
type TestMySQLDB struct {
	Container *mysql.MySQLContainer
	DSN       string
	Host      string
	Port      int
}

var (
	sharedTestMySQLDB     *TestMySQLDB
	sharedTestMySQLDBOnce sync.Once
	sharedTestMySQLDBErr  error
)

// GetTestMySQLDB returns a shared MySQL container for integration tests.
// The container is created once and reused across all tests in the run, and
// seeded with the same users/accounts/events fixture the Postgres helper
// uses so handler tests can assert identical shapes across engines.
func GetTestMySQLDB(t *testing.T) *TestMySQLDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode (requires Docker)")
	}

	sharedTestMySQLDBOnce.Do(func() {
		sharedTestMySQLDB, sharedTestMySQLDBErr = setupTestMySQLDB()
	})

	if sharedTestMySQLDBErr != nil {
		t.Fatalf("failed to set up test mysql database: %v", sharedTestMySQLDBErr)
	}

	return sharedTestMySQLDB
}

func setupTestMySQLDB() (*TestMySQLDB, error) {
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("metadata_test"),
		mysql.WithUsername("metadata"),
		mysql.WithPassword("test_password"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start mysql test container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	if err != nil {
		return nil, fmt.Errorf("failed to get mysql connection string: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get mysql container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "3306/tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to get mysql container port: %w", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("mysql never became reachable: %w", err)
	}

	if err := seedMySQLFixtureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to seed mysql fixture schema: %w", err)
	}

	return &TestMySQLDB{
		Container: container,
		DSN:       dsn,
		Host:      host,
		Port:      port.Int(),
	}, nil
}

// seedMySQLFixtureSchema mirrors seedFixtureSchema's users/accounts/events
// shape so engine-specific handler tests can assert the same counts.
func seedMySQLFixtureSchema(ctx context.Context, db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id INT NOT NULL,
			name VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS events (
			id INT AUTO_INCREMENT PRIMARY KEY,
			account_id INT NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			payload JSON,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		);
	`
	for _, stmt := range splitStatements(ddl) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create fixture tables: %w", err)
		}
	}

	var userCount int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if userCount > 0 {
		return nil
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO users (email) VALUES
			('alice@example.com'), ('bob@example.com'), ('carol@example.com')
	`); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, name, status) VALUES
			(1, 'Alice Corp', 'active'),
			(2, 'Bob LLC', 'active'),
			(3, 'Carol Inc', 'suspended')
	`); err != nil {
		return fmt.Errorf("seed accounts: %w", err)
	}

	// MySQL has no generate_series; seed a numbers CTE via a recursive query
	// instead (supported since MySQL 8.0).
	if _, err := db.ExecContext(ctx, `
		INSERT INTO events (account_id, event_type, payload)
		WITH RECURSIVE seq(n) AS (
			SELECT 1
			UNION ALL
			SELECT n + 1 FROM seq WHERE n < 100
		)
		SELECT (n % 3) + 1, IF(n % 2 = 0, 'login', 'purchase'), JSON_OBJECT()
		FROM seq
	`); err != nil {
		return fmt.Errorf("seed events: %w", err)
	}

	return nil
}

// splitStatements splits a simple multi-statement DDL block on semicolons.
// The fixture DDL above never embeds a semicolon inside a literal, so a
// naive split is sufficient here.
func splitStatements(block string) []string {
	var stmts []string
	for _, stmt := range strings.Split(block, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			stmts = append(stmts, trimmed)
		}
	}
	return stmts
}
