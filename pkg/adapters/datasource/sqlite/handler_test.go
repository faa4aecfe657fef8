//go:build sqlite || all_adapters

package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

func setupHandlerTest(t *testing.T) *Handler {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "fixture.db")
	ctx := context.Background()

	setupDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open fixture database: %v", err)
	}
	defer setupDB.Close()

	const ddl = `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL
		);
		CREATE TABLE accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active'
		);
		CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			CHECK (event_type IN ('login', 'purchase'))
		);
	`
	if _, err := setupDB.ExecContext(ctx, ddl); err != nil {
		t.Fatalf("failed to create fixture schema: %v", err)
	}
	if _, err := setupDB.ExecContext(ctx, `INSERT INTO users (email) VALUES ('a@example.com'), ('b@example.com')`); err != nil {
		t.Fatalf("failed to seed users: %v", err)
	}
	if _, err := setupDB.ExecContext(ctx, `INSERT INTO accounts (user_id, name) VALUES (1, 'A Corp'), (2, 'B LLC')`); err != nil {
		t.Fatalf("failed to seed accounts: %v", err)
	}
	for i := 0; i < 100; i++ {
		eventType := "login"
		if i%2 == 0 {
			eventType = "purchase"
		}
		if _, err := setupDB.ExecContext(ctx,
			`INSERT INTO events (account_id, event_type) VALUES (?, ?)`, (i%2)+1, eventType); err != nil {
			t.Fatalf("failed to seed events: %v", err)
		}
	}
	setupDB.Close()

	handler, err := NewHandler(ctx, &Config{Path: dbPath}, nil, "", "")
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	t.Cleanup(func() { handler.Close() })

	return handler
}

func TestHandler_Schema(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()

	cols, err := h.Schema(ctx, "main", "events")
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	idCol, ok := cols["id"]
	if !ok {
		t.Fatal("expected 'id' column in events schema")
	}
	if idCol.Nullable {
		t.Error("id column should not be nullable")
	}
}

func TestHandler_Indexes(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()

	indexes, err := h.Indexes(ctx, "main", "users")
	if err != nil {
		t.Fatalf("Indexes failed: %v", err)
	}
	foundUnique := false
	for _, idx := range indexes {
		if idx.IsUnique {
			foundUnique = true
		}
	}
	if !foundUnique {
		t.Error("expected a unique index on users.email")
	}
}

func TestHandler_Constraints(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()

	c, err := h.Constraints(ctx, "main", "events")
	if err != nil {
		t.Fatalf("Constraints failed: %v", err)
	}
	if len(c.PrimaryKey) != 1 || c.PrimaryKey[0] != "id" {
		t.Errorf("expected primary key [id], got %v", c.PrimaryKey)
	}
	if len(c.ForeignKeys) != 1 {
		t.Fatalf("expected 1 foreign key on events, got %d", len(c.ForeignKeys))
	}
	if c.ForeignKeys[0].ReferencedTable != "accounts" {
		t.Errorf("expected FK to accounts, got %s", c.ForeignKeys[0].ReferencedTable)
	}
	if len(c.CheckConstraints) != 1 {
		t.Errorf("expected 1 check constraint, got %d", len(c.CheckConstraints))
	}
}

func TestHandler_RowCount(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()

	count, err := h.RowCount(ctx, "main", "events", false)
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if count == nil || *count != 100 {
		t.Errorf("expected exact row count 100, got %v", count)
	}
}

func TestHandler_ListSchemasAndTables(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()

	schemas, err := h.ListSchemas(ctx)
	if err != nil {
		t.Fatalf("ListSchemas failed: %v", err)
	}
	if len(schemas) != 1 || schemas[0] != "main" {
		t.Errorf("expected [main], got %v", schemas)
	}

	tables, err := h.ListTables(ctx, "main")
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	if len(tables) != 3 {
		t.Errorf("expected 3 tables, got %d", len(tables))
	}
}

func TestHandler_Sample_Full(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()

	sample, err := h.Sample(ctx, "main", "accounts", 10, 1, models.SamplingFull)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if sample.SamplingMethod != models.SamplingFull {
		t.Errorf("expected full sampling method, got %s", sample.SamplingMethod)
	}
	if len(sample.Rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(sample.Rows))
	}
}

func TestHandler_Sample_RandomOffset(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()

	sample, err := h.Sample(ctx, "main", "events", 10, 3, models.SamplingRandomOffset)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(sample.Rows) == 0 {
		t.Error("expected at least one sampled row")
	}
}

func TestHandler_CheckCost_Unchecked(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()

	safe, rationale, err := h.CheckCost(ctx, "SELECT * FROM events")
	if err != nil {
		t.Fatalf("CheckCost failed: %v", err)
	}
	if !safe || rationale != "unchecked" {
		t.Errorf("expected (true, unchecked), got (%v, %q)", safe, rationale)
	}
}

func TestHandler_PartitionInfo_Nil(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()

	info, err := h.PartitionInfo(ctx, "main", "events")
	if err != nil {
		t.Fatalf("PartitionInfo failed: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil partition info, got %+v", info)
	}
}
