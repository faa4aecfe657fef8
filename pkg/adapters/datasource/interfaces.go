package datasource

import "context"

// ConnectionTester tests database connectivity.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	// Returns nil if connection is healthy, error otherwise.
	TestConnection(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// SchemaDiscoverer extracts database schema information for the profiling
// and definition-generation stages of the pipeline.
type SchemaDiscoverer interface {
	// DiscoverTables returns all user tables, excluding engine system schemas.
	DiscoverTables(ctx context.Context) ([]TableMetadata, error)

	// DiscoverColumns returns the columns of a table in ordinal order.
	DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error)

	// DiscoverForeignKeys returns every foreign key constraint in the database.
	DiscoverForeignKeys(ctx context.Context) ([]ForeignKeyMetadata, error)

	// SupportsForeignKeys reports whether the engine exposes FK metadata at all.
	SupportsForeignKeys() bool

	// AnalyzeColumnStats computes per-column null/distinct/length statistics
	// used to classify columns and detect data quality issues.
	AnalyzeColumnStats(ctx context.Context, schemaName, tableName string, columnNames []string) ([]ColumnStats, error)

	// CheckValueOverlap compares the distinct values of a source and target
	// column, used to validate inferred foreign key relationships.
	CheckValueOverlap(ctx context.Context, sourceSchema, sourceTable, sourceColumn, targetSchema, targetTable, targetColumn string, sampleLimit int) (*ValueOverlapResult, error)

	// Close releases the underlying connection.
	Close() error
}

// QueryExecutor runs read-only SQL against a database, enforcing row limits.
type QueryExecutor interface {
	// ExecuteQuery runs a query, truncating the result to limit rows when
	// limit > 0.
	ExecuteQuery(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// ExecuteQueryWithParams runs a parameterized query, preventing SQL
	// injection through placeholder substitution rather than string concat.
	ExecuteQueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*QueryExecutionResult, error)

	// Execute runs an arbitrary DDL/DML statement and returns its results.
	Execute(ctx context.Context, sqlStatement string) (*ExecuteResult, error)

	// ValidateQuery checks that a query is syntactically valid without
	// running it.
	ValidateQuery(ctx context.Context, sqlQuery string) error

	// ExplainQuery returns the engine's query plan plus cost heuristics,
	// the basis for the Handler capability set's check_cost decision.
	ExplainQuery(ctx context.Context, sqlQuery string) (*ExplainResult, error)

	// QuoteIdentifier safely quotes an identifier for interpolation into SQL.
	QuoteIdentifier(name string) string

	// Close releases the underlying connection.
	Close() error
}

// ColumnInfo describes one column of a query result.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryExecutionResult contains the results of a SQL query execution.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ExecuteResult contains the results of an arbitrary DDL/DML statement.
type ExecuteResult struct {
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowCount     int              `json:"row_count"`
	RowsAffected int64            `json:"rows_affected"`
}

// ExplainResult contains the query plan and heuristics used by check_cost
// to decide whether a query is safe to run against a live database.
type ExplainResult struct {
	Plan             string   `json:"plan"`
	ExecutionTimeMs  float64  `json:"execution_time_ms"`
	PlanningTimeMs   float64  `json:"planning_time_ms"`
	PerformanceHints []string `json:"performance_hints"`
}
