//go:build sqlite || all_adapters

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// Handler implements datasource.Handler for SQLite. SQLite has no network
// connection to pool, no user/password, and a single implicit schema
// ("main"); schemaName is accepted on every method to satisfy the common
// interface but is otherwise unused.
type Handler struct {
	db *sql.DB
}

// NewHandler opens a SQLite database file. connMgr, owner, and name are
// accepted to satisfy the common HandlerFactory signature but are unused:
// SQLite has no remote pool to manage, just the driver's own single-file
// connection.
func NewHandler(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, owner, name string) (*Handler, error) {
	db, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers internally; a single connection avoids
	// "database is locked" errors from concurrent writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Handler{db: db}, nil
}

// Close releases the database file handle.
func (h *Handler) Close() error {
	return h.db.Close()
}

// Schema returns declared type and nullability for every column of table via
// PRAGMA table_info. SQLite's dynamic typing means numeric precision/scale
// and character length are not tracked by the engine, so they are always 0.
func (h *Handler) Schema(ctx context.Context, schemaName, table string) (map[string]models.ColumnTypeInfo, error) {
	rows, err := h.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("query schema for %s: %w", table, err)
	}
	defer rows.Close()

	result := make(map[string]models.ColumnTypeInfo)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		result[name] = models.ColumnTypeInfo{
			DeclaredType: colType,
			Nullable:     notNull == 0,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return result, nil
}

// Indexes returns every index defined on table, primary key included when
// SQLite materializes it as a real index (composite or non-rowid PKs).
func (h *Handler) Indexes(ctx context.Context, schemaName, table string) ([]models.IndexInfo, error) {
	rows, err := h.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("query index list for %s: %w", table, err)
	}

	type indexMeta struct {
		name      string
		isUnique  bool
		isPrimary bool
	}
	var metas []indexMeta
	for rows.Next() {
		var seq int
		var name string
		var unique int
		var origin, partial string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan index list entry: %w", err)
		}
		metas = append(metas, indexMeta{name: name, isUnique: unique == 1, isPrimary: origin == "pk"})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var indexes []models.IndexInfo
	for _, m := range metas {
		colRows, err := h.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quoteIdentifier(m.name)))
		if err != nil {
			return nil, fmt.Errorf("query index info for %s: %w", m.name, err)
		}
		var cols []string
		for colRows.Next() {
			var seqno, cid int
			var colName sql.NullString
			if err := colRows.Scan(&seqno, &cid, &colName); err != nil {
				colRows.Close()
				return nil, fmt.Errorf("scan index column: %w", err)
			}
			if colName.Valid {
				cols = append(cols, colName.String)
			}
		}
		colRows.Close()
		if err := colRows.Err(); err != nil {
			return nil, err
		}
		indexes = append(indexes, models.IndexInfo{
			Name:      m.name,
			Columns:   cols,
			IsUnique:  m.isUnique,
			IsPrimary: m.isPrimary,
		})
	}

	return indexes, nil
}

var checkConstraintPattern = regexp.MustCompile(`(?i)CHECK\s*\(([^()]*(?:\([^()]*\)[^()]*)*)\)`)

// Constraints bundles primary key, foreign key, unique, and check constraints
// for table. Primary key columns come from PRAGMA table_info's pk ordinal;
// unique constraints come from indexes PRAGMA index_list flags as unique and
// not already reported as the primary key; check constraints are extracted
// from the table's stored CREATE TABLE text since SQLite exposes no PRAGMA
// for them.
func (h *Handler) Constraints(ctx context.Context, schemaName, table string) (models.Constraints, error) {
	var c models.Constraints

	rows, err := h.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdentifier(table)))
	if err != nil {
		return c, fmt.Errorf("query table info for %s: %w", table, err)
	}
	type pkCol struct {
		name string
		ord  int
	}
	var pkCols []pkCol
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return c, fmt.Errorf("scan column: %w", err)
		}
		if pk > 0 {
			pkCols = append(pkCols, pkCol{name: name, ord: pk})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return c, err
	}
	for i := 1; i <= len(pkCols); i++ {
		for _, p := range pkCols {
			if p.ord == i {
				c.PrimaryKey = append(c.PrimaryKey, p.name)
			}
		}
	}

	fkRows, err := h.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdentifier(table)))
	if err != nil {
		return c, fmt.Errorf("query foreign keys for %s: %w", table, err)
	}
	fkByID := make(map[int]*models.ForeignKey)
	var fkOrder []int
	for fkRows.Next() {
		var id, seq int
		var refTable, from, to, onUpdate, onDelete, match string
		if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			fkRows.Close()
			return c, fmt.Errorf("scan foreign key: %w", err)
		}
		fk, ok := fkByID[id]
		if !ok {
			fk = &models.ForeignKey{ReferencedTable: refTable, OnDelete: onDelete}
			fkByID[id] = fk
			fkOrder = append(fkOrder, id)
		}
		fk.LocalColumns = append(fk.LocalColumns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to)
	}
	fkRows.Close()
	if err := fkRows.Err(); err != nil {
		return c, err
	}
	for _, id := range fkOrder {
		c.ForeignKeys = append(c.ForeignKeys, *fkByID[id])
	}

	idxRows, err := h.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quoteIdentifier(table)))
	if err != nil {
		return c, fmt.Errorf("query index list for %s: %w", table, err)
	}
	var uniqueIndexNames []string
	for idxRows.Next() {
		var seq int
		var name string
		var unique int
		var origin, partial string
		if err := idxRows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			idxRows.Close()
			return c, fmt.Errorf("scan index list entry: %w", err)
		}
		if unique == 1 && origin == "u" {
			uniqueIndexNames = append(uniqueIndexNames, name)
		}
	}
	idxRows.Close()
	if err := idxRows.Err(); err != nil {
		return c, err
	}
	for _, name := range uniqueIndexNames {
		colRows, err := h.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quoteIdentifier(name)))
		if err != nil {
			return c, fmt.Errorf("query index info for %s: %w", name, err)
		}
		var cols []string
		for colRows.Next() {
			var seqno, cid int
			var colName sql.NullString
			if err := colRows.Scan(&seqno, &cid, &colName); err != nil {
				colRows.Close()
				return c, fmt.Errorf("scan unique index column: %w", err)
			}
			if colName.Valid {
				cols = append(cols, colName.String)
			}
		}
		colRows.Close()
		if err := colRows.Err(); err != nil {
			return c, err
		}
		c.UniqueConstraints = append(c.UniqueConstraints, cols)
	}

	var createSQL sql.NullString
	err = h.db.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&createSQL)
	if err != nil && err != sql.ErrNoRows {
		return c, fmt.Errorf("query create statement for %s: %w", table, err)
	}
	if createSQL.Valid {
		for _, m := range checkConstraintPattern.FindAllStringSubmatch(createSQL.String, -1) {
			c.CheckConstraints = append(c.CheckConstraints, strings.TrimSpace(m[1]))
		}
	}

	return c, nil
}

// RowCount always returns an exact COUNT(*): SQLite keeps no cheap
// cardinality statistic analogous to Postgres's pg_class.reltuples unless
// ANALYZE has populated sqlite_stat1, which is not guaranteed present, so
// estimate is accepted but not honored differently.
func (h *Handler) RowCount(ctx context.Context, schemaName, table string, estimate bool) (*int64, error) {
	var count int64
	if err := h.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdentifier(table))).Scan(&count); err != nil {
		return nil, fmt.Errorf("count rows for %s: %w", table, err)
	}
	return &count, nil
}

// ListSchemas returns SQLite's single implicit schema. SQLite supports
// attaching additional databases under other schema names, but this handler
// only ever opens one file, so "main" is the only schema it can see.
func (h *Handler) ListSchemas(ctx context.Context) ([]string, error) {
	return []string{"main"}, nil
}

// ListTables returns user tables, excluding SQLite's internal sqlite_%
// bookkeeping tables. schemaName is ignored; see ListSchemas.
func (h *Handler) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	rows, err := h.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// Sample materializes a TableSample for table using the requested strategy.
// Stratified and partition-aware sampling fall back to random-offset, the
// same as the other relational handlers.
func (h *Handler) Sample(ctx context.Context, schemaName, table string, size, count int, strategy models.SamplingMethod) (*models.TableSample, error) {
	columns, err := h.columnOrder(ctx, table)
	if err != nil {
		return nil, err
	}

	tableRef := quoteIdentifier(table)

	switch strategy {
	case models.SamplingFull:
		rows, err := h.fetchRows(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", tableRef, size*count), columns)
		if err != nil {
			return nil, err
		}
		return &models.TableSample{Rows: rows, ColumnOrder: columns, SamplingMethod: models.SamplingFull}, nil

	default:
		rowCountEst, err := h.RowCount(ctx, schemaName, table, true)
		if err != nil {
			return nil, err
		}
		total := int64(0)
		if rowCountEst != nil {
			total = *rowCountEst
		}

		maxOffset := total - int64(size)
		if maxOffset < 0 {
			maxOffset = 0
		}

		var allRows []map[string]any
		seen := make(map[int64]bool)
		for i := 0; i < count; i++ {
			var offset int64
			if maxOffset > 0 {
				offset = rand.Int63n(maxOffset + 1)
			}
			if seen[offset] {
				continue
			}
			seen[offset] = true

			rows, err := h.fetchRows(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", tableRef, size, offset), columns)
			if err != nil {
				return nil, err
			}
			allRows = append(allRows, rows...)
			if maxOffset == 0 {
				break
			}
		}

		return &models.TableSample{Rows: allRows, ColumnOrder: columns, SamplingMethod: models.SamplingRandomOffset}, nil
	}
}

func (h *Handler) columnOrder(ctx context.Context, table string) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("query column order for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func (h *Handler) fetchRows(ctx context.Context, query string, columns []string) ([]map[string]any, error) {
	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample query failed: %w", err)
	}
	defer rows.Close()

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("read sample row: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				rowMap[name] = string(b)
			} else {
				rowMap[name] = values[i]
			}
		}
		result = append(result, rowMap)
	}
	return result, rows.Err()
}

// CheckCost has no dry-run equivalent for SQLite, so every query is reported
// safe and unchecked, matching the capability-set contract's fallback for
// engines without a native cost estimator.
func (h *Handler) CheckCost(ctx context.Context, sql string) (bool, string, error) {
	return true, "unchecked", nil
}

// PartitionInfo returns nil: SQLite has no native table partitioning.
func (h *Handler) PartitionInfo(ctx context.Context, schemaName, table string) (*models.PartitionInfo, error) {
	return nil, nil
}

// QuoteIdentifier safely quotes a SQL identifier for SQLite using double
// quotes, escaping any embedded quote by doubling it.
func (h *Handler) QuoteIdentifier(identifier string) string {
	return quoteIdentifier(identifier)
}

func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// Ensure Handler implements datasource.Handler at compile time.
var _ datasource.Handler = (*Handler)(nil)
