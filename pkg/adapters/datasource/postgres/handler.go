//go:build postgres || all_adapters

package postgres

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// Handler implements datasource.Handler for PostgreSQL, composing the same
// pooled connection the Adapter/SchemaDiscoverer/QueryExecutor use.
type Handler struct {
	pool      *pgxpool.Pool
	connMgr   *datasource.ConnectionManager
	owner     string
	name      string
	ownedPool bool
}

// NewHandler creates a PostgreSQL capability-set handler bound to the
// connection manager's pool for (owner, name).
func NewHandler(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, owner, name string) (*Handler, error) {
	connStr := buildConnectionString(cfg)

	if connMgr == nil {
		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return &Handler{pool: pool, ownedPool: true}, nil
	}

	pool, err := connMgr.GetOrCreatePool(ctx, owner, name, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	return &Handler{pool: pool, connMgr: connMgr, owner: owner, name: name}, nil
}

// Close releases the handler (but not the pool, which is TTL-managed).
func (h *Handler) Close() error {
	if h.ownedPool && h.pool != nil {
		h.pool.Close()
	}
	return nil
}

// Schema returns declared type, nullability, numeric precision/scale,
// character length, and comment for every column of table.
func (h *Handler) Schema(ctx context.Context, schemaName, table string) (map[string]models.ColumnTypeInfo, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			COALESCE(c.numeric_precision, 0),
			COALESCE(c.numeric_scale, 0),
			COALESCE(c.character_maximum_length, 0),
			COALESCE(pgd.description, '')
		FROM information_schema.columns c
		LEFT JOIN pg_catalog.pg_statio_all_tables st
			ON st.schemaname = c.table_schema AND st.relname = c.table_name
		LEFT JOIN pg_catalog.pg_description pgd
			ON pgd.objoid = st.relid AND pgd.objsubid = c.ordinal_position
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := h.pool.Query(ctx, query, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("query schema for %s.%s: %w", schemaName, table, err)
	}
	defer rows.Close()

	result := make(map[string]models.ColumnTypeInfo)
	for rows.Next() {
		var colName string
		var info models.ColumnTypeInfo
		if err := rows.Scan(&colName, &info.DeclaredType, &info.Nullable,
			&info.NumericPrecision, &info.NumericScale, &info.CharLength, &info.EngineComment); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		result[colName] = info
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return result, nil
}

// Indexes returns every index defined on table, primary key indexes included.
func (h *Handler) Indexes(ctx context.Context, schemaName, table string) ([]models.IndexInfo, error) {
	const query = `
		SELECT
			i.relname AS index_name,
			ix.indisunique,
			ix.indisprimary,
			array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)) AS columns
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1 AND t.relname = $2
		GROUP BY i.relname, ix.indisunique, ix.indisprimary
		ORDER BY i.relname
	`

	rows, err := h.pool.Query(ctx, query, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("query indexes for %s.%s: %w", schemaName, table, err)
	}
	defer rows.Close()

	var indexes []models.IndexInfo
	for rows.Next() {
		var idx models.IndexInfo
		if err := rows.Scan(&idx.Name, &idx.IsUnique, &idx.IsPrimary, &idx.Columns); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}

	return indexes, nil
}

// Constraints bundles primary key, foreign key, unique, and check constraints
// for table.
func (h *Handler) Constraints(ctx context.Context, schemaName, table string) (models.Constraints, error) {
	var c models.Constraints

	const pkQuery = `
		SELECT a.attname
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE ix.indisprimary AND n.nspname = $1 AND t.relname = $2
		ORDER BY array_position(ix.indkey, a.attnum)
	`
	rows, err := h.pool.Query(ctx, pkQuery, schemaName, table)
	if err != nil {
		return c, fmt.Errorf("query primary key for %s.%s: %w", schemaName, table, err)
	}
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			rows.Close()
			return c, fmt.Errorf("scan primary key column: %w", err)
		}
		c.PrimaryKey = append(c.PrimaryKey, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("iterate primary key columns: %w", err)
	}

	const fkQuery = `
		SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name,
			ccu.column_name,
			COALESCE(rc.delete_rule, '')
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		LEFT JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = tc.constraint_name AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND tc.table_name = $2
	`
	fkRows, err := h.pool.Query(ctx, fkQuery, schemaName, table)
	if err != nil {
		return c, fmt.Errorf("query foreign keys for %s.%s: %w", schemaName, table, err)
	}
	fkByName := make(map[string]*models.ForeignKey)
	var fkOrder []string
	for fkRows.Next() {
		var name, localCol, refTable, refCol, onDelete string
		if err := fkRows.Scan(&name, &localCol, &refTable, &refCol, &onDelete); err != nil {
			fkRows.Close()
			return c, fmt.Errorf("scan foreign key: %w", err)
		}
		fk, ok := fkByName[name]
		if !ok {
			fk = &models.ForeignKey{Name: name, ReferencedTable: refTable, OnDelete: onDelete}
			fkByName[name] = fk
			fkOrder = append(fkOrder, name)
		}
		fk.LocalColumns = append(fk.LocalColumns, localCol)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refCol)
	}
	fkRows.Close()
	if err := fkRows.Err(); err != nil {
		return c, fmt.Errorf("iterate foreign keys: %w", err)
	}
	for _, name := range fkOrder {
		c.ForeignKeys = append(c.ForeignKeys, *fkByName[name])
	}

	const uniqueQuery = `
		SELECT tc.constraint_name, array_agg(kcu.column_name ORDER BY kcu.ordinal_position)
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'UNIQUE' AND tc.table_schema = $1 AND tc.table_name = $2
		GROUP BY tc.constraint_name
	`
	uqRows, err := h.pool.Query(ctx, uniqueQuery, schemaName, table)
	if err != nil {
		return c, fmt.Errorf("query unique constraints for %s.%s: %w", schemaName, table, err)
	}
	for uqRows.Next() {
		var name string
		var cols []string
		if err := uqRows.Scan(&name, &cols); err != nil {
			uqRows.Close()
			return c, fmt.Errorf("scan unique constraint: %w", err)
		}
		c.UniqueConstraints = append(c.UniqueConstraints, cols)
	}
	uqRows.Close()
	if err := uqRows.Err(); err != nil {
		return c, fmt.Errorf("iterate unique constraints: %w", err)
	}

	const checkQuery = `
		SELECT pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE con.contype = 'c' AND n.nspname = $1 AND t.relname = $2
	`
	ckRows, err := h.pool.Query(ctx, checkQuery, schemaName, table)
	if err != nil {
		return c, fmt.Errorf("query check constraints for %s.%s: %w", schemaName, table, err)
	}
	for ckRows.Next() {
		var def string
		if err := ckRows.Scan(&def); err != nil {
			ckRows.Close()
			return c, fmt.Errorf("scan check constraint: %w", err)
		}
		c.CheckConstraints = append(c.CheckConstraints, def)
	}
	ckRows.Close()
	if err := ckRows.Err(); err != nil {
		return c, fmt.Errorf("iterate check constraints: %w", err)
	}

	return c, nil
}

// RowCount returns a statistics-based estimate from pg_class.reltuples when
// estimate is true; otherwise it falls back to an exact COUNT(*), which is
// a last resort the caller should avoid on large tables.
func (h *Handler) RowCount(ctx context.Context, schemaName, table string, estimate bool) (*int64, error) {
	if estimate {
		const query = `
			SELECT c.reltuples::bigint
			FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE n.nspname = $1 AND c.relname = $2
		`
		var est int64
		if err := h.pool.QueryRow(ctx, query, schemaName, table).Scan(&est); err != nil {
			return nil, fmt.Errorf("estimate row count for %s.%s: %w", schemaName, table, err)
		}
		if est < 0 {
			est = 0
		}
		return &est, nil
	}

	tableRef := qualifiedTableName(schemaName, table)
	var count int64
	if err := h.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableRef)).Scan(&count); err != nil {
		return nil, fmt.Errorf("count rows for %s.%s: %w", schemaName, table, err)
	}
	return &count, nil
}

// ListSchemas returns user schemas, excluding PostgreSQL's system schemas.
func (h *Handler) ListSchemas(ctx context.Context) ([]string, error) {
	const query = `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY schema_name
	`
	rows, err := h.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		schemas = append(schemas, s)
	}
	return schemas, rows.Err()
}

// ListTables returns base tables in schemaName.
func (h *Handler) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	const query = `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	rows, err := h.pool.Query(ctx, query, schemaName)
	if err != nil {
		return nil, fmt.Errorf("list tables for schema %s: %w", schemaName, err)
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
// full returns up to size*count rows with a plain LIMIT; random-offset
// fetches size rows at up to count distinct offsets. Stratified and
// partition-aware sampling are not meaningful for a non-partitioned
// relational engine, so they fall back to random-offset, and the resulting
// SamplingMethod reports random-offset.
func (h *Handler) Sample(ctx context.Context, schemaName, table string, size, count int, strategy models.SamplingMethod) (*models.TableSample, error) {
	tableRef := qualifiedTableName(schemaName, table)

	columns, err := h.columnOrder(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}

	switch strategy {
	case models.SamplingFull:
		rows, err := h.fetchRows(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", tableRef, size*count))
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

			rows, err := h.fetchRows(ctx, fmt.Sprintf("SELECT * FROM %s OFFSET %d LIMIT %d", tableRef, offset, size))
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

func (h *Handler) columnOrder(ctx context.Context, schemaName, table string) ([]string, error) {
	const query = `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`
	rows, err := h.pool.Query(ctx, query, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("query column order for %s.%s: %w", schemaName, table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (h *Handler) fetchRows(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := h.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample query failed: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	names := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		names[i] = string(fd.Name)
	}

	var result []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read sample row: %w", err)
		}
		rowMap := make(map[string]any, len(names))
		for i, n := range names {
			rowMap[n] = values[i]
		}
		result = append(result, rowMap)
	}
	return result, rows.Err()
}

// CheckCost dry-runs nothing for PostgreSQL; there is no cheap way to bound
// cost before execution the way BigQuery's dry-run job does, so every query
// is reported safe and unchecked, matching the capability-set contract for
// engines without a native cost estimator.
func (h *Handler) CheckCost(ctx context.Context, sql string) (bool, string, error) {
	return true, "unchecked", nil
}

// PartitionInfo returns nil for PostgreSQL; declarative partitioning exists
// but is not surfaced here since the pipeline's partition-aware sampling
// path targets BigQuery-style external partitioning, not Postgres child
// tables.
func (h *Handler) PartitionInfo(ctx context.Context, schemaName, table string) (*models.PartitionInfo, error) {
	return nil, nil
}

// QuoteIdentifier safely quotes a SQL identifier for PostgreSQL.
func (h *Handler) QuoteIdentifier(identifier string) string {
	return pgx.Identifier{identifier}.Sanitize()
}

// Ensure Handler implements datasource.Handler at compile time.
var _ datasource.Handler = (*Handler)(nil)
