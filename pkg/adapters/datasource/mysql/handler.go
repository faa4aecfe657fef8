//go:build mysql || all_adapters

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// Handler implements datasource.Handler for MySQL, MariaDB, and TiDB.
// Unlike the Postgres handler, it does not route through
// datasource.ConnectionManager: that pool is hard-typed to pgxpool.Pool, so
// MySQL owns its own *sql.DB and bounds it directly with SetMaxOpenConns to
// honor the same default connection ceiling.
type Handler struct {
	db *sql.DB
}

// NewHandler opens a MySQL connection pool bounded to
// datasource.DefaultPoolMaxConns concurrent connections for (owner, name).
// connMgr is accepted to satisfy the common HandlerFactory signature but is
// unused; MySQL pooling is self-contained.
func NewHandler(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, owner, name string) (*Handler, error) {
	driverCfg := mysqldriver.NewConfig()
	driverCfg.Net = "tcp"
	driverCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	driverCfg.User = cfg.User
	driverCfg.Passwd = cfg.Password
	driverCfg.DBName = cfg.Database
	driverCfg.TLSConfig = cfg.TLSMode
	driverCfg.ParseTime = true

	db, err := sql.Open("mysql", driverCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	db.SetMaxOpenConns(datasource.DefaultPoolMaxConns)
	db.SetMaxIdleConns(datasource.DefaultPoolMaxConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return &Handler{db: db}, nil
}

// Close releases the underlying connection pool.
func (h *Handler) Close() error {
	return h.db.Close()
}

// Schema returns declared type, nullability, numeric precision/scale,
// character length, and comment for every column of table. schemaName maps
// to MySQL's database/schema concept (information_schema.columns.table_schema).
func (h *Handler) Schema(ctx context.Context, schemaName, table string) (map[string]models.ColumnTypeInfo, error) {
	const query = `
		SELECT
			column_name,
			data_type,
			is_nullable = 'YES',
			COALESCE(numeric_precision, 0),
			COALESCE(numeric_scale, 0),
			COALESCE(character_maximum_length, 0),
			COALESCE(column_comment, '')
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`
	rows, err := h.db.QueryContext(ctx, query, schemaName, table)
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
	return result, rows.Err()
}

// Indexes returns every index defined on table, aggregating the per-column
// rows information_schema.statistics reports one-per-key-position.
func (h *Handler) Indexes(ctx context.Context, schemaName, table string) ([]models.IndexInfo, error) {
	const query = `
		SELECT
			index_name,
			NOT non_unique,
			index_name = 'PRIMARY',
			GROUP_CONCAT(column_name ORDER BY seq_in_index) AS columns
		FROM information_schema.statistics
		WHERE table_schema = ? AND table_name = ?
		GROUP BY index_name, non_unique
		ORDER BY index_name
	`
	rows, err := h.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("query indexes for %s.%s: %w", schemaName, table, err)
	}
	defer rows.Close()

	var indexes []models.IndexInfo
	for rows.Next() {
		var idx models.IndexInfo
		var cols string
		if err := rows.Scan(&idx.Name, &idx.IsUnique, &idx.IsPrimary, &cols); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		idx.Columns = strings.Split(cols, ",")
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

// Constraints bundles primary key, foreign key, unique, and check constraints
// for table. MySQL exposes check constraints only from 8.0.16 onward;
// older servers simply return none, which is indistinguishable here from a
// table with no check constraints.
func (h *Handler) Constraints(ctx context.Context, schemaName, table string) (models.Constraints, error) {
	var c models.Constraints

	const pkQuery = `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND table_name = ? AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position
	`
	rows, err := h.db.QueryContext(ctx, pkQuery, schemaName, table)
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
		return c, err
	}

	const fkQuery = `
		SELECT
			kcu.constraint_name,
			kcu.column_name,
			kcu.referenced_table_name,
			kcu.referenced_column_name,
			COALESCE(rc.delete_rule, '')
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = kcu.constraint_name AND rc.constraint_schema = kcu.table_schema
		WHERE kcu.table_schema = ? AND kcu.table_name = ? AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.constraint_name, kcu.ordinal_position
	`
	fkRows, err := h.db.QueryContext(ctx, fkQuery, schemaName, table)
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
		return c, err
	}
	for _, name := range fkOrder {
		c.ForeignKeys = append(c.ForeignKeys, *fkByName[name])
	}

	const uniqueQuery = `
		SELECT tc.constraint_name, GROUP_CONCAT(kcu.column_name ORDER BY kcu.ordinal_position) AS cols
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'UNIQUE' AND tc.table_schema = ? AND tc.table_name = ?
		GROUP BY tc.constraint_name
	`
	uqRows, err := h.db.QueryContext(ctx, uniqueQuery, schemaName, table)
	if err != nil {
		return c, fmt.Errorf("query unique constraints for %s.%s: %w", schemaName, table, err)
	}
	for uqRows.Next() {
		var name, cols string
		if err := uqRows.Scan(&name, &cols); err != nil {
			uqRows.Close()
			return c, fmt.Errorf("scan unique constraint: %w", err)
		}
		c.UniqueConstraints = append(c.UniqueConstraints, strings.Split(cols, ","))
	}
	uqRows.Close()
	if err := uqRows.Err(); err != nil {
		return c, err
	}

	const checkQuery = `
		SELECT cc.check_clause
		FROM information_schema.check_constraints cc
		JOIN information_schema.table_constraints tc
			ON tc.constraint_name = cc.constraint_name AND tc.constraint_schema = cc.constraint_schema
		WHERE tc.table_schema = ? AND tc.table_name = ?
	`
	ckRows, err := h.db.QueryContext(ctx, checkQuery, schemaName, table)
	if err != nil {
		// information_schema.check_constraints does not exist before MySQL
		// 8.0.16; treat as "no check constraints" rather than failing.
		return c, nil
	}
	for ckRows.Next() {
		var clause string
		if err := ckRows.Scan(&clause); err != nil {
			ckRows.Close()
			return c, fmt.Errorf("scan check constraint: %w", err)
		}
		c.CheckConstraints = append(c.CheckConstraints, clause)
	}
	ckRows.Close()
	return c, ckRows.Err()
}

// RowCount returns information_schema.tables' cached TABLE_ROWS estimate
// when estimate is true; otherwise it falls back to an exact COUNT(*).
func (h *Handler) RowCount(ctx context.Context, schemaName, table string, estimate bool) (*int64, error) {
	if estimate {
		const query = `
			SELECT table_rows FROM information_schema.tables
			WHERE table_schema = ? AND table_name = ?
		`
		var est sql.NullInt64
		if err := h.db.QueryRowContext(ctx, query, schemaName, table).Scan(&est); err != nil {
			return nil, fmt.Errorf("estimate row count for %s.%s: %w", schemaName, table, err)
		}
		val := est.Int64
		return &val, nil
	}

	tableRef := quoteQualified(schemaName, table)
	var count int64
	if err := h.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableRef)).Scan(&count); err != nil {
		return nil, fmt.Errorf("count rows for %s.%s: %w", schemaName, table, err)
	}
	return &count, nil
}

// ListSchemas returns databases, excluding MySQL's own system schemas.
func (h *Handler) ListSchemas(ctx context.Context) ([]string, error) {
	const query = `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')
		ORDER BY schema_name
	`
	rows, err := h.db.QueryContext(ctx, query)
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
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	rows, err := h.db.QueryContext(ctx, query, schemaName)
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
// Stratified and partition-aware sampling fall back to random-offset, the
// same as the Postgres handler: neither is meaningful for a non-partitioned
// table.
func (h *Handler) Sample(ctx context.Context, schemaName, table string, size, count int, strategy models.SamplingMethod) (*models.TableSample, error) {
	tableRef := quoteQualified(schemaName, table)

	columns, err := h.columnOrder(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}

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

func (h *Handler) columnOrder(ctx context.Context, schemaName, table string) ([]string, error) {
	const query = `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`
	rows, err := h.db.QueryContext(ctx, query, schemaName, table)
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

// fetchRows scans rows into maps keyed by column name. database/sql has no
// Postgres-style generic Values() call, so columns is threaded through to
// drive the sql.RawBytes/any scan targets.
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

// CheckCost has no dry-run equivalent in MySQL's wire protocol, so every
// query is reported safe and unchecked, matching the capability-set
// contract's fallback for engines without a native cost estimator.
func (h *Handler) CheckCost(ctx context.Context, sql string) (bool, string, error) {
	return true, "unchecked", nil
}

// PartitionInfo returns nil for MySQL. MySQL supports native partitioning
// (RANGE/LIST/HASH/KEY), but surfacing it is deferred until a caller needs
// partition-aware sampling against it; BigQuery is the first engine to wire
// this operation end to end.
func (h *Handler) PartitionInfo(ctx context.Context, schemaName, table string) (*models.PartitionInfo, error) {
	return nil, nil
}

// QuoteIdentifier safely quotes a SQL identifier for MySQL using backticks,
// escaping any embedded backtick by doubling it.
func (h *Handler) QuoteIdentifier(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

func quoteQualified(schemaName, table string) string {
	return fmt.Sprintf("`%s`.`%s`",
		strings.ReplaceAll(schemaName, "`", "``"),
		strings.ReplaceAll(table, "`", "``"))
}

// Ensure Handler implements datasource.Handler at compile time.
var _ datasource.Handler = (*Handler)(nil)
