//go:build oracle || all_adapters

package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// Handler implements datasource.Handler for Oracle against the ALL_*
// data dictionary views, the same way the Postgres handler queries
// information_schema/pg_catalog and the MySQL handler queries
// information_schema.
//
// No example repo in the corpus imports an Oracle driver (Pieczasz-smf's
// own oracle introspecter is an unimplemented stub), so this package
// intentionally does not import one either. sql.Open below names the
// "oracle" driver by name; registering it is left to the binary's
// composition root importing a real driver such as sijms/go-ora
// (the maintained pure-Go choice) or godror (cgo, requires Oracle Instant
// Client) as a side-effect import, the same way postgres/register.go's
// init function registers pgx.
type Handler struct {
	db *sql.DB
}

// NewHandler opens an Oracle connection pool bounded to
// datasource.DefaultPoolMaxConns, the same default every non-Postgres
// handler applies since ConnectionManager is pgx-specific.
func NewHandler(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, owner, name string) (*Handler, error) {
	db, err := sql.Open("oracle", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("open oracle connection: %w", err)
	}
	db.SetMaxOpenConns(datasource.DefaultPoolMaxConns)
	db.SetMaxIdleConns(datasource.DefaultPoolMaxConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping oracle: %w", err)
	}

	return &Handler{db: db}, nil
}

// Close releases the underlying connection pool.
func (h *Handler) Close() error {
	return h.db.Close()
}

// Schema returns declared type, nullability, numeric precision/scale, and
// character length for every column of table. schemaName maps to an Oracle
// schema (OWNER); Oracle's data dictionary stores unquoted identifiers
// upper-cased, so callers are expected to pass upper-cased names.
func (h *Handler) Schema(ctx context.Context, schemaName, table string) (map[string]models.ColumnTypeInfo, error) {
	const query = `
		SELECT
			column_name,
			data_type,
			CASE WHEN nullable = 'Y' THEN 1 ELSE 0 END,
			NVL(data_precision, 0),
			NVL(data_scale, 0),
			NVL(char_length, 0)
		FROM all_tab_columns
		WHERE owner = :1 AND table_name = :2
		ORDER BY column_id
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
		var nullableFlag int
		if err := rows.Scan(&colName, &info.DeclaredType, &nullableFlag,
			&info.NumericPrecision, &info.NumericScale, &info.CharLength); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		info.Nullable = nullableFlag == 1
		result[colName] = info
	}
	return result, rows.Err()
}

// Indexes returns every index defined on table.
func (h *Handler) Indexes(ctx context.Context, schemaName, table string) ([]models.IndexInfo, error) {
	const query = `
		SELECT
			i.index_name,
			CASE WHEN i.uniqueness = 'UNIQUE' THEN 1 ELSE 0 END,
			CASE WHEN EXISTS (
				SELECT 1 FROM all_constraints c
				WHERE c.owner = i.owner AND c.table_name = i.table_name
					AND c.constraint_type = 'P' AND c.index_name = i.index_name
			) THEN 1 ELSE 0 END,
			LISTAGG(ic.column_name, ',') WITHIN GROUP (ORDER BY ic.column_position)
		FROM all_indexes i
		JOIN all_ind_columns ic ON ic.index_owner = i.owner AND ic.index_name = i.index_name
		WHERE i.owner = :1 AND i.table_name = :2
		GROUP BY i.index_name, i.uniqueness, i.owner, i.table_name
		ORDER BY i.index_name
	`
	rows, err := h.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("query indexes for %s.%s: %w", schemaName, table, err)
	}
	defer rows.Close()

	var indexes []models.IndexInfo
	for rows.Next() {
		var idx models.IndexInfo
		var unique, primary int
		var cols string
		if err := rows.Scan(&idx.Name, &unique, &primary, &cols); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		idx.IsUnique = unique == 1
		idx.IsPrimary = primary == 1
		idx.Columns = strings.Split(cols, ",")
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

// Constraints bundles primary key, foreign key, and check constraints for
// table. Oracle has no separate "unique constraint columns" view distinct
// from all_cons_columns, so unique constraints reuse the same join as
// foreign/primary keys, filtered by constraint_type = 'U'.
func (h *Handler) Constraints(ctx context.Context, schemaName, table string) (models.Constraints, error) {
	var c models.Constraints

	const pkQuery = `
		SELECT cc.column_name
		FROM all_constraints con
		JOIN all_cons_columns cc ON cc.owner = con.owner AND cc.constraint_name = con.constraint_name
		WHERE con.owner = :1 AND con.table_name = :2 AND con.constraint_type = 'P'
		ORDER BY cc.position
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
			con.constraint_name,
			cc.column_name,
			rcon.table_name,
			rcc.column_name,
			con.delete_rule
		FROM all_constraints con
		JOIN all_cons_columns cc ON cc.owner = con.owner AND cc.constraint_name = con.constraint_name
		JOIN all_constraints rcon ON rcon.owner = con.r_owner AND rcon.constraint_name = con.r_constraint_name
		JOIN all_cons_columns rcc ON rcc.owner = rcon.owner AND rcc.constraint_name = rcon.constraint_name
			AND rcc.position = cc.position
		WHERE con.owner = :1 AND con.table_name = :2 AND con.constraint_type = 'R'
		ORDER BY con.constraint_name, cc.position
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
		SELECT con.constraint_name, cc.column_name
		FROM all_constraints con
		JOIN all_cons_columns cc ON cc.owner = con.owner AND cc.constraint_name = con.constraint_name
		WHERE con.owner = :1 AND con.table_name = :2 AND con.constraint_type = 'U'
		ORDER BY con.constraint_name, cc.position
	`
	uqRows, err := h.db.QueryContext(ctx, uniqueQuery, schemaName, table)
	if err != nil {
		return c, fmt.Errorf("query unique constraints for %s.%s: %w", schemaName, table, err)
	}
	uniqueByName := make(map[string][]string)
	var uniqueOrder []string
	for uqRows.Next() {
		var name, col string
		if err := uqRows.Scan(&name, &col); err != nil {
			uqRows.Close()
			return c, fmt.Errorf("scan unique constraint column: %w", err)
		}
		if _, ok := uniqueByName[name]; !ok {
			uniqueOrder = append(uniqueOrder, name)
		}
		uniqueByName[name] = append(uniqueByName[name], col)
	}
	uqRows.Close()
	if err := uqRows.Err(); err != nil {
		return c, err
	}
	for _, name := range uniqueOrder {
		c.UniqueConstraints = append(c.UniqueConstraints, uniqueByName[name])
	}

	const checkQuery = `
		SELECT search_condition
		FROM all_constraints
		WHERE owner = :1 AND table_name = :2 AND constraint_type = 'C'
			AND search_condition IS NOT NULL
	`
	ckRows, err := h.db.QueryContext(ctx, checkQuery, schemaName, table)
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
	return c, ckRows.Err()
}

// RowCount returns all_tables.num_rows, a statistic populated by
// DBMS_STATS.GATHER_TABLE_STATS, when estimate is true; otherwise it falls
// back to an exact COUNT(*).
func (h *Handler) RowCount(ctx context.Context, schemaName, table string, estimate bool) (*int64, error) {
	if estimate {
		const query = `SELECT NVL(num_rows, 0) FROM all_tables WHERE owner = :1 AND table_name = :2`
		var est int64
		if err := h.db.QueryRowContext(ctx, query, schemaName, table).Scan(&est); err != nil {
			return nil, fmt.Errorf("estimate row count for %s.%s: %w", schemaName, table, err)
		}
		return &est, nil
	}

	tableRef := quoteQualified(schemaName, table)
	var count int64
	if err := h.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableRef)).Scan(&count); err != nil {
		return nil, fmt.Errorf("count rows for %s.%s: %w", schemaName, table, err)
	}
	return &count, nil
}

// ListSchemas returns non-Oracle-maintained schemas, filtering out the
// well-known system/component accounts all_users carries by default.
func (h *Handler) ListSchemas(ctx context.Context) ([]string, error) {
	const query = `
		SELECT username FROM all_users
		WHERE oracle_maintained = 'N'
		ORDER BY username
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

// ListTables returns base tables owned by schemaName.
func (h *Handler) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	const query = `SELECT table_name FROM all_tables WHERE owner = :1 ORDER BY table_name`
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

// Sample materializes a TableSample for table. Oracle has no LIMIT/OFFSET
// syntax; FETCH FIRST and OFFSET ... FETCH NEXT (12c+) stand in for the
// Postgres handler's LIMIT/OFFSET pair.
func (h *Handler) Sample(ctx context.Context, schemaName, table string, size, count int, strategy models.SamplingMethod) (*models.TableSample, error) {
	tableRef := quoteQualified(schemaName, table)

	columns, err := h.columnOrder(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}

	switch strategy {
	case models.SamplingFull:
		rows, err := h.fetchRows(ctx, fmt.Sprintf("SELECT * FROM %s FETCH FIRST %d ROWS ONLY", tableRef, size*count), columns)
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

			query := fmt.Sprintf("SELECT * FROM %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", tableRef, offset, size)
			rows, err := h.fetchRows(ctx, query, columns)
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
		SELECT column_name FROM all_tab_columns
		WHERE owner = :1 AND table_name = :2
		ORDER BY column_id
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

// CheckCost has no dry-run equivalent exposed through database/sql for
// Oracle, so every query is reported safe and unchecked, matching the
// capability-set contract's fallback for engines without a native cost
// estimator.
func (h *Handler) CheckCost(ctx context.Context, sql string) (bool, string, error) {
	return true, "unchecked", nil
}

// PartitionInfo returns nil. Oracle supports native table partitioning
// (RANGE/LIST/HASH/INTERVAL via ALL_PART_TABLES/ALL_TAB_PARTITIONS), but
// wiring it is deferred until a caller needs partition-aware sampling
// against Oracle specifically; BigQuery is the first engine this capability
// is exercised against end to end.
func (h *Handler) PartitionInfo(ctx context.Context, schemaName, table string) (*models.PartitionInfo, error) {
	return nil, nil
}

// QuoteIdentifier safely quotes a SQL identifier for Oracle using double
// quotes, escaping any embedded quote by doubling it.
func (h *Handler) QuoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func quoteQualified(schemaName, table string) string {
	return fmt.Sprintf(`"%s"."%s"`,
		strings.ReplaceAll(schemaName, `"`, `""`),
		strings.ReplaceAll(table, `"`, `""`))
}

// Ensure Handler implements datasource.Handler at compile time.
var _ datasource.Handler = (*Handler)(nil)
