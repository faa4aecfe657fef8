//go:build bigquery || all_adapters

package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// costThresholdUnsafeBytes and costThresholdNoteBytes mirror the original
// handler's check_query_cost thresholds: above 10GB scanned a query is
// flagged unsafe outright, above 1GB it's allowed but annotated.
const (
	costThresholdUnsafeBytes = 10 * 1024 * 1024 * 1024
	costThresholdNoteBytes   = 1024 * 1024 * 1024
	bytesPerTiB              = 1024 * 1024 * 1024 * 1024
	usdPerTiBScanned         = 5.0
)

// Handler implements datasource.Handler for BigQuery. "schemaName" maps to
// a BigQuery dataset ID; there is no connection pool to bound since every
// operation is a stateless REST/gRPC call through the client.
type Handler struct {
	client    *bigquery.Client
	projectID string
}

// NewHandler creates a BigQuery client for cfg.ProjectID. connMgr, owner,
// and name are accepted to satisfy the common HandlerFactory signature but
// are unused: BigQuery has no pooled connection to hand out.
func NewHandler(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, owner, name string) (*Handler, error) {
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}

	return &Handler{client: client, projectID: cfg.ProjectID}, nil
}

// Close releases the BigQuery client.
func (h *Handler) Close() error {
	return h.client.Close()
}

// Schema returns declared type, nullability, numeric precision/scale, and
// description for every top-level column of table. Nested/repeated fields
// report their BigQuery type string (e.g. "RECORD") rather than being
// flattened.
func (h *Handler) Schema(ctx context.Context, schemaName, table string) (map[string]models.ColumnTypeInfo, error) {
	meta, err := h.client.Dataset(schemaName).Table(table).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("get table metadata for %s.%s: %w", schemaName, table, err)
	}

	result := make(map[string]models.ColumnTypeInfo, len(meta.Schema))
	for _, field := range meta.Schema {
		result[field.Name] = models.ColumnTypeInfo{
			DeclaredType:     string(field.Type),
			Nullable:         !field.Required,
			NumericPrecision: int(field.Precision),
			NumericScale:     int(field.Scale),
			CharLength:       int(field.MaxLength),
			EngineComment:    field.Description,
		}
	}
	return result, nil
}

// Indexes always returns empty: BigQuery is a columnar analytical engine
// with no user-defined b-tree/hash indexes. Clustering is surfaced through
// PartitionInfo instead, since it behaves like physical layout hints rather
// than a queryable index.
func (h *Handler) Indexes(ctx context.Context, schemaName, table string) ([]models.IndexInfo, error) {
	return nil, nil
}

// Constraints reports BigQuery's unenforced primary/foreign key
// declarations when present. BigQuery does not support unique or check
// constraints, and its primary/foreign keys are metadata-only: the engine
// never rejects a write that violates them.
func (h *Handler) Constraints(ctx context.Context, schemaName, table string) (models.Constraints, error) {
	var c models.Constraints

	meta, err := h.client.Dataset(schemaName).Table(table).Metadata(ctx)
	if err != nil {
		return c, fmt.Errorf("get table metadata for %s.%s: %w", schemaName, table, err)
	}

	if meta.TableConstraints == nil {
		return c, nil
	}
	if meta.TableConstraints.PrimaryKey != nil {
		c.PrimaryKey = append(c.PrimaryKey, meta.TableConstraints.PrimaryKey.Columns...)
	}
	for _, fk := range meta.TableConstraints.ForeignKeys {
		local := make([]string, 0, len(fk.ColumnReferences))
		referenced := make([]string, 0, len(fk.ColumnReferences))
		for _, ref := range fk.ColumnReferences {
			local = append(local, ref.ReferencingColumn)
			referenced = append(referenced, ref.ReferencedColumn)
		}
		refTable := ""
		if fk.ReferencedTable != nil {
			refTable = fk.ReferencedTable.TableID
		}
		c.ForeignKeys = append(c.ForeignKeys, models.ForeignKey{
			Name:              fk.Name,
			LocalColumns:      local,
			ReferencedTable:   refTable,
			ReferencedColumns: referenced,
		})
	}

	return c, nil
}

// RowCount returns the table metadata's cached NumRows when estimate is
// true, matching the original handler's use_estimation fast path; otherwise
// it issues an exact COUNT(*), which bills for a full table scan unless the
// table is clustered/partitioned favorably.
func (h *Handler) RowCount(ctx context.Context, schemaName, table string, estimate bool) (*int64, error) {
	if estimate {
		meta, err := h.client.Dataset(schemaName).Table(table).Metadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("get table metadata for %s.%s: %w", schemaName, table, err)
		}
		count := int64(meta.NumRows)
		return &count, nil
	}

	query := h.client.Query(fmt.Sprintf("SELECT COUNT(*) AS row_count FROM `%s.%s.%s`", h.projectID, schemaName, table))
	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("count rows for %s.%s: %w", schemaName, table, err)
	}
	var row []bigquery.Value
	if err := it.Next(&row); err != nil {
		return nil, fmt.Errorf("read row count for %s.%s: %w", schemaName, table, err)
	}
	count, ok := row[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected row count type %T for %s.%s", row[0], schemaName, table)
	}
	return &count, nil
}

// ListSchemas returns every dataset in the configured project.
func (h *Handler) ListSchemas(ctx context.Context) ([]string, error) {
	var schemas []string
	it := h.client.Datasets(ctx)
	for {
		ds, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		schemas = append(schemas, ds.DatasetID)
	}
	return schemas, nil
}

// ListTables returns every table in dataset schemaName.
func (h *Handler) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	var tables []string
	it := h.client.Dataset(schemaName).Tables(ctx)
	for {
		tbl, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list tables for dataset %s: %w", schemaName, err)
		}
		tables = append(tables, tbl.TableID)
	}
	return tables, nil
}

// Sample materializes a TableSample for table. full reads the first
// size*count rows with a plain LIMIT. The other strategies avoid OFFSET,
// which forces a full linear scan on BigQuery's distributed storage;
// instead every strategy other than full and partition-aware uses
// TABLESAMPLE SYSTEM, pulling one randomly chosen block-level percentage sample per
// requested chunk, the BigQuery-idiomatic equivalent of random-offset
// sampling. partition-aware instead prunes to the count newest non-empty
// partitions and fetches size rows from each, falling back to the
// random-offset path when the table turns out not to be partitioned.
func (h *Handler) Sample(ctx context.Context, schemaName, table string, size, count int, strategy models.SamplingMethod) (*models.TableSample, error) {
	tableRef := fmt.Sprintf("`%s.%s.%s`", h.projectID, schemaName, table)

	if strategy == models.SamplingFull {
		rows, columns, err := h.runSampleQuery(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", tableRef, size*count))
		if err != nil {
			return nil, err
		}
		return &models.TableSample{Rows: rows, ColumnOrder: columns, SamplingMethod: models.SamplingFull}, nil
	}

	if strategy == models.SamplingPartitionAware {
		sample, ok, err := h.partitionAwareSample(ctx, schemaName, table, tableRef, size, count)
		if err != nil {
			return nil, err
		}
		if ok {
			return sample, nil
		}
		// Not actually partitioned (or no non-empty partitions); fall
		// through to the generic TABLESAMPLE path below.
	}

	var allRows []map[string]any
	var columns []string
	for i := 0; i < count; i++ {
		query := fmt.Sprintf("SELECT * FROM %s TABLESAMPLE SYSTEM (1 PERCENT) LIMIT %d", tableRef, size)
		rows, cols, err := h.runSampleQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		if columns == nil {
			columns = cols
		}
		allRows = append(allRows, rows...)
	}

	return &models.TableSample{Rows: allRows, ColumnOrder: columns, SamplingMethod: models.SamplingRandomOffset}, nil
}

// partitionAwareSample draws size rows from each of the count newest
// non-empty partitions, using the partition column predicate where one is
// known and a `table$partition_id` decorator otherwise. ok is false when
// the table turns out not to be partitioned or has no non-empty
// partitions, telling the caller to fall back to a non-partition-aware
// strategy.
func (h *Handler) partitionAwareSample(ctx context.Context, schemaName, table, tableRef string, size, count int) (*models.TableSample, bool, error) {
	info, err := h.PartitionInfo(ctx, schemaName, table)
	if err != nil {
		return nil, false, err
	}
	if info == nil || !info.IsPartitioned || len(info.AvailablePartitions) == 0 {
		return nil, false, nil
	}

	// AvailablePartitions is already ordered newest-first (PartitionInfo's
	// query sorts by partition_id DESC); take the first count non-empty.
	var chosen []models.PartitionEntry
	for _, p := range info.AvailablePartitions {
		if p.RowCount <= 0 {
			continue
		}
		chosen = append(chosen, p)
		if len(chosen) == count {
			break
		}
	}
	if len(chosen) == 0 {
		return nil, false, nil
	}

	var allRows []map[string]any
	var columns []string
	for _, p := range chosen {
		var query string
		if info.PartitionColumn != "" {
			query = fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT %d", tableRef, partitionPredicate(info.PartitionColumn, p.PartitionID), size)
		} else {
			query = fmt.Sprintf("SELECT * FROM `%s.%s.%s$%s` LIMIT %d", h.projectID, schemaName, table, p.PartitionID, size)
		}
		rows, cols, err := h.runSampleQuery(ctx, query)
		if err != nil {
			return nil, false, err
		}
		if columns == nil {
			columns = cols
		}
		allRows = append(allRows, rows...)
	}

	return &models.TableSample{Rows: allRows, ColumnOrder: columns, SamplingMethod: models.SamplingPartitionAware}, true, nil
}

// partitionPredicate builds a WHERE predicate for one partition ID against
// partitionColumn. An 8-digit partitionID is a daily time partition
// (YYYYMMDD); anything else is treated as a discrete range/value partition.
func partitionPredicate(partitionColumn, partitionID string) string {
	if len(partitionID) == 8 && isAllDigits(partitionID) {
		dateStr := fmt.Sprintf("%s-%s-%s", partitionID[:4], partitionID[4:6], partitionID[6:8])
		return fmt.Sprintf("DATE(%s) = '%s'", partitionColumn, dateStr)
	}
	return fmt.Sprintf("%s = '%s'", partitionColumn, strings.ReplaceAll(partitionID, "'", "''"))
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (h *Handler) runSampleQuery(ctx context.Context, sql string) ([]map[string]any, []string, error) {
	it, err := h.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("sample query failed: %w", err)
	}

	var columns []string
	for _, f := range it.Schema {
		columns = append(columns, f.Name)
	}

	var result []map[string]any
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read sample row: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, name := range columns {
			if i < len(row) {
				rowMap[name] = row[i]
			}
		}
		result = append(result, rowMap)
	}
	return result, columns, nil
}

// CheckCost dry-runs sql and reports whether BigQuery's estimated bytes
// scanned crosses the same 1GB/10GB thresholds the original handler used:
// under 1GB is silently safe, 1-10GB is safe but noted, and over 10GB is
// reported unsafe so the caller can refuse to run it.
func (h *Handler) CheckCost(ctx context.Context, sql string) (bool, string, error) {
	q := h.client.Query(sql)
	q.DryRun = true

	job, err := q.Run(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "bigquery.jobs.create") {
			return true, "cannot estimate cost: no job-creation permission in this project", nil
		}
		return false, "", fmt.Errorf("dry run query: %w", err)
	}

	status := job.LastStatus()
	stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return true, "could not analyze query cost", nil
	}

	bytesProcessed := stats.TotalBytesProcessed
	estimatedCostUSD := float64(bytesProcessed) / bytesPerTiB * usdPerTiBScanned

	switch {
	case bytesProcessed > costThresholdUnsafeBytes:
		return false, fmt.Sprintf("query would process %.2f GB (estimated cost: $%.4f)",
			float64(bytesProcessed)/(1024*1024*1024), estimatedCostUSD), nil
	case bytesProcessed > costThresholdNoteBytes:
		return true, fmt.Sprintf("query will process %.2f GB (estimated cost: $%.4f)",
			float64(bytesProcessed)/(1024*1024*1024), estimatedCostUSD), nil
	default:
		return true, "query appears to be safe", nil
	}
}

// PartitionInfo reports BigQuery's native time/range partitioning and
// clustering, plus the available partitions from INFORMATION_SCHEMA.PARTITIONS,
// mirroring the original handler's get_partition_info.
func (h *Handler) PartitionInfo(ctx context.Context, schemaName, table string) (*models.PartitionInfo, error) {
	meta, err := h.client.Dataset(schemaName).Table(table).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("get table metadata for %s.%s: %w", schemaName, table, err)
	}

	info := &models.PartitionInfo{}

	switch {
	case meta.TimePartitioning != nil:
		info.IsPartitioned = true
		info.PartitionType = string(meta.TimePartitioning.Type)
		info.PartitionColumn = meta.TimePartitioning.Field
	case meta.RangePartitioning != nil:
		info.IsPartitioned = true
		info.PartitionType = "RANGE"
		info.PartitionColumn = meta.RangePartitioning.Field
	}

	if meta.Clustering != nil {
		info.ClusteringFields = meta.Clustering.Fields
	}

	if !info.IsPartitioned {
		return info, nil
	}

	query := h.client.Query(fmt.Sprintf(`
		SELECT partition_id, total_rows, total_logical_bytes
		FROM `+"`%s.%s.INFORMATION_SCHEMA.PARTITIONS`"+`
		WHERE table_name = @table_name
			AND partition_id IS NOT NULL
			AND partition_id != '__NULL__'
		ORDER BY partition_id DESC
		LIMIT 100
	`, h.projectID, schemaName))
	query.Parameters = []bigquery.QueryParameter{{Name: "table_name", Value: table}}

	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions for %s.%s: %w", schemaName, table, err)
	}
	for {
		var row struct {
			PartitionID       string
			TotalRows         int64
			TotalLogicalBytes int64
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read partition row for %s.%s: %w", schemaName, table, err)
		}
		info.AvailablePartitions = append(info.AvailablePartitions, models.PartitionEntry{
			PartitionID: row.PartitionID,
			RowCount:    row.TotalRows,
			ByteSize:    row.TotalLogicalBytes,
		})
	}

	return info, nil
}

// QuoteIdentifier safely quotes a SQL identifier for BigQuery's GoogleSQL
// dialect using backticks.
func (h *Handler) QuoteIdentifier(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "\\`") + "`"
}

// Ensure Handler implements datasource.Handler at compile time.
var _ datasource.Handler = (*Handler)(nil)
