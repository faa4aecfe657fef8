package datasource

import (
	"context"

	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// Handler is the uniform per-engine capability set that the profiler and
// pipeline orchestrator consume. Every engine subpackage (postgres, mysql,
// sqlite, bigquery, oracle, duckdb) produces one via its registered
// HandlerFactory; callers never type-switch on engine.
type Handler interface {
	Schema(ctx context.Context, schemaName, table string) (map[string]models.ColumnTypeInfo, error)
	Indexes(ctx context.Context, schemaName, table string) ([]models.IndexInfo, error)
	Constraints(ctx context.Context, schemaName, table string) (models.Constraints, error)

	// RowCount returns nil when estimate is requested but the engine has no
	// cheap statistics to estimate from and an exact count was not taken.
	RowCount(ctx context.Context, schemaName, table string, estimate bool) (*int64, error)

	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schemaName string) ([]string, error)

	Sample(ctx context.Context, schemaName, table string, size, count int, strategy models.SamplingMethod) (*models.TableSample, error)

	// CheckCost dry-runs sql where the engine supports it. Engines that
	// cannot dry-run return (true, "unchecked").
	CheckCost(ctx context.Context, sql string) (safe bool, rationale string, err error)

	// PartitionInfo is nil, nil for engines that do not partition natively.
	PartitionInfo(ctx context.Context, schemaName, table string) (*models.PartitionInfo, error)

	Close() error
}

// HandlerFactory builds a Handler for a registered engine type, bound to the
// connection manager's pool for (owner, name).
type HandlerFactory func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, owner, name string) (Handler, error)
