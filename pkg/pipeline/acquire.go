package pipeline

import (
	"context"
	"fmt"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	"github.com/metadata-pipeline/metadatapipeline/pkg/apperrors"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
	"github.com/metadata-pipeline/metadatapipeline/pkg/registry"
	sqlcheck "github.com/metadata-pipeline/metadatapipeline/pkg/sql"
)

// rowCountSamplingThreshold is the row count above which acquire prefers
// random-offset sampling over a full scan.
const rowCountSamplingThreshold = 10_000

// acquired bundles everything stage 1 (Acquire) produces for downstream
// stages.
type acquired struct {
	handler       datasource.Handler
	schema        map[string]models.ColumnTypeInfo
	indexes       []models.IndexInfo
	partitionInfo *models.PartitionInfo
	rowCount      *int64
	sample        *models.TableSample
}

// acquire resolves a Handler for conn, introspects the target table's
// schema/indexes/partition info, and materializes a sample. Any failure
// here aborts the pipeline run: stage 1 is the only stage with no
// graceful-degradation path, since every later stage depends on its
// output.
func acquire(ctx context.Context, factory datasource.DatasourceAdapterFactory, conn models.ConnectionSpec, connConfig map[string]any, req models.GenerationRequest) (*acquired, error) {
	if err := registry.ValidateRequestIdentifiers(req.Database, req.Schema, req.Table); err != nil {
		return nil, apperrors.WithStage(apperrors.StageFailed, "acquire", "request identifier failed safety validation", err)
	}

	handler, err := factory.NewHandler(ctx, string(conn.Engine), connConfig, conn.Owner, conn.Name)
	if err != nil {
		return nil, apperrors.WithStage(apperrors.StageFailed, "acquire", "failed to resolve datasource handler", err)
	}
	succeeded := false
	defer func() {
		if !succeeded {
			handler.Close()
		}
	}()

	schema, err := handler.Schema(ctx, req.Schema, req.Table)
	if err != nil {
		return nil, apperrors.WithStage(apperrors.StageFailed, "acquire", "failed to introspect schema", err)
	}
	if len(schema) == 0 {
		return nil, apperrors.WithStage(apperrors.StageFailed, "acquire", fmt.Sprintf("table %s.%s has no columns or does not exist", req.Schema, req.Table), nil)
	}

	indexes, err := handler.Indexes(ctx, req.Schema, req.Table)
	if err != nil {
		return nil, apperrors.WithStage(apperrors.StageFailed, "acquire", "failed to introspect indexes", err)
	}

	partitionInfo, err := handler.PartitionInfo(ctx, req.Schema, req.Table)
	if err != nil {
		return nil, apperrors.WithStage(apperrors.StageFailed, "acquire", "failed to introspect partition info", err)
	}

	rowCount, err := handler.RowCount(ctx, req.Schema, req.Table, true)
	if err != nil {
		return nil, apperrors.WithStage(apperrors.StageFailed, "acquire", "failed to estimate row count", err)
	}

	strategy := samplingStrategy(partitionInfo, rowCount)
	if strategy == models.SamplingPartitionAware {
		probe := sqlcheck.ValidateAndNormalize(fmt.Sprintf("SELECT * FROM %s.%s", req.Schema, req.Table))
		if probe.Error != nil {
			return nil, apperrors.WithStage(apperrors.StageFailed, "acquire", "partition-aware cost probe failed validation", probe.Error)
		}
		safe, rationale, err := handler.CheckCost(ctx, probe.NormalizedSQL)
		if err != nil {
			return nil, apperrors.WithStage(apperrors.StageFailed, "acquire", "failed to estimate partition-aware sample cost", err)
		}
		if !safe {
			return nil, apperrors.New(apperrors.CostExceeded, fmt.Sprintf("partition-aware sample for %s.%s rejected: %s", req.Schema, req.Table, rationale))
		}
	}

	sample, err := handler.Sample(ctx, req.Schema, req.Table, req.SampleSize, req.NumSamples, strategy)
	if err != nil {
		return nil, apperrors.WithStage(apperrors.StageFailed, "acquire", "failed to fetch sample", err)
	}

	succeeded = true
	return &acquired{
		handler:       handler,
		schema:        schema,
		indexes:       indexes,
		partitionInfo: partitionInfo,
		rowCount:      rowCount,
		sample:        sample,
	}, nil
}

// samplingStrategy chooses a SamplingMethod from the table's partitioning
// and size. A partitioned table always prefers partition-aware sampling;
// handlers for engines with no native partitioning (every engine but
// BigQuery) never report IsPartitioned, so this never fires for them.
func samplingStrategy(partitionInfo *models.PartitionInfo, rowCount *int64) models.SamplingMethod {
	if partitionInfo != nil && partitionInfo.IsPartitioned {
		return models.SamplingPartitionAware
	}
	if rowCount == nil || *rowCount <= rowCountSamplingThreshold {
		return models.SamplingFull
	}
	return models.SamplingRandomOffset
}
