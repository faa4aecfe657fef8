// Package pipeline orchestrates the six-stage metadata generation run:
// acquire, profile, column definitions, categorical glossary, table
// insights, and assemble. Stage 1 failures abort the run; stage 2
// degrades per-facet inside pkg/profiler; stages 3 through 5 degrade to
// deterministic fallbacks when the LLM gateway is unavailable or the cost
// ceiling trips.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	"github.com/metadata-pipeline/metadatapipeline/pkg/llm"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
	"github.com/metadata-pipeline/metadatapipeline/pkg/profiler"
)

// Orchestrator runs a complete metadata generation for one table.
type Orchestrator struct {
	factory datasource.DatasourceAdapterFactory
	gateway llm.Gateway
	logger  *zap.Logger
}

// New builds an Orchestrator. gateway may be nil, in which case every
// LLM-backed stage degrades straight to its deterministic fallback
// without attempting a call; this is the configuration used when no LLM
// provider credential is present.
func New(factory datasource.DatasourceAdapterFactory, gateway llm.Gateway, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{factory: factory, gateway: gateway, logger: logger.Named("pipeline")}
}

// ProgressFunc receives a run's fractional completion (0 to 1) as it
// crosses each stage boundary. Implementations must return promptly;
// RunWithProgress does not buffer or retry a slow callback.
type ProgressFunc func(fraction float64)

// Run executes all six stages for req against conn, producing a complete
// MetadataDocument. Stage timings and token usage are recorded on the
// returned document's ProcessingStats regardless of which optional
// stages degraded to a fallback.
func (o *Orchestrator) Run(ctx context.Context, conn models.ConnectionSpec, connConfig map[string]any, req models.GenerationRequest) (*models.MetadataDocument, error) {
	return o.RunWithProgress(ctx, conn, connConfig, req, nil)
}

// RunWithProgress is Run with progress checkpoints: 0.1 after acquire,
// 0.4 after profile, 0.7 after the LLM-backed stages, 1.0 on successful
// completion. progress may be nil.
func (o *Orchestrator) RunWithProgress(ctx context.Context, conn models.ConnectionSpec, connConfig map[string]any, req models.GenerationRequest, progress ProgressFunc) (*models.MetadataDocument, error) {
	report := func(fraction float64) {
		if progress != nil {
			progress(fraction)
		}
	}

	stats := models.ProcessingStats{
		StartedAt:        time.Now(),
		OptionalSections: req.Options,
	}

	acquireStart := time.Now()
	acq, err := acquire(ctx, o.factory, conn, connConfig, req)
	stats.Steps = append(stats.Steps, models.StageTiming{Name: "acquire", StartedAt: acquireStart, EndedAt: time.Now()})
	if err != nil {
		o.logger.Error("acquire stage failed", zap.Error(err), zap.String("table", req.Table))
		return nil, err
	}
	defer acq.handler.Close()
	report(0.1)

	profileStart := time.Now()
	tableProfile, err := profiler.Profile(ctx, acq.handler, req.Schema, req.Table, acq.sample, acq.schema, acq.rowCount)
	stats.Steps = append(stats.Steps, models.StageTiming{Name: "profile", StartedAt: profileStart, EndedAt: time.Now()})
	if err != nil {
		o.logger.Error("profile stage failed", zap.Error(err), zap.String("table", req.Table))
		return nil, err
	}
	report(0.4)

	if !req.Options.DataQuality {
		stripQualityMetrics(tableProfile.Columns)
	}

	definitionsStart := time.Now()
	definitions, defTokens, err := columnDefinitions(ctx, o.gateway, req.Schema, req.Table, acq.schema, tableProfile.Columns)
	stats.Steps = append(stats.Steps, models.StageTiming{Name: "column_definitions", StartedAt: definitionsStart, EndedAt: time.Now(), CompletionTokens: defTokens})
	stats.TotalTokens += defTokens
	if err != nil {
		o.logger.Error("column definitions stage failed", zap.Error(err), zap.String("table", req.Table))
		return nil, err
	}

	var glossary map[string]map[string]string
	if req.Options.CategoricalDefinitions {
		glossaryStart := time.Now()
		g, glossaryTokens, err := categoricalGlossary(ctx, o.gateway, req.Table, tableProfile.Columns)
		stats.Steps = append(stats.Steps, models.StageTiming{Name: "categorical_glossary", StartedAt: glossaryStart, EndedAt: time.Now(), CompletionTokens: glossaryTokens})
		stats.TotalTokens += glossaryTokens
		if err != nil {
			o.logger.Error("categorical glossary stage failed", zap.Error(err), zap.String("table", req.Table))
			return nil, err
		}
		glossary = g
	}

	insightsStart := time.Now()
	insights, insightsTokens, err := tableInsights(ctx, o.gateway, req.Schema, req.Table, acq.schema, tableProfile.Constraints, req.Options)
	stats.Steps = append(stats.Steps, models.StageTiming{Name: "table_insights", StartedAt: insightsStart, EndedAt: time.Now(), CompletionTokens: insightsTokens})
	stats.TotalTokens += insightsTokens
	if err != nil {
		o.logger.Error("table insights stage failed", zap.Error(err), zap.String("table", req.Table))
		return nil, err
	}
	report(0.7)

	stats.EndedAt = time.Now()
	stats.CostEstimateUSD = estimateCostForTokens(o.gateway, stats.TotalTokens)

	doc := assemble(req, tableProfile, definitions, glossary, insights, acq.partitionInfo, stats)
	report(1.0)
	return doc, nil
}

// estimateCostForTokens prices stats.TotalTokens against the configured
// model when a gateway is present, matching the gateway's own per-1k
// pricing table; with no gateway the estimate is zero since no billable
// call was made.
func estimateCostForTokens(gateway llm.Gateway, tokens int) float64 {
	if gateway == nil || tokens == 0 {
		return 0
	}
	price, ok := llm.PricePerThousand[gateway.Model()]
	if !ok {
		price = 0.002
	}
	return price * float64(tokens) / 1000.0
}

// stripQualityMetrics zeroes per-column quality metrics in place when the
// DataQuality generation option is disabled. Classification and
// statistics are always retained; the whole QualityMetrics value
// (completeness, uniqueness, issues and recommendations) is cleared.
func stripQualityMetrics(columns map[string]models.ColumnProfile) {
	for name, col := range columns {
		col.Quality = models.QualityMetrics{}
		columns[name] = col
	}
}
