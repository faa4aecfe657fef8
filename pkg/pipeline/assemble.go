package pipeline

import (
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
	"github.com/metadata-pipeline/metadatapipeline/pkg/profiler"
)

// assemble packages every stage's output into the final MetadataDocument.
// It performs no I/O and cannot fail: every input has already been
// validated or degraded to a deterministic value by its producing stage.
func assemble(
	req models.GenerationRequest,
	tableProfile *profiler.TableProfile,
	definitions map[string]models.ColumnDefinition,
	glossary map[string]map[string]string,
	insights models.TableInsights,
	partitionInfo *models.PartitionInfo,
	stats models.ProcessingStats,
) *models.MetadataDocument {
	return &models.MetadataDocument{
		Database:            req.Database,
		Schema:              req.Schema,
		Table:               req.Table,
		Columns:             tableProfile.Columns,
		Definitions:         definitions,
		Constraints:         tableProfile.Constraints,
		PartitionInfo:       partitionInfo,
		CategoricalGlossary: glossary,
		TableInsights:       insights,
		ProcessingStats:     stats,
	}
}
