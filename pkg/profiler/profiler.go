// Package profiler derives per-column statistical and quality facts from a
// materialized TableSample, classifying each column and packaging the
// table's constraints alongside its profile.
package profiler

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// facetWorkers bounds the profiler's concurrent fan-out: constraints,
// numeric statistics, data-quality metrics, and categorical value
// extraction are four independent facets, run with four workers.
const facetWorkers = 4

// TableProfile bundles every column's derived profile alongside the
// table-level constraints the handler reported.
type TableProfile struct {
	Columns     map[string]models.ColumnProfile
	Constraints models.Constraints
}

// Profile runs the four independent profiling facets concurrently, bounded
// to facetWorkers in-flight goroutines. Each facet owns its own result map
// so the goroutines never contend on the same memory; results are merged
// into the final per-column profiles only after every facet has returned.
// A failed facet yields its zero value for the columns it covers rather
// than aborting the table's profile.
func Profile(ctx context.Context, handler datasource.Handler, schemaName, table string, sample *models.TableSample, schema map[string]models.ColumnTypeInfo, rowCount *int64) (*TableProfile, error) {
	classifications := make(map[string]models.Classification, len(sample.ColumnOrder))
	valuesByColumn := make(map[string][]any, len(sample.ColumnOrder))
	for _, colName := range sample.ColumnOrder {
		values := columnValues(sample.Rows, colName)
		valuesByColumn[colName] = values
		classifications[colName] = Classify(schema[colName], colName, values)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(facetWorkers)

	var constraints models.Constraints
	statsByColumn := make(map[string]*models.NumericStats)
	qualityByColumn := make(map[string]models.QualityMetrics)
	categoricalByColumn := make(map[string][]string)

	group.Go(func() error {
		c, err := handler.Constraints(gctx, schemaName, table)
		if err != nil {
			return nil // facet failure yields the zero value, never aborts
		}
		constraints = c
		return nil
	})

	group.Go(func() error {
		for colName, classification := range classifications {
			if classification != models.ClassificationNumerical {
				continue
			}
			statsByColumn[colName] = NumericStats(valuesByColumn[colName])
		}
		return nil
	})

	group.Go(func() error {
		for colName, classification := range classifications {
			qualityByColumn[colName] = Quality(classification, schema[colName].DeclaredType, valuesByColumn[colName])
		}
		return nil
	})

	group.Go(func() error {
		for colName, classification := range classifications {
			if classification != models.ClassificationCategorical {
				continue
			}
			catValues, err := CategoricalValues(gctx, handler, schemaName, table, colName, rowCount, valuesByColumn[colName])
			if err != nil {
				continue // facet failure for this column yields no categorical values
			}
			// The full list, dates included, is retained on the profile;
			// only the glossary stage filters dates out (MeaningfulValues).
			categoricalByColumn[colName] = catValues
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	columns := make(map[string]models.ColumnProfile, len(sample.ColumnOrder))
	for _, colName := range sample.ColumnOrder {
		colType := schema[colName]
		columns[colName] = models.ColumnProfile{
			Name:              colName,
			DeclaredType:      colType.DeclaredType,
			Nullable:          colType.Nullable,
			Classification:    classifications[colName],
			NumericStats:      statsByColumn[colName],
			CategoricalValues: categoricalByColumn[colName],
			Quality:           qualityByColumn[colName],
		}
	}

	return &TableProfile{Columns: columns, Constraints: constraints}, nil
}
