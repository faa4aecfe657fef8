package pipeline

import (
	"context"
	"fmt"

	"github.com/metadata-pipeline/metadatapipeline/pkg/apperrors"
	"github.com/metadata-pipeline/metadatapipeline/pkg/llm"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// fallbackDomain and fallbackCategory are the deterministic values used
// when table insights cannot be generated (no gateway, or the LLM call
// degrades).
const (
	fallbackDomain   = "Business Data"
	fallbackCategory = "Data Table"
)

// tableInsights is always invoked: it returns at minimum the deterministic
// fallback core fields, with the six optional subdocuments populated
// only when their GenerationOptions flag is set and an LLM call succeeds.
func tableInsights(ctx context.Context, gateway llm.Gateway, schemaName, table string, schema map[string]models.ColumnTypeInfo, constraints models.Constraints, opts models.GenerationOptions) (models.TableInsights, int, error) {
	fallback := models.TableInsights{
		Domain:   fallbackDomain,
		Category: fallbackCategory,
		Purpose:  fmt.Sprintf("Stores records for %s.%s.", schemaName, table),
	}

	if gateway == nil {
		return fallback, 0, nil
	}

	insights, tokens, err := llmTableInsights(ctx, gateway, schemaName, table, schema, constraints, opts)
	if err != nil {
		if apperrors.Is(err, apperrors.LLMUnavailable) || apperrors.Is(err, apperrors.CostExceeded) {
			return fallback, tokens, nil
		}
		return models.TableInsights{}, tokens, err
	}
	return insights, tokens, nil
}

func llmTableInsights(ctx context.Context, gateway llm.Gateway, schemaName, table string, schema map[string]models.ColumnTypeInfo, constraints models.Constraints, opts models.GenerationOptions) (models.TableInsights, int, error) {
	columnNames := make([]string, 0, len(schema))
	for name := range schema {
		columnNames = append(columnNames, name)
	}

	prompt := fmt.Sprintf(
		"Table %s.%s has columns: %v. Primary key: %v. Foreign keys: %d. Describe this table's business domain, category, a markdown description, its purpose, usage patterns, and its data lifecycle (update frequency, retention policy, archival strategy).",
		schemaName, table, columnNames, constraints.PrimaryKey, len(constraints.ForeignKeys),
	)
	if opts.Relationships {
		prompt += " Include likely relationships to other tables based on foreign keys and naming."
	}
	if opts.BusinessRules {
		prompt += " Include business rules implied by the constraints and column names."
	}
	if opts.AggregationRules {
		prompt += " Include useful aggregation rules for reporting on this table."
	}
	if opts.QueryRules {
		prompt += " Include performance optimization guidance for querying this table."
	}
	if opts.QueryExamples {
		prompt += " Include 2-3 example SQL queries."
	}
	if opts.AdditionalInsights {
		prompt += " Include any other noteworthy insights as free-form key/value pairs."
	}

	schemaHint := `{"domain": string, "category": string, "description": string, "purpose": string, "usage_patterns": string, ` +
		`"data_lifecycle": {"update_frequency": string, "retention_policy": string, "archival_strategy": string}, ` +
		`"relationships": [string], "business_rules": [string], "aggregation_rules": [string], ` +
		`"performance_optimization": [string], "query_examples": [string], "additional_insights": {}}`

	obj, err := gateway.CallJSON(ctx, prompt, schemaHint)
	if err != nil {
		return models.TableInsights{}, 0, err
	}

	insights := models.TableInsights{
		Domain:        stringFieldOr(obj, "domain", fallbackDomain),
		Category:      stringFieldOr(obj, "category", fallbackCategory),
		Description:   stringField(obj, "description"),
		Purpose:       stringField(obj, "purpose"),
		UsagePatterns: stringField(obj, "usage_patterns"),
	}

	if lifecycle := mapField(obj, "data_lifecycle"); lifecycle != nil {
		insights.DataLifecycle = models.DataLifecycle{
			UpdateFrequency:  stringField(lifecycle, "update_frequency"),
			RetentionPolicy:  stringField(lifecycle, "retention_policy"),
			ArchivalStrategy: stringField(lifecycle, "archival_strategy"),
		}
	}

	if opts.Relationships {
		insights.Relationships = stringSliceField(obj, "relationships")
	}
	if opts.BusinessRules {
		insights.BusinessRules = stringSliceField(obj, "business_rules")
	}
	if opts.AggregationRules {
		insights.AggregationRules = stringSliceField(obj, "aggregation_rules")
	}
	if opts.QueryRules {
		insights.PerformanceOptimization = stringSliceField(obj, "performance_optimization")
	}
	if opts.QueryExamples {
		insights.QueryExamples = stringSliceField(obj, "query_examples")
	}
	if opts.AdditionalInsights {
		insights.AdditionalInsights = mapField(obj, "additional_insights")
	}

	return insights, estimateResponseTokens(obj), nil
}

func stringFieldOr(obj map[string]any, key, fallback string) string {
	if v := stringField(obj, key); v != "" {
		return v
	}
	return fallback
}
