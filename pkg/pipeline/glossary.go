package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/metadata-pipeline/metadatapipeline/pkg/apperrors"
	"github.com/metadata-pipeline/metadatapipeline/pkg/llm"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
	"github.com/metadata-pipeline/metadatapipeline/pkg/profiler"
)

// maxGlossaryValuesPerColumn bounds how many categorical values get an
// LLM-derived definition per column, keeping the prompt and the resulting
// document bounded regardless of how many distinct values the profiler
// extracted (up to its own 100-value cap).
const maxGlossaryValuesPerColumn = 20

// categoricalGlossary builds, for every categorical column with at least
// one extracted value, a map of value -> short definition. Gated by the
// CategoricalDefinitions option at the call site; a nil gateway or an
// LLMUnavailable/CostExceeded error degrades that column to an identity
// glossary (value maps to itself) rather than dropping the column.
func categoricalGlossary(ctx context.Context, gateway llm.Gateway, table string, profile map[string]models.ColumnProfile) (map[string]map[string]string, int, error) {
	glossary := make(map[string]map[string]string)
	tokensUsed := 0

	for columnName, col := range profile {
		if col.Classification != models.ClassificationCategorical || len(col.CategoricalValues) == 0 {
			continue
		}

		values := profiler.MeaningfulValues(col.CategoricalValues)
		if len(values) == 0 {
			continue
		}
		if len(values) > maxGlossaryValuesPerColumn {
			values = values[:maxGlossaryValuesPerColumn]
		}

		if gateway == nil {
			glossary[columnName] = identityGlossary(values)
			continue
		}

		defs, tokens, err := llmCategoricalGlossary(ctx, gateway, table, columnName, values)
		tokensUsed += tokens
		if err != nil {
			if apperrors.Is(err, apperrors.LLMUnavailable) || apperrors.Is(err, apperrors.CostExceeded) {
				glossary[columnName] = identityGlossary(values)
				continue
			}
			return nil, tokensUsed, err
		}
		glossary[columnName] = defs
	}

	return glossary, tokensUsed, nil
}

func identityGlossary(values []string) map[string]string {
	out := make(map[string]string, len(values))
	for _, v := range values {
		out[v] = v
	}
	return out
}

func llmCategoricalGlossary(ctx context.Context, gateway llm.Gateway, table, columnName string, values []string) (map[string]string, int, error) {
	prompt := fmt.Sprintf(
		"Table %s, categorical column %q has these distinct values: %s. For each value give a short, plain-language definition of what it means in this business context.",
		table, columnName, strings.Join(values, ", "),
	)
	schemaHint := `{"definitions": {"<value>": "<definition>", ...}}`

	obj, err := gateway.CallJSON(ctx, prompt, schemaHint)
	if err != nil {
		return nil, 0, err
	}

	raw := mapField(obj, "definitions")
	out := make(map[string]string, len(values))
	for _, v := range values {
		if def, ok := raw[v].(string); ok && def != "" {
			out[v] = def
		} else {
			out[v] = v
		}
	}
	return out, estimateResponseTokens(obj), nil
}
