package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/metadata-pipeline/metadatapipeline/pkg/apperrors"
	"github.com/metadata-pipeline/metadatapipeline/pkg/llm"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// columnDefinitions builds a definition for every column in schema. Each
// column takes one of four paths: pattern-based (self-explanatory name),
// engine schema (a sufficiently descriptive engine comment), LLM-enhanced,
// or fallback (no gateway configured, or the LLM call failed). Every
// LLM-enhanced column is batched into a single gateway.CallJSON request
// rather than one call per column. A nil gateway makes no call and gives
// every column that is not pattern-based or engine-schema a fallback
// definition.
func columnDefinitions(ctx context.Context, gateway llm.Gateway, schemaName, table string, schema map[string]models.ColumnTypeInfo, profile map[string]models.ColumnProfile) (map[string]models.ColumnDefinition, int, error) {
	definitions := make(map[string]models.ColumnDefinition, len(schema))
	tokensUsed := 0

	var llmColumns []string
	for columnName, colType := range schema {
		if isSelfExplanatory(columnName) {
			definitions[columnName] = models.ColumnDefinition{
				Definition:   patternDefinition(columnName, colType.DeclaredType),
				BusinessName: businessName(columnName),
				Source:       models.SourcePatternBased,
			}
			continue
		}

		if isSufficientDescription(colType.EngineComment, columnName) {
			definitions[columnName] = models.ColumnDefinition{
				Definition:   strings.TrimSpace(colType.EngineComment),
				BusinessName: businessName(columnName),
				Source:       models.SourceEngineSchema,
			}
			continue
		}

		llmColumns = append(llmColumns, columnName)
	}

	if len(llmColumns) == 0 {
		return definitions, tokensUsed, nil
	}

	if gateway == nil {
		for _, columnName := range llmColumns {
			definitions[columnName] = fallbackColumnDefinition(columnName, schema[columnName].DeclaredType)
		}
		return definitions, tokensUsed, nil
	}

	// Deterministic column order keeps the prompt (and any retry) stable.
	sort.Strings(llmColumns)

	defs, tokens, err := llmColumnDefinitions(ctx, gateway, schemaName, table, llmColumns, schema, profile)
	tokensUsed += tokens
	if err != nil {
		if apperrors.Is(err, apperrors.LLMUnavailable) || apperrors.Is(err, apperrors.CostExceeded) {
			for _, columnName := range llmColumns {
				definitions[columnName] = fallbackColumnDefinition(columnName, schema[columnName].DeclaredType)
			}
			return definitions, tokensUsed, nil
		}
		return nil, tokensUsed, err
	}

	for _, columnName := range llmColumns {
		if def, ok := defs[columnName]; ok {
			definitions[columnName] = def
		} else {
			// The LLM omitted this column from its response object.
			definitions[columnName] = fallbackColumnDefinition(columnName, schema[columnName].DeclaredType)
		}
	}

	return definitions, tokensUsed, nil
}

func fallbackColumnDefinition(columnName, declaredType string) models.ColumnDefinition {
	return models.ColumnDefinition{
		Definition:   fallbackDefinition(columnName, declaredType),
		BusinessName: businessName(columnName),
		Source:       models.SourceFallback,
	}
}

// businessName derives the <= 3 word business name from a column's
// snake_case identifier; the LLM path overrides this when it returns one.
func businessName(columnName string) string {
	words := strings.Split(columnName, "_")
	if len(words) > 3 {
		words = words[:3]
	}
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// llmColumnDefinitions issues a single gateway.CallJSON request covering
// every column in columnNames, requesting a JSON object keyed by column
// name, and merges the result into one models.ColumnDefinition per column.
func llmColumnDefinitions(ctx context.Context, gateway llm.Gateway, schemaName, table string, columnNames []string, schema map[string]models.ColumnTypeInfo, profile map[string]models.ColumnProfile) (map[string]models.ColumnDefinition, int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Table %s.%s has the following columns needing definitions:\n", schemaName, table)
	for _, columnName := range columnNames {
		colType := schema[columnName]
		fmt.Fprintf(&b, "- %q, declared type %s, classification %s\n", columnName, colType.DeclaredType, profile[columnName].Classification)
	}
	b.WriteString("For each column, describe what it represents in one or two sentences, its business name (max 3 words), its purpose, and any format notes.")

	schemaHint := `{"<column_name>": {"definition": string, "business_name": string, "purpose": string, "format": string, "business_rules": [string]}, ...}`

	obj, err := gateway.CallJSON(ctx, b.String(), schemaHint)
	if err != nil {
		return nil, 0, err
	}

	defs := make(map[string]models.ColumnDefinition, len(columnNames))
	for _, columnName := range columnNames {
		colObj := mapField(obj, columnName)

		def := models.ColumnDefinition{
			Definition:   stringField(colObj, "definition"),
			BusinessName: stringField(colObj, "business_name"),
			Purpose:      stringField(colObj, "purpose"),
			Format:       stringField(colObj, "format"),
			Source:       models.SourceLLMEnhanced,
		}
		if def.Definition == "" {
			def.Definition = fallbackDefinition(columnName, schema[columnName].DeclaredType)
		}
		if def.BusinessName == "" {
			def.BusinessName = businessName(columnName)
		}
		def.BusinessRules = stringSliceField(colObj, "business_rules")

		defs[columnName] = def
	}

	return defs, estimateResponseTokens(obj), nil
}
