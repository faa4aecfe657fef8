package profiler

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

var numericTypePatterns = []string{
	"int", "float", "double", "decimal", "numeric", "real", "serial", "money",
}

var categoricalNamePatterns = regexp.MustCompile(`(?i)(_id|_code|status|_type|_flag|_category)$`)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
}

const (
	categoricalUniqueRatioMax = 0.03
	longTextAvgLenMin         = 100
	longTextUniquenessMin     = 0.99
)

// Classify determines a column's statistical shape from its declared type
// and, when the type alone is ambiguous, a sample of its non-null values.
func Classify(col models.ColumnTypeInfo, columnName string, values []any) models.Classification {
	declared := strings.ToLower(col.DeclaredType)

	for _, pattern := range numericTypePatterns {
		if strings.Contains(declared, pattern) {
			return models.ClassificationNumerical
		}
	}

	for _, skip := range []string{"date", "time", "bool", "char", "text", "uuid", "json"} {
		if strings.Contains(declared, skip) {
			return classifyFromValues(columnName, values)
		}
	}

	return classifyFromValues(columnName, values)
}

func classifyFromValues(columnName string, values []any) models.Classification {
	nonNull := nonNullStrings(values)
	if len(nonNull) == 0 {
		return models.ClassificationOther
	}

	numericCount := 0
	for _, v := range nonNull {
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			numericCount++
		}
	}
	if float64(numericCount)/float64(len(nonNull)) >= 0.8 {
		return models.ClassificationNumerical
	}

	if isLongText(nonNull) {
		return models.ClassificationOther
	}

	uniqueRatio := uniqueRatio(nonNull)
	if uniqueRatio <= categoricalUniqueRatioMax || categoricalNamePatterns.MatchString(columnName) || looksBoolean(nonNull) || looksDateLike(nonNull) {
		return models.ClassificationCategorical
	}

	return models.ClassificationOther
}

func isLongText(values []string) bool {
	total := 0
	for _, v := range values {
		total += len(v)
	}
	avgLen := float64(total) / float64(len(values))
	return avgLen > longTextAvgLenMin && uniqueRatio(values) >= longTextUniquenessMin
}

func uniqueRatio(values []string) float64 {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return float64(len(seen)) / float64(len(values))
}

func looksBoolean(values []string) bool {
	for _, v := range values {
		lv := strings.ToLower(v)
		if lv != "true" && lv != "false" && lv != "t" && lv != "f" && lv != "0" && lv != "1" && lv != "yes" && lv != "no" {
			return false
		}
	}
	return true
}

func looksDateLike(values []string) bool {
	sample := values
	if len(sample) > 20 {
		sample = sample[:20]
	}
	matches := 0
	for _, v := range sample {
		if parsesAsDate(v) {
			matches++
		}
	}
	return float64(matches)/float64(len(sample)) >= 0.8
}

// parsesAsDate reports whether v parses under any of the fixed date
// layouts used to drop date-like values from categorical glossary output.
func parsesAsDate(v string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

func nonNullStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case []byte:
			out = append(out, string(t))
		default:
			out = append(out, toString(v))
		}
	}
	return out
}
