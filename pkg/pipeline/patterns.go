package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// selfExplanatoryPatterns matches column names whose purpose is evident
// from the name alone, letting stage 3 skip an LLM call entirely for them.
var selfExplanatoryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^id$`),
	regexp.MustCompile(`(?i)_id$`),
	regexp.MustCompile(`(?i)^is_`),
	regexp.MustCompile(`(?i)^has_`),
	regexp.MustCompile(`(?i)_at$`),
	regexp.MustCompile(`(?i)_time$`),
	regexp.MustCompile(`(?i)_date$`),
	regexp.MustCompile(`(?i)_count$`),
	regexp.MustCompile(`(?i)^num_`),
	regexp.MustCompile(`(?i)^created_at$`),
	regexp.MustCompile(`(?i)^updated_at$`),
	regexp.MustCompile(`(?i)^version$`),
}

// genericTerms lists words that flag engine-supplied column comments that pad out
// length without conveying meaning, so they don't pass the "sufficient"
// check just by being long.
var genericTerms = []string{
	"column", "field", "value", "data", "information", "the", "a", "an", "of", "for", "this",
}

const sufficientDescriptionMinLength = 20

// isSelfExplanatory reports whether columnName matches one of the
// self-explanatory naming patterns stage 3 uses to skip straight to a
// templated, pattern-derived definition.
func isSelfExplanatory(columnName string) bool {
	for _, p := range selfExplanatoryPatterns {
		if p.MatchString(columnName) {
			return true
		}
	}
	return false
}

// patternDefinition renders the templated definition for a self-explanatory
// column name.
func patternDefinition(columnName, declaredType string) string {
	lower := strings.ToLower(columnName)
	switch {
	case lower == "id":
		return "Unique identifier for the row."
	case strings.HasSuffix(lower, "_id"):
		return fmt.Sprintf("Reference identifier to a related %s record.", strings.TrimSuffix(lower, "_id"))
	case strings.HasPrefix(lower, "is_") || strings.HasPrefix(lower, "has_"):
		return fmt.Sprintf("Boolean flag: %s.", strings.ReplaceAll(lower, "_", " "))
	case strings.HasSuffix(lower, "_at") || strings.HasSuffix(lower, "_time") || strings.HasSuffix(lower, "_date"):
		return fmt.Sprintf("Timestamp marking when the %s occurred.", strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(lower, "_at"), "_time"), "_date"))
	case strings.HasSuffix(lower, "_count") || strings.HasPrefix(lower, "num_"):
		return fmt.Sprintf("Count of %s.", strings.TrimSuffix(strings.TrimPrefix(lower, "num_"), "_count"))
	case lower == "version":
		return "Version number for optimistic concurrency or change tracking."
	default:
		return fmt.Sprintf("Column %s of type %s.", columnName, declaredType)
	}
}

// isSufficientDescription judges whether an engine-supplied column comment
// is substantial enough to use as-is: long enough, not generic-term
// padding, and not a bare echo of the column name.
func isSufficientDescription(description, columnName string) bool {
	trimmed := strings.TrimSpace(description)
	if len(trimmed) < sufficientDescriptionMinLength {
		return false
	}

	lowerDesc := strings.ToLower(trimmed)
	lowerName := strings.ToLower(strings.ReplaceAll(columnName, "_", " "))
	if lowerDesc == lowerName {
		return false
	}

	words := strings.Fields(lowerDesc)
	if len(words) == 0 {
		return false
	}
	genericCount := 0
	for _, w := range words {
		for _, g := range genericTerms {
			if w == g {
				genericCount++
				break
			}
		}
	}
	return float64(genericCount)/float64(len(words)) < 0.5
}

// fallbackDefinition is the minimal deterministic definition used when an
// LLM call fails for a column.
func fallbackDefinition(columnName, declaredType string) string {
	return fmt.Sprintf("Column %s of type %s", columnName, declaredType)
}
