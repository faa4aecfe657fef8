package profiler

import (
	"math"

	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

const qualitySampleFloor = 100

// Quality computes completeness/uniqueness percentages and derives the
// issues/recommendations lists for a single column's sampled values.
func Quality(classification models.Classification, declaredType string, values []any) models.QualityMetrics {
	total := len(values)
	if total == 0 {
		return models.QualityMetrics{}
	}

	nonNull := 0
	seen := make(map[string]struct{}, total)
	numericMismatch := false

	for _, v := range values {
		if v == nil {
			continue
		}
		nonNull++
		s := toString(v)
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
		}
		if classification == models.ClassificationNumerical && !looksNumericString(v) {
			numericMismatch = true
		}
	}

	completeness := 100 * float64(nonNull) / float64(total)
	uniqueness := 0.0
	if nonNull > 0 {
		uniqueness = 100 * float64(len(seen)) / float64(nonNull)
	}

	var issues, recommendations []string

	if completeness < 95 {
		issues = append(issues, "high missing values")
		recommendations = append(recommendations, "investigate source")
	}

	if uniqueness == 100 && total >= qualitySampleFloor {
		issues = append(issues, "potential primary key")
	}

	if len(seen) <= 5 && total >= qualitySampleFloor {
		// for a categorical column the value list itself is carried on
		// ColumnProfile.CategoricalValues, populated separately by
		// CategoricalValues; a column of any other classification gets
		// this issue with no value list
		issues = append(issues, "low cardinality")
	}

	if numericMismatch {
		issues = append(issues, "type mismatch")
	}

	if classification == models.ClassificationNumerical {
		if skew := Skew(values); math.Abs(skew) > 3 {
			issues = append(issues, "highly skewed distribution")
		}
	}

	return models.QualityMetrics{
		CompletenessPct: completeness,
		UniquenessPct:   uniqueness,
		Issues:          issues,
		Recommendations: recommendations,
	}
}
