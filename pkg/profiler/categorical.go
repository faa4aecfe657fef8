package profiler

import (
	"context"
	"sort"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
)

// directDistinctRowCountCeiling is the row-count threshold below which
// categorical value extraction would prefer a direct DISTINCT query against
// the source instead of deriving values from the in-memory sample.
const directDistinctRowCountCeiling = 100_000

const categoricalValueCap = 100

// CategoricalValues extracts up to categoricalValueCap distinct values for a
// categorical column. The capability-set Handler interface has no raw-query
// method (Schema/Sample/etc are its only query-producing surface), so the
// "direct SELECT DISTINCT against the source below 100k rows" preference
// is not reachable today; every call derives the list from the in-memory
// sample instead. handler and rowCount are accepted unused so a future
// CheckCost-gated raw-query capability can be slotted in here without
// changing this function's signature.
func CategoricalValues(ctx context.Context, handler datasource.Handler, schemaName, table, columnName string, rowCount *int64, sampleValues []any) ([]string, error) {
	return distinctFromSample(sampleValues), nil
}

func distinctFromSample(values []any) []string {
	seen := make(map[string]struct{})
	var ordered []string
	for _, v := range values {
		if v == nil {
			continue
		}
		s := toString(v)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)
	if len(ordered) > categoricalValueCap {
		ordered = ordered[:categoricalValueCap]
	}
	return ordered
}

// MeaningfulValues drops date-like entries from values, the list used
// downstream for glossary generation. The full list, dates included, is
// retained on ColumnProfile.CategoricalValues; callers building a glossary
// prompt call this to filter it first.
func MeaningfulValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if parsesAsDate(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
