package profiler

import "fmt"

// toString renders an arbitrary sampled cell value for classification and
// categorical-value purposes. Numeric and time types come back from
// database/sql drivers in a handful of concrete Go types; everything else
// falls back to fmt.Sprint.
func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}

// columnValues extracts every value of column colName from sample rows, in
// row order, including nils.
func columnValues(rows []map[string]any, colName string) []any {
	values := make([]any, len(rows))
	for i, row := range rows {
		values[i] = row[colName]
	}
	return values
}
