package profiler

import (
	"math"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

var percentileKeys = []string{"p10", "p25", "p50", "p75", "p90", "p95", "p99"}
var percentileFractions = map[string]float64{
	"p10": 0.10, "p25": 0.25, "p50": 0.50, "p75": 0.75, "p90": 0.90, "p95": 0.95, "p99": 0.99,
}

// NumericStats computes min/max/mean/median/stddev/percentiles over values,
// coercing non-numeric entries to nil per the profiler's numeric-statistics
// contract. Returns nil when fewer than two numeric observations remain.
func NumericStats(values []any) *models.NumericStats {
	nums := coerceNumeric(values)
	if len(nums) < 2 {
		return nil
	}

	sort.Sort(decimalSlice(nums))

	sum := decimal.Zero
	for _, n := range nums {
		sum = sum.Add(n)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(nums))))

	variance := decimal.Zero
	for _, n := range nums {
		diff := n.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(decimal.NewFromInt(int64(len(nums))))
	stdDev := math.Sqrt(variance.InexactFloat64())

	percentiles := make(map[string]float64, len(percentileKeys))
	for _, key := range percentileKeys {
		percentiles[key] = percentile(nums, percentileFractions[key])
	}

	return &models.NumericStats{
		Min:         nums[0].InexactFloat64(),
		Max:         nums[len(nums)-1].InexactFloat64(),
		Mean:        mean.InexactFloat64(),
		Median:      percentiles["p50"],
		StdDev:      stdDev,
		Percentiles: percentiles,
	}
}

// Skew computes the Fisher-Pearson skewness coefficient of values, used by
// the quality-metrics facet to flag highly skewed numeric distributions.
// Returns 0 when fewer than two observations or zero variance.
func Skew(values []any) float64 {
	nums := coerceNumeric(values)
	if len(nums) < 2 {
		return 0
	}

	n := float64(len(nums))
	sum := decimal.Zero
	for _, v := range nums {
		sum = sum.Add(v)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(nums)))).InexactFloat64()

	var m2, m3 float64
	for _, v := range nums {
		d := v.InexactFloat64() - mean
		m2 += d * d
		m3 += d * d * d
	}
	m2 /= n
	m3 /= n

	if m2 == 0 {
		return 0
	}
	return m3 / math.Pow(m2, 1.5)
}

// percentile computes the fraction-th percentile of a sorted decimal slice
// using linear interpolation between closest ranks.
func percentile(sorted []decimal.Decimal, fraction float64) float64 {
	if len(sorted) == 1 {
		return sorted[0].InexactFloat64()
	}
	pos := fraction * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower].InexactFloat64()
	}
	lowVal := sorted[lower].InexactFloat64()
	upVal := sorted[upper].InexactFloat64()
	weight := pos - float64(lower)
	return lowVal + (upVal-lowVal)*weight
}

// coerceNumeric parses every string/numeric value in values as a decimal,
// dropping nils and values that fail to parse (the profiler's contract:
// non-numeric strings in a numerical column are coerced to nil for stats).
func coerceNumeric(values []any) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		d, ok := toDecimal(v)
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return t, true
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case []byte:
		d, err := decimal.NewFromString(string(t))
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	default:
		d, err := decimal.NewFromString(toString(v))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
}

type decimalSlice []decimal.Decimal

func (s decimalSlice) Len() int           { return len(s) }
func (s decimalSlice) Less(i, j int) bool { return s[i].LessThan(s[j]) }
func (s decimalSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// looksNumericString is used by the quality facet to flag declared-numeric
// columns whose sample contains values that won't parse.
func looksNumericString(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case float64, float32, int, int32, int64, decimal.Decimal:
		return true
	case []byte:
		_, err := strconv.ParseFloat(string(t), 64)
		return err == nil
	case string:
		_, err := strconv.ParseFloat(t, 64)
		return err == nil
	default:
		_, err := strconv.ParseFloat(toString(v), 64)
		return err == nil
	}
}
