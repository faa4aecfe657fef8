package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/metadata-pipeline/metadatapipeline/pkg/jsonutil"
)

// stringField reads a string value from a CallJSON result, tolerating a
// missing key and coercing a wrongly-typed one (LLMs routinely return a
// number or boolean where a string was asked for) rather than silently
// discarding it.
func stringField(obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return jsonutil.FlexibleStringValue(raw)
}

// stringSliceField reads a []string from a CallJSON result's []any
// representation, tolerating a missing key or non-string elements.
func stringSliceField(obj map[string]any, key string) []string {
	v, ok := obj[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// mapField reads a map[string]any from a CallJSON result, tolerating a
// missing or wrongly-typed key.
func mapField(obj map[string]any, key string) map[string]any {
	v, ok := obj[key]
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// estimateResponseTokens approximates a parsed JSON response's token cost
// for StageTiming bookkeeping, consistent with the gateway's own
// length-based pre-flight estimate.
func estimateResponseTokens(obj map[string]any) int {
	total := 0
	for k, v := range obj {
		total += len(k)
		total += len(fmt.Sprint(v))
	}
	if total == 0 {
		return 0
	}
	return total/4 + 1
}
