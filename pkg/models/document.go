package models

import "time"

// GenerationOptions is the eight-flag set that gates optional sections of
// the pipeline. Unspecified flags default to true at the API boundary.
type GenerationOptions struct {
	Relationships          bool `json:"relationships"`
	AggregationRules        bool `json:"aggregation_rules"`
	QueryRules              bool `json:"query_rules"`
	DataQuality             bool `json:"data_quality"`
	QueryExamples           bool `json:"query_examples"`
	AdditionalInsights      bool `json:"additional_insights"`
	BusinessRules           bool `json:"business_rules"`
	CategoricalDefinitions  bool `json:"categorical_definitions"`
}

// DefaultGenerationOptions returns every section enabled, the default an
// unspecified request is expanded to at the boundary.
func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{
		Relationships:          true,
		AggregationRules:       true,
		QueryRules:             true,
		DataQuality:            true,
		QueryExamples:          true,
		AdditionalInsights:     true,
		BusinessRules:          true,
		CategoricalDefinitions: true,
	}
}

// StageTiming records wall-clock start/end and token usage for one pipeline stage.
type StageTiming struct {
	Name         string    `json:"name"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	PromptTokens int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int   `json:"completion_tokens,omitempty"`
}

// ProcessingStats records how a MetadataDocument was produced.
type ProcessingStats struct {
	StartedAt        time.Time         `json:"started_at"`
	EndedAt          time.Time         `json:"ended_at"`
	Steps            []StageTiming     `json:"steps"`
	TotalTokens      int               `json:"total_tokens"`
	CostEstimateUSD  float64           `json:"cost_estimate_usd"`
	OptionalSections GenerationOptions `json:"optional_sections"`
}

// GenerationRequest is the validated input to a synchronous or asynchronous
// generate call.
type GenerationRequest struct {
	Database      string            `json:"db"`
	Schema        string            `json:"schema"`
	Table         string            `json:"table"`
	SampleSize    int               `json:"sample_size"`   // 1..10000, default 20
	NumSamples    int               `json:"num_samples"`    // 1..20, default 5
	MaxPartitions int               `json:"max_partitions"` // 1..100, default 10
	Options       GenerationOptions `json:"options"`
}

// DefaultGenerationRequest fills in the request defaults named in the
// external interface contract.
func DefaultGenerationRequest(db, schema, table string) GenerationRequest {
	return GenerationRequest{
		Database:      db,
		Schema:        schema,
		Table:         table,
		SampleSize:    20,
		NumSamples:    5,
		MaxPartitions: 10,
		Options:       DefaultGenerationOptions(),
	}
}

// MetadataDocument is the final pipeline output, keyed by (database, schema, table).
// It is stored atomically and never mutated in place after write; subsequent
// generations create a new document.
type MetadataDocument struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`

	Columns       map[string]ColumnProfile    `json:"columns"`
	Definitions   map[string]ColumnDefinition `json:"definitions"`
	Constraints   Constraints                 `json:"constraints"`
	PartitionInfo *PartitionInfo              `json:"partition_info,omitempty"`

	CategoricalGlossary map[string]map[string]string `json:"categorical_glossary,omitempty"` // column -> value -> definition

	TableInsights TableInsights `json:"table_insights"`

	ProcessingStats ProcessingStats `json:"processing_stats"`
}
