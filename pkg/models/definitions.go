package models

// DefinitionSource records how a ColumnDefinition was produced.
type DefinitionSource string

const (
	SourceEngineSchema DefinitionSource = "engine_schema"
	SourcePatternBased DefinitionSource = "pattern_based"
	SourceLLMEnhanced  DefinitionSource = "llm_enhanced"
	SourceFallback     DefinitionSource = "fallback"
)

// ColumnDefinition is the LLM-refined or rule-derived description of a
// single column. Every schema column has exactly one definition.
type ColumnDefinition struct {
	Definition    string           `json:"definition"`
	BusinessName  string           `json:"business_name"` // <= 3 words
	Purpose       string           `json:"purpose,omitempty"`
	Format        string           `json:"format,omitempty"`
	BusinessRules []string         `json:"business_rules,omitempty"`
	Source        DefinitionSource `json:"source"`
}

// DataLifecycle describes how a table's data moves through its lifetime.
type DataLifecycle struct {
	UpdateFrequency   string `json:"update_frequency,omitempty"`
	RetentionPolicy   string `json:"retention_policy,omitempty"`
	ArchivalStrategy  string `json:"archival_strategy,omitempty"`
}

// TableInsights is the LLM-derived table-level narrative. The core fields
// are always populated (by the LLM or by a deterministic fallback); the
// optional subdocuments are populated only when their flag is enabled.
type TableInsights struct {
	Domain        string        `json:"domain"`
	Category      string        `json:"category"`
	Description   string        `json:"description"` // markdown
	Purpose       string        `json:"purpose"`
	UsagePatterns string        `json:"usage_patterns"`
	DataLifecycle DataLifecycle `json:"data_lifecycle"`

	Relationships           []string       `json:"potential_relationships,omitempty"`
	BusinessRules           []string       `json:"business_rules,omitempty"`
	AggregationRules        []string       `json:"aggregation_rules,omitempty"`
	PerformanceOptimization []string       `json:"performance_optimization,omitempty"`
	QueryExamples           []string       `json:"query_examples,omitempty"`
	AdditionalInsights      map[string]any `json:"additional_insights,omitempty"`
}
