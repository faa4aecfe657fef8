package models

// ColumnTypeInfo describes a single column as introspected from the engine.
type ColumnTypeInfo struct {
	DeclaredType    string `json:"declared_type"`
	Nullable        bool   `json:"nullable"`
	NumericPrecision int   `json:"numeric_precision,omitempty"`
	NumericScale    int    `json:"numeric_scale,omitempty"`
	CharLength      int    `json:"char_length,omitempty"`
	EngineComment   string `json:"engine_comment,omitempty"`
}

// IndexInfo describes a single index on a table.
type IndexInfo struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	IsUnique bool     `json:"is_unique"`
	IsPrimary bool    `json:"is_primary"`
}

// ForeignKey describes a single foreign key constraint.
type ForeignKey struct {
	Name               string   `json:"name"`
	LocalColumns       []string `json:"local_columns"`
	ReferencedTable    string   `json:"referenced_table"`
	ReferencedColumns  []string `json:"referenced_columns"`
	OnDelete           string   `json:"on_delete,omitempty"`
}

// Constraints bundles every constraint kind the profiler packages for a table.
type Constraints struct {
	PrimaryKey        []string     `json:"primary_key,omitempty"`
	ForeignKeys       []ForeignKey `json:"foreign_keys,omitempty"`
	UniqueConstraints [][]string   `json:"unique_constraints,omitempty"`
	CheckConstraints  []string     `json:"check_constraints,omitempty"`
}

// PartitionEntry describes a single available partition, newest-first order
// preserved by the handler that produced the list.
type PartitionEntry struct {
	PartitionID string `json:"partition_id"`
	RowCount    int64  `json:"row_count"`
	ByteSize    int64  `json:"byte_size"`
}

// PartitionInfo is present only for engines that partition natively.
type PartitionInfo struct {
	IsPartitioned       bool             `json:"is_partitioned"`
	PartitionType       string           `json:"partition_type,omitempty"`
	PartitionColumn     string           `json:"partition_column,omitempty"`
	ClusteringFields    []string         `json:"clustering_fields,omitempty"`
	AvailablePartitions []PartitionEntry `json:"available_partitions,omitempty"`
}

// SamplingMethod tags how a TableSample was produced.
type SamplingMethod string

const (
	SamplingFull            SamplingMethod = "full"
	SamplingRandomOffset    SamplingMethod = "random-offset"
	SamplingStratified      SamplingMethod = "stratified"
	SamplingPartitionAware  SamplingMethod = "partition-aware"
)

// TableSample is the materialized sample passed to profiling. Row values are
// stored as any to accommodate heterogeneous engine types; column order is
// authoritative for presentation and must equal the introspected schema keys.
type TableSample struct {
	Rows           []map[string]any `json:"rows"`
	ColumnOrder    []string         `json:"column_order"`
	SamplingMethod SamplingMethod   `json:"sampling_method"`
}
