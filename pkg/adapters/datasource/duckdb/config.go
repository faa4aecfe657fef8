package duckdb

import "fmt"

// Config contains DuckDB-specific connection options. Like SQLite, DuckDB
// is an embedded engine: a "connection" is a file path (or ":memory:"),
// not a host/port/user.
type Config struct {
	Path     string
	ReadOnly bool
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{}

	if path, ok := config["path"].(string); ok {
		cfg.Path = path
	} else if database, ok := config["database"].(string); ok {
		cfg.Path = database
	} else {
		return nil, fmt.Errorf("path is required")
	}

	if readOnly, ok := config["read_only"].(bool); ok {
		cfg.ReadOnly = readOnly
	}

	return cfg, nil
}

// dsn builds the marcboeker/go-duckdb connection string for cfg.
func (cfg *Config) dsn() string {
	if cfg.ReadOnly {
		return cfg.Path + "?access_mode=read_only"
	}
	return cfg.Path
}
