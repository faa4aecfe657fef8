package sqlite

import "fmt"

// Config contains SQLite-specific connection options. SQLite has no
// host/port/user: a "connection" is just a file path (or ":memory:").
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

// dsn builds the mattn/go-sqlite3 connection string for cfg.
func (cfg *Config) dsn() string {
	dsn := cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000"
	if cfg.ReadOnly {
		dsn += "&mode=ro"
	}
	return dsn
}
