package oracle

import "fmt"

// Config contains Oracle-specific connection options.
type Config struct {
	Host    string
	Port    int
	User    string
	Password string
	Service string // Oracle service name (or SID)
}

// DefaultPort returns the default Oracle listener port.
func DefaultPort() int {
	return 1521
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{Port: DefaultPort()}

	if host, ok := config["host"].(string); ok {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := config["port"].(float64); ok {
		cfg.Port = int(port)
	} else if port, ok := config["port"].(int); ok {
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if service, ok := config["service"].(string); ok {
		cfg.Service = service
	} else {
		return nil, fmt.Errorf("service is required")
	}

	return cfg, nil
}

// dsn builds a go-ora-style connection string. Kept as a plain string
// builder rather than importing the driver so this package compiles without
// a concrete Oracle driver dependency; see handler.go's doc comment.
func (cfg *Config) dsn() string {
	return fmt.Sprintf("oracle://%s:%s@%s:%d/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Service)
}
