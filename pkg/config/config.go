// Package config loads process configuration for the metadata pipeline from
// config.yaml with environment variable overrides, following the layering
// rule: secrets only ever come from the environment, everything else may
// live in YAML.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// Config holds all configuration for the metadata generation pipeline.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // set at load time, not from config

	// Connections are the file-tier ConnectionSpec entries (§6 "connections
	// map"). User- and system-tier specs are supplied by their own stores,
	// outside this file.
	Connections map[string]ConnectionEntry `yaml:"connections"`

	LLM         LLMConfig   `yaml:"llm"`
	CostCeiling float64     `yaml:"cost_ceiling" env:"LLM_MAX_COST_USD" env-default:"10.0"`
	Retry       RetryConfig `yaml:"retry"`

	MetadataOutputDir string        `yaml:"metadata_output_dir" env:"METADATA_OUTPUT_DIR" env-default:"./metadata_output"`
	JobCleanupHorizon time.Duration `yaml:"job_cleanup_horizon" env:"JOB_CLEANUP_HORIZON" env-default:"24h"`

	// CredentialEncryptionKey encrypts credentials at rest (inline connection
	// secrets and cached session credentials). A base64-encoded 32-byte key
	// (e.g. from: openssl rand -base64 32) is used directly; any other
	// non-empty value is treated as a passphrase and hashed with SHA-256.
	CredentialEncryptionKey string `yaml:"-" env:"CREDENTIAL_ENCRYPTION_KEY"`

	// RedisURL, if set, backs the credential session cache with Redis
	// instead of an in-process map. Empty disables Redis entirely.
	RedisURL string `yaml:"redis_url" env:"REDIS_URL" env-default:""`
}

// ConnectionEntry is one file-tier connection descriptor as read from
// config.yaml's connections map, keyed by connection name.
type ConnectionEntry struct {
	Engine            string                  `yaml:"engine"`
	Host              string                  `yaml:"host"`
	Port              int                     `yaml:"port"`
	Database          string                  `yaml:"database"`
	Username          string                  `yaml:"username"`
	CredentialEnvVar  string                  `yaml:"credential_env_var"`
	AllowedSchemas    []string                `yaml:"allowed_schemas"`
	PredefinedSchemas map[string]SchemaFilter `yaml:"predefined_schemas"`
}

// SchemaFilter mirrors models.SchemaFilter for YAML decoding purposes;
// config.ToModel converts it.
type SchemaFilter struct {
	Enabled         bool     `yaml:"enabled"`
	Tables          []string `yaml:"tables"`
	ExcludedTables  []string `yaml:"excluded_tables"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// LLMConfig configures the LLM gateway's provider client. APIKey is never
// read from YAML: it is a secret and must come from the environment.
type LLMConfig struct {
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"` // openai | anthropic
	BaseURL  string `yaml:"base_url" env:"LLM_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"`
}

// RetryConfig configures the LLM gateway's backoff policy.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env:"LLM_RETRY_MAX_ATTEMPTS" env-default:"3"`
	InitialWait  time.Duration `yaml:"initial_wait" env:"LLM_RETRY_INITIAL_WAIT" env-default:"1s"`
	MaxWait      time.Duration `yaml:"max_wait" env:"LLM_RETRY_MAX_WAIT" env-default:"10s"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. version is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.CostCeiling <= 0 {
		return fmt.Errorf("cost_ceiling must be positive, got %f", c.CostCeiling)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	return nil
}

// ToModel converts one file-tier ConnectionEntry, as loaded from
// config.yaml's connections map, into a models.ConnectionSpec owned by
// "system" (the file tier has no per-user owner; every file-tier spec is
// visible to every owner under the system account).
func (e ConnectionEntry) ToModel(name string) models.ConnectionSpec {
	endpoint := e.Host
	if e.Port != 0 {
		endpoint = e.Host + ":" + strconv.Itoa(e.Port)
	}

	predefined := make(map[string]*models.SchemaFilter, len(e.PredefinedSchemas))
	for schemaName, filter := range e.PredefinedSchemas {
		predefined[schemaName] = &models.SchemaFilter{
			Enabled:         filter.Enabled,
			Tables:          filter.Tables,
			ExcludedTables:  filter.ExcludedTables,
			IncludePatterns: filter.IncludePatterns,
			ExcludePatterns: filter.ExcludePatterns,
		}
	}

	return models.ConnectionSpec{
		Name:              name,
		Owner:             "system",
		Engine:            models.Engine(e.Engine),
		Endpoint:          endpoint,
		Database:          e.Database,
		Username:          e.Username,
		Credential:        models.CredentialRef{Kind: models.CredentialEnvRef, EnvVar: e.CredentialEnvVar},
		AllowedSchemas:    e.AllowedSchemas,
		PredefinedSchemas: predefined,
		Tier:              models.TierFile,
	}
}
