package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupConfigTest creates config.yaml in a temp directory and changes to it.
// If dir is empty, creates a new temp directory. Returns the directory path.
// Cleanup is registered automatically.
func setupConfigTest(t *testing.T, yamlContent string, dir ...string) string {
	t.Helper()
	var tmpDir string
	if len(dir) > 0 && dir[0] != "" {
		tmpDir = dir[0]
	} else {
		tmpDir = t.TempDir()
	}
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	return tmpDir
}

func TestLoad_Defaults(t *testing.T) {
	setupConfigTest(t, `env: local`)

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CostCeiling != 10.0 {
		t.Errorf("expected default cost ceiling 10.0, got %f", cfg.CostCeiling)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected default provider openai, got %q", cfg.LLM.Provider)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected default retry max attempts 3, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialWait != time.Second {
		t.Errorf("expected default initial wait 1s, got %v", cfg.Retry.InitialWait)
	}
	if cfg.JobCleanupHorizon != 24*time.Hour {
		t.Errorf("expected default cleanup horizon 24h, got %v", cfg.JobCleanupHorizon)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected version to be set from Load argument, got %q", cfg.Version)
	}
}

func TestLoad_ConnectionsFromYAML(t *testing.T) {
	setupConfigTest(t, `
connections:
  warehouse:
    engine: postgres
    host: db.example.com
    port: 5432
    database: analytics
    credential_env_var: WAREHOUSE_DB_PASSWORD
    allowed_schemas: [public, reporting]
    predefined_schemas:
      reporting:
        enabled: true
        include_patterns: ["^fact_", "^dim_"]
`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, ok := cfg.Connections["warehouse"]
	if !ok {
		t.Fatal("expected a 'warehouse' connection entry")
	}
	if entry.Engine != "postgres" {
		t.Errorf("expected engine postgres, got %q", entry.Engine)
	}
	if entry.CredentialEnvVar != "WAREHOUSE_DB_PASSWORD" {
		t.Errorf("expected credential env var name, got %q", entry.CredentialEnvVar)
	}
	filter, ok := entry.PredefinedSchemas["reporting"]
	if !ok || !filter.Enabled || len(filter.IncludePatterns) != 2 {
		t.Errorf("expected reporting schema filter with 2 include patterns, got %+v", filter)
	}
}

func TestLoad_RejectsNonPositiveCostCeiling(t *testing.T) {
	setupConfigTest(t, `cost_ceiling: 0`)

	if _, err := Load(""); err == nil {
		t.Error("expected error for non-positive cost ceiling")
	}
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	setupConfigTest(t, `
llm:
  provider: cohere
`)

	if _, err := Load(""); err == nil {
		t.Error("expected error for unknown LLM provider")
	}
}

func TestLoad_APIKeyNotReadFromYAML(t *testing.T) {
	setupConfigTest(t, `
llm:
  api_key: should-be-ignored
`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "" {
		t.Error("expected api_key to be ignored when set via YAML; it must come from the environment")
	}
}

func TestConnectionEntry_ToModel(t *testing.T) {
	entry := ConnectionEntry{
		Engine:           "postgres",
		Host:             "db.example.com",
		Port:             5432,
		Database:         "analytics",
		Username:         "svc_metadata",
		CredentialEnvVar: "WAREHOUSE_DB_PASSWORD",
		AllowedSchemas:   []string{"public"},
		PredefinedSchemas: map[string]SchemaFilter{
			"reporting": {Enabled: true, IncludePatterns: []string{"^fact_"}},
		},
	}

	spec := entry.ToModel("warehouse")

	if spec.Name != "warehouse" || spec.Endpoint != "db.example.com:5432" || spec.Username != "svc_metadata" {
		t.Errorf("unexpected spec: %+v", spec)
	}
	if spec.Credential.Kind != "env_ref" || spec.Credential.EnvVar != "WAREHOUSE_DB_PASSWORD" {
		t.Errorf("expected env_ref credential, got %+v", spec.Credential)
	}
	filter, ok := spec.PredefinedSchemas["reporting"]
	if !ok || !filter.Enabled || len(filter.IncludePatterns) != 1 {
		t.Errorf("expected converted reporting filter, got %+v", filter)
	}
}

func TestLoad_EnvOverridesCostCeiling(t *testing.T) {
	setupConfigTest(t, `cost_ceiling: 5.0`)
	t.Setenv("LLM_MAX_COST_USD", "2.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CostCeiling != 2.5 {
		t.Errorf("expected env override to win, got %f", cfg.CostCeiling)
	}
}
