package bigquery

import "fmt"

// Config contains BigQuery-specific connection options. BigQuery has no
// host/port: a "connection" is a GCP project plus optional service account
// credentials, matching original_source's db_handler's project_id/
// credentials_path fields.
type Config struct {
	ProjectID       string
	CredentialsJSON string // raw service-account JSON, when not using ambient credentials
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{}

	if projectID, ok := config["project_id"].(string); ok {
		cfg.ProjectID = projectID
	} else {
		return nil, fmt.Errorf("project_id is required")
	}

	if creds, ok := config["credentials_json"].(string); ok {
		cfg.CredentialsJSON = creds
	} else if creds, ok := config["credentials_path"].(string); ok {
		// Legacy field name used by the original handler; here it always
		// holds inline JSON rather than a filesystem path.
		cfg.CredentialsJSON = creds
	}

	return cfg, nil
}
