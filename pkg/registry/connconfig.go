package registry

import (
	"strconv"
	"strings"

	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// BuildConnConfig translates a resolved ConnectionSpec and its plaintext
// credential into the map[string]any shape each engine's adapter package
// expects from its own FromMap. The key set is engine-specific: postgres
// and mysql want host/port/user/password/database, oracle wants
// host/port/user/password/service, sqlite and duckdb want a file path,
// bigquery wants a project ID and credentials JSON. Endpoint carries host:port for network engines and the project
// ID for bigquery; Database doubles as the Oracle service name and as
// the file path for sqlite/duckdb when Endpoint is empty.
func BuildConnConfig(spec models.ConnectionSpec, credential string) map[string]any {
	switch spec.Engine {
	case models.EngineBigQuery:
		return map[string]any{
			"project_id":       spec.Endpoint,
			"credentials_json": credential,
		}

	case models.EngineSQLite, models.EngineDuckDB:
		path := spec.Endpoint
		if path == "" {
			path = spec.Database
		}
		return map[string]any{"path": path}

	case models.EngineOracle:
		host, port := splitHostPort(spec.Endpoint)
		cfg := map[string]any{
			"host":     host,
			"user":     spec.Username,
			"password": credential,
			"service":  spec.Database,
		}
		if port > 0 {
			cfg["port"] = port
		}
		return cfg

	default: // postgres, mysql
		host, port := splitHostPort(spec.Endpoint)
		cfg := map[string]any{
			"host":     host,
			"user":     spec.Username,
			"password": credential,
			"database": spec.Database,
		}
		if port > 0 {
			cfg["port"] = port
		}
		return cfg
	}
}

// splitHostPort splits a "host:port" endpoint. If endpoint has no
// numeric port suffix, port is returned 0 so the caller's adapter falls
// back to its own engine default.
func splitHostPort(endpoint string) (host string, port int) {
	idx := strings.LastIndex(endpoint, ":")
	if idx < 0 {
		return endpoint, 0
	}
	p, err := strconv.Atoi(endpoint[idx+1:])
	if err != nil {
		return endpoint, 0
	}
	return endpoint[:idx], p
}
