//go:build duckdb || all_adapters

package duckdb

import (
	"context"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "duckdb",
			DisplayName: "DuckDB",
			Description: "Connect to an embedded DuckDB database file",
			Icon:        "duckdb",
		},
		HandlerFactory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, owner, name string) (datasource.Handler, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewHandler(ctx, cfg, connMgr, owner, name)
		},
	})
}
