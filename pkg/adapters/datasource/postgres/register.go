//go:build postgres || all_adapters

package postgres

import (
	"context"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
			Icon:        "postgres",
		},
		Factory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, owner, name string) (datasource.ConnectionTester, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, connMgr, owner, name)
		},
		SchemaDiscovererFactory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, owner, name string) (datasource.SchemaDiscoverer, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewSchemaDiscoverer(ctx, cfg, connMgr, owner, name, nil)
		},
		QueryExecutorFactory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, owner, name string) (datasource.QueryExecutor, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewQueryExecutor(ctx, cfg, connMgr, owner, name)
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
