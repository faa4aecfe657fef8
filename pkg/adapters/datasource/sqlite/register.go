//go:build sqlite || all_adapters

package sqlite

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Description: "Connect to a local SQLite database file",
			Icon:        "sqlite",
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
