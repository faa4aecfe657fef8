//go:build mysql || all_adapters

package mysql

import (
	"context"

	_ "github.com/go-sql-driver/mysql"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Connect to MySQL 5.7+, MariaDB, TiDB, Aurora MySQL",
			Icon:        "mysql",
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
