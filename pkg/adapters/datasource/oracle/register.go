//go:build oracle || all_adapters

package oracle

import (
	"context"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "oracle",
			DisplayName: "Oracle",
			Description: "Connect to Oracle Database 12c+",
			Icon:        "oracle",
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
