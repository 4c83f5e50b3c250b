package postgres

import (
	"context"

	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource"
)

func init() {
	eventsource.Register(eventsource.Registration{
		Info: eventsource.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
		},
		Factory: func(ctx context.Context, cfg *eventsource.Config) (eventsource.EventSource, error) {
			return NewSource(ctx, cfg)
		},
	})
}
