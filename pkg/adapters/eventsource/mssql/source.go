// Package mssql is the SQL Server event source.
package mssql

import (
	"context"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource"
	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource/sqlsource"
	"github.com/codigix/nobal-casting-sub004/pkg/config"
)

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// buildConnectionString builds a sqlserver:// URL for SQL authentication.
// SSLMode "disable" turns encryption off; anything else keeps it on.
func buildConnectionString(cfg *eventsource.Config) string {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort()
	}

	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.SSLMode == "disable" {
		query.Add("encrypt", "disable")
	} else {
		query.Add("encrypt", "true")
		query.Add("TrustServerCertificate", "true")
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// NewSource opens a SQL Server event source.
func NewSource(ctx context.Context, cfg *eventsource.Config) (*sqlsource.Source, error) {
	return sqlsource.Open(ctx, "sqlserver", buildConnectionString(cfg), cfg, eventsource.SQLServerDialect)
}

func init() {
	eventsource.Register(eventsource.Registration{
		Info: eventsource.AdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
		},
		Factory: func(ctx context.Context, cfg *eventsource.Config) (eventsource.EventSource, error) {
			return NewSource(ctx, cfg)
		},
	})
}
