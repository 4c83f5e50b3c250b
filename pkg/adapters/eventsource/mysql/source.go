// Package mysql is the MySQL/MariaDB event source.
package mysql

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource"
	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource/sqlsource"
	"github.com/codigix/nobal-casting-sub004/pkg/config"
)

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// buildDSN renders the driver DSN. Dates are bound as YYYY-MM-DD strings and
// never selected, so parseTime is left off.
func buildDSN(cfg *eventsource.Config) string {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort()
	}

	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), port)
	mc.DBName = cfg.Database
	if cfg.SSLMode != "" && cfg.SSLMode != "disable" {
		mc.TLSConfig = "preferred"
	}
	return mc.FormatDSN()
}

// NewSource opens a MySQL event source.
func NewSource(ctx context.Context, cfg *eventsource.Config) (*sqlsource.Source, error) {
	return sqlsource.Open(ctx, "mysql", buildDSN(cfg), cfg, eventsource.MySQLDialect)
}

func init() {
	eventsource.Register(eventsource.Registration{
		Info: eventsource.AdapterInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
		},
		Factory: func(ctx context.Context, cfg *eventsource.Config) (eventsource.EventSource, error) {
			return NewSource(ctx, cfg)
		},
	})
}
