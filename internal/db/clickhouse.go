package db

import (
	"fmt"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
)

// NewClickHouseConnection opens the log mirror, e.g.
// clickhouse://default:@localhost:9000/mailgw?dial_timeout=5s&compress=true.
// An empty DSN returns a nil handle: the mirror is optional.
func NewClickHouseConnection(dsn string, opts PoolOpts) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := open("clickhouse", dsn, opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	return db, nil
}
