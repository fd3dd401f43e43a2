package db

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// NewMySQLConnection opens the primary store. The DSN needs parseTime=true for DATETIME scans.
func NewMySQLConnection(dsn string, opts PoolOpts) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty MySQL DSN")
	}
	db, err := open("mysql", dsn, opts)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	return db, nil
}
