package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmehdipour/email-gateway/internal/config"
	"github.com/jmehdipour/email-gateway/internal/db"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (dev: DROP & CREATE tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.OptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		sqlBytes, err := readMigration("001_init.sql")
		if err != nil {
			return err
		}

		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return fmt.Errorf("disable fk checks: %w", err)
		}
		if _, err := sqlDB.Exec(sqlBytes); err != nil {
			_, _ = sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")
			return fmt.Errorf("exec migration: %w", err)
		}
		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1"); err != nil {
			return fmt.Errorf("enable fk checks: %w", err)
		}
		fmt.Println(">> MySQL migration complete")

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DSN, db.OptsFrom(cfg.ClickHouse))
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		if chDB == nil {
			return nil
		}
		defer chDB.Close()

		if err := migrateClickHouse(chDB); err != nil {
			return err
		}
		fmt.Println(">> ClickHouse migration complete")
		return nil
	},
}

func readMigration(name string) (string, error) {
	path := filepath.Join("migrations", name)
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read migration file %s: %w", path, err)
	}
	return string(b), nil
}

// clickhouse-go runs one statement per Exec.
func migrateClickHouse(chDB *sqlx.DB) error {
	script, err := readMigration("clickhouse_001_init.sql")
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := chDB.Exec(stmt); err != nil {
			return fmt.Errorf("exec clickhouse migration: %w", err)
		}
	}
	return nil
}
