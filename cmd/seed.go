package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmehdipour/email-gateway/internal/config"
	"github.com/jmehdipour/email-gateway/internal/db"
	"github.com/jmehdipour/email-gateway/internal/ledger"
	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo companies, keys, SMTP profiles and templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.OptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		pricing := ledger.Pricing{Free: cfg.Pricing.Free, Developer: cfg.Pricing.Developer}

		log.Println(">> Seeding demo companies...")
		if err := seedCompanies(cmd.Context(), sqlDB, pricing, time.Now()); err != nil {
			return err
		}
		log.Println(">> Seed completed")
		return nil
	},
}

type demoCompany struct {
	name    string
	tier    model.Tier
	apiKey  string
	active  bool
	profile bool // has a default SMTP profile
}

// seedCompanies inserts deterministic demo tenants (idempotent on company name and api key).
func seedCompanies(ctx context.Context, dbx *sqlx.DB, pricing ledger.Pricing, now time.Time) error {
	demos := []demoCompany{
		{name: "Acme Corp", tier: model.TierFree, apiKey: "11111111111111111111111111111111", active: true, profile: true},
		{name: "Foobar LLC", tier: model.TierDeveloper, apiKey: "22222222222222222222222222222222", active: true, profile: true},
		{name: "Globex Enterprise", tier: model.TierEnterprise, apiKey: "33333333333333333333333333333333", active: true, profile: true},
		{name: "Revoked Inc", tier: model.TierFree, apiKey: "44444444444444444444444444444444", active: false, profile: true},
		{name: "No Relay Ltd", tier: model.TierFree, apiKey: "55555555555555555555555555555555", active: true, profile: false},
	}

	companies := repository.NewCompaniesRepository(dbx)
	for _, d := range demos {
		id, err := ensureCompany(ctx, dbx, companies, pricing, d, now)
		if err != nil {
			return err
		}
		if err := seedTenantRows(ctx, dbx, id, d); err != nil {
			return err
		}
	}
	return nil
}

func ensureCompany(ctx context.Context, dbx *sqlx.DB, companies repository.CompaniesRepository, pricing ledger.Pricing, d demoCompany, now time.Time) (int64, error) {
	var id int64
	err := dbx.GetContext(ctx, &id, `SELECT id FROM companies WHERE name = ?`, d.name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup company %q: %w", d.name, err)
	}

	acc := pricing.NewAccount(d.tier, now)
	from := "noreply@" + slug(d.name) + ".example"
	c := model.Company{Name: d.name, DefaultFromEmail: &from, Tier: acc.Tier, Balance: acc.Balance, ResetAt: acc.ResetAt}
	if err := companies.Create(ctx, &c); err != nil {
		return 0, fmt.Errorf("create company %q: %w", d.name, err)
	}
	return c.ID, nil
}

func seedTenantRows(ctx context.Context, dbx *sqlx.DB, companyID int64, d demoCompany) error {
	tx, err := dbx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO api_keys (name, api_key, company_id, is_active, created_at)
VALUES (?, ?, ?, ?, NOW())
ON DUPLICATE KEY UPDATE is_active = VALUES(is_active)
`, "default", d.apiKey, companyID, d.active); err != nil {
		return fmt.Errorf("insert api key for %q: %w", d.name, err)
	}

	if d.profile {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO smtp_profiles
    (company_id, name, smtp_server, smtp_port, smtp_username, smtp_password, is_default, created_at, updated_at)
VALUES
    (?, 'primary', 'smtp.example.com', 587, ?, 'change-me', TRUE, NOW(), NOW())
ON DUPLICATE KEY UPDATE updated_at = NOW()
`, companyID, "noreply@"+slug(d.name)+".example"); err != nil {
			return fmt.Errorf("insert smtp profile for %q: %w", d.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO templates (company_id, name, subject, content, created_at, updated_at)
VALUES (?, 'welcome', 'Welcome aboard', '<h1>Welcome!</h1><p>Thanks for signing up.</p>', NOW(), NOW())
ON DUPLICATE KEY UPDATE updated_at = NOW()
`, companyID); err != nil {
		return fmt.Errorf("insert template for %q: %w", d.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tenant %q: %w", d.name, err)
	}
	return nil
}

func slug(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+'a'-'A')
		}
	}
	return string(out)
}
