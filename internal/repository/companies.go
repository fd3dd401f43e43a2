package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/email-gateway/internal/ledger"
	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// CompaniesRepository persists companies together with their embedded metering account.
type CompaniesRepository interface {
	ledger.Store
	Create(ctx context.Context, c *model.Company) error
	GetByID(ctx context.Context, id int64) (*model.Company, error)
}

type CompaniesRepositoryImpl struct {
	db *sqlx.DB
}

func NewCompaniesRepository(db *sqlx.DB) *CompaniesRepositoryImpl {
	return &CompaniesRepositoryImpl{db: db}
}

var _ CompaniesRepository = (*CompaniesRepositoryImpl)(nil)

func (r *CompaniesRepositoryImpl) Create(ctx context.Context, c *model.Company) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO companies
		    (name, default_from_email, pricing_tier, api_credits, credits_reset_at, created_at, updated_at)
		VALUES
		    (?,    ?,                  ?,            ?,           ?,                NOW(),      NOW())
	`, c.Name, c.DefaultFromEmail, c.Tier.String(), c.Balance, c.ResetAt.UTC())
	if err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("company id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *CompaniesRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Company, error) {
	var c model.Company
	err := r.db.GetContext(ctx, &c, `
		SELECT id, name, default_from_email, pricing_tier, api_credits, credits_reset_at, created_at, updated_at
		  FROM companies
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CompaniesRepositoryImpl) GetAccount(ctx context.Context, companyID int64) (model.MeteringAccount, error) {
	var acc model.MeteringAccount
	err := r.db.GetContext(ctx, &acc, `
		SELECT id, pricing_tier, api_credits, credits_reset_at
		  FROM companies
		 WHERE id = ? LIMIT 1
	`, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return acc, fmt.Errorf("company %d: %w", companyID, ErrNotFound)
	}
	return acc, err
}

// ResetCredits is conditional on the reset_at the caller observed, so two concurrent lazy
// resets (or a reset racing the sweep) apply once.
func (r *CompaniesRepositoryImpl) ResetCredits(ctx context.Context, companyID, credits int64, prevResetAt, nextResetAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE companies
		   SET api_credits = ?, credits_reset_at = ?, updated_at = NOW()
		 WHERE id = ? AND credits_reset_at = ? AND pricing_tier <> 'enterprise'
	`, credits, nextResetAt.UTC(), companyID, prevResetAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeductCredit decrements with a floor of zero in one statement; zero rows affected
// means the balance was already exhausted.
func (r *CompaniesRepositoryImpl) DeductCredit(ctx context.Context, companyID int64) (model.MeteringAccount, bool, error) {
	var (
		acc model.MeteringAccount
		ok  bool
	)
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE companies SET api_credits = api_credits - 1, updated_at = NOW()
			 WHERE id = ? AND pricing_tier <> 'enterprise' AND api_credits > 0
		`, companyID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		ok = true
		return tx.GetContext(ctx, &acc, `
			SELECT id, pricing_tier, api_credits, credits_reset_at FROM companies WHERE id = ?
		`, companyID)
	})
	if err != nil {
		return model.MeteringAccount{}, false, err
	}
	return acc, ok, nil
}

// RefundCredit is a no-op once the period the credit was taken from has been reset.
func (r *CompaniesRepositoryImpl) RefundCredit(ctx context.Context, companyID int64, resetAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE companies SET api_credits = api_credits + 1, updated_at = NOW()
		 WHERE id = ? AND pricing_tier <> 'enterprise' AND credits_reset_at = ?
	`, companyID, resetAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CompaniesRepositoryImpl) ListDue(ctx context.Context, now time.Time) ([]model.MeteringAccount, error) {
	var rows []model.MeteringAccount
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, pricing_tier, api_credits, credits_reset_at
		  FROM companies
		 WHERE pricing_tier <> 'enterprise' AND credits_reset_at <= ?
		 ORDER BY id
	`, now.UTC())
	return rows, err
}
