package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

type SMTPProfilesRepository interface {
	// GetDefault returns (nil, nil) when the company has no default profile.
	GetDefault(ctx context.Context, companyID int64) (*model.SMTPProfile, error)
	GetByID(ctx context.Context, companyID, id int64) (*model.SMTPProfile, error)
}

type SMTPProfilesRepositoryImpl struct {
	db *sqlx.DB
}

func NewSMTPProfilesRepository(db *sqlx.DB) *SMTPProfilesRepositoryImpl {
	return &SMTPProfilesRepositoryImpl{db: db}
}

var _ SMTPProfilesRepository = (*SMTPProfilesRepositoryImpl)(nil)

const smtpProfileColumns = `id, company_id, name, smtp_server, smtp_port, smtp_username, smtp_password, is_default, created_at, updated_at`

func (r *SMTPProfilesRepositoryImpl) GetDefault(ctx context.Context, companyID int64) (*model.SMTPProfile, error) {
	return r.getOne(ctx, `SELECT `+smtpProfileColumns+`
		  FROM smtp_profiles
		 WHERE company_id = ? AND is_default = TRUE
		 ORDER BY updated_at DESC LIMIT 1`, companyID)
}

func (r *SMTPProfilesRepositoryImpl) GetByID(ctx context.Context, companyID, id int64) (*model.SMTPProfile, error) {
	return r.getOne(ctx, `SELECT `+smtpProfileColumns+`
		  FROM smtp_profiles
		 WHERE id = ? AND company_id = ? LIMIT 1`, id, companyID)
}

func (r *SMTPProfilesRepositoryImpl) getOne(ctx context.Context, q string, args ...any) (*model.SMTPProfile, error) {
	var p model.SMTPProfile
	err := r.db.GetContext(ctx, &p, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
