package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

type TemplatesRepository interface {
	// GetByID is scoped to the company; another company's template reads as absent (nil, nil).
	GetByID(ctx context.Context, companyID, id int64) (*model.Template, error)
}

type TemplatesRepositoryImpl struct {
	db *sqlx.DB
}

func NewTemplatesRepository(db *sqlx.DB) *TemplatesRepositoryImpl {
	return &TemplatesRepositoryImpl{db: db}
}

var _ TemplatesRepository = (*TemplatesRepositoryImpl)(nil)

func (r *TemplatesRepositoryImpl) GetByID(ctx context.Context, companyID, id int64) (*model.Template, error) {
	var t model.Template
	err := r.db.GetContext(ctx, &t, `
		SELECT id, company_id, name, subject, content, created_at, updated_at
		  FROM templates
		 WHERE id = ? AND company_id = ? LIMIT 1
	`, id, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
