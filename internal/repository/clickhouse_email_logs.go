package repository

import (
	"context"

	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHEmailLogsRepository lists email logs from ClickHouse (final view).
type CHEmailLogsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHEmailLogsRepository(ch *sqlx.DB) *CHEmailLogsRepository {
	return &CHEmailLogsRepository{ch: ch}
}

var _ EmailLogLister = (*CHEmailLogsRepository)(nil)

func (r *CHEmailLogsRepository) ListByCompany(ctx context.Context, companyID int64, f LogFilter) ([]model.EmailLog, error) {
	f.normalize()

	q := `
		SELECT id, company_id, from_email, to_email, subject, body, is_html, status, created_at, updated_at
		FROM mailgw.email_logs_latest
		WHERE company_id = ?
	`
	args := []any{companyID}

	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status.String())
	}
	if f.To != "" {
		q += " AND to_email = ?"
		args = append(args, f.To)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var rows []model.EmailLog
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
