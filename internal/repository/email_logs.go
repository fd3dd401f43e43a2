package repository

import (
	"context"

	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// LogFilter narrows a company-scoped log listing.
type LogFilter struct {
	To     string
	Status model.EmailStatus
	Limit  int
	Offset int
}

func (f *LogFilter) normalize() {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// EmailLogLister is served by MySQL or, when configured, by the ClickHouse mirror.
type EmailLogLister interface {
	ListByCompany(ctx context.Context, companyID int64, f LogFilter) ([]model.EmailLog, error)
}

// EmailLogsRepository defines persistence for the email_logs table.
type EmailLogsRepository interface {
	EmailLogLister
	InsertQueued(ctx context.Context, tx *sqlx.Tx, l model.EmailLog) error
	// MarkTerminal moves a Queued row to status; it reports false if the row already left Queued.
	MarkTerminal(ctx context.Context, id string, status model.EmailStatus) (bool, error)
	BatchMarkTerminal(ctx context.Context, tx *sqlx.Tx, ids []string, status model.EmailStatus) error
	CountByStatus(ctx context.Context, companyID int64) (map[model.EmailStatus]int64, error)
}

type EmailLogsRepositoryImpl struct {
	db *sqlx.DB
}

func NewEmailLogsRepository(db *sqlx.DB) *EmailLogsRepositoryImpl {
	return &EmailLogsRepositoryImpl{db: db}
}

var _ EmailLogsRepository = (*EmailLogsRepositoryImpl)(nil)

// InsertQueued inserts a new log row with status=Queued.
func (r *EmailLogsRepositoryImpl) InsertQueued(ctx context.Context, tx *sqlx.Tx, l model.EmailLog) error {
	const q = `
		INSERT INTO email_logs
		    (id, company_id, from_email, to_email, subject, body, is_html, status, created_at, updated_at)
		VALUES
		    (?,  ?,          ?,          ?,        ?,       ?,    ?,       'Queued', NOW(),   NOW())
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			l.ID, l.CompanyID, l.From, l.To, l.Subject, l.Body, l.IsHTML,
		)
		return err
	})
}

func (r *EmailLogsRepositoryImpl) MarkTerminal(ctx context.Context, id string, status model.EmailStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_logs SET status = ?, updated_at = NOW()
		 WHERE id = ? AND status = 'Queued'
	`, status.String(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// BatchMarkTerminal updates many rows with a single statement; rows already terminal are skipped.
func (r *EmailLogsRepositoryImpl) BatchMarkTerminal(ctx context.Context, tx *sqlx.Tx, ids []string, status model.EmailStatus) error {
	if len(ids) == 0 {
		return nil
	}
	const base = `UPDATE email_logs SET status = ?, updated_at = NOW() WHERE id IN (?) AND status = 'Queued'`
	query, args, err := sqlx.In(base, status.String(), ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)

	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}

func (r *EmailLogsRepositoryImpl) CountByStatus(ctx context.Context, companyID int64) (map[model.EmailStatus]int64, error) {
	var rows []struct {
		Status model.EmailStatus `db:"status"`
		N      int64             `db:"n"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS n
		  FROM email_logs
		 WHERE company_id = ?
		 GROUP BY status
	`, companyID)
	if err != nil {
		return nil, err
	}

	out := make(map[model.EmailStatus]int64, len(rows))
	for _, rw := range rows {
		out[rw.Status] = rw.N
	}
	return out, nil
}

func (r *EmailLogsRepositoryImpl) ListByCompany(ctx context.Context, companyID int64, f LogFilter) ([]model.EmailLog, error) {
	f.normalize()

	q := `
		SELECT id, company_id, from_email, to_email, subject, body, is_html, status, created_at, updated_at
		FROM email_logs
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
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
