package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

func TestDeductCreditDecrementsWithFloor(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewCompaniesRepository(dbx)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE companies SET api_credits = api_credits - 1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	resetAt := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, pricing_tier, api_credits, credits_reset_at FROM companies WHERE id = ?")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "pricing_tier", "api_credits", "credits_reset_at"}).
			AddRow(int64(7), "free", int64(41), resetAt))
	mock.ExpectCommit()

	acc, ok, err := repo.DeductCredit(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(41), acc.Balance)
	assert.True(t, acc.ResetAt.Equal(resetAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundCreditIsBoundToPeriod(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewCompaniesRepository(dbx)

	period := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("api_credits = api_credits + 1")).
		WithArgs(int64(7), period).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.RefundCredit(context.Background(), 7, period)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeductCreditExhausted(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewCompaniesRepository(dbx)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("api_credits > 0")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	_, ok, err := repo.DeductCredit(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetCreditsIsConditionalOnObservedBoundary(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewCompaniesRepository(dbx)

	prev := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND credits_reset_at = ?")).
		WithArgs(int64(1000), next, int64(3), prev).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.ResetCredits(context.Background(), 3, 1000, prev, next)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountNotFound(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewCompaniesRepository(dbx)

	mock.ExpectQuery(regexp.QuoteMeta("FROM companies")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "pricing_tier", "api_credits", "credits_reset_at"}))

	_, err := repo.GetAccount(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}
