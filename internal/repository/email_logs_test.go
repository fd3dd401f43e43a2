package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkTerminalOnlyFromQueued(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewEmailLogsRepository(dbx)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND status = 'Queued'")).
		WithArgs("Success", "msg_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND status = 'Queued'")).
		WithArgs("Failed", "msg_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkTerminal(context.Background(), "msg_1", model.StatusSuccess)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkTerminal(context.Background(), "msg_1", model.StatusFailed)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchMarkTerminalExpandsIDs(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewEmailLogsRepository(dbx)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id IN (?, ?, ?) AND status = 'Queued'")).
		WithArgs("Failed", "msg_a", "msg_b", "msg_c").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.BatchMarkTerminal(context.Background(), nil, []string{"msg_a", "msg_b", "msg_c"}, model.StatusFailed)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewEmailLogsRepository(dbx)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY status")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).
			AddRow("Queued", int64(2)).
			AddRow("Success", int64(5)))

	counts, err := repo.CountByStatus(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.StatusQueued])
	assert.Equal(t, int64(5), counts[model.StatusSuccess])
	assert.Zero(t, counts[model.StatusFailed])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByCompanyFilters(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewEmailLogsRepository(dbx)

	mock.ExpectQuery(regexp.QuoteMeta("AND status = ? AND to_email = ? ORDER BY created_at DESC LIMIT ? OFFSET ?")).
		WithArgs(int64(3), "Failed", "x@example.com", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "status"}).AddRow("msg_1", int64(3), "Failed"))

	rows, err := repo.ListByCompany(context.Background(), 3, LogFilter{Status: model.StatusFailed, To: "x@example.com"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "msg_1", rows[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedAPIKeysWithoutRedisIsPassthrough(t *testing.T) {
	dbx, _ := newMockDB(t)
	next := NewAPIKeysRepository(dbx)
	assert.Same(t, next, NewCachedAPIKeysRepository(next, nil, 0).(*APIKeysRepositoryImpl))
}
