package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockConversationRepo(t *testing.T) (*ConversationRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewConversationRepo(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestResolveCreatesUnderPairLock(t *testing.T) {
	repo, mock := newMockConversationRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(findByPairQuery)).
		WithArgs(1, 2).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
		WithArgs(1, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(findByPairQuery)).
		WithArgs(1, 2).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO conversations (kind) VALUES ('private') RETURNING id, kind, created_at`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "created_at"}).AddRow(3, "private", now))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2), ($1, $3)`)).
		WithArgs(3, 1, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	conv, created, err := repo.Resolve(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 3, conv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveAdoptsConcurrentlyCreatedConversation(t *testing.T) {
	repo, mock := newMockConversationRepo(t)
	now := time.Now()

	// Called as (2, 1): the advisory lock key must still be the
	// normalized (1, 2) so both directions contend on one lock.
	mock.ExpectQuery(regexp.QuoteMeta(findByPairQuery)).
		WithArgs(2, 1).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
		WithArgs(1, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// The re-check under the lock finds the row the other side just
	// committed; no insert may follow.
	mock.ExpectQuery(regexp.QuoteMeta(findByPairQuery)).
		WithArgs(2, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "created_at"}).AddRow(7, "private", now))
	mock.ExpectCommit()

	conv, created, err := repo.Resolve(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 7, conv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveRejectsSelfConversation(t *testing.T) {
	repo, mock := newMockConversationRepo(t)

	_, _, err := repo.Resolve(context.Background(), 5, 5)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
