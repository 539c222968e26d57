package storage

import (
	"context"
	"io"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
)

func newMockDB(t *testing.T, driverName string) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db, err := New(conn, driverName)
	require.NoError(t, err)
	return db, mock
}

func TestRetryRecoversFromOneInterruption(t *testing.T) {
	db, mock := newMockDB(t, DriverSQLite)
	q := regexp.QuoteMeta(`SELECT COUNT(*) FROM "zvt_comp"`)

	mock.ExpectQuery(q).WillReturnError(io.ErrUnexpectedEOF)
	mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := db.CountRows(context.Background(), "zvt_comp")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryEscalatesSecondInterruption(t *testing.T) {
	db, mock := newMockDB(t, DriverSQLite)
	q := regexp.QuoteMeta(`SELECT COUNT(*) FROM "zvt_comp"`)

	mock.ExpectQuery(q).WillReturnError(io.ErrUnexpectedEOF)
	mock.ExpectQuery(q).WillReturnError(io.ErrUnexpectedEOF)

	_, err := db.CountRows(context.Background(), "zvt_comp")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoRetryOnOrdinaryError(t *testing.T) {
	db, mock := newMockDB(t, DriverSQLite)
	q := regexp.QuoteMeta(`SELECT COUNT(*) FROM "zvt_comp"`)

	mock.ExpectQuery(q).WillReturnError(errors.New("no such table: zvt_comp"))

	_, err := db.CountRows(context.Background(), "zvt_comp")
	require.Error(t, err)
	assert.False(t, errors.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRolledBackAndRetried(t *testing.T) {
	db, mock := newMockDB(t, DriverSQLite)
	drop := regexp.QuoteMeta(`DROP TABLE IF EXISTS "zvt_comp"`)

	mock.ExpectBegin()
	mock.ExpectExec(drop).WillReturnError(io.ErrUnexpectedEOF)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(drop).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, db.DropTable(context.Background(), "zvt_comp"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPlaceholders(t *testing.T) {
	db, mock := newMockDB(t, DriverPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "zvt_winprob" WHERE match_id = $1 AND tick = $2 LIMIT 1`)).
		WithArgs(int64(9), 160).
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	ok, err := db.DatasetTickExists(context.Background(), "zvt_winprob", 9, 160)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}
