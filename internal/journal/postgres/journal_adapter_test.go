package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/chronicle-lab/chronicle/internal/journal"
)

func TestAdapter_WriteBatch(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	entries := []journal.Entry{
		{PersistenceID: "p1", SequenceNr: 1, Payload: []byte("ev-1"), TagIDs: []int32{1}, Metadata: json.RawMessage(`{"src":"a"}`)},
		{PersistenceID: "p1", SequenceNr: 2, Payload: []byte("ev-2"), Metadata: json.RawMessage(`{"src":"b"}`)},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(queryInsertEntry))
	prep.ExpectQuery().
		WithArgs("p1", int64(1), []byte("ev-1"), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"ordering"}).AddRow(int64(41)))
	prep.ExpectQuery().
		WithArgs("p1", int64(2), []byte("ev-2"), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"ordering"}).AddRow(int64(42)))
	mock.ExpectExec(regexp.QuoteMeta(queryUpsertMetadata)).
		WithArgs("p1", sqlmock.AnyArg(), int64(2), int64(41), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.WriteBatch(context.Background(), entries)
	require.NoError(t, err)
	require.Equal(t, int64(41), entries[0].Ordering, "ordering tokens are written back into the batch")
	require.Equal(t, int64(42), entries[1].Ordering)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_WriteBatchDuplicateRollsBack(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(queryInsertEntry))
	prep.ExpectQuery().
		WithArgs("p1", int64(1), []byte("ev-1"), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: pgUniqueViolation})
	mock.ExpectRollback()

	err := adapter.WriteBatch(context.Background(), []journal.Entry{
		{PersistenceID: "p1", SequenceNr: 1, Payload: []byte("ev-1")},
	})
	require.ErrorIs(t, err, journal.ErrDuplicateSequence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_WriteBatchMetadataRegressionRollsBack(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(queryInsertEntry))
	prep.ExpectQuery().
		WithArgs("p1", int64(5), []byte("ev-5"), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"ordering"}).AddRow(int64(99)))
	// Zero rows affected: the stored max sequence number was not exceeded.
	mock.ExpectExec(regexp.QuoteMeta(queryUpsertMetadata)).
		WithArgs("p1", sqlmock.AnyArg(), int64(5), int64(99), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := adapter.WriteBatch(context.Background(), []journal.Entry{
		{PersistenceID: "p1", SequenceNr: 5, Payload: []byte("ev-5")},
	})
	require.ErrorIs(t, err, journal.ErrMetadataRegression)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_WriteBatchRejectsUnsortedInput(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	err := adapter.WriteBatch(context.Background(), []journal.Entry{
		{PersistenceID: "p1", SequenceNr: 2, Payload: []byte("ev-2")},
		{PersistenceID: "p1", SequenceNr: 1, Payload: []byte("ev-1")},
	})
	require.ErrorIs(t, err, journal.ErrUnsortedBatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_SoftDeleteIsIdempotent(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(querySoftDelete)).
		WithArgs("p1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(querySoftDelete)).
		WithArgs("p1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := adapter.SoftDelete(context.Background(), "p1", 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), affected)

	affected, err = adapter.SoftDelete(context.Background(), "p1", 2)
	require.NoError(t, err)
	require.Zero(t, affected, "repeat delete affects no rows and is not an error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_HardDeleteWritesMarkerInSameTx(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryHighestCovered)).
		WithArgs("p1", int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(7)))
	mock.ExpectExec(regexp.QuoteMeta(queryUpsertDeletedTo)).
		WithArgs("p1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryHardDelete)).
		WithArgs("p1", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	affected, err := adapter.HardDelete(context.Background(), "p1", 10)
	require.NoError(t, err)
	require.Equal(t, int64(7), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_HardDeleteNothingCoveredSkipsMarker(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryHighestCovered)).
		WithArgs("p1", int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))
	mock.ExpectExec(regexp.QuoteMeta(queryHardDelete)).
		WithArgs("p1", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	affected, err := adapter.HardDelete(context.Background(), "p1", 10)
	require.NoError(t, err)
	require.Zero(t, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_HighestSequenceNr(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryHighestSequenceNr)).
		WithArgs("p1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"greatest"}).AddRow(int64(3)))

	highest, err := adapter.HighestSequenceNr(context.Background(), "p1", 1)
	require.NoError(t, err)
	require.Equal(t, int64(3), highest)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_RangeCursor(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryRangeEntries)).
		WithArgs("p1", int64(1), int64(3), int64(10)).
		WillReturnRows(sqlmock.NewRows(entryRowColumns()).
			AddRow("p1", int64(1), int64(41), false, []byte("ev-1"), []byte(`{1,2}`), []byte(`{"src":"a"}`)).
			AddRow("p1", int64(2), int64(42), false, []byte("ev-2"), nil, []byte(`{}`)),
		).RowsWillBeClosed()

	cursor, err := adapter.Range(context.Background(), "p1", 1, 3, 0, 10)
	require.NoError(t, err)
	defer cursor.Close()

	require.True(t, cursor.Next())
	first := cursor.Entry()
	require.Equal(t, int64(1), first.SequenceNr)
	require.Equal(t, int64(41), first.Ordering)
	require.Equal(t, []int32{1, 2}, first.TagIDs)
	require.Equal(t, "ev-1", string(first.Payload))

	require.True(t, cursor.Next())
	second := cursor.Entry()
	require.Equal(t, int64(2), second.SequenceNr)
	require.Empty(t, second.TagIDs)

	require.False(t, cursor.Next())
	require.NoError(t, cursor.Err())
	require.NoError(t, cursor.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_RangeUsesPrunedQueryWithHint(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryRangeEntriesPruned)).
		WithArgs("p1", int64(1), int64(3), int64(40), int64(10)).
		WillReturnRows(sqlmock.NewRows(entryRowColumns())).
		RowsWillBeClosed()

	cursor, err := adapter.Range(context.Background(), "p1", 1, 3, 40, 10)
	require.NoError(t, err)
	defer cursor.Close()

	require.False(t, cursor.Next())
	require.NoError(t, cursor.Err())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_PersistenceIDs(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryPersistenceIDs)).
		WillReturnRows(sqlmock.NewRows([]string{"persistence_id"}).
			AddRow("p1").
			AddRow("p2"),
		).RowsWillBeClosed()

	cursor, err := adapter.PersistenceIDs(context.Background())
	require.NoError(t, err)
	defer cursor.Close()

	var ids []string
	for cursor.Next() {
		ids = append(ids, cursor.ID())
	}
	require.NoError(t, cursor.Err())
	require.Equal(t, []string{"p1", "p2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_MinMaxOrdering(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryMinMaxOrdering)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"max_sequence_number", "min_ordering", "max_ordering"}).
			AddRow(int64(3), int64(41), int64(43)))
	mock.ExpectQuery(regexp.QuoteMeta(queryMinMaxOrdering)).
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows([]string{"max_sequence_number", "min_ordering", "max_ordering"}))

	md, ok, err := adapter.MinMaxOrdering(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, journal.Metadata{MaxSequenceNr: 3, MinOrdering: 41, MaxOrdering: 43}, md)

	_, ok, err = adapter.MinMaxOrdering(context.Background(), "unknown")
	require.NoError(t, err)
	require.False(t, ok, "absence means the id was never written")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_RewritePayload(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(queryRewritePayload)).
		WithArgs("p1", int64(2), []byte("ciphertext"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryRewritePayload)).
		WithArgs("p1", int64(99), []byte("x"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := adapter.RewritePayload(context.Background(), "p1", 2, []byte("ciphertext"), json.RawMessage(`{"enc":"v2"}`))
	require.NoError(t, err)

	err = adapter.RewritePayload(context.Background(), "p1", 99, []byte("x"), nil)
	require.Error(t, err)
	require.ErrorContains(t, err, "no such row")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_CloseReturnsDBCloseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	dbCloseErr := errors.New("db close failed")

	mock.ExpectPrepare(regexp.QuoteMeta(queryRangeEntries)).WillBeClosed()
	stmtRange, err := db.Prepare(queryRangeEntries)
	require.NoError(t, err)

	mock.ExpectPrepare(regexp.QuoteMeta(queryRangeEntriesPruned)).WillBeClosed()
	stmtRangePruned, err := db.Prepare(queryRangeEntriesPruned)
	require.NoError(t, err)

	mock.ExpectPrepare(regexp.QuoteMeta(queryHighestSequenceNr)).WillBeClosed()
	stmtHighest, err := db.Prepare(queryHighestSequenceNr)
	require.NoError(t, err)

	mock.ExpectPrepare(regexp.QuoteMeta(queryMinMaxOrdering)).WillBeClosed()
	stmtMinMax, err := db.Prepare(queryMinMaxOrdering)
	require.NoError(t, err)

	mock.ExpectClose().WillReturnError(dbCloseErr)

	adapter := &Adapter{
		db:              db,
		shards:          4,
		stmtRange:       stmtRange,
		stmtRangePruned: stmtRangePruned,
		stmtHighest:     stmtHighest,
		stmtMinMax:      stmtMinMax,
	}

	err = adapter.Close()
	require.Error(t, err)
	require.ErrorContains(t, err, "failed to close database")
	require.ErrorIs(t, err, dbCloseErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	adapter := &Adapter{
		db:              db,
		shards:          4,
		stmtRange:       mustPrepareStmt(t, db, mock, queryRangeEntries),
		stmtRangePruned: mustPrepareStmt(t, db, mock, queryRangeEntriesPruned),
		stmtHighest:     mustPrepareStmt(t, db, mock, queryHighestSequenceNr),
		stmtMinMax:      mustPrepareStmt(t, db, mock, queryMinMaxOrdering),
	}

	return adapter, mock, db
}

func mustPrepareStmt(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock, query string) *sql.Stmt {
	t.Helper()

	mock.ExpectPrepare(regexp.QuoteMeta(query))
	stmt, err := db.Prepare(query)
	require.NoError(t, err)

	return stmt
}

func entryRowColumns() []string {
	return []string{
		"persistence_id",
		"sequence_number",
		"ordering",
		"deleted",
		"payload",
		"tag_ids",
		"metadata",
	}
}
