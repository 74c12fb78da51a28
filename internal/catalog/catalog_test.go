package catalog

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_InsertOrDedupChunk_NewRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO chunks").
		WillReturnRows(sqlmock.NewRows([]string{"xmax"}).AddRow("0"))

	c := OpenDB(db)
	isNew, err := c.InsertOrDedupChunk(context.Background(), "deadbeef", []byte("nonce12bytes"), "key1", 1, "enigma/chunks/de/ad/deadbeef", 100, 116, nil)
	require.NoError(t, err)
	assert.True(t, isNew)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_InsertOrDedupChunk_ExistingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO chunks").
		WillReturnRows(sqlmock.NewRows([]string{"xmax"}).AddRow("123"))

	c := OpenDB(db)
	isNew, err := c.InsertOrDedupChunk(context.Background(), "deadbeef", []byte("nonce12bytes"), "key1", 1, "enigma/chunks/de/ad/deadbeef", 100, 116, nil)
	require.NoError(t, err)
	assert.False(t, isNew)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_DecrementChunkRef_StillReferenced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE chunks SET ref_count").
		WillReturnRows(sqlmock.NewRows([]string{"ref_count"}).AddRow(1))
	mock.ExpectCommit()

	c := OpenDB(db)
	locs, err := c.DecrementChunkRef(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Empty(t, locs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_DecrementChunkRef_ReachesZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE chunks SET ref_count").
		WillReturnRows(sqlmock.NewRows([]string{"ref_count"}).AddRow(0))
	mock.ExpectQuery("SELECT provider_id, storage_key FROM chunks").
		WillReturnRows(sqlmock.NewRows([]string{"provider_id", "storage_key"}).AddRow(1, "enigma/chunks/de/ad/deadbeef"))
	mock.ExpectQuery("SELECT provider_id, storage_key FROM chunk_replicas").
		WillReturnRows(sqlmock.NewRows([]string{"provider_id", "storage_key"}).AddRow(2, "enigma/chunks/de/ad/deadbeef"))
	mock.ExpectExec("DELETE FROM chunks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c := OpenDB(db)
	locs, err := c.DecrementChunkRef(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Len(t, locs, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}
