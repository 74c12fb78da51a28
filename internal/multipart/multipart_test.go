package multipart

import (
	"context"
	"crypto/md5" //nolint:gosec // test assertion only
	"encoding/hex"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/vaultaire/internal/catalog"
)

func TestStaging_UploadPart_ReturnsMD5ETag(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	cat := catalog.OpenDB(sqldb)
	s := New(cat, nil)

	data := []byte("part bytes")
	sum := md5.Sum(data)
	wantETag := hex.EncodeToString(sum[:])

	mock.ExpectExec("INSERT INTO multipart_parts").WillReturnResult(sqlmock.NewResult(0, 1))

	etag, err := s.UploadPart(context.Background(), "upload-1", 1, data)
	require.NoError(t, err)
	assert.Equal(t, wantETag, etag)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaging_UploadPart_UnknownUpload(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	cat := catalog.OpenDB(sqldb)
	s := New(cat, nil)

	mock.ExpectExec("INSERT INTO multipart_parts").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = s.UploadPart(context.Background(), "missing", 1, []byte("x"))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaging_Abort_PurgesStaging(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	cat := catalog.OpenDB(sqldb)
	s := New(cat, nil)

	mock.ExpectExec("DELETE FROM multipart_uploads").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Abort(context.Background(), "upload-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
