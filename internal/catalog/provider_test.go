package catalog

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_DeleteProvider_RefusesWhenReplicaStillReferencesIt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM chunks WHERE provider_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM chunk_replicas WHERE provider_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	c := OpenDB(db)
	err = c.DeleteProvider(context.Background(), 7)
	require.Error(t, err)
	assert.Equal(t, apperrors.InvalidInput, apperrors.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_DeleteProvider_DeletesWhenUnreferenced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM chunks WHERE provider_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM chunk_replicas WHERE provider_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM providers WHERE id").
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := OpenDB(db)
	err = c.DeleteProvider(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
