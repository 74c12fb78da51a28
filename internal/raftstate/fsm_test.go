package raftstate

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/vaultaire/internal/catalog"
)

func TestFSM_Apply_CreateNamespace(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	cat := catalog.OpenDB(sqldb)
	fsm := NewFSM(cat, nil)

	mock.ExpectQuery("INSERT INTO namespaces").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	data, err := Encode(OpCreateNamespace, CreateNamespaceArgs{Name: "bucket-a"})
	require.NoError(t, err)

	out := fsm.Apply(&raft.Log{Data: data})
	res, ok := out.(*Result)
	require.True(t, ok)
	assert.Empty(t, res.Err)
	assert.Equal(t, int64(7), res.NamespaceID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFSM_Apply_UnknownOpReturnsErrResult(t *testing.T) {
	sqldb, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	cat := catalog.OpenDB(sqldb)
	fsm := NewFSM(cat, nil)

	data, err := Encode(Op("bogus"), struct{}{})
	require.NoError(t, err)

	out := fsm.Apply(&raft.Log{Data: data})
	res, ok := out.(*Result)
	require.True(t, ok)
	assert.NotEmpty(t, res.Err)
}

func TestFSM_Apply_CatalogErrorTravelsAsResultErr(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	cat := catalog.OpenDB(sqldb)
	fsm := NewFSM(cat, nil)

	mock.ExpectQuery("INSERT INTO namespaces").
		WillReturnError(assertAnError{})

	data, err := Encode(OpCreateNamespace, CreateNamespaceArgs{Name: "dup"})
	require.NoError(t, err)

	out := fsm.Apply(&raft.Log{Data: data})
	res, ok := out.(*Result)
	require.True(t, ok)
	assert.NotEmpty(t, res.Err)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "boom" }
