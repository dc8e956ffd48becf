package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenWithPoolLoadsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS poster_cache").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery("SELECT cache_key, file_path FROM poster_cache").
		WillReturnRows(pgxmock.NewRows([]string{"cache_key", "file_path"}).
			AddRow("inception", "/downloads/inception.jpg").
			AddRow("national treasure", "/downloads/national_treasure.jpg"))

	store, err := OpenWithPool(context.Background(), mock, "", true, zap.NewNop())
	require.NoError(t, err)

	path, ok := store.Get(context.Background(), "inception")
	require.True(t, ok)
	require.Equal(t, "/downloads/inception.jpg", path)
	require.Len(t, store.Snapshot(), 2)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectClose()
	require.NoError(t, store.Close(context.Background()))
}

func TestOpenWithPoolQueryFailureYieldsEmptyStore(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT cache_key, file_path FROM posters").
		WillReturnError(errors.New("relation does not exist"))

	store, err := OpenWithPool(context.Background(), mock, "posters", false, zap.NewNop())
	require.NoError(t, err)
	require.Empty(t, store.Snapshot())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT cache_key, file_path FROM poster_cache").
		WillReturnRows(pgxmock.NewRows([]string{"cache_key", "file_path"}))
	mock.ExpectExec("INSERT INTO poster_cache").
		WithArgs("inception", "/downloads/inception.jpg").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO poster_cache").
		WithArgs("heat", "/downloads/heat.jpg").
		WillReturnError(errors.New("connection reset"))

	store, err := OpenWithPool(context.Background(), mock, "", false, zap.NewNop())
	require.NoError(t, err)

	store.Put(context.Background(), "inception", "/downloads/inception.jpg")
	store.Put(context.Background(), "heat", "/downloads/heat.jpg")

	// A failed write still leaves the in-memory entry in place.
	path, ok := store.Get(context.Background(), "heat")
	require.True(t, ok)
	require.Equal(t, "/downloads/heat.jpg", path)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenWithPoolRejectsInvalidTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = OpenWithPool(context.Background(), mock, "poster;drop", false, zap.NewNop())
	require.Error(t, err)
}

func TestPingReportsPoolHealth(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT cache_key, file_path FROM poster_cache").
		WillReturnRows(pgxmock.NewRows([]string{"cache_key", "file_path"}))
	store, err := OpenWithPool(context.Background(), mock, "", false, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = store.Ping(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}
