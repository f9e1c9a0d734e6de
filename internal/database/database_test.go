package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutGet(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Put([]byte("settings"), []byte(`{"maxConcurrentDownloads":3}`)))

	value, err := db.Get([]byte("settings"))
	require.NoError(t, err)
	assert.Equal(t, `{"maxConcurrentDownloads":3}`, string(value))
}

func TestGet_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Put([]byte("history"), []byte("[]")))
	assert.True(t, db.Has([]byte("history")))

	require.NoError(t, db.Delete([]byte("history")))
	assert.False(t, db.Has([]byte("history")))
}

func TestKeys(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	require.NoError(t, db.Put([]byte("b"), []byte("2")))

	keys := db.Keys()
	assert.Len(t, keys, 2)
}

func TestClose_Idempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	assert.NoError(t, db.Close())
	assert.NoError(t, db.Close())
}
