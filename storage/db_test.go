package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("alpha"), []byte("one")))
	got, err := db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), got)

	require.NoError(t, db.Put([]byte("alpha"), []byte("two")))
	got, err = db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	testDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("original")
	require.NoError(t, db.Put([]byte("key"), value))
	value[0] = 'X'

	got, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), again)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	testDatabase(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()
	testDatabase(t, db)
}

func TestBoltDBPersistsAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := NewBoltDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("key"), []byte("value")))
	db.Close()

	reopened, err := NewBoltDB(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}
