package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Put([]byte("a/2"), []byte("two")))
	require.NoError(t, db.Put([]byte("a/1"), []byte("one")))
	require.NoError(t, db.Put([]byte("b/1"), []byte("other")))

	ok, err := db.Has([]byte("a/1"))
	require.NoError(t, err)
	require.True(t, ok)

	var keys []string
	require.NoError(t, db.Iterate([]byte("a/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"a/1", "a/2"}, keys)

	keys = keys[:0]
	require.NoError(t, db.Iterate([]byte("a/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return false
	}))
	require.Equal(t, []string{"a/1"}, keys)

	batch := NewBatch()
	batch.Delete([]byte("a/1"))
	batch.Put([]byte("a/3"), []byte("three"))
	require.Equal(t, 2, batch.Len())
	require.NoError(t, db.Write(batch))

	ok, err = db.Has([]byte("a/1"))
	require.NoError(t, err)
	require.False(t, ok)
	got, err := db.Get([]byte("a/3"))
	require.NoError(t, err)
	require.Equal(t, []byte("three"), got)

	require.NoError(t, db.Delete([]byte("a/3")))
	require.NoError(t, db.Delete([]byte("never-existed")))
}

func TestMemDB(t *testing.T) {
	exerciseDatabase(t, NewMemDB())
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("key"), []byte("value")))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}
