package database

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "lists.sqlite"))
	require.NoError(t, err, "Failed to open database")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSnapshotOperations(t *testing.T) {
	db := openTestDB(t)

	t.Run("Get missing", func(t *testing.T) {
		_, _, err := db.Get("inprogress-downloads.db")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, db.Has("inprogress-downloads.db"))
	})

	t.Run("Put then Get", func(t *testing.T) {
		require.NoError(t, db.Put("inprogress-downloads.db", []byte(`[{"Id":"a"}]`), "sum1"))

		payload, sum, err := db.Get("inprogress-downloads.db")
		require.NoError(t, err)
		assert.Equal(t, `[{"Id":"a"}]`, string(payload))
		assert.Equal(t, "sum1", sum)
		assert.True(t, db.Has("inprogress-downloads.db"))
	})

	t.Run("Put replaces", func(t *testing.T) {
		require.NoError(t, db.Put("inprogress-downloads.db", []byte(`[]`), "sum2"))

		payload, sum, err := db.Get("inprogress-downloads.db")
		require.NoError(t, err)
		assert.Equal(t, `[]`, string(payload))
		assert.Equal(t, "sum2", sum)
	})

	t.Run("Names", func(t *testing.T) {
		require.NoError(t, db.Put("finished-downloads.db", []byte(`[]`), "x"))
		names, err := db.Names()
		require.NoError(t, err)
		assert.Equal(t, []string{"finished-downloads.db", "inprogress-downloads.db"}, names)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, db.Delete("finished-downloads.db"))
		require.NoError(t, db.Delete("finished-downloads.db"), "deleting twice is fine")
		assert.False(t, db.Has("finished-downloads.db"))
	})
}

func TestConcurrentPuts(t *testing.T) {
	db := openTestDB(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, db.Put("list", []byte{byte(i)}, "s"))
		}(i)
	}
	wg.Wait()

	payload, _, err := db.Get("list")
	require.NoError(t, err)
	assert.Len(t, payload, 1)
}

func TestClosedDatabase(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "closed.sqlite"))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "Close is idempotent")

	assert.ErrorIs(t, db.Put("x", nil, ""), ErrClosed)
	_, _, err = db.Get("x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, db.Has("x"))
}
