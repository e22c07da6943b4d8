package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBadgerBackend_PutGetDelete(t *testing.T) {
	backend := NewBadgerBackend(TestBadgerDB())
	defer backend.Close()
	testPutGetDelete(t, backend)
}

func TestBadgerBackend_BackingStore(t *testing.T) {
	backend := NewBadgerBackend(TestBadgerDB())
	defer backend.Close()
	testBackingStore(t, backend, false)
	testBackingStore(t, backend, true)
}

func TestBadgerBackend_IterateKeys(t *testing.T) {
	backend := NewBadgerBackend(TestBadgerDB())
	defer backend.Close()

	keys := []uint64{HashKey("statistics", "a"), HashKey("statistics", "b"), HashKey("distribution", "a")}
	for _, key := range keys {
		require.NoError(t, backend.Put(key, []byte{1}))
	}

	var index []uint64
	err := backend.IterateKeys(func(key uint64) error {
		index = append(index, key)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, keys, index)
}

func TestOpenBadger_OnDisk(t *testing.T) {
	dir := t.TempDir()
	key := HashKey("statistics", "persisted")

	db, err := OpenBadger(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	backend := NewBadgerBackend(db)
	require.NoError(t, backend.Put(key, []byte("kept")))
	require.NoError(t, backend.Close())

	db, err = OpenBadger(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	backend = NewBadgerBackend(db)
	defer backend.Close()

	stored, err := backend.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), stored)
}
