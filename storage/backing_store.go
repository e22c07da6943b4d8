package storage

import (
	"strconv"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// SnapshotStore is the capability components use to persist their state
// across restarts. Load returns ErrSnapshotNotFound for an unknown key.
type SnapshotStore interface {
	Load(key uint64) ([]byte, error)
	Save(key uint64, buf []byte) error
}

// BackingStore fronts a Backend with an optional ristretto cache so repeated
// loads of a hot snapshot skip the backend.
//
// ristretto applies writes asynchronously, so cache entries are keyed by a
// per-key generation bumped on every save; an entry queued before a save can
// never be served after it.
type BackingStore struct {
	backend       Backend
	cacheEnabled  bool
	snapshotCache *ristretto.Cache

	generationsMutex sync.Mutex
	generations      map[uint64]uint64
}

func NewBackingStore(backend Backend, cacheEnabled bool) (*BackingStore, error) {
	store := &BackingStore{
		backend:      backend,
		cacheEnabled: cacheEnabled,
		generations:  make(map[uint64]uint64),
	}
	if cacheEnabled {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1e4,
			MaxCost:     1 << 22,
			BufferItems: 64,
		})
		if err != nil {
			return nil, err
		}
		store.snapshotCache = cache
	}
	return store, nil
}

func (store *BackingStore) cacheKey(key uint64, bump bool) string {
	store.generationsMutex.Lock()
	defer store.generationsMutex.Unlock()

	if bump {
		store.generations[key]++
	}
	return strconv.FormatUint(key, 16) + "/" + strconv.FormatUint(store.generations[key], 10)
}

func (store *BackingStore) Load(key uint64) ([]byte, error) {
	var cacheKey string
	if store.cacheEnabled {
		cacheKey = store.cacheKey(key, false)
		buf, found := store.snapshotCache.Get(cacheKey)
		if found {
			return append([]byte(nil), buf.([]byte)...), nil
		}
	}
	buf, err := store.backend.Get(key)
	if err != nil {
		return nil, err
	}
	if store.cacheEnabled {
		store.snapshotCache.Set(cacheKey, append([]byte(nil), buf...), int64(len(buf)))
	}
	return buf, nil
}

func (store *BackingStore) Save(key uint64, buf []byte) error {
	var cacheKey string
	if store.cacheEnabled {
		cacheKey = store.cacheKey(key, true)
	}
	if err := store.backend.Put(key, buf); err != nil {
		return err
	}
	if store.cacheEnabled {
		store.snapshotCache.Set(cacheKey, append([]byte(nil), buf...), int64(len(buf)))
	}
	return nil
}

func (store *BackingStore) Delete(key uint64) error {
	if store.cacheEnabled {
		store.cacheKey(key, true)
	}
	return store.backend.Delete(key)
}

// Close releases the cache and closes the backend.
func (store *BackingStore) Close() error {
	if store.cacheEnabled {
		store.snapshotCache.Close()
	}
	return store.backend.Close()
}
