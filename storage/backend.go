package storage

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const (
	snapshotPrefix byte = 's'
	keyLength           = 9
	layoutVersion       = "v1"
)

// HashKey names the snapshot of one component. The layout version is part of
// the hashed string, so a layout change orphans old blobs instead of
// misreading them.
func HashKey(kind, id string) uint64 {
	return xxhash.Sum64String("sensorstats/" + kind + "/" + layoutVersion + "/" + id)
}

func GetKey(key uint64) []byte {
	buf := make([]byte, keyLength)

	// <1 byte namespace> <8 bytes hash key>
	buf[0] = snapshotPrefix
	binary.LittleEndian.PutUint64(buf[1:], key)

	return buf
}

func GetHashFromKey(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[1:])
}

// Backend persists opaque blobs under 64-bit keys. Get returns
// ErrSnapshotNotFound for a missing key.
type Backend interface {
	Get(key uint64) ([]byte, error)
	Put(key uint64, buf []byte) error
	Delete(key uint64) error

	Close() error
}

type InMemoryBackend struct {
	snapshotMap      map[uint64][]byte
	snapshotMapMutex sync.Mutex
}

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		snapshotMap: make(map[uint64][]byte),
	}
}

func (backend *InMemoryBackend) Get(key uint64) ([]byte, error) {
	backend.snapshotMapMutex.Lock()
	defer backend.snapshotMapMutex.Unlock()

	if backend.snapshotMap == nil {
		return nil, ErrBackendClosed
	}
	buf, ok := backend.snapshotMap[key]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), buf...), nil
}

func (backend *InMemoryBackend) Put(key uint64, buf []byte) error {
	backend.snapshotMapMutex.Lock()
	defer backend.snapshotMapMutex.Unlock()

	if backend.snapshotMap == nil {
		return ErrBackendClosed
	}
	backend.snapshotMap[key] = append([]byte(nil), buf...)
	return nil
}

func (backend *InMemoryBackend) Delete(key uint64) error {
	backend.snapshotMapMutex.Lock()
	defer backend.snapshotMapMutex.Unlock()

	if backend.snapshotMap == nil {
		return ErrBackendClosed
	}
	delete(backend.snapshotMap, key)
	return nil
}

func (backend *InMemoryBackend) Close() error {
	backend.snapshotMapMutex.Lock()
	defer backend.snapshotMapMutex.Unlock()
	backend.snapshotMap = nil
	return nil
}
