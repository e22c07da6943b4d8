package digest

import (
	"encoding/binary"
	"math"
)

// DefaultSnapshotSize is the number of centroids a persisted digest keeps.
const DefaultSnapshotSize = 100

const centroidSize = 16

// Snapshot compresses the digest into exactly size centroids by re-merging
// with compression size/2, padding unused entries with (NaN, 0). The digest
// itself is left unchanged.
func (digest *MergingDigest) Snapshot(size int) []Centroid {
	digest.merge()

	snapshot := make([]Centroid, 0, size)
	total := float64(digest.mergedWeight)
	compression := float64(size) / 2
	for {
		snapshot = compress(digest.centroids, total, compression, digest.scale, snapshot[:0])
		if len(snapshot) <= size || compression < 1e-3 {
			break
		}
		compression /= 2
	}
	if len(snapshot) > size {
		snapshot = snapshot[:size]
	}

	for len(snapshot) < size {
		snapshot = append(snapshot, Centroid{Mean: math.NaN(), Weight: 0})
	}
	return snapshot
}

// Restore adds every non-empty centroid of a snapshot.
func (digest *MergingDigest) Restore(snapshot []Centroid) {
	for _, centroid := range snapshot {
		if centroid.Weight == 0 || math.IsNaN(centroid.Mean) {
			continue
		}
		digest.Add(centroid.Mean, centroid.Weight)
	}
	digest.merge()
}

// MarshalSnapshot encodes centroids as little-endian (mean, weight) pairs.
func MarshalSnapshot(snapshot []Centroid) []byte {
	buf := make([]byte, len(snapshot)*centroidSize)
	for i, centroid := range snapshot {
		offset := i * centroidSize
		binary.LittleEndian.PutUint64(buf[offset:], math.Float64bits(centroid.Mean))
		binary.LittleEndian.PutUint64(buf[offset+8:], centroid.Weight)
	}
	return buf
}

func UnmarshalSnapshot(buf []byte) ([]Centroid, error) {
	if len(buf)%centroidSize != 0 {
		return nil, ErrInvalidSnapshot
	}
	snapshot := make([]Centroid, len(buf)/centroidSize)
	for i := range snapshot {
		offset := i * centroidSize
		snapshot[i] = Centroid{
			Mean:   math.Float64frombits(binary.LittleEndian.Uint64(buf[offset:])),
			Weight: binary.LittleEndian.Uint64(buf[offset+8:]),
		}
	}
	return snapshot, nil
}
