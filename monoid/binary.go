package monoid

import (
	"encoding/binary"
	"errors"
	"math"
)

// BinarySize is the length of the fixed snapshot layout.
const BinarySize = 3*8 + 4*8 + 4 + 3*8

var ErrInvalidLength = errors.New("aggregate snapshot has invalid length")

// MarshalBinary encodes the aggregate in a fixed little-endian layout:
// count, duration, duration_squared, min, max, mean, m2,
// timestamp_reference, timestamp_mean, timestamp_m2, c2.
func (aggregate Aggregate) MarshalBinary() ([]byte, error) {
	buf := make([]byte, BinarySize)
	offset := 0

	putUint64 := func(value uint64) {
		binary.LittleEndian.PutUint64(buf[offset:], value)
		offset += 8
	}
	putFloat64 := func(value float64) {
		putUint64(math.Float64bits(value))
	}

	putUint64(aggregate.Count)
	putUint64(aggregate.Duration)
	putUint64(aggregate.DurationSquared)
	putFloat64(aggregate.Min)
	putFloat64(aggregate.Max)
	putFloat64(aggregate.Mean)
	putFloat64(aggregate.M2)
	binary.LittleEndian.PutUint32(buf[offset:], aggregate.TimestampReference)
	offset += 4
	putFloat64(aggregate.TimestampMean)
	putFloat64(aggregate.TimestampM2)
	putFloat64(aggregate.C2)

	return buf, nil
}

func (aggregate *Aggregate) UnmarshalBinary(buf []byte) error {
	if len(buf) != BinarySize {
		return ErrInvalidLength
	}
	offset := 0

	getUint64 := func() uint64 {
		value := binary.LittleEndian.Uint64(buf[offset:])
		offset += 8
		return value
	}
	getFloat64 := func() float64 {
		return math.Float64frombits(getUint64())
	}

	aggregate.Count = getUint64()
	aggregate.Duration = getUint64()
	aggregate.DurationSquared = getUint64()
	aggregate.Min = getFloat64()
	aggregate.Max = getFloat64()
	aggregate.Mean = getFloat64()
	aggregate.M2 = getFloat64()
	aggregate.TimestampReference = binary.LittleEndian.Uint32(buf[offset:])
	offset += 4
	aggregate.TimestampMean = getFloat64()
	aggregate.TimestampM2 = getFloat64()
	aggregate.C2 = getFloat64()

	return nil
}
