package window

import (
	"fmt"
	"math"

	"sensorstats/monoid"
)

// AggregateStore keeps aggregates as one array per enabled field.
type AggregateStore struct {
	capacity  int
	fields    monoid.Fields
	allocator Allocator
	arena     Arena
	reserved  int

	c2                 []float64
	count              []uint64
	duration           []uint64
	durationSquared    []uint64
	m2                 []float64
	max                []float32
	mean               []float64
	min                []float32
	timestampM2        []float64
	timestampMean      []float64
	timestampReference []uint32
}

var fieldSizes = []struct {
	field monoid.Fields
	size  int
}{
	{monoid.FieldC2, 8},
	{monoid.FieldCount, 8},
	{monoid.FieldDuration, 8},
	{monoid.FieldDurationSquared, 8},
	{monoid.FieldM2, 8},
	{monoid.FieldMax, 4},
	{monoid.FieldMean, 8},
	{monoid.FieldMin, 4},
	{monoid.FieldTimestampM2, 8},
	{monoid.FieldTimestampMean, 8},
	{monoid.FieldTimestampReference, 4},
}

// SlotSize is the number of bytes one slot occupies for the given fields.
func SlotSize(fields monoid.Fields) int {
	size := 0
	for _, entry := range fieldSizes {
		if fields.Has(entry.field) {
			size += entry.size
		}
	}
	return size
}

// Allocate reserves every enabled array for capacity slots. Any previous
// arrays are released first.
func (store *AggregateStore) Allocate(capacity int, fields monoid.Fields, allocator Allocator) error {
	if capacity < 0 {
		return ErrInvalidCapacity
	}
	if allocator == nil {
		allocator = Unbounded
	}
	store.Release()

	slot := SlotSize(fields)
	if slot > 0 && capacity > math.MaxInt32/slot {
		return fmt.Errorf("%w: %d slots of %d bytes", ErrAllocationFailed, capacity, slot)
	}
	bytes := capacity * slot

	arena, err := allocator.Reserve(bytes)
	if err != nil {
		return err
	}

	store.capacity = capacity
	store.fields = fields
	store.allocator = allocator
	store.arena = arena
	store.reserved = bytes

	if fields.Has(monoid.FieldC2) {
		store.c2 = make([]float64, capacity)
	}
	if fields.Has(monoid.FieldCount) {
		store.count = make([]uint64, capacity)
	}
	if fields.Has(monoid.FieldDuration) {
		store.duration = make([]uint64, capacity)
	}
	if fields.Has(monoid.FieldDurationSquared) {
		store.durationSquared = make([]uint64, capacity)
	}
	if fields.Has(monoid.FieldM2) {
		store.m2 = make([]float64, capacity)
	}
	if fields.Has(monoid.FieldMax) {
		store.max = make([]float32, capacity)
	}
	if fields.Has(monoid.FieldMean) {
		store.mean = make([]float64, capacity)
	}
	if fields.Has(monoid.FieldMin) {
		store.min = make([]float32, capacity)
	}
	if fields.Has(monoid.FieldTimestampM2) {
		store.timestampM2 = make([]float64, capacity)
	}
	if fields.Has(monoid.FieldTimestampMean) {
		store.timestampMean = make([]float64, capacity)
	}
	if fields.Has(monoid.FieldTimestampReference) {
		store.timestampReference = make([]uint32, capacity)
	}
	return nil
}

// Release drops the arrays and returns their reservation.
func (store *AggregateStore) Release() {
	if store.allocator != nil {
		store.allocator.Free(store.reserved, store.arena)
	}
	*store = AggregateStore{}
}

func (store *AggregateStore) Capacity() int {
	return store.capacity
}

func (store *AggregateStore) Fields() monoid.Fields {
	return store.fields
}

// Arena reports which pool holds the arrays.
func (store *AggregateStore) Arena() Arena {
	return store.arena
}

func (store *AggregateStore) Emplace(index int, aggregate monoid.Aggregate) {
	if store.c2 != nil {
		store.c2[index] = aggregate.C2
	}
	if store.count != nil {
		store.count[index] = aggregate.Count
	}
	if store.duration != nil {
		store.duration[index] = aggregate.Duration
	}
	if store.durationSquared != nil {
		store.durationSquared[index] = aggregate.DurationSquared
	}
	if store.m2 != nil {
		store.m2[index] = aggregate.M2
	}
	if store.max != nil {
		store.max[index] = float32(aggregate.Max)
	}
	if store.mean != nil {
		store.mean[index] = aggregate.Mean
	}
	if store.min != nil {
		store.min[index] = float32(aggregate.Min)
	}
	if store.timestampM2 != nil {
		store.timestampM2[index] = aggregate.TimestampM2
	}
	if store.timestampMean != nil {
		store.timestampMean[index] = aggregate.TimestampMean
	}
	if store.timestampReference != nil {
		store.timestampReference[index] = aggregate.TimestampReference
	}
}

func (store *AggregateStore) Read(index int) monoid.Aggregate {
	aggregate := monoid.Identity()

	if store.c2 != nil {
		aggregate.C2 = store.c2[index]
	}
	if store.count != nil {
		aggregate.Count = store.count[index]
	}
	if store.duration != nil {
		aggregate.Duration = store.duration[index]
	}
	if store.durationSquared != nil {
		aggregate.DurationSquared = store.durationSquared[index]
	}
	if store.m2 != nil {
		aggregate.M2 = store.m2[index]
	}
	if store.max != nil {
		aggregate.Max = float64(store.max[index])
	}
	if store.mean != nil {
		aggregate.Mean = store.mean[index]
	}
	if store.min != nil {
		aggregate.Min = float64(store.min[index])
	}
	if store.timestampM2 != nil {
		aggregate.TimestampM2 = store.timestampM2[index]
	}
	if store.timestampMean != nil {
		aggregate.TimestampMean = store.timestampMean[index]
	}
	if store.timestampReference != nil {
		aggregate.TimestampReference = store.timestampReference[index]
	}
	return aggregate
}
