package window

import "sensorstats/monoid"

// Queue is the surface shared by every window policy. Aggregates are
// inserted oldest first.
type Queue interface {
	Allocate(capacity int, fields monoid.Fields, allocator Allocator) error
	Clear()
	Evict()
	Insert(aggregate monoid.Aggregate) error
	Current() monoid.Aggregate
	Size() int
}

var (
	_ Queue = (*DABALite)(nil)
	_ Queue = (*LogQueue)(nil)
	_ Queue = (*Singular)(nil)
)

// circularIndex is a position in a ring of fixed capacity.
type circularIndex struct {
	index    int
	capacity int
}

func (ci circularIndex) next() circularIndex {
	ci.index++
	if ci.index == ci.capacity {
		ci.index = 0
	}
	return ci
}

func (ci circularIndex) prev() circularIndex {
	if ci.index == 0 {
		ci.index = ci.capacity
	}
	ci.index--
	return ci
}
