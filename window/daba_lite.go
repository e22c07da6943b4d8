package window

import "sensorstats/monoid"

// DABALite is a fixed capacity sliding window with worst case O(1) insert,
// evict and query, after Tangwongsan, Hirzel and Schneider's De-Amortized
// Banker's Aggregator (Lite variant).
//
// Slots live in a ring and are split by six positions into
//
//	F..L  front, already combined with everything up to R
//	L..R  front, waiting to absorb midSum
//	R..A  front, partial suffix combines
//	A..B  delta, suffix combines of the old back
//	B..E  back, raw inserted aggregates, summarized by backSum
//
// Every insert or evict moves these positions by at most one slot.
type DABALite struct {
	store        AggregateStore
	timeWeighted bool
	capacity     int
	size         int

	f, l, r, a, b, e circularIndex

	midSum  monoid.Aggregate
	backSum monoid.Aggregate
}

func NewDABALite(timeWeighted bool) *DABALite {
	return &DABALite{
		timeWeighted: timeWeighted,
		midSum:       monoid.Identity(),
		backSum:      monoid.Identity(),
	}
}

func (window *DABALite) Allocate(capacity int, fields monoid.Fields, allocator Allocator) error {
	if capacity < 1 {
		return ErrInvalidCapacity
	}
	if err := window.store.Allocate(capacity, fields, allocator); err != nil {
		return err
	}
	window.capacity = capacity
	window.Clear()
	return nil
}

func (window *DABALite) Clear() {
	start := circularIndex{index: 0, capacity: window.capacity}
	window.f, window.l, window.r = start, start, start
	window.a, window.b, window.e = start, start, start
	window.size = 0
	window.midSum = monoid.Identity()
	window.backSum = monoid.Identity()
}

func (window *DABALite) Size() int {
	return window.size
}

func (window *DABALite) Capacity() int {
	return window.capacity
}

func (window *DABALite) Insert(aggregate monoid.Aggregate) error {
	if window.capacity == 0 {
		return ErrNotAllocated
	}
	if window.size >= window.capacity {
		return ErrWindowFull
	}

	window.backSum = monoid.Combine(window.backSum, aggregate, window.timeWeighted)
	window.store.Emplace(window.e.index, aggregate)
	window.e = window.e.next()
	window.size++

	window.step()
	return nil
}

// Evict drops the oldest aggregate. Evicting an empty window does nothing.
func (window *DABALite) Evict() {
	if window.size == 0 {
		return
	}
	window.f = window.f.next()
	window.size--

	window.step()
}

func (window *DABALite) Current() monoid.Aggregate {
	if window.size == 0 {
		return monoid.Identity()
	}
	return monoid.Combine(window.alpha(), window.backSum, window.timeWeighted)
}

func (window *DABALite) step() {
	if window.l == window.b {
		window.flip()
	}

	if window.size == 0 {
		window.backSum = monoid.Identity()
		window.midSum = monoid.Identity()
		return
	}

	if window.a != window.r {
		prevDelta := window.delta()
		window.a = window.a.prev()
		combined := monoid.Combine(window.store.Read(window.a.index), prevDelta, window.timeWeighted)
		window.store.Emplace(window.a.index, combined)
	}

	if window.l != window.r {
		combined := monoid.Combine(window.store.Read(window.l.index), window.midSum, window.timeWeighted)
		window.store.Emplace(window.l.index, combined)
		window.l = window.l.next()
	} else {
		window.l = window.l.next()
		window.r = window.r.next()
		window.a = window.a.next()
		window.midSum = window.delta()
	}
}

func (window *DABALite) flip() {
	window.l = window.f
	window.r = window.b
	window.a = window.e
	window.b = window.e
	window.midSum = window.backSum
	window.backSum = monoid.Identity()
}

// With a full ring E wraps onto F, so B == F alone cannot tell an empty
// front from a front that spans the whole ring.
func (window *DABALite) isFrontEmpty() bool {
	return window.b == window.f && window.size != window.capacity
}

func (window *DABALite) isDeltaEmpty() bool {
	return window.a == window.b
}

func (window *DABALite) alpha() monoid.Aggregate {
	if window.isFrontEmpty() {
		return monoid.Identity()
	}
	return window.store.Read(window.f.index)
}

func (window *DABALite) delta() monoid.Aggregate {
	if window.isDeltaEmpty() {
		return monoid.Identity()
	}
	return window.store.Read(window.a.index)
}
