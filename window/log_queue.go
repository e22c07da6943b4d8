package window

import (
	"math/bits"

	"sensorstats/monoid"
)

// DefaultLogQueueSlots holds enough slots for 2^32 chunks before the
// overflow collapse is needed.
const DefaultLogQueueSlots = 32

// LogQueue is an append-only stack that only combines aggregates of equal
// or smaller count into newer ones. Counts halve going up the stack, so the
// stack stays at most log2(N)+1 deep and every combine has operands of
// similar weight.
type LogQueue struct {
	store        AggregateStore
	timeWeighted bool
	slots        int
	top          int
	inserted     int
}

func NewLogQueue(timeWeighted bool) *LogQueue {
	return &LogQueue{timeWeighted: timeWeighted}
}

// LogQueueSlots is the stack depth needed for n chunks: ceil(log2(n)) + 1,
// or DefaultLogQueueSlots when n is zero.
func LogQueueSlots(n int) int {
	if n <= 0 {
		return DefaultLogQueueSlots
	}
	return bits.Len(uint(n-1)) + 1
}

// Allocate sizes the stack for capacity chunks; zero picks the default.
func (queue *LogQueue) Allocate(capacity int, fields monoid.Fields, allocator Allocator) error {
	if capacity < 0 {
		return ErrInvalidCapacity
	}
	slots := LogQueueSlots(capacity)
	if err := queue.store.Allocate(slots, fields, allocator); err != nil {
		return err
	}
	queue.slots = slots
	queue.Clear()
	return nil
}

func (queue *LogQueue) Clear() {
	queue.top = 0
	queue.inserted = 0
}

// Evict clears the queue; it is bounded in memory, not in time.
func (queue *LogQueue) Evict() {
	queue.Clear()
}

// Size is the number of chunks inserted since the last clear.
func (queue *LogQueue) Size() int {
	return queue.inserted
}

// Depth is the number of occupied slots.
func (queue *LogQueue) Depth() int {
	return queue.top
}

func (queue *LogQueue) Insert(aggregate monoid.Aggregate) error {
	if queue.slots == 0 {
		return ErrNotAllocated
	}

	for queue.top > 0 {
		below := queue.store.Read(queue.top - 1)
		if below.Count > aggregate.Count {
			break
		}
		aggregate = monoid.Combine(below, aggregate, queue.timeWeighted)
		queue.top--
	}

	if queue.top == queue.slots {
		collapsed := queue.combineSlots(queue.top)
		if queue.slots == 1 {
			aggregate = monoid.Combine(collapsed, aggregate, queue.timeWeighted)
			queue.top = 0
		} else {
			queue.store.Emplace(0, collapsed)
			queue.top = 1
		}
	}

	queue.store.Emplace(queue.top, aggregate)
	queue.top++
	queue.inserted++
	return nil
}

func (queue *LogQueue) Current() monoid.Aggregate {
	return queue.combineSlots(queue.top)
}

// combineSlots folds slots [0, n) starting from the newest, keeping the
// older operand on the left of each combine.
func (queue *LogQueue) combineSlots(n int) monoid.Aggregate {
	total := monoid.Identity()
	for i := n - 1; i >= 0; i-- {
		total = monoid.Combine(queue.store.Read(i), total, queue.timeWeighted)
	}
	return total
}
