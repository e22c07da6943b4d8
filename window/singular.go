package window

import "sensorstats/monoid"

// Singular keeps a single running aggregate. It needs no store and ignores
// the capacity it is allocated with.
type Singular struct {
	timeWeighted bool
	running      monoid.Aggregate
	inserted     int
}

func NewSingular(timeWeighted bool) *Singular {
	return &Singular{
		timeWeighted: timeWeighted,
		running:      monoid.Identity(),
	}
}

func (singular *Singular) Allocate(int, monoid.Fields, Allocator) error {
	singular.Clear()
	return nil
}

func (singular *Singular) Clear() {
	singular.running = monoid.Identity()
	singular.inserted = 0
}

func (singular *Singular) Evict() {
	singular.Clear()
}

func (singular *Singular) Insert(aggregate monoid.Aggregate) error {
	singular.running = monoid.Combine(singular.running, aggregate, singular.timeWeighted)
	singular.inserted++
	return nil
}

func (singular *Singular) Current() monoid.Aggregate {
	return singular.running
}

func (singular *Singular) Size() int {
	return singular.inserted
}
