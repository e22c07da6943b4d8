package window

import (
	"fmt"
	"sync"
)

// Arena identifies which memory pool satisfied a reservation.
type Arena int

const (
	ArenaDefault Arena = iota
	ArenaExternal
)

func (arena Arena) String() string {
	if arena == ArenaExternal {
		return "external"
	}
	return "default"
}

// Allocator accounts for the memory a store reserves at setup. Stores try
// to place every array before touching the heap, so a failed reservation
// leaves nothing half allocated.
type Allocator interface {
	Reserve(bytes int) (Arena, error)
	Free(bytes int, arena Arena)
}

type unbounded struct{}

func (unbounded) Reserve(int) (Arena, error) { return ArenaDefault, nil }
func (unbounded) Free(int, Arena)            {}

// Unbounded never refuses a reservation.
var Unbounded Allocator = unbounded{}

// BudgetAllocator serves reservations from an external pool first and
// falls back to the default pool. A limit of zero disables that pool.
type BudgetAllocator struct {
	mutex sync.Mutex

	externalLimit int
	defaultLimit  int
	externalUsed  int
	defaultUsed   int
}

func NewBudgetAllocator(externalLimit, defaultLimit int) *BudgetAllocator {
	return &BudgetAllocator{
		externalLimit: externalLimit,
		defaultLimit:  defaultLimit,
	}
}

func (allocator *BudgetAllocator) Reserve(bytes int) (Arena, error) {
	allocator.mutex.Lock()
	defer allocator.mutex.Unlock()

	if allocator.externalUsed+bytes <= allocator.externalLimit {
		allocator.externalUsed += bytes
		return ArenaExternal, nil
	}
	if allocator.defaultUsed+bytes <= allocator.defaultLimit {
		allocator.defaultUsed += bytes
		return ArenaDefault, nil
	}
	return ArenaDefault, fmt.Errorf("%w: %d bytes requested, %d external and %d default available",
		ErrAllocationFailed, bytes,
		allocator.externalLimit-allocator.externalUsed,
		allocator.defaultLimit-allocator.defaultUsed)
}

func (allocator *BudgetAllocator) Free(bytes int, arena Arena) {
	allocator.mutex.Lock()
	defer allocator.mutex.Unlock()

	if arena == ArenaExternal {
		allocator.externalUsed -= bytes
	} else {
		allocator.defaultUsed -= bytes
	}
}

// Used returns the bytes currently reserved from each pool.
func (allocator *BudgetAllocator) Used() (external, fallback int) {
	allocator.mutex.Lock()
	defer allocator.mutex.Unlock()
	return allocator.externalUsed, allocator.defaultUsed
}
