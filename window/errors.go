package window

import "errors"

var (
	ErrWindowFull       = errors.New("window is full, evict before inserting")
	ErrInvalidCapacity  = errors.New("window capacity must be positive")
	ErrAllocationFailed = errors.New("aggregate store allocation failed")
	ErrNotAllocated     = errors.New("queue used before allocation")
)
