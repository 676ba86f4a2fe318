package sgd

import "sync"

// cacheLineSize pads each slice lock onto its own cache line so that
// neighboring locks never share a line.
const cacheLineSize = 64

type paddedMutex struct {
	mu sync.Mutex
	_  [cacheLineSize - 8]byte
}

// lockTable is a flat array of padded locks, one per user slice. Only the
// marching executor uses it.
type lockTable struct {
	locks []paddedMutex
}

func newLockTable(numSlices int) *lockTable {
	return &lockTable{locks: make([]paddedMutex, numSlices)}
}

func (lt *lockTable) len() int { return len(lt.locks) }

// acquire takes the slice lock, trying without blocking first. It reports
// whether the non-blocking attempt failed, which the march executor counts
// as a contention event.
func (lt *lockTable) acquire(slice int) (conflicted bool) {
	if lt.locks[slice].mu.TryLock() {
		return false
	}
	lt.locks[slice].mu.Lock()
	return true
}

func (lt *lockTable) release(slice int) {
	lt.locks[slice].mu.Unlock()
}
