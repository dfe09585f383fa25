package lock

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// SpinLock is a short-held lock for tiny critical sections (a few heap or
// queue operations). Contending goroutines yield with exponential backoff
// instead of parking.
type SpinLock uint32

const maxSpinBackoff = 16

func NewSpinLock() sync.Locker {
	return new(SpinLock)
}

func (sl *SpinLock) Lock() {
	backoff := 1
	for !sl.TryLock() {
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < maxSpinBackoff {
			backoff <<= 1
		}
	}
}

func (sl *SpinLock) TryLock() bool {
	return atomic.CompareAndSwapUint32((*uint32)(sl), 0, 1)
}

func (sl *SpinLock) Unlock() {
	atomic.StoreUint32((*uint32)(sl), 0)
}
