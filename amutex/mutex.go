// Package amutex provides an exclusive lock whose contended path suspends
// the calling goroutine instead of spinning, granting strictly in FIFO
// arrival order.
package amutex

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/luoqeng/asynckit/lock"
)

const (
	waiterPending int32 = iota
	waiterGranted
	waiterAborted
)

// waiter is one queued lock request. ready is its wake token: closing it
// resumes the suspended goroutine already holding the lock. state settles
// exactly once, via CAS, so a grant racing a cancellation has a single
// winner.
type waiter struct {
	state int32
	ready chan struct{}
}

// Mutex guards a payload of type T. The uncontended Lock grants
// synchronously; contended callers queue and suspend. Release is always
// clean: the mutex is never poisoned by a panic inside the critical
// section, so callers should pair Lock with a deferred Guard.Unlock.
type Mutex[T any] struct {
	mu      sync.Locker // short-held, guards locked and waiters
	locked  bool
	waiters *queue.Queue // FIFO of *waiter, append-only under mu
	payload T
}

func New[T any](payload T) *Mutex[T] {
	return &Mutex[T]{
		mu:      lock.NewSpinLock(),
		waiters: queue.New(),
		payload: payload,
	}
}

// Lock acquires the mutex. If it is free and nobody is queued the guard
// is granted immediately without suspension. Otherwise the caller joins
// the wait queue in arrival order and suspends until granted or until ctx
// is done. A later arrival never overtakes a queued waiter.
func (m *Mutex[T]) Lock(ctx context.Context) (*Guard[T], error) {
	m.mu.Lock()
	if !m.locked && m.waiters.Length() == 0 {
		m.locked = true
		m.mu.Unlock()
		return &Guard[T]{m: m}, nil
	}
	w := &waiter{ready: make(chan struct{})}
	m.waiters.Add(w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return &Guard[T]{m: m}, nil
	case <-ctx.Done():
		if atomic.CompareAndSwapInt32(&w.state, waiterPending, waiterAborted) {
			// Still queued; Unlock will skip this entry when it surfaces.
			return nil, ctx.Err()
		}
		// The grant won the race, so the lock is ours; pass it on.
		<-w.ready
		(&Guard[T]{m: m}).Unlock()
		return nil, ctx.Err()
	}
}

// TryLock acquires the mutex only if it is free and nobody is queued. It
// never suspends and never overtakes waiters.
func (m *Mutex[T]) TryLock() (*Guard[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked || m.waiters.Length() > 0 {
		return nil, false
	}
	m.locked = true
	return &Guard[T]{m: m}, true
}

// WaitCount reports the number of queued waiters, including lazily
// abandoned ones not yet skipped by an unlock.
func (m *Mutex[T]) WaitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters.Length()
}

// unlock hands the lock to the queue head, skipping aborted waiters, or
// frees it when the queue drains. The wake token fires after the queue
// lock is released.
func (m *Mutex[T]) unlock() {
	var grant *waiter
	m.mu.Lock()
	if !m.locked {
		m.mu.Unlock()
		panic("amutex: unlock of unlocked mutex")
	}
	for m.waiters.Length() > 0 {
		w := m.waiters.Remove().(*waiter)
		if atomic.CompareAndSwapInt32(&w.state, waiterPending, waiterGranted) {
			grant = w
			break
		}
	}
	if grant == nil {
		m.locked = false
	}
	m.mu.Unlock()
	if grant != nil {
		close(grant.ready)
	}
}

// Guard is exclusive ownership of the mutex payload. Exactly one Guard is
// live per mutex at any instant.
type Guard[T any] struct {
	m        *Mutex[T]
	released atomic.Bool
}

// Value exposes the protected payload. It must not be used after Unlock.
func (g *Guard[T]) Value() *T {
	if g.released.Load() {
		panic("amutex: payload access after unlock")
	}
	return &g.m.payload
}

// Unlock releases the guard, waking the head of the wait queue if any.
// Unlocking twice panics.
func (g *Guard[T]) Unlock() {
	if !g.released.CompareAndSwap(false, true) {
		panic("amutex: unlock of released guard")
	}
	g.m.unlock()
}
