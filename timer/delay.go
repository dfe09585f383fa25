package timer

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/luoqeng/asynckit/ds/slab"
	"github.com/luoqeng/asynckit/errs"
)

type delayState int

const (
	stateUnregistered delayState = iota
	statePending
	stateElapsed
	stateCanceled
)

// Delay resolves once, some time at or after its deadline. The deadline
// clock starts at the first wait (C or Wait), not at construction, so the
// duration measures actual waiting. A Delay is not restartable by itself;
// reuse goes through Reset.
//
// A Delay is safe for concurrent Cancel/Reset, but only one goroutine
// should consume its completion.
type Delay struct {
	drv *Driver

	mu      sync.Mutex
	state   delayState
	gen     uint64 // bumped on every (re)registration, stale fires are dropped
	dur     time.Duration
	ref     slab.Ref
	c       chan time.Time
	at      time.Time // observed fire time, set once Elapsed
	armErr  error
	closedC bool
}

// NewDelay prepares a delay of dur on this driver without touching the
// heap; registration happens at the first wait.
func (d *Driver) NewDelay(dur time.Duration) (*Delay, error) {
	if d.closed.Load() {
		return nil, errs.DriverClosed
	}
	if dur < 0 {
		return nil, errs.InvalidDuration.Printf("dur=%v", dur)
	}
	// Conservative: d.now() only grows, so a duration that overflows the
	// deadline here can never become representable at the first wait.
	if int64(dur) > math.MaxInt64-d.now() {
		return nil, errs.InvalidDuration.Printf("dur=%v overflows", dur)
	}
	return &Delay{
		drv: d,
		dur: dur,
		c:   make(chan time.Time, 1),
	}, nil
}

// arm registers the delay with the driver. This is the first suspend
// point; the clock is read here, not at construction.
func (dl *Delay) arm() error {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	switch dl.state {
	case statePending, stateElapsed:
		return nil
	case stateCanceled:
		return errs.Canceled
	}
	if dl.armErr != nil {
		return dl.armErr
	}
	dl.gen++
	g := dl.gen
	ref, err := dl.drv.insert(dl.dur, WakeFunc(func(now time.Time) {
		dl.fire(g, now)
	}))
	if err != nil {
		dl.armErr = err
		return err
	}
	dl.ref = ref
	dl.state = statePending
	return nil
}

// fire is the wake token handed to the driver. Fires of a superseded
// registration are dropped here, mirroring the driver-side generation
// check.
func (dl *Delay) fire(gen uint64, now time.Time) {
	dl.mu.Lock()
	if dl.state != statePending || dl.gen != gen {
		dl.mu.Unlock()
		return
	}
	dl.state = stateElapsed
	dl.at = now
	// The buffered send cannot block, and doing it under the lock keeps
	// the Elapsed transition and the delivery atomic: a Reset that sees
	// Elapsed has the stale value in the channel already and drains it.
	select {
	case dl.c <- now:
	default:
	}
	dl.mu.Unlock()
}

// Wait arms the delay if needed and suspends the caller until it elapses
// or ctx is done. It returns the time the driver observed the deadline
// elapsed (>= deadline).
func (dl *Delay) Wait(ctx context.Context) (time.Time, error) {
	if err := dl.arm(); err != nil {
		return time.Time{}, err
	}
	dl.mu.Lock()
	if dl.state == stateElapsed {
		at := dl.at
		dl.mu.Unlock()
		select {
		case <-dl.c:
		default:
		}
		return at, nil
	}
	dl.mu.Unlock()
	select {
	case at := <-dl.c:
		return at, nil
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
}

// C returns the completion channel, arming the delay on first use. The
// observed fire time is delivered exactly once. If arming fails (driver
// closed) the channel is closed without a value and Err reports why; a
// cancelled delay's channel simply never fires.
func (dl *Delay) C() <-chan time.Time {
	err := dl.arm()
	if err != nil && !errors.Is(err, errs.Canceled) {
		dl.mu.Lock()
		if dl.state != stateElapsed && !dl.closedC {
			dl.closedC = true
			close(dl.c)
		}
		dl.mu.Unlock()
	}
	return dl.c
}

// Err reports a registration failure surfaced through C.
func (dl *Delay) Err() error {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.armErr
}

// Cancel guarantees the delay never resolves. Cancelling an elapsed delay
// or cancelling twice is a no-op. The heap entry is invalidated lazily in
// O(1); the driver discards it when it surfaces.
func (dl *Delay) Cancel() {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	switch dl.state {
	case stateUnregistered:
		dl.state = stateCanceled
	case statePending:
		dl.drv.cancel(dl.ref)
		dl.state = stateCanceled
	}
}

// Reset re-arms the delay for dur. A pending delay keeps its heap slot
// under a new generation, so a concurrent fire of the superseded deadline
// is discarded. An elapsed, cancelled or unregistered delay returns to
// Unregistered and registers again at the next wait.
func (dl *Delay) Reset(dur time.Duration) error {
	if dur < 0 {
		return errs.InvalidDuration.Printf("dur=%v", dur)
	}
	if int64(dur) > math.MaxInt64-dl.drv.now() {
		return errs.InvalidDuration.Printf("dur=%v overflows", dur)
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.closedC {
		return dl.armErr
	}
	dl.dur = dur
	if dl.state == statePending {
		dl.gen++
		g := dl.gen
		nref, ok, err := dl.drv.reset(dl.ref, dur, WakeFunc(func(now time.Time) {
			dl.fire(g, now)
		}))
		if err != nil {
			return err
		}
		if ok {
			dl.ref = nref
			return nil
		}
		// The old deadline fired while we were resetting; fall through
		// and re-register lazily. The in-flight wake is dropped by the
		// generation check in fire.
	}
	dl.state = stateUnregistered
	select {
	case <-dl.c:
	default:
	}
	return nil
}
