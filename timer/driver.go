package timer

import (
	"container/heap"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luoqeng/asynckit/clock"
	"github.com/luoqeng/asynckit/ds/slab"
	"github.com/luoqeng/asynckit/errs"
	"github.com/luoqeng/asynckit/lock"
	"github.com/luoqeng/asynckit/mlog"
)

// Waker is the token through which the driver hands a completed deadline
// back to whoever is waiting. Wake must not block and must not do
// critical-section work; it only marks the waiter runnable.
type Waker interface {
	Wake(now time.Time)
}

// WakeFunc adapts a function to the Waker interface.
type WakeFunc func(now time.Time)

func (f WakeFunc) Wake(now time.Time) { f(now) }

type Options struct {
	// Clock supplies monotonic readings; defaults to clock.Real().
	Clock clock.Clock
	// SlabCap pre-sizes the entry slab.
	SlabCap int
}

// noTarget means the driver is waiting without a deadline.
const noTarget = int64(-1)

// Driver owns the deadline heap and runs the single background goroutine
// that fires expired entries. Deadlines are nanosecond offsets from the
// epoch captured at construction, so heap keys stay plain int64s and the
// arithmetic rides on Go's monotonic clock reading.
type Driver struct {
	clk   clock.Clock
	epoch time.Time

	mu         sync.Locker // guards heap, slab, seq, waitTarget
	heap       entryHeap
	slab       *slab.Slab[timerEntry]
	seq        uint64
	waitTarget int64

	notify chan struct{}
	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewDriver starts the background worker. The returned driver lives until
// Shutdown is called.
func NewDriver(opts Options) (*Driver, error) {
	if opts.SlabCap < 0 {
		return nil, errs.DriverInit.Printf("slab cap %d", opts.SlabCap)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	d := &Driver{
		clk:        clk,
		epoch:      clk.Now(),
		mu:         lock.NewSpinLock(),
		slab:       slab.New[timerEntry](opts.SlabCap),
		waitTarget: noTarget,
		notify:     make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go d.run()
	mlog.Debugf("timer driver started")
	return d, nil
}

// Shutdown stops the background worker and joins it. Entries still armed
// never fire; arming operations afterwards report DriverClosed.
func (d *Driver) Shutdown() {
	if !d.closed.CompareAndSwap(false, true) {
		<-d.done
		return
	}
	close(d.quit)
	<-d.done
	mlog.Infof("timer driver stopped")
}

// Len reports the number of live (armed, not yet fired) entries.
func (d *Driver) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slab.Len()
}

// now is the monotonic offset from the driver epoch.
func (d *Driver) now() int64 {
	return int64(d.clk.Now().Sub(d.epoch))
}

// insert arms a new entry dur from now and returns its handle. If the new
// deadline is nearer than what the worker currently sleeps toward, the
// worker is kicked to recompute.
func (d *Driver) insert(dur time.Duration, w Waker) (slab.Ref, error) {
	if d.closed.Load() {
		return slab.Ref{}, errs.DriverClosed
	}
	if dur < 0 {
		return slab.Ref{}, errs.InvalidDuration.Printf("dur=%v", dur)
	}
	d.mu.Lock()
	now := d.now()
	if int64(dur) > math.MaxInt64-now {
		d.mu.Unlock()
		return slab.Ref{}, errs.InvalidDuration.Printf("dur=%v overflows", dur)
	}
	when := now + int64(dur)
	ref, e, err := d.slab.Alloc()
	if err != nil {
		d.mu.Unlock()
		return slab.Ref{}, errs.WrapError(err)
	}
	*e = timerEntry{when: when, waker: w}
	d.seq++
	heap.Push(&d.heap, entryItem{when: when, seq: d.seq, ref: ref})
	earlier := d.waitTarget == noTarget || when < d.waitTarget
	d.mu.Unlock()
	if earlier {
		d.kick()
	}
	return ref, nil
}

// cancel lazily invalidates the entry behind ref. A stale ref (already
// fired or superseded by reset) is a silent no-op. The heap item stays in
// place and is discarded when it surfaces at pop time.
func (d *Driver) cancel(ref slab.Ref) {
	d.mu.Lock()
	if e := d.slab.Get(ref); e != nil {
		e.cancelled = true
	}
	d.mu.Unlock()
}

// reset moves the deadline of a live entry, implemented as cancel-old +
// insert-new under one lock hold. The old generation goes stale, so an
// in-flight fire of it is discarded by the pop-time generation check.
// Resetting a stale ref (already fired) reports ok=false and changes
// nothing.
func (d *Driver) reset(ref slab.Ref, dur time.Duration, w Waker) (slab.Ref, bool, error) {
	if d.closed.Load() {
		return ref, false, errs.DriverClosed
	}
	if dur < 0 {
		return ref, false, errs.InvalidDuration.Printf("dur=%v", dur)
	}
	d.mu.Lock()
	if d.slab.Get(ref) == nil {
		d.mu.Unlock()
		return ref, false, nil
	}
	now := d.now()
	if int64(dur) > math.MaxInt64-now {
		d.mu.Unlock()
		return ref, false, errs.InvalidDuration.Printf("dur=%v overflows", dur)
	}
	when := now + int64(dur)
	d.slab.Free(ref)
	nref, ne, err := d.slab.Alloc()
	if err != nil {
		d.mu.Unlock()
		return ref, false, errs.WrapError(err)
	}
	*ne = timerEntry{when: when, waker: w}
	d.seq++
	heap.Push(&d.heap, entryItem{when: when, seq: d.seq, ref: nref})
	earlier := d.waitTarget == noTarget || when < d.waitTarget
	d.mu.Unlock()
	if earlier {
		d.kick()
	}
	return nref, true, nil
}

func (d *Driver) kick() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// run is the driver loop: sleep until the nearest deadline or until a new
// earlier deadline arrives, then fire everything that has elapsed.
func (d *Driver) run() {
	defer close(d.done)
	t := time.NewTimer(0)
	if !t.Stop() {
		<-t.C
	}
	for {
		d.mu.Lock()
		var wait time.Duration
		idle := len(d.heap) == 0
		if idle {
			d.waitTarget = noTarget
		} else {
			d.waitTarget = d.heap[0].when
			wait = time.Duration(d.heap[0].when - d.now())
			if wait < 0 {
				wait = 0
			}
		}
		d.mu.Unlock()

		if idle {
			select {
			case <-d.quit:
				return
			case <-d.notify:
			}
		} else {
			t.Reset(wait)
			select {
			case <-d.quit:
				if !t.Stop() {
					<-t.C
				}
				return
			case <-d.notify:
				if !t.Stop() {
					<-t.C
				}
			case <-t.C:
			}
		}
		d.fireExpired()
	}
}

// fireExpired pops every entry whose deadline has elapsed and fires its
// waker. Wakers run after the heap lock is released so they may call back
// into the driver or the scheduler freely.
func (d *Driver) fireExpired() {
	var fired []Waker
	d.mu.Lock()
	now := d.now()
	for len(d.heap) > 0 && d.heap[0].when <= now {
		item := heap.Pop(&d.heap).(entryItem)
		e := d.slab.Get(item.ref)
		if e == nil {
			// Superseded by reset; the live generation has its own item.
			continue
		}
		if e.when != item.when {
			mlog.Fatalf("timer driver heap/slab mismatch: item when=%d entry when=%d", item.when, e.when)
		}
		cancelled := e.cancelled
		w := e.waker
		d.slab.Free(item.ref)
		if cancelled {
			continue
		}
		fired = append(fired, w)
	}
	d.mu.Unlock()
	if len(fired) == 0 {
		return
	}
	at := d.clk.Now()
	for _, w := range fired {
		w.Wake(at)
	}
	mlog.Debugf("timer driver fired %d entries", len(fired))
}
