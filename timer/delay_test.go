package timer

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/luoqeng/asynckit/clock"
	"github.com/luoqeng/asynckit/errs"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := NewDriver(Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Shutdown)
	return d
}

func TestDelayResolvesAfterDuration(t *testing.T) {
	d := newTestDriver(t)
	const dur = 30 * time.Millisecond

	dl, err := d.NewDelay(dur)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	at, err := dl.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if waited := at.Sub(start); waited < dur {
		t.Fatalf("resolved %v after start, want >= %v", waited, dur)
	}
	// Resolving again returns the same observation without blocking.
	again, err := dl.Wait(context.Background())
	if err != nil || !again.Equal(at) {
		t.Fatalf("second wait = %v, %v; want %v", again, err, at)
	}
}

func TestDelayDurationMeasuredFromFirstWait(t *testing.T) {
	d := newTestDriver(t)
	const dur = 30 * time.Millisecond

	dl, err := d.NewDelay(dur)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * dur) // construction time must not count
	start := time.Now()
	at, err := dl.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if waited := at.Sub(start); waited < dur {
		t.Fatalf("resolved %v after first wait, want >= %v", waited, dur)
	}
}

func TestTwoDelaysResolveInDeadlineOrder(t *testing.T) {
	d := newTestDriver(t)

	a, err := d.NewDelay(100 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.NewDelay(50 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	wait := func(name string, dl *Delay, min time.Duration) {
		defer wg.Done()
		at, err := dl.Wait(context.Background())
		if err != nil {
			t.Errorf("%s: %v", name, err)
			return
		}
		if got := at.Sub(start); got < min {
			t.Errorf("%s resolved after %v, want >= %v", name, got, min)
		}
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}
	wg.Add(2)
	go wait("A", a, 100*time.Millisecond)
	go wait("B", b, 50*time.Millisecond)
	wg.Wait()

	if order[0] != "B" || order[1] != "A" {
		t.Fatalf("resolution order = %v, want [B A]", order)
	}
}

func TestCancelBeforeDeadlineNeverResolves(t *testing.T) {
	d := newTestDriver(t)
	const dur = 20 * time.Millisecond

	dl, err := d.NewDelay(dur)
	if err != nil {
		t.Fatal(err)
	}
	c := dl.C() // arm, then cancel while pending
	dl.Cancel()
	select {
	case at := <-c:
		t.Fatalf("cancelled delay resolved at %v", at)
	case <-time.After(10 * dur):
	}
	if _, err := dl.Wait(context.Background()); !errors.Is(err, errs.Canceled) {
		t.Fatalf("wait on cancelled delay = %v, want Canceled", err)
	}
}

func TestCancelBeforeFirstWaitNeverRegisters(t *testing.T) {
	d := newTestDriver(t)
	const dur = 20 * time.Millisecond

	dl, err := d.NewDelay(dur)
	if err != nil {
		t.Fatal(err)
	}
	dl.Cancel() // no suspension ever happened
	select {
	case at := <-dl.C():
		t.Fatalf("cancelled delay resolved at %v", at)
	case <-time.After(10 * dur):
	}
	if n := d.Len(); n != 0 {
		t.Fatalf("cancelled-at-birth delay leaked %d heap entries", n)
	}
}

func TestResetPendingSupersedesOldDeadline(t *testing.T) {
	d := newTestDriver(t)

	dl, err := d.NewDelay(40 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	c := dl.C() // arm at the 40ms deadline
	if err := dl.Reset(150 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	start := time.Now()

	// The superseded 40ms generation must not fire.
	select {
	case at := <-c:
		t.Fatalf("superseded deadline fired at %v", at)
	case <-time.After(80 * time.Millisecond):
	}
	at, err := dl.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if waited := at.Sub(start); waited < 70*time.Millisecond {
		t.Fatalf("resolved %v after reset, too early", waited)
	}
}

func TestResetAfterElapsedRearms(t *testing.T) {
	d := newTestDriver(t)

	dl, err := d.NewDelay(10 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dl.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := dl.Reset(30 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	at, err := dl.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if waited := at.Sub(start); waited < 30*time.Millisecond {
		t.Fatalf("re-armed delay resolved after %v, want >= 30ms", waited)
	}
}

func TestResetAfterElapsedDropsStaleDelivery(t *testing.T) {
	d := newTestDriver(t)

	for i := 0; i < 500; i++ {
		dl, err := d.NewDelay(0)
		if err != nil {
			t.Fatal(err)
		}
		c := dl.C()

		// Spin until the fire is visible. Once Elapsed can be observed
		// the delivery already sits in the channel, so the Reset below
		// drains it; nothing stale may land afterwards.
		spinDeadline := time.Now().Add(3 * time.Second)
		for {
			dl.mu.Lock()
			s := dl.state
			dl.mu.Unlock()
			if s == stateElapsed {
				break
			}
			if time.Now().After(spinDeadline) {
				t.Fatalf("iter %d: zero delay never elapsed", i)
			}
			runtime.Gosched()
		}

		if err := dl.Reset(time.Hour); err != nil {
			t.Fatal(err)
		}
		select {
		case at := <-c:
			t.Fatalf("iter %d: re-armed delay resolved immediately at %v", i, at)
		default:
		}
		dl.Cancel()
	}
}

func TestWaitHonorsContext(t *testing.T) {
	d := newTestDriver(t)

	dl, err := d.NewDelay(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := dl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wait = %v, want deadline exceeded", err)
	}
	dl.Cancel()
}

func TestInvalidDuration(t *testing.T) {
	d := newTestDriver(t)
	if _, err := d.NewDelay(-time.Second); !errors.Is(err, errs.InvalidDuration) {
		t.Fatalf("NewDelay(-1s) = %v, want InvalidDuration", err)
	}
	dl, err := d.NewDelay(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := dl.Reset(-time.Second); !errors.Is(err, errs.InvalidDuration) {
		t.Fatalf("Reset(-1s) = %v, want InvalidDuration", err)
	}
}

func TestDeadlineOverflowRejectedAtCreation(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	d, err := NewDriver(Options{Clock: mc})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Shutdown()
	mc.Advance(time.Second)

	huge := time.Duration(math.MaxInt64)
	if _, err := d.NewDelay(huge); !errors.Is(err, errs.InvalidDuration) {
		t.Fatalf("NewDelay(max) = %v, want InvalidDuration", err)
	}
	dl, err := d.NewDelay(time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := dl.Reset(huge); !errors.Is(err, errs.InvalidDuration) {
		t.Fatalf("Reset(max) = %v, want InvalidDuration", err)
	}
}

func TestBuiltinDefaultDriver(t *testing.T) {
	dl, err := NewDelay(10 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dl.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	Shutdown()
	if _, err := NewDelay(time.Millisecond); !errors.Is(err, errs.DriverClosed) {
		t.Fatalf("NewDelay after Shutdown = %v, want DriverClosed", err)
	}
}
