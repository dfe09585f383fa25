package lock

import (
	"sync"
	"testing"
)

func TestSpinLockMutualExclusion(t *testing.T) {
	l := NewSpinLock()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				l.Lock()
				counter++
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != 32*1000 {
		t.Fatalf("lost updates, counter = %d", counter)
	}
}

func TestSpinLockTryLock(t *testing.T) {
	sl := new(SpinLock)
	if !sl.TryLock() {
		t.Fatal("TryLock on a free lock must succeed")
	}
	if sl.TryLock() {
		t.Fatal("TryLock on a held lock must fail")
	}
	sl.Unlock()
	if !sl.TryLock() {
		t.Fatal("TryLock after Unlock must succeed")
	}
}
