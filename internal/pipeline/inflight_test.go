package pipeline

import (
	"sync"
	"testing"
)

func TestInFlight(t *testing.T) {
	t.Run("acquire and release", func(t *testing.T) {
		f := NewInFlight()

		if !f.TryAcquire("97dbd29519287b8c") {
			t.Fatal("expected first acquire to succeed")
		}
		if f.TryAcquire("97dbd29519287b8c") {
			t.Error("expected second acquire of the same ID to fail")
		}
		if !f.TryAcquire("92f6e38497e34dd9") {
			t.Error("expected a different ID to acquire independently")
		}
		if f.Len() != 2 {
			t.Errorf("expected 2 active, got %d", f.Len())
		}

		f.Release("97dbd29519287b8c")
		if !f.TryAcquire("97dbd29519287b8c") {
			t.Error("expected acquire to succeed after release")
		}
	})

	t.Run("release of unheld ID is a no-op", func(t *testing.T) {
		f := NewInFlight()
		f.Release("97dbd29519287b8c")
		if f.Len() != 0 {
			t.Errorf("expected 0 active, got %d", f.Len())
		}
	})

	t.Run("exactly one concurrent winner per ID", func(t *testing.T) {
		f := NewInFlight()

		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if f.TryAcquire("97dbd29519287b8c") {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if winners != 1 {
			t.Errorf("expected exactly 1 winner, got %d", winners)
		}
	})
}
