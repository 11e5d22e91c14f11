package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestForEach_ProcessesAll(t *testing.T) {
	p := NewPool("test", 3, nil)
	var mu sync.Mutex
	seen := make(map[int]bool)

	res := ForEach(context.Background(), p, []int{1, 2, 3, 4, 5}, func(ctx context.Context, n int) error {
		mu.Lock()
		seen[n] = true
		mu.Unlock()
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	})

	if res.Processed != 5 || res.Failed != 2 || res.Skipped != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 items seen, got %d", len(seen))
	}
}

func TestForEach_BoundedParallelism(t *testing.T) {
	p := NewPool("test", 2, nil)
	var running, peak int32

	ForEach(context.Background(), p, make([]struct{}, 10), func(ctx context.Context, _ struct{}) error {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})

	if peak > 2 {
		t.Errorf("expected at most 2 concurrent items, saw %d", peak)
	}
}

func TestForEach_Cancelled(t *testing.T) {
	p := NewPool("test", 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	res := ForEach(ctx, p, []int{1, 2, 3}, func(ctx context.Context, n int) error {
		calls++
		return nil
	})

	if calls != 0 || res.Skipped != 3 {
		t.Errorf("expected all items skipped, got calls=%d result=%+v", calls, res)
	}
}
