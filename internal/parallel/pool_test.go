package parallel

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestExecuteAll(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Close()

	var n atomic.Int32
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { n.Add(1) }
	}
	p.ExecuteAll(work)
	if n.Load() != 100 {
		t.Errorf("ran %d items, want 100", n.Load())
	}
}

func TestExecuteAllAfterClose(t *testing.T) {
	p := NewWorkerPool(2)
	p.Close()
	p.Close()

	ran := 0
	p.ExecuteAll([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ran %d items after Close, want 2 inline", ran)
	}
}

func TestExecuteAllConcurrentClose(t *testing.T) {
	for range 20 {
		p := NewWorkerPool(2)
		var n atomic.Int32
		var wg sync.WaitGroup
		const callers, items = 4, 64
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				work := make([]func(), items)
				for i := range work {
					work[i] = func() { n.Add(1) }
				}
				p.ExecuteAll(work)
			}()
		}
		p.Close()
		wg.Wait()
		if got := n.Load(); got != callers*items {
			t.Fatalf("ran %d items, want %d", got, callers*items)
		}
	}
}

func TestForCoversRange(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Close()

	tests := []struct {
		name     string
		n, chunk int
	}{
		{"empty", 0, 10},
		{"inline", 5, 10},
		{"split", 1000, 10},
		{"uneven", 1001, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make([]int32, tt.n)
			For(p, tt.n, tt.chunk, func(lo, hi int) {
				for i := lo; i < hi; i++ {
					atomic.AddInt32(&seen[i], 1)
				}
			})
			for i, c := range seen {
				if c != 1 {
					t.Fatalf("index %d visited %d times", i, c)
				}
			}
		})
	}
}

func TestSharedPool(t *testing.T) {
	if Shared() != Shared() {
		t.Error("Shared() returned different pools")
	}
	if Shared().Workers() < 1 {
		t.Error("Shared() has no workers")
	}
}
