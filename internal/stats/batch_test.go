package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureFlusher struct {
	mu      sync.Mutex
	batches [][]Update
	fail    int
}

func (f *captureFlusher) flush(_ context.Context, batch []Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("flush failed")
	}
	copied := make([]Update, len(batch))
	copy(copied, batch)
	f.batches = append(f.batches, copied)
	return nil
}

func (f *captureFlusher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBatcherFlushesWhenFull(t *testing.T) {
	f := &captureFlusher{}
	b := NewBatcher(3, time.Hour, 0, f.flush, nil)
	defer b.Close(context.Background())

	for i := 0; i < 3; i++ {
		if err := b.Enqueue(Update{UserID: "u1", QuizID: "q1", Score: float64(i)}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	waitFor(t, func() bool { return f.total() == 3 })
}

func TestBatcherFlushesOnTimeout(t *testing.T) {
	f := &captureFlusher{}
	b := NewBatcher(100, 20*time.Millisecond, 0, f.flush, nil)
	defer b.Close(context.Background())

	_ = b.Enqueue(Update{UserID: "u1", QuizID: "q1", Score: 50})

	waitFor(t, func() bool { return f.total() == 1 })
}

func TestBatcherRequeuesOnFailure(t *testing.T) {
	f := &captureFlusher{fail: 1}
	b := NewBatcher(2, 10*time.Millisecond, 0, f.flush, nil)
	defer b.Close(context.Background())

	_ = b.Enqueue(Update{UserID: "u1", QuizID: "q1", Score: 10})
	_ = b.Enqueue(Update{UserID: "u2", QuizID: "q1", Score: 20})

	// First flush fails; the batch is retried on a later tick.
	waitFor(t, func() bool { return f.total() == 2 })
}

func TestBatcherTimeoutStartsAtFirstEnqueue(t *testing.T) {
	f := &captureFlusher{}
	b := NewBatcher(100, 300*time.Millisecond, 0, f.flush, nil)
	defer b.Close(context.Background())

	// Let wall-clock time pass before anything is queued; the flush window
	// must open at the enqueue, not at construction.
	time.Sleep(200 * time.Millisecond)
	_ = b.Enqueue(Update{UserID: "u1", QuizID: "q1", Score: 50})

	time.Sleep(150 * time.Millisecond)
	if f.total() != 0 {
		t.Fatal("flushed before the timeout window elapsed")
	}

	waitFor(t, func() bool { return f.total() == 1 })
}

func TestBatcherRejectsWhenQueueFull(t *testing.T) {
	f := &captureFlusher{}
	b := NewBatcher(100, time.Hour, 2, f.flush, nil)
	defer b.Close(context.Background())

	_ = b.Enqueue(Update{UserID: "u1", QuizID: "q1", Score: 10})
	_ = b.Enqueue(Update{UserID: "u2", QuizID: "q1", Score: 20})
	if err := b.Enqueue(Update{UserID: "u3", QuizID: "q1", Score: 30}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestBatcherCloseDrains(t *testing.T) {
	f := &captureFlusher{}
	b := NewBatcher(100, time.Hour, 0, f.flush, nil)

	for i := 0; i < 7; i++ {
		_ = b.Enqueue(Update{UserID: "u1", QuizID: "q1", Score: float64(i)})
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if f.total() != 7 {
		t.Fatalf("flushed %d, want 7", f.total())
	}
	if err := b.Enqueue(Update{}); err == nil {
		t.Fatal("enqueue after close succeeded")
	}
}
