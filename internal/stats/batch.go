package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vd4-dee/quiz/internal/domain"
)

const (
	defaultBatchSize    = 50
	defaultBatchTimeout = 2 * time.Second
	// defaultQueueDepth bounds how many updates may wait before callers are refused.
	defaultQueueDepth = 10000
)

// ErrQueueFull is returned when the batcher cannot accept more updates.
var ErrQueueFull = errors.New("stats: update queue full")

// Update is one scored submission headed for the aggregate store. Categories
// and Difficulties carry the submission's percent-correct per bucket and may
// be nil.
type Update struct {
	UserID       string
	QuizID       string
	Score        float64
	Categories   map[string]float64
	Difficulties map[domain.Difficulty]float64
	ReceivedAt   time.Time
}

// FlushFunc persists one batch. A failed flush puts the batch back on the
// queue for the next attempt.
type FlushFunc func(ctx context.Context, batch []Update) error

// Batcher coalesces updates and flushes them when the batch is full or the
// timeout has elapsed since the first queued item, whichever comes first.
// Only one flush runs at a time.
type Batcher struct {
	mu       sync.Mutex
	queue    []Update
	flushing bool
	closed   bool

	size    int
	timeout time.Duration
	depth   int
	flush   FlushFunc
	arm     chan struct{}
	kick    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	log     *zap.Logger
}

func NewBatcher(size int, timeout time.Duration, depth int, flush FlushFunc, log *zap.Logger) *Batcher {
	if size <= 0 {
		size = defaultBatchSize
	}
	if timeout <= 0 {
		timeout = defaultBatchTimeout
	}
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := &Batcher{
		size:    size,
		timeout: timeout,
		depth:   depth,
		flush:   flush,
		arm:     make(chan struct{}, 1),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		log:     log,
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// Enqueue accepts one update. It never blocks: a full queue is reported as
// ErrQueueFull so the caller can shed load.
func (b *Batcher) Enqueue(u Update) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("stats: batcher closed")
	}
	if len(b.queue) >= b.depth {
		b.mu.Unlock()
		return ErrQueueFull
	}
	b.queue = append(b.queue, u)
	first := len(b.queue) == 1
	full := len(b.queue) >= b.size
	b.mu.Unlock()

	// The flush window opens when the first item of a batch arrives, not on
	// a free-running tick.
	if first {
		select {
		case b.arm <- struct{}{}:
		default:
		}
	}
	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *Batcher) run() {
	defer b.wg.Done()
	timer := time.NewTimer(b.timeout)
	stopTimer(timer)
	defer timer.Stop()

	for {
		select {
		case <-b.arm:
			stopTimer(timer)
			timer.Reset(b.timeout)
		case <-b.kick:
			stopTimer(timer)
			if b.flushOnce(context.Background()) > 0 {
				timer.Reset(b.timeout)
			}
		case <-timer.C:
			if b.flushOnce(context.Background()) > 0 {
				timer.Reset(b.timeout)
			}
		case <-b.done:
			return
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// flushOnce takes up to one batch off the queue and persists it, returning
// how many updates are still waiting. The flushing flag keeps overlapping
// triggers from running concurrent flushes.
func (b *Batcher) flushOnce(ctx context.Context) int {
	b.mu.Lock()
	if b.flushing || len(b.queue) == 0 {
		pending := len(b.queue)
		b.mu.Unlock()
		return pending
	}
	b.flushing = true
	n := len(b.queue)
	if n > b.size {
		n = b.size
	}
	batch := make([]Update, n)
	copy(batch, b.queue[:n])
	b.queue = b.queue[n:]
	b.mu.Unlock()

	err := b.flush(ctx, batch)

	b.mu.Lock()
	b.flushing = false
	if err != nil {
		// Put the batch back at the head so ordering is preserved.
		b.queue = append(batch, b.queue...)
	}
	pending := len(b.queue)
	b.mu.Unlock()

	if err != nil {
		b.log.Warn("batch flush failed, re-queued",
			zap.Int("batch", len(batch)),
			zap.Int("pending", pending),
			zap.Error(err))
		return pending
	}
	if pending >= b.size {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
	return pending
}

// Pending reports how many updates are waiting.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close stops the background loop and drains the queue with best effort.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()

	for {
		b.mu.Lock()
		pending := len(b.queue)
		b.mu.Unlock()
		if pending == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		b.flushOnce(ctx)

		b.mu.Lock()
		stuck := len(b.queue) >= pending
		b.mu.Unlock()
		if stuck {
			return errors.New("stats: drain made no progress")
		}
	}
}
