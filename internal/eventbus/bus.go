// Package eventbus is the kernel's in-process publish/subscribe fan-out of
// committed entries. It is at-most-once and explicitly not a source of
// truth: the event store is authoritative, and a subscriber that misses a
// publish because it was slow or absent must catch up by replaying the
// event store directly (spec.md 4.6 step 7, SPEC_FULL ambient stack).
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/logging"
)

// Handler receives committed entries. A handler that returns an error is
// logged but never retried and never blocks the kernel's write path.
type Handler interface {
	HandleCommit(ctx context.Context, entry ledger.SealedJournalEntry) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, entry ledger.SealedJournalEntry) error

// HandleCommit calls f.
func (f HandlerFunc) HandleCommit(ctx context.Context, entry ledger.SealedJournalEntry) error {
	return f(ctx, entry)
}

// Bus fans committed entries out to subscribers over a bounded queue
// serviced by a worker pool. A full queue drops the event rather than
// block the write coordinator (spec.md 4.6: publish must never stall a
// commit).
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	queue chan ledger.SealedJournalEntry
	log   *logging.Logger

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	published int64
	dropped   int64
	failed    int64
}

// Config configures the bus.
type Config struct {
	QueueSize   int
	WorkerCount int
	Logger      *logging.Logger
}

// New constructs a Bus. Call Start before Publish has any subscribers to
// notify.
func New(cfg Config) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Bus{
		handlers: make(map[string]Handler),
		queue:    make(chan ledger.SealedJournalEntry, cfg.QueueSize),
		log:      cfg.Logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Subscribe registers a handler under id, replacing any prior handler with
// the same id.
func (b *Bus) Subscribe(id string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = h
}

// Unsubscribe removes a handler.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Start launches the worker pool.
func (b *Bus) Start(ctx context.Context, workerCount int) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("eventbus already running")
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.mu.Unlock()

	if workerCount <= 0 {
		workerCount = 4
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.worker(ctx)
		}()
	}
	go func() {
		wg.Wait()
		close(b.doneCh)
	}()

	return nil
}

// Stop halts the worker pool and waits for in-flight handlers to finish.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	b.mu.Unlock()

	<-b.doneCh
}

// Publish enqueues a committed entry for asynchronous delivery. If the
// queue is full the event is dropped and counted, never blocking the
// caller.
func (b *Bus) Publish(entry ledger.SealedJournalEntry) {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()
	if !running {
		return
	}

	select {
	case b.queue <- entry:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		b.log.Warn(context.Background(), "eventbus queue full, entry dropped", map[string]interface{}{"sequence": entry.Sequence})
	}
}

func (b *Bus) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case entry := <-b.queue:
			b.deliver(ctx, entry)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, entry ledger.SealedJournalEntry) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h.HandleCommit(ctx, entry); err != nil {
			b.mu.Lock()
			b.failed++
			b.mu.Unlock()
			b.log.Error(ctx, "eventbus handler failed", err, map[string]interface{}{"sequence": entry.Sequence})
		}
	}

	b.mu.Lock()
	b.published++
	b.mu.Unlock()
}

// Stats reports bus counters.
type Stats struct {
	Running       bool
	HandlerCount  int
	QueueLen      int
	QueueCapacity int
	Published     int64
	Dropped       int64
	Failed        int64
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Running:       b.running,
		HandlerCount:  len(b.handlers),
		QueueLen:      len(b.queue),
		QueueCapacity: cap(b.queue),
		Published:     b.published,
		Dropped:       b.dropped,
		Failed:        b.failed,
	}
}
