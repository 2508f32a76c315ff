package detbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/ds-detect/internal/detection"
)

type subscriber struct {
	id    string
	ch    chan<- detection.Batch
	stats *SubscriberStats
}

type bus struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber
	totalPublished uint64
	closed         bool
}

// New creates a new detection bus.
func New() Bus {
	return &bus{
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a channel. The caller owns the channel; Close and
// Unsubscribe never close it.
func (b *bus) Subscribe(id string, ch chan<- detection.Batch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	if ch == nil {
		return ErrNilChannel
	}

	b.subscribers[id] = &subscriber{
		id:    id,
		ch:    ch,
		stats: &SubscriberStats{},
	}
	return nil
}

// Publish distributes batch to all subscribers without blocking.
func (b *bus) Publish(batch detection.Batch) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	atomic.AddUint64(&b.totalPublished, 1)

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- batch:
			atomic.AddUint64(&sub.stats.Sent, 1)
		default:
			atomic.AddUint64(&sub.stats.Dropped, 1)
			slog.Debug("detbus: dropping batch, subscriber full",
				"subscriber", sub.id,
				"seq", batch.Seq,
				"trace_id", batch.TraceID,
			)
		}
	}
}

// Unsubscribe removes a subscriber.
func (b *bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Stats returns a snapshot for every subscriber.
func (b *bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := BusStats{
		TotalPublished: atomic.LoadUint64(&b.totalPublished),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, sub := range b.subscribers {
		stats.Subscribers[id] = SubscriberStats{
			Sent:    atomic.LoadUint64(&sub.stats.Sent),
			Dropped: atomic.LoadUint64(&sub.stats.Dropped),
		}
	}
	return stats
}

// Close shuts down the bus. Further publishes are ignored; Stats keeps
// reporting the final counters.
func (b *bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
}

// Drain feeds batches from ch into w until ch is closed or ctx is done.
//
// Write errors are logged and counted in the returned value; they never stop
// the drain.
func Drain(ctx context.Context, id string, ch <-chan detection.Batch, w Writer) (failed uint64) {
	for {
		select {
		case <-ctx.Done():
			return failed
		case batch, ok := <-ch:
			if !ok {
				return failed
			}
			if err := w.Write(ctx, batch); err != nil {
				failed++
				slog.Warn("detbus: subscriber write failed",
					"subscriber", id,
					"seq", batch.Seq,
					"trace_id", batch.TraceID,
					"error", err,
				)
			}
		}
	}
}
