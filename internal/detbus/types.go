package detbus

import (
	"context"
	"errors"

	"github.com/e7canasta/ds-detect/internal/detection"
)

var (
	ErrBusClosed          = errors.New("detbus: bus is closed")
	ErrSubscriberExists   = errors.New("detbus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("detbus: subscriber not found")
	ErrNilChannel         = errors.New("detbus: nil channel provided")
)

// SubscriberStats tracks batch distribution metrics
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// BusStats is a snapshot of all subscribers
type BusStats struct {
	TotalPublished uint64
	Subscribers    map[string]SubscriberStats
}

// Writer consumes batches delivered to a subscriber.
type Writer interface {
	Write(ctx context.Context, batch detection.Batch) error
}

// Bus distributes detection batches to multiple subscribers.
//
// Publish never blocks: a subscriber whose channel is full loses the batch
// (drop-new) and the drop is counted.
type Bus interface {
	Subscribe(id string, ch chan<- detection.Batch) error
	Publish(batch detection.Batch)
	Unsubscribe(id string) error
	Stats() BusStats
	Close()
}
