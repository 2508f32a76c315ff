package detbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/ds-detect/internal/detection"
)

// TestBasicPublishSubscribe verifies basic functionality.
func TestBasicPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan detection.Batch, 10)
	if err := bus.Subscribe("test", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Publish(detection.Batch{Seq: 1, TraceID: "a"})

	select {
	case received := <-ch:
		if received.Seq != 1 {
			t.Errorf("Expected seq 1, got %d", received.Seq)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for batch")
	}
}

// TestNonBlockingPublish verifies Publish never blocks on a full subscriber.
func TestNonBlockingPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan detection.Batch, 1)
	bus.Subscribe("slow", ch)

	done := make(chan bool)
	go func() {
		bus.Publish(detection.Batch{Seq: 1})
		bus.Publish(detection.Batch{Seq: 2})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked (should be non-blocking)")
	}

	if received := <-ch; received.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", received.Seq)
	}

	stats := bus.Stats()
	sub := stats.Subscribers["slow"]
	if sub.Sent != 1 || sub.Dropped != 1 {
		t.Errorf("Expected 1 sent / 1 dropped, got %+v", sub)
	}
	if stats.TotalPublished != 2 {
		t.Errorf("Expected 2 published, got %d", stats.TotalPublished)
	}
}

func TestSubscribeErrors(t *testing.T) {
	bus := New()

	ch := make(chan detection.Batch, 1)
	if err := bus.Subscribe("a", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := bus.Subscribe("a", ch); !errors.Is(err, ErrSubscriberExists) {
		t.Errorf("expected ErrSubscriberExists, got %v", err)
	}
	if err := bus.Subscribe("b", nil); !errors.Is(err, ErrNilChannel) {
		t.Errorf("expected ErrNilChannel, got %v", err)
	}
	if err := bus.Unsubscribe("missing"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("expected ErrSubscriberNotFound, got %v", err)
	}

	bus.Close()
	if err := bus.Subscribe("c", ch); !errors.Is(err, ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}

	// Publish after close is ignored
	bus.Publish(detection.Batch{Seq: 1})
	if len(ch) != 0 {
		t.Errorf("publish after close must not deliver")
	}
	bus.Close()
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan detection.Batch, 4)
	bus.Subscribe("a", ch)
	bus.Publish(detection.Batch{Seq: 1})
	if err := bus.Unsubscribe("a"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	bus.Publish(detection.Batch{Seq: 2})

	if len(ch) != 1 {
		t.Errorf("expected exactly 1 delivered batch, got %d", len(ch))
	}
}

type countingWriter struct {
	mu    sync.Mutex
	seqs  []uint64
	failN uint64
}

func (w *countingWriter) Write(_ context.Context, b detection.Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seqs = append(w.seqs, b.Seq)
	if b.Seq <= w.failN {
		return errors.New("write failed")
	}
	return nil
}

func TestDrain_DeliversInOrderUntilClosed(t *testing.T) {
	ch := make(chan detection.Batch, 5)
	for i := uint64(1); i <= 5; i++ {
		ch <- detection.Batch{Seq: i}
	}
	close(ch)

	w := &countingWriter{failN: 2}
	failed := Drain(context.Background(), "w", ch, w)

	if failed != 2 {
		t.Errorf("expected 2 failed writes, got %d", failed)
	}
	if len(w.seqs) != 5 {
		t.Fatalf("expected 5 writes, got %d", len(w.seqs))
	}
	for i, seq := range w.seqs {
		if seq != uint64(i+1) {
			t.Errorf("write %d has seq %d", i, seq)
		}
	}
}

func TestDrain_StopsOnContextCancel(t *testing.T) {
	ch := make(chan detection.Batch)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Drain(ctx, "w", ch, &countingWriter{})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after cancel")
	}
}
