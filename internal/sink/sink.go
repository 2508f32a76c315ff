// Package sink writes exported detection batches to durable or remote outputs.
package sink

import (
	"context"

	"go.uber.org/multierr"

	"github.com/e7canasta/ds-detect/internal/detection"
)

// Sink receives detection batches.
//
// Write may be called from the framework's streaming thread (the CSV sink) or
// from a bus subscriber goroutine (all other sinks). Implementations must be
// safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, batch detection.Batch) error
	Close() error
}

// Multi writes every batch to all sinks in order.
//
// Every sink is attempted even if an earlier one fails; errors are combined.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, batch detection.Batch) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Write(ctx, batch))
	}
	return err
}

// Close implements Sink.
func (m Multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}
