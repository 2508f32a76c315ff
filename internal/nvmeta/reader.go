package nvmeta

import (
	"errors"
	"fmt"
	"log/slog"
	"unsafe"
)

var (
	// ErrUnsupported is returned by a reader whose entry point is not available
	// in this build or framework version.
	ErrUnsupported = errors.New("nvmeta: entry point unsupported")
	// ErrNilBuffer is returned when the probe hands over a nil GstBuffer.
	ErrNilBuffer = errors.New("nvmeta: nil buffer")
)

// Reader extracts batch metadata from a GstBuffer.
//
// buf is a *GstBuffer owned by the framework. It is only valid for the duration
// of the probe callback, so implementations must copy everything they return.
//
// A reader returns (nil, nil) when the buffer carries no batch metadata.
type Reader interface {
	Name() string
	ReadBatch(buf unsafe.Pointer) (*BatchMeta, error)
}

// Chain tries several readers in order.
//
// The next reader is tried when the current one reports ErrUnsupported or finds
// no metadata. Any other error stops the chain.
type Chain struct {
	readers []Reader
}

// NewChain builds a fallback chain over readers.
func NewChain(readers ...Reader) *Chain {
	return &Chain{readers: readers}
}

// Name implements Reader.
func (c *Chain) Name() string {
	return "chain"
}

// Readers returns the names of the chained readers in order.
func (c *Chain) Readers() []string {
	names := make([]string, 0, len(c.readers))
	for _, r := range c.readers {
		names = append(names, r.Name())
	}
	return names
}

// ReadBatch implements Reader.
func (c *Chain) ReadBatch(buf unsafe.Pointer) (*BatchMeta, error) {
	if buf == nil {
		return nil, ErrNilBuffer
	}

	unsupported := 0
	for _, r := range c.readers {
		batch, err := r.ReadBatch(buf)
		switch {
		case errors.Is(err, ErrUnsupported):
			unsupported++
			continue
		case err != nil:
			return nil, fmt.Errorf("nvmeta: %s: %w", r.Name(), err)
		case batch == nil:
			slog.Debug("nvmeta: no batch meta from reader, trying next", "reader", r.Name())
			continue
		}
		return batch, nil
	}

	if len(c.readers) > 0 && unsupported == len(c.readers) {
		return nil, ErrUnsupported
	}
	return nil, nil
}

// DefaultReader returns the reader chain for this build.
func DefaultReader() Reader {
	return NewChain(platformReaders()...)
}
