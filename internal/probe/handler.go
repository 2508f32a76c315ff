// Package probe turns buffers crossing the OSD sink pad into detection batches.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"

	"github.com/e7canasta/ds-detect/internal/detection"
	"github.com/e7canasta/ds-detect/internal/fpsstats"
	"github.com/e7canasta/ds-detect/internal/nvmeta"
)

// faultLogEvery limits fault logging to the first fault and then every Nth.
const faultLogEvery = 1000

// Writer persists a batch synchronously, inside the probe callback.
type Writer interface {
	Write(ctx context.Context, batch detection.Batch) error
}

// PublishFunc hands a batch to asynchronous consumers. It must not block.
type PublishFunc func(batch detection.Batch)

// Stats contains probe counters
type Stats struct {
	// BuffersProbed is the number of non-nil buffers seen
	BuffersProbed uint64
	// Batches is the number of buffers that produced at least one detection
	Batches uint64
	// Objects is the total number of detections exported
	Objects uint64
	// Faults counts reader errors, write errors and recovered panics
	Faults uint64
	// FPS is computed over the most recent probe timestamps
	FPS fpsstats.Stats
}

// Handler is the body of the buffer probe.
//
// HandleBuffer never panics and never blocks on asynchronous consumers, so a
// probe-level fault can never stop the pipeline.
type Handler struct {
	reader  nvmeta.Reader
	writer  Writer
	publish PublishFunc
	window  *fpsstats.Window
	now     func() time.Time

	buffers uint64
	batches uint64
	objects uint64
	faults  uint64
	seq     uint64
}

// NewHandler creates a probe handler. writer and publish may be nil.
func NewHandler(reader nvmeta.Reader, writer Writer, publish PublishFunc) *Handler {
	if reader == nil {
		reader = nvmeta.DefaultReader()
	}
	return &Handler{
		reader:  reader,
		writer:  writer,
		publish: publish,
		window:  fpsstats.NewWindow(fpsstats.DefaultWindow),
		now:     time.Now,
	}
}

// HandleBuffer processes one GstBuffer. buf is only valid during the call.
func (h *Handler) HandleBuffer(buf unsafe.Pointer) {
	if buf == nil {
		return
	}

	now := h.now()
	atomic.AddUint64(&h.buffers, 1)
	h.window.Add(now)

	defer func() {
		if r := recover(); r != nil {
			h.fault("panic in probe", fmt.Errorf("%v", r))
		}
	}()

	meta, err := h.reader.ReadBatch(buf)
	if err != nil {
		if errors.Is(err, nvmeta.ErrUnsupported) {
			h.fault("batch metadata unavailable", err)
		} else {
			h.fault("failed to read batch metadata", err)
		}
		return
	}
	if meta.NumObjects() == 0 {
		return
	}

	batch := detection.Batch{
		Seq:        atomic.AddUint64(&h.seq, 1),
		TraceID:    uuid.New().String(),
		Timestamp:  now,
		Detections: meta.Detections(),
	}

	if h.writer != nil {
		if err := h.writer.Write(context.Background(), batch); err != nil {
			h.fault("failed to write detections", err)
		}
	}
	if h.publish != nil {
		h.publish(batch)
	}

	atomic.AddUint64(&h.batches, 1)
	atomic.AddUint64(&h.objects, uint64(batch.Len()))

	slog.Debug("probe: detected objects",
		"count", batch.Len(),
		"seq", batch.Seq,
		"trace_id", batch.TraceID,
	)
}

// Stats returns a snapshot of the probe counters.
func (h *Handler) Stats() Stats {
	return Stats{
		BuffersProbed: atomic.LoadUint64(&h.buffers),
		Batches:       atomic.LoadUint64(&h.batches),
		Objects:       atomic.LoadUint64(&h.objects),
		Faults:        atomic.LoadUint64(&h.faults),
		FPS:           h.window.Snapshot(),
	}
}

// BuffersCounter exposes the buffer counter for bus log lines.
func (h *Handler) BuffersCounter() *uint64 {
	return &h.buffers
}

func (h *Handler) fault(msg string, err error) {
	n := atomic.AddUint64(&h.faults, 1)
	if n == 1 || n%faultLogEvery == 0 {
		slog.Warn("probe: "+msg,
			"error", err,
			"reader", h.reader.Name(),
			"faults", n,
		)
	}
}
