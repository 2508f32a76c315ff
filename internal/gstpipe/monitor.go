package gstpipe

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCounters holds atomic counters for bus errors and warnings
type ErrorCounters struct {
	Resource  *uint64
	Codec     *uint64
	Inference *uint64
	Tracker   *uint64
	Unknown   *uint64
	Warnings  *uint64
}

// Count increments the counter for category.
func (c *ErrorCounters) Count(category ErrorCategory) {
	var counter *uint64
	switch category {
	case ErrCategoryResource:
		counter = c.Resource
	case ErrCategoryCodec:
		counter = c.Codec
	case ErrCategoryInference:
		counter = c.Inference
	case ErrCategoryTracker:
		counter = c.Tracker
	default:
		counter = c.Unknown
	}
	if counter != nil {
		atomic.AddUint64(counter, 1)
	}
}

// MonitorMetrics holds run metrics included in bus log lines
type MonitorMetrics struct {
	InputPath     string
	BuffersProbed *uint64
	StartedAt     time.Time
}

// MonitorPipelineBus polls the pipeline bus until the run ends
//
//   - EOS: returns nil
//   - Error: classifies, counts and returns a *PipelineError
//   - Warning: logs and counts, keeps running
//   - StateChanged on the pipeline: logged at debug level
//   - ctx cancelled: returns nil
//
// The caller is responsible for setting the pipeline to NULL afterwards.
func MonitorPipelineBus(
	ctx context.Context,
	pipeline *gst.Pipeline,
	counters *ErrorCounters,
	metrics *MonitorMetrics,
) error {
	if pipeline == nil {
		return fmt.Errorf("pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("gstpipe: context cancelled, stopping pipeline monitor")
			return nil

		default:
			// Poll for messages with short timeout for responsive shutdown
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				slog.Info("gstpipe: end of stream",
					"input", metrics.InputPath,
					"uptime", time.Since(metrics.StartedAt),
					"buffers_probed", loadCounter(metrics.BuffersProbed),
				)
				return nil

			case gst.MessageError:
				gerr := msg.ParseError()
				category := ClassifyGStreamerError(gerr)
				counters.Count(category)

				perr := &PipelineError{
					Category: category,
					Source:   msg.Source(),
					Message:  "unknown error",
				}
				if gerr != nil {
					perr.Message = gerr.Error()
					perr.Debug = gerr.DebugString()
				}

				slog.Error("gstpipe: pipeline error",
					"error", perr.Message,
					"debug", perr.Debug,
					"category", category.String(),
					"source", perr.Source,
					"input", metrics.InputPath,
					"uptime", time.Since(metrics.StartedAt),
					"buffers_probed", loadCounter(metrics.BuffersProbed),
				)
				return perr

			case gst.MessageWarning:
				if counters.Warnings != nil {
					atomic.AddUint64(counters.Warnings, 1)
				}
				attrs := []any{"source", msg.Source()}
				if gwarn := msg.ParseWarning(); gwarn != nil {
					attrs = append(attrs, "warning", gwarn.Error(), "debug", gwarn.DebugString())
				}
				slog.Warn("gstpipe: pipeline warning", attrs...)

			case gst.MessageStateChanged:
				if msg.Source() == pipeline.GetName() {
					old, new := msg.ParseStateChanged()
					slog.Debug("gstpipe: pipeline state changed",
						"from", old,
						"to", new,
					)
				}
			}
		}
	}
}

func loadCounter(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return atomic.LoadUint64(p)
}
