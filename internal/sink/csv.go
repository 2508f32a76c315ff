package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/e7canasta/ds-detect/internal/detection"
)

// BaseColumns are the columns every CSV row carries, in order.
var BaseColumns = []string{
	"class_id",
	"confidence",
	"bbox_left",
	"bbox_top",
	"bbox_width",
	"bbox_height",
}

// ExtendedColumns are appended to BaseColumns when CSVOptions.Extended is set.
var ExtendedColumns = []string{
	"frame_num",
	"source_id",
	"object_id",
	"label",
	"trace_id",
}

// CSVOptions controls the CSV layout
type CSVOptions struct {
	// Header writes a header row, but only when the file is empty
	Header bool
	// Extended adds frame/tracker/label columns after the base columns
	Extended bool
}

// CSV appends detections to a file.
//
// The file is opened in append mode on every Write and closed afterwards, so
// rows written by earlier runs (or earlier flushes) are never touched.
type CSV struct {
	path string
	opts CSVOptions

	mu   sync.Mutex
	rows uint64
}

// NewCSV creates a CSV sink for path. The file is created on first write.
func NewCSV(path string, opts CSVOptions) (*CSV, error) {
	if path == "" {
		return nil, fmt.Errorf("sink: csv path is required")
	}
	return &CSV{path: path, opts: opts}, nil
}

// Path returns the output file path.
func (c *CSV) Path() string {
	return c.path
}

// Rows returns the number of rows written by this sink (header excluded).
func (c *CSV) Rows() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

// Write implements Sink. Empty batches are a no-op and do not create the file.
func (c *CSV) Write(_ context.Context, batch detection.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sink: failed to open csv: %w", err)
	}

	w := csv.NewWriter(f)

	if c.opts.Header {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return fmt.Errorf("sink: failed to stat csv: %w", err)
		}
		if info.Size() == 0 {
			if err := w.Write(c.columns()); err != nil {
				f.Close()
				return fmt.Errorf("sink: failed to write csv header: %w", err)
			}
		}
	}

	for _, d := range batch.Detections {
		if err := w.Write(c.record(d, batch.TraceID)); err != nil {
			f.Close()
			return fmt.Errorf("sink: failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("sink: failed to flush csv: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("sink: failed to close csv: %w", err)
	}

	c.rows += uint64(batch.Len())
	return nil
}

// Close implements Sink. The file is not held open between writes.
func (c *CSV) Close() error {
	return nil
}

func (c *CSV) columns() []string {
	cols := append([]string{}, BaseColumns...)
	if c.opts.Extended {
		cols = append(cols, ExtendedColumns...)
	}
	return cols
}

func (c *CSV) record(d detection.Detection, traceID string) []string {
	rec := []string{
		strconv.Itoa(d.ClassID),
		formatFloat(d.Confidence),
		formatFloat(d.Left),
		formatFloat(d.Top),
		formatFloat(d.Width),
		formatFloat(d.Height),
	}
	if c.opts.Extended {
		rec = append(rec,
			strconv.Itoa(d.FrameNum),
			strconv.FormatUint(uint64(d.SourceID), 10),
			strconv.FormatUint(d.ObjectID, 10),
			d.Label,
			traceID,
		)
	}
	return rec
}

// formatFloat prints the shortest decimal that round-trips the float32.
func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
