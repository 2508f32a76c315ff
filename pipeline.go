package dsdetect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/ds-detect/internal/detbus"
	"github.com/e7canasta/ds-detect/internal/gstpipe"
	"github.com/e7canasta/ds-detect/internal/nvmeta"
	"github.com/e7canasta/ds-detect/internal/probe"
	"github.com/e7canasta/ds-detect/internal/sink"
)

// Sink receives detection batches asynchronously.
type Sink interface {
	Write(ctx context.Context, batch Batch) error
	Close() error
}

// BatchMeta is the metadata a MetaReader copies out of a buffer.
type BatchMeta = nvmeta.BatchMeta

// MetaReader extracts batch metadata from a GstBuffer pointer.
type MetaReader = nvmeta.Reader

// Option configures a Pipeline
type Option func(*Pipeline)

// WithSink attaches an asynchronous sink fed through the detection bus.
// The pipeline closes the sink when Run returns.
func WithSink(name string, s Sink) Option {
	return func(p *Pipeline) {
		p.sinks = append(p.sinks, &namedSink{name: name, sink: s})
	}
}

// WithMetaReader replaces the default metadata reader chain.
func WithMetaReader(r MetaReader) Option {
	return func(p *Pipeline) {
		p.reader = r
	}
}

type namedSink struct {
	name   string
	sink   Sink
	failed uint64
}

// Pipeline implements Runner for a single video file
type Pipeline struct {
	cfg    Config
	sinks  []*namedSink
	reader MetaReader

	csv     *sink.CSV
	handler *probe.Handler
	bus     detbus.Bus

	// Lifecycle
	mu       sync.RWMutex
	state    State
	started  time.Time
	finished time.Time
	ran      atomic.Bool

	// Bus telemetry (atomic for thread-safety)
	errorsResource  uint64
	errorsCodec     uint64
	errorsInference uint64
	errorsTracker   uint64
	errorsUnknown   uint64
	warnings        uint64
}

// New creates a pipeline with fail-fast validation
//
// Validates configuration at construction time:
//   - InputPath and CSVPath must not be empty
//   - streammux dimensions and batch size must be positive
//   - InferConfigPath must not be empty
//   - tracker settings must be complete when the tracker is enabled
//   - sink names must be unique
//
// GStreamer availability is checked by Run.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("ds-detect: %w", err)
	}

	seen := make(map[string]bool, len(p.sinks))
	for _, s := range p.sinks {
		if s.name == "" {
			return nil, fmt.Errorf("ds-detect: sink name is required")
		}
		if s.sink == nil {
			return nil, fmt.Errorf("ds-detect: sink %q is nil", s.name)
		}
		if seen[s.name] {
			return nil, fmt.Errorf("ds-detect: duplicate sink %q", s.name)
		}
		seen[s.name] = true
	}

	csvSink, err := sink.NewCSV(cfg.CSVPath, sink.CSVOptions{
		Header:   cfg.CSVHeader,
		Extended: cfg.CSVExtended,
	})
	if err != nil {
		return nil, fmt.Errorf("ds-detect: %w", err)
	}

	if p.reader == nil {
		p.reader = nvmeta.DefaultReader()
	}

	p.cfg = cfg
	p.csv = csvSink
	p.bus = detbus.New()
	p.handler = probe.NewHandler(p.reader, csvSink, p.bus.Publish)

	if !nvmeta.Available() {
		slog.Warn("ds-detect: built without deepstream tag, no detections will be exported")
	}

	slog.Info("ds-detect: pipeline created",
		"input", cfg.InputPath,
		"csv", cfg.CSVPath,
		"mux", fmt.Sprintf("%dx%d", cfg.MuxWidth, cfg.MuxHeight),
		"tracker", cfg.TrackerEnabled,
		"headless", cfg.Headless,
		"reader", p.reader.Name(),
		"sinks", len(p.sinks),
	)

	return p, nil
}

func validateConfig(cfg *Config) error {
	if cfg.InputPath == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.CSVPath == "" {
		return fmt.Errorf("csv path is required")
	}
	if cfg.MuxWidth <= 0 || cfg.MuxHeight <= 0 {
		return fmt.Errorf("invalid streammux resolution %dx%d", cfg.MuxWidth, cfg.MuxHeight)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size %d (must be > 0)", cfg.BatchSize)
	}
	if cfg.BatchedPushTimeout < -1 {
		return fmt.Errorf("invalid batched push timeout %d (must be >= -1)", cfg.BatchedPushTimeout)
	}
	if cfg.InferConfigPath == "" {
		return fmt.Errorf("infer config path is required")
	}
	if cfg.TrackerEnabled {
		if cfg.TrackerWidth <= 0 || cfg.TrackerHeight <= 0 {
			return fmt.Errorf("invalid tracker resolution %dx%d", cfg.TrackerWidth, cfg.TrackerHeight)
		}
		if cfg.TrackerLibFile == "" {
			return fmt.Errorf("tracker ll-lib-file is required when the tracker is enabled")
		}
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return nil
}

// Run assembles the pipeline and blocks until it ends
//
// This method:
//  1. Starts one drain goroutine per asynchronous sink
//  2. Creates the GStreamer pipeline and connects decodebin's pad-added
//  3. Installs the metadata probe on the OSD sink pad
//  4. Sets PLAYING and monitors the bus until EOS, error or cancellation
//  5. Sets NULL, then drains and closes the asynchronous sinks
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.ran.CompareAndSwap(false, true) {
		return fmt.Errorf("ds-detect: pipeline already run")
	}

	if err := gstpipe.CheckAvailable(); err != nil {
		p.setState(StateFailed)
		p.stopSinks(nil)
		return fmt.Errorf("ds-detect: GStreamer not available: %w", err)
	}

	p.mu.Lock()
	p.started = time.Now()
	p.state = StateRunning
	p.mu.Unlock()

	drains := p.startSinks()

	runErr := p.runPipeline(ctx)

	p.setState(StateStopping)
	p.stopSinks(drains)

	p.mu.Lock()
	p.finished = time.Now()
	if runErr != nil {
		p.state = StateFailed
	} else {
		p.state = StateFinished
	}
	p.mu.Unlock()

	stats := p.Stats()
	slog.Info("ds-detect: pipeline stopped",
		"buffers_probed", stats.BuffersProbed,
		"batches", stats.Batches,
		"objects", stats.Objects,
		"csv_rows", stats.CSVRows,
		"probe_faults", stats.ProbeFaults,
		"uptime", stats.Uptime,
		"error", runErr,
	)

	return runErr
}

func (p *Pipeline) runPipeline(ctx context.Context) error {
	elements, err := gstpipe.CreatePipeline(gstpipe.PipelineConfig{
		InputPath:          p.cfg.InputPath,
		MuxWidth:           p.cfg.MuxWidth,
		MuxHeight:          p.cfg.MuxHeight,
		BatchSize:          p.cfg.BatchSize,
		BatchedPushTimeout: p.cfg.BatchedPushTimeout,
		InferConfigPath:    p.cfg.InferConfigPath,
		TrackerEnabled:     p.cfg.TrackerEnabled,
		TrackerWidth:       p.cfg.TrackerWidth,
		TrackerHeight:      p.cfg.TrackerHeight,
		TrackerLibFile:     p.cfg.TrackerLibFile,
		TrackerConfigFile:  p.cfg.TrackerConfigFile,
		RenderSink:         p.renderSink(),
	})
	if err != nil {
		return fmt.Errorf("ds-detect: failed to create pipeline: %w", err)
	}

	// NULL on every exit path; no probe callback runs after this returns
	defer func() {
		if err := gstpipe.DestroyPipeline(elements); err != nil {
			slog.Error("ds-detect: failed to destroy pipeline", "error", err)
		}
	}()

	converter := elements.Converter
	elements.Decoder.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		gstpipe.OnPadAdded(srcPad, converter)
	})

	if err := gstpipe.InstallProbe(elements.OSD, p.handler.HandleBuffer); err != nil {
		slog.Warn("ds-detect: metadata probe not installed, no detections will be exported", "error", err)
	}

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("ds-detect: failed to start pipeline: %w", err)
	}

	slog.Info("ds-detect: pipeline started", "input", p.cfg.InputPath)

	err = gstpipe.MonitorPipelineBus(ctx, elements.Pipeline,
		&gstpipe.ErrorCounters{
			Resource:  &p.errorsResource,
			Codec:     &p.errorsCodec,
			Inference: &p.errorsInference,
			Tracker:   &p.errorsTracker,
			Unknown:   &p.errorsUnknown,
			Warnings:  &p.warnings,
		},
		&gstpipe.MonitorMetrics{
			InputPath:     p.cfg.InputPath,
			BuffersProbed: p.handler.BuffersCounter(),
			StartedAt:     p.startedAt(),
		},
	)
	if err != nil {
		var perr *PipelineError
		if errors.As(err, &perr) {
			return fmt.Errorf("ds-detect: %w", perr)
		}
		return fmt.Errorf("ds-detect: pipeline monitor failed: %w", err)
	}
	return nil
}

type drain struct {
	sink *namedSink
	ch   chan Batch
	done chan struct{}
}

// startSinks subscribes every asynchronous sink to the detection bus.
func (p *Pipeline) startSinks() []drain {
	drains := make([]drain, 0, len(p.sinks))
	for _, s := range p.sinks {
		ch := make(chan Batch, p.cfg.SubscriberBuffer)
		if err := p.bus.Subscribe(s.name, ch); err != nil {
			slog.Error("ds-detect: failed to subscribe sink", "sink", s.name, "error", err)
			continue
		}

		d := drain{sink: s, ch: ch, done: make(chan struct{})}
		go func() {
			defer close(d.done)
			failed := detbus.Drain(context.Background(), d.sink.name, d.ch, countingWriter{d.sink})
			slog.Debug("ds-detect: sink drained", "sink", d.sink.name, "failed", failed)
		}()
		drains = append(drains, d)
	}
	return drains
}

// stopSinks closes the bus, lets the sinks drain within ShutdownTimeout and
// closes them.
func (p *Pipeline) stopSinks(drains []drain) {
	p.bus.Close()
	for _, d := range drains {
		close(d.ch)
	}

	deadline := time.After(p.cfg.ShutdownTimeout)
	for _, d := range drains {
		select {
		case <-d.done:
		case <-deadline:
			slog.Warn("ds-detect: shutdown timeout exceeded, sink still draining", "sink", d.sink.name)
		}
	}

	var closers sink.Multi
	for _, s := range p.sinks {
		closers = append(closers, s.sink)
	}
	closers = append(closers, p.csv)
	if err := closers.Close(); err != nil {
		slog.Error("ds-detect: failed to close sinks", "error", err)
	}
}

type countingWriter struct {
	s *namedSink
}

func (w countingWriter) Write(ctx context.Context, batch Batch) error {
	err := w.s.sink.Write(ctx, batch)
	if err != nil {
		atomic.AddUint64(&w.s.failed, 1)
	}
	return err
}

func (p *Pipeline) renderSink() string {
	if p.cfg.Headless {
		return gstpipe.RenderSinkFake
	}
	return gstpipe.RenderSinkEGL
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) startedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// Stats returns current pipeline statistics
//
// Thread-safe - uses atomic operations for counters.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	state := p.state
	var uptime time.Duration
	switch {
	case p.started.IsZero():
	case p.finished.IsZero():
		uptime = time.Since(p.started)
	default:
		uptime = p.finished.Sub(p.started)
	}
	p.mu.RUnlock()

	ps := p.handler.Stats()

	busStats := p.bus.Stats()
	sinks := make(map[string]SinkStats, len(p.sinks))
	for _, s := range p.sinks {
		sub := busStats.Subscribers[s.name]
		sinks[s.name] = SinkStats{
			Sent:    sub.Sent,
			Dropped: sub.Dropped,
			Failed:  atomic.LoadUint64(&s.failed),
		}
	}

	return Stats{
		State:         state,
		Uptime:        uptime,
		BuffersProbed: ps.BuffersProbed,
		Batches:       ps.Batches,
		Objects:       ps.Objects,
		ProbeFaults:   ps.Faults,
		CSVRows:       p.csv.Rows(),
		BusErrors: map[string]uint64{
			gstpipe.ErrCategoryResource.String():  atomic.LoadUint64(&p.errorsResource),
			gstpipe.ErrCategoryCodec.String():     atomic.LoadUint64(&p.errorsCodec),
			gstpipe.ErrCategoryInference.String(): atomic.LoadUint64(&p.errorsInference),
			gstpipe.ErrCategoryTracker.String():   atomic.LoadUint64(&p.errorsTracker),
			gstpipe.ErrCategoryUnknown.String():   atomic.LoadUint64(&p.errorsUnknown),
		},
		BusWarnings: atomic.LoadUint64(&p.warnings),
		FPS:         ps.FPS,
		Sinks:       sinks,
	}
}
