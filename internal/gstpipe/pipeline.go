package gstpipe

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
)

const (
	// NVMMCaps keeps decoded frames in device memory ahead of the muxer.
	NVMMCaps = "video/x-raw(memory:NVMM)"
	// RGBACaps is what the render sink consumes.
	RGBACaps = "video/x-raw(memory:NVMM), format=RGBA"

	// MuxSinkPad is the request pad the single source feeds.
	MuxSinkPad = "sink_0"

	RenderSinkEGL  = "nveglglessink"
	RenderSinkFake = "fakesink"
)

// PipelineConfig contains configuration for DeepStream pipeline creation
type PipelineConfig struct {
	InputPath string

	MuxWidth           int
	MuxHeight          int
	BatchSize          int
	BatchedPushTimeout int // microseconds

	InferConfigPath string

	TrackerEnabled    bool
	TrackerWidth      int
	TrackerHeight     int
	TrackerLibFile    string
	TrackerConfigFile string

	RenderSink string // nveglglessink or fakesink
}

// PipelineElements holds references to the elements callers need after assembly
type PipelineElements struct {
	Pipeline  *gst.Pipeline
	Source    *gst.Element
	Decoder   *gst.Element
	Converter *gst.Element
	Mux       *gst.Element
	Infer     *gst.Element
	Tracker   *gst.Element // nil when the tracker is disabled
	OSD       *gst.Element
	Sink      *gst.Element
}

// CreatePipeline creates and configures the detection pipeline
//
// Pipeline structure:
//
//	filesrc → decodebin ⇢ nvvideoconvert → capsfilter(NVMM) → nvstreammux.sink_0 →
//	nvinfer → nvtracker → nvdsosd → nvvideoconvert → capsfilter(RGBA) → render sink
//
// decodebin pads are linked later by OnPadAdded. The pipeline is configured
// but NOT started (state remains NULL).
func CreatePipeline(cfg PipelineConfig) (*PipelineElements, error) {
	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("ds-detect-pipeline")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	source, err := newElement("filesrc", "source")
	if err != nil {
		return nil, err
	}
	source.SetProperty("location", cfg.InputPath)

	decoder, err := newElement("decodebin", "decoder")
	if err != nil {
		return nil, err
	}

	converter, err := newElement("nvvideoconvert", "converter")
	if err != nil {
		return nil, err
	}

	capsNVMM, err := newCapsFilter("caps_nvmm", NVMMCaps)
	if err != nil {
		return nil, err
	}

	mux, err := newElement("nvstreammux", "streammux")
	if err != nil {
		return nil, err
	}
	mux.SetProperty("width", uint(cfg.MuxWidth))
	mux.SetProperty("height", uint(cfg.MuxHeight))
	mux.SetProperty("batch-size", uint(cfg.BatchSize))
	mux.SetProperty("batched-push-timeout", cfg.BatchedPushTimeout)

	infer, err := newElement("nvinfer", "nvinfer")
	if err != nil {
		return nil, err
	}
	infer.SetProperty("config-file-path", cfg.InferConfigPath)

	var tracker *gst.Element
	if cfg.TrackerEnabled {
		tracker, err = newElement("nvtracker", "tracker")
		if err != nil {
			return nil, err
		}
		tracker.SetProperty("tracker-width", uint(cfg.TrackerWidth))
		tracker.SetProperty("tracker-height", uint(cfg.TrackerHeight))
		tracker.SetProperty("ll-lib-file", cfg.TrackerLibFile)
		tracker.SetProperty("ll-config-file", cfg.TrackerConfigFile)
	} else {
		slog.Info("gstpipe: tracker disabled, objects will carry no tracking ids")
	}

	osd, err := newElement("nvdsosd", "osd")
	if err != nil {
		return nil, err
	}

	outConverter, err := newElement("nvvideoconvert", "converter2")
	if err != nil {
		return nil, err
	}

	capsRGBA, err := newCapsFilter("caps_filter", RGBACaps)
	if err != nil {
		return nil, err
	}

	sinkFactory := cfg.RenderSink
	if sinkFactory == "" {
		sinkFactory = RenderSinkEGL
	}
	sink, err := newElement(sinkFactory, "sink")
	if err != nil {
		return nil, err
	}
	if sinkFactory == RenderSinkFake {
		sink.SetProperty("sync", false)
	}

	elements := []*gst.Element{source, decoder, converter, capsNVMM, mux, infer}
	if tracker != nil {
		elements = append(elements, tracker)
	}
	elements = append(elements, osd, outConverter, capsRGBA, sink)

	if err := pipeline.AddMany(elements...); err != nil {
		return nil, fmt.Errorf("failed to add elements to pipeline: %w", err)
	}

	if err := source.Link(decoder); err != nil {
		return nil, fmt.Errorf("failed to link source to decoder: %w", err)
	}
	if err := converter.Link(capsNVMM); err != nil {
		return nil, fmt.Errorf("failed to link converter to nvmm caps: %w", err)
	}

	if err := linkMuxSinkPad(capsNVMM, mux); err != nil {
		return nil, err
	}

	// mux → infer [→ tracker] → osd → converter2 → caps → sink
	downstream := []*gst.Element{mux, infer}
	if tracker != nil {
		downstream = append(downstream, tracker)
	}
	downstream = append(downstream, osd, outConverter, capsRGBA, sink)

	if err := gst.ElementLinkMany(downstream...); err != nil {
		return nil, fmt.Errorf("failed to link inference chain: %w", err)
	}

	slog.Info("gstpipe: pipeline created",
		"input", cfg.InputPath,
		"mux", fmt.Sprintf("%dx%d", cfg.MuxWidth, cfg.MuxHeight),
		"batch_size", cfg.BatchSize,
		"infer_config", cfg.InferConfigPath,
		"tracker", cfg.TrackerEnabled,
		"render_sink", sinkFactory,
	)

	return &PipelineElements{
		Pipeline:  pipeline,
		Source:    source,
		Decoder:   decoder,
		Converter: converter,
		Mux:       mux,
		Infer:     infer,
		Tracker:   tracker,
		OSD:       osd,
		Sink:      sink,
	}, nil
}

// DestroyPipeline sets the pipeline to NULL and releases its resources.
// Safe to call on nil.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}

	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}

	return nil
}

// CheckAvailable verifies GStreamer can build elements.
func CheckAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)

	return nil
}

// linkMuxSinkPad feeds the caps filter into the muxer's request pad.
// nvstreammux exposes no static sink pads.
func linkMuxSinkPad(upstream, mux *gst.Element) error {
	sinkPad := mux.GetRequestPad(MuxSinkPad)
	if sinkPad == nil {
		return fmt.Errorf("failed to get request pad %s from nvstreammux", MuxSinkPad)
	}
	srcPad := upstream.GetStaticPad("src")
	if srcPad == nil {
		return fmt.Errorf("failed to get src pad from %s", upstream.GetName())
	}
	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		return fmt.Errorf("failed to link %s to nvstreammux.%s: %v", upstream.GetName(), MuxSinkPad, ret)
	}
	return nil
}

func newElement(factory, name string) (*gst.Element, error) {
	elem, err := gst.NewElementWithName(factory, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", factory, err)
	}
	return elem, nil
}

func newCapsFilter(name, caps string) (*gst.Element, error) {
	filter, err := newElement("capsfilter", name)
	if err != nil {
		return nil, err
	}
	filter.SetProperty("caps", gst.NewCapsFromString(caps))
	return filter, nil
}
