package gstpipe

import (
	"fmt"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory represents the classification of GStreamer errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryResource indicates input/output failures (missing file, permissions, device)
	ErrCategoryResource ErrorCategory = iota
	// ErrCategoryCodec indicates decode or caps negotiation failures
	ErrCategoryCodec
	// ErrCategoryInference indicates nvinfer failures (model, engine, config)
	ErrCategoryInference
	// ErrCategoryTracker indicates nvtracker failures (library, config)
	ErrCategoryTracker
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// Categories lists every category in counter order.
var Categories = []ErrorCategory{
	ErrCategoryResource,
	ErrCategoryCodec,
	ErrCategoryInference,
	ErrCategoryTracker,
	ErrCategoryUnknown,
}

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryResource:
		return "resource"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryInference:
		return "inference"
	case ErrCategoryTracker:
		return "tracker"
	default:
		return "unknown"
	}
}

// PipelineError is returned by MonitorPipelineBus when the bus reports an error.
type PipelineError struct {
	Category ErrorCategory
	Source   string
	Message  string
	Debug    string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error [%s] from %s: %s", e.Category, e.Source, e.Message)
}

// ClassifyGStreamerError categorizes a bus error for telemetry.
//
// go-gst's GError does not expose Domain(), so classification relies on the
// message and debug string.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return Classify(gerr.Error(), gerr.DebugString())
}

// Classify categorizes an error from its message and debug string.
//
// Tracker and inference keywords are checked before the generic codec and
// resource ones.
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, trackerKeywords):
		return ErrCategoryTracker
	case containsAny(combined, inferenceKeywords):
		return ErrCategoryInference
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	default:
		return ErrCategoryUnknown
	}
}

var trackerKeywords = []string{
	"nvtracker",
	"tracker",
	"ll-lib-file",
	"ll-config-file",
	"nvdcf",
	"multiobjecttracker",
}

var inferenceKeywords = []string{
	"nvinfer",
	"nvdsinfer",
	"tensorrt",
	"engine",
	"onnx",
	"model",
	"config-file-path",
	"infer",
}

var codecKeywords = []string{
	"codec",
	"decode",
	"format",
	"negotiation",
	"not negotiated",
	"caps",
	"h264",
	"h265",
	"no decoder",
	"missing plugin",
	"demux",
	"typefind",
}

var resourceKeywords = []string{
	"resource",
	"no such file",
	"could not open",
	"could not read",
	"not found",
	"permission denied",
	"no space",
	"display",
	"egl",
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
