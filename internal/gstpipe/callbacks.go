package gstpipe

import (
	"fmt"
	"log/slog"
	"strings"
	"unsafe"

	"github.com/tinyzimmer/go-gst/gst"
)

// BufferFunc receives the raw GstBuffer pointer of every buffer crossing a probe.
// The pointer is only valid for the duration of the call.
type BufferFunc func(buf unsafe.Pointer)

// OnPadAdded is called by GStreamer when decodebin exposes a new source pad
//
// decodebin only knows its outputs after typefinding, so the converter is
// linked here. The link is made only once (the sink pad must still be
// unlinked) and only for video pads; audio and other streams are ignored.
func OnPadAdded(srcPad *gst.Pad, sinkElement *gst.Element) {
	capsStr := padCaps(srcPad)
	slog.Debug("gstpipe: pad-added signal received", "pad", srcPad.GetName(), "caps", capsStr)

	if !isVideoCaps(capsStr) {
		slog.Debug("gstpipe: ignoring non-video decoder pad", "pad", srcPad.GetName(), "caps", capsStr)
		return
	}

	sinkPad := sinkElement.GetStaticPad("sink")
	if sinkPad == nil {
		slog.Error("gstpipe: failed to get sink pad", "element", sinkElement.GetName())
		return
	}
	if sinkPad.IsLinked() {
		slog.Debug("gstpipe: converter already linked, skipping pad", "pad", srcPad.GetName())
		return
	}

	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Error("gstpipe: failed to link pads",
			"src_pad", srcPad.GetName(),
			"sink_pad", sinkPad.GetName(),
			"ret", ret,
		)
		return
	}

	slog.Debug("gstpipe: pads linked successfully",
		"src_pad", srcPad.GetName(),
		"sink_pad", sinkPad.GetName(),
	)
}

// InstallProbe attaches a buffer probe to element's sink pad.
//
// The probe always returns PadProbeOK. fn never sees nil buffers.
func InstallProbe(element *gst.Element, fn BufferFunc) error {
	sinkPad := element.GetStaticPad("sink")
	if sinkPad == nil {
		return fmt.Errorf("failed to get sink pad from %s", element.GetName())
	}

	sinkPad.AddProbe(gst.PadProbeTypeBuffer, func(pad *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		buffer := info.GetBuffer()
		if buffer == nil {
			return gst.PadProbeOK
		}
		fn(unsafe.Pointer(buffer.Instance()))
		return gst.PadProbeOK
	})

	slog.Debug("gstpipe: buffer probe installed", "element", element.GetName(), "pad", "sink")
	return nil
}

func padCaps(pad *gst.Pad) string {
	caps := pad.GetCurrentCaps()
	if caps == nil {
		caps = pad.QueryCaps(nil)
	}
	if caps == nil {
		return ""
	}
	return caps.String()
}

// isVideoCaps reports whether a decoder pad should feed the converter.
// Unknown caps (empty) are linked, matching a plain decodebin setup.
func isVideoCaps(caps string) bool {
	if caps == "" {
		return true
	}
	return strings.HasPrefix(caps, "video/")
}
