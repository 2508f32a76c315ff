// Package dsdetect runs a DeepStream object-detection pipeline over a video
// file and exports every detection to an append-only CSV file.
//
// The pipeline is assembled from GStreamer and NVIDIA DeepStream elements:
//
//	filesrc → decodebin → nvvideoconvert → nvstreammux → nvinfer → nvtracker →
//	nvdsosd → nvvideoconvert → nveglglessink
//
// A buffer probe on the OSD sink pad reads the DeepStream batch metadata and
// appends one CSV row per detected object. Additional sinks (SQLite, MQTT)
// receive the same batches asynchronously through a non-blocking bus.
//
// # Quick Start
//
//	cfg := dsdetect.DefaultConfig()
//	cfg.InputPath = "/data/raw_video.mp4"
//
//	p, err := dsdetect.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Run blocks until end of stream, a pipeline error, or ctx cancellation
//	if err := p.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # CSV Format
//
// One row per object, no header by default:
//
//	class_id,confidence,bbox_left,bbox_top,bbox_width,bbox_height
//	0,0.87,412.5,188,96.25,240
//
// Config.CSVHeader writes a header when the file is empty. Config.CSVExtended
// appends frame_num, source_id, object_id, label and trace_id.
//
// # Metadata Access
//
// Batch metadata is read through cgo against the DeepStream SDK headers, which
// requires building with the deepstream tag:
//
//	go build -tags deepstream ./cmd/ds-detect
//
// Without the tag the binary still builds and runs, but every probed buffer is
// counted as a probe fault and no detections are exported.
//
// # Error Handling
//
// Faults inside the probe (metadata errors, write errors, panics) are counted
// and logged; the pipeline keeps running. Errors posted on the pipeline bus end
// Run with a *PipelineError carrying the error category (resource, codec,
// inference, tracker, unknown). There is no retry: end of stream is terminal
// for a file input.
package dsdetect
