package detection

import "time"

// Detection is one object reported by the inference element for one frame.
//
// Values are copied out of framework-owned metadata, so a Detection stays valid
// after the probe callback that produced it returns.
type Detection struct {
	// ClassID is the class index assigned by the detector
	ClassID int
	// Confidence is the detector probability (0-1)
	Confidence float32
	// Left, Top, Width, Height describe the bounding box in pixels
	// (streammux output resolution)
	Left   float32
	Top    float32
	Width  float32
	Height float32

	// FrameNum is the frame number within its source
	FrameNum int
	// SourceID identifies the input stream in the batch
	SourceID uint32
	// ObjectID is the tracker id (untracked objects carry the framework's
	// untracked sentinel)
	ObjectID uint64
	// Label is the class label, if the inference config provides labels
	Label string
}

// Batch groups the detections exported by a single probe callback.
type Batch struct {
	// Seq is the monotonic sequence number of exported batches
	Seq uint64
	// TraceID is a unique identifier for correlating sinks
	TraceID string
	// Timestamp is when the probe callback ran
	Timestamp time.Time
	// Detections in metadata walk order (frame by frame, object by object)
	Detections []Detection
}

// Len returns the number of detections in the batch.
func (b Batch) Len() int {
	return len(b.Detections)
}
