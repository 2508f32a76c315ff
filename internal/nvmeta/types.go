package nvmeta

import "github.com/e7canasta/ds-detect/internal/detection"

// ObjectMeta is a Go copy of the fields read from NvDsObjectMeta.
type ObjectMeta struct {
	ClassID    int
	ObjectID   uint64
	Confidence float32
	Left       float32
	Top        float32
	Width      float32
	Height     float32
	Label      string
}

// FrameMeta is a Go copy of NvDsFrameMeta and its object list.
type FrameMeta struct {
	FrameNum int
	SourceID uint32
	BatchID  uint32
	PTS      uint64
	Objects  []ObjectMeta
}

// BatchMeta is a Go copy of NvDsBatchMeta.
type BatchMeta struct {
	Frames []FrameMeta
}

// NumObjects returns the total object count across all frames.
func (b *BatchMeta) NumObjects() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, f := range b.Frames {
		n += len(f.Objects)
	}
	return n
}

// Detections flattens the batch into detection records, frame by frame.
func (b *BatchMeta) Detections() []detection.Detection {
	if b == nil {
		return nil
	}

	out := make([]detection.Detection, 0, b.NumObjects())
	for _, f := range b.Frames {
		for _, o := range f.Objects {
			out = append(out, detection.Detection{
				ClassID:    o.ClassID,
				Confidence: o.Confidence,
				Left:       o.Left,
				Top:        o.Top,
				Width:      o.Width,
				Height:     o.Height,
				FrameNum:   f.FrameNum,
				SourceID:   f.SourceID,
				ObjectID:   o.ObjectID,
				Label:      o.Label,
			})
		}
	}
	return out
}
