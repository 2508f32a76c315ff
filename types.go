package dsdetect

import (
	"time"

	"github.com/e7canasta/ds-detect/internal/detection"
	"github.com/e7canasta/ds-detect/internal/fpsstats"
	"github.com/e7canasta/ds-detect/internal/gstpipe"
)

// Detection is one exported object.
type Detection = detection.Detection

// Batch groups the detections of one probed buffer.
type Batch = detection.Batch

// FPSStats summarizes the probe rate over a sliding window.
type FPSStats = fpsstats.Stats

// PipelineError is returned by Run when the pipeline bus reports an error.
type PipelineError = gstpipe.PipelineError

// Default values reproduce the reference deployment layout
const (
	DefaultInputPath          = "../videolar/raw_video.mp4"
	DefaultCSVPath            = "detections.csv"
	DefaultMuxWidth           = 1920
	DefaultMuxHeight          = 1080
	DefaultBatchSize          = 1
	DefaultBatchedPushTimeout = 4000000
	DefaultInferConfigPath    = "../DeepStream-Yolo/config_infer_primary_yoloV8.txt"
	DefaultTrackerWidth       = 640
	DefaultTrackerHeight      = 384
	DefaultTrackerLibFile     = "/opt/nvidia/deepstream/deepstream/lib/libnvds_nvmultiobjecttracker.so"
	DefaultTrackerConfigFile  = "/opt/nvidia/deepstream/deepstream/samples/configs/deepstream-app/config_tracker_NvDCF_perf.yml"
	DefaultSubscriberBuffer   = 64
	DefaultShutdownTimeout    = 5 * time.Second
)

// Config contains the pipeline configuration
type Config struct {
	// InputPath is the video file to process (required)
	InputPath string

	// CSVPath is the append-only detections file (required)
	CSVPath string
	// CSVHeader writes a header row when the file is empty
	CSVHeader bool
	// CSVExtended adds frame_num, source_id, object_id, label, trace_id
	CSVExtended bool

	// MuxWidth and MuxHeight are the nvstreammux output resolution
	MuxWidth  int
	MuxHeight int
	// BatchSize is the nvstreammux batch size
	BatchSize int
	// BatchedPushTimeout is the nvstreammux batched-push-timeout in microseconds
	BatchedPushTimeout int

	// InferConfigPath is the nvinfer config-file-path
	InferConfigPath string

	// TrackerEnabled inserts nvtracker between nvinfer and nvdsosd
	TrackerEnabled    bool
	TrackerWidth      int
	TrackerHeight     int
	TrackerLibFile    string
	TrackerConfigFile string

	// Headless replaces nveglglessink with fakesink
	Headless bool

	// SubscriberBuffer is the channel size of each asynchronous sink
	SubscriberBuffer int
	// ShutdownTimeout bounds how long Run waits for asynchronous sinks to drain
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config equal to the reference deployment.
func DefaultConfig() Config {
	return Config{
		InputPath:          DefaultInputPath,
		CSVPath:            DefaultCSVPath,
		MuxWidth:           DefaultMuxWidth,
		MuxHeight:          DefaultMuxHeight,
		BatchSize:          DefaultBatchSize,
		BatchedPushTimeout: DefaultBatchedPushTimeout,
		InferConfigPath:    DefaultInferConfigPath,
		TrackerEnabled:     true,
		TrackerWidth:       DefaultTrackerWidth,
		TrackerHeight:      DefaultTrackerHeight,
		TrackerLibFile:     DefaultTrackerLibFile,
		TrackerConfigFile:  DefaultTrackerConfigFile,
		SubscriberBuffer:   DefaultSubscriberBuffer,
		ShutdownTimeout:    DefaultShutdownTimeout,
	}
}

// State is the lifecycle state of a Pipeline
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateFinished
	StateFailed
)

// String returns a human-readable string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SinkStats reports delivery to one asynchronous sink
type SinkStats struct {
	// Sent is the number of batches queued for the sink
	Sent uint64
	// Dropped is the number of batches lost because the sink fell behind
	Dropped uint64
	// Failed is the number of batches the sink could not write
	Failed uint64
}

// Stats contains current pipeline statistics
type Stats struct {
	// State is the pipeline lifecycle state
	State State
	// Uptime is the time since Run started (frozen once Run returns)
	Uptime time.Duration

	// BuffersProbed is the number of buffers seen by the OSD probe
	BuffersProbed uint64
	// Batches is the number of buffers that produced detections
	Batches uint64
	// Objects is the total number of detections exported
	Objects uint64
	// ProbeFaults counts metadata errors, write errors and recovered panics
	ProbeFaults uint64
	// CSVRows is the number of rows appended by this run
	CSVRows uint64

	// BusErrors counts pipeline bus errors by category
	BusErrors map[string]uint64
	// BusWarnings counts pipeline bus warnings
	BusWarnings uint64

	// FPS is the probe rate over the most recent buffers
	FPS FPSStats

	// Sinks reports asynchronous sink delivery by name
	Sinks map[string]SinkStats
}
