package dsdetect

import "context"

// Runner defines the contract for a detection pipeline
//
// Implementations must guarantee:
//   - Run() blocks until end of stream, a pipeline error, or ctx cancellation
//   - Run() leaves the pipeline in the NULL state on every exit path
//   - Stats() is thread-safe (can be called from any goroutine)
type Runner interface {
	// Run assembles the pipeline, starts it and monitors its bus.
	//
	// Returns nil on end of stream and on ctx cancellation. Returns a
	// *PipelineError when the bus reports an error, or a wrapped error if
	// assembly or the PLAYING transition fails.
	//
	// Run may only be called once.
	Run(ctx context.Context) error

	// Stats returns current pipeline statistics.
	Stats() Stats
}
