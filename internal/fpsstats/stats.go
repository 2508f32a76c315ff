package fpsstats

import (
	"math"
	"sync"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum FPS standard deviation as a fraction of mean FPS.
	// Example: 30 FPS mean → stable if stddev < 4.5 FPS
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of the expected interval.
	// Example: 30 FPS (33ms interval) → stable if jitter < 6.6ms
	jitterStabilityThreshold = 0.20

	// DefaultWindow is the number of probe timestamps kept by a Window.
	DefaultWindow = 300
)

// Stats summarizes the rate at which buffers cross the probe.
type Stats struct {
	Samples      int
	Duration     time.Duration
	FPSMean      float64
	FPSStdDev    float64
	FPSMin       float64
	FPSMax       float64
	IsStable     bool
	JitterMean   float64 // seconds
	JitterStdDev float64 // seconds
	JitterMax    float64 // seconds
}

// Calculate computes FPS statistics from ordered timestamps.
//
//  1. Mean FPS over totalDuration
//  2. Instantaneous FPS for each interval, with min/max and stddev
//  3. Jitter against the expected interval (1 / mean)
//  4. Stable when stddev < 15% of mean AND jitter < 20% of the interval
func Calculate(times []time.Time, totalDuration time.Duration) Stats {
	n := len(times)
	if n == 0 || totalDuration <= 0 {
		return Stats{Samples: n, Duration: totalDuration}
	}

	fpsMean := float64(n) / totalDuration.Seconds()

	instantaneousFPS := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := times[i].Sub(times[i-1]).Seconds()
		if interval > 0 {
			instantaneousFPS = append(instantaneousFPS, 1.0/interval)
		}
	}

	if len(instantaneousFPS) == 0 {
		return Stats{Samples: n, Duration: totalDuration, FPSMean: fpsMean}
	}

	fpsMin := instantaneousFPS[0]
	fpsMax := instantaneousFPS[0]
	var sumSquares float64
	for _, fps := range instantaneousFPS {
		fpsMin = math.Min(fpsMin, fps)
		fpsMax = math.Max(fpsMax, fps)
		diff := fps - fpsMean
		sumSquares += diff * diff
	}
	fpsStdDev := math.Sqrt(sumSquares / float64(len(instantaneousFPS)))

	expectedInterval := 1.0 / fpsMean

	jitters := make([]float64, 0, n-1)
	var jitterSum, jitterMax float64
	for i := 1; i < n; i++ {
		j := math.Abs(times[i].Sub(times[i-1]).Seconds() - expectedInterval)
		jitters = append(jitters, j)
		jitterSum += j
		if j > jitterMax {
			jitterMax = j
		}
	}
	jitterMean := jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - jitterMean
		jitterSumSquares += diff * diff
	}
	jitterStdDev := math.Sqrt(jitterSumSquares / float64(len(jitters)))

	fpsStable := fpsStdDev < fpsMean*fpsStabilityThreshold
	jitterStable := jitterMean < expectedInterval*jitterStabilityThreshold

	return Stats{
		Samples:      n,
		Duration:     totalDuration,
		FPSMean:      fpsMean,
		FPSStdDev:    fpsStdDev,
		FPSMin:       fpsMin,
		FPSMax:       fpsMax,
		IsStable:     fpsStable && jitterStable,
		JitterMean:   jitterMean,
		JitterStdDev: jitterStdDev,
		JitterMax:    jitterMax,
	}
}

// Window keeps the most recent timestamps in a ring buffer.
// Safe for concurrent use; Add is called from the streaming thread.
type Window struct {
	mu    sync.Mutex
	times []time.Time
	next  int
	full  bool
}

// NewWindow creates a window holding up to size timestamps.
func NewWindow(size int) *Window {
	if size < 2 {
		size = DefaultWindow
	}
	return &Window{times: make([]time.Time, size)}
}

// Add records one buffer arrival.
func (w *Window) Add(t time.Time) {
	w.mu.Lock()
	w.times[w.next] = t
	w.next = (w.next + 1) % len(w.times)
	if w.next == 0 {
		w.full = true
	}
	w.mu.Unlock()
}

// Snapshot computes Stats over the recorded timestamps, oldest first.
func (w *Window) Snapshot() Stats {
	w.mu.Lock()
	var ordered []time.Time
	if w.full {
		ordered = make([]time.Time, 0, len(w.times))
		ordered = append(ordered, w.times[w.next:]...)
		ordered = append(ordered, w.times[:w.next]...)
	} else {
		ordered = append([]time.Time(nil), w.times[:w.next]...)
	}
	w.mu.Unlock()

	if len(ordered) < 2 {
		return Stats{Samples: len(ordered)}
	}
	// n timestamps span n-1 intervals; scale so the mean matches the observed rate
	span := ordered[len(ordered)-1].Sub(ordered[0])
	duration := time.Duration(float64(span) * float64(len(ordered)) / float64(len(ordered)-1))
	return Calculate(ordered, duration)
}
