package fpsstats

import (
	"math"
	"testing"
	"time"
)

func uniformTimes(n int, interval time.Duration) []time.Time {
	base := time.Unix(1700000000, 0)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(i) * interval)
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name       string
		times      []time.Time
		duration   time.Duration
		wantMean   float64
		wantStable bool
	}{
		{"no samples", nil, time.Second, 0, false},
		{"zero duration", uniformTimes(3, time.Second), 0, 0, false},
		{"uniform 10fps", uniformTimes(10, 100*time.Millisecond), time.Second, 10, true},
		{"uniform 1fps", uniformTimes(30, time.Second), 30 * time.Second, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := Calculate(tt.times, tt.duration)
			if !approx(stats.FPSMean, tt.wantMean) {
				t.Errorf("FPSMean = %v, want %v", stats.FPSMean, tt.wantMean)
			}
			if stats.IsStable != tt.wantStable {
				t.Errorf("IsStable = %v, want %v", stats.IsStable, tt.wantStable)
			}
			if stats.Samples != len(tt.times) {
				t.Errorf("Samples = %d, want %d", stats.Samples, len(tt.times))
			}
		})
	}
}

func TestCalculate_IrregularIsUnstable(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var times []time.Time
	cur := base
	for i := 0; i < 20; i++ {
		times = append(times, cur)
		if i%2 == 0 {
			cur = cur.Add(50 * time.Millisecond)
		} else {
			cur = cur.Add(150 * time.Millisecond)
		}
	}

	stats := Calculate(times, 2*time.Second)
	if stats.IsStable {
		t.Errorf("expected unstable stats, got %+v", stats)
	}
	if !approx(stats.FPSMin, 1/0.15) || !approx(stats.FPSMax, 20) {
		t.Errorf("min/max = %v/%v", stats.FPSMin, stats.FPSMax)
	}
	if stats.JitterMax <= 0 {
		t.Errorf("expected positive jitter, got %v", stats.JitterMax)
	}
}

func TestWindow_Snapshot(t *testing.T) {
	w := NewWindow(5)

	if s := w.Snapshot(); s.Samples != 0 || s.FPSMean != 0 {
		t.Errorf("empty window should report nothing, got %+v", s)
	}

	// 8 samples into a window of 5: only the last 5 remain
	for _, ts := range uniformTimes(8, 40*time.Millisecond) {
		w.Add(ts)
	}

	s := w.Snapshot()
	if s.Samples != 5 {
		t.Fatalf("Samples = %d, want 5", s.Samples)
	}
	if !approx(s.FPSMean, 25) {
		t.Errorf("FPSMean = %v, want 25", s.FPSMean)
	}
	if !s.IsStable {
		t.Errorf("uniform arrivals should be stable: %+v", s)
	}
}

func TestNewWindow_DefaultSize(t *testing.T) {
	w := NewWindow(0)
	if len(w.times) != DefaultWindow {
		t.Errorf("window size = %d, want %d", len(w.times), DefaultWindow)
	}
}
