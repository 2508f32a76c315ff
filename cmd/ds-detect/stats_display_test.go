package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	dsdetect "github.com/e7canasta/ds-detect"
)

type fakeRunner struct {
	calls atomic.Int32
}

func (f *fakeRunner) Run(context.Context) error { return nil }

func (f *fakeRunner) Stats() dsdetect.Stats {
	f.calls.Add(1)
	return dsdetect.Stats{State: dsdetect.StateRunning}
}

func TestStartStatsReporter(t *testing.T) {
	r := &fakeRunner{}
	stop := startStatsReporter(context.Background(), r, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stop()

	if r.calls.Load() < 2 {
		t.Fatalf("expected at least 2 reports, got %d", r.calls.Load())
	}

	after := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if r.calls.Load() != after {
		t.Error("reporter kept running after stop")
	}
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[string]uint64{"tracker": 1, "codec": 2, "resource": 3})
	if diff := cmp.Diff([]string{"codec", "resource", "tracker"}, got); diff != "" {
		t.Errorf("sortedKeys mismatch (-want +got):\n%s", diff)
	}
}
