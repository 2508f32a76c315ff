package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	dsdetect "github.com/e7canasta/ds-detect"
)

// startStatsReporter logs pipeline statistics every interval until ctx is done
// or the returned stop function is called.
func startStatsReporter(ctx context.Context, p dsdetect.Runner, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logStats(p.Stats())
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func logStats(s dsdetect.Stats) {
	slog.Info("ds-detect: performance data",
		"state", s.State.String(),
		"uptime", s.Uptime.Round(time.Second),
		"buffers_probed", s.BuffersProbed,
		"batches", s.Batches,
		"objects", s.Objects,
		"csv_rows", s.CSVRows,
		"probe_faults", s.ProbeFaults,
		"fps", fmt.Sprintf("%.2f", s.FPS.FPSMean),
		"fps_stable", s.FPS.IsStable,
		"bus_warnings", s.BusWarnings,
	)

	for _, name := range sortedKeys(s.Sinks) {
		sk := s.Sinks[name]
		slog.Debug("ds-detect: sink delivery",
			"sink", name,
			"sent", sk.Sent,
			"dropped", sk.Dropped,
			"failed", sk.Failed,
		)
	}
}

func printFinalStats(s dsdetect.Stats) {
	fmt.Printf("\n")
	fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
	fmt.Printf("│ ds-detect run summary\n")
	fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
	fmt.Printf("│ State:              %s\n", s.State)
	fmt.Printf("│ Uptime:             %6.1f seconds\n", s.Uptime.Seconds())
	fmt.Printf("│ Buffers Probed:     %6d\n", s.BuffersProbed)
	fmt.Printf("│ Batches:            %6d\n", s.Batches)
	fmt.Printf("│ Objects Exported:   %6d\n", s.Objects)
	fmt.Printf("│ CSV Rows:           %6d\n", s.CSVRows)
	fmt.Printf("│ Probe Faults:       %6d\n", s.ProbeFaults)
	fmt.Printf("│ Probe FPS:          %6.2f (stddev %.2f, range %.1f - %.1f)\n",
		s.FPS.FPSMean, s.FPS.FPSStdDev, s.FPS.FPSMin, s.FPS.FPSMax)
	fmt.Printf("│ Bus Warnings:       %6d\n", s.BusWarnings)
	for _, category := range sortedKeys(s.BusErrors) {
		if n := s.BusErrors[category]; n > 0 {
			fmt.Printf("│ Bus Errors (%s): %d\n", category, n)
		}
	}
	for _, name := range sortedKeys(s.Sinks) {
		sk := s.Sinks[name]
		fmt.Printf("│ Sink %-14s sent=%d dropped=%d failed=%d\n", name+":", sk.Sent, sk.Dropped, sk.Failed)
	}
	fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
