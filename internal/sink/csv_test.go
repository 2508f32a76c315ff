package sink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/e7canasta/ds-detect/internal/detection"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func sampleBatch() detection.Batch {
	return detection.Batch{
		Seq:     1,
		TraceID: "trace-1",
		Detections: []detection.Detection{
			{ClassID: 0, Confidence: 0.875, Left: 10, Top: 20.5, Width: 30, Height: 40},
			{ClassID: 2, Confidence: 0.5, Left: 100.25, Top: 200, Width: 50, Height: 60},
			{ClassID: 7, Confidence: 0.125, Left: 0, Top: 0, Width: 1920, Height: 1080},
		},
	}
}

// TestCSV_AppendsOneRowPerDetection verifies N detections produce N rows in
// append order with the expected column values.
func TestCSV_AppendsOneRowPerDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	s, err := NewCSV(path, CSVOptions{})
	if err != nil {
		t.Fatalf("NewCSV failed: %v", err)
	}

	if err := s.Write(context.Background(), sampleBatch()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := [][]string{
		{"0", "0.875", "10", "20.5", "30", "40"},
		{"2", "0.5", "100.25", "200", "50", "60"},
		{"7", "0.125", "0", "0", "1920", "1080"},
	}
	if diff := cmp.Diff(want, readCSV(t, path)); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
	if s.Rows() != 3 {
		t.Errorf("Rows() = %d, want 3", s.Rows())
	}
}

// TestCSV_RepeatedWritesNeverOverwrite verifies flushes accumulate and no
// header row is repeated.
func TestCSV_RepeatedWritesNeverOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	s, _ := NewCSV(path, CSVOptions{})

	for i := 0; i < 4; i++ {
		if err := s.Write(context.Background(), sampleBatch()); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	rows := readCSV(t, path)
	if len(rows) != 12 {
		t.Fatalf("expected 12 rows after 4 flushes of 3, got %d", len(rows))
	}
	for i, row := range rows {
		if row[0] == "class_id" {
			t.Errorf("row %d is a header, headers must not be emitted", i)
		}
	}
	if rows[3][0] != "0" || rows[11][0] != "7" {
		t.Errorf("rows out of append order: %v", rows)
	}
}

// TestCSV_PreservesExistingFile verifies rows from a previous run survive.
func TestCSV_PreservesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	if err := os.WriteFile(path, []byte("9,0.99,1,2,3,4\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	s, _ := NewCSV(path, CSVOptions{Header: true})
	if err := s.Write(context.Background(), sampleBatch()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 4 {
		t.Fatalf("expected 1 seeded + 3 new rows, got %d", len(rows))
	}
	if diff := cmp.Diff([]string{"9", "0.99", "1", "2", "3", "4"}, rows[0]); diff != "" {
		t.Errorf("seeded row changed (-want +got):\n%s", diff)
	}
}

func TestCSV_HeaderOnlyOnEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	s, _ := NewCSV(path, CSVOptions{Header: true})

	for i := 0; i < 2; i++ {
		if err := s.Write(context.Background(), sampleBatch()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	rows := readCSV(t, path)
	if len(rows) != 7 {
		t.Fatalf("expected header + 6 rows, got %d", len(rows))
	}
	if diff := cmp.Diff(BaseColumns, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestCSV_ExtendedColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	s, _ := NewCSV(path, CSVOptions{Header: true, Extended: true})

	batch := detection.Batch{
		TraceID: "abc",
		Detections: []detection.Detection{
			{ClassID: 1, Confidence: 0.75, Left: 1, Top: 2, Width: 3, Height: 4, FrameNum: 42, SourceID: 1, ObjectID: 17, Label: "bicycle"},
		},
	}
	if err := s.Write(context.Background(), batch); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	rows := readCSV(t, path)
	want := [][]string{
		append(append([]string{}, BaseColumns...), ExtendedColumns...),
		{"1", "0.75", "1", "2", "3", "4", "42", "1", "17", "bicycle", "abc"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("extended csv mismatch (-want +got):\n%s", diff)
	}
}

func TestCSV_EmptyBatchDoesNotCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	s, _ := NewCSV(path, CSVOptions{Header: true})

	if err := s.Write(context.Background(), detection.Batch{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("empty batch should not create the file, stat err=%v", err)
	}
}

func TestCSV_Float32Formatting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	s, _ := NewCSV(path, CSVOptions{})

	batch := detection.Batch{Detections: []detection.Detection{{Confidence: 0.9}}}
	if err := s.Write(context.Background(), batch); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if got := readCSV(t, path)[0][1]; got != "0.9" {
		t.Errorf("float32 0.9 should print as 0.9, got %s", got)
	}
}

func TestNewCSV_RequiresPath(t *testing.T) {
	if _, err := NewCSV("", CSVOptions{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestCSV_UnwritableDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "detections.csv")
	s, _ := NewCSV(path, CSVOptions{})

	if err := s.Write(context.Background(), sampleBatch()); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
	if s.Rows() != 0 {
		t.Errorf("failed write must not count rows")
	}
}
