package sink

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/e7canasta/ds-detect/internal/detection"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS detections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_seq INTEGER NOT NULL,
	trace_id TEXT NOT NULL,
	captured_at DATETIME NOT NULL,
	frame_num INTEGER DEFAULT 0,
	source_id INTEGER DEFAULT 0,
	object_id INTEGER DEFAULT 0,
	class_id INTEGER NOT NULL,
	label TEXT DEFAULT '',
	confidence REAL DEFAULT 0,
	bbox_left REAL DEFAULT 0,
	bbox_top REAL DEFAULT 0,
	bbox_width REAL DEFAULT 0,
	bbox_height REAL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_detections_trace_id ON detections(trace_id);
CREATE INDEX IF NOT EXISTS idx_detections_class_id ON detections(class_id);
CREATE INDEX IF NOT EXISTS idx_detections_frame ON detections(source_id, frame_num);
`

const sqliteInsert = `
INSERT INTO detections (
	batch_seq, trace_id, captured_at, frame_num, source_id, object_id,
	class_id, label, confidence, bbox_left, bbox_top, bbox_width, bbox_height
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// SQLite stores detections in a local database, one row per object.
type SQLite struct {
	conn *sql.DB
	mu   sync.Mutex
}

// NewSQLite opens (or creates) the database at path and migrates the schema.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sink: sqlite path is required")
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sink: failed to open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sink: failed to migrate sqlite: %w", err)
	}

	return &SQLite{conn: conn}, nil
}

// Write implements Sink. The whole batch is inserted in one transaction.
func (s *SQLite) Write(ctx context.Context, batch detection.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		return fmt.Errorf("sink: failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	capturedAt := batch.Timestamp
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	for _, d := range batch.Detections {
		if _, err := stmt.ExecContext(ctx,
			batch.Seq, batch.TraceID, capturedAt.UTC(),
			d.FrameNum, d.SourceID, int64(d.ObjectID),
			d.ClassID, d.Label, d.Confidence,
			d.Left, d.Top, d.Width, d.Height,
		); err != nil {
			return fmt.Errorf("sink: failed to insert detection: %w", err)
		}
	}

	return tx.Commit()
}

// Count returns the number of stored detections.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM detections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sink: failed to count detections: %w", err)
	}
	return n, nil
}

// ByTrace returns the detections stored for one batch, in insertion order.
func (s *SQLite) ByTrace(ctx context.Context, traceID string) ([]detection.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT frame_num, source_id, object_id, class_id, label, confidence,
		       bbox_left, bbox_top, bbox_width, bbox_height
		FROM detections WHERE trace_id = ? ORDER BY id
	`, traceID)
	if err != nil {
		return nil, fmt.Errorf("sink: failed to query detections: %w", err)
	}
	defer rows.Close()

	var out []detection.Detection
	for rows.Next() {
		var d detection.Detection
		var objectID int64
		if err := rows.Scan(
			&d.FrameNum, &d.SourceID, &objectID, &d.ClassID, &d.Label, &d.Confidence,
			&d.Left, &d.Top, &d.Width, &d.Height,
		); err != nil {
			return nil, fmt.Errorf("sink: failed to scan detection: %w", err)
		}
		d.ObjectID = uint64(objectID)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close implements Sink.
func (s *SQLite) Close() error {
	return s.conn.Close()
}
