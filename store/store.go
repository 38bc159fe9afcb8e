// Package store - Persists detection runs to a SQLite database.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/camtrap/geometry"
	"github.com/nvr-ai/camtrap/pipeline"
	"github.com/nvr-ai/camtrap/tracker"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	video TEXT NOT NULL,
	background_checksum TEXT,
	frames INTEGER NOT NULL,
	detections INTEGER NOT NULL,
	tracks INTEGER NOT NULL,
	classified INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	config TEXT,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS detections (
	run_id TEXT NOT NULL,
	frame_index INTEGER NOT NULL,
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	w INTEGER NOT NULL,
	h INTEGER NOT NULL,
	track_id INTEGER,
	label TEXT,
	score REAL,
	FOREIGN KEY(run_id) REFERENCES runs(run_id)
);
CREATE INDEX IF NOT EXISTS idx_detections_run ON detections(run_id, frame_index);
`

// Run describes one analysed video.
type Run struct {
	RunID              string
	Video              string
	BackgroundChecksum string
	Frames             int
	Detections         int
	Tracks             int
	Classified         bool
	Elapsed            time.Duration
	// Config is the effective configuration, as YAML.
	Config    string
	CreatedAt time.Time
}

// Store wraps a SQLite database of runs and detections.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", path)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a run and its detection table in one transaction.
// Run.RunID and Run.CreatedAt are filled when empty; the counts are derived
// from detections.
//
// Arguments:
//   - ctx: Cancels the transaction.
//   - run: Run metadata.
//   - detections: The detection table, in order.
//
// Returns:
//   - Run: The stored run.
//   - error: Error if the transaction fails.
func (s *Store) SaveRun(ctx context.Context, run Run, detections []pipeline.Detection) (Run, error) {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.Detections = len(detections)
	run.Tracks = pipeline.Tracks(detections)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return run, errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, video, background_checksum, frames, detections, tracks,
			classified, elapsed_ms, config, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Video, run.BackgroundChecksum, run.Frames, run.Detections, run.Tracks,
		run.Classified, run.Elapsed.Milliseconds(), run.Config, run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return run, errors.Wrap(err, "insert run")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO detections (run_id, frame_index, x, y, w, h, track_id, label, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return run, errors.Wrap(err, "prepare detection insert")
	}
	defer stmt.Close()

	for _, d := range detections {
		var (
			trackID sql.NullInt64
			label   sql.NullString
			score   sql.NullFloat64
		)
		if d.TrackID != tracker.NoTrack {
			trackID = sql.NullInt64{Int64: int64(d.TrackID), Valid: true}
		}
		if d.Label != "" {
			label = sql.NullString{String: d.Label, Valid: true}
			score = sql.NullFloat64{Float64: d.Score, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, run.RunID, d.FrameIndex,
			d.Box.X, d.Box.Y, d.Box.W, d.Box.H, trackID, label, score); err != nil {
			return run, errors.Wrapf(err, "insert detection frame %d", d.FrameIndex)
		}
	}

	if err := tx.Commit(); err != nil {
		return run, errors.Wrap(err, "commit")
	}
	return run, nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, video, background_checksum, frames, detections, tracks,
		       classified, elapsed_ms, config, created_at
		FROM runs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			checksum  sql.NullString
			config    sql.NullString
			elapsedMS int64
			createdAt int64
		)
		if err := rows.Scan(&r.RunID, &r.Video, &checksum, &r.Frames, &r.Detections, &r.Tracks,
			&r.Classified, &elapsedMS, &config, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.BackgroundChecksum = checksum.String
		r.Config = config.String
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		r.CreatedAt = time.Unix(0, createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Detections returns the detection table of a run in frame order.
func (s *Store) Detections(ctx context.Context, runID string) ([]pipeline.Detection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_index, x, y, w, h, track_id, label, score
		FROM detections
		WHERE run_id = ?
		ORDER BY rowid`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query detections")
	}
	defer rows.Close()

	dets := []pipeline.Detection{}
	for rows.Next() {
		var (
			d       pipeline.Detection
			b       geometry.Rect
			trackID sql.NullInt64
			label   sql.NullString
			score   sql.NullFloat64
		)
		if err := rows.Scan(&d.FrameIndex, &b.X, &b.Y, &b.W, &b.H, &trackID, &label, &score); err != nil {
			return nil, errors.Wrap(err, "scan detection")
		}
		d.Box = b
		d.Centroid = b.Centroid()
		d.TrackID = tracker.NoTrack
		if trackID.Valid {
			d.TrackID = int(trackID.Int64)
		}
		d.Label = label.String
		d.Score = score.Float64
		dets = append(dets, d)
	}
	return dets, rows.Err()
}
