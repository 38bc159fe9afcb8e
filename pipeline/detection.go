// Package pipeline - Runs motion detection, deduplication, tracking,
// classification and label aggregation over a frame source.
//
// Data flow:
//
//	Source → MotionSegmenter → Deduplicate → Tracker
//	                                  ↘ crops → Classifier → Aggregate
//
// Frames are decoded by one goroutine, segmented by a pool of workers sharing
// the read-only background, and reassembled in frame order before tracking.
package pipeline

import (
	"fmt"

	"github.com/nvr-ai/camtrap/geometry"
	"github.com/nvr-ai/camtrap/render"
	"gonum.org/v1/gonum/spatial/r2"
)

// Detection is one deduplicated motion box.
type Detection struct {
	// FrameIndex is the 0-based index of the frame the box was found in.
	FrameIndex int
	Box        geometry.Rect
	// Centroid is the geometric centre of Box.
	Centroid r2.Vec
	// TrackID is the dense track id, tracker.NoTrack when tracking is disabled.
	TrackID int
	// Label is empty when no classifier ran.
	Label string
	// Score is the label's percent score, meaningful only when Label is set.
	Score float64
}

// StageError attaches the failing stage and frame to a fatal error.
// Frame is -1 for errors that happen before any frame is read.
type StageError struct {
	Stage string
	Frame int
	Err   error
}

// Error implements error.
func (e *StageError) Error() string {
	if e.Frame < 0 {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s frame %d: %v", e.Stage, e.Frame, e.Err)
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Cause exposes the underlying error to errors.Cause.
func (e *StageError) Cause() error {
	return e.Err
}

func stageError(stage string, frame int, err error) error {
	return &StageError{Stage: stage, Frame: frame, Err: err}
}

// Annotations groups detections by frame for rendering.
func Annotations(detections []Detection) map[int][]render.Annotation {
	out := make(map[int][]render.Annotation)
	for _, d := range detections {
		out[d.FrameIndex] = append(out[d.FrameIndex], render.Annotation{
			Box:     d.Box,
			Label:   d.Label,
			Score:   d.Score,
			TrackID: d.TrackID,
		})
	}
	return out
}

// Tracks returns the number of distinct tracks among detections.
func Tracks(detections []Detection) int {
	seen := make(map[int]struct{})
	for _, d := range detections {
		if d.TrackID >= 0 {
			seen[d.TrackID] = struct{}{}
		}
	}
	return len(seen)
}
