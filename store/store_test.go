package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/camtrap/geometry"
	"github.com/nvr-ai/camtrap/pipeline"
	"github.com/nvr-ai/camtrap/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detection(frame, x, track int, label string, score float64) pipeline.Detection {
	box := geometry.Rect{X: x, Y: 10, W: 40, H: 30}
	return pipeline.Detection{
		FrameIndex: frame,
		Box:        box,
		Centroid:   box.Centroid(),
		TrackID:    track,
		Label:      label,
		Score:      score,
	}
}

func TestStore_SaveRun(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "camtrap.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	dets := []pipeline.Detection{
		detection(0, 10, 0, "cat", 98),
		detection(1, 15, 0, "cat", 97),
		detection(1, 200, 1, "", 0),
		detection(2, 20, tracker.NoTrack, "", 0),
	}

	run, err := s.SaveRun(ctx, Run{
		Video:              "fox.mp4",
		BackgroundChecksum: "abc",
		Frames:             3,
		Classified:         true,
		Elapsed:            1500 * time.Millisecond,
		Config:             "area_threshold: 3000\n",
	}, dets)
	require.NoError(t, err)

	_, err = uuid.Parse(run.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 4, run.Detections)
	assert.Equal(t, 2, run.Tracks)

	got, err := s.Detections(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, dets, got)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunID, runs[0].RunID)
	assert.Equal(t, "fox.mp4", runs[0].Video)
	assert.Equal(t, 1500*time.Millisecond, runs[0].Elapsed)
	assert.True(t, runs[0].Classified)
	assert.Equal(t, run.CreatedAt.UnixNano(), runs[0].CreatedAt.UnixNano())
}

func TestStore_EmptyRun(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	run, err := s.SaveRun(ctx, Run{Video: "empty.mp4"}, nil)
	require.NoError(t, err)

	got, err := s.Detections(ctx, run.RunID)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Detections(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_Cancelled(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.SaveRun(ctx, Run{Video: "x"}, []pipeline.Detection{detection(0, 0, 0, "", 0)})
	assert.Error(t, err)

	runs, err := s.Runs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}
