package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/nvr-ai/camtrap/classifier"
	"github.com/nvr-ai/camtrap/geometry"
	"github.com/nvr-ai/camtrap/images"
	"github.com/nvr-ai/camtrap/labels"
	"github.com/nvr-ai/camtrap/tracker"
	"github.com/nvr-ai/camtrap/video"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const (
	frameW = 320
	frameH = 240
	side   = 70
	step   = 5
)

func solid() gocv.Mat {
	m := gocv.NewMatWithSize(frameH, frameW, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(90, 90, 90, 0))
	return m
}

// movingSquare builds n frames of a white square sliding right by step pixels.
func movingSquare(t *testing.T, n int) *video.MemorySource {
	t.Helper()
	frames := make([]gocv.Mat, n)
	for i := range frames {
		frames[i] = solid()
		x := 20 + i*step
		gocv.Rectangle(&frames[i], image.Rect(x, 80, x+side, 80+side), color.RGBA{255, 255, 255, 0}, -1)
	}
	src, err := video.NewMemorySource(frames, 25)
	require.NoError(t, err)
	return src
}

// MockClassifier labels every crop with the class chosen by Pick.
type MockClassifier struct {
	mu      sync.Mutex
	Width   int
	Pick    func(call int) int
	Calls   int
	Batches []int
}

func (m *MockClassifier) Predict(ctx context.Context, batch []image.Image) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches = append(m.Batches, len(batch))
	out := make([][]float32, len(batch))
	for i := range batch {
		p := make([]float32, m.Width)
		p[m.Pick(m.Calls)] = 0.99
		m.Calls++
		out[i] = p
	}
	return out, nil
}

func (m *MockClassifier) OutputWidth() int { return m.Width }

// failingSource breaks after a number of frames.
type failingSource struct {
	*video.MemorySource
	failAt int
	reads  int
}

func (f *failingSource) Next(dst *gocv.Mat) (int, error) {
	f.reads++
	index, err := f.MemorySource.Next(dst)
	if err == nil && index == f.failAt {
		return index, errors.New("corrupt packet")
	}
	return index, err
}

func runOpts() Options {
	opts := DefaultOptions()
	opts.Workers = 3
	return opts
}

func TestRun_SingleTrack(t *testing.T) {
	src := movingSquare(t, 12)
	defer src.Close()
	background := solid()
	defer background.Close()

	res, err := Run(context.Background(), src, background, runOpts())
	require.NoError(t, err)

	assert.Equal(t, 12, res.Frames)
	assert.False(t, res.Classified)
	require.Len(t, res.Detections, 12)
	assert.Equal(t, 1, Tracks(res.Detections))

	for i, d := range res.Detections {
		assert.Equal(t, i, d.FrameIndex)
		assert.Equal(t, 0, d.TrackID)
		assert.Empty(t, d.Label)
		assert.Equal(t, d.Box.Centroid(), d.Centroid)
		if i > 0 {
			assert.Greater(t, d.Centroid.X, res.Detections[i-1].Centroid.X, "centroids must move right")
		}
	}
}

func TestRun_WorkerCountDoesNotChangeResult(t *testing.T) {
	background := solid()
	defer background.Close()

	var got [][]Detection
	for _, workers := range []int{1, 4} {
		src := movingSquare(t, 8)
		opts := runOpts()
		opts.Workers = workers
		res, err := Run(context.Background(), src, background, opts)
		src.Close()
		require.NoError(t, err)
		got = append(got, res.Detections)
	}
	assert.Equal(t, got[0], got[1])
}

func TestRun_TrackingDisabled(t *testing.T) {
	src := movingSquare(t, 4)
	defer src.Close()
	background := solid()
	defer background.Close()

	opts := runOpts()
	opts.Tracking = false
	res, err := Run(context.Background(), src, background, opts)
	require.NoError(t, err)

	require.Len(t, res.Detections, 4)
	for _, d := range res.Detections {
		assert.Equal(t, tracker.NoTrack, d.TrackID)
	}
	assert.Zero(t, Tracks(res.Detections))
}

func TestRun_ExpandPercent(t *testing.T) {
	background := solid()
	defer background.Close()

	run := func(expand float64) []Detection {
		src := movingSquare(t, 12)
		defer src.Close()
		opts := runOpts()
		opts.ExpandPercent = expand
		res, err := Run(context.Background(), src, background, opts)
		require.NoError(t, err)
		return res.Detections
	}
	raw, grown := run(0), run(100)

	require.Len(t, raw, 12)
	require.Len(t, grown, 12)
	assert.Equal(t, 1, Tracks(grown))

	for i := range raw {
		assert.Equal(t, 2*raw[i].Box.W, grown[i].Box.W)
		assert.Equal(t, 2*raw[i].Box.H, grown[i].Box.H)
		assert.Equal(t, grown[i].Box.Centroid(), grown[i].Centroid)
		assert.InDelta(t, raw[i].Centroid.Y, grown[i].Centroid.Y, 1)
		// Boxes near the left edge are pinned to x=0 and shift right.
		if 2*raw[i].Box.X > raw[i].Box.W {
			assert.InDelta(t, raw[i].Centroid.X, grown[i].Centroid.X, 1)
		}
	}
}

func TestRun_NoMotion(t *testing.T) {
	frames := []gocv.Mat{solid(), solid(), solid()}
	src, err := video.NewMemorySource(frames, 25)
	require.NoError(t, err)
	defer src.Close()
	background := solid()
	defer background.Close()

	res, err := Run(context.Background(), src, background, runOpts())
	require.NoError(t, err)
	assert.NotNil(t, res.Detections)
	assert.Empty(t, res.Detections)
	assert.Equal(t, 3, res.Frames)
}

func TestRun_ClassifiedTrackLabel(t *testing.T) {
	src := movingSquare(t, 10)
	defer src.Close()
	background := solid()
	defer background.Close()

	vocab := []string{"cat", "dog", "human"}
	mock := &MockClassifier{
		Width: 3,
		Pick: func(call int) int {
			if call < 2 {
				return 1
			}
			return 0
		},
	}

	opts := runOpts()
	opts.Classifier = mock
	opts.Labels = vocab
	opts.Classify = classifier.Options{BatchSize: 4, ScoreThreshold: 95}

	res, err := Run(context.Background(), src, background, opts)
	require.NoError(t, err)
	assert.True(t, res.Classified)
	require.Len(t, res.Detections, 10)
	assert.Equal(t, 10, mock.Calls)
	for _, n := range mock.Batches {
		assert.LessOrEqual(t, n, 4)
	}

	for _, d := range res.Detections {
		assert.Equal(t, "cat", d.Label, "track label overrides per-detection labels")
		assert.Equal(t, float64(99), d.Score)
	}
}

func TestRun_ShortTrackIsUnknown(t *testing.T) {
	src := movingSquare(t, 2)
	defer src.Close()
	background := solid()
	defer background.Close()

	opts := runOpts()
	opts.Classifier = &MockClassifier{Width: 2, Pick: func(int) int { return 0 }}
	opts.Labels = []string{"cat", "dog"}

	res, err := Run(context.Background(), src, background, opts)
	require.NoError(t, err)
	require.Len(t, res.Detections, 2)
	for _, d := range res.Detections {
		assert.Equal(t, labels.Unknown, d.Label)
	}
}

func TestRun_Errors(t *testing.T) {
	background := solid()
	defer background.Close()

	t.Run("background size", func(t *testing.T) {
		src := movingSquare(t, 2)
		defer src.Close()
		small := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
		defer small.Close()

		_, err := Run(context.Background(), src, small, runOpts())
		var se *StageError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, StageBackground, se.Stage)
		assert.True(t, errors.Is(err, images.ErrDimensionMismatch))
	})

	t.Run("vocabulary mismatch before any frame", func(t *testing.T) {
		fs := &failingSource{MemorySource: movingSquare(t, 2), failAt: -1}
		defer fs.Close()

		opts := runOpts()
		opts.Classifier = &MockClassifier{Width: 3, Pick: func(int) int { return 0 }}
		opts.Labels = []string{"cat", "dog"}

		_, err := Run(context.Background(), fs, background, opts)
		assert.True(t, errors.Is(err, classifier.ErrArtifactMismatch))
		assert.Zero(t, fs.reads)
	})

	t.Run("decode failure names the frame", func(t *testing.T) {
		fs := &failingSource{MemorySource: movingSquare(t, 6), failAt: 3}
		defer fs.Close()

		res, err := Run(context.Background(), fs, background, runOpts())
		assert.Nil(t, res)
		var se *StageError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, StageDecode, se.Stage)
		assert.Equal(t, 3, se.Frame)
		assert.Contains(t, err.Error(), "decode frame 3")
	})

	t.Run("cancelled", func(t *testing.T) {
		src := movingSquare(t, 6)
		defer src.Close()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Run(ctx, src, background, runOpts())
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestStageError(t *testing.T) {
	base := errors.New("boom")
	err := stageError(StageSegment, 7, base)
	assert.Equal(t, "segment frame 7: boom", err.Error())
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, base, errors.Cause(err))

	assert.Equal(t, "classifier: boom", stageError(StageClassifier, -1, base).Error())
}

func TestAnnotations(t *testing.T) {
	dets := []Detection{
		{FrameIndex: 0, Box: geometry.Rect{X: 1, Y: 1, W: 2, H: 2}, TrackID: 0, Label: "cat", Score: 99},
		{FrameIndex: 2, TrackID: 1},
		{FrameIndex: 2, TrackID: 0},
	}

	byFrame := Annotations(dets)
	require.Len(t, byFrame, 2)
	assert.Equal(t, "cat", byFrame[0][0].Label)
	assert.Equal(t, geometry.Rect{X: 1, Y: 1, W: 2, H: 2}, byFrame[0][0].Box)
	assert.Len(t, byFrame[2], 2)
	assert.Equal(t, 2, Tracks(dets))
}
