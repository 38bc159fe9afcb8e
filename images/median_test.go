package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var white = color.RGBA{255, 255, 255, 0}

// solidFrame creates a BGR frame filled with one gray level.
func solidFrame(width, height int, level float64) gocv.Mat {
	frame := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	frame.SetTo(gocv.NewScalar(level, level, level, 0))
	return frame
}

// squareFrame creates a solid frame with a filled white square.
func squareFrame(width, height int, level float64, square image.Rectangle) gocv.Mat {
	frame := solidFrame(width, height, level)
	gocv.Rectangle(&frame, square, white, -1)
	return frame
}

func TestMedianBytes(t *testing.T) {
	tests := []struct {
		name     string
		values   []uint8
		expected uint8
	}{
		{"empty", nil, 0},
		{"single", []uint8{42}, 42},
		{"odd count", []uint8{9, 1, 5}, 5},
		{"even count rounds half up", []uint8{1, 2, 4, 10}, 3},
		{"even count exact mean", []uint8{10, 20}, 15},
		{"duplicates", []uint8{7, 7, 7, 1, 255}, 7},
		{"all equal", []uint8{3, 3, 3, 3}, 3},
		{"extremes", []uint8{0, 255}, 128},
		{"reverse sorted", []uint8{90, 80, 70, 60, 50, 40, 30}, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MedianBytes(append([]uint8(nil), tt.values...)))
		})
	}
}

func TestMedianFrame_IdenticalFrames(t *testing.T) {
	frames := []gocv.Mat{
		squareFrame(64, 48, 90, image.Rect(10, 10, 20, 20)),
		squareFrame(64, 48, 90, image.Rect(10, 10, 20, 20)),
		squareFrame(64, 48, 90, image.Rect(10, 10, 20, 20)),
	}
	defer func() {
		for i := range frames {
			frames[i].Close()
		}
	}()

	median, err := MedianFrame(frames)
	require.NoError(t, err)
	defer median.Close()

	assert.Equal(t, ComputeMatChecksum(frames[0]), ComputeMatChecksum(median))
	assert.Equal(t, frames[0].Type(), median.Type())
}

func TestMedianFrame_RejectsOutlier(t *testing.T) {
	frames := []gocv.Mat{
		solidFrame(32, 32, 10),
		solidFrame(32, 32, 200),
		solidFrame(32, 32, 30),
	}
	defer func() {
		for i := range frames {
			frames[i].Close()
		}
	}()

	median, err := MedianFrame(frames)
	require.NoError(t, err)
	defer median.Close()

	expected := solidFrame(32, 32, 30)
	defer expected.Close()
	assert.Equal(t, ComputeMatChecksum(expected), ComputeMatChecksum(median))
}

func TestMedianFrame_Errors(t *testing.T) {
	empty, err := MedianFrame(nil)
	defer empty.Close()
	assert.True(t, errors.Is(err, ErrInsufficientFrames))

	frames := []gocv.Mat{solidFrame(32, 32, 10), solidFrame(16, 32, 10)}
	defer frames[0].Close()
	defer frames[1].Close()

	mixed, err := MedianFrame(frames)
	defer mixed.Close()
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}
