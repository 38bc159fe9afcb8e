package images

import (
	"image"
	"testing"

	"github.com/nvr-ai/camtrap/geometry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestMotionSegmenter_Segment(t *testing.T) {
	background := solidFrame(320, 240, 100)
	defer background.Close()

	tests := []struct {
		name     string
		squares  []image.Rectangle
		area     float64
		expected int
	}{
		{"static scene", nil, 3000, 0},
		{"one large object", []image.Rectangle{image.Rect(50, 50, 120, 120)}, 3000, 1},
		{"small object filtered", []image.Rectangle{image.Rect(50, 50, 70, 70)}, 3000, 0},
		{"small object kept by low threshold", []image.Rectangle{image.Rect(50, 50, 70, 70)}, 100, 1},
		{"two separate objects", []image.Rectangle{image.Rect(10, 10, 80, 80), image.Rect(200, 120, 290, 210)}, 3000, 2},
	}

	seg := NewMotionSegmenter(DefaultSegmenterOptions())
	defer seg.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := solidFrame(320, 240, 100)
			defer frame.Close()
			for _, sq := range tt.squares {
				fill(&frame, sq)
			}

			boxes, err := seg.Segment(frame, background, tt.area)
			require.NoError(t, err)
			assert.Len(t, boxes, tt.expected)

			for _, box := range boxes {
				assert.True(t, box.Valid(), "box %v", box)
				found := false
				for _, sq := range tt.squares {
					grown := geometry.Rect{X: sq.Min.X - 12, Y: sq.Min.Y - 12, W: sq.Dx() + 24, H: sq.Dy() + 24}
					if box.Contains(geometry.FromImageRect(sq)) && grown.Contains(box) {
						found = true
					}
				}
				assert.True(t, found, "box %v does not match any object", box)
			}
		})
	}
}

func TestMotionSegmenter_BackgroundUntouched(t *testing.T) {
	background := solidFrame(160, 120, 40)
	defer background.Close()
	before := ComputeMatChecksum(background)

	frame := squareFrame(160, 120, 40, image.Rect(30, 30, 100, 100))
	defer frame.Close()

	seg := NewMotionSegmenter(DefaultSegmenterOptions())
	defer seg.Close()

	_, err := seg.Segment(frame, background, 3000)
	require.NoError(t, err)
	assert.Equal(t, before, ComputeMatChecksum(background))
}

func TestMotionSegmenter_DimensionMismatch(t *testing.T) {
	background := solidFrame(160, 120, 40)
	defer background.Close()
	frame := solidFrame(120, 160, 40)
	defer frame.Close()

	seg := NewMotionSegmenter(DefaultSegmenterOptions())
	defer seg.Close()

	_, err := seg.Segment(frame, background, 3000)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func fill(frame *gocv.Mat, r image.Rectangle) {
	gocv.Rectangle(frame, r, white, -1)
}
