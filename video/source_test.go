package video

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func grayFrames(n, width, height int) []gocv.Mat {
	frames := make([]gocv.Mat, n)
	for i := range frames {
		frames[i] = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
		frames[i].SetTo(gocv.NewScalar(float64(i*10), 0, 0, 0))
	}
	return frames
}

func TestMemorySource(t *testing.T) {
	src, err := NewMemorySource(grayFrames(3, 8, 6), 30)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, Metadata{FPS: 30, Width: 8, Height: 6, FrameCount: 3}, src.Metadata())
	assert.Equal(t, image.Rect(0, 0, 8, 6), src.Metadata().Bounds())

	dst := gocv.NewMat()
	defer dst.Close()

	for want := 0; want < 3; want++ {
		got, err := src.Next(&dst)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, uint8(want*10), dst.GetVecbAt(0, 0)[0])
	}
	_, err = src.Next(&dst)
	assert.Equal(t, io.EOF, err)

	require.NoError(t, src.Seek(1))
	got, err := src.Next(&dst)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	assert.True(t, errors.Is(src.Seek(3), ErrSeek))
	assert.True(t, errors.Is(src.Seek(-1), ErrSeek))
}

func TestNewMemorySource_MixedSizes(t *testing.T) {
	frames := append(grayFrames(1, 8, 6), grayFrames(1, 6, 8)...)
	defer func() {
		for i := range frames {
			frames[i].Close()
		}
	}()

	_, err := NewMemorySource(frames, 25)
	assert.Error(t, err)
}

func writeFrame(t *testing.T, path string, level uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{level, level, level, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestOpen_Sequence(t *testing.T) {
	dir := t.TempDir()
	for i, level := range []uint8{30, 60, 90} {
		writeFrame(t, filepath.Join(dir, fmt.Sprintf("frame-%d.png", i+1)), level)
	}

	src, err := Open(dir, 0)
	require.NoError(t, err)
	defer src.Close()

	meta := src.Metadata()
	assert.Equal(t, 12, meta.Width)
	assert.Equal(t, 10, meta.Height)
	assert.Equal(t, 3, meta.FrameCount)
	assert.Equal(t, float64(DefaultSequenceFPS), meta.FPS)

	dst := gocv.NewMat()
	defer dst.Close()

	require.NoError(t, src.Seek(2))
	index, err := src.Next(&dst)
	require.NoError(t, err)
	assert.Equal(t, 2, index)
	assert.Equal(t, gocv.MatTypeCV8UC3, dst.Type())
	assert.Equal(t, uint8(90), dst.GetVecbAt(0, 0)[0])

	_, err = src.Next(&dst)
	assert.Equal(t, io.EOF, err)
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.mp4"), 0)
	assert.Error(t, err)
}
