package onnx

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestFillTensor(t *testing.T) {
	shape := image.Pt(2, 2)
	batch := []image.Image{solid(2, 2, color.RGBA{10, 20, 30, 255})}

	t.Run("nhwc", func(t *testing.T) {
		dst := make([]float32, 2*12)
		for i := range dst {
			dst[i] = -1
		}
		require.NoError(t, FillTensor(dst, batch, shape, LayoutNHWC, 1))
		assert.Equal(t, []float32{10, 20, 30, 10, 20, 30, 10, 20, 30, 10, 20, 30}, dst[:12])
		assert.Equal(t, make([]float32, 12), dst[12:], "padding slots are zeroed")
	})

	t.Run("nchw", func(t *testing.T) {
		dst := make([]float32, 12)
		require.NoError(t, FillTensor(dst, batch, shape, LayoutNCHW, 0.5))
		assert.Equal(t, []float32{5, 5, 5, 5, 10, 10, 10, 10, 15, 15, 15, 15}, dst)
	})

	t.Run("resizes", func(t *testing.T) {
		dst := make([]float32, 12)
		big := []image.Image{solid(8, 6, color.RGBA{40, 40, 40, 255})}
		require.NoError(t, FillTensor(dst, big, shape, LayoutNHWC, 1))
		for _, v := range dst {
			assert.InDelta(t, 40, v, 1)
		}
	})

	t.Run("too small", func(t *testing.T) {
		assert.Error(t, FillTensor(make([]float32, 11), batch, shape, LayoutNHWC, 1))
	})
}

func TestSoftmax(t *testing.T) {
	p := []float32{1, 1}
	Softmax(p)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, []float64{float64(p[0]), float64(p[1])}, 1e-6)

	q := []float32{1000, 0, -1000}
	Softmax(q)
	assert.InDelta(t, 1, q[0], 1e-6)
	assert.InDelta(t, 0, q[2], 1e-6)

	Softmax(nil)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir, BackendNet, Config{})
	assert.Error(t, err, "labels file is missing")

	require.NoError(t, os.WriteFile(filepath.Join(dir, LabelsFile), []byte("cat\ndog\n"), 0o644))

	_, err = Load(dir, BackendNet, Config{})
	assert.Error(t, err, "model file is missing")

	_, err = Load(dir, Backend("tflite"), Config{})
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, image.Pt(128, 128), cfg.InputShape)
	assert.Equal(t, float32(1), cfg.Scale)
	assert.Equal(t, LayoutNHWC, cfg.Layout)
	assert.Equal(t, 32, cfg.BatchSize)
	assert.NotNil(t, cfg.Logger)
}
