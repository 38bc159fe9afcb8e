// Package onnx - Image classifiers backed by ONNX models.
//
// Two engines are supported behind classifier.Classifier: OpenCV's DNN module
// (NetClassifier) and the ONNX Runtime shared library (RuntimeClassifier).
// Load reads a model directory holding model.onnx and its labels file and
// checks that the two agree before any frame is classified.
package onnx

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// NetClassifier handles ONNX model inference using gocv.ReadNet().
type NetClassifier struct {
	cfg   Config
	mu    sync.Mutex
	net   gocv.Net
	width int
}

// NewNetClassifier loads an ONNX classifier into OpenCV's DNN module.
//
// The output width is probed with one blank image so that a vocabulary
// mismatch surfaces before any frame is processed.
//
// Arguments:
//   - cfg: Model path and preprocessing.
//
// Returns:
//   - *NetClassifier: The loaded classifier; call Close when done.
//   - error: Error if the model cannot be read or produces no scores.
func NewNetClassifier(cfg Config) (*NetClassifier, error) {
	cfg = cfg.withDefaults()

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrap(err, "model file")
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, errors.Errorf("failed to load ONNX model: %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendOpenCV)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	c := &NetClassifier{cfg: cfg, net: net}

	probe, err := c.forward([]image.Image{image.NewRGBA(image.Rectangle{Max: cfg.InputShape})})
	if err != nil {
		net.Close()
		return nil, errors.Wrap(err, "probe model output")
	}
	c.width = len(probe[0])
	if c.width == 0 {
		net.Close()
		return nil, errors.Errorf("model %s produces no scores", cfg.ModelPath)
	}

	cfg.Logger.Info("onnx classifier initialized",
		"backend", BackendNet,
		"model", cfg.ModelPath,
		"input", cfg.InputShape,
		"classes", c.width)
	return c, nil
}

// OutputWidth implements classifier.Classifier.
func (c *NetClassifier) OutputWidth() int {
	return c.width
}

// Predict implements classifier.Classifier. gocv.Net is not safe for
// concurrent use, so calls are serialized.
func (c *NetClassifier) Predict(ctx context.Context, batch []image.Image) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}
	return c.forward(batch)
}

func (c *NetClassifier) forward(batch []image.Image) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mats := make([]gocv.Mat, 0, len(batch))
	defer func() {
		for i := range mats {
			mats[i].Close()
		}
	}()
	for i, img := range batch {
		mat, err := gocv.ImageToMatRGB(img)
		if err != nil {
			return nil, errors.Wrapf(err, "image %d to mat", i)
		}
		mats = append(mats, mat)
	}

	// ImageToMatRGB yields BGR; swapRB restores RGB order in the blob.
	blob := gocv.NewMat()
	defer blob.Close()
	gocv.BlobFromImages(mats, &blob, float64(c.cfg.Scale), c.cfg.InputShape, gocv.NewScalar(0, 0, 0, 0), true, false, gocv.MatTypeCV32F)

	c.net.SetInput(blob, "")
	output := c.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "read model output")
	}
	if len(data)%len(batch) != 0 {
		return nil, errors.Errorf("model output of %d values does not split into %d rows", len(data), len(batch))
	}

	width := len(data) / len(batch)
	out := make([][]float32, len(batch))
	for i := range out {
		row := make([]float32, width)
		copy(row, data[i*width:(i+1)*width])
		if c.cfg.Softmax {
			Softmax(row)
		}
		out[i] = row
	}
	return out, nil
}

// Close releases the network.
func (c *NetClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}
