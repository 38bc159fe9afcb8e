package onnx

import (
	"image"
	"log/slog"
)

// Backend selects the inference engine of a classifier.
type Backend string

const (
	// BackendNet runs models through OpenCV's DNN module (gocv.ReadNet).
	BackendNet Backend = "net"
	// BackendRuntime runs models through the ONNX Runtime shared library.
	BackendRuntime Backend = "runtime"
)

// Layout is the memory order of the model input tensor.
type Layout string

const (
	// LayoutNCHW is [batch, channels, height, width].
	LayoutNCHW Layout = "nchw"
	// LayoutNHWC is [batch, height, width, channels], common for models exported from Keras.
	LayoutNHWC Layout = "nhwc"
)

// Config for ONNX classifiers.
type Config struct {
	// ModelPath is the path of the .onnx file.
	ModelPath string
	// InputShape is the width and height the model expects.
	InputShape image.Point
	// Scale multiplies every 0-255 pixel value before inference.
	Scale float32
	// Layout is the input tensor order (runtime backend only; OpenCV blobs are NCHW).
	Layout Layout
	// Softmax converts raw logits to probabilities for models without a softmax head.
	Softmax bool
	// BatchSize is the fixed batch of the runtime input tensor.
	BatchSize int
	// LibraryPath points at the onnxruntime shared library (runtime backend only).
	LibraryPath string
	// Logger receives initialization messages. Defaults to slog.Default().
	Logger *slog.Logger
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.InputShape == (image.Point{}) {
		c.InputShape = image.Pt(128, 128)
	}
	if c.Scale == 0 {
		c.Scale = 1
	}
	if c.Layout == "" {
		c.Layout = LayoutNHWC
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
