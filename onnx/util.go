package onnx

import (
	"os"
	"runtime"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// LibraryEnv overrides the onnxruntime shared library location.
const LibraryEnv = "ONNXRUNTIME_LIB"

// DefaultLibraryPath returns the onnxruntime shared library for this platform.
//
// Returns:
//   - string: The library path, from LibraryEnv when set.
//   - error: Error if no library is known for this platform.
func DefaultLibraryPath() (string, error) {
	if p := os.Getenv(LibraryEnv); p != "" {
		return p, nil
	}
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "third_party/onnxruntime.dll", nil
		}
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.dylib", nil
		}
		return "third_party/onnxruntime_amd64.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.so", nil
		}
		return "third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("no onnxruntime library for %s/%s; set %s", runtime.GOOS, runtime.GOARCH, LibraryEnv)
}

// Softmax converts logits to probabilities in place.
//
// Arguments:
//   - logits: Raw model scores.
//
// @example
// p := []float32{1, 1}
// Softmax(p) // p == [0.5 0.5]
func Softmax(logits []float32) {
	if len(logits) == 0 {
		return
	}
	peak := logits[0]
	for _, v := range logits[1:] {
		peak = math32.Max(peak, v)
	}

	var sum float32
	for i, v := range logits {
		logits[i] = math32.Exp(v - peak)
		sum += logits[i]
	}
	for i := range logits {
		logits[i] /= sum
	}
}
