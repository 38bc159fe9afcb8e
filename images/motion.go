// This file contains the background-difference motion segmentation.
//
// The MotionSegmenter compares every frame against a fixed reference
// background of the empty scene:
//
// ┌──────────────┐   ┌────────────┐
// │ Input Frame  │   │ Background │
// └──────┬───────┘   └─────┬──────┘
// ┌────────────────────────────────┐
// │ Absolute difference (BGR)      │
// └──────┬─────────────────────────┘
// ┌────────────────────────────────┐
// │ Grayscale + Gaussian blur      │
// └──────┬─────────────────────────┘
// ┌────────────────────────────────┐
// │ Thresholding (binary mask)     │
// └──────┬─────────────────────────┘
// ┌────────────────────────────────┐
// │ Morphology (dilate)            │
// └──────┬─────────────────────────┘
// ┌────────────────────────────────┐
// │ External contours + area filter│
// └──────┬─────────────────────────┘
// ┌────────────────────────────────┐
// │ Bounding rectangles            │
// └────────────────────────────────┘
//
// Usage:
//
//	seg := images.NewMotionSegmenter(images.DefaultSegmenterOptions())
//	defer seg.Close()
//
//	boxes, err := seg.Segment(frame, background, 3000)
//
// A MotionSegmenter keeps scratch matrices between calls and must not be
// shared between goroutines. Call Close() to release native resources.
package images

import (
	"image"

	"github.com/nvr-ai/camtrap/geometry"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// SegmenterOptions tunes the difference pipeline.
type SegmenterOptions struct {
	// BlurKernel is the side of the square Gaussian kernel. Must be odd.
	BlurKernel int
	// Threshold is the gray-level difference above which a pixel is motion.
	Threshold float32
	// DilateIterations is the number of 3x3 dilations applied to the mask.
	DilateIterations int
}

// DefaultSegmenterOptions returns the camera-trap defaults: an 11x11 blur,
// a cutoff of 20 and two dilations.
func DefaultSegmenterOptions() SegmenterOptions {
	return SegmenterOptions{
		BlurKernel:       11,
		Threshold:        20,
		DilateIterations: 2,
	}
}

// MotionSegmenter finds moving regions by differencing frames against a
// reference background.
type MotionSegmenter struct {
	Delta     gocv.Mat // Per-channel absolute difference
	Gray      gocv.Mat // Blurred grayscale difference
	Threshold gocv.Mat // Binary mask after thresholding and dilation
	Kernel    gocv.Mat // 3x3 rectangular dilation kernel

	opts SegmenterOptions
}

// NewMotionSegmenter constructs a MotionSegmenter with initialized OpenCV matrices.
//
// Always call Close() to release memory.
func NewMotionSegmenter(opts SegmenterOptions) *MotionSegmenter {
	return &MotionSegmenter{
		Delta:     gocv.NewMat(),
		Gray:      gocv.NewMat(),
		Threshold: gocv.NewMat(),
		Kernel:    gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
		opts:      opts,
	}
}

// Difference computes the blurred grayscale difference between frame and
// background into m.Gray. The background is never modified.
//
// Arguments:
//   - frame: The BGR frame to process.
//   - background: The BGR reference background.
//
// Returns:
//   - error: ErrDimensionMismatch if the two images differ in size or type.
func (m *MotionSegmenter) Difference(frame, background gocv.Mat) error {
	if !sameShape(frame, background) {
		return errors.Wrapf(ErrDimensionMismatch, "frame %dx%d, background %dx%d",
			frame.Cols(), frame.Rows(), background.Cols(), background.Rows())
	}

	gocv.AbsDiff(frame, background, &m.Delta)
	if m.Delta.Channels() > 1 {
		gocv.CvtColor(m.Delta, &m.Gray, gocv.ColorBGRToGray)
	} else {
		m.Delta.CopyTo(&m.Gray)
	}
	k := m.opts.BlurKernel
	gocv.GaussianBlur(m.Gray, &m.Gray, image.Pt(k, k), 0, 0, gocv.BorderDefault)
	return nil
}

// ApplyThreshold converts the grayscale difference to a binary mask.
// Pixels above the threshold become maxVal; others become black.
//
// Side Effect: Updates the Threshold field with a binary image.
//
// Returns:
//   - The threshold used (same as input threshold).
func (m *MotionSegmenter) ApplyThreshold(threshold float32, maxVal float32) float32 {
	return gocv.Threshold(m.Gray, &m.Threshold, threshold, maxVal, gocv.ThresholdBinary)
}

// FillGaps dilates the binary mask iterations times to connect fragmented
// regions and fill small gaps.
func (m *MotionSegmenter) FillGaps(iterations int) error {
	for i := 0; i < iterations; i++ {
		if err := gocv.Dilate(m.Threshold, &m.Threshold, m.Kernel); err != nil {
			return err
		}
	}
	return nil
}

// DetectContours extracts the external contours of connected regions in the
// binary mask. The caller must close the returned vector.
func (m *MotionSegmenter) DetectContours() gocv.PointsVector {
	return gocv.FindContours(m.Threshold, gocv.RetrievalExternal, gocv.ChainApproxSimple)
}

// Regions returns the bounding rectangle of every contour whose area is at
// least minimumArea, in contour order.
func (m *MotionSegmenter) Regions(contours gocv.PointsVector, minimumArea float64) []geometry.Rect {
	var boxes []geometry.Rect
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if gocv.ContourArea(contour) < minimumArea {
			continue
		}
		box := geometry.FromImageRect(gocv.BoundingRect(contour))
		if box.Valid() {
			boxes = append(boxes, box)
		}
	}
	return boxes
}

// Segment runs the full pipeline on one frame.
//
// Arguments:
//   - frame: The BGR frame to process.
//   - background: The BGR reference background, same size and type as frame.
//   - areaThreshold: Minimum contour area in pixels.
//
// Returns:
//   - []geometry.Rect: Motion boxes in contour discovery order. Empty when
//     nothing moved.
//   - error: ErrDimensionMismatch, or an OpenCV failure.
//
// @example
// boxes, err := seg.Segment(frame, background, 3000)
func (m *MotionSegmenter) Segment(frame, background gocv.Mat, areaThreshold float64) ([]geometry.Rect, error) {
	if err := m.Difference(frame, background); err != nil {
		return nil, err
	}
	m.ApplyThreshold(m.opts.Threshold, 255)
	if err := m.FillGaps(m.opts.DilateIterations); err != nil {
		return nil, errors.Wrap(err, "dilate")
	}

	contours := m.DetectContours()
	defer contours.Close()
	return m.Regions(contours, areaThreshold), nil
}

// Close releases all OpenCV native resources used by the segmenter.
func (m *MotionSegmenter) Close() {
	m.Delta.Close()
	m.Gray.Close()
	m.Threshold.Close()
	m.Kernel.Close()
}
