// Package images - Reference background construction and background-difference
// motion segmentation for fixed-camera footage, using OpenCV (via gocv).
package images

import (
	"math/rand/v2"

	"github.com/nvr-ai/camtrap/video"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	// ErrDecode is returned when an image cannot be read or decodes to nothing.
	ErrDecode = errors.New("images: cannot decode image")
	// ErrInsufficientFrames is returned when no frame could be sampled for the background.
	ErrInsufficientFrames = errors.New("images: no frames available for background estimation")
	// ErrDimensionMismatch is returned when a frame and the background differ in size or type.
	ErrDimensionMismatch = errors.New("images: frame and background dimensions differ")
)

// LoadBackground reads a still image of the empty scene.
//
// Arguments:
//   - path: Path of the background image.
//
// Returns:
//   - gocv.Mat: The BGR background; the caller must close it.
//   - error: ErrDecode if the file is missing, unreadable or empty.
func LoadBackground(path string) (gocv.Mat, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		return mat, errors.Wrapf(ErrDecode, "background %s", path)
	}
	return mat, nil
}

// EstimateBackground builds a background as the per-pixel median of randomly
// sampled frames.
//
// samples indices are drawn independently and uniformly from
// [0, FrameCount) with replacement. Indices that cannot be sought or decoded
// are skipped, as are frames whose size or type differs from the first
// retrieved frame. The source position is left wherever sampling ended; seek
// back before reading it sequentially.
//
// Arguments:
//   - src: The video to sample.
//   - samples: Number of indices to draw.
//   - rng: Random source; seed it for reproducible backgrounds.
//
// Returns:
//   - gocv.Mat: The background; the caller must close it.
//   - error: ErrInsufficientFrames if no frame was retrieved.
//
// @example
// rng := rand.New(rand.NewPCG(42, 42))
// bg, err := images.EstimateBackground(src, 50, rng)
//
//	if err != nil {
//	    return err
//	}
//
// defer bg.Close()
func EstimateBackground(src video.Source, samples int, rng *rand.Rand) (gocv.Mat, error) {
	count := src.Metadata().FrameCount
	if count <= 0 || samples <= 0 {
		return gocv.NewMat(), errors.Wrapf(ErrInsufficientFrames, "%d frames, %d samples", count, samples)
	}

	frames := make([]gocv.Mat, 0, samples)
	defer func() {
		for i := range frames {
			frames[i].Close()
		}
	}()

	for i := 0; i < samples; i++ {
		index := int(float64(count) * rng.Float64())
		if err := src.Seek(index); err != nil {
			continue
		}

		frame := gocv.NewMat()
		if _, err := src.Next(&frame); err != nil || frame.Empty() {
			frame.Close()
			continue
		}
		if len(frames) > 0 && !sameShape(frame, frames[0]) {
			frame.Close()
			continue
		}
		frames = append(frames, frame)
	}

	if len(frames) == 0 {
		return gocv.NewMat(), errors.Wrapf(ErrInsufficientFrames, "none of %d sampled frames decoded", samples)
	}
	return MedianFrame(frames)
}

// CheckDimensions verifies that a background can be differenced against
// frames of the given size.
func CheckDimensions(background gocv.Mat, width, height int) error {
	if background.Cols() != width || background.Rows() != height {
		return errors.Wrapf(ErrDimensionMismatch, "background %dx%d, video %dx%d",
			background.Cols(), background.Rows(), width, height)
	}
	return nil
}

func sameShape(a, b gocv.Mat) bool {
	return a.Rows() == b.Rows() && a.Cols() == b.Cols() && a.Type() == b.Type()
}
