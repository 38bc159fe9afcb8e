package images

import (
	"runtime"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// MedianBytes returns the median of values rounded to the nearest integer.
// For an even count it is the mean of the two middle values with halves
// rounded up. values is reordered in place. It returns 0 for an empty slice.
//
// Arguments:
//   - values: Samples of one channel of one pixel.
//
// Returns:
//   - uint8: The median sample.
//
// @example
// MedianBytes([]uint8{9, 1, 5})     // 5
// MedianBytes([]uint8{1, 2, 4, 10}) // 3
func MedianBytes(values []uint8) uint8 {
	n := len(values)
	if n == 0 {
		return 0
	}
	k := n / 2
	upper := selectNth(values, k)
	if n%2 == 1 {
		return upper
	}

	// After selection every value left of k is <= upper.
	lower := values[0]
	for _, v := range values[1:k] {
		lower = max(lower, v)
	}
	return uint8((int(lower) + int(upper) + 1) / 2)
}

// selectNth partially orders values so that values[k] holds the k-th smallest
// element and returns it.
func selectNth(values []uint8, k int) uint8 {
	lo, hi := 0, len(values)-1
	for lo < hi {
		pivot := values[lo+(hi-lo)/2]
		i, j := lo, hi
		for i <= j {
			for values[i] < pivot {
				i++
			}
			for values[j] > pivot {
				j--
			}
			if i <= j {
				values[i], values[j] = values[j], values[i]
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j
		case k >= i:
			lo = i
		default:
			return values[k]
		}
	}
	return values[k]
}

// MedianFrame computes the per-pixel, per-channel median of frames that share
// one size and type.
//
// Arguments:
//   - frames: Frames to combine. None of them is modified.
//
// Returns:
//   - gocv.Mat: A new frame the caller must close.
//   - error: ErrInsufficientFrames for no frames, ErrDimensionMismatch for mixed sizes.
func MedianFrame(frames []gocv.Mat) (gocv.Mat, error) {
	if len(frames) == 0 {
		return gocv.NewMat(), ErrInsufficientFrames
	}

	first := frames[0]
	planes := make([][]uint8, len(frames))
	for i := range frames {
		if !sameShape(frames[i], first) {
			return gocv.NewMat(), errors.Wrapf(ErrDimensionMismatch, "median frame %d", i)
		}
		data, err := frames[i].DataPtrUint8()
		if err != nil {
			return gocv.NewMat(), errors.Wrapf(err, "median frame %d", i)
		}
		planes[i] = data
	}

	size := len(planes[0])
	out := make([]uint8, size)

	// Split the buffer into contiguous chunks, one per CPU.
	workers := runtime.NumCPU()
	chunk := (size + workers - 1) / workers
	var g errgroup.Group
	for start := 0; start < size; start += chunk {
		end := min(start+chunk, size)
		g.Go(func() error {
			samples := make([]uint8, len(planes))
			for p := start; p < end; p++ {
				for f, plane := range planes {
					samples[f] = plane[p]
				}
				out[p] = MedianBytes(samples)
			}
			return nil
		})
	}
	_ = g.Wait()

	tmp, err := gocv.NewMatFromBytes(first.Rows(), first.Cols(), first.Type(), out)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "median frame")
	}
	defer tmp.Close()
	return tmp.Clone(), nil
}
