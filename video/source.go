// Package video - Sequential and random-access frame sources for fixed-camera footage.
//
// Every Source yields BGR 8UC3 frames indexed from 0. Next decodes the frame at
// the current position into a caller-owned Mat and advances; Seek moves the
// position for random access (background sampling and the render pass).
package video

import (
	"fmt"
	"image"
	"os"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrSeek is returned when a frame index lies outside the source.
var ErrSeek = errors.New("video: seek out of range")

// Metadata describes a frame source.
type Metadata struct {
	// FPS is the nominal frame rate.
	FPS float64
	// Width is the frame width in pixels.
	Width int
	// Height is the frame height in pixels.
	Height int
	// FrameCount is the number of frames the source reports.
	FrameCount int
}

// Bounds returns the frame rectangle.
func (m Metadata) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// String implements fmt.Stringer.
func (m Metadata) String() string {
	return fmt.Sprintf("%dx%d@%.2ffps frames=%d", m.Width, m.Height, m.FPS, m.FrameCount)
}

// Source is a finite sequence of frames.
type Source interface {
	// Metadata describes the source.
	Metadata() Metadata
	// Next decodes the frame at the current position into dst and returns its
	// index. io.EOF is returned once the sequence is exhausted.
	Next(dst *gocv.Mat) (int, error)
	// Seek moves the position so that the next call to Next returns index.
	Seek(index int) error
	// Close releases the source.
	Close() error
}

// Open picks a Source for path: directories become an image-sequence source
// and anything else is opened as a video file.
//
// Arguments:
//   - path: Video file or directory of frame images.
//   - fps: Frame rate reported by image sequences. Ignored for video files.
//
// Returns:
//   - Source: The opened source.
//   - error: Error if the path cannot be opened.
//
// @example
// src, err := video.Open("clips/fox.mp4", 0)
//
//	if err != nil {
//	    return err
//	}
//
// defer src.Close()
func Open(path string, fps float64) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if info.IsDir() {
		return OpenSequence(path, fps)
	}
	return OpenFile(path)
}

func checkSeek(index, count int) error {
	if index < 0 || index >= count {
		return errors.Wrapf(ErrSeek, "frame %d of %d", index, count)
	}
	return nil
}
