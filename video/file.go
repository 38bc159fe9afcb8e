package video

import (
	"io"
	"math"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// FileSource reads frames from a video file through OpenCV.
type FileSource struct {
	capture *gocv.VideoCapture
	meta    Metadata
	next    int
}

// OpenFile opens a video file.
func OpenFile(path string) (*FileSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open video %s", path)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("open video %s: capture not opened", path)
	}

	return &FileSource{
		capture: capture,
		meta: Metadata{
			FPS:        capture.Get(gocv.VideoCaptureFPS),
			Width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
			Height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
			FrameCount: int(math.Max(capture.Get(gocv.VideoCaptureFrameCount), 0)),
		},
	}, nil
}

// Metadata implements Source.
func (f *FileSource) Metadata() Metadata {
	return f.meta
}

// Next implements Source. A failed read ends the sequence, as with any
// container whose reported frame count overstates the decodable frames.
func (f *FileSource) Next(dst *gocv.Mat) (int, error) {
	if ok := f.capture.Read(dst); !ok || dst.Empty() {
		return f.next, io.EOF
	}
	index := f.next
	f.next++
	return index, nil
}

// Seek implements Source.
func (f *FileSource) Seek(index int) error {
	if err := checkSeek(index, f.meta.FrameCount); err != nil {
		return err
	}
	f.capture.Set(gocv.VideoCapturePosFrames, float64(index))
	f.next = index
	return nil
}

// Close implements Source.
func (f *FileSource) Close() error {
	return f.capture.Close()
}
