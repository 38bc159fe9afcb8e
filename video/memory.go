package video

import (
	"io"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// MemorySource serves frames held in memory. It owns the frames and closes
// them on Close.
type MemorySource struct {
	frames []gocv.Mat
	fps    float64
	next   int
}

// NewMemorySource wraps frames that all share the size of the first one.
func NewMemorySource(frames []gocv.Mat, fps float64) (*MemorySource, error) {
	for i, f := range frames {
		if f.Empty() {
			return nil, errors.Errorf("memory source: frame %d is empty", i)
		}
		if f.Rows() != frames[0].Rows() || f.Cols() != frames[0].Cols() {
			return nil, errors.Errorf("memory source: frame %d is %dx%d, want %dx%d",
				i, f.Cols(), f.Rows(), frames[0].Cols(), frames[0].Rows())
		}
	}
	return &MemorySource{frames: frames, fps: fps}, nil
}

// Metadata implements Source.
func (m *MemorySource) Metadata() Metadata {
	meta := Metadata{FPS: m.fps, FrameCount: len(m.frames)}
	if len(m.frames) > 0 {
		meta.Width, meta.Height = m.frames[0].Cols(), m.frames[0].Rows()
	}
	return meta
}

// Next implements Source.
func (m *MemorySource) Next(dst *gocv.Mat) (int, error) {
	if m.next >= len(m.frames) {
		return m.next, io.EOF
	}
	index := m.next
	m.frames[index].CopyTo(dst)
	m.next++
	return index, nil
}

// Seek implements Source.
func (m *MemorySource) Seek(index int) error {
	if err := checkSeek(index, len(m.frames)); err != nil {
		return err
	}
	m.next = index
	return nil
}

// Close implements Source.
func (m *MemorySource) Close() error {
	for i := range m.frames {
		m.frames[i].Close()
	}
	m.frames = nil
	return nil
}
