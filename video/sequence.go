package video

import (
	"io"

	"github.com/nvr-ai/camtrap/util"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultSequenceFPS is reported by image sequences opened without a frame rate.
const DefaultSequenceFPS = 25

// SequenceSource serves a directory of numbered frame images
// (frame-0001.jpg, frame-0002.jpg, ...) in frame-number order.
//
// The encoded bytes stay in memory and each frame is decoded on demand.
type SequenceSource struct {
	files []util.ImageFile
	meta  Metadata
	next  int
}

// OpenSequence loads the frame images of dir.
func OpenSequence(dir string, fps float64) (*SequenceSource, error) {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open sequence %s", dir)
	}
	if fps <= 0 {
		fps = DefaultSequenceFPS
	}

	s := &SequenceSource{files: files, meta: Metadata{FPS: fps, FrameCount: len(files)}}
	if len(files) > 0 {
		first, err := gocv.IMDecode(files[0].Data, gocv.IMReadColor)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", files[0].Path)
		}
		defer first.Close()
		if first.Empty() {
			return nil, errors.Errorf("decode %s: empty image", files[0].Path)
		}
		s.meta.Width, s.meta.Height = first.Cols(), first.Rows()
	}
	return s, nil
}

// Metadata implements Source.
func (s *SequenceSource) Metadata() Metadata {
	return s.meta
}

// Next implements Source.
func (s *SequenceSource) Next(dst *gocv.Mat) (int, error) {
	if s.next >= len(s.files) {
		return s.next, io.EOF
	}
	file := s.files[s.next]
	mat, err := gocv.IMDecode(file.Data, gocv.IMReadColor)
	if err != nil {
		return s.next, errors.Wrapf(err, "decode %s", file.Path)
	}
	defer mat.Close()
	if mat.Empty() {
		return s.next, errors.Errorf("decode %s: empty image", file.Path)
	}

	mat.CopyTo(dst)
	index := s.next
	s.next++
	return index, nil
}

// Seek implements Source.
func (s *SequenceSource) Seek(index int) error {
	if err := checkSeek(index, len(s.files)); err != nil {
		return err
	}
	s.next = index
	return nil
}

// Close implements Source.
func (s *SequenceSource) Close() error {
	s.files = nil
	return nil
}
