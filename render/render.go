// Package render - Draws detections onto frames and writes annotated video.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/nvr-ai/camtrap/geometry"
	"github.com/nvr-ai/camtrap/labels"
	"github.com/nvr-ai/camtrap/video"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Annotation is one box to draw on a frame.
type Annotation struct {
	Box     geometry.Rect
	Label   string
	Score   float64
	TrackID int
}

// Renderer consumes frames in order together with their annotations.
type Renderer interface {
	// WriteFrame draws annotations onto frame and emits it.
	WriteFrame(frame *gocv.Mat, annotations []Annotation) error
	// Close flushes and releases the output.
	Close() error
}

// Style controls how annotations look.
type Style struct {
	Palette labels.Palette
	// Classified switches the banner from "n/a" to "label: score%".
	Classified bool
	Thickness  int
	FontScale  float64
}

// DefaultStyle returns the default drawing style.
func DefaultStyle(classified bool) Style {
	return Style{
		Palette:    labels.DefaultPalette(),
		Classified: classified,
		Thickness:  2,
		FontScale:  0.6,
	}
}

// Visible reports whether an annotation is drawn: unclassified boxes and
// confidently labelled ones.
func Visible(a Annotation) bool {
	return a.Label == "" || labels.Confident(a.Label)
}

// Color picks the colour of an annotation: by label when it has one, else by track.
func (s Style) Color(a Annotation) color.RGBA {
	if a.Label != "" {
		return s.Palette.LabelColor(a.Label)
	}
	return s.Palette.TrackColor(a.TrackID)
}

// Caption returns the banner text of an annotation.
func (s Style) Caption(a Annotation) string {
	if !s.Classified {
		return "n/a"
	}
	return fmt.Sprintf("%s: %.2f%%", a.Label, a.Score)
}

// Draw renders visible annotations onto frame: a box outline and a filled
// banner above it holding the caption.
func (s Style) Draw(frame *gocv.Mat, annotations []Annotation) {
	white := color.RGBA{255, 255, 255, 0}
	for _, a := range annotations {
		if !Visible(a) {
			continue
		}
		c := s.Color(a)
		rect := a.Box.ImageRect()
		gocv.Rectangle(frame, rect, c, s.Thickness)

		text := s.Caption(a)
		size := gocv.GetTextSize(text, gocv.FontHersheySimplex, s.FontScale, 1)
		banner := image.Rect(rect.Min.X, rect.Min.Y-20, rect.Min.X+size.X, rect.Min.Y)
		gocv.Rectangle(frame, banner, c, -1)
		gocv.PutText(frame, text, image.Pt(rect.Min.X, rect.Min.Y-5), gocv.FontHersheySimplex, s.FontScale, white, 1)
	}
}

// VideoRenderer writes annotated frames to a video file.
type VideoRenderer struct {
	writer *gocv.VideoWriter
	style  Style
}

// NewVideoRenderer creates an mp4v video with the geometry and rate of meta.
//
// Arguments:
//   - path: The output file.
//   - meta: Frame size and rate of the source.
//   - style: Drawing style.
//
// Returns:
//   - *VideoRenderer: The renderer; call Close to finish the file.
//   - error: Error if the writer cannot be opened.
func NewVideoRenderer(path string, meta video.Metadata, style Style) (*VideoRenderer, error) {
	writer, err := gocv.VideoWriterFile(path, "mp4v", meta.FPS, meta.Width, meta.Height, true)
	if err != nil {
		return nil, errors.Wrapf(err, "open output video %s", path)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, errors.Errorf("open output video %s: writer not opened", path)
	}
	return &VideoRenderer{writer: writer, style: style}, nil
}

// WriteFrame implements Renderer.
func (v *VideoRenderer) WriteFrame(frame *gocv.Mat, annotations []Annotation) error {
	v.style.Draw(frame, annotations)
	return v.writer.Write(*frame)
}

// Close implements Renderer.
func (v *VideoRenderer) Close() error {
	return v.writer.Close()
}

// Replay rewinds src and passes every frame, with the annotations of its
// index, to r. Frames without annotations are written untouched.
//
// Arguments:
//   - ctx: Cancels between frames.
//   - src: The video that was analysed.
//   - r: The output.
//   - byFrame: Annotations keyed by frame index.
//
// Returns:
//   - int: Number of frames written.
//   - error: Error if seeking, decoding or writing fails.
func Replay(ctx context.Context, src video.Source, r Renderer, byFrame map[int][]Annotation) (int, error) {
	if src.Metadata().FrameCount > 0 {
		if err := src.Seek(0); err != nil {
			return 0, errors.Wrap(err, "rewind")
		}
	}

	frame := gocv.NewMat()
	defer frame.Close()

	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		index, err := src.Next(&frame)
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, errors.Wrapf(err, "decode frame %d", index)
		}
		if err := r.WriteFrame(&frame, byFrame[index]); err != nil {
			return written, errors.Wrapf(err, "write frame %d", index)
		}
		written++
	}
}
