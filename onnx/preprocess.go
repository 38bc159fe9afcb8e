package onnx

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// FillTensor writes a batch of images into a float32 input buffer.
//
// Images whose size differs from shape are resized with bilinear
// interpolation. Pixels are written in RGB order, multiplied by scale, in the
// given layout. Slots past len(batch) are zeroed.
//
// Arguments:
//   - dst: The tensor data, sized for at least len(batch) images.
//   - batch: The images.
//   - shape: The model input width and height.
//   - layout: NCHW or NHWC.
//   - scale: Multiplier applied to 0-255 values.
//
// Returns:
//   - error: Error if dst is too small for the batch.
func FillTensor(dst []float32, batch []image.Image, shape image.Point, layout Layout, scale float32) error {
	w, h := shape.X, shape.Y
	plane := w * h
	per := plane * 3
	if len(dst) < per*len(batch) {
		return errors.Errorf("destination tensor only holds %d floats, needs %d", len(dst), per*len(batch))
	}

	for n, img := range batch {
		if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
			img = resize.Resize(uint(w), uint(h), img, resize.Bilinear)
		}
		base := n * per
		origin := img.Bounds().Min

		i := 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, b, _ := img.At(origin.X+x, origin.Y+y).RGBA()
				rf := float32(r>>8) * scale
				gf := float32(g>>8) * scale
				bf := float32(b>>8) * scale
				if layout == LayoutNCHW {
					dst[base+i] = rf
					dst[base+plane+i] = gf
					dst[base+2*plane+i] = bf
				} else {
					dst[base+3*i] = rf
					dst[base+3*i+1] = gf
					dst[base+3*i+2] = bf
				}
				i++
			}
		}
	}

	clear(dst[per*len(batch):])
	return nil
}
