package classifier

import (
	"image"

	"github.com/nvr-ai/camtrap/geometry"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Crop cuts box out of frame and returns it as a size x size RGB image.
//
// The box is first grown by expandPercent (geometry.ExpandBBox) and then
// clamped to the frame, so boxes that reach past the frame edge are cropped
// to the visible part instead of failing.
//
// Arguments:
//   - frame: The BGR frame.
//   - box: The motion box in frame coordinates.
//   - expandPercent: Growth applied to the box before cropping.
//   - size: Side of the output image.
//
// Returns:
//   - image.Image: The RGB crop.
//   - geometry.Rect: The region actually cropped.
//   - error: Error if nothing of the box lies inside the frame.
func Crop(frame gocv.Mat, box geometry.Rect, expandPercent float64, size int) (image.Image, geometry.Rect, error) {
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	region := geometry.ClampTo(geometry.ExpandBBox(box, expandPercent), bounds)
	if !region.Valid() {
		return nil, region, errors.Errorf("crop %v outside frame %v", box, bounds)
	}

	roi := frame.Region(region.ImageRect())
	defer roi.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(roi, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	img, err := resized.ToImage()
	if err != nil {
		return nil, region, errors.Wrap(err, "crop to image")
	}
	return img, region, nil
}
