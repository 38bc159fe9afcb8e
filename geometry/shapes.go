// Package geometry - Rectangles, polygons and region deduplication for motion boxes.
package geometry

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Rect is an axis-aligned box in pixel coordinates.
//
// X,Y is the top-left corner. A valid Rect has W > 0, H > 0 and X,Y >= 0.
type Rect struct {
	X, Y, W, H int
}

// FromImageRect converts an image.Rectangle (Min inclusive, Max exclusive) into a Rect.
func FromImageRect(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// ImageRect returns the rectangle as an image.Rectangle.
func (r Rect) ImageRect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Valid reports whether the rectangle satisfies the box invariants.
func (r Rect) Valid() bool {
	return r.W > 0 && r.H > 0 && r.X >= 0 && r.Y >= 0
}

// Area returns W*H.
func (r Rect) Area() int {
	return r.W * r.H
}

// Centroid returns the geometric centre of the box.
//
// Returns:
//   - r2.Vec: The centre point in floating point pixel coordinates.
//
// @example
// c := Rect{X: 0, Y: 0, W: 10, H: 20}.Centroid() // {5, 10}
func (r Rect) Centroid() r2.Vec {
	return r2.Vec{
		X: float64(r.X) + float64(r.W)/2,
		Y: float64(r.Y) + float64(r.H)/2,
	}
}

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y && o.X+o.W <= r.X+r.W && o.Y+o.H <= r.Y+r.H
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.W, r.H)
}

// ExpandBBox grows a box by a percentage of its own size.
//
// The added margin is split evenly on both sides so the box keeps its centre,
// and the new top-left corner is clamped to be non-negative. The far edges are
// not clamped; use ClampTo against the frame bounds before cropping.
//
// Arguments:
//   - r: The box to expand.
//   - percent: Growth of the width and height, in percent. 0 leaves r untouched.
//
// Returns:
//   - Rect: The expanded box.
//
// @example
// ExpandBBox(Rect{X: 10, Y: 10, W: 10, H: 10}, 100) // {5, 5, 20, 20}
func ExpandBBox(r Rect, percent float64) Rect {
	if percent == 0 {
		return r
	}

	dw := float64(r.W) * percent / 100
	dh := float64(r.H) * percent / 100

	return Rect{
		X: int(math.Max(float64(r.X)-dw/2, 0)),
		Y: int(math.Max(float64(r.Y)-dh/2, 0)),
		W: int(float64(r.W) + dw),
		H: int(float64(r.H) + dh),
	}
}

// ClampTo intersects r with bounds. The result may be empty (W or H == 0) when
// the box lies completely outside the bounds.
func ClampTo(r Rect, bounds image.Rectangle) Rect {
	return FromImageRect(r.ImageRect().Intersect(bounds))
}
