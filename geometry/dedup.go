package geometry

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// Deduplicate merges overlapping or touching boxes into one box per disjoint region.
//
// Every box becomes a polygon, the polygons are unioned and each disjoint
// shape is reduced to its minimum-area (rotation-aware) rectangle. The
// returned box is the axis-aligned bounds of that rectangle, so any rotation
// is discarded in the final conversion.
//
// Arguments:
//   - rects: Candidate boxes from one frame.
//
// Returns:
//   - []Rect: Non-overlapping boxes ordered by X then Y. Empty input yields nil.
//
// @example
// boxes := Deduplicate([]Rect{{0, 0, 10, 10}, {5, 5, 10, 10}}) // [{0 0 15 15}]
func Deduplicate(rects []Rect) []Rect {
	if len(rects) == 0 {
		return nil
	}

	polygons := make([]Polygon, 0, len(rects))
	for _, r := range rects {
		polygons = append(polygons, RectPolygon(r))
	}

	var out []Rect
	for _, shape := range Union(polygons) {
		points := make([]r2.Vec, len(shape))
		for i, v := range shape {
			points[i] = r2.Vec{X: float64(v.X), Y: float64(v.Y)}
		}
		box := boxToRect(MinAreaRect(points).Bounds())
		if box.W > 0 && box.H > 0 {
			out = append(out, box)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})

	return out
}
