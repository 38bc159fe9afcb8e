package geometry

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// snapEpsilon absorbs the floating point noise introduced by projecting onto
// rotated axes, so an axis-aligned result maps back to exact integers.
const snapEpsilon = 1e-6

// RotatedRect is a rectangle with arbitrary orientation, described by its four corners.
type RotatedRect struct {
	Corners [4]r2.Vec
	Area    float64
}

// Bounds returns the axis-aligned box enclosing the rotated rectangle.
func (rr RotatedRect) Bounds() r2.Box {
	b := r2.Box{Min: rr.Corners[0], Max: rr.Corners[0]}
	for _, c := range rr.Corners[1:] {
		b.Min.X = math.Min(b.Min.X, c.X)
		b.Min.Y = math.Min(b.Min.Y, c.Y)
		b.Max.X = math.Max(b.Max.X, c.X)
		b.Max.Y = math.Max(b.Max.Y, c.Y)
	}
	return b
}

// ConvexHull returns the hull of the points in counter-clockwise order
// (Andrew's monotone chain). Collinear points are dropped.
func ConvexHull(points []r2.Vec) []r2.Vec {
	pts := make([]r2.Vec, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	// Dedupe consecutive equal points.
	uniq := pts[:0]
	for i, p := range pts {
		if i == 0 || p != uniq[len(uniq)-1] {
			uniq = append(uniq, p)
		}
	}
	pts = uniq
	if len(pts) < 3 {
		return pts
	}

	turn := func(o, a, b r2.Vec) float64 {
		return r2.Cross(r2.Sub(a, o), r2.Sub(b, o))
	}

	hull := make([]r2.Vec, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	return hull[:len(hull)-1]
}

// MinAreaRect returns the minimum-area enclosing rectangle of the points.
//
// The optimal rectangle has one side collinear with a convex hull edge, so
// every hull edge direction is tried and the smallest box kept. Ties keep the
// first edge, which makes the result deterministic. Fewer than three distinct
// non-collinear points yield a degenerate rectangle spanning them.
//
// Arguments:
//   - points: The points to enclose.
//
// Returns:
//   - RotatedRect: The enclosing rectangle; its Area is 0 for degenerate input.
func MinAreaRect(points []r2.Vec) RotatedRect {
	hull := ConvexHull(points)
	switch len(hull) {
	case 0:
		return RotatedRect{}
	case 1, 2:
		a, b := hull[0], hull[len(hull)-1]
		return RotatedRect{Corners: [4]r2.Vec{a, b, b, a}}
	}

	best := RotatedRect{Area: math.Inf(1)}
	for i := range hull {
		edge := r2.Sub(hull[(i+1)%len(hull)], hull[i])
		if r2.Norm(edge) == 0 {
			continue
		}
		u := r2.Unit(edge)
		v := r2.Vec{X: -u.Y, Y: u.X}

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			pu, pv := r2.Dot(p, u), r2.Dot(p, v)
			minU, maxU = math.Min(minU, pu), math.Max(maxU, pu)
			minV, maxV = math.Min(minV, pv), math.Max(maxV, pv)
		}

		area := (maxU - minU) * (maxV - minV)
		if area < best.Area-snapEpsilon {
			corner := func(a, b float64) r2.Vec {
				return r2.Add(r2.Scale(a, u), r2.Scale(b, v))
			}
			best = RotatedRect{
				Corners: [4]r2.Vec{
					corner(minU, minV),
					corner(maxU, minV),
					corner(maxU, maxV),
					corner(minU, maxV),
				},
				Area: area,
			}
		}
	}

	return best
}

// snap rounds values that sit within snapEpsilon of an integer.
func snap(f float64) float64 {
	if r := math.Round(f); math.Abs(f-r) < snapEpsilon {
		return r
	}
	return f
}

// boxToRect converts floating bounds to an integer Rect, truncating like an
// int conversion of each bound and clamping the corner to the first quadrant.
func boxToRect(b r2.Box) Rect {
	minX, minY := math.Max(snap(b.Min.X), 0), math.Max(snap(b.Min.Y), 0)
	maxX, maxY := snap(b.Max.X), snap(b.Max.Y)

	return Rect{
		X: int(minX),
		Y: int(minY),
		W: int(maxX - minX),
		H: int(maxY - minY),
	}
}
