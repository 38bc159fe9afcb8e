package geometry

import (
	"math"

	clipper "github.com/ctessum/go.clipper"
)

// Polygon is a closed ring of integer vertices. The last vertex connects back
// to the first; it is not repeated.
type Polygon []Point

// Point is an integer vertex.
type Point struct {
	X, Y int64
}

// RectPolygon returns the axis-aligned 4-vertex polygon covering r.
func RectPolygon(r Rect) Polygon {
	x1, y1 := int64(r.X), int64(r.Y)
	x2, y2 := int64(r.X+r.W), int64(r.Y+r.H)
	return Polygon{{x1, y1}, {x1, y2}, {x2, y2}, {x2, y1}}
}

// Bounds returns the axis-aligned bounds of the polygon. An empty polygon
// yields the zero Rect.
func (p Polygon) Bounds() Rect {
	if len(p) == 0 {
		return Rect{}
	}
	minX, minY := p[0].X, p[0].Y
	maxX, maxY := minX, minY
	for _, v := range p[1:] {
		minX = min(minX, v.X)
		minY = min(minY, v.Y)
		maxX = max(maxX, v.X)
		maxY = max(maxY, v.Y)
	}
	return Rect{X: int(minX), Y: int(minY), W: int(maxX - minX), H: int(maxY - minY)}
}

// SignedArea returns the shoelace area. The sign depends on the winding order.
func (p Polygon) SignedArea() float64 {
	if len(p) < 3 {
		return 0
	}
	var sum float64
	for i := range p {
		j := (i + 1) % len(p)
		sum += float64(p[i].X)*float64(p[j].Y) - float64(p[j].X)*float64(p[i].Y)
	}
	return sum / 2
}

// Union merges all polygons and returns the outer rings of the disjoint
// resulting shapes. Holes are dropped since they never affect the bounds of
// the shape that encloses them. Degenerate (zero-area) inputs vanish.
func Union(polygons []Polygon) []Polygon {
	if len(polygons) == 0 {
		return nil
	}

	subject := make(clipper.Paths, 0, len(polygons))
	for _, poly := range polygons {
		if len(poly) < 3 {
			continue
		}
		path := make(clipper.Path, 0, len(poly))
		for _, v := range poly {
			path = append(path, &clipper.IntPoint{X: clipper.CInt(v.X), Y: clipper.CInt(v.Y)})
		}
		subject = append(subject, path)
	}
	if len(subject) == 0 {
		return nil
	}

	c := clipper.NewClipper(clipper.IoStrictlySimple)
	c.AddPaths(subject, clipper.PtSubject, true)
	solution, ok := c.Execute1(clipper.CtUnion, clipper.PftNonZero, clipper.PftNonZero)
	if !ok {
		return nil
	}

	rings := make([]Polygon, 0, len(solution))
	for _, path := range solution {
		ring := make(Polygon, 0, len(path))
		for _, pt := range path {
			ring = append(ring, Point{X: int64(pt.X), Y: int64(pt.Y)})
		}
		if ring.SignedArea() != 0 {
			rings = append(rings, ring)
		}
	}

	return outerRings(rings)
}

// outerRings keeps the rings that wind like the largest ring. The largest
// ring is always an outer boundary, so its sign identifies outer rings
// regardless of the winding convention of the clipping library.
func outerRings(rings []Polygon) []Polygon {
	if len(rings) == 0 {
		return nil
	}

	var largest float64
	for _, ring := range rings {
		if a := ring.SignedArea(); math.Abs(a) > math.Abs(largest) {
			largest = a
		}
	}

	outer := rings[:0]
	for _, ring := range rings {
		if (ring.SignedArea() > 0) == (largest > 0) {
			outer = append(outer, ring)
		}
	}
	return outer
}
