// Package geo provides the percentage-space geometry used to decide whether a
// click on a scene image lands inside a bug's region.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// MinVertices is the smallest number of points that defines a region.
const MinVertices = 3

// Bounds of the percentage coordinate space.
const (
	MinCoord = 0.0
	MaxCoord = 100.0
)

// Geometry validation errors.
var (
	ErrTooFewVertices  = errors.New("polygon needs at least 3 points")
	ErrOutOfBounds     = errors.New("coordinate outside 0-100 range")
	ErrNonFinite       = errors.New("coordinate is not a finite number")
	ErrInvalidViewport = errors.New("viewport dimensions must be positive")
)

// Coordinate is a point expressed as a percentage of the image width (X) and
// height (Y). Percentages keep regions independent of display resolution.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is an ordered ring of coordinates. Edges join consecutive points
// and the last point closes back to the first.
type Polygon []Coordinate

// Validate checks that a coordinate is finite and inside the image.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsInf(c.X, 0) || math.IsInf(c.Y, 0) {
		return ErrNonFinite
	}
	if c.X < MinCoord || c.X > MaxCoord || c.Y < MinCoord || c.Y > MaxCoord {
		return fmt.Errorf("%w: (%g, %g)", ErrOutOfBounds, c.X, c.Y)
	}
	return nil
}

// FromPixels converts a click at (px, py) on an image rendered at
// width x height pixels into percentage space.
func FromPixels(px, py, width, height float64) (Coordinate, error) {
	if width <= 0 || height <= 0 {
		return Coordinate{}, ErrInvalidViewport
	}
	return Coordinate{X: px / width * 100, Y: py / height * 100}, nil
}

// PointInPolygon reports whether p lies inside poly using the even-odd
// ray-casting rule. A horizontal ray is cast from p towards +X and every
// edge it crosses flips the result. Polygons with fewer than three vertices
// contain nothing. Points exactly on an edge may land on either side.
func PointInPolygon(p Coordinate, poly Polygon) bool {
	n := len(poly)
	if n < MinVertices {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := poly[i].X, poly[i].Y
		xj, yj := poly[j].X, poly[j].Y

		if (yi > p.Y) != (yj > p.Y) && p.X < (xj-xi)*(p.Y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// Contains is PointInPolygon with the receiver as the polygon.
func (poly Polygon) Contains(p Coordinate) bool {
	return PointInPolygon(p, poly)
}

// Validate checks the vertex count and every coordinate.
func (poly Polygon) Validate() error {
	if len(poly) < MinVertices {
		return fmt.Errorf("%w: got %d", ErrTooFewVertices, len(poly))
	}
	for i, c := range poly {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns a copy that shares no memory with poly.
// A nil polygon stays nil.
func (poly Polygon) Clone() Polygon {
	if poly == nil {
		return nil
	}
	out := make(Polygon, len(poly))
	copy(out, poly)
	return out
}

// Rotate returns the same ring starting at vertex k (mod len).
func (poly Polygon) Rotate(k int) Polygon {
	n := len(poly)
	if n == 0 {
		return poly.Clone()
	}
	k = ((k % n) + n) % n
	out := make(Polygon, 0, n)
	out = append(out, poly[k:]...)
	return append(out, poly[:k]...)
}

// Centroid returns the arithmetic mean of the vertices. For convex polygons
// the result is strictly inside.
func (poly Polygon) Centroid() Coordinate {
	if len(poly) == 0 {
		return Coordinate{}
	}
	var sx, sy float64
	for _, c := range poly {
		sx += c.X
		sy += c.Y
	}
	n := float64(len(poly))
	return Coordinate{X: sx / n, Y: sy / n}
}

// Bounds returns the axis-aligned bounding box as (min, max).
func (poly Polygon) Bounds() (Coordinate, Coordinate) {
	if len(poly) == 0 {
		return Coordinate{}, Coordinate{}
	}
	lo, hi := poly[0], poly[0]
	for _, c := range poly[1:] {
		lo.X = math.Min(lo.X, c.X)
		lo.Y = math.Min(lo.Y, c.Y)
		hi.X = math.Max(hi.X, c.X)
		hi.Y = math.Max(hi.Y, c.Y)
	}
	return lo, hi
}

// Equal reports whether both polygons hold the same points in the same order.
func (poly Polygon) Equal(other Polygon) bool {
	if len(poly) != len(other) {
		return false
	}
	for i := range poly {
		if poly[i] != other[i] {
			return false
		}
	}
	return true
}
