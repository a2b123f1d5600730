// Package geometry holds the point model of a tour request and the parametric
// manifold sampler that produces server-authored point sets.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/bizmatters/tour-orchestrator/internal/errs"
)

// MaxPoints bounds the size of a point set so solver runtime stays bounded
const MaxPoints = 3000

// Point is an immutable 2-D or 3-D coordinate tuple
type Point struct {
	c   [3]float64
	dim int
}

// NewPoint builds a point from 2 or 3 finite coordinates
func NewPoint(coords ...float64) (Point, error) {
	if len(coords) != 2 && len(coords) != 3 {
		return Point{}, errs.Validation("geometry.new_point", "point must have 2 or 3 coordinates, got %d", len(coords))
	}
	var p Point
	for i, v := range coords {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Point{}, errs.Validation("geometry.new_point", "coordinate %d is not finite", i)
		}
		p.c[i] = v
	}
	p.dim = len(coords)
	return p, nil
}

func point3(x, y, z float64) Point {
	return Point{c: [3]float64{x, y, z}, dim: 3}
}

// Dim returns the number of coordinates
func (p Point) Dim() int { return p.dim }

// X returns the first coordinate
func (p Point) X() float64 { return p.c[0] }

// Y returns the second coordinate
func (p Point) Y() float64 { return p.c[1] }

// Z returns the third coordinate, 0 for 2-D points
func (p Point) Z() float64 { return p.c[2] }

// Coords returns a copy of the coordinates
func (p Point) Coords() []float64 {
	out := make([]float64, p.dim)
	copy(out, p.c[:p.dim])
	return out
}

// Project keeps the first dim coordinates. Projecting up is not supported.
func (p Point) Project(dim int) Point {
	if dim >= p.dim {
		return p
	}
	q := Point{dim: dim}
	copy(q.c[:dim], p.c[:dim])
	return q
}

// MarshalJSON encodes the point as a coordinate array
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Coords())
}

func (p Point) String() string {
	if p.dim == 2 {
		return fmt.Sprintf("(%g, %g)", p.c[0], p.c[1])
	}
	return fmt.Sprintf("(%g, %g, %g)", p.c[0], p.c[1], p.c[2])
}

// PointSet is an ordered, fixed-dimension sequence of points. The index of a
// point is its identity in the engine's instance and tour files.
type PointSet struct {
	points []Point
	dim    int
}

// NewPointSet validates that all points share one dimension and that the set
// size is within [1, MaxPoints].
func NewPointSet(points []Point) (PointSet, error) {
	if len(points) == 0 {
		return PointSet{}, errs.Validation("geometry.point_set", "point set is empty")
	}
	if len(points) > MaxPoints {
		return PointSet{}, errs.Validation("geometry.point_set", "point set has %d points, maximum is %d", len(points), MaxPoints)
	}
	dim := points[0].Dim()
	for i, p := range points {
		if p.Dim() != dim {
			return PointSet{}, errs.Validation("geometry.point_set", "point %d has dimension %d, expected %d", i, p.Dim(), dim)
		}
	}
	own := make([]Point, len(points))
	copy(own, points)
	return PointSet{points: own, dim: dim}, nil
}

// FromFlat groups a flat coordinate sequence into dim-tuples, verbatim
func FromFlat(values []float64, dim int) (PointSet, error) {
	if err := ValidateDimension(dim); err != nil {
		return PointSet{}, err
	}
	if len(values) == 0 {
		return PointSet{}, errs.Validation("geometry.from_flat", "point list is empty")
	}
	if len(values)%dim != 0 {
		return PointSet{}, errs.Validation("geometry.from_flat", "point list length %d is not divisible by dimension %d", len(values), dim)
	}
	n := len(values) / dim
	if n > MaxPoints {
		return PointSet{}, errs.Validation("geometry.from_flat", "point list has %d points, maximum is %d", n, MaxPoints)
	}
	points := make([]Point, 0, n)
	for i := 0; i < len(values); i += dim {
		p, err := NewPoint(values[i : i+dim]...)
		if err != nil {
			return PointSet{}, fmt.Errorf("point %d: %w", i/dim, err)
		}
		points = append(points, p)
	}
	return PointSet{points: points, dim: dim}, nil
}

// ValidateDimension accepts 2 and 3 only
func ValidateDimension(dim int) error {
	if dim != 2 && dim != 3 {
		return errs.Validation("geometry.dimension", "unsupported dimension %d, must be 2 or 3", dim)
	}
	return nil
}

// Len returns the number of points
func (s PointSet) Len() int { return len(s.points) }

// Dim returns the dimension shared by every point
func (s PointSet) Dim() int { return s.dim }

// At returns the point with index i. It panics when i is out of range.
func (s PointSet) At(i int) Point { return s.points[i] }

// Points returns a copy of the points in index order
func (s PointSet) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Project returns a set whose points keep only their first dim coordinates
func (s PointSet) Project(dim int) PointSet {
	if dim >= s.dim {
		return s
	}
	out := make([]Point, len(s.points))
	for i, p := range s.points {
		out[i] = p.Project(dim)
	}
	return PointSet{points: out, dim: dim}
}

// Flatten concatenates the coordinates of pts in order
func Flatten(pts []Point) []float64 {
	if len(pts) == 0 {
		return []float64{}
	}
	out := make([]float64, 0, len(pts)*pts[0].Dim())
	for _, p := range pts {
		out = append(out, p.c[:p.dim]...)
	}
	return out
}

// Tour is a closed traversal: n+1 points where the last repeats the first
type Tour []Point

// Flat concatenates the tour's coordinates in traversal order
func (t Tour) Flat() []float64 {
	return Flatten(t)
}

// Closed reports whether the tour ends where it starts
func (t Tour) Closed() bool {
	return len(t) > 1 && t[0] == t[len(t)-1]
}
