// Package geo holds the small amount of vector geometry that the raster pipelines need:
// bounding boxes, points and polygons, in the coordinate system of the analysis grid.
package geo

import "math"

// Bounds is an axis-aligned rectangle
type Bounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// EmptyBounds returns an inverted box, which becomes valid after the first Extend
func EmptyBounds() Bounds {
	return Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

func (b Bounds) IsEmpty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

func (b Bounds) Width() float64 {
	return b.MaxX - b.MinX
}

func (b Bounds) Height() float64 {
	return b.MaxY - b.MinY
}

func (b *Bounds) Extend(x, y float64) {
	b.MinX = min(b.MinX, x)
	b.MinY = min(b.MinY, y)
	b.MaxX = max(b.MaxX, x)
	b.MaxY = max(b.MaxY, y)
}

func (b *Bounds) ExtendBounds(o Bounds) {
	if o.IsEmpty() {
		return
	}
	b.Extend(o.MinX, o.MinY)
	b.Extend(o.MaxX, o.MaxY)
}

func (b Bounds) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

func (b Bounds) Intersects(o Bounds) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Geometry is anything that can be tested for containment of a point.
type Geometry interface {
	Bounds() Bounds
	Contains(x, y float64) bool
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Bounds() Bounds {
	return Bounds{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y}
}

// A point contains nothing but itself
func (p Point) Contains(x, y float64) bool {
	return p.X == x && p.Y == y
}

// MultiPoint is a set of points
type MultiPoint []Point

func (m MultiPoint) Bounds() Bounds {
	b := EmptyBounds()
	for _, p := range m {
		b.Extend(p.X, p.Y)
	}
	return b
}

func (m MultiPoint) Contains(x, y float64) bool {
	for _, p := range m {
		if p.Contains(x, y) {
			return true
		}
	}
	return false
}

// Polygon is an outer ring followed by zero or more holes.
// Rings may be open or closed (first point repeated at the end).
type Polygon struct {
	Rings [][]Point `json:"rings"`
}

func (p *Polygon) Bounds() Bounds {
	b := EmptyBounds()
	if len(p.Rings) == 0 {
		return b
	}
	for _, pt := range p.Rings[0] {
		b.Extend(pt.X, pt.Y)
	}
	return b
}

// Contains uses the even-odd rule, so holes are excluded automatically.
func (p *Polygon) Contains(x, y float64) bool {
	inside := false
	for _, ring := range p.Rings {
		n := len(ring)
		for i, j := 0, n-1; i < n; j, i = i, i+1 {
			a := ring[i]
			b := ring[j]
			if (a.Y > y) != (b.Y > y) && x < (b.X-a.X)*(y-a.Y)/(b.Y-a.Y)+a.X {
				inside = !inside
			}
		}
	}
	return inside
}

// MultiPolygon is a union of polygons
type MultiPolygon []*Polygon

func (m MultiPolygon) Bounds() Bounds {
	b := EmptyBounds()
	for _, p := range m {
		b.ExtendBounds(p.Bounds())
	}
	return b
}

func (m MultiPolygon) Contains(x, y float64) bool {
	for _, p := range m {
		if p.Contains(x, y) {
			return true
		}
	}
	return false
}

// NewRectangle returns a polygon covering b
func NewRectangle(b Bounds) *Polygon {
	return &Polygon{
		Rings: [][]Point{{
			{b.MinX, b.MinY}, {b.MaxX, b.MinY}, {b.MaxX, b.MaxY}, {b.MinX, b.MaxY}, {b.MinX, b.MinY},
		}},
	}
}
