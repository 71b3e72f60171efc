package raster

import (
	"math"

	"github.com/cyclopcam/landcover/pkg/geo"
)

// Grid describes the pixel layout of an image in world coordinates.
// GeoTransform uses the GDAL convention:
//
//	X = gt[0] + px*gt[1] + py*gt[2]
//	Y = gt[3] + px*gt[4] + py*gt[5]
//
// We only support north-up grids (gt[2] == gt[4] == 0).
type Grid struct {
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	GeoTransform [6]float64 `json:"geoTransform"`
	CRS          string     `json:"crs"` // eg "EPSG:32619"
}

// NewGrid creates a north-up grid covering bounds, with square pixels of the given size.
// The grid is anchored at the top-left corner of bounds, and rounded up to cover all of it.
func NewGrid(bounds geo.Bounds, resolution float64, crs string) Grid {
	w := int(math.Ceil(bounds.Width()/resolution - 1e-9))
	h := int(math.Ceil(bounds.Height()/resolution - 1e-9))
	return Grid{
		Width:        max(w, 1),
		Height:       max(h, 1),
		GeoTransform: [6]float64{bounds.MinX, resolution, 0, bounds.MaxY, 0, -resolution},
		CRS:          crs,
	}
}

func (g Grid) NumPixels() int {
	return g.Width * g.Height
}

// Resolution returns the pixel width in world units
func (g Grid) Resolution() float64 {
	return math.Abs(g.GeoTransform[1])
}

// PixelCenter returns the world coordinates of the centre of pixel (px,py)
func (g Grid) PixelCenter(px, py int) (float64, float64) {
	x := g.GeoTransform[0] + (float64(px)+0.5)*g.GeoTransform[1]
	y := g.GeoTransform[3] + (float64(py)+0.5)*g.GeoTransform[5]
	return x, y
}

// WorldToPixel returns the pixel that contains the world coordinate (x,y).
// The result may be outside of the grid.
func (g Grid) WorldToPixel(x, y float64) (int, int) {
	px := int(math.Floor((x - g.GeoTransform[0]) / g.GeoTransform[1]))
	py := int(math.Floor((y - g.GeoTransform[3]) / g.GeoTransform[5]))
	return px, py
}

func (g Grid) InBounds(px, py int) bool {
	return px >= 0 && py >= 0 && px < g.Width && py < g.Height
}

// Bounds returns the world extent of the grid
func (g Grid) Bounds() geo.Bounds {
	b := geo.EmptyBounds()
	x0, y0 := g.GeoTransform[0], g.GeoTransform[3]
	x1 := x0 + float64(g.Width)*g.GeoTransform[1]
	y1 := y0 + float64(g.Height)*g.GeoTransform[5]
	b.Extend(x0, y0)
	b.Extend(x1, y1)
	return b
}

// Equal returns true if the two grids have identical pixel layouts
func (g Grid) Equal(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height && g.GeoTransform == o.GeoTransform && g.CRS == o.CRS
}

// PixelsCovering returns the indices (y*Width + x) of the pixels that a geometry covers.
// Points cover the pixel that they fall inside. Polygons cover every pixel whose
// centre lies inside the polygon.
func (g Grid) PixelsCovering(geom geo.Geometry) []int {
	switch v := geom.(type) {
	case geo.Point:
		return g.pointPixels([]geo.Point{v})
	case geo.MultiPoint:
		return g.pointPixels(v)
	}
	b := geom.Bounds()
	if b.IsEmpty() || !b.Intersects(g.Bounds()) {
		return nil
	}
	// Window of candidate pixels
	px0, py0 := g.WorldToPixel(b.MinX, b.MaxY)
	px1, py1 := g.WorldToPixel(b.MaxX, b.MinY)
	if px0 > px1 {
		px0, px1 = px1, px0
	}
	if py0 > py1 {
		py0, py1 = py1, py0
	}
	px0 = max(px0, 0)
	py0 = max(py0, 0)
	px1 = min(px1, g.Width-1)
	py1 = min(py1, g.Height-1)
	result := []int{}
	for py := py0; py <= py1; py++ {
		for px := px0; px <= px1; px++ {
			x, y := g.PixelCenter(px, py)
			if geom.Contains(x, y) {
				result = append(result, py*g.Width+px)
			}
		}
	}
	return result
}

func (g Grid) pointPixels(points []geo.Point) []int {
	result := []int{}
	for _, p := range points {
		px, py := g.WorldToPixel(p.X, p.Y)
		if g.InBounds(px, py) {
			result = append(result, py*g.Width+px)
		}
	}
	return result
}
