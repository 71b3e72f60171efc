package raster

import (
	"fmt"
	"time"

	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/stats"
)

// DateRange is the half-open interval [Start, End)
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%v, %v)", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
}

// Date returns midnight UTC on the given day
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Collection is an ordered set of images on a common grid, usually a time series
type Collection struct {
	Images []*Image
}

func NewCollection(images ...*Image) *Collection {
	return &Collection{Images: images}
}

func (c *Collection) Len() int {
	return len(c.Images)
}

// FilterDate keeps the images whose time falls inside any of the ranges.
// With no ranges, every image is kept.
func (c *Collection) FilterDate(ranges ...DateRange) *Collection {
	if len(ranges) == 0 {
		return &Collection{Images: append([]*Image{}, c.Images...)}
	}
	out := &Collection{}
	for _, img := range c.Images {
		for _, r := range ranges {
			if r.Contains(img.Time) {
				out.Images = append(out.Images, img)
				break
			}
		}
	}
	return out
}

// FilterBounds keeps the images whose grid extent intersects the geometry
func (c *Collection) FilterBounds(geom geo.Geometry) *Collection {
	gb := geom.Bounds()
	out := &Collection{}
	for _, img := range c.Images {
		if img.Grid.Bounds().Intersects(gb) {
			out.Images = append(out.Images, img)
		}
	}
	return out
}

// Map applies fn to every image
func (c *Collection) Map(fn func(img *Image) (*Image, error)) (*Collection, error) {
	out := &Collection{Images: make([]*Image, 0, len(c.Images))}
	for _, img := range c.Images {
		r, err := fn(img)
		if err != nil {
			return nil, err
		}
		out.Images = append(out.Images, r)
	}
	return out, nil
}

// Select applies Image.Select to every image
func (c *Collection) Select(names ...string) (*Collection, error) {
	return c.Map(func(img *Image) (*Image, error) {
		return img.Select(names...)
	})
}

func (c *Collection) First() (*Image, error) {
	if len(c.Images) == 0 {
		return nil, ErrEmptyCollection
	}
	return c.Images[0], nil
}

// Median returns the per-pixel median of the valid observations across time.
// A pixel with no valid observations is invalid.
func (c *Collection) Median() (*Image, error) {
	return c.Reduce(stats.Median[float32])
}

// Mean returns the per-pixel mean of the valid observations across time
func (c *Collection) Mean() (*Image, error) {
	return c.Reduce(stats.Mean[float32])
}

// StdDev returns the per-pixel population standard deviation across time
func (c *Collection) StdDev() (*Image, error) {
	return c.Reduce(stats.StdDev[float32])
}

// Reduce collapses the time axis with fn, which receives the valid observations of
// one band at one pixel. fn is free to reorder its input. fn is never called with an
// empty slice. The result has no time and no properties.
func (c *Collection) Reduce(fn func(values []float32) float64) (*Image, error) {
	first, err := c.First()
	if err != nil {
		return nil, err
	}
	names := first.BandNames()
	// bands[t][b] is band b of image t
	bands := make([][]*Band, len(c.Images))
	for t, img := range c.Images {
		if !img.Grid.Equal(first.Grid) {
			return nil, fmt.Errorf("Image %v: %w", t, ErrGridMismatch)
		}
		bands[t] = make([]*Band, len(names))
		for b, name := range names {
			band, err := img.Band(name)
			if err != nil {
				return nil, fmt.Errorf("Image %v: %w", t, err)
			}
			bands[t][b] = band
		}
	}

	out := &Image{Grid: first.Grid}
	for _, name := range names {
		out.Bands = append(out.Bands, NewBand(name, first.Grid.NumPixels(), true))
	}

	err = ForEachTile(first.Grid, func(tile Tile) error {
		values := make([]float32, 0, len(c.Images))
		for b, ob := range out.Bands {
			for i := tile.Start(); i < tile.End(); i++ {
				values = values[:0]
				for t := range bands {
					if bands[t][b].Valid(i) {
						values = append(values, bands[t][b].Data[i])
					}
				}
				if len(values) == 0 {
					continue
				}
				ob.Set(i, float32(fn(values)), true)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
