package analysis

import (
	"fmt"

	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/landsat"
	"github.com/cyclopcam/landcover/pkg/raster"
)

// Composite builds a cloud free picture of the boundary from the scenes that fall
// inside any of the date ranges: each scene is cloud masked, and every pixel is the
// median of its clear observations. Pixels outside the boundary are masked.
func Composite(scenes *raster.Collection, boundary geo.Geometry, ranges ...raster.DateRange) (*raster.Image, error) {
	filtered := scenes.FilterBounds(boundary).FilterDate(ranges...)
	if filtered.Len() == 0 {
		return nil, fmt.Errorf("No scenes in %v: %w", ranges, raster.ErrEmptyCollection)
	}
	masked, err := filtered.Map(landsat.MaskClouds)
	if err != nil {
		return nil, err
	}
	median, err := masked.Median()
	if err != nil {
		return nil, err
	}
	return median.Clip(boundary), nil
}

// YearlyComposites builds one composite per year in [startYear, endYear], from the
// scenes inside [seasonStart, seasonEnd) of that year. Each composite is stamped with
// the start of its season.
func YearlyComposites(scenes *raster.Collection, boundary geo.Geometry, startYear, endYear int, seasonStart, seasonEnd MonthDay) (*raster.Collection, error) {
	out := raster.NewCollection()
	for year := startYear; year <= endYear; year++ {
		window := raster.DateRange{Start: seasonStart.In(year), End: seasonEnd.In(year)}
		c, err := Composite(scenes, boundary, window)
		if err != nil {
			return nil, fmt.Errorf("Composite for %v: %w", year, err)
		}
		out.Images = append(out.Images, c.WithTime(window.Start))
	}
	return out, nil
}

// ImperviousLayer reduces the impervious surface layers inside the date range to a
// single band, with zero (not impervious) pixels masked.
func ImperviousLayer(layers *raster.Collection, boundary geo.Geometry, band string, dates raster.DateRange) (*raster.Image, error) {
	filtered := layers.FilterBounds(boundary).FilterDate(dates)
	if filtered.Len() == 0 {
		return nil, fmt.Errorf("No impervious layers in %v: %w", dates, raster.ErrEmptyCollection)
	}
	selected, err := filtered.Select(band)
	if err != nil {
		return nil, err
	}
	clipped, err := selected.Map(func(img *raster.Image) (*raster.Image, error) {
		return img.Clip(boundary), nil
	})
	if err != nil {
		return nil, err
	}
	median, err := clipped.Median()
	if err != nil {
		return nil, err
	}
	return median.SelfMask(), nil
}
