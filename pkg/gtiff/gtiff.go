// Package gtiff reads and writes GeoTIFF rasters with GDAL, and warps source scenes
// onto an analysis grid.
package gtiff

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/chewxy/math32"
	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/raster"
)

var registerOnce sync.Once

// Register loads the GDAL drivers. It is safe to call more than once.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// Resampling methods understood by gdalwarp
const (
	ResampleNearest  = "near"
	ResampleBilinear = "bilinear"
)

// Info describes a raster file without reading its pixels
type Info struct {
	Width        int
	Height       int
	NumBands     int
	GeoTransform [6]float64
	Projection   string
}

func ReadInfo(filename string) (*Info, error) {
	Register()
	ds, err := godal.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("Failed to open %v: %w", filename, err)
	}
	defer ds.Close()
	s := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("Failed to read geotransform of %v: %w", filename, err)
	}
	return &Info{
		Width:        s.SizeX,
		Height:       s.SizeY,
		NumBands:     s.NBands,
		GeoTransform: gt,
		Projection:   ds.Projection(),
	}, nil
}

// Bounds is the extent of the file in its own CRS. Rotated geotransforms are not supported.
func (i *Info) Bounds() geo.Bounds {
	gt := i.GeoTransform
	b := geo.EmptyBounds()
	b.Extend(gt[0], gt[3])
	b.Extend(gt[0]+float64(i.Width)*gt[1], gt[3]+float64(i.Height)*gt[5])
	return b
}

// WarpSwitches returns the gdalwarp arguments that resample a dataset onto grid
func WarpSwitches(grid raster.Grid, resampling string) []string {
	b := grid.Bounds()
	f := func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return []string{
		"-of", "MEM",
		"-t_srs", grid.CRS,
		"-te", f(b.MinX), f(b.MinY), f(b.MaxX), f(b.MaxY),
		"-ts", strconv.Itoa(grid.Width), strconv.Itoa(grid.Height),
		"-r", resampling,
		"-ot", "Float32",
		"-dstnodata", "nan",
	}
}

// ReadWarped opens a raster file, warps it onto grid, and returns one band per file band.
// names gives the band names, and must have the same length as the number of bands
// in the file. Pixels that are no-data in the source, or outside of its footprint,
// are masked.
func ReadWarped(filename string, names []string, grid raster.Grid, resampling string) ([]*raster.Band, error) {
	Register()
	src, err := godal.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("Failed to open %v: %w", filename, err)
	}
	defer src.Close()
	if n := len(src.Bands()); n != len(names) {
		return nil, fmt.Errorf("%v has %v bands, but %v names were given", filename, n, len(names))
	}

	warped, err := src.Warp("", WarpSwitches(grid, resampling))
	if err != nil {
		return nil, fmt.Errorf("Failed to warp %v: %w", filename, err)
	}
	defer warped.Close()

	result := []*raster.Band{}
	for i, gb := range warped.Bands() {
		b, err := readBand(gb, names[i], grid.Width, grid.Height)
		if err != nil {
			return nil, fmt.Errorf("Failed to read band %v of %v: %w", i+1, filename, err)
		}
		result = append(result, b)
	}
	return result, nil
}

func readBand(gb godal.Band, name string, width, height int) (*raster.Band, error) {
	b := raster.NewBand(name, width*height, true)
	if err := gb.Read(0, 0, b.Data, width, height); err != nil {
		return nil, err
	}
	noData, hasNoData := gb.NoData()
	nd := float32(noData)
	for i, v := range b.Data {
		if math32.IsNaN(v) || (hasNoData && v == nd) {
			b.Data[i] = 0
		} else {
			b.Mask[i] = true
		}
	}
	return b, nil
}

// NoData is the value written to masked pixels
var NoData = math.NaN()

// Write creates a Float32 GeoTIFF holding every band of the image.
// Masked pixels are written as NaN, which is also declared as the no-data value.
func Write(filename string, img *raster.Image) error {
	Register()
	g := img.Grid
	ds, err := godal.Create(godal.GTiff, filename, len(img.Bands), godal.Float32, g.Width, g.Height,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"))
	if err != nil {
		return fmt.Errorf("Failed to create %v: %w", filename, err)
	}
	if err := writeDataset(ds, img); err != nil {
		ds.Close()
		return fmt.Errorf("Failed to write %v: %w", filename, err)
	}
	return ds.Close()
}

func writeDataset(ds *godal.Dataset, img *raster.Image) error {
	if err := ds.SetGeoTransform(img.Grid.GeoTransform); err != nil {
		return err
	}
	if img.Grid.CRS != "" {
		sr, err := SpatialRef(img.Grid.CRS)
		if err != nil {
			return err
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return err
		}
	}
	buf := make([]float32, img.Grid.NumPixels())
	nan := math32.NaN()
	for i, gb := range ds.Bands() {
		src := img.Bands[i]
		for p, v := range src.Data {
			if src.Valid(p) {
				buf[p] = v
			} else {
				buf[p] = nan
			}
		}
		if err := gb.Write(0, 0, buf, img.Grid.Width, img.Grid.Height); err != nil {
			return err
		}
		if err := gb.SetNoData(NoData); err != nil {
			return err
		}
		if err := gb.SetDescription(src.Name); err != nil {
			return err
		}
	}
	return nil
}

// SpatialRef parses a CRS in the form "EPSG:<code>", or any WKT/PROJ definition
func SpatialRef(crs string) (*godal.SpatialRef, error) {
	if code, ok := strings.CutPrefix(strings.ToUpper(crs), "EPSG:"); ok {
		n, err := strconv.Atoi(code)
		if err != nil {
			return nil, fmt.Errorf("Invalid EPSG code %v", crs)
		}
		return godal.NewSpatialRefFromEPSG(n)
	}
	return godal.NewSpatialRef(crs)
}
