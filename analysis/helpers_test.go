package analysis

import (
	"slices"
	"testing"
	"time"

	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/landsat"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/stretchr/testify/require"
)

// pixel_qa values
const (
	qaClear  = 322
	qaCloud  = 352
	qaShadow = 328
)

func testGrid(w, h int) raster.Grid {
	return raster.NewGrid(geo.Bounds{MinX: 0, MinY: 0, MaxX: float64(w) * 30, MaxY: float64(h) * 30}, 30, "EPSG:32619")
}

func wholeGrid(g raster.Grid) geo.Geometry {
	return geo.NewRectangle(g.Bounds())
}

// makeScene builds an L8 SR scene from digital numbers (reflectance * 10000)
func makeScene(t *testing.T, g raster.Grid, when time.Time, qa []float32, bands map[string][]float32) *raster.Image {
	names := []string{}
	for name := range bands {
		names = append(names, name)
	}
	slices.Sort(names)
	img, err := raster.NewImage(g)
	require.NoError(t, err)
	for _, name := range names {
		b := raster.NewBand(name, g.NumPixels(), false)
		copy(b.Data, bands[name])
		img.Bands = append(img.Bands, b)
	}
	qb := raster.NewBand(landsat.BandQA, g.NumPixels(), false)
	copy(qb.Data, qa)
	img.Bands = append(img.Bands, qb)
	img.Time = when
	return img
}

// singleBand builds a one band image. NaN values are masked.
func singleBand(t *testing.T, g raster.Grid, name string, when time.Time, values ...float32) *raster.Image {
	b := raster.NewBand(name, g.NumPixels(), true)
	for i, v := range values {
		b.Set(i, v, true)
	}
	img, err := raster.NewImage(g, b)
	require.NoError(t, err)
	img.Time = when
	return img
}

func fill(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
