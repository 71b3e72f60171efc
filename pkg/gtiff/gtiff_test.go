package gtiff

import (
	"path/filepath"
	"testing"

	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/stretchr/testify/require"
)

func TestWarpSwitches(t *testing.T) {
	g := raster.NewGrid(geo.Bounds{MinX: 400000, MinY: 4850000, MaxX: 400300, MaxY: 4850060}, 30, "EPSG:32619")
	sw := WarpSwitches(g, ResampleNearest)
	require.Equal(t, []string{
		"-of", "MEM",
		"-t_srs", "EPSG:32619",
		"-te", "400000", "4850000", "400300", "4850060",
		"-ts", "10", "2",
		"-r", "near",
		"-ot", "Float32",
		"-dstnodata", "nan",
	}, sw)
}

func TestWriteAndWarp(t *testing.T) {
	g := raster.NewGrid(geo.Bounds{MinX: 400000, MinY: 4850000, MaxX: 400090, MaxY: 4850060}, 30, "EPSG:32619")
	evi := raster.NewBand("EVI", g.NumPixels(), true)
	for i := range evi.Data {
		if i != 4 {
			evi.Set(i, float32(i)/10, true)
		}
	}
	img, err := raster.NewImage(g, evi)
	require.NoError(t, err)

	filename := filepath.Join(t.TempDir(), "evi.tif")
	require.NoError(t, Write(filename, img))

	info, err := ReadInfo(filename)
	require.NoError(t, err)
	require.Equal(t, 3, info.Width)
	require.Equal(t, 2, info.Height)
	require.Equal(t, 1, info.NumBands)
	require.Equal(t, g.GeoTransform, info.GeoTransform)
	require.Equal(t, g.Bounds(), info.Bounds())

	bands, err := ReadWarped(filename, []string{"EVI"}, g, ResampleNearest)
	require.NoError(t, err)
	require.Len(t, bands, 1)
	require.Equal(t, "EVI", bands[0].Name)
	for i := range evi.Data {
		require.Equal(t, evi.Valid(i), bands[0].Valid(i), "pixel %v", i)
		require.InDelta(t, evi.Data[i], bands[0].Data[i], 1e-6)
	}

	_, err = ReadWarped(filename, []string{"a", "b"}, g, ResampleNearest)
	require.Error(t, err)
}
