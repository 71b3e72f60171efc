package landsat

import (
	"testing"

	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/stretchr/testify/require"
)

func makeScene(t *testing.T, qa []float32) *raster.Image {
	g := raster.NewGrid(geo.Bounds{MinX: 0, MinY: 0, MaxX: float64(len(qa)) * 30, MaxY: 30}, 30, "EPSG:32619")
	var bands []*raster.Band
	for _, name := range AllBands {
		b := raster.NewBand(name, len(qa), false)
		for i := range b.Data {
			b.Data[i] = 1000
		}
		bands = append(bands, b)
	}
	q := raster.NewBand(BandQA, len(qa), false)
	copy(q.Data, qa)
	bands = append(bands, q)
	img, err := raster.NewImage(g, bands...)
	require.NoError(t, err)
	img.Time = raster.Date(2016, 7, 4)
	img.Props = map[string]string{"id": "LC08_012030_20160704"}
	return img
}

func TestIsClear(t *testing.T) {
	require.True(t, IsClear(0))
	require.True(t, IsClear(66)) // clear, low confidence cloud
	require.False(t, IsClear(1<<3))
	require.False(t, IsClear(1<<5))
	require.False(t, IsClear(1<<3|1<<5))
	require.True(t, IsClear(1<<4)) // snow is not masked
}

func TestMaskClouds(t *testing.T) {
	scene := makeScene(t, []float32{322, 328, 352, 66})
	masked, err := MaskClouds(scene)
	require.NoError(t, err)
	require.Equal(t, AllBands, masked.BandNames())
	require.Equal(t, scene.Time, masked.Time)
	require.Equal(t, scene.Props, masked.Props)
	for _, b := range masked.Bands {
		// 322: clear. 328: shadow. 352: cloud. 66: clear
		require.Equal(t, []bool{true, false, false, true}, b.Mask)
		require.InDelta(t, 0.1, b.Data[0], 1e-6)
		require.Equal(t, float32(0), b.Data[1])
	}

	noQA, err := scene.Select(BandRed)
	require.NoError(t, err)
	_, err = MaskClouds(noQA)
	require.ErrorIs(t, err, raster.ErrMissingBand)
}

func TestEVI(t *testing.T) {
	v, ok := EVIValue(0.4, 0.1, 0.2)
	require.True(t, ok)
	require.InDelta(t, 1.5, v, 1e-5)

	// 0.875 + 0 - 7.5*0.25 + 1 == 0
	_, ok = EVIValue(0.875, 0, 0.25)
	require.False(t, ok)

	g := raster.NewGrid(geo.Bounds{MaxX: 60, MaxY: 30}, 30, "EPSG:32619")
	nir := raster.NewBand(BandNIR, 2, false)
	red := raster.NewBand(BandRed, 2, false)
	blue := raster.NewBand(BandBlue, 2, true)
	nir.Data = []float32{0.4, 0.4}
	red.Data = []float32{0.1, 0.1}
	blue.Data = []float32{0.2, 0}
	blue.Mask = []bool{true, false}
	img, err := raster.NewImage(g, nir, red, blue)
	require.NoError(t, err)
	withEVI, err := EVI(img)
	require.NoError(t, err)
	require.Equal(t, []string{BandNIR, BandRed, BandBlue, BandEVI}, withEVI.BandNames())
	evi, err := withEVI.Band(BandEVI)
	require.NoError(t, err)
	require.InDelta(t, 1.5, evi.Data[0], 1e-5)
	require.True(t, evi.Valid(0))
	require.False(t, evi.Valid(1))

	noBlue, err := img.Select(BandNIR, BandRed)
	require.NoError(t, err)
	_, err = EVI(noBlue)
	require.ErrorIs(t, err, raster.ErrMissingBand)
}
