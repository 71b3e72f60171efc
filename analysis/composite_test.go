package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/cyclopcam/landcover/pkg/landsat"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/stretchr/testify/require"
)

func TestComposite(t *testing.T) {
	g := testGrid(2, 1)
	scenes := raster.NewCollection(
		makeScene(t, g, raster.Date(2020, 7, 1), []float32{qaClear, qaCloud}, map[string][]float32{"B2": {1000, 500}}),
		makeScene(t, g, raster.Date(2020, 7, 15), []float32{qaClear, qaShadow}, map[string][]float32{"B2": {3000, 600}}),
		makeScene(t, g, raster.Date(2020, 8, 1), []float32{qaClear, qaCloud}, map[string][]float32{"B2": {2000, 700}}),
		makeScene(t, g, raster.Date(2019, 7, 1), []float32{qaClear, qaClear}, map[string][]float32{"B2": {9000, 9000}}),
	)
	summer2020 := raster.DateRange{Start: raster.Date(2020, 6, 1), End: raster.Date(2020, 9, 30)}
	summer2019 := raster.DateRange{Start: raster.Date(2019, 6, 1), End: raster.Date(2019, 9, 30)}

	c, err := Composite(scenes, wholeGrid(g), summer2020)
	require.NoError(t, err)
	require.Equal(t, []string{"B2"}, c.BandNames())
	require.True(t, c.Bands[0].Valid(0))
	require.InDelta(t, 0.2, c.Bands[0].Data[0], 1e-6)
	// Every observation of pixel 1 is cloud or shadow
	require.False(t, c.Bands[0].Valid(1))

	c, err = Composite(scenes, wholeGrid(g), summer2020, summer2019)
	require.NoError(t, err)
	require.InDelta(t, 0.25, c.Bands[0].Data[0], 1e-6)
	require.True(t, c.Bands[0].Valid(1))
	require.InDelta(t, 0.9, c.Bands[0].Data[1], 1e-6)

	_, err = Composite(scenes, wholeGrid(g), raster.DateRange{Start: raster.Date(2018, 1, 1), End: raster.Date(2019, 1, 1)})
	require.ErrorIs(t, err, raster.ErrEmptyCollection)
}

func TestYearlyComposites(t *testing.T) {
	g := testGrid(1, 1)
	scenes := raster.NewCollection(
		makeScene(t, g, raster.Date(2019, 6, 10), []float32{qaClear}, map[string][]float32{"B5": {4000}}),
		makeScene(t, g, raster.Date(2019, 12, 1), []float32{qaClear}, map[string][]float32{"B5": {100}}),
		makeScene(t, g, raster.Date(2020, 7, 10), []float32{qaClear}, map[string][]float32{"B5": {5000}}),
	)
	start := MonthDay{time.May, 1}
	end := MonthDay{time.September, 15}
	yearly, err := YearlyComposites(scenes, wholeGrid(g), 2019, 2020, start, end)
	require.NoError(t, err)
	require.Equal(t, 2, yearly.Len())
	require.Equal(t, raster.Date(2019, 5, 1), yearly.Images[0].Time)
	require.Equal(t, raster.Date(2020, 5, 1), yearly.Images[1].Time)
	require.InDelta(t, 0.4, yearly.Images[0].Bands[0].Data[0], 1e-6)
	require.InDelta(t, 0.5, yearly.Images[1].Bands[0].Data[0], 1e-6)

	_, err = YearlyComposites(scenes, wholeGrid(g), 2018, 2020, start, end)
	require.ErrorIs(t, err, raster.ErrEmptyCollection)
	require.ErrorContains(t, err, "2018")
}

func TestImperviousOverride(t *testing.T) {
	g := testGrid(3, 1)
	classified := singleBand(t, g, ClassBand, time.Time{}, 101, 102, 103)
	layers := raster.NewCollection(
		singleBand(t, g, "impervious", raster.Date(2016, 6, 1), 45, 0, 100),
		singleBand(t, g, "impervious", raster.Date(2011, 6, 1), 90, 90, 90),
	)
	dates := raster.DateRange{Start: raster.Date(2016, 1, 1), End: raster.Date(2017, 1, 1)}
	imp, err := ImperviousLayer(layers, wholeGrid(g), "impervious", dates)
	require.NoError(t, err)
	require.True(t, imp.Bands[0].Valid(0))
	require.False(t, imp.Bands[0].Valid(1))

	final, err := raster.Blend(classified, imp)
	require.NoError(t, err)
	require.Equal(t, []float32{45, 102, 100}, final.Bands[0].Data)
	require.Equal(t, ClassBand, final.Bands[0].Name)

	_, err = ImperviousLayer(layers, wholeGrid(g), "impervious", raster.DateRange{Start: raster.Date(2000, 1, 1), End: raster.Date(2001, 1, 1)})
	require.ErrorIs(t, err, raster.ErrEmptyCollection)
}

func TestEVIComposite(t *testing.T) {
	g := testGrid(1, 1)
	scene := makeScene(t, g, raster.Date(2020, 7, 1), []float32{qaClear}, map[string][]float32{
		"B2": {2000},
		"B4": {1000},
		"B5": {4000},
	})
	c, err := Composite(raster.NewCollection(scene), wholeGrid(g))
	require.NoError(t, err)
	withEVI, err := landsat.EVI(c)
	require.NoError(t, err)
	evi, err := withEVI.Band(landsat.BandEVI)
	require.NoError(t, err)
	require.InDelta(t, 1.5, evi.Data[0], 1e-5)
	require.False(t, math.IsNaN(float64(evi.Data[0])))
}
