package analysis

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/landsat"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/cyclopcam/landcover/pkg/stats"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestAnomaly(t *testing.T) {
	g := testGrid(2, 1)
	year := singleBand(t, g, "EVI", time.Time{}, 0.6, 0.6)
	mean := singleBand(t, g, "EVI", time.Time{}, 0.5, 0.5)
	std := singleBand(t, g, "EVI", time.Time{}, 0.2, 0)
	a, err := Anomaly(year, mean, std)
	require.NoError(t, err)
	require.True(t, a.Bands[0].Valid(0))
	require.InDelta(t, 0.5, a.Bands[0].Data[0], 1e-5)
	require.False(t, a.Bands[0].Valid(1))

	// A series that only differs by float32 rounding has no meaningful anomaly
	noise := []float32{0.3, math.Nextafter32(0.3, 1), 0.3}
	std = singleBand(t, g, "EVI", time.Time{}, float32(stats.StdDev(noise)), 1e-5)
	a, err = Anomaly(year, mean, std)
	require.NoError(t, err)
	require.False(t, a.Bands[0].Valid(0))
	require.True(t, a.Bands[0].Valid(1))
}

func TestDifferenceAntisymmetric(t *testing.T) {
	g := testGrid(3, 1)
	a := singleBand(t, g, "EVI", time.Time{}, 0.1, 0.7, float32(math.NaN()))
	b := singleBand(t, g, "EVI", time.Time{}, 0.4, 0.2, 0.3)
	ab, err := raster.Subtract(a, b)
	require.NoError(t, err)
	ba, err := raster.Subtract(b, a)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		require.Equal(t, -ab.Bands[0].Data[i], ba.Bands[0].Data[i])
	}
	require.False(t, ab.Bands[0].Valid(2))
	require.False(t, ba.Bands[0].Valid(2))
}

// Reflectance DNs per year, for a 2x1 grid. Pixel 1 is cloudy in 2015.
var seriesNIR = map[int][]float32{2014: {4000, 3000}, 2015: {3000, 3000}, 2016: {5000, 2000}}

func seriesScenes(t *testing.T, g raster.Grid) *raster.Collection {
	c := raster.NewCollection()
	for year, nir := range seriesNIR {
		qa := []float32{qaClear, qaClear}
		if year == 2015 {
			qa[1] = qaCloud
		}
		c.Images = append(c.Images, makeScene(t, g, raster.Date(year, 7, 1), qa, map[string][]float32{
			landsat.BandBlue: {500, 500},
			landsat.BandRed:  {1000, 1000},
			landsat.BandNIR:  nir,
		}))
		// Outside of the season
		c.Images = append(c.Images, makeScene(t, g, raster.Date(year, 12, 1), []float32{qaClear, qaClear}, map[string][]float32{
			landsat.BandBlue: {0, 0},
			landsat.BandRed:  {0, 0},
			landsat.BandNIR:  {9000, 9000},
		}))
	}
	return c
}

func expectedEVI(nir float32) float32 {
	v, _ := landsat.EVIValue(nir/10000, 0.1, 0.05)
	return v
}

func TestRunTimeSeries(t *testing.T) {
	g := testGrid(2, 1)
	cfg := DefaultTimeSeriesConfig()
	cfg.StartYear = 2014
	cfg.EndYear = 2016
	cfg.AnomalyYears = []int{2016}
	cfg.Differences = []Difference{
		{Name: "2014/2016 Image Difference", A: "2014", B: "2016"},
		{Name: "2016/2014 Image Difference", A: "2016", B: "2014"},
		{Name: "2016 Difference from Average", A: "mean", B: "2016"},
	}
	cfg.ExportYear = 2014
	in := &TimeSeriesInputs{
		StudyArea: wholeGrid(g),
		Section:   geo.NewRectangle(geo.Bounds{MinX: 0, MinY: 0, MaxX: 30, MaxY: 30}),
		Scenes:    seriesScenes(t, g),
		Charts: []ChartInput{
			{Title: "Pixel 1", Region: geo.Point{X: 45, Y: 15}},
		},
	}
	res, err := RunTimeSeries(context.Background(), logs.NewTestingLog(t), &cfg, in)
	require.NoError(t, err)
	require.Equal(t, []int{2014, 2015, 2016}, res.Years)
	require.Equal(t, 3, res.EVI.Len())
	require.Equal(t, []string{landsat.BandEVI}, res.EVI.Images[0].BandNames())

	// Pixel 0 has a clear observation every year
	p0 := []float64{}
	for _, year := range res.Years {
		v := expectedEVI(seriesNIR[year][0])
		p0 = append(p0, float64(v))
		require.InDelta(t, v, res.ByYear[year].Bands[0].Data[0], 1e-5)
	}
	require.InDelta(t, stats.Mean(p0), res.Mean.Bands[0].Data[0], 1e-5)
	require.InDelta(t, stats.StdDev(p0), res.StdDev.Bands[0].Data[0], 1e-5)
	z := (p0[2] - stats.Mean(p0)) / stats.StdDev(p0)
	require.InDelta(t, z, res.Anomalies[2016].Bands[0].Data[0], 1e-4)

	// Pixel 1 is missing in 2015
	require.False(t, res.ByYear[2015].Bands[0].Valid(1))
	p1 := []float64{float64(expectedEVI(3000)), float64(expectedEVI(2000))}
	require.InDelta(t, stats.Mean(p1), res.Mean.Bands[0].Data[1], 1e-5)

	require.Len(t, res.Differences, 3)
	for i := 0; i < 2; i++ {
		require.InDelta(t, -res.Differences[0].Image.Bands[0].Data[i], res.Differences[1].Image.Bands[0].Data[i], 1e-6)
	}
	require.InDelta(t, stats.Mean(p0)-p0[2], res.Differences[2].Image.Bands[0].Data[0], 1e-5)

	require.Len(t, res.Charts, 1)
	chart := res.Charts[0]
	require.Len(t, chart.Points, 3)
	require.True(t, chart.Points[0].Valid)
	require.False(t, chart.Points[1].Valid)
	require.InDelta(t, expectedEVI(2000), chart.Points[2].Value, 1e-5)
	require.Equal(t, raster.Date(2016, 5, 1), chart.Points[2].Time)

	// The export is clipped to the section, which only covers pixel 0
	require.True(t, res.Export.Bands[0].Valid(0))
	require.False(t, res.Export.Bands[0].Valid(1))

	rr := res.Render
	require.NotNil(t, rr.Layer("2014 EVI"))
	require.NotNil(t, rr.Layer("2016 Anomaly"))
	require.NotNil(t, rr.Layer("2016 Difference from Average"))
	require.Len(t, rr.TimeLapse.Frames, 3)
	require.Equal(t, "2015", rr.TimeLapse.Frames[1].Label)
	require.NotEmpty(t, res.Metrics()["timingMS"])
}

func TestRunTimeSeriesErrors(t *testing.T) {
	g := testGrid(2, 1)
	in := &TimeSeriesInputs{
		StudyArea: wholeGrid(g),
		Scenes:    seriesScenes(t, g),
	}
	cfg := DefaultTimeSeriesConfig()
	cfg.StartYear = 2014
	cfg.EndYear = 2016
	cfg.AnomalyYears = nil
	cfg.ExportYear = 0
	cfg.Differences = []Difference{{Name: "bad", A: "twenty", B: "2014"}}
	_, err := RunTimeSeries(context.Background(), logs.NewTestingLog(t), &cfg, in)
	require.Error(t, err)

	cfg.Differences = nil
	cfg.EndYear = 2017
	_, err = RunTimeSeries(context.Background(), logs.NewTestingLog(t), &cfg, in)
	require.ErrorIs(t, err, raster.ErrEmptyCollection)
}
