package analysis

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/landsat"
	"github.com/cyclopcam/landcover/pkg/perfstats"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/cyclopcam/landcover/pkg/render"
	"github.com/cyclopcam/logs"
)

// Standard deviations smaller than this produce masked anomalies.
// EVI is float32, and values near 0.3 are spaced about 3e-8 apart, so a std below
// this is rounding noise rather than year to year variation.
const MinStdDev = 1e-6

// ChartInput is a region to chart
type ChartInput struct {
	Title  string
	Region geo.Geometry
}

type TimeSeriesInputs struct {
	StudyArea geo.Geometry
	Section   geo.Geometry // Region of the exported raster. If nil, the study area.
	Scenes    *raster.Collection
	Charts    []ChartInput
}

// NamedImage is a derived raster with a display name
type NamedImage struct {
	Name  string
	Image *raster.Image
}

type TimeSeriesResult struct {
	Years       []int
	EVI         *raster.Collection    // One single band EVI image per year, in order of Years
	ByYear      map[int]*raster.Image // EVI of each year, clipped to the study area
	Mean        *raster.Image
	StdDev      *raster.Image         // Population standard deviation
	Anomalies   map[int]*raster.Image // Z-scores
	Differences []NamedImage
	Charts      []*Chart
	Export      *raster.Image // EVI of the export year, clipped to the section
	Render      *RenderRequest
	Timing      *perfstats.Stages
}

// Metrics returns the numbers worth keeping from a run
func (r *TimeSeriesResult) Metrics() map[string]any {
	return map[string]any{
		"years":    r.Years,
		"charts":   r.Charts,
		"timingMS": r.Timing.Totals(),
	}
}

// Anomaly computes the standard anomaly (year - mean) / std.
// Pixels where std is (nearly) zero are masked.
func Anomaly(year, mean, std *raster.Image) (*raster.Image, error) {
	diff, err := raster.Subtract(year, mean)
	if err != nil {
		return nil, err
	}
	return raster.Combine(diff, std, func(d, s float32) (float32, bool) {
		if math.Abs(float64(s)) < MinStdDev {
			return 0, false
		}
		return d / s, true
	})
}

// YearImage returns the first image of the given calendar year, clipped to boundary
func YearImage(c *raster.Collection, year int, boundary geo.Geometry) (*raster.Image, error) {
	img, err := c.FilterDate(raster.DateRange{Start: raster.Date(year, 1, 1), End: raster.Date(year+1, 1, 1)}).First()
	if err != nil {
		return nil, fmt.Errorf("No image for %v: %w", year, err)
	}
	return img.Clip(boundary), nil
}

// RegionSeries charts the mean of band over region, for every image in the collection.
// scale must equal the grid resolution.
func RegionSeries(c *raster.Collection, band string, region geo.Geometry, scale float64, title string) (*Chart, error) {
	chart := &Chart{Title: title, Band: band}
	for _, img := range c.Images {
		if math.Abs(img.Grid.Resolution()-scale) > 1e-9*scale {
			return nil, fmt.Errorf("Chart scale %v does not match image resolution %v", scale, img.Grid.Resolution())
		}
		v, ok, err := img.RegionMean(band, region)
		if err != nil {
			return nil, err
		}
		chart.Points = append(chart.Points, ChartPoint{Time: img.Time, Value: v, Valid: ok})
	}
	return chart, nil
}

// RunTimeSeries computes yearly EVI composites and the statistics derived from them
func RunTimeSeries(ctx context.Context, log logs.Log, cfg *TimeSeriesConfig, in *TimeSeriesInputs) (*TimeSeriesResult, error) {
	log = logs.NewPrefixLogger(log, "TimeSeries")
	res := &TimeSeriesResult{
		ByYear:    map[int]*raster.Image{},
		Anomalies: map[int]*raster.Image{},
		Timing:    perfstats.NewStages(),
	}
	timing := res.Timing

	done := timing.Time("composite")
	yearly, err := YearlyComposites(in.Scenes, in.StudyArea, cfg.StartYear, cfg.EndYear, cfg.SeasonStart, cfg.SeasonEnd)
	done()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done = timing.Time("evi")
	withEVI, err := yearly.Map(landsat.EVI)
	if err != nil {
		return nil, err
	}
	res.EVI, err = withEVI.Select(landsat.BandEVI)
	done()
	if err != nil {
		return nil, err
	}

	for year := cfg.StartYear; year <= cfg.EndYear; year++ {
		img, err := YearImage(res.EVI, year, in.StudyArea)
		if err != nil {
			return nil, err
		}
		res.Years = append(res.Years, year)
		res.ByYear[year] = img
		log.Infof("%v EVI: %v valid pixels", year, img.Bands[0].CountValid())
	}

	done = timing.Time("statistics")
	res.Mean, err = res.EVI.Mean()
	if err != nil {
		return nil, err
	}
	res.StdDev, err = res.EVI.StdDev()
	if err != nil {
		return nil, err
	}
	for _, year := range cfg.AnomalyYears {
		img := res.ByYear[year]
		if img == nil {
			return nil, fmt.Errorf("Anomaly year %v is not in the series", year)
		}
		res.Anomalies[year], err = Anomaly(img, res.Mean, res.StdDev)
		if err != nil {
			return nil, err
		}
	}
	for _, d := range cfg.Differences {
		a, err := res.operand(d.A)
		if err != nil {
			return nil, err
		}
		b, err := res.operand(d.B)
		if err != nil {
			return nil, err
		}
		diff, err := raster.Subtract(a, b)
		if err != nil {
			return nil, err
		}
		res.Differences = append(res.Differences, NamedImage{Name: d.Name, Image: diff})
	}
	done()

	for _, c := range in.Charts {
		chart, err := RegionSeries(res.EVI, landsat.BandEVI, c.Region, cfg.ChartScale, c.Title)
		if err != nil {
			return nil, err
		}
		res.Charts = append(res.Charts, chart)
	}

	section := in.Section
	if section == nil {
		section = in.StudyArea
	}
	if cfg.ExportYear != 0 {
		res.Export, err = YearImage(res.EVI, cfg.ExportYear, section)
		if err != nil {
			return nil, err
		}
	}

	res.Render = timeSeriesRenderRequest(cfg, res)
	log.Infof("Stage timings:\n%v", timing)
	return res, nil
}

// operand resolves a difference operand: "mean", or a year
func (r *TimeSeriesResult) operand(name string) (*raster.Image, error) {
	if name == "mean" {
		return r.Mean, nil
	}
	year, err := strconv.Atoi(name)
	if err != nil {
		return nil, fmt.Errorf("Invalid difference operand '%v'. Must be a year or 'mean'", name)
	}
	img := r.ByYear[year]
	if img == nil {
		return nil, fmt.Errorf("Difference operand %v is not in the series", year)
	}
	return img, nil
}

func timeSeriesRenderRequest(cfg *TimeSeriesConfig, res *TimeSeriesResult) *RenderRequest {
	rr := &RenderRequest{
		Charts: res.Charts,
		Center: cfg.MapCenter,
	}
	ramp := func(name string, img *raster.Image, vis render.VisParams) {
		rr.Layers = append(rr.Layers, &Layer{
			Name:    name,
			Image:   img,
			Kind:    LayerRamp,
			Bands:   []string{img.Bands[0].Name},
			Vis:     vis,
			Visible: true,
		})
	}
	tl := &TimeLapse{Vis: cfg.EVIVis, Options: cfg.GIF}
	for _, year := range res.Years {
		img := res.ByYear[year]
		ramp(fmt.Sprintf("%v EVI", year), img, cfg.EVIVis)
		tl.Frames = append(tl.Frames, render.Frame{Grid: img.Grid, Band: img.Bands[0], Label: strconv.Itoa(year)})
	}
	rr.TimeLapse = tl
	for _, d := range res.Differences {
		ramp(d.Name, d.Image, cfg.DiffVis)
	}
	for _, year := range cfg.AnomalyYears {
		if a := res.Anomalies[year]; a != nil {
			ramp(fmt.Sprintf("%v Anomaly", year), a, cfg.AnomalyVis)
		}
	}
	return rr
}
