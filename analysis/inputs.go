package analysis

import (
	"context"
	"fmt"

	"github.com/cyclopcam/landcover/pkg/geo"
	"github.com/cyclopcam/landcover/pkg/landsat"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/cyclopcam/logs"
)

// SceneSource provides scenes of a collection, resampled onto grid.
// Only scenes that intersect the grid and fall in one of ranges are returned.
// An empty ranges means all dates.
type SceneSource interface {
	Scenes(ctx context.Context, collection string, grid raster.Grid, ranges []raster.DateRange, bands []string) (*raster.Collection, error)
}

// StudyGrid loads a study area and builds the analysis grid over its bounding box
func StudyGrid(filename string, gc GridConfig) (geo.Geometry, raster.Grid, error) {
	area, err := geo.LoadGeometry(filename)
	if err != nil {
		return nil, raster.Grid{}, fmt.Errorf("Failed to load study area %v: %w", filename, err)
	}
	b := area.Bounds()
	if b.IsEmpty() || b.Width() == 0 || b.Height() == 0 {
		return nil, raster.Grid{}, fmt.Errorf("Study area %v has no extent", filename)
	}
	return area, raster.NewGrid(b, gc.Resolution, gc.CRS), nil
}

// LoadClassificationInputs reads the study area, the ground truth and every raster
// that RunClassification needs.
func LoadClassificationInputs(ctx context.Context, log logs.Log, gc GridConfig, cfg *ClassificationConfig, src SceneSource) (*ClassificationInputs, error) {
	area, grid, err := StudyGrid(cfg.StudyArea, gc)
	if err != nil {
		return nil, err
	}
	log.Infof("Classification grid is %v x %v at %v", grid.Width, grid.Height, grid.Resolution())

	ranges, err := periodRanges(cfg.Periods)
	if err != nil {
		return nil, err
	}
	sceneBands := append([]string{}, landsat.AllBands...)
	sceneBands = append(sceneBands, landsat.BandQA)
	scenes, err := src.Scenes(ctx, cfg.SceneCollection, grid, ranges, sceneBands)
	if err != nil {
		return nil, fmt.Errorf("Failed to load %v: %w", cfg.SceneCollection, err)
	}
	log.Infof("Loaded %v scenes from %v", scenes.Len(), cfg.SceneCollection)

	impRange, err := cfg.ImperviousPeriod.Range()
	if err != nil {
		return nil, err
	}
	impervious, err := src.Scenes(ctx, cfg.ImperviousCollection, grid, []raster.DateRange{impRange}, []string{cfg.ImperviousBand})
	if err != nil {
		return nil, fmt.Errorf("Failed to load %v: %w", cfg.ImperviousCollection, err)
	}

	in := &ClassificationInputs{
		StudyArea:  area,
		Scenes:     scenes,
		Impervious: impervious,
	}
	for _, cls := range cfg.Classes {
		set, err := LoadLabeledSet(cls, cfg.ClassProperty)
		if err != nil {
			return nil, err
		}
		in.Samples = append(in.Samples, set...)
	}
	return in, nil
}

// LoadTimeSeriesInputs reads the study area, the export section, the chart regions and
// the scenes of every season in the series.
func LoadTimeSeriesInputs(ctx context.Context, log logs.Log, gc GridConfig, cfg *TimeSeriesConfig, src SceneSource) (*TimeSeriesInputs, error) {
	area, grid, err := StudyGrid(cfg.StudyArea, gc)
	if err != nil {
		return nil, err
	}
	in := &TimeSeriesInputs{StudyArea: area}
	if cfg.Section != "" {
		in.Section, err = geo.LoadGeometry(cfg.Section)
		if err != nil {
			return nil, fmt.Errorf("Failed to load section %v: %w", cfg.Section, err)
		}
	}
	for _, c := range cfg.Charts {
		features, err := geo.LoadFeatures(c.File)
		if err != nil {
			return nil, fmt.Errorf("Failed to load chart region %v: %w", c.Title, err)
		}
		if len(features) == 0 {
			return nil, fmt.Errorf("Chart region %v is empty", c.Title)
		}
		in.Charts = append(in.Charts, ChartInput{Title: c.Title, Region: features[0].Geometry})
	}

	ranges := []raster.DateRange{}
	for year := cfg.StartYear; year <= cfg.EndYear; year++ {
		ranges = append(ranges, raster.DateRange{Start: cfg.SeasonStart.In(year), End: cfg.SeasonEnd.In(year)})
	}
	bands := []string{landsat.BandBlue, landsat.BandRed, landsat.BandNIR, landsat.BandQA}
	in.Scenes, err = src.Scenes(ctx, cfg.SceneCollection, grid, ranges, bands)
	if err != nil {
		return nil, fmt.Errorf("Failed to load %v: %w", cfg.SceneCollection, err)
	}
	log.Infof("Loaded %v scenes from %v for %v..%v", in.Scenes.Len(), cfg.SceneCollection, cfg.StartYear, cfg.EndYear)
	return in, nil
}
