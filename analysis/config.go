package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/landcover/pkg/forest"
	"github.com/cyclopcam/landcover/pkg/landsat"
	"github.com/cyclopcam/landcover/pkg/raster"
	"github.com/cyclopcam/landcover/pkg/render"
	"github.com/cyclopcam/landcover/pkg/storage"
)

// Config is the JSON config file shared by all of the command line tools
type Config struct {
	DB                   dbh.DBConfig         `json:"db"`        // Runs and artifacts
	ArchiveDB            dbh.DBConfig         `json:"archiveDB"` // Scene catalog
	Archive              storage.Config       `json:"archive"`   // Scene band files
	Exports              storage.Config       `json:"exports"`   // Run artifacts
	CacheDir             string               `json:"cacheDir"`  // Local copies of archive files
	CacheMB              int                  `json:"cacheMB"`
	Grid                 GridConfig           `json:"grid"`
	Classification       ClassificationConfig `json:"classification"`
	TimeSeries           TimeSeriesConfig     `json:"timeSeries"`
	Seed                 *uint64              `json:"seed"` // If nil, runs are not reproducible
	ExportTimeoutSeconds int                  `json:"exportTimeoutSeconds"`
	FetchTimeoutSeconds  int                  `json:"fetchTimeoutSeconds"` // Per archive file download or upload
}

// GridConfig defines the analysis grid. Its extent is the bounding box of the study area.
type GridConfig struct {
	CRS        string  `json:"crs"`
	Resolution float64 `json:"resolution"` // meters per pixel
}

// Period is a half-open date range [Start, End), in YYYY-MM-DD form
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (p Period) Range() (raster.DateRange, error) {
	start, err := time.Parse(time.DateOnly, p.Start)
	if err != nil {
		return raster.DateRange{}, fmt.Errorf("Invalid start date '%v': %w", p.Start, err)
	}
	end, err := time.Parse(time.DateOnly, p.End)
	if err != nil {
		return raster.DateRange{}, fmt.Errorf("Invalid end date '%v': %w", p.End, err)
	}
	if !end.After(start) {
		return raster.DateRange{}, fmt.Errorf("Period %v .. %v is empty", p.Start, p.End)
	}
	return raster.DateRange{Start: start, End: end}, nil
}

func periodRanges(periods []Period) ([]raster.DateRange, error) {
	ranges := []raster.DateRange{}
	for _, p := range periods {
		r, err := p.Range()
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// MonthDay is a day of the year, eg {5, 1} for May 1
type MonthDay struct {
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

func (m MonthDay) In(year int) time.Time {
	return raster.Date(year, m.Month, m.Day)
}

// ClassSamples is a GeoJSON file of ground truth samples for one class.
// Features without a class property are assigned Code.
type ClassSamples struct {
	Name string `json:"name"`
	Code int    `json:"code"`
	File string `json:"file"`
}

type MapCenter struct {
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
	Zoom int     `json:"zoom"`
}

type ClassificationConfig struct {
	StudyArea            string                 `json:"studyArea"` // GeoJSON polygon, in the grid CRS
	SceneCollection      string                 `json:"sceneCollection"`
	ImperviousCollection string                 `json:"imperviousCollection"`
	ImperviousBand       string                 `json:"imperviousBand"`
	Periods              []Period               `json:"periods"` // Scenes from any of these periods are composited
	ImperviousPeriod     Period                 `json:"imperviousPeriod"`
	Classes              []ClassSamples         `json:"classes"`
	ClassProperty        string                 `json:"classProperty"`
	Bands                []string               `json:"bands"` // Predictors
	Scale                float64                `json:"scale"`
	TrainFraction        float64                `json:"trainFraction"`
	Forest               forest.Params          `json:"forest"`
	Style                []render.ColorMapEntry `json:"style"`
	LegendTitle          string                 `json:"legendTitle"`
	TrueColorBands       [3]string              `json:"trueColorBands"`
	TrueColorVis         render.VisParams       `json:"trueColorVis"`
	MapCenter            MapCenter              `json:"mapCenter"`
}

// ChartRegion is a point or polygon whose mean EVI is charted over time
type ChartRegion struct {
	Title string `json:"title"`
	File  string `json:"file"` // GeoJSON, in the grid CRS
}

// Difference names two rasters to subtract, A - B. Each is a year, or "mean".
type Difference struct {
	Name string `json:"name"`
	A    string `json:"a"`
	B    string `json:"b"`
}

type TimeSeriesConfig struct {
	StudyArea       string            `json:"studyArea"`
	Section         string            `json:"section"` // Export region
	SceneCollection string            `json:"sceneCollection"`
	StartYear       int               `json:"startYear"`
	EndYear         int               `json:"endYear"`
	SeasonStart     MonthDay          `json:"seasonStart"`
	SeasonEnd       MonthDay          `json:"seasonEnd"` // exclusive
	AnomalyYears    []int             `json:"anomalyYears"`
	Differences     []Difference      `json:"differences"`
	Charts          []ChartRegion     `json:"charts"`
	ChartScale      float64           `json:"chartScale"`
	ExportYear      int               `json:"exportYear"`
	Export          ExportParams      `json:"export"`
	EVIVis          render.VisParams  `json:"eviVis"`
	DiffVis         render.VisParams  `json:"diffVis"`
	AnomalyVis      render.VisParams  `json:"anomalyVis"`
	GIF             render.GIFOptions `json:"gif"`
	MapCenter       MapCenter         `json:"mapCenter"`
}

func DefaultConfig() Config {
	return Config{
		DB:        dbh.MakeSqliteConfig("landcover.sqlite"),
		ArchiveDB: dbh.MakeSqliteConfig("archive.sqlite"),
		Archive:   storage.Config{Filesystem: &storage.ConfigFS{Root: "archive"}},
		Exports:   storage.Config{Filesystem: &storage.ConfigFS{Root: "exports"}},
		CacheDir:  "cache",
		CacheMB:   2048,
		Grid: GridConfig{
			CRS:        "EPSG:32619",
			Resolution: 30,
		},
		Classification:       DefaultClassificationConfig(),
		TimeSeries:           DefaultTimeSeriesConfig(),
		ExportTimeoutSeconds: 300,
		FetchTimeoutSeconds:  300,
	}
}

func DefaultClassificationConfig() ClassificationConfig {
	return ClassificationConfig{
		SceneCollection:      "LANDSAT/LC08/C01/T1_SR",
		ImperviousCollection: "USGS/NLCD",
		ImperviousBand:       "impervious",
		Periods: []Period{
			{"2020-06-01", "2020-09-30"},
			{"2019-06-01", "2019-09-30"},
		},
		ImperviousPeriod: Period{"2016-01-01", "2017-01-01"},
		Classes: []ClassSamples{
			{Name: "Coniferous", Code: 101, File: "samples/coniferous.geojson"},
			{Name: "Mixed Forest", Code: 102, File: "samples/mixedforest.geojson"},
			{Name: "Deciduous", Code: 103, File: "samples/deciduous.geojson"},
			{Name: "Cultivated", Code: 104, File: "samples/cultivated.geojson"},
			{Name: "Water", Code: 105, File: "samples/water.geojson"},
		},
		ClassProperty:  "landcover",
		Bands:          landsat.DefaultPredictors,
		Scale:          30,
		TrainFraction:  0.8,
		Forest:         forest.DefaultParams(),
		Style:          DefaultLandCoverStyle(),
		LegendTitle:    "Classification Legend",
		TrueColorBands: [3]string{landsat.BandRed, landsat.BandGreen, landsat.BandBlue},
		TrueColorVis:   render.VisParams{Min: 0, Max: 0.3},
		MapCenter:      MapCenter{Lon: -70.3322, Lat: 43.8398, Zoom: 10},
	}
}

// DefaultLandCoverStyle colors impervious percentages (1..100) and the land cover classes (101..105)
func DefaultLandCoverStyle() []render.ColorMapEntry {
	return []render.ColorMapEntry{
		{Color: "#CCADE0", Quantity: 22, Label: "Low Density Development"},
		{Color: "#A052D3", Quantity: 56, Label: "Mid Density Development"},
		{Color: "#633581", Quantity: 100, Label: "High Density Development"},
		{Color: "#18620f", Quantity: 101, Label: "Coniferous"},
		{Color: "#3B953B", Quantity: 102, Label: "Mixed Forest"},
		{Color: "#89CD89", Quantity: 103, Label: "Deciduous"},
		{Color: "#EFE028", Quantity: 104, Label: "Cultivated"},
		{Color: "#0b4a8b", Quantity: 105, Label: "Water"},
	}
}

func DefaultTimeSeriesConfig() TimeSeriesConfig {
	return TimeSeriesConfig{
		SceneCollection: "LANDSAT/LC08/C01/T1_SR",
		StartYear:       2014,
		EndYear:         2020,
		SeasonStart:     MonthDay{time.May, 1},
		SeasonEnd:       MonthDay{time.September, 15},
		AnomalyYears:    []int{2020, 2018, 2016, 2014},
		Differences: []Difference{
			{Name: "2014/2020 Image Difference", A: "2014", B: "2020"},
			{Name: "2020 Difference from Average", A: "mean", B: "2020"},
		},
		ChartScale: 30,
		ExportYear: 2014,
		Export:     DefaultExportParams(),
		EVIVis:     render.VisParams{Min: 0, Max: 1, Palette: []string{"white", "green"}},
		DiffVis:    render.VisParams{Min: -1, Max: 1, Palette: []string{"green", "yellow", "red"}},
		AnomalyVis: render.VisParams{Min: -3, Max: 3, Palette: []string{"red", "yellow", "green"}},
		GIF:        render.DefaultGIFOptions(),
		MapCenter:  MapCenter{Lon: -70.3322, Lat: 43.8398, Zoom: 10},
	}
}

// LoadConfig reads a JSON config file. Fields that are absent from the file keep their defaults.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("Failed to parse config file %v: %w", filename, err)
	}
	return &cfg, cfg.Validate()
}

func (c *Config) ExportTimeout() time.Duration {
	if c.ExportTimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ExportTimeoutSeconds) * time.Second
}

func (c *Config) FetchTimeout() time.Duration {
	if c.FetchTimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Validate checks the settings that we cannot recover from at runtime
func (c *Config) Validate() error {
	if c.Grid.Resolution <= 0 {
		return fmt.Errorf("grid.resolution must be positive")
	}
	if c.Grid.CRS == "" {
		return fmt.Errorf("grid.crs must be set")
	}
	cc := &c.Classification
	if cc.TrainFraction <= 0 || cc.TrainFraction >= 1 {
		return fmt.Errorf("classification.trainFraction must be between 0 and 1")
	}
	if len(cc.Bands) == 0 {
		return fmt.Errorf("classification.bands is empty")
	}
	if _, err := periodRanges(cc.Periods); err != nil {
		return fmt.Errorf("classification.periods: %w", err)
	}
	if _, err := cc.ImperviousPeriod.Range(); err != nil {
		return fmt.Errorf("classification.imperviousPeriod: %w", err)
	}
	ts := &c.TimeSeries
	if ts.EndYear < ts.StartYear {
		return fmt.Errorf("timeSeries.endYear %v is before startYear %v", ts.EndYear, ts.StartYear)
	}
	for _, y := range ts.AnomalyYears {
		if y < ts.StartYear || y > ts.EndYear {
			return fmt.Errorf("Anomaly year %v is outside of %v..%v", y, ts.StartYear, ts.EndYear)
		}
	}
	return nil
}
