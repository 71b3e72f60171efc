package analysis

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	filename := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
	return filename
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{
		"seed": 12,
		"grid": {"crs": "EPSG:32618", "resolution": 30},
		"exports": {"gcs": {"bucket": "landcover-exports"}},
		"timeSeries": {"startYear": 2015, "endYear": 2020, "anomalyYears": [2020]}
	}`))
	require.NoError(t, err)
	require.Equal(t, uint64(12), *cfg.Seed)
	require.Equal(t, "EPSG:32618", cfg.Grid.CRS)
	require.Equal(t, "landcover-exports", cfg.Exports.GCS.Bucket)
	require.Equal(t, 2015, cfg.TimeSeries.StartYear)
	// Defaults survive
	require.Equal(t, "archive", cfg.Archive.Filesystem.Root)
	require.Equal(t, 300, cfg.Classification.Forest.NumTrees)
	require.Equal(t, 5, cfg.Classification.Forest.VariablesPerSplit)
	require.Equal(t, 0.8, cfg.Classification.TrainFraction)
	require.Equal(t, MonthDay{time.May, 1}, cfg.TimeSeries.SeasonStart)
	require.Equal(t, 5*time.Minute, cfg.ExportTimeout())
	require.Equal(t, 5*time.Minute, cfg.FetchTimeout())
	cfg.FetchTimeoutSeconds = 30
	require.Equal(t, 30*time.Second, cfg.FetchTimeout())

	_, err = LoadConfig(writeConfig(t, `{"seed": `))
	require.Error(t, err)
	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := DefaultConfig()
	bad.Classification.TrainFraction = 1
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Grid.Resolution = 0
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.TimeSeries.AnomalyYears = []int{2013}
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Classification.Periods = []Period{{"2020-09-30", "2020-06-01"}}
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Classification.Periods = []Period{{"June 1", "2020-06-01"}}
	require.Error(t, bad.Validate())
}

func TestPeriodRange(t *testing.T) {
	r, err := Period{"2020-06-01", "2020-09-30"}.Range()
	require.NoError(t, err)
	require.True(t, r.Contains(time.Date(2020, 9, 29, 23, 0, 0, 0, time.UTC)))
	require.False(t, r.Contains(time.Date(2020, 9, 30, 0, 0, 0, 0, time.UTC)))
}
