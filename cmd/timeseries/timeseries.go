package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/landcover/analysis"
	"github.com/cyclopcam/landcover/analysis/archive"
	"github.com/cyclopcam/landcover/analysis/rundb"
	"github.com/cyclopcam/landcover/pkg/storage"
	"github.com/cyclopcam/landcover/pkg/storagecache"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("timeseries", "Yearly EVI composites, anomalies and time-lapse")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Config file", Default: "landcover.json"})
	exportYear := parser.Int("y", "year", &argparse.Options{Help: "Year to export as GeoTIFF. Overrides the config file.", Default: 0})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	cfg, err := analysis.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *exportYear != 0 {
		cfg.TimeSeries.ExportYear = *exportYear
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	archiveStore, err := storage.Open(ctx, logger, cfg.Archive)
	check(err)
	cache, err := storagecache.NewStorageCache(logger, archiveStore, cfg.CacheDir, int64(cfg.CacheMB)*1024*1024)
	check(err)
	cache.FetchTimeout = cfg.FetchTimeout()
	arc, err := archive.Open(logger, cfg.ArchiveDB, cache)
	check(err)
	defer arc.Close()

	exports, err := storage.Open(ctx, logger, cfg.Exports)
	check(err)
	runs, err := rundb.Open(logger, cfg.DB)
	check(err)
	defer runs.Close()

	run, err := runs.StartRun(rundb.RunKindTimeSeries, cfg.TimeSeries, nil)
	check(err)

	res, err := timeSeries(ctx, logger, cfg, arc, analysis.NewPublisher(logger, exports, runs, run.ID, cfg.ExportTimeout()))
	var metrics map[string]any
	if res != nil {
		metrics = res.Metrics()
	}
	check(runs.FinishRun(run, metrics, err))
	if err != nil {
		logger.Errorf("Time series failed: %v", err)
		os.Exit(1)
	}
	logger.Infof("Run %v finished, %v years", run.ID, len(res.Years))
}

func timeSeries(ctx context.Context, logger logs.Log, cfg *analysis.Config, src analysis.SceneSource, pub *analysis.Publisher) (*analysis.TimeSeriesResult, error) {
	ts := &cfg.TimeSeries
	in, err := analysis.LoadTimeSeriesInputs(ctx, logger, cfg.Grid, ts, src)
	if err != nil {
		return nil, err
	}
	res, err := analysis.RunTimeSeries(ctx, logger, ts, in)
	if err != nil {
		return nil, err
	}
	params := ts.Export
	params.Region = in.Section
	return res, pub.PublishTimeSeries(ctx, res, ts.ExportYear, params)
}
