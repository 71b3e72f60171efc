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
	parser := argparse.NewParser("classify", "Random Forest land cover classification of Landsat 8 composites")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Config file", Default: "landcover.json"})
	seed := parser.Int("s", "seed", &argparse.Options{Help: "Random seed. Overrides the config file. Negative means use the config file.", Default: -1})
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
	if *seed >= 0 {
		s := uint64(*seed)
		cfg.Seed = &s
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

	run, err := runs.StartRun(rundb.RunKindClassification, cfg.Classification, cfg.Seed)
	check(err)

	res, err := classify(ctx, logger, cfg, arc, analysis.NewPublisher(logger, exports, runs, run.ID, cfg.ExportTimeout()))
	var metrics map[string]any
	if res != nil {
		metrics = res.Metrics()
	}
	check(runs.FinishRun(run, metrics, err))
	if err != nil {
		logger.Errorf("Classification failed: %v", err)
		os.Exit(1)
	}
	logger.Infof("Validation accuracy %.3f, kappa %.3f", res.ValidationMatrix.Accuracy(), res.ValidationMatrix.Kappa())
}

func classify(ctx context.Context, logger logs.Log, cfg *analysis.Config, src analysis.SceneSource, pub *analysis.Publisher) (*analysis.ClassificationResult, error) {
	in, err := analysis.LoadClassificationInputs(ctx, logger, cfg.Grid, &cfg.Classification, src)
	if err != nil {
		return nil, err
	}
	res, err := analysis.RunClassification(ctx, logger, &cfg.Classification, cfg.Seed, in)
	if err != nil {
		return nil, err
	}
	params := analysis.ExportParams{
		Scale:     cfg.Grid.Resolution,
		MaxPixels: analysis.DefaultExportParams().MaxPixels,
		Region:    in.StudyArea,
	}
	return res, pub.PublishClassification(ctx, res, params)
}
