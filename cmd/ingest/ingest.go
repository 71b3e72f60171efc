package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/landcover/analysis"
	"github.com/cyclopcam/landcover/analysis/archive"
	"github.com/cyclopcam/landcover/pkg/storage"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

// ingest uploads the band files listed in a manifest to the archive store, and adds the scenes to the catalog.
func main() {
	parser := argparse.NewParser("ingest", "Add Landsat scenes to the archive")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Config file", Default: "landcover.json"})
	manifestFile := parser.String("m", "manifest", &argparse.Options{Help: "Scene manifest (JSON)", Required: true})
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
	manifest, err := archive.LoadManifest(*manifestFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := storage.Open(ctx, logger, cfg.Archive)
	check(err)
	arc, err := archive.Open(logger, cfg.ArchiveDB, nil)
	check(err)
	defer arc.Close()

	n, err := arc.Ingest(ctx, store, manifest, filepath.Dir(*manifestFile), cfg.FetchTimeout())
	logger.Infof("Added %v of %v scenes", n, len(manifest.Scenes))
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
