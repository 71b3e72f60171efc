package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/landcover/analysis"
	"github.com/cyclopcam/landcover/server"
	"github.com/cyclopcam/logs"
)

// landserver serves run metadata and artifacts over HTTP
func main() {
	parser := argparse.NewParser("landserver", "Land cover results server")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Config file", Default: "landcover.json"})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen address", Default: ":8080"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := analysis.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(logger, cfg)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive. Harmless if we're not running under systemd.
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenHTTP(*port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
