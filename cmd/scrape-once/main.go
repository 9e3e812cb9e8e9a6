// Command scrape-once runs a single scheduled scrape and exits, for use from
// cron or CI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/vn-price-scraper/internal/app"
	"github.com/maltedev/vn-price-scraper/internal/config"
	"github.com/maltedev/vn-price-scraper/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}

	flag.StringVar(&cfg.Catalog.Source, "catalog", cfg.Catalog.Source, "catalog source: postgres or yaml")
	flag.StringVar(&cfg.Catalog.File, "catalog-file", cfg.Catalog.File, "catalog YAML file")
	flag.StringVar(&cfg.Storage.Backend, "storage", cfg.Storage.Backend, "storage backend: postgres, sqlite or json")
	flag.StringVar(&cfg.Storage.Path, "storage-path", cfg.Storage.Path, "sqlite file or JSON directory")
	flag.BoolVar(&cfg.Browser.Headless, "headless", cfg.Browser.Headless, "run the browser headless")
	flag.DurationVar(&cfg.Scraper.ProductDelay, "delay", cfg.Scraper.ProductDelay, "pause between products")
	printSummary := flag.Bool("summary", false, "print the run summary as JSON to stdout")
	flag.Parse()

	// Scheduling and relaying belong to the long-running server.
	cfg.Schedule.Cron = ""
	cfg.Relay.Enabled = false

	log := logger.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialise", "error", err)
		return 1
	}
	defer a.Close()

	session, result, err := a.Service.RunScheduled(ctx)
	if err != nil {
		log.Error("scrape failed", "error", err)
		return 1
	}

	log.Info("scrape completed",
		"session_id", session.SessionID,
		"results", session.TotalResults,
		"success", session.SuccessCount,
	)

	if *printSummary {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result.Summary); err != nil {
			log.Error("failed to write summary", "error", err)
			return 1
		}
	}
	return 0
}
