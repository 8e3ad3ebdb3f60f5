package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/quovant/tenderdocs/domains/tenders/be/reconcile"
	"github.com/quovant/tenderdocs/domains/tenders/be/repo"
	"github.com/quovant/tenderdocs/platform/config"
	"github.com/quovant/tenderdocs/platform/logging"
)

func main() {
	tenderID := flag.String("tender", "", "backfill a single tender id (default: all tenders)")
	dryRun := flag.Bool("dry-run", false, "report what would be copied without writing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	// Backfill needs both backends regardless of the serving mode.
	cfg.StoreMode = config.ModeDual
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{Component: "reconcile-backfill", Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	stores, err := repo.Open(cfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer func() {
		_ = stores.Close()
	}()

	report, err := reconcile.Backfill(context.Background(), stores.Blob, stores.Cosmos, reconcile.BackfillOptions{
		TenderID: *tenderID,
		DryRun:   *dryRun,
	}, logger)
	if err != nil {
		logger.Fatal("backfill", zap.Error(err))
	}

	mode := "backfilled"
	if report.DryRun {
		mode = "would backfill"
	}
	fmt.Printf("%s %d tenders, %d files, %d batches (%d counters corrected)\n",
		mode, report.Tenders, report.Files, report.Batches, report.Corrected)
}
