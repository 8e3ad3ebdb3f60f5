package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/quovant/tenderdocs/domains/tenders/be/reconcile"
	"github.com/quovant/tenderdocs/domains/tenders/be/repo"
	"github.com/quovant/tenderdocs/platform/config"
	"github.com/quovant/tenderdocs/platform/logging"
)

func main() {
	sampleSize := flag.Int("sample", reconcile.DefaultSampleSize, "records compared field-by-field per tender")
	threshold := flag.Int("threshold", 0, "exit non-zero when mismatches exceed this count")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	// Validation always compares both backends.
	cfg.StoreMode = config.ModeDual
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{Component: "reconcile-validate", Level: cfg.LogLevel})
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

	ctx := logging.WithLogger(context.Background(), logger)
	report, err := reconcile.Validator{
		Primary:    stores.Cosmos,
		Secondary:  stores.Blob,
		SampleSize: *sampleSize,
	}.Run(ctx)
	if err != nil {
		logger.Fatal("validate", zap.Error(err))
	}

	for _, m := range report.Mismatches {
		fmt.Printf("%s\t%s\t%s\t%s\n", m.Category, m.TenderID, m.Key, m.Detail)
	}
	fmt.Printf("compared %d tenders, %d mismatches\n", report.TendersCompared, len(report.Mismatches))

	if len(report.Mismatches) > *threshold {
		os.Exit(1)
	}
}
