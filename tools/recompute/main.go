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
	tenderID := flag.String("tender", "", "recompute a single tender id (default: all tenders)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{Component: "reconcile-recompute", Level: cfg.LogLevel})
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

	ctx := context.Background()

	var results []reconcile.RecomputeResult
	if *tenderID != "" {
		result, err := reconcile.Recompute(ctx, stores.Active, *tenderID, logger)
		if err != nil {
			logger.Fatal("recompute", zap.Error(err))
		}
		results = []reconcile.RecomputeResult{result}
	} else {
		results, err = reconcile.RecomputeAll(ctx, stores.Active, logger)
		if err != nil {
			logger.Fatal("recompute", zap.Error(err))
		}
	}

	corrected := 0
	for _, r := range results {
		if r.Corrected {
			corrected++
			fmt.Printf("%s: corrected %d -> %d\n", r.TenderID, r.Previous, r.Count)
		} else {
			fmt.Printf("%s: ok (%d)\n", r.TenderID, r.Count)
		}
	}
	fmt.Printf("recomputed %d tenders, %d corrected\n", len(results), corrected)
}
