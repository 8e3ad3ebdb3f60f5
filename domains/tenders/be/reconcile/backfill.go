package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
)

// BackfillOptions scopes a backfill run.
type BackfillOptions struct {
	// TenderID restricts the run to one tender; empty means every tender the
	// source knows.
	TenderID string
	// DryRun reports what would be copied without writing anything.
	DryRun bool
}

// BackfillReport summarizes one run.
type BackfillReport struct {
	Tenders   int
	Files     int
	Batches   int
	Corrected int
	DryRun    bool
}

// Backfill enumerates tenders, files and batches from the source store and
// upserts each into the target, then recomputes the target's counters. Used
// to rebuild the primary store from the degraded blob copy after an outage.
func Backfill(ctx context.Context, source, target service.Store, opts BackfillOptions, logger *zap.Logger) (BackfillReport, error) {
	report := BackfillReport{DryRun: opts.DryRun}

	var tenders []service.Tender
	if opts.TenderID != "" {
		tender, err := source.GetTender(ctx, opts.TenderID)
		if err != nil {
			return report, fmt.Errorf("backfill: %w", err)
		}
		if tender == nil {
			return report, fmt.Errorf("backfill: tender %s not found in source", opts.TenderID)
		}
		tenders = []service.Tender{*tender}
	} else {
		var err error
		tenders, err = source.ListTenders(ctx)
		if err != nil {
			return report, fmt.Errorf("backfill: %w", err)
		}
	}

	for _, tender := range tenders {
		files, err := source.ListFiles(ctx, tender.ID, false)
		if err != nil {
			return report, fmt.Errorf("backfill %s: %w", tender.ID, err)
		}
		batches, err := source.ListBatches(ctx, tender.ID)
		if err != nil {
			return report, fmt.Errorf("backfill %s: %w", tender.ID, err)
		}

		report.Tenders++
		report.Files += len(files)
		report.Batches += len(batches)

		if opts.DryRun {
			logger.Info("backfill dry run",
				zap.String("tender_id", tender.ID),
				zap.Int("files", len(files)),
				zap.Int("batches", len(batches)),
			)
			continue
		}

		if _, err := target.UpsertTenderRecord(ctx, tender); err != nil {
			return report, fmt.Errorf("backfill %s: upsert tender: %w", tender.ID, err)
		}
		for _, file := range files {
			if _, err := target.UpsertFileRecord(ctx, tender.ID, file); err != nil {
				return report, fmt.Errorf("backfill %s: upsert file %s: %w", tender.ID, file.Path, err)
			}
		}
		for _, batch := range batches {
			if _, err := target.UpsertBatchRecord(ctx, tender.ID, batch); err != nil {
				return report, fmt.Errorf("backfill %s: upsert batch %s: %w", tender.ID, batch.ID, err)
			}
		}

		result, err := Recompute(ctx, target, tender.ID, logger)
		if err != nil {
			return report, err
		}
		if result.Corrected {
			report.Corrected++
		}
	}
	return report, nil
}
