// Package reconcile holds the offline jobs that detect and repair drift:
// recomputing file counters from ground truth, backfilling one store from
// the other, and diffing the two stores field by field.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
)

// RecomputeResult reports one tender counter recomputation.
type RecomputeResult struct {
	TenderID  string
	Count     int
	Previous  int
	Corrected bool
}

// Recompute counts the tender's file records and unconditionally overwrites
// the stored counter with the true count. Safe to race with in-flight
// optimistic counter updates; rerunning converges. Only an actual correction
// is logged.
func Recompute(ctx context.Context, store service.Store, tenderID string, logger *zap.Logger) (RecomputeResult, error) {
	tender, err := store.GetTender(ctx, tenderID)
	if err != nil {
		return RecomputeResult{}, fmt.Errorf("recompute %s: %w", tenderID, err)
	}
	if tender == nil {
		return RecomputeResult{}, fmt.Errorf("recompute %s: tender not found", tenderID)
	}

	files, err := store.ListFiles(ctx, tenderID, false)
	if err != nil {
		return RecomputeResult{}, fmt.Errorf("recompute %s: %w", tenderID, err)
	}

	result := RecomputeResult{
		TenderID: tenderID,
		Count:    len(files),
		Previous: tender.FileCount,
	}
	if tender.FileCount == len(files) {
		return result, nil
	}

	tender.FileCount = len(files)
	if _, err := store.UpsertTenderRecord(ctx, *tender); err != nil {
		return RecomputeResult{}, fmt.Errorf("recompute %s: write counter: %w", tenderID, err)
	}
	result.Corrected = true
	logger.Info("file counter corrected",
		zap.String("tender_id", tenderID),
		zap.Int("previous", result.Previous),
		zap.Int("count", result.Count),
	)
	return result, nil
}

// RecomputeAll runs Recompute over every tender in the store.
func RecomputeAll(ctx context.Context, store service.Store, logger *zap.Logger) ([]RecomputeResult, error) {
	tenders, err := store.ListTenders(ctx)
	if err != nil {
		return nil, fmt.Errorf("recompute all: %w", err)
	}

	results := make([]RecomputeResult, 0, len(tenders))
	for _, tender := range tenders {
		result, err := Recompute(ctx, store, tender.ID, logger)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
