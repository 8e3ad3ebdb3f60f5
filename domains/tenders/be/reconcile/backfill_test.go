package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
)

func seedSource(t *testing.T) (*fakeStore, service.Tender) {
	t.Helper()
	source := newFakeStore()
	ctx := context.Background()

	tender, err := source.CreateTender(ctx, service.CreateTenderInput{Name: "restore me"})
	require.NoError(t, err)
	_, err = source.UpsertFileRecord(ctx, tender.ID, service.File{Path: "a.pdf", Size: 10})
	require.NoError(t, err)
	_, err = source.UpsertFileRecord(ctx, tender.ID, service.File{Path: "b.pdf", Size: 20})
	require.NoError(t, err)
	_, err = source.UpsertBatchRecord(ctx, tender.ID, service.Batch{ID: "batch-1", Name: "envelope", Status: service.StatusCompleted})
	require.NoError(t, err)

	got, err := source.GetTender(ctx, tender.ID)
	require.NoError(t, err)
	return source, *got
}

func TestBackfillCopiesEverythingAndFixesCounters(t *testing.T) {
	source, tender := seedSource(t)
	target := newFakeStore()
	ctx := context.Background()

	// The source record carries a stale counter; backfill copies it verbatim,
	// then the recompute pass corrects it against the copied files.
	tender.FileCount = 99
	_, err := source.UpsertTenderRecord(ctx, tender)
	require.NoError(t, err)

	report, err := Backfill(ctx, source, target, BackfillOptions{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, 1, report.Tenders)
	require.Equal(t, 2, report.Files)
	require.Equal(t, 1, report.Batches)
	require.Equal(t, 1, report.Corrected)
	require.False(t, report.DryRun)

	restored, err := target.GetTender(ctx, tender.ID)
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.Equal(t, 2, restored.FileCount)

	files, err := target.ListFiles(ctx, tender.ID, false)
	require.NoError(t, err)
	require.Len(t, files, 2)
	batches, err := target.ListBatches(ctx, tender.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Equal(t, service.StatusCompleted, batches[0].Status)
}

func TestBackfillDryRunWritesNothing(t *testing.T) {
	source, tender := seedSource(t)
	target := newFakeStore()
	ctx := context.Background()

	report, err := Backfill(ctx, source, target, BackfillOptions{DryRun: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.Equal(t, 1, report.Tenders)
	require.Equal(t, 2, report.Files)

	nothing, err := target.GetTender(ctx, tender.ID)
	require.NoError(t, err)
	require.Nil(t, nothing)
}

func TestBackfillSingleTenderScope(t *testing.T) {
	source, tender := seedSource(t)
	ctx := context.Background()
	other, err := source.CreateTender(ctx, service.CreateTenderInput{Name: "out of scope"})
	require.NoError(t, err)

	target := newFakeStore()
	report, err := Backfill(ctx, source, target, BackfillOptions{TenderID: tender.ID}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, 1, report.Tenders)

	skipped, err := target.GetTender(ctx, other.ID)
	require.NoError(t, err)
	require.Nil(t, skipped)

	_, err = Backfill(ctx, source, target, BackfillOptions{TenderID: "missing"}, zaptest.NewLogger(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found in source")
}
