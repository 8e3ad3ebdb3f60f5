// Package service defines the metadata store contract and domain models for
// the tender-document layer. Implementations live in the repo package; the
// HTTP layer and the reconciliation tools are the only callers.
package service

import "context"

// Store is the metadata store contract. Not-found results are nil pointers,
// never errors. All operations are safe for concurrent use from independent
// processes; correctness is enforced by the store's optimistic preconditions,
// not by in-process locks.
type Store interface {
	// Tenders.
	ListTenders(ctx context.Context) ([]Tender, error)
	GetTender(ctx context.Context, id string) (*Tender, error)
	CreateTender(ctx context.Context, input CreateTenderInput) (Tender, error)
	// UpsertTenderRecord is an idempotent full replace used by backfill and
	// reconciliation; it trusts the supplied FileCount.
	UpsertTenderRecord(ctx context.Context, tender Tender) (Tender, error)
	// DeleteTender removes every record scoped to the tender, including
	// reference index entries of its batches. Returns whether it existed.
	DeleteTender(ctx context.Context, id string) (bool, error)

	// Files. Mutations keep the tender FileCount equal to the number of live
	// file records as a single atomic unit of work.
	ListFiles(ctx context.Context, tenderID string, excludeBatched bool) ([]File, error)
	GetFile(ctx context.Context, tenderID, path string) (*File, error)
	UpsertFileRecord(ctx context.Context, tenderID string, file File) (File, error)
	UpdateFileMetadata(ctx context.Context, tenderID, path string, patch FilePatch) (*File, error)
	DeleteFileMetadata(ctx context.Context, tenderID, path string) (bool, error)

	// Batches.
	CreateBatch(ctx context.Context, tenderID string, input CreateBatchInput) (Batch, error)
	// UpsertBatchRecord is a full replace that also maintains the reference
	// index for UiPathReference changes.
	UpsertBatchRecord(ctx context.Context, tenderID string, batch Batch) (Batch, error)
	ListBatches(ctx context.Context, tenderID string) ([]Batch, error)
	GetBatch(ctx context.Context, tenderID, id string) (*Batch, error)
	GetBatchByReference(ctx context.Context, reference string) (*Batch, error)
	UpdateBatchStatus(ctx context.Context, tenderID, id string, status BatchStatus, lastError string) (*Batch, error)
	UpdateBatch(ctx context.Context, tenderID, id string, patch BatchPatch) (*Batch, error)
	// DeleteBatch un-batches its files back to the default category, removes
	// the reference index entry and deletes the batch record.
	DeleteBatch(ctx context.Context, tenderID, id string) (bool, error)
	// ClaimBatchForSubmission hands the batch to exactly one submission
	// attempt. Losing the race or meeting an active foreign lease returns
	// nil, nil; that is expected contention, not an error.
	ClaimBatchForSubmission(ctx context.Context, tenderID, id, owner string, allowedStatuses []BatchStatus, leaseSeconds int) (*Batch, error)
	GetBatchFiles(ctx context.Context, tenderID, batchID string) ([]File, error)
	// UpdateFilesCategory retags the files at the given paths and returns how
	// many records were updated. An empty batchID detaches the files.
	UpdateFilesCategory(ctx context.Context, tenderID string, paths []string, category, batchID string) (int, error)

	// CheckHealth is a cheap connectivity probe, never a scan.
	CheckHealth(ctx context.Context) Health
}
