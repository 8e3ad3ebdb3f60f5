package repo

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
)

// DualStore composes a primary store and a secondary (fallback) store behind
// the same contract. Reads prefer the primary and fall through to the
// secondary on error (and on not-found, for point lookups only). Writes go to
// the primary first and are mirrored best-effort, except the foundational
// tender create which is undone on the primary when the mirror fails.
type DualStore struct {
	primary      service.Store
	secondary    service.Store
	readFallback bool
	logger       *zap.Logger

	fallbackReads atomic.Int64
}

var _ service.Store = (*DualStore)(nil)

// NewDualStore composes the two stores.
func NewDualStore(primary, secondary service.Store, readFallback bool, logger *zap.Logger) *DualStore {
	if primary == nil || secondary == nil {
		panic("dual store requires primary and secondary stores")
	}
	if logger == nil {
		panic("dual store requires a logger")
	}
	return &DualStore{
		primary:      primary,
		secondary:    secondary,
		readFallback: readFallback,
		logger:       logger,
	}
}

// FallbackReads reports how many reads the secondary store served.
func (s *DualStore) FallbackReads() int64 { return s.fallbackReads.Load() }

func (s *DualStore) fellBack(op string, err error) {
	s.fallbackReads.Add(1)
	s.logger.Warn("read served by fallback store", zap.String("operation", op), zap.Error(err))
}

func (s *DualStore) mirrorFailed(op string, err error) {
	s.logger.Warn("secondary store write failed; stores drift until reconciliation",
		zap.String("operation", op), zap.Error(err))
}

func (s *DualStore) ListTenders(ctx context.Context) ([]service.Tender, error) {
	tenders, err := s.primary.ListTenders(ctx)
	if err != nil && s.readFallback {
		s.fellBack("list tenders", err)
		return s.secondary.ListTenders(ctx)
	}
	// An empty list from a healthy primary is trusted as-is.
	return tenders, err
}

func (s *DualStore) GetTender(ctx context.Context, id string) (*service.Tender, error) {
	tender, err := s.primary.GetTender(ctx, id)
	if err != nil {
		if s.readFallback {
			s.fellBack("get tender", err)
			return s.secondary.GetTender(ctx, id)
		}
		return nil, err
	}
	if tender == nil {
		return s.secondary.GetTender(ctx, id)
	}
	return tender, nil
}

// CreateTender is the one write where a silent divergence is not acceptable:
// if the mirror fails, the primary create is undone and the failure surfaces.
func (s *DualStore) CreateTender(ctx context.Context, input service.CreateTenderInput) (service.Tender, error) {
	tender, err := s.primary.CreateTender(ctx, input)
	if err != nil {
		return service.Tender{}, err
	}

	if _, err := s.secondary.UpsertTenderRecord(ctx, tender); err != nil {
		if _, rbErr := s.primary.DeleteTender(ctx, tender.ID); rbErr != nil {
			s.logger.Error("rollback of primary tender create failed",
				zap.String("tender_id", tender.ID),
				zap.NamedError("cause", err),
				zap.NamedError("rollback_error", rbErr),
			)
			return service.Tender{}, &service.RollbackError{Op: "create tender", Cause: err, RollbackCause: rbErr}
		}
		return service.Tender{}, err
	}
	return tender, nil
}

func (s *DualStore) UpsertTenderRecord(ctx context.Context, tender service.Tender) (service.Tender, error) {
	out, err := s.primary.UpsertTenderRecord(ctx, tender)
	if err != nil {
		return service.Tender{}, err
	}
	if _, err := s.secondary.UpsertTenderRecord(ctx, out); err != nil {
		s.mirrorFailed("upsert tender", err)
	}
	return out, nil
}

func (s *DualStore) DeleteTender(ctx context.Context, id string) (bool, error) {
	existed, err := s.primary.DeleteTender(ctx, id)
	if err != nil {
		return false, err
	}
	if _, err := s.secondary.DeleteTender(ctx, id); err != nil {
		s.mirrorFailed("delete tender", err)
	}
	return existed, nil
}

func (s *DualStore) ListFiles(ctx context.Context, tenderID string, excludeBatched bool) ([]service.File, error) {
	files, err := s.primary.ListFiles(ctx, tenderID, excludeBatched)
	if err != nil && s.readFallback {
		s.fellBack("list files", err)
		return s.secondary.ListFiles(ctx, tenderID, excludeBatched)
	}
	return files, err
}

func (s *DualStore) GetFile(ctx context.Context, tenderID, path string) (*service.File, error) {
	file, err := s.primary.GetFile(ctx, tenderID, path)
	if err != nil {
		if s.readFallback {
			s.fellBack("get file", err)
			return s.secondary.GetFile(ctx, tenderID, path)
		}
		return nil, err
	}
	if file == nil {
		return s.secondary.GetFile(ctx, tenderID, path)
	}
	return file, nil
}

func (s *DualStore) UpsertFileRecord(ctx context.Context, tenderID string, file service.File) (service.File, error) {
	out, err := s.primary.UpsertFileRecord(ctx, tenderID, file)
	if err != nil {
		return service.File{}, err
	}
	if _, err := s.secondary.UpsertFileRecord(ctx, tenderID, out); err != nil {
		s.mirrorFailed("upsert file", err)
	}
	return out, nil
}

func (s *DualStore) UpdateFileMetadata(ctx context.Context, tenderID, path string, patch service.FilePatch) (*service.File, error) {
	out, err := s.primary.UpdateFileMetadata(ctx, tenderID, path, patch)
	if err != nil || out == nil {
		return out, err
	}
	if _, err := s.secondary.UpdateFileMetadata(ctx, tenderID, path, patch); err != nil {
		s.mirrorFailed("update file metadata", err)
	}
	return out, nil
}

func (s *DualStore) DeleteFileMetadata(ctx context.Context, tenderID, path string) (bool, error) {
	deleted, err := s.primary.DeleteFileMetadata(ctx, tenderID, path)
	if err != nil {
		return false, err
	}
	if _, err := s.secondary.DeleteFileMetadata(ctx, tenderID, path); err != nil {
		s.mirrorFailed("delete file", err)
	}
	return deleted, nil
}

func (s *DualStore) CreateBatch(ctx context.Context, tenderID string, input service.CreateBatchInput) (service.Batch, error) {
	batch, err := s.primary.CreateBatch(ctx, tenderID, input)
	if err != nil {
		return service.Batch{}, err
	}
	if _, err := s.secondary.UpsertBatchRecord(ctx, tenderID, batch); err != nil {
		s.mirrorFailed("create batch", err)
	}
	// The primary retagged the member files under the new batch; mirror the
	// retagging too, or fallback reads see an empty batch.
	if len(input.FilePaths) > 0 {
		if _, err := s.secondary.UpdateFilesCategory(ctx, tenderID, input.FilePaths, input.Name, batch.ID); err != nil {
			s.mirrorFailed("tag batch files", err)
		}
	}
	return batch, nil
}

func (s *DualStore) UpsertBatchRecord(ctx context.Context, tenderID string, batch service.Batch) (service.Batch, error) {
	out, err := s.primary.UpsertBatchRecord(ctx, tenderID, batch)
	if err != nil {
		return service.Batch{}, err
	}
	if _, err := s.secondary.UpsertBatchRecord(ctx, tenderID, out); err != nil {
		s.mirrorFailed("upsert batch", err)
	}
	return out, nil
}

func (s *DualStore) ListBatches(ctx context.Context, tenderID string) ([]service.Batch, error) {
	batches, err := s.primary.ListBatches(ctx, tenderID)
	if err != nil && s.readFallback {
		s.fellBack("list batches", err)
		return s.secondary.ListBatches(ctx, tenderID)
	}
	return batches, err
}

func (s *DualStore) GetBatch(ctx context.Context, tenderID, id string) (*service.Batch, error) {
	batch, err := s.primary.GetBatch(ctx, tenderID, id)
	if err != nil {
		if s.readFallback {
			s.fellBack("get batch", err)
			return s.secondary.GetBatch(ctx, tenderID, id)
		}
		return nil, err
	}
	if batch == nil {
		return s.secondary.GetBatch(ctx, tenderID, id)
	}
	return batch, nil
}

func (s *DualStore) GetBatchByReference(ctx context.Context, reference string) (*service.Batch, error) {
	batch, err := s.primary.GetBatchByReference(ctx, reference)
	if err != nil {
		if s.readFallback {
			s.fellBack("get batch by reference", err)
			return s.secondary.GetBatchByReference(ctx, reference)
		}
		return nil, err
	}
	if batch == nil {
		return s.secondary.GetBatchByReference(ctx, reference)
	}
	return batch, nil
}

func (s *DualStore) UpdateBatchStatus(ctx context.Context, tenderID, id string, status service.BatchStatus, lastError string) (*service.Batch, error) {
	out, err := s.primary.UpdateBatchStatus(ctx, tenderID, id, status, lastError)
	if err != nil || out == nil {
		return out, err
	}
	if _, err := s.secondary.UpsertBatchRecord(ctx, tenderID, *out); err != nil {
		s.mirrorFailed("update batch status", err)
	}
	return out, nil
}

func (s *DualStore) UpdateBatch(ctx context.Context, tenderID, id string, patch service.BatchPatch) (*service.Batch, error) {
	out, err := s.primary.UpdateBatch(ctx, tenderID, id, patch)
	if err != nil || out == nil {
		return out, err
	}
	if _, err := s.secondary.UpsertBatchRecord(ctx, tenderID, *out); err != nil {
		s.mirrorFailed("update batch", err)
	}
	return out, nil
}

func (s *DualStore) DeleteBatch(ctx context.Context, tenderID, id string) (bool, error) {
	deleted, err := s.primary.DeleteBatch(ctx, tenderID, id)
	if err != nil {
		return false, err
	}
	if _, err := s.secondary.DeleteBatch(ctx, tenderID, id); err != nil {
		s.mirrorFailed("delete batch", err)
	}
	return deleted, nil
}

// ClaimBatchForSubmission is never forwarded to the secondary: the lease only
// means anything on the store with optimistic preconditions. The claimed
// state is mirrored so a later fallback read sees it.
func (s *DualStore) ClaimBatchForSubmission(ctx context.Context, tenderID, id, owner string, allowedStatuses []service.BatchStatus, leaseSeconds int) (*service.Batch, error) {
	claimed, err := s.primary.ClaimBatchForSubmission(ctx, tenderID, id, owner, allowedStatuses, leaseSeconds)
	if err != nil || claimed == nil {
		return claimed, err
	}
	if _, err := s.secondary.UpsertBatchRecord(ctx, tenderID, *claimed); err != nil {
		s.mirrorFailed("claim batch", err)
	}
	return claimed, nil
}

func (s *DualStore) GetBatchFiles(ctx context.Context, tenderID, batchID string) ([]service.File, error) {
	files, err := s.primary.GetBatchFiles(ctx, tenderID, batchID)
	if err != nil && s.readFallback {
		s.fellBack("get batch files", err)
		return s.secondary.GetBatchFiles(ctx, tenderID, batchID)
	}
	return files, err
}

func (s *DualStore) UpdateFilesCategory(ctx context.Context, tenderID string, paths []string, category, batchID string) (int, error) {
	updated, err := s.primary.UpdateFilesCategory(ctx, tenderID, paths, category, batchID)
	if err != nil {
		return updated, err
	}
	if _, err := s.secondary.UpdateFilesCategory(ctx, tenderID, paths, category, batchID); err != nil {
		s.mirrorFailed("update files category", err)
	}
	return updated, nil
}

func (s *DualStore) CheckHealth(ctx context.Context) service.Health {
	primary := s.primary.CheckHealth(ctx)
	secondary := s.secondary.CheckHealth(ctx)

	h := service.Health{
		OK:            primary.OK,
		Backend:       "dual",
		FallbackReads: s.fallbackReads.Load(),
	}
	if !primary.OK {
		h.Error = "primary: " + primary.Error
	}
	if !secondary.OK {
		if h.Error != "" {
			h.Error += "; "
		}
		h.Error += "secondary: " + secondary.Error
		// Primary alone keeps the service up; secondary failure is reported
		// but does not flip overall health.
	}
	return h
}
