package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
	"github.com/quovant/tenderdocs/platform/cosmosdb"
	"github.com/quovant/tenderdocs/platform/optimistic"
)

// MinLeaseSeconds floors the submission lease duration requested by claimers.
const MinLeaseSeconds = 30

func (s *CosmosStore) CreateBatch(ctx context.Context, tenderID string, input service.CreateBatchInput) (service.Batch, error) {
	if tenderID == "" {
		return service.Batch{}, service.NewValidationError("tender_id", "required")
	}
	if input.Name == "" {
		return service.Batch{}, service.NewValidationError("name", "required")
	}

	batch := service.Batch{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Discipline:  input.Discipline,
		Status:      service.StatusPending,
		SubmittedBy: input.CreatedBy,
		Coordinates: input.Coordinates,
	}

	body, err := encodeDoc(toBatchDoc(tenderID, batch))
	if err != nil {
		return service.Batch{}, err
	}
	if _, err := s.docs.CreateItem(ctx, tenderID, body); err != nil {
		return service.Batch{}, fmt.Errorf("create batch %s: %w", tenderID, err)
	}

	if len(input.FilePaths) > 0 {
		if _, err := s.UpdateFilesCategory(ctx, tenderID, input.FilePaths, input.Name, batch.ID); err != nil {
			return service.Batch{}, fmt.Errorf("tag batch files %s/%s: %w", tenderID, batch.ID, err)
		}
		batch.FilePaths = append([]string(nil), input.FilePaths...)
	}
	return batch, nil
}

// UpsertBatchRecord is an idempotent full replace that also keeps the
// reference index in step with UiPathReference changes.
func (s *CosmosStore) UpsertBatchRecord(ctx context.Context, tenderID string, batch service.Batch) (service.Batch, error) {
	if batch.ID == "" {
		return service.Batch{}, service.NewValidationError("id", "required")
	}
	if batch.Status == "" {
		batch.Status = service.StatusPending
	}
	if !service.ValidStatus(batch.Status) {
		return service.Batch{}, service.NewValidationError("status", fmt.Sprintf("unknown status %q", batch.Status))
	}

	previousRef := ""
	if item, err := s.docs.ReadItem(ctx, tenderID, batch.ID); err == nil {
		prev, decErr := decodeDoc[batchDoc](item.Body)
		if decErr != nil {
			return service.Batch{}, decErr
		}
		previousRef = prev.UiPathReference
	} else if !errors.Is(err, cosmosdb.ErrNotFound) {
		return service.Batch{}, fmt.Errorf("read batch %s/%s: %w", tenderID, batch.ID, err)
	}

	body, err := encodeDoc(toBatchDoc(tenderID, batch))
	if err != nil {
		return service.Batch{}, err
	}
	if _, err := s.docs.UpsertItem(ctx, tenderID, body); err != nil {
		return service.Batch{}, fmt.Errorf("upsert batch %s/%s: %w", tenderID, batch.ID, err)
	}

	if err := s.refIndex.sync(ctx, previousRef, batch.UiPathReference, tenderID, batch.ID); err != nil {
		return service.Batch{}, err
	}

	paths, err := s.batchFilePaths(ctx, tenderID, batch.ID)
	if err != nil {
		return service.Batch{}, err
	}
	batch.FilePaths = paths
	return batch, nil
}

func (s *CosmosStore) ListBatches(ctx context.Context, tenderID string) ([]service.Batch, error) {
	bodies, err := s.docs.Query(ctx, tenderID,
		"SELECT * FROM c WHERE c.tender_id = @tid AND c.doc_type = @type",
		[]cosmosdb.QueryParam{
			{Name: "@tid", Value: tenderID},
			{Name: "@type", Value: docTypeBatch},
		})
	if err != nil {
		return nil, fmt.Errorf("list batches %s: %w", tenderID, err)
	}

	pathsByBatch, err := s.filePathsByBatch(ctx, tenderID)
	if err != nil {
		return nil, err
	}

	batches := make([]service.Batch, 0, len(bodies))
	for _, body := range bodies {
		doc, err := decodeDoc[batchDoc](body)
		if err != nil {
			return nil, err
		}
		batch := doc.toModel()
		batch.FilePaths = pathsByBatch[batch.ID]
		batches = append(batches, batch)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].Name < batches[j].Name })
	return batches, nil
}

func (s *CosmosStore) GetBatch(ctx context.Context, tenderID, id string) (*service.Batch, error) {
	item, err := s.docs.ReadItem(ctx, tenderID, id)
	if errors.Is(err, cosmosdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %s/%s: %w", tenderID, id, err)
	}

	doc, err := decodeDoc[batchDoc](item.Body)
	if err != nil {
		return nil, err
	}
	batch := doc.toModel()
	batch.FilePaths, err = s.batchFilePaths(ctx, tenderID, id)
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetBatchByReference resolves the externally issued reference through the
// index and returns the live batch. Dangling entries are tolerated on read
// and corrected by the next batch write or reconciliation run.
func (s *CosmosStore) GetBatchByReference(ctx context.Context, reference string) (*service.Batch, error) {
	if reference == "" {
		return nil, nil
	}
	entry, err := s.refIndex.lookup(ctx, reference)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	return s.GetBatch(ctx, entry.TenderID, entry.BatchID)
}

func (s *CosmosStore) UpdateBatchStatus(ctx context.Context, tenderID, id string, status service.BatchStatus, lastError string) (*service.Batch, error) {
	if !service.ValidStatus(status) {
		return nil, service.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	return s.mutateBatch(ctx, tenderID, id, func(batch *service.Batch) {
		batch.Status = status
		batch.LastError = lastError
		if status != service.StatusSubmitting {
			// The lease is released the moment the batch leaves submitting.
			batch.SubmissionLockedUntil = nil
		}
	})
}

func (s *CosmosStore) UpdateBatch(ctx context.Context, tenderID, id string, patch service.BatchPatch) (*service.Batch, error) {
	return s.mutateBatch(ctx, tenderID, id, func(batch *service.Batch) {
		if patch.Name != nil {
			batch.Name = *patch.Name
		}
		if patch.Discipline != nil {
			batch.Discipline = *patch.Discipline
		}
		if patch.Coordinates != nil {
			batch.Coordinates = patch.Coordinates
		}
		if patch.LastError != nil {
			batch.LastError = *patch.LastError
		}
		if patch.UiPathReference != nil {
			batch.UiPathReference = *patch.UiPathReference
		}
		if patch.UiPathSubmissionID != nil {
			batch.UiPathSubmissionID = *patch.UiPathSubmissionID
		}
		if patch.UiPathProjectID != nil {
			batch.UiPathProjectID = *patch.UiPathProjectID
		}
		if patch.SubmittedBy != nil {
			batch.SubmittedBy = *patch.SubmittedBy
		}
		if patch.SubmittedAt != nil {
			batch.SubmittedAt = patch.SubmittedAt
		}
	})
}

// mutateBatch runs an ETag-guarded read-mutate-replace cycle and keeps the
// reference index in step when the mutation changed the reference.
func (s *CosmosStore) mutateBatch(ctx context.Context, tenderID, id string, mutate func(*service.Batch)) (*service.Batch, error) {
	var out *service.Batch
	err := optimistic.Do(ctx, s.retry, func(ctx context.Context) (bool, error) {
		item, err := s.docs.ReadItem(ctx, tenderID, id)
		if errors.Is(err, cosmosdb.ErrNotFound) {
			out = nil
			return false, nil
		}
		if err != nil {
			return false, err
		}

		doc, err := decodeDoc[batchDoc](item.Body)
		if err != nil {
			return false, err
		}
		batch := doc.toModel()
		previousRef := batch.UiPathReference
		mutate(&batch)

		body, err := encodeDoc(toBatchDoc(tenderID, batch))
		if err != nil {
			return false, err
		}
		if _, err := s.docs.ReplaceItem(ctx, tenderID, id, body, item.ETag); err != nil {
			if errors.Is(err, cosmosdb.ErrPreconditionFailed) {
				return true, err
			}
			return false, err
		}

		if err := s.refIndex.sync(ctx, previousRef, batch.UiPathReference, tenderID, id); err != nil {
			return false, err
		}
		out = &batch
		return false, nil
	})
	if err != nil {
		if errors.Is(err, optimistic.ErrExhausted) {
			return nil, fmt.Errorf("update batch %s/%s: %w: %w", tenderID, id, service.ErrRetriesExhausted, err)
		}
		return nil, fmt.Errorf("update batch %s/%s: %w", tenderID, id, err)
	}
	if out == nil {
		return nil, nil
	}

	paths, err := s.batchFilePaths(ctx, tenderID, id)
	if err != nil {
		return nil, err
	}
	out.FilePaths = paths
	return out, nil
}

// DeleteBatch un-batches its files back to the default category, removes the
// reference index entry, and deletes the batch record.
func (s *CosmosStore) DeleteBatch(ctx context.Context, tenderID, id string) (bool, error) {
	item, err := s.docs.ReadItem(ctx, tenderID, id)
	if errors.Is(err, cosmosdb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read batch %s/%s: %w", tenderID, id, err)
	}
	doc, err := decodeDoc[batchDoc](item.Body)
	if err != nil {
		return false, err
	}

	paths, err := s.batchFilePaths(ctx, tenderID, id)
	if err != nil {
		return false, err
	}
	if len(paths) > 0 {
		if _, err := s.UpdateFilesCategory(ctx, tenderID, paths, service.DefaultCategory, ""); err != nil {
			return false, fmt.Errorf("unbatch files %s/%s: %w", tenderID, id, err)
		}
	}

	if doc.UiPathReference != "" {
		if err := s.refIndex.remove(ctx, doc.UiPathReference); err != nil {
			return false, err
		}
	}

	if err := s.docs.DeleteItem(ctx, tenderID, id, ""); err != nil {
		if errors.Is(err, cosmosdb.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete batch %s/%s: %w", tenderID, id, err)
	}
	return true, nil
}

// ClaimBatchForSubmission hands the batch to exactly one submission attempt.
// Meeting an active foreign lease, losing the optimistic race, or exhausting
// the retry budget all return nil: contention is an expected outcome here,
// not an error.
func (s *CosmosStore) ClaimBatchForSubmission(ctx context.Context, tenderID, id, owner string, allowedStatuses []service.BatchStatus, leaseSeconds int) (*service.Batch, error) {
	if owner == "" {
		return nil, service.NewValidationError("owner", "required")
	}
	for _, status := range allowedStatuses {
		if !service.ValidStatus(status) {
			return nil, service.NewValidationError("allowed_statuses", fmt.Sprintf("unknown status %q", status))
		}
	}
	if leaseSeconds < MinLeaseSeconds {
		leaseSeconds = MinLeaseSeconds
	}

	var claimed *service.Batch
	err := optimistic.Do(ctx, s.retry, func(ctx context.Context) (bool, error) {
		claimed = nil

		item, err := s.docs.ReadItem(ctx, tenderID, id)
		if errors.Is(err, cosmosdb.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		doc, err := decodeDoc[batchDoc](item.Body)
		if err != nil {
			return false, err
		}
		batch := doc.toModel()

		now := s.now()
		lockActive := batch.LockActive(now)
		if lockActive && batch.SubmissionOwner != owner {
			s.logger.Debug("batch claim refused: active lease held elsewhere",
				zap.String("tender_id", tenderID),
				zap.String("batch_id", id),
				zap.String("holder", batch.SubmissionOwner),
			)
			return false, nil
		}

		allowed := statusAllowed(batch.Status, allowedStatuses)
		reclaim := batch.Status == service.StatusSubmitting && (!lockActive || batch.SubmissionOwner == owner)
		if !allowed && !reclaim {
			return false, nil
		}

		expiry := now.Add(time.Duration(leaseSeconds) * time.Second)
		batch.Attempts = append(batch.Attempts, service.SubmissionAttempt{Owner: owner, At: now})
		batch.Status = service.StatusSubmitting
		batch.SubmissionOwner = owner
		batch.SubmissionLockedUntil = &expiry
		batch.SubmittedBy = owner
		batch.SubmittedAt = &now
		batch.LastError = ""

		body, err := encodeDoc(toBatchDoc(tenderID, batch))
		if err != nil {
			return false, err
		}
		if _, err := s.docs.ReplaceItem(ctx, tenderID, id, body, item.ETag); err != nil {
			if errors.Is(err, cosmosdb.ErrPreconditionFailed) {
				return true, err
			}
			return false, err
		}
		claimed = &batch
		return false, nil
	})
	if err != nil {
		if errors.Is(err, optimistic.ErrExhausted) {
			// Lost every round to other claimants: a refusal, not a failure.
			s.logger.Info("batch claim lost optimistic race",
				zap.String("tender_id", tenderID),
				zap.String("batch_id", id),
				zap.String("owner", owner),
				zap.Int("attempts", s.retry.Attempts),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("claim batch %s/%s: %w", tenderID, id, err)
	}
	if claimed == nil {
		return nil, nil
	}

	paths, err := s.batchFilePaths(ctx, tenderID, id)
	if err != nil {
		return nil, err
	}
	claimed.FilePaths = paths
	return claimed, nil
}

func (s *CosmosStore) GetBatchFiles(ctx context.Context, tenderID, batchID string) ([]service.File, error) {
	bodies, err := s.docs.Query(ctx, tenderID,
		"SELECT * FROM c WHERE c.tender_id = @tid AND c.doc_type = @type AND c.batch_id = @bid",
		[]cosmosdb.QueryParam{
			{Name: "@tid", Value: tenderID},
			{Name: "@type", Value: docTypeFile},
			{Name: "@bid", Value: batchID},
		})
	if err != nil {
		return nil, fmt.Errorf("list batch files %s/%s: %w", tenderID, batchID, err)
	}

	files := make([]service.File, 0, len(bodies))
	for _, body := range bodies {
		doc, err := decodeDoc[fileDoc](body)
		if err != nil {
			return nil, err
		}
		files = append(files, doc.toModel())
	}
	sortFilesNewestFirst(files)
	return files, nil
}

func (s *CosmosStore) batchFilePaths(ctx context.Context, tenderID, batchID string) ([]string, error) {
	files, err := s.GetBatchFiles(ctx, tenderID, batchID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *CosmosStore) filePathsByBatch(ctx context.Context, tenderID string) (map[string][]string, error) {
	files, err := s.ListFiles(ctx, tenderID, false)
	if err != nil {
		return nil, err
	}
	byBatch := make(map[string][]string)
	for _, f := range files {
		if f.BatchID == nil {
			continue
		}
		byBatch[*f.BatchID] = append(byBatch[*f.BatchID], f.Path)
	}
	for _, paths := range byBatch {
		sort.Strings(paths)
	}
	return byBatch, nil
}

func statusAllowed(status service.BatchStatus, allowed []service.BatchStatus) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
