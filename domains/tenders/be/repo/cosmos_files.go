package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
	"github.com/quovant/tenderdocs/platform/cosmosdb"
	"github.com/quovant/tenderdocs/platform/optimistic"
)

// errRacedCreate signals that a concurrent writer created the file record
// between our existence check and the create; the caller falls through to the
// plain replace path.
var errRacedCreate = errors.New("file record created concurrently")

func (s *CosmosStore) ListFiles(ctx context.Context, tenderID string, excludeBatched bool) ([]service.File, error) {
	query := "SELECT * FROM c WHERE c.tender_id = @tid AND c.doc_type = @type"
	params := []cosmosdb.QueryParam{
		{Name: "@tid", Value: tenderID},
		{Name: "@type", Value: docTypeFile},
	}
	if excludeBatched {
		// The codec writes "" for unbatched files precisely so this predicate
		// never has to handle an absent field.
		query += " AND c.batch_id = @unbatched"
		params = append(params, cosmosdb.QueryParam{Name: "@unbatched", Value: ""})
	}

	bodies, err := s.docs.Query(ctx, tenderID, query, params)
	if err != nil {
		return nil, fmt.Errorf("list files %s: %w", tenderID, err)
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

func (s *CosmosStore) GetFile(ctx context.Context, tenderID, path string) (*service.File, error) {
	item, err := s.docs.ReadItem(ctx, tenderID, service.FileDocID(path))
	if errors.Is(err, cosmosdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s/%s: %w", tenderID, path, err)
	}
	doc, err := decodeDoc[fileDoc](item.Body)
	if err != nil {
		return nil, err
	}
	file := doc.toModel()
	return &file, nil
}

// UpsertFileRecord replaces an existing record in place, or creates the
// record and increments the tender file counter as one atomic unit of work.
func (s *CosmosStore) UpsertFileRecord(ctx context.Context, tenderID string, file service.File) (service.File, error) {
	if tenderID == "" {
		return service.File{}, service.NewValidationError("tender_id", "required")
	}
	if file.Path == "" {
		return service.File{}, service.NewValidationError("path", "required")
	}

	now := s.now()
	if file.Category == "" {
		file.Category = service.DefaultCategory
	}
	if file.Source == "" {
		file.Source = service.SourceLocal
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = now
	}
	file.ModifiedAt = now

	docID := service.FileDocID(file.Path)
	_, readErr := s.docs.ReadItem(ctx, tenderID, docID)
	if readErr != nil && !errors.Is(readErr, cosmosdb.ErrNotFound) {
		return service.File{}, fmt.Errorf("read file %s/%s: %w", tenderID, file.Path, readErr)
	}

	doc := toFileDoc(tenderID, file)
	body, err := encodeDoc(doc)
	if err != nil {
		return service.File{}, err
	}

	if readErr == nil {
		// Existing path: plain replace, no counter math.
		return file, s.replaceFileRecord(ctx, tenderID, body)
	}

	err = s.createFileWithCounter(ctx, tenderID, doc.ID, body)
	switch {
	case err == nil:
		return file, nil
	case errors.Is(err, errRacedCreate):
		// Someone else created the record (and took the counter increment);
		// this call degrades to a plain replace.
		return file, s.replaceFileRecord(ctx, tenderID, body)
	default:
		return service.File{}, err
	}
}

func (s *CosmosStore) replaceFileRecord(ctx context.Context, tenderID string, body []byte) error {
	if _, err := s.docs.UpsertItem(ctx, tenderID, body); err != nil {
		return fmt.Errorf("replace file record: %w", err)
	}
	return nil
}

// createFileWithCounter runs strategy A (transactional batch) when the store
// supports patching inside a batch, otherwise strategy B (create, then CAS
// the counter, rolling the create back if the counter cannot be adjusted).
func (s *CosmosStore) createFileWithCounter(ctx context.Context, tenderID, docID string, body []byte) error {
	if s.patchInBatch.Load() {
		batch := &cosmosdb.Batch{}
		batch.CreateItem(body)
		batch.PatchItem(tenderID, s.counterPatch(1))

		err := s.docs.ExecuteBatch(ctx, tenderID, batch)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, cosmosdb.ErrPatchInBatchUnsupported):
			s.demotePatchInBatch()
			// fall through to strategy B for this call
		case errors.Is(err, cosmosdb.ErrConflict):
			return errRacedCreate
		default:
			return fmt.Errorf("transactional file create %s: %w", tenderID, err)
		}
	}

	if _, err := s.docs.CreateItem(ctx, tenderID, body); err != nil {
		if errors.Is(err, cosmosdb.ErrConflict) {
			return errRacedCreate
		}
		return fmt.Errorf("create file record %s: %w", tenderID, err)
	}

	if err := s.adjustFileCount(ctx, tenderID, 1); err != nil {
		// The record exists but the counter was never adjusted; undo the
		// create so the invariant holds, then surface the original failure.
		if rbErr := s.docs.DeleteItem(ctx, tenderID, docID, ""); rbErr != nil && !errors.Is(rbErr, cosmosdb.ErrNotFound) {
			s.logger.Error("rollback of file create failed; counter drift until reconciliation",
				zap.String("tender_id", tenderID),
				zap.String("doc_id", docID),
				zap.NamedError("cause", err),
				zap.NamedError("rollback_error", rbErr),
			)
			return &service.RollbackError{Op: "create file record", Cause: err, RollbackCause: rbErr}
		}
		return err
	}
	return nil
}

// DeleteFileMetadata deletes the file record and decrements the tender file
// counter atomically; returns false when the file does not exist.
func (s *CosmosStore) DeleteFileMetadata(ctx context.Context, tenderID, path string) (bool, error) {
	docID := service.FileDocID(path)

	item, err := s.docs.ReadItem(ctx, tenderID, docID)
	if errors.Is(err, cosmosdb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read file %s/%s: %w", tenderID, path, err)
	}

	if s.patchInBatch.Load() {
		batch := &cosmosdb.Batch{}
		batch.DeleteItem(docID)
		batch.PatchItem(tenderID, s.counterPatch(-1))

		err := s.docs.ExecuteBatch(ctx, tenderID, batch)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, cosmosdb.ErrPatchInBatchUnsupported):
			s.demotePatchInBatch()
			// fall through to strategy B for this call
		case errors.Is(err, cosmosdb.ErrNotFound):
			// raced with a concurrent delete; the other deleter owns the
			// counter decrement
			return false, nil
		default:
			return false, fmt.Errorf("transactional file delete %s: %w", tenderID, err)
		}
	}

	deleted := false
	etag := item.ETag
	err = optimistic.Do(ctx, s.retry, func(ctx context.Context) (bool, error) {
		delErr := s.docs.DeleteItem(ctx, tenderID, docID, etag)
		switch {
		case delErr == nil:
			deleted = true
			return false, nil
		case errors.Is(delErr, cosmosdb.ErrNotFound):
			return false, nil
		case errors.Is(delErr, cosmosdb.ErrPreconditionFailed):
			fresh, readErr := s.docs.ReadItem(ctx, tenderID, docID)
			if errors.Is(readErr, cosmosdb.ErrNotFound) {
				return false, nil
			}
			if readErr != nil {
				return false, readErr
			}
			item = fresh
			etag = fresh.ETag
			return true, delErr
		default:
			return false, delErr
		}
	})
	if err != nil {
		if errors.Is(err, optimistic.ErrExhausted) {
			return false, fmt.Errorf("delete file record %s/%s: %w: %w", tenderID, path, service.ErrRetriesExhausted, err)
		}
		return false, fmt.Errorf("delete file record %s/%s: %w", tenderID, path, err)
	}
	if !deleted {
		return false, nil
	}

	if err := s.adjustFileCount(ctx, tenderID, -1); err != nil {
		// Re-insert the just-deleted record (version tag is gone, plain
		// upsert) so the invariant holds, then surface the original failure.
		if rbErr := s.replaceFileRecord(ctx, tenderID, item.Body); rbErr != nil {
			s.logger.Error("rollback of file delete failed; counter drift until reconciliation",
				zap.String("tender_id", tenderID),
				zap.String("path", path),
				zap.NamedError("cause", err),
				zap.NamedError("rollback_error", rbErr),
			)
			return false, &service.RollbackError{Op: "delete file record", Cause: err, RollbackCause: rbErr}
		}
		return false, err
	}
	return true, nil
}

func (s *CosmosStore) UpdateFileMetadata(ctx context.Context, tenderID, path string, patch service.FilePatch) (*service.File, error) {
	docID := service.FileDocID(path)

	var out *service.File
	err := optimistic.Do(ctx, s.retry, func(ctx context.Context) (bool, error) {
		item, err := s.docs.ReadItem(ctx, tenderID, docID)
		if errors.Is(err, cosmosdb.ErrNotFound) {
			out = nil
			return false, nil
		}
		if err != nil {
			return false, err
		}

		doc, err := decodeDoc[fileDoc](item.Body)
		if err != nil {
			return false, err
		}
		file := doc.toModel()
		applyFilePatch(&file, patch)
		file.ModifiedAt = s.now()

		body, err := encodeDoc(toFileDoc(tenderID, file))
		if err != nil {
			return false, err
		}
		if _, err := s.docs.ReplaceItem(ctx, tenderID, docID, body, item.ETag); err != nil {
			if errors.Is(err, cosmosdb.ErrPreconditionFailed) {
				return true, err
			}
			return false, err
		}
		out = &file
		return false, nil
	})
	if err != nil {
		if errors.Is(err, optimistic.ErrExhausted) {
			return nil, fmt.Errorf("update file metadata %s/%s: %w: %w", tenderID, path, service.ErrRetriesExhausted, err)
		}
		return nil, fmt.Errorf("update file metadata %s/%s: %w", tenderID, path, err)
	}
	return out, nil
}

func (s *CosmosStore) UpdateFilesCategory(ctx context.Context, tenderID string, paths []string, category, batchID string) (int, error) {
	patch := service.FilePatch{Category: &category}
	if batchID == "" {
		patch.ClearBatchID = true
		source := service.SourceLocal
		patch.Source = &source
	} else {
		patch.BatchID = &batchID
		source := service.SourceBatched
		patch.Source = &source
	}

	updated := 0
	for _, path := range paths {
		file, err := s.UpdateFileMetadata(ctx, tenderID, path, patch)
		if err != nil {
			return updated, err
		}
		if file != nil {
			updated++
		}
	}
	return updated, nil
}

// adjustFileCount applies the counter delta with an ETag-guarded
// read-modify-write, clamped at zero, retried on conflict.
func (s *CosmosStore) adjustFileCount(ctx context.Context, tenderID string, delta int) error {
	err := optimistic.Do(ctx, s.retry, func(ctx context.Context) (bool, error) {
		item, err := s.docs.ReadItem(ctx, tenderID, tenderID)
		if err != nil {
			return false, fmt.Errorf("read tender counter: %w", err)
		}
		doc, err := decodeDoc[tenderDoc](item.Body)
		if err != nil {
			return false, err
		}

		doc.FileCount += delta
		if doc.FileCount < 0 {
			doc.FileCount = 0
		}
		doc.UpdatedAt = s.now()

		body, err := encodeDoc(doc)
		if err != nil {
			return false, err
		}
		if _, err := s.docs.ReplaceItem(ctx, tenderID, tenderID, body, item.ETag); err != nil {
			if errors.Is(err, cosmosdb.ErrPreconditionFailed) {
				return true, err
			}
			return false, err
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, optimistic.ErrExhausted) {
			return fmt.Errorf("adjust file count %s by %d: %w: %w", tenderID, delta, service.ErrRetriesExhausted, err)
		}
		return fmt.Errorf("adjust file count %s by %d: %w", tenderID, delta, err)
	}
	return nil
}

func (s *CosmosStore) counterPatch(delta int64) cosmosdb.Patch {
	patch := cosmosdb.Patch{}
	patch.AppendIncrement("/file_count", delta)
	patch.AppendSet("/updated_at", s.now().Format(time.RFC3339Nano))
	return patch
}

func applyFilePatch(file *service.File, patch service.FilePatch) {
	if patch.Name != nil {
		file.Name = *patch.Name
	}
	if patch.Size != nil {
		file.Size = *patch.Size
	}
	if patch.ContentType != nil {
		file.ContentType = *patch.ContentType
	}
	if patch.Category != nil {
		file.Category = *patch.Category
	}
	if patch.Source != nil {
		file.Source = *patch.Source
	}
	switch {
	case patch.ClearBatchID:
		file.BatchID = nil
	case patch.BatchID != nil:
		file.BatchID = patch.BatchID
	}
}

func sortFilesNewestFirst(files []service.File) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].ModifiedAt.Equal(files[j].ModifiedAt) {
			return files[i].Path < files[j].Path
		}
		return files[i].ModifiedAt.After(files[j].ModifiedAt)
	})
}
