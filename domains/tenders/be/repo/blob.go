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
	"github.com/quovant/tenderdocs/platform/blobstore"
)

// BlobStore implements service.Store directly against marker-blob metadata.
// It is the degraded-but-available path: file counts are derived by listing,
// there is no transactional batch, and the claim protocol is unsupported.
type BlobStore struct {
	bucket blobstore.Bucket
	logger *zap.Logger
	now    func() time.Time
}

var _ service.Store = (*BlobStore)(nil)

// NewBlobStore builds the fallback store over one blob container.
func NewBlobStore(bucket blobstore.Bucket, logger *zap.Logger) *BlobStore {
	if bucket == nil {
		panic("blob store requires a bucket")
	}
	if logger == nil {
		panic("blob store requires a logger")
	}
	return &BlobStore{
		bucket: bucket,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *BlobStore) ListTenders(ctx context.Context) ([]service.Tender, error) {
	objects, err := s.bucket.List(ctx, "tenders/")
	if err != nil {
		return nil, fmt.Errorf("list tender blobs: %w", err)
	}

	var tenders []service.Tender
	for _, obj := range objects {
		if obj.Metadata["doc_type"] != docTypeTender {
			continue
		}
		tender, err := tenderFromMetadata(obj.Metadata)
		if err != nil {
			return nil, err
		}
		tender.FileCount, err = s.countFiles(ctx, tender.ID)
		if err != nil {
			return nil, err
		}
		tenders = append(tenders, tender)
	}
	sort.Slice(tenders, func(i, j int) bool { return tenders[i].ID < tenders[j].ID })
	return tenders, nil
}

func (s *BlobStore) GetTender(ctx context.Context, id string) (*service.Tender, error) {
	md, err := s.bucket.GetMetadata(ctx, tenderBlobName(id))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tender blob %s: %w", id, err)
	}
	tender, err := tenderFromMetadata(md)
	if err != nil {
		return nil, err
	}
	tender.FileCount, err = s.countFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	return &tender, nil
}

func (s *BlobStore) CreateTender(ctx context.Context, input service.CreateTenderInput) (service.Tender, error) {
	if input.Name == "" {
		return service.Tender{}, service.NewValidationError("name", "required")
	}
	id := service.DeriveTenderID(input.Name)
	if id == "" {
		return service.Tender{}, service.NewValidationError("name", "must contain at least one alphanumeric character")
	}

	if _, err := s.bucket.GetMetadata(ctx, tenderBlobName(id)); err == nil {
		return service.Tender{}, fmt.Errorf("tender %s: %w", id, service.ErrAlreadyExists)
	} else if !errors.Is(err, blobstore.ErrNotFound) {
		return service.Tender{}, fmt.Errorf("check tender blob %s: %w", id, err)
	}

	now := s.now()
	tender := service.Tender{
		ID:           id,
		Name:         input.Name,
		CreatedBy:    input.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
		SourceFolder: input.SourceFolder,
		OutputFolder: input.OutputFolder,
	}
	if err := s.bucket.Upload(ctx, tenderBlobName(id), tenderToMetadata(tender)); err != nil {
		return service.Tender{}, fmt.Errorf("create tender blob %s: %w", id, err)
	}
	return tender, nil
}

func (s *BlobStore) UpsertTenderRecord(ctx context.Context, tender service.Tender) (service.Tender, error) {
	if tender.ID == "" {
		return service.Tender{}, service.NewValidationError("id", "required")
	}
	tender.UpdatedAt = s.now()
	if tender.CreatedAt.IsZero() {
		tender.CreatedAt = tender.UpdatedAt
	}
	if err := s.bucket.Upload(ctx, tenderBlobName(tender.ID), tenderToMetadata(tender)); err != nil {
		return service.Tender{}, fmt.Errorf("upsert tender blob %s: %w", tender.ID, err)
	}
	return tender, nil
}

func (s *BlobStore) DeleteTender(ctx context.Context, id string) (bool, error) {
	objects, err := s.bucket.List(ctx, "tenders/"+id+"/")
	if err != nil {
		return false, fmt.Errorf("list tender blobs %s: %w", id, err)
	}

	existed := false
	for _, obj := range objects {
		if obj.Name == tenderBlobName(id) {
			existed = true
		}
		if err := s.bucket.Delete(ctx, obj.Name); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			return existed, fmt.Errorf("delete blob %s: %w", obj.Name, err)
		}
	}
	return existed, nil
}

func (s *BlobStore) ListFiles(ctx context.Context, tenderID string, excludeBatched bool) ([]service.File, error) {
	objects, err := s.bucket.List(ctx, tenderFilesPrefix(tenderID))
	if err != nil {
		return nil, fmt.Errorf("list file blobs %s: %w", tenderID, err)
	}

	files := make([]service.File, 0, len(objects))
	for _, obj := range objects {
		file, err := fileFromMetadata(obj.Metadata)
		if err != nil {
			return nil, err
		}
		if excludeBatched && file.BatchID != nil {
			continue
		}
		files = append(files, file)
	}
	sortFilesNewestFirst(files)
	return files, nil
}

func (s *BlobStore) GetFile(ctx context.Context, tenderID, path string) (*service.File, error) {
	md, err := s.bucket.GetMetadata(ctx, fileBlobName(tenderID, path))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file blob %s/%s: %w", tenderID, path, err)
	}
	file, err := fileFromMetadata(md)
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *BlobStore) UpsertFileRecord(ctx context.Context, tenderID string, file service.File) (service.File, error) {
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

	if err := s.bucket.Upload(ctx, fileBlobName(tenderID, file.Path), fileToMetadata(file)); err != nil {
		return service.File{}, fmt.Errorf("upsert file blob %s/%s: %w", tenderID, file.Path, err)
	}
	return file, nil
}

func (s *BlobStore) UpdateFileMetadata(ctx context.Context, tenderID, path string, patch service.FilePatch) (*service.File, error) {
	file, err := s.GetFile(ctx, tenderID, path)
	if err != nil || file == nil {
		return nil, err
	}

	applyFilePatch(file, patch)
	file.ModifiedAt = s.now()
	if err := s.bucket.SetMetadata(ctx, fileBlobName(tenderID, path), fileToMetadata(*file)); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("update file blob %s/%s: %w", tenderID, path, err)
	}
	return file, nil
}

func (s *BlobStore) DeleteFileMetadata(ctx context.Context, tenderID, path string) (bool, error) {
	err := s.bucket.Delete(ctx, fileBlobName(tenderID, path))
	if errors.Is(err, blobstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete file blob %s/%s: %w", tenderID, path, err)
	}
	return true, nil
}

func (s *BlobStore) CreateBatch(ctx context.Context, tenderID string, input service.CreateBatchInput) (service.Batch, error) {
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
	md, err := batchToMetadata(batch)
	if err != nil {
		return service.Batch{}, err
	}
	if err := s.bucket.Upload(ctx, batchBlobName(tenderID, batch.ID), md); err != nil {
		return service.Batch{}, fmt.Errorf("create batch blob %s: %w", tenderID, err)
	}

	if len(input.FilePaths) > 0 {
		if _, err := s.UpdateFilesCategory(ctx, tenderID, input.FilePaths, input.Name, batch.ID); err != nil {
			return service.Batch{}, err
		}
		batch.FilePaths = append([]string(nil), input.FilePaths...)
	}
	return batch, nil
}

func (s *BlobStore) UpsertBatchRecord(ctx context.Context, tenderID string, batch service.Batch) (service.Batch, error) {
	if batch.ID == "" {
		return service.Batch{}, service.NewValidationError("id", "required")
	}
	if batch.Status == "" {
		batch.Status = service.StatusPending
	}
	if !service.ValidStatus(batch.Status) {
		return service.Batch{}, service.NewValidationError("status", fmt.Sprintf("unknown status %q", batch.Status))
	}

	md, err := batchToMetadata(batch)
	if err != nil {
		return service.Batch{}, err
	}
	if err := s.bucket.Upload(ctx, batchBlobName(tenderID, batch.ID), md); err != nil {
		return service.Batch{}, fmt.Errorf("upsert batch blob %s/%s: %w", tenderID, batch.ID, err)
	}
	return batch, nil
}

func (s *BlobStore) ListBatches(ctx context.Context, tenderID string) ([]service.Batch, error) {
	objects, err := s.bucket.List(ctx, tenderBatchesPrefix(tenderID))
	if err != nil {
		return nil, fmt.Errorf("list batch blobs %s: %w", tenderID, err)
	}

	batches := make([]service.Batch, 0, len(objects))
	for _, obj := range objects {
		batch, err := batchFromMetadata(obj.Metadata)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].Name < batches[j].Name })
	return batches, nil
}

func (s *BlobStore) GetBatch(ctx context.Context, tenderID, id string) (*service.Batch, error) {
	md, err := s.bucket.GetMetadata(ctx, batchBlobName(tenderID, id))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch blob %s/%s: %w", tenderID, id, err)
	}
	batch, err := batchFromMetadata(md)
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetBatchByReference scans batch markers; the blob layout has no secondary
// index, this is the degraded path.
func (s *BlobStore) GetBatchByReference(ctx context.Context, reference string) (*service.Batch, error) {
	if reference == "" {
		return nil, nil
	}
	objects, err := s.bucket.List(ctx, "tenders/")
	if err != nil {
		return nil, fmt.Errorf("scan batch blobs: %w", err)
	}
	for _, obj := range objects {
		if obj.Metadata["doc_type"] != docTypeBatch {
			continue
		}
		if obj.Metadata["uipath_reference"] != reference {
			continue
		}
		batch, err := batchFromMetadata(obj.Metadata)
		if err != nil {
			return nil, err
		}
		return &batch, nil
	}
	return nil, nil
}

func (s *BlobStore) UpdateBatchStatus(ctx context.Context, tenderID, id string, status service.BatchStatus, lastError string) (*service.Batch, error) {
	if !service.ValidStatus(status) {
		return nil, service.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	batch, err := s.GetBatch(ctx, tenderID, id)
	if err != nil || batch == nil {
		return nil, err
	}
	batch.Status = status
	batch.LastError = lastError
	if status != service.StatusSubmitting {
		batch.SubmissionLockedUntil = nil
	}

	md, err := batchToMetadata(*batch)
	if err != nil {
		return nil, err
	}
	if err := s.bucket.SetMetadata(ctx, batchBlobName(tenderID, id), md); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("update batch blob %s/%s: %w", tenderID, id, err)
	}
	return batch, nil
}

func (s *BlobStore) UpdateBatch(ctx context.Context, tenderID, id string, patch service.BatchPatch) (*service.Batch, error) {
	batch, err := s.GetBatch(ctx, tenderID, id)
	if err != nil || batch == nil {
		return nil, err
	}

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

	md, err := batchToMetadata(*batch)
	if err != nil {
		return nil, err
	}
	if err := s.bucket.SetMetadata(ctx, batchBlobName(tenderID, id), md); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("update batch blob %s/%s: %w", tenderID, id, err)
	}
	return batch, nil
}

func (s *BlobStore) DeleteBatch(ctx context.Context, tenderID, id string) (bool, error) {
	batch, err := s.GetBatch(ctx, tenderID, id)
	if err != nil {
		return false, err
	}
	if batch == nil {
		return false, nil
	}

	// Un-batch the files pointing here before dropping the marker.
	files, err := s.GetBatchFiles(ctx, tenderID, id)
	if err != nil {
		return false, err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	if len(paths) > 0 {
		if _, err := s.UpdateFilesCategory(ctx, tenderID, paths, service.DefaultCategory, ""); err != nil {
			return false, err
		}
	}

	if err := s.bucket.Delete(ctx, batchBlobName(tenderID, id)); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return false, fmt.Errorf("delete batch blob %s/%s: %w", tenderID, id, err)
	}
	return true, nil
}

// ClaimBatchForSubmission cannot be implemented without optimistic
// preconditions; the fallback store refuses rather than hand out unsafe
// leases.
func (s *BlobStore) ClaimBatchForSubmission(ctx context.Context, tenderID, id, owner string, allowedStatuses []service.BatchStatus, leaseSeconds int) (*service.Batch, error) {
	return nil, fmt.Errorf("claim batch on blob store: %w", service.ErrUnsupported)
}

func (s *BlobStore) GetBatchFiles(ctx context.Context, tenderID, batchID string) ([]service.File, error) {
	files, err := s.ListFiles(ctx, tenderID, false)
	if err != nil {
		return nil, err
	}
	matched := files[:0]
	for _, f := range files {
		if f.BatchID != nil && *f.BatchID == batchID {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

func (s *BlobStore) UpdateFilesCategory(ctx context.Context, tenderID string, paths []string, category, batchID string) (int, error) {
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

func (s *BlobStore) CheckHealth(ctx context.Context) service.Health {
	h := service.Health{OK: true, Backend: "blob"}
	if err := s.bucket.Ping(ctx); err != nil {
		h.OK = false
		h.Error = err.Error()
	}
	return h
}

func (s *BlobStore) countFiles(ctx context.Context, tenderID string) (int, error) {
	objects, err := s.bucket.List(ctx, tenderFilesPrefix(tenderID))
	if err != nil {
		return 0, fmt.Errorf("count file blobs %s: %w", tenderID, err)
	}
	return len(objects), nil
}
