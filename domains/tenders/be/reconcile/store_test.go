package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
)

// fakeStore is an in-memory service.Store for exercising the reconciliation
// jobs. It maintains the file counter on mutation paths like the real stores
// do; tests introduce drift explicitly through UpsertTenderRecord, which
// trusts the supplied count.
type fakeStore struct {
	tenders map[string]service.Tender
	files   map[string]map[string]service.File  // tender id -> path -> file
	batches map[string]map[string]service.Batch // tender id -> batch id -> batch
}

var _ service.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenders: make(map[string]service.Tender),
		files:   make(map[string]map[string]service.File),
		batches: make(map[string]map[string]service.Batch),
	}
}

func (s *fakeStore) ListTenders(ctx context.Context) ([]service.Tender, error) {
	out := make([]service.Tender, 0, len(s.tenders))
	for _, t := range s.tenders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) GetTender(ctx context.Context, id string) (*service.Tender, error) {
	t, ok := s.tenders[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *fakeStore) CreateTender(ctx context.Context, input service.CreateTenderInput) (service.Tender, error) {
	id := service.DeriveTenderID(input.Name)
	if id == "" {
		return service.Tender{}, service.NewValidationError("name", "required")
	}
	if _, ok := s.tenders[id]; ok {
		return service.Tender{}, fmt.Errorf("tender %s: %w", id, service.ErrAlreadyExists)
	}
	t := service.Tender{ID: id, Name: input.Name, CreatedBy: input.CreatedBy}
	s.tenders[id] = t
	return t, nil
}

func (s *fakeStore) UpsertTenderRecord(ctx context.Context, tender service.Tender) (service.Tender, error) {
	if tender.ID == "" {
		return service.Tender{}, service.NewValidationError("id", "required")
	}
	s.tenders[tender.ID] = tender
	return tender, nil
}

func (s *fakeStore) DeleteTender(ctx context.Context, id string) (bool, error) {
	_, ok := s.tenders[id]
	delete(s.tenders, id)
	delete(s.files, id)
	delete(s.batches, id)
	return ok, nil
}

func (s *fakeStore) ListFiles(ctx context.Context, tenderID string, excludeBatched bool) ([]service.File, error) {
	out := make([]service.File, 0, len(s.files[tenderID]))
	for _, f := range s.files[tenderID] {
		if excludeBatched && f.BatchID != nil {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *fakeStore) GetFile(ctx context.Context, tenderID, path string) (*service.File, error) {
	f, ok := s.files[tenderID][path]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *fakeStore) UpsertFileRecord(ctx context.Context, tenderID string, file service.File) (service.File, error) {
	if file.Category == "" {
		file.Category = service.DefaultCategory
	}
	if file.Source == "" {
		file.Source = service.SourceLocal
	}
	if s.files[tenderID] == nil {
		s.files[tenderID] = make(map[string]service.File)
	}
	_, existed := s.files[tenderID][file.Path]
	s.files[tenderID][file.Path] = file
	if !existed {
		s.bumpCount(tenderID, 1)
	}
	return file, nil
}

func (s *fakeStore) UpdateFileMetadata(ctx context.Context, tenderID, path string, patch service.FilePatch) (*service.File, error) {
	f, ok := s.files[tenderID][path]
	if !ok {
		return nil, nil
	}
	if patch.Name != nil {
		f.Name = *patch.Name
	}
	if patch.Size != nil {
		f.Size = *patch.Size
	}
	if patch.Category != nil {
		f.Category = *patch.Category
	}
	if patch.Source != nil {
		f.Source = *patch.Source
	}
	switch {
	case patch.ClearBatchID:
		f.BatchID = nil
	case patch.BatchID != nil:
		f.BatchID = patch.BatchID
	}
	s.files[tenderID][path] = f
	return &f, nil
}

func (s *fakeStore) DeleteFileMetadata(ctx context.Context, tenderID, path string) (bool, error) {
	if _, ok := s.files[tenderID][path]; !ok {
		return false, nil
	}
	delete(s.files[tenderID], path)
	s.bumpCount(tenderID, -1)
	return true, nil
}

func (s *fakeStore) CreateBatch(ctx context.Context, tenderID string, input service.CreateBatchInput) (service.Batch, error) {
	batch := service.Batch{
		ID:     uuid.NewString(),
		Name:   input.Name,
		Status: service.StatusPending,
	}
	return s.UpsertBatchRecord(ctx, tenderID, batch)
}

func (s *fakeStore) UpsertBatchRecord(ctx context.Context, tenderID string, batch service.Batch) (service.Batch, error) {
	if batch.ID == "" {
		return service.Batch{}, service.NewValidationError("id", "required")
	}
	if s.batches[tenderID] == nil {
		s.batches[tenderID] = make(map[string]service.Batch)
	}
	s.batches[tenderID][batch.ID] = batch
	return batch, nil
}

func (s *fakeStore) ListBatches(ctx context.Context, tenderID string) ([]service.Batch, error) {
	out := make([]service.Batch, 0, len(s.batches[tenderID]))
	for _, b := range s.batches[tenderID] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) GetBatch(ctx context.Context, tenderID, id string) (*service.Batch, error) {
	b, ok := s.batches[tenderID][id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *fakeStore) GetBatchByReference(ctx context.Context, reference string) (*service.Batch, error) {
	for _, batches := range s.batches {
		for _, b := range batches {
			if b.UiPathReference == reference {
				return &b, nil
			}
		}
	}
	return nil, nil
}

func (s *fakeStore) UpdateBatchStatus(ctx context.Context, tenderID, id string, status service.BatchStatus, lastError string) (*service.Batch, error) {
	b, ok := s.batches[tenderID][id]
	if !ok {
		return nil, nil
	}
	b.Status = status
	b.LastError = lastError
	s.batches[tenderID][id] = b
	return &b, nil
}

func (s *fakeStore) UpdateBatch(ctx context.Context, tenderID, id string, patch service.BatchPatch) (*service.Batch, error) {
	b, ok := s.batches[tenderID][id]
	if !ok {
		return nil, nil
	}
	if patch.Name != nil {
		b.Name = *patch.Name
	}
	if patch.UiPathReference != nil {
		b.UiPathReference = *patch.UiPathReference
	}
	s.batches[tenderID][id] = b
	return &b, nil
}

func (s *fakeStore) DeleteBatch(ctx context.Context, tenderID, id string) (bool, error) {
	if _, ok := s.batches[tenderID][id]; !ok {
		return false, nil
	}
	delete(s.batches[tenderID], id)
	return true, nil
}

func (s *fakeStore) ClaimBatchForSubmission(ctx context.Context, tenderID, id, owner string, allowedStatuses []service.BatchStatus, leaseSeconds int) (*service.Batch, error) {
	return nil, service.ErrUnsupported
}

func (s *fakeStore) GetBatchFiles(ctx context.Context, tenderID, batchID string) ([]service.File, error) {
	files, _ := s.ListFiles(ctx, tenderID, false)
	out := files[:0]
	for _, f := range files {
		if f.BatchID != nil && *f.BatchID == batchID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateFilesCategory(ctx context.Context, tenderID string, paths []string, category, batchID string) (int, error) {
	patch := service.FilePatch{Category: &category}
	if batchID == "" {
		patch.ClearBatchID = true
	} else {
		patch.BatchID = &batchID
	}
	updated := 0
	for _, path := range paths {
		f, err := s.UpdateFileMetadata(ctx, tenderID, path, patch)
		if err != nil {
			return updated, err
		}
		if f != nil {
			updated++
		}
	}
	return updated, nil
}

func (s *fakeStore) CheckHealth(ctx context.Context) service.Health {
	return service.Health{OK: true, Backend: "fake"}
}

func (s *fakeStore) bumpCount(tenderID string, delta int) {
	t, ok := s.tenders[tenderID]
	if !ok {
		return
	}
	t.FileCount += delta
	if t.FileCount < 0 {
		t.FileCount = 0
	}
	s.tenders[tenderID] = t
}
