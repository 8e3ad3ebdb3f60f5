// Package repo implements the metadata store contract: the counter-consistent
// Cosmos store, the blob-metadata fallback store, and the dual-write facade
// composing the two.
package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
	"github.com/quovant/tenderdocs/platform/cosmosdb"
	"github.com/quovant/tenderdocs/platform/optimistic"
)

// CosmosOptions tunes the counter-consistent store.
type CosmosOptions struct {
	// DisablePatchInBatch pins the counter algorithm to the optimistic CAS
	// strategy. Leave false to prefer the transactional batch; the store
	// demotes itself once if the backend rejects patch-in-batch.
	DisablePatchInBatch bool
	// Retry overrides the optimistic retry policy; zero value uses defaults.
	Retry optimistic.Policy
	// Ping is the connectivity probe used by CheckHealth.
	Ping func(ctx context.Context) error
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// CosmosStore implements service.Store over the partitioned document
// container plus the reference index container.
type CosmosStore struct {
	docs     cosmosdb.Container
	refIndex referenceIndex
	logger   *zap.Logger
	retry    optimistic.Policy
	ping     func(ctx context.Context) error
	now      func() time.Time

	patchInBatch atomic.Bool
}

var _ service.Store = (*CosmosStore)(nil)

// NewCosmosStore builds the store over the two containers.
func NewCosmosStore(docs, refs cosmosdb.Container, logger *zap.Logger, opts CosmosOptions) *CosmosStore {
	if docs == nil || refs == nil {
		panic("cosmos store requires document and reference containers")
	}
	if logger == nil {
		panic("cosmos store requires a logger")
	}

	retry := opts.Retry
	if retry.Attempts <= 0 {
		retry = optimistic.DefaultPolicy()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	s := &CosmosStore{
		docs:     docs,
		refIndex: referenceIndex{refs: refs},
		logger:   logger,
		retry:    retry,
		ping:     opts.Ping,
		now:      now,
	}
	s.patchInBatch.Store(!opts.DisablePatchInBatch)
	return s
}

// NewCosmosStoreFromClient wires the store to an opened Cosmos handle.
func NewCosmosStoreFromClient(client *cosmosdb.Client, logger *zap.Logger, opts CosmosOptions) *CosmosStore {
	if client == nil {
		panic("cosmos store requires a client")
	}
	if opts.Ping == nil {
		opts.Ping = client.Ping
	}
	return NewCosmosStore(client.Documents(), client.References(), logger, opts)
}

// demotePatchInBatch switches the counter algorithm to the CAS strategy for
// the lifetime of this store. Logged once.
func (s *CosmosStore) demotePatchInBatch() {
	if s.patchInBatch.CompareAndSwap(true, false) {
		s.logger.Warn("store rejected counter patch inside transactional batch; switching to optimistic counter updates")
	}
}

func (s *CosmosStore) ListTenders(ctx context.Context) ([]service.Tender, error) {
	bodies, err := s.docs.Query(ctx, "",
		"SELECT * FROM c WHERE c.doc_type = @type",
		[]cosmosdb.QueryParam{{Name: "@type", Value: docTypeTender}})
	if err != nil {
		return nil, fmt.Errorf("list tenders: %w", err)
	}

	tenders := make([]service.Tender, 0, len(bodies))
	for _, body := range bodies {
		doc, err := decodeDoc[tenderDoc](body)
		if err != nil {
			return nil, err
		}
		tenders = append(tenders, doc.toModel())
	}
	sort.Slice(tenders, func(i, j int) bool { return tenders[i].ID < tenders[j].ID })
	return tenders, nil
}

func (s *CosmosStore) GetTender(ctx context.Context, id string) (*service.Tender, error) {
	item, err := s.docs.ReadItem(ctx, id, id)
	if errors.Is(err, cosmosdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tender %s: %w", id, err)
	}
	doc, err := decodeDoc[tenderDoc](item.Body)
	if err != nil {
		return nil, err
	}
	tender := doc.toModel()
	return &tender, nil
}

func (s *CosmosStore) CreateTender(ctx context.Context, input service.CreateTenderInput) (service.Tender, error) {
	if input.Name == "" {
		return service.Tender{}, service.NewValidationError("name", "required")
	}
	id := service.DeriveTenderID(input.Name)
	if id == "" {
		return service.Tender{}, service.NewValidationError("name", "must contain at least one alphanumeric character")
	}
	if input.FileCount < 0 {
		return service.Tender{}, service.NewValidationError("file_count", "must be non-negative")
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
		FileCount:    input.FileCount,
	}

	body, err := encodeDoc(toTenderDoc(tender))
	if err != nil {
		return service.Tender{}, err
	}
	if _, err := s.docs.CreateItem(ctx, id, body); err != nil {
		if errors.Is(err, cosmosdb.ErrConflict) {
			return service.Tender{}, fmt.Errorf("tender %s: %w", id, service.ErrAlreadyExists)
		}
		return service.Tender{}, fmt.Errorf("create tender %s: %w", id, err)
	}
	return tender, nil
}

func (s *CosmosStore) UpsertTenderRecord(ctx context.Context, tender service.Tender) (service.Tender, error) {
	if tender.ID == "" {
		return service.Tender{}, service.NewValidationError("id", "required")
	}
	if tender.FileCount < 0 {
		return service.Tender{}, service.NewValidationError("file_count", "must be non-negative")
	}

	tender.UpdatedAt = s.now()
	if tender.CreatedAt.IsZero() {
		tender.CreatedAt = tender.UpdatedAt
	}

	body, err := encodeDoc(toTenderDoc(tender))
	if err != nil {
		return service.Tender{}, err
	}
	if _, err := s.docs.UpsertItem(ctx, tender.ID, body); err != nil {
		return service.Tender{}, fmt.Errorf("upsert tender %s: %w", tender.ID, err)
	}
	return tender, nil
}

func (s *CosmosStore) DeleteTender(ctx context.Context, id string) (bool, error) {
	bodies, err := s.docs.Query(ctx, id,
		"SELECT * FROM c WHERE c.tender_id = @tid",
		[]cosmosdb.QueryParam{{Name: "@tid", Value: id}})
	if err != nil {
		return false, fmt.Errorf("list tender records %s: %w", id, err)
	}

	existed := false
	for _, body := range bodies {
		head, err := decodeDoc[struct {
			ID      string `json:"id"`
			DocType string `json:"doc_type"`
		}](body)
		if err != nil {
			return existed, err
		}
		if head.DocType == docTypeTender {
			existed = true
		}
		if head.DocType == docTypeBatch {
			batch, err := decodeDoc[batchDoc](body)
			if err != nil {
				return existed, err
			}
			if batch.UiPathReference != "" {
				if err := s.refIndex.remove(ctx, batch.UiPathReference); err != nil {
					return existed, err
				}
			}
		}
		if err := s.docs.DeleteItem(ctx, id, head.ID, ""); err != nil && !errors.Is(err, cosmosdb.ErrNotFound) {
			return existed, fmt.Errorf("delete tender record %s/%s: %w", id, head.ID, err)
		}
	}
	return existed, nil
}

func (s *CosmosStore) CheckHealth(ctx context.Context) service.Health {
	h := service.Health{OK: true, Backend: "cosmos"}
	if s.ping == nil {
		return h
	}
	if err := s.ping(ctx); err != nil {
		h.OK = false
		h.Error = err.Error()
	}
	return h
}
