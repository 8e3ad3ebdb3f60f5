package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/quovant/tenderdocs/platform/cosmosdb"
)

// referenceIndex maintains the secondary collection mapping an externally
// issued reference string to its (tender id, batch id). It is mutated only as
// a side effect of batch writes; it is never read-modified-written on its own.
type referenceIndex struct {
	refs cosmosdb.Container
}

// lookup resolves a reference to its index entry, nil when absent. The point
// read assumes the container is partitioned by the reference value; when that
// does not hold (legacy partitioning) the cross-partition scan still finds
// the entry.
func (r referenceIndex) lookup(ctx context.Context, reference string) (*referenceDoc, error) {
	item, err := r.refs.ReadItem(ctx, reference, reference)
	if err == nil {
		doc, decErr := decodeDoc[referenceDoc](item.Body)
		if decErr != nil {
			return nil, decErr
		}
		return &doc, nil
	}
	if !errors.Is(err, cosmosdb.ErrNotFound) {
		return nil, fmt.Errorf("reference point lookup: %w", err)
	}

	bodies, err := r.refs.Query(ctx, "",
		"SELECT * FROM c WHERE c.doc_type = @type AND c.reference = @ref",
		[]cosmosdb.QueryParam{
			{Name: "@type", Value: docTypeReference},
			{Name: "@ref", Value: reference},
		})
	if err != nil {
		return nil, fmt.Errorf("reference scan: %w", err)
	}
	if len(bodies) == 0 {
		return nil, nil
	}
	doc, err := decodeDoc[referenceDoc](bodies[0])
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// sync reconciles the index after a batch write changed its reference from
// oldRef to newRef. The stale entry is removed first so no two entries ever
// point at the same batch.
func (r referenceIndex) sync(ctx context.Context, oldRef, newRef, tenderID, batchID string) error {
	if oldRef == newRef {
		return nil
	}
	if oldRef != "" {
		if err := r.remove(ctx, oldRef); err != nil {
			return err
		}
	}
	if newRef == "" {
		return nil
	}

	body, err := encodeDoc(toReferenceDoc(newRef, tenderID, batchID))
	if err != nil {
		return err
	}
	if _, err := r.refs.UpsertItem(ctx, newRef, body); err != nil {
		return fmt.Errorf("upsert reference entry: %w", err)
	}
	return nil
}

// remove deletes the entry for a reference; absence is a no-op.
func (r referenceIndex) remove(ctx context.Context, reference string) error {
	err := r.refs.DeleteItem(ctx, reference, reference, "")
	if err != nil && !errors.Is(err, cosmosdb.ErrNotFound) {
		return fmt.Errorf("delete reference entry: %w", err)
	}
	return nil
}
