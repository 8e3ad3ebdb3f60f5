// Package cosmosdb wraps one partitioned Cosmos DB container behind a neutral
// Container interface: point reads, upserts, ETag-guarded replace/delete,
// field patches, single- and cross-partition queries, and the transactional
// batch. Store logic above this package never touches the Azure SDK directly.
package cosmosdb

import (
	"context"
	"errors"
)

// Errors classified from the underlying store responses.
var (
	// ErrNotFound reports a missing item on point reads, deletes and patches.
	ErrNotFound = errors.New("cosmosdb: item not found")
	// ErrPreconditionFailed reports an ETag mismatch on a guarded write.
	ErrPreconditionFailed = errors.New("cosmosdb: precondition failed")
	// ErrConflict reports a create colliding with an existing item id.
	ErrConflict = errors.New("cosmosdb: item already exists")
	// ErrPatchInBatchUnsupported reports that the store rejected a patch
	// operation inside a transactional batch (emulator capability gap).
	ErrPatchInBatchUnsupported = errors.New("cosmosdb: patch inside transactional batch unsupported")
)

// Item is a stored document body plus its version tag.
type Item struct {
	Body []byte
	ETag string
}

// QueryParam binds a named parameter in a SQL query.
type QueryParam struct {
	Name  string
	Value any
}

// Patch accumulates field-level patch operations.
type Patch struct {
	ops []PatchOp
}

// PatchOp is a single patch step; Kind is "set" or "increment".
type PatchOp struct {
	Kind  string
	Path  string
	Value any
}

// AppendSet adds a set-field operation.
func (p *Patch) AppendSet(path string, value any) {
	p.ops = append(p.ops, PatchOp{Kind: "set", Path: path, Value: value})
}

// AppendIncrement adds a numeric delta operation.
func (p *Patch) AppendIncrement(path string, delta int64) {
	p.ops = append(p.ops, PatchOp{Kind: "increment", Path: path, Value: delta})
}

// Ops exposes the accumulated operations, in order.
func (p *Patch) Ops() []PatchOp { return p.ops }

// Batch accumulates operations for one transactional batch. All operations
// are scoped to the partition key the batch is executed with.
type Batch struct {
	ops []BatchOp
}

// BatchOp is one step of a transactional batch; Kind is "create", "upsert",
// "delete" or "patch".
type BatchOp struct {
	Kind  string
	ID    string
	Body  []byte
	Patch Patch
}

// CreateItem queues an item creation.
func (b *Batch) CreateItem(body []byte) {
	b.ops = append(b.ops, BatchOp{Kind: "create", Body: body})
}

// UpsertItem queues an item upsert.
func (b *Batch) UpsertItem(body []byte) {
	b.ops = append(b.ops, BatchOp{Kind: "upsert", Body: body})
}

// DeleteItem queues an item deletion.
func (b *Batch) DeleteItem(id string) {
	b.ops = append(b.ops, BatchOp{Kind: "delete", ID: id})
}

// PatchItem queues a field patch of an existing item.
func (b *Batch) PatchItem(id string, patch Patch) {
	b.ops = append(b.ops, BatchOp{Kind: "patch", ID: id, Patch: patch})
}

// Ops exposes the queued operations, in order.
func (b *Batch) Ops() []BatchOp { return b.ops }

// Container is the driver contract for one partitioned collection.
// An empty etag argument means an unconditional write; an empty partitionKey
// on Query means a cross-partition query.
type Container interface {
	ReadItem(ctx context.Context, partitionKey, id string) (Item, error)
	CreateItem(ctx context.Context, partitionKey string, body []byte) (Item, error)
	UpsertItem(ctx context.Context, partitionKey string, body []byte) (Item, error)
	ReplaceItem(ctx context.Context, partitionKey, id string, body []byte, etag string) (Item, error)
	DeleteItem(ctx context.Context, partitionKey, id, etag string) error
	PatchItem(ctx context.Context, partitionKey, id string, patch Patch, etag string) (Item, error)
	Query(ctx context.Context, partitionKey, query string, params []QueryParam) ([][]byte, error)
	ExecuteBatch(ctx context.Context, partitionKey string, batch *Batch) error
}
