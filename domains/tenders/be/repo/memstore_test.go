package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/quovant/tenderdocs/platform/blobstore"
	"github.com/quovant/tenderdocs/platform/cosmosdb"
)

// memContainer is an in-memory cosmosdb.Container with ETag preconditions, a
// transactional batch, and the parameterized equality queries the store
// issues. Hooks let tests inject conflicts and failures.
type memContainer struct {
	mu    sync.Mutex
	items map[string]map[string]memItem // partition -> id -> item
	next  int

	// patchInBatch mirrors the backend capability gap: when false,
	// ExecuteBatch rejects batches containing patch operations.
	patchInBatch bool

	// Hooks run before the corresponding operation; a non-nil return fails it.
	beforeReplace func(partitionKey, id string) error
	beforePatch   func(partitionKey, id string) error
	beforeRead    func(partitionKey, id string) error
	beforeDelete  func(partitionKey, id string) error
}

type memItem struct {
	body []byte
	etag string
}

func newMemContainer() *memContainer {
	return &memContainer{
		items:        make(map[string]map[string]memItem),
		patchInBatch: true,
	}
}

var _ cosmosdb.Container = (*memContainer)(nil)

func (m *memContainer) nextETag() string {
	m.next++
	return strconv.Itoa(m.next)
}

func docID(body []byte) (string, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return "", err
	}
	if head.ID == "" {
		return "", fmt.Errorf("document has no id")
	}
	return head.ID, nil
}

func (m *memContainer) ReadItem(ctx context.Context, partitionKey, id string) (cosmosdb.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeRead != nil {
		if err := m.beforeRead(partitionKey, id); err != nil {
			return cosmosdb.Item{}, err
		}
	}
	item, ok := m.items[partitionKey][id]
	if !ok {
		return cosmosdb.Item{}, cosmosdb.ErrNotFound
	}
	return cosmosdb.Item{Body: append([]byte(nil), item.body...), ETag: item.etag}, nil
}

func (m *memContainer) CreateItem(ctx context.Context, partitionKey string, body []byte) (cosmosdb.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(partitionKey, body)
}

func (m *memContainer) createLocked(partitionKey string, body []byte) (cosmosdb.Item, error) {
	id, err := docID(body)
	if err != nil {
		return cosmosdb.Item{}, err
	}
	if _, ok := m.items[partitionKey][id]; ok {
		return cosmosdb.Item{}, cosmosdb.ErrConflict
	}
	return m.putLocked(partitionKey, id, body), nil
}

func (m *memContainer) putLocked(partitionKey, id string, body []byte) cosmosdb.Item {
	if m.items[partitionKey] == nil {
		m.items[partitionKey] = make(map[string]memItem)
	}
	item := memItem{body: append([]byte(nil), body...), etag: m.nextETag()}
	m.items[partitionKey][id] = item
	return cosmosdb.Item{Body: append([]byte(nil), item.body...), ETag: item.etag}
}

func (m *memContainer) UpsertItem(ctx context.Context, partitionKey string, body []byte) (cosmosdb.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := docID(body)
	if err != nil {
		return cosmosdb.Item{}, err
	}
	return m.putLocked(partitionKey, id, body), nil
}

func (m *memContainer) ReplaceItem(ctx context.Context, partitionKey, id string, body []byte, etag string) (cosmosdb.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeReplace != nil {
		if err := m.beforeReplace(partitionKey, id); err != nil {
			return cosmosdb.Item{}, err
		}
	}
	current, ok := m.items[partitionKey][id]
	if !ok {
		return cosmosdb.Item{}, cosmosdb.ErrNotFound
	}
	if etag != "" && etag != current.etag {
		return cosmosdb.Item{}, cosmosdb.ErrPreconditionFailed
	}
	return m.putLocked(partitionKey, id, body), nil
}

func (m *memContainer) DeleteItem(ctx context.Context, partitionKey, id, etag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeDelete != nil {
		if err := m.beforeDelete(partitionKey, id); err != nil {
			return err
		}
	}
	current, ok := m.items[partitionKey][id]
	if !ok {
		return cosmosdb.ErrNotFound
	}
	if etag != "" && etag != current.etag {
		return cosmosdb.ErrPreconditionFailed
	}
	delete(m.items[partitionKey], id)
	return nil
}

func (m *memContainer) PatchItem(ctx context.Context, partitionKey, id string, patch cosmosdb.Patch, etag string) (cosmosdb.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patchLocked(partitionKey, id, patch, etag)
}

func (m *memContainer) patchLocked(partitionKey, id string, patch cosmosdb.Patch, etag string) (cosmosdb.Item, error) {
	if m.beforePatch != nil {
		if err := m.beforePatch(partitionKey, id); err != nil {
			return cosmosdb.Item{}, err
		}
	}
	current, ok := m.items[partitionKey][id]
	if !ok {
		return cosmosdb.Item{}, cosmosdb.ErrNotFound
	}
	if etag != "" && etag != current.etag {
		return cosmosdb.Item{}, cosmosdb.ErrPreconditionFailed
	}

	var doc map[string]any
	if err := json.Unmarshal(current.body, &doc); err != nil {
		return cosmosdb.Item{}, err
	}
	for _, op := range patch.Ops() {
		field := strings.TrimPrefix(op.Path, "/")
		switch op.Kind {
		case "increment":
			delta, _ := op.Value.(int64)
			base, _ := doc[field].(float64)
			doc[field] = base + float64(delta)
		case "set":
			doc[field] = op.Value
		}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return cosmosdb.Item{}, err
	}
	return m.putLocked(partitionKey, id, body), nil
}

// Query evaluates the parameterized equality predicates the store issues
// ("SELECT * FROM c WHERE c.a = @x AND c.b = @y ...").
func (m *memContainer) Query(ctx context.Context, partitionKey, query string, params []cosmosdb.QueryParam) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	values := make(map[string]any, len(params))
	for _, p := range params {
		values[p.Name] = p.Value
	}

	type cond struct {
		field string
		value any
	}
	var conds []cond
	if _, where, found := strings.Cut(query, " WHERE "); found {
		for _, clause := range strings.Split(where, " AND ") {
			field, param, ok := strings.Cut(strings.TrimSpace(clause), " = ")
			if !ok {
				return nil, fmt.Errorf("unsupported clause %q", clause)
			}
			value, ok := values[strings.TrimSpace(param)]
			if !ok {
				return nil, fmt.Errorf("unbound parameter %q", param)
			}
			conds = append(conds, cond{field: strings.TrimPrefix(strings.TrimSpace(field), "c."), value: value})
		}
	}

	var partitions []string
	if partitionKey != "" {
		partitions = []string{partitionKey}
	} else {
		for pk := range m.items {
			partitions = append(partitions, pk)
		}
		sort.Strings(partitions)
	}

	var out [][]byte
	for _, pk := range partitions {
		ids := make([]string, 0, len(m.items[pk]))
		for id := range m.items[pk] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			body := m.items[pk][id].body
			var doc map[string]any
			if err := json.Unmarshal(body, &doc); err != nil {
				return nil, err
			}
			matched := true
			for _, c := range conds {
				if fmt.Sprint(doc[c.field]) != fmt.Sprint(c.value) {
					matched = false
					break
				}
			}
			if matched {
				out = append(out, append([]byte(nil), body...))
			}
		}
	}
	return out, nil
}

func (m *memContainer) ExecuteBatch(ctx context.Context, partitionKey string, batch *cosmosdb.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range batch.Ops() {
		if op.Kind == "patch" && !m.patchInBatch {
			return fmt.Errorf("%w: batch op rejected", cosmosdb.ErrPatchInBatchUnsupported)
		}
	}

	// Validate before applying so the batch stays all-or-nothing.
	for _, op := range batch.Ops() {
		switch op.Kind {
		case "create":
			id, err := docID(op.Body)
			if err != nil {
				return err
			}
			if _, ok := m.items[partitionKey][id]; ok {
				return cosmosdb.ErrConflict
			}
		case "delete", "patch":
			if _, ok := m.items[partitionKey][op.ID]; !ok {
				return cosmosdb.ErrNotFound
			}
		}
	}

	for _, op := range batch.Ops() {
		switch op.Kind {
		case "create":
			if _, err := m.createLocked(partitionKey, op.Body); err != nil {
				return err
			}
		case "upsert":
			id, err := docID(op.Body)
			if err != nil {
				return err
			}
			m.putLocked(partitionKey, id, op.Body)
		case "delete":
			delete(m.items[partitionKey], op.ID)
		case "patch":
			if _, err := m.patchLocked(partitionKey, op.ID, op.Patch, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// memBucket is an in-memory blobstore.Bucket.
type memBucket struct {
	mu    sync.Mutex
	blobs map[string]map[string]string

	beforeUpload func(name string) error
	pingErr      error
}

func newMemBucket() *memBucket {
	return &memBucket{blobs: make(map[string]map[string]string)}
}

var _ blobstore.Bucket = (*memBucket)(nil)

func (m *memBucket) Upload(ctx context.Context, name string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeUpload != nil {
		if err := m.beforeUpload(name); err != nil {
			return err
		}
	}
	m.blobs[name] = cloneMetadata(metadata)
	return nil
}

func (m *memBucket) GetMetadata(ctx context.Context, name string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.blobs[name]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return cloneMetadata(md), nil
}

func (m *memBucket) SetMetadata(ctx context.Context, name string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[name]; !ok {
		return blobstore.ErrNotFound
	}
	m.blobs[name] = cloneMetadata(metadata)
	return nil
}

func (m *memBucket) List(ctx context.Context, prefix string) ([]blobstore.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	objects := make([]blobstore.Object, 0, len(names))
	for _, name := range names {
		objects = append(objects, blobstore.Object{Name: name, Metadata: cloneMetadata(m.blobs[name])})
	}
	return objects, nil
}

func (m *memBucket) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[name]; !ok {
		return blobstore.ErrNotFound
	}
	delete(m.blobs, name)
	return nil
}

func (m *memBucket) Ping(ctx context.Context) error {
	return m.pingErr
}

func cloneMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
