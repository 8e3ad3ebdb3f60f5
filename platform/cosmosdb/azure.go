package cosmosdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// AzureContainer implements Container over an azcosmos container client.
type AzureContainer struct {
	inner *azcosmos.ContainerClient
}

// NewAzureContainer wraps an azcosmos container client.
func NewAzureContainer(inner *azcosmos.ContainerClient) *AzureContainer {
	if inner == nil {
		panic("cosmos container client is required")
	}
	return &AzureContainer{inner: inner}
}

var _ Container = (*AzureContainer)(nil)

func (c *AzureContainer) ReadItem(ctx context.Context, partitionKey, id string) (Item, error) {
	resp, err := c.inner.ReadItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), id, nil)
	if err != nil {
		return Item{}, classify("read item", err)
	}
	return Item{Body: resp.Value, ETag: string(resp.ETag)}, nil
}

func (c *AzureContainer) CreateItem(ctx context.Context, partitionKey string, body []byte) (Item, error) {
	resp, err := c.inner.CreateItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), body, nil)
	if err != nil {
		return Item{}, classify("create item", err)
	}
	return Item{Body: resp.Value, ETag: string(resp.ETag)}, nil
}

func (c *AzureContainer) UpsertItem(ctx context.Context, partitionKey string, body []byte) (Item, error) {
	resp, err := c.inner.UpsertItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), body, nil)
	if err != nil {
		return Item{}, classify("upsert item", err)
	}
	return Item{Body: resp.Value, ETag: string(resp.ETag)}, nil
}

func (c *AzureContainer) ReplaceItem(ctx context.Context, partitionKey, id string, body []byte, etag string) (Item, error) {
	opts := &azcosmos.ItemOptions{}
	if etag != "" {
		tag := azcore.ETag(etag)
		opts.IfMatchEtag = &tag
	}
	resp, err := c.inner.ReplaceItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), id, body, opts)
	if err != nil {
		return Item{}, classify("replace item", err)
	}
	return Item{Body: resp.Value, ETag: string(resp.ETag)}, nil
}

func (c *AzureContainer) DeleteItem(ctx context.Context, partitionKey, id, etag string) error {
	opts := &azcosmos.ItemOptions{}
	if etag != "" {
		tag := azcore.ETag(etag)
		opts.IfMatchEtag = &tag
	}
	if _, err := c.inner.DeleteItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), id, opts); err != nil {
		return classify("delete item", err)
	}
	return nil
}

func (c *AzureContainer) PatchItem(ctx context.Context, partitionKey, id string, patch Patch, etag string) (Item, error) {
	opts := &azcosmos.ItemOptions{}
	if etag != "" {
		tag := azcore.ETag(etag)
		opts.IfMatchEtag = &tag
	}
	resp, err := c.inner.PatchItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), id, toAzurePatch(patch), opts)
	if err != nil {
		return Item{}, classify("patch item", err)
	}
	return Item{Body: resp.Value, ETag: string(resp.ETag)}, nil
}

func (c *AzureContainer) Query(ctx context.Context, partitionKey, query string, params []QueryParam) ([][]byte, error) {
	pk := azcosmos.PartitionKey{}
	if partitionKey != "" {
		pk = azcosmos.NewPartitionKeyString(partitionKey)
	}

	opts := &azcosmos.QueryOptions{}
	for _, p := range params {
		opts.QueryParameters = append(opts.QueryParameters, azcosmos.QueryParameter{Name: p.Name, Value: p.Value})
	}

	var items [][]byte
	pager := c.inner.NewQueryItemsPager(query, pk, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("query items", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (c *AzureContainer) ExecuteBatch(ctx context.Context, partitionKey string, batch *Batch) error {
	azBatch := c.inner.NewTransactionalBatch(azcosmos.NewPartitionKeyString(partitionKey))
	for _, op := range batch.Ops() {
		switch op.Kind {
		case "create":
			azBatch.CreateItem(op.Body, nil)
		case "upsert":
			azBatch.UpsertItem(op.Body, nil)
		case "delete":
			azBatch.DeleteItem(op.ID, nil)
		case "patch":
			azBatch.PatchItem(op.ID, toAzurePatch(op.Patch), nil)
		default:
			return fmt.Errorf("unknown batch operation %q", op.Kind)
		}
	}

	resp, err := c.inner.ExecuteTransactionalBatch(ctx, azBatch, nil)
	if err != nil {
		if isPatchInBatchRejection(err) {
			return fmt.Errorf("%w: %v", ErrPatchInBatchUnsupported, err)
		}
		return classify("execute batch", err)
	}
	if !resp.Success {
		for _, result := range resp.OperationResults {
			if result.StatusCode >= http.StatusOK && result.StatusCode < http.StatusMultipleChoices {
				continue
			}
			return statusToError("execute batch", int(result.StatusCode))
		}
		return fmt.Errorf("execute batch: transactional batch not committed")
	}
	return nil
}

func toAzurePatch(patch Patch) azcosmos.PatchOperations {
	ops := azcosmos.PatchOperations{}
	for _, op := range patch.Ops() {
		switch op.Kind {
		case "increment":
			delta, _ := op.Value.(int64)
			ops.AppendIncrement(op.Path, delta)
		default:
			ops.AppendSet(op.Path, op.Value)
		}
	}
	return ops
}

func classify(op string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if mapped := statusToError(op, respErr.StatusCode); mapped != nil {
			return mapped
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func statusToError(op string, status int) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%s: %w", op, ErrPreconditionFailed)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return fmt.Errorf("%s: status %d", op, status)
	}
}

// isPatchInBatchRejection matches the store's rejection of patch operations
// inside a transactional batch. Matching error text is fragile, so the result
// is only used to demote the capability once at the store level, never as a
// per-call decision.
func isPatchInBatchRejection(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	if respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(respErr.Error())
	return strings.Contains(msg, "patch") && (strings.Contains(msg, "not supported") || strings.Contains(msg, "unsupported") || strings.Contains(msg, "invalid"))
}
