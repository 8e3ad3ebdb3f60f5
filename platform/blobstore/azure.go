package blobstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AzureBucket implements Bucket over one Azure Blob container.
type AzureBucket struct {
	container *container.Client
}

// OpenAzureBucket builds the container handle from a connection string.
func OpenAzureBucket(connectionString, containerName string) (*AzureBucket, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("blob connection string is required")
	}
	if containerName == "" {
		return nil, fmt.Errorf("blob container name is required")
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("blob client: %w", err)
	}
	return &AzureBucket{container: client.ServiceClient().NewContainerClient(containerName)}, nil
}

var _ Bucket = (*AzureBucket)(nil)

func (b *AzureBucket) Upload(ctx context.Context, name string, metadata map[string]string) error {
	bc := b.container.NewBlockBlobClient(name)
	if _, err := bc.UploadBuffer(ctx, nil, nil); err != nil {
		return fmt.Errorf("upload marker blob: %w", err)
	}
	return b.SetMetadata(ctx, name, metadata)
}

func (b *AzureBucket) GetMetadata(ctx context.Context, name string) (map[string]string, error) {
	props, err := b.container.NewBlobClient(name).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("get metadata %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("get metadata %q: %w", name, err)
	}
	return flattenMetadata(props.Metadata), nil
}

func (b *AzureBucket) SetMetadata(ctx context.Context, name string, metadata map[string]string) error {
	md := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		v := v
		md[k] = &v
	}
	if _, err := b.container.NewBlobClient(name).SetMetadata(ctx, md, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return fmt.Errorf("set metadata %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("set metadata %q: %w", name, err)
	}
	return nil
}

func (b *AzureBucket) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	pager := b.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix:  &prefix,
		Include: container.ListBlobsInclude{Metadata: true},
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list blobs %q: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			objects = append(objects, Object{
				Name:     *item.Name,
				Metadata: flattenMetadata(item.Metadata),
			})
		}
	}
	return objects, nil
}

func (b *AzureBucket) Delete(ctx context.Context, name string) error {
	if _, err := b.container.NewBlobClient(name).Delete(ctx, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return fmt.Errorf("delete %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("delete %q: %w", name, err)
	}
	return nil
}

func (b *AzureBucket) Ping(ctx context.Context) error {
	if _, err := b.container.GetProperties(ctx, nil); err != nil {
		return fmt.Errorf("container properties: %w", err)
	}
	return nil
}

// flattenMetadata lowercases keys; the service normalizes metadata key casing
// on round trips.
func flattenMetadata(md map[string]*string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		if v == nil {
			continue
		}
		out[strings.ToLower(k)] = *v
	}
	return out
}
