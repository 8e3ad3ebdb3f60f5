// Package blobstore wraps the Azure Blob container used by the fallback
// metadata store behind a neutral Bucket interface: marker blobs carrying
// key-value metadata, listed by name prefix.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound reports a missing blob on metadata reads, writes and deletes.
var ErrNotFound = errors.New("blobstore: blob not found")

// Object is a listed blob name plus its metadata.
type Object struct {
	Name     string
	Metadata map[string]string
}

// Bucket is the driver contract for one blob container. Metadata keys are
// case-insensitive on the service; implementations return them lowercased.
type Bucket interface {
	// Upload creates or replaces a marker blob with the given metadata and an
	// empty body.
	Upload(ctx context.Context, name string, metadata map[string]string) error
	// GetMetadata returns the metadata of one blob.
	GetMetadata(ctx context.Context, name string) (map[string]string, error)
	// SetMetadata replaces the metadata of an existing blob.
	SetMetadata(ctx context.Context, name string, metadata map[string]string) error
	// List returns every blob under the prefix, metadata included.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Delete removes a blob; missing blobs are reported as ErrNotFound.
	Delete(ctx context.Context, name string) error
	// Ping performs a cheap connectivity probe against the container.
	Ping(ctx context.Context) error
}
