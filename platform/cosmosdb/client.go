package cosmosdb

import (
	"context"
	"fmt"
)

// ClientConfig captures the knobs required to open the Cosmos handle.
type ClientConfig struct {
	Endpoint           string
	Key                string
	Database           string
	Container          string
	ReferenceContainer string
}

// Client is the explicit handle to the two collections the metadata layer
// uses: the document container (partitioned by tender id) and the reference
// index container (partitioned by reference value).
type Client struct {
	cosmos     cosmosClient
	documents  Container
	references Container
	database   string
}

// cosmosClient is the subset of the SDK client the handle needs; factored out
// so Open can be exercised without a live account.
type cosmosClient interface {
	pingDatabase(ctx context.Context, database string) error
}

// Open validates the configuration and builds the container handles.
func Open(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Key == "" {
		return nil, fmt.Errorf("cosmos endpoint and key are required")
	}
	if cfg.Database == "" || cfg.Container == "" || cfg.ReferenceContainer == "" {
		return nil, fmt.Errorf("cosmos database and container names are required")
	}

	azc, err := newAzureClient(cfg)
	if err != nil {
		return nil, err
	}

	documents, err := azc.container(cfg.Database, cfg.Container)
	if err != nil {
		return nil, fmt.Errorf("open documents container: %w", err)
	}
	references, err := azc.container(cfg.Database, cfg.ReferenceContainer)
	if err != nil {
		return nil, fmt.Errorf("open references container: %w", err)
	}

	return &Client{
		cosmos:     azc,
		documents:  documents,
		references: references,
		database:   cfg.Database,
	}, nil
}

// Documents returns the partitioned document container.
func (c *Client) Documents() Container { return c.documents }

// References returns the reference index container.
func (c *Client) References() Container { return c.references }

// Ping performs a cheap connectivity probe (database metadata read, no scan).
func (c *Client) Ping(ctx context.Context) error {
	return c.cosmos.pingDatabase(ctx, c.database)
}

// Close releases the handle. The SDK client holds no pooled resources of its
// own, but callers treat the handle lifecycle as open/close symmetric.
func (c *Client) Close() error {
	c.documents = nil
	c.references = nil
	return nil
}
