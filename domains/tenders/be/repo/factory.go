package repo

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
	"github.com/quovant/tenderdocs/platform/blobstore"
	"github.com/quovant/tenderdocs/platform/config"
	"github.com/quovant/tenderdocs/platform/cosmosdb"
)

// Stores bundles the opened backends. Active is the store matching the
// configured mode; Cosmos and Blob stay individually reachable for the
// reconciliation tools, which need both sides.
type Stores struct {
	Active service.Store
	Cosmos service.Store
	Blob   service.Store

	cosmosClient *cosmosdb.Client
}

// Open builds the backend combination selected by cfg.StoreMode.
func Open(cfg config.Config, logger *zap.Logger) (*Stores, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stores := &Stores{}
	mode := strings.ToLower(cfg.StoreMode)

	if mode == config.ModeCosmos || mode == config.ModeDual {
		client, err := cosmosdb.Open(cosmosdb.ClientConfig{
			Endpoint:           cfg.CosmosEndpoint,
			Key:                cfg.CosmosKey,
			Database:           cfg.CosmosDatabase,
			Container:          cfg.CosmosContainer,
			ReferenceContainer: cfg.CosmosRefContainer,
		})
		if err != nil {
			return nil, fmt.Errorf("open cosmos backend: %w", err)
		}
		stores.cosmosClient = client
		stores.Cosmos = NewCosmosStoreFromClient(client, logger, CosmosOptions{
			DisablePatchInBatch: strings.EqualFold(cfg.CosmosPatchInBatch, "off"),
		})
	}

	if mode == config.ModeBlob || mode == config.ModeDual {
		bucket, err := blobstore.OpenAzureBucket(cfg.BlobConnectionString, cfg.BlobContainer)
		if err != nil {
			return nil, fmt.Errorf("open blob backend: %w", err)
		}
		stores.Blob = NewBlobStore(bucket, logger)
	}

	switch mode {
	case config.ModeCosmos:
		stores.Active = stores.Cosmos
	case config.ModeBlob:
		stores.Active = stores.Blob
	case config.ModeDual:
		stores.Active = NewDualStore(stores.Cosmos, stores.Blob, cfg.ReadFallback, logger)
	}
	return stores, nil
}

// Close releases the underlying handles.
func (s *Stores) Close() error {
	if s.cosmosClient != nil {
		return s.cosmosClient.Close()
	}
	return nil
}
