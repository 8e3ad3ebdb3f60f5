package cosmosdb

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

type azureClient struct {
	inner *azcosmos.Client
}

func newAzureClient(cfg ClientConfig) (*azureClient, error) {
	cred, err := azcosmos.NewKeyCredential(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("cosmos key credential: %w", err)
	}
	inner, err := azcosmos.NewClientWithKey(cfg.Endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("cosmos client: %w", err)
	}
	return &azureClient{inner: inner}, nil
}

func (a *azureClient) container(database, name string) (Container, error) {
	cc, err := a.inner.NewContainer(database, name)
	if err != nil {
		return nil, err
	}
	return NewAzureContainer(cc), nil
}

func (a *azureClient) pingDatabase(ctx context.Context, database string) error {
	db, err := a.inner.NewDatabase(database)
	if err != nil {
		return fmt.Errorf("open database handle: %w", err)
	}
	if _, err := db.Read(ctx, nil); err != nil {
		return classify("read database", err)
	}
	return nil
}
