package pipeline

import (
	"context"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/client"
)

// clientConnector adapts the HTTP sync client to the SyncConnector
// interface so runs can be exercised against fakes in tests.
type clientConnector struct {
	client *client.SyncClient
}

// NewSyncConnector wraps a sync client as a SyncConnector.
func NewSyncConnector(c *client.SyncClient) SyncConnector {
	return &clientConnector{client: c}
}

func (a *clientConnector) Connect(ctx context.Context, resourceID, parentID string) (SyncSession, error) {
	conn, err := a.client.Connect(ctx, resourceID, parentID)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
