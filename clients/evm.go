package clients

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// EVMClient is an ethclient connection bound to one network. Receipt,
// transaction and head lookups come from the embedded client.
type EVMClient struct {
	*ethclient.Client
	networkID string
}

func NewEVMClient(ctx context.Context, networkID, rpcURL string) (*EVMClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM RPC for %s: %w", networkID, err)
	}

	return &EVMClient{Client: client, networkID: networkID}, nil
}

func (e *EVMClient) NetworkID() string { return e.networkID }

func (e *EVMClient) Height(ctx context.Context) (uint64, error) {
	return e.BlockNumber(ctx)
}
