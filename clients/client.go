// Package clients holds the read-only chain connections the verifier pulls
// chain truth from.
package clients

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a node or explorer does not know a transaction.
var ErrNotFound = errors.New("transaction not found")

type Client interface {
	NetworkID() string
	Height(ctx context.Context) (uint64, error)
	Close()
}

var (
	_ Client = (*EVMClient)(nil)
	_ Client = (*ExplorerClient)(nil)
	_ Client = (*SolanaClient)(nil)
)
