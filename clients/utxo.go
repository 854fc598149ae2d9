package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// UTXOOutput is one transaction output as the explorer reports it.
type UTXOOutput struct {
	Address string
	Value   uint64
}

// UTXOTransaction is the explorer view of a transaction.
type UTXOTransaction struct {
	TxID        string
	Confirmed   bool
	BlockHeight uint64
	BlockHash   string
	From        []string
	Outputs     []UTXOOutput
}

// ExplorerClient reads transactions from an esplora-compatible REST API
// (blockstream.info, mempool.space, litecoinspace.org).
type ExplorerClient struct {
	networkID string
	baseURL   string
	http      *http.Client
}

func NewExplorerClient(networkID, baseURL string, timeout time.Duration) *ExplorerClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ExplorerClient{
		networkID: networkID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *ExplorerClient) NetworkID() string { return c.networkID }

func (c *ExplorerClient) Close() { c.http.CloseIdleConnections() }

func (c *ExplorerClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("explorer read %s: %w", path, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	// esplora answers 400 for ids it cannot parse as well as ids that are unknown
	case resp.StatusCode == http.StatusBadRequest:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("explorer %s returned %d", path, resp.StatusCode)
	}
	return body, nil
}

// Height returns the chain tip height.
func (c *ExplorerClient) Height(ctx context.Context) (uint64, error) {
	body, err := c.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	h, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad tip height %q: %w", body, err)
	}
	return h, nil
}

type esploraTx struct {
	TxID string `json:"txid"`
	Vin  []struct {
		Prevout *struct {
			Address string `json:"scriptpubkey_address"`
		} `json:"prevout"`
	} `json:"vin"`
	Vout []struct {
		Address string `json:"scriptpubkey_address"`
		Value   uint64 `json:"value"`
	} `json:"vout"`
	Status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight uint64 `json:"block_height"`
		BlockHash   string `json:"block_hash"`
	} `json:"status"`
}

// Transaction looks up a transaction by id.
func (c *ExplorerClient) Transaction(ctx context.Context, txID string) (*UTXOTransaction, error) {
	body, err := c.get(ctx, "/tx/"+txID)
	if err != nil {
		return nil, err
	}

	var raw esploraTx
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode explorer tx: %w", err)
	}

	tx := &UTXOTransaction{
		TxID:        raw.TxID,
		Confirmed:   raw.Status.Confirmed,
		BlockHeight: raw.Status.BlockHeight,
		BlockHash:   raw.Status.BlockHash,
	}
	for _, in := range raw.Vin {
		if in.Prevout != nil && in.Prevout.Address != "" {
			tx.From = append(tx.From, in.Prevout.Address)
		}
	}
	for _, out := range raw.Vout {
		tx.Outputs = append(tx.Outputs, UTXOOutput{Address: out.Address, Value: out.Value})
	}
	return tx, nil
}
