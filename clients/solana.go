package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SolanaTransaction is the part of a confirmed transaction the verifier reads.
type SolanaTransaction struct {
	Signature    string
	Slot         uint64
	Failed       bool
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
}

// SolanaClient provides read-only Solana RPC access
type SolanaClient struct {
	networkID  string
	client     *rpc.Client
	commitment rpc.CommitmentType
}

func NewSolanaClient(networkID, rpcURL string) *SolanaClient {
	return &SolanaClient{
		networkID:  networkID,
		client:     rpc.New(rpcURL),
		commitment: rpc.CommitmentConfirmed,
	}
}

func (s *SolanaClient) NetworkID() string { return s.networkID }

func (s *SolanaClient) Height(ctx context.Context) (uint64, error) {
	return s.Slot(ctx)
}

func (s *SolanaClient) Slot(ctx context.Context) (uint64, error) {
	return s.client.GetSlot(ctx, s.commitment)
}

// Transaction fetches a transaction by signature with its balance metadata.
func (s *SolanaClient) Transaction(ctx context.Context, signature string) (*SolanaTransaction, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("bad signature: %w", err)
	}

	maxVersion := uint64(0)
	res, err := s.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     s.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return nil, ErrNotFound
	}

	parsed, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}

	keys := make([]string, 0, len(parsed.Message.AccountKeys))
	for _, k := range parsed.Message.AccountKeys {
		keys = append(keys, k.String())
	}

	return &SolanaTransaction{
		Signature:    signature,
		Slot:         res.Slot,
		Failed:       res.Meta.Err != nil,
		AccountKeys:  keys,
		PreBalances:  res.Meta.PreBalances,
		PostBalances: res.Meta.PostBalances,
	}, nil
}

func (s *SolanaClient) Close() {
	_ = s.client.Close()
}
