// Package chains implements one verification strategy per chain family.
// A Family is selected once from the network's declared family and owns
// address derivation, reference normalisation and chain-truth checks.
package chains

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/vitwit/chaindonate/keys"
	"github.com/vitwit/chaindonate/types"
)

// VerifyRequest is one transaction checked against an intent.
type VerifyRequest struct {
	Intent         *types.PaymentIntent
	Asset          types.Asset
	DepositAddress string
	// TxHash must already be normalised by the same family.
	TxHash string
}

// Evidence is what the chain says about a transaction that passed every check.
type Evidence struct {
	TxHash        string
	From          string
	To            string
	AmountRaw     *big.Int
	BlockNumber   uint64
	Confirmations uint64
}

type Family interface {
	Network() types.Network
	DeriveAddress(engine *keys.Engine, campaignID, symbol string, index uint32) (*keys.DerivedKey, error)
	NormalizeTxRef(ref string) (string, error)
	CurrentHeight(ctx context.Context) (uint64, error)
	Verify(ctx context.Context, req VerifyRequest) (*Evidence, error)
}

type base struct {
	network types.Network
	timeout time.Duration
}

func (b base) Network() types.Network { return b.network }

func (b base) DeriveAddress(engine *keys.Engine, campaignID, symbol string, index uint32) (*keys.DerivedKey, error) {
	if engine == nil {
		return nil, types.NewError(types.ErrDerivation, "no key engine")
	}
	return engine.Derive(keys.DeriveRequest{
		CampaignID:  campaignID,
		AssetSymbol: symbol,
		Family:      b.network.ResolvedAddressFamily(),
		Index:       index,
	})
}

func (b base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b base) networkError(op string, err error) error {
	return types.NewError(types.ErrNetwork, "%s on %s: %v", op, b.network.NetworkID, err).
		WithData("network", b.network.NetworkID)
}

func (b base) expected(req VerifyRequest) (*big.Int, error) {
	if req.Intent == nil {
		return nil, fmt.Errorf("verify without intent")
	}
	return req.Intent.ExpectedAmountRaw.BigInt(), nil
}
