package chains

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/chaindonate/clients"
	"github.com/vitwit/chaindonate/types"
)

// SolanaReader is the RPC surface the SOL family needs.
type SolanaReader interface {
	Slot(ctx context.Context) (uint64, error)
	Transaction(ctx context.Context, signature string) (*clients.SolanaTransaction, error)
}

// Solana verifies native SOL transfers from the deposit account's lamport
// delta. SPL token transfers are not supported.
type Solana struct {
	base
	reader SolanaReader
}

var _ Family = (*Solana)(nil)

func NewSolana(network types.Network, reader SolanaReader, timeout time.Duration) *Solana {
	return &Solana{base: base{network: network, timeout: timeout}, reader: reader}
}

func (s *Solana) NormalizeTxRef(ref string) (string, error) {
	return normalizeSolanaTxRef(ref)
}

func normalizeSolanaTxRef(ref string) (string, error) {
	sig := stripExplorerURL(ref)
	parsed, err := solana.SignatureFromBase58(sig)
	if err != nil {
		return "", invalidReference(ref, "expected a base58 transaction signature")
	}
	return parsed.String(), nil
}

func (s *Solana) CurrentHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	slot, err := s.reader.Slot(ctx)
	if err != nil {
		return 0, s.networkError("slot", err)
	}
	return slot, nil
}

func (s *Solana) Verify(ctx context.Context, req VerifyRequest) (*Evidence, error) {
	if req.Asset.IsToken() {
		return nil, types.NewError(types.ErrUnimplemented, "SPL token transfers are not supported")
	}
	expected, err := s.expected(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.reader.Transaction(ctx, req.TxHash)
	if isNotFound(err) {
		return nil, notFound(s.network, req.TxHash)
	}
	if err != nil {
		return nil, s.networkError("get transaction", err)
	}
	if tx.Failed {
		return nil, types.NewError(types.ErrTransactionFailed, "transaction %s failed", req.TxHash)
	}

	slot, err := s.reader.Slot(ctx)
	if err != nil {
		return nil, s.networkError("slot", err)
	}
	confirmations := confirmationsSince(slot, tx.Slot)
	if err := checkConfirmations(s.network, confirmations); err != nil {
		return nil, err
	}
	if err := checkReplayFloor(req.Intent, s.network.NetworkID, tx.Slot); err != nil {
		return nil, err
	}

	idx := -1
	for i, k := range tx.AccountKeys {
		if k == req.DepositAddress {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(tx.PreBalances) || idx >= len(tx.PostBalances) ||
		tx.PostBalances[idx] <= tx.PreBalances[idx] {
		return nil, types.NewError(types.ErrAddressMismatch, "transaction does not credit deposit address %s", req.DepositAddress)
	}

	ev := &Evidence{
		TxHash:        req.TxHash,
		To:            req.DepositAddress,
		AmountRaw:     newUint(tx.PostBalances[idx] - tx.PreBalances[idx]),
		BlockNumber:   tx.Slot,
		Confirmations: confirmations,
	}
	if len(tx.AccountKeys) > 0 {
		ev.From = tx.AccountKeys[0]
	}
	if err := checkAmount(ev.AmountRaw, expected, false); err != nil {
		return nil, err
	}
	return ev, nil
}
