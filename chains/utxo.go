package chains

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/vitwit/chaindonate/clients"
	"github.com/vitwit/chaindonate/types"
	"github.com/vitwit/chaindonate/utils"
)

// UTXOReader is the explorer surface the UTXO family needs.
type UTXOReader interface {
	Height(ctx context.Context) (uint64, error)
	Transaction(ctx context.Context, txID string) (*clients.UTXOTransaction, error)
}

type UTXO struct {
	base
	reader UTXOReader
}

var _ Family = (*UTXO)(nil)

func NewUTXO(network types.Network, reader UTXOReader, timeout time.Duration) *UTXO {
	return &UTXO{base: base{network: network, timeout: timeout}, reader: reader}
}

// NormalizeTxRef returns a bare lowercase 64-hex txid.
func (u *UTXO) NormalizeTxRef(ref string) (string, error) {
	return normalizeUTXOTxRef(ref)
}

func normalizeUTXOTxRef(ref string) (string, error) {
	h := strings.ToLower(stripExplorerURL(ref))
	h = strings.TrimPrefix(h, "0x")
	if len(h) != 64 || !utils.IsHexString(h) {
		return "", invalidReference(ref, "expected a 64 character hex transaction id")
	}
	return h, nil
}

func (u *UTXO) CurrentHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := u.withTimeout(ctx)
	defer cancel()

	h, err := u.reader.Height(ctx)
	if err != nil {
		return 0, u.networkError("tip height", err)
	}
	return h, nil
}

func (u *UTXO) Verify(ctx context.Context, req VerifyRequest) (*Evidence, error) {
	if req.Asset.IsToken() {
		return nil, types.NewError(types.ErrUnimplemented, "token transfers are not supported on %s", u.network.NetworkID)
	}
	expected, err := u.expected(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := u.withTimeout(ctx)
	defer cancel()

	tx, err := u.reader.Transaction(ctx, req.TxHash)
	if isNotFound(err) {
		return nil, notFound(u.network, req.TxHash)
	}
	if err != nil {
		return nil, u.networkError("explorer transaction", err)
	}
	if !tx.Confirmed {
		return nil, types.NewError(types.ErrInsufficientConfirmations, "transaction %s is unconfirmed", req.TxHash).
			WithData("confirmations", 0)
	}

	tip, err := u.reader.Height(ctx)
	if err != nil {
		return nil, u.networkError("tip height", err)
	}
	var confirmations uint64
	if tip >= tx.BlockHeight {
		confirmations = tip - tx.BlockHeight + 1
	}
	if err := checkConfirmations(u.network, confirmations); err != nil {
		return nil, err
	}
	if err := checkReplayFloor(req.Intent, u.network.NetworkID, tx.BlockHeight); err != nil {
		return nil, err
	}

	deposit := utils.NormalizeUTXOAddress(req.DepositAddress)
	total := new(big.Int)
	for _, out := range tx.Outputs {
		if out.Address != "" && utils.NormalizeUTXOAddress(out.Address) == deposit {
			total.Add(total, new(big.Int).SetUint64(out.Value))
		}
	}
	if total.Sign() == 0 {
		return nil, types.NewError(types.ErrAddressMismatch, "no output pays deposit address %s", req.DepositAddress)
	}
	if err := checkAmount(total, expected, false); err != nil {
		return nil, err
	}

	ev := &Evidence{
		TxHash:        req.TxHash,
		To:            req.DepositAddress,
		AmountRaw:     total,
		BlockNumber:   tx.BlockHeight,
		Confirmations: confirmations,
	}
	if len(tx.From) > 0 {
		ev.From = tx.From[0]
	}
	return ev, nil
}
