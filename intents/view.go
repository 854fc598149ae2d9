package intents

import (
	"time"

	"github.com/vitwit/chaindonate/types"
	"github.com/vitwit/chaindonate/utils"
)

// QRString renders "SYMBOL:ADDRESS?amount=N", or the bare address when
// there is no amount.
func QRString(symbol, address, amount string) string {
	if amount == "" || amount == "0" {
		return address
	}
	return symbol + ":" + address + "?amount=" + amount
}

func buildView(in *types.PaymentIntent, asset types.Asset, network types.Network, deposit *types.Deposit, latest *types.ChainTransaction, now time.Time, grace time.Duration) *types.PaymentIntentView {
	expectedNative := utils.FromRaw(in.ExpectedAmountRaw, in.ExpectedDecimals).String()
	v := &types.PaymentIntentView{
		IntentID:             in.IntentID,
		CampaignID:           in.CampaignID,
		NetworkID:            in.NetworkID,
		AssetID:              in.AssetID,
		Symbol:               asset.Symbol,
		DepositAddress:       in.DepositAddress,
		QRString:             QRString(asset.Symbol, in.DepositAddress, expectedNative),
		AmountNative:         in.AmountNative.String(),
		ExpectedAmountNative: expectedNative,
		ExpectedAmountRaw:    in.ExpectedAmountRaw.String(),
		AmountUSD:            in.AmountUSD.StringFixed(2),
		FXRate:               in.FXRate.String(),
		ExpiresAt:            in.ExpiresAt,
		ExplorerAddressURL:   network.AddressURL(in.DepositAddress),
		Status:               in.EffectiveStatus(now, grace),
		Recoverable:          deposit == nil || deposit.Recoverable,
	}
	if latest != nil {
		v.LatestTransaction = &types.TransactionView{
			TxHash:        latest.TxHash,
			AmountNative:  latest.AmountNative.String(),
			Confirmations: latest.Confirmations,
			ExplorerURL:   network.TxURL(latest.TxHash),
			RecordedAt:    latest.CreatedAt,
		}
	}
	return v
}
