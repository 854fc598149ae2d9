// Package settlement posts verified transfers into the ledger and
// allocates them across campaign milestones.
package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/chaindonate/chains"
	"github.com/vitwit/chaindonate/events"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/metrics"
	"github.com/vitwit/chaindonate/oracle"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/types"
	"github.com/vitwit/chaindonate/utils"
)

// Allocation currencies. CurrencyNative allocates in the asset's own units
// under its symbol.
const (
	CurrencyINR    = "INR"
	CurrencyUSD    = "USD"
	CurrencyNative = "NATIVE"
)

// INRConverter turns USD into the INR reference currency.
type INRConverter interface {
	USDToINR(usd decimal.Decimal) decimal.Decimal
}

// PostRequest carries one fully verified transfer.
type PostRequest struct {
	Intent   *types.PaymentIntent
	Asset    types.Asset
	Evidence *chains.Evidence
	// USDRate is the live USD price of one native unit at confirmation.
	USDRate decimal.Decimal
}

type Poster struct {
	store     store.Store
	allocator *Allocator
	fx        INRConverter
	publisher events.Publisher
	currency  string
	log       logger.Logger
	metrics   metrics.Recorder
	now       func() time.Time
	newID     func() string
}

func NewPoster(s store.Store, allocator *Allocator, fx INRConverter, publisher events.Publisher, currency string, log logger.Logger, rec metrics.Recorder) *Poster {
	if allocator == nil {
		allocator = NewAllocator()
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if currency == "" {
		currency = CurrencyINR
	}
	return &Poster{
		store:     s,
		allocator: allocator,
		fx:        fx,
		publisher: publisher,
		currency:  strings.ToUpper(currency),
		log:       logger.Component(log, "settlement"),
		metrics:   rec,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// RecordedResult rebuilds the verification result of a stored transaction.
func RecordedResult(ct *types.ChainTransaction) *types.VerificationResult {
	return &types.VerificationResult{
		IntentID:        ct.IntentID,
		TxHash:          ct.TxHash,
		Status:          types.IntentConfirmed,
		AmountRaw:       ct.AmountRaw.String(),
		AmountNative:    ct.AmountNative.String(),
		USDRate:         ct.USDRate.String(),
		USDAtConfirm:    ct.USDAtConfirm.StringFixed(2),
		Confirmations:   ct.Confirmations,
		DonationID:      ct.DonationID,
		AlreadyRecorded: true,
	}
}

// CheckRecorded applies the idempotency rule to a stored transaction: the
// same intent gets the stored result back, any other intent is blocked.
func CheckRecorded(ct *types.ChainTransaction, intentID string) (*types.VerificationResult, error) {
	if ct.IntentID != intentID {
		return nil, types.NewError(types.ErrReplayBlocked,
			"transaction %s is already recorded for another intent", ct.TxHash).
			WithData("txHash", ct.TxHash)
	}
	return RecordedResult(ct), nil
}

// Post writes the chain transaction, confirms the intent, records the
// donation, updates campaign totals and allocates milestones in a single
// store transaction. Ledger events are published once it commits.
func (p *Poster) Post(ctx context.Context, req PostRequest) (*types.VerificationResult, error) {
	in, ev := req.Intent, req.Evidence
	if in == nil || ev == nil || ev.AmountRaw == nil {
		return nil, errors.New("post requires an intent and evidence")
	}

	start := p.now()
	labels := map[string]string{"network": in.NetworkID}

	var (
		result    *types.VerificationResult
		published []types.LedgerEvent
	)
	err := p.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		result, published = nil, nil

		existing, err := tx.GetChainTransaction(ctx, in.NetworkID, ev.TxHash)
		switch {
		case err == nil:
			result, err = CheckRecorded(existing, in.IntentID)
			return err
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		current, err := tx.GetIntent(ctx, in.IntentID)
		if err != nil {
			return err
		}
		if current.Status != types.IntentCreated {
			return types.NewError(types.ErrIntentClosed, "intent %s is %s", in.IntentID, current.Status)
		}

		result, published, err = p.post(ctx, tx, current, req)
		return err
	})
	if errors.Is(err, store.ErrConflict) {
		// a concurrent post for the same hash won
		return p.recordedAfterRace(ctx, in, ev.TxHash)
	}
	if err != nil {
		return nil, err
	}

	if !result.AlreadyRecorded {
		p.metrics.IncCounter(metrics.LedgerPosted, labels)
		metrics.Since(p.metrics, "ledger_post", start, labels)
		p.log.Info("donation posted", map[string]any{
			"intent":   in.IntentID,
			"donation": result.DonationID,
			"txHash":   result.TxHash,
			"amount":   result.AmountNative,
			"usd":      result.USDAtConfirm,
		})
		for _, e := range published {
			if e.Type == types.EventDonationAllocated {
				p.metrics.IncCounter(metrics.MilestoneAllocated, labels)
			}
		}
		if err := p.publisher.Publish(ctx, published); err != nil {
			p.log.Error("ledger event publish failed", map[string]any{"intent": in.IntentID, "err": err})
		}
	}
	return result, nil
}

func (p *Poster) post(ctx context.Context, tx store.Tx, in *types.PaymentIntent, req PostRequest) (*types.VerificationResult, []types.LedgerEvent, error) {
	ev := req.Evidence
	now := p.now().UTC()

	raw := utils.RawFromBigInt(ev.AmountRaw)
	native := utils.FromRaw(raw, req.Asset.Decimals)
	usd := oracle.NativeToUSD(native, req.USDRate)
	inr := decimal.Zero
	if p.fx != nil {
		inr = p.fx.USDToINR(usd)
	}

	chainTxID, donationID := p.newID(), p.newID()

	ct := &types.ChainTransaction{
		ID:            chainTxID,
		NetworkID:     in.NetworkID,
		TxHash:        ev.TxHash,
		IntentID:      in.IntentID,
		CampaignID:    in.CampaignID,
		AssetID:       in.AssetID,
		DonationID:    donationID,
		AmountRaw:     raw,
		AmountNative:  native,
		FromAddress:   ev.From,
		ToAddress:     ev.To,
		BlockNumber:   ev.BlockNumber,
		Confirmations: ev.Confirmations,
		USDRate:       req.USDRate,
		USDAtConfirm:  usd,
		INRAtConfirm:  inr,
		CreatedAt:     now,
	}
	if err := tx.CreateChainTransaction(ctx, ct); err != nil {
		return nil, nil, err
	}

	in.Status = types.IntentConfirmed
	in.TxHash = ev.TxHash
	in.ConfirmedAmountRaw = raw
	in.ConfirmedAmountNative = native
	in.ConfirmedAt = &now
	in.UpdatedAt = now
	if err := tx.ConfirmIntent(ctx, in); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, types.NewError(types.ErrIntentClosed, "intent %s was closed concurrently", in.IntentID)
		}
		return nil, nil, err
	}

	donation := &types.Donation{
		DonationID:   donationID,
		CampaignID:   in.CampaignID,
		IntentID:     in.IntentID,
		ChainTxID:    chainTxID,
		NetworkID:    in.NetworkID,
		AssetID:      in.AssetID,
		Symbol:       req.Asset.Symbol,
		TxHash:       ev.TxHash,
		AmountRaw:    raw,
		AmountNative: native,
		AmountUSD:    usd,
		AmountINR:    inr,
		Donor:        ev.From,
		CreatedAt:    now,
	}
	if err := tx.CreateDonation(ctx, donation); err != nil {
		return nil, nil, err
	}

	if err := creditCampaign(ctx, tx, in, usd, inr, now); err != nil {
		return nil, nil, err
	}
	if err := tx.AddAssetTotal(ctx, in.CampaignID, in.AssetID, native, raw, now); err != nil {
		return nil, nil, err
	}

	amount, currency := p.allocationAmount(req.Asset, native, usd, inr)
	alloc, err := p.allocator.Allocate(ctx, tx, donationID, in.CampaignID, amount, currency)
	if err != nil {
		return nil, nil, err
	}
	confirmed := types.LedgerEvent{
		EventID:    p.newID(),
		CampaignID: in.CampaignID,
		Type:       types.EventDonationConfirmed,
		IntentID:   in.IntentID,
		DonationID: donationID,
		Amount:     amount,
		Currency:   currency,
		Metadata: map[string]string{
			"network":      in.NetworkID,
			"asset":        in.AssetID,
			"txHash":       ev.TxHash,
			"amountNative": native.String(),
			"amountUsd":    usd.StringFixed(2),
			"unallocated":  alloc.Unallocated.String(),
		},
		CreatedAt: now,
	}
	if err := tx.AppendLedgerEvent(ctx, &confirmed); err != nil {
		return nil, nil, err
	}

	result := RecordedResult(ct)
	result.AlreadyRecorded = false
	return result, append([]types.LedgerEvent{confirmed}, alloc.Events...), nil
}

func (p *Poster) allocationAmount(asset types.Asset, native, usd, inr decimal.Decimal) (decimal.Decimal, string) {
	switch p.currency {
	case CurrencyUSD:
		return usd, CurrencyUSD
	case CurrencyNative:
		return native, asset.Symbol
	default:
		return inr, CurrencyINR
	}
}

func (p *Poster) recordedAfterRace(ctx context.Context, in *types.PaymentIntent, txHash string) (*types.VerificationResult, error) {
	ct, err := store.Read(ctx, p.store, func(ctx context.Context, tx store.Tx) (*types.ChainTransaction, error) {
		return tx.GetChainTransaction(ctx, in.NetworkID, txHash)
	})
	if err != nil {
		return nil, err
	}
	return CheckRecorded(ct, in.IntentID)
}

// creditCampaign adds a confirmed donation to the campaign totals and
// releases the intent's reservation.
func creditCampaign(ctx context.Context, tx store.Tx, in *types.PaymentIntent, usd, inr decimal.Decimal, now time.Time) error {
	c, err := LockCampaign(ctx, tx, in.CampaignID, now)
	if err != nil {
		return err
	}
	c.RaisedINR = c.RaisedINR.Add(inr)
	c.RaisedUSD = c.RaisedUSD.Add(usd)
	c.DonationCount++
	ReleaseReservation(c, in.ReservedINR)
	c.UpdatedAt = now
	return tx.SaveCampaign(ctx, c)
}

// LockCampaign reads a campaign for update, starting an empty one when the
// surrounding application has not stored it yet.
func LockCampaign(ctx context.Context, tx store.Tx, campaignID string, now time.Time) (*types.Campaign, error) {
	c, err := tx.GetCampaign(ctx, campaignID, true)
	if errors.Is(err, store.ErrNotFound) {
		return &types.Campaign{CampaignID: campaignID, GoalCurrency: CurrencyINR, CreatedAt: now}, nil
	}
	return c, err
}

// ReleaseReservation removes an intent's reserved INR, never going below zero.
func ReleaseReservation(c *types.Campaign, reserved decimal.Decimal) {
	c.ReservedINR = c.ReservedINR.Sub(reserved)
	if c.ReservedINR.IsNegative() {
		c.ReservedINR = decimal.Zero
	}
}
