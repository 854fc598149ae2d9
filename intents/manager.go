// Package intents creates, reads and expires payment intents.
package intents

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/chaindonate/chains"
	"github.com/vitwit/chaindonate/events"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/metrics"
	"github.com/vitwit/chaindonate/oracle"
	"github.com/vitwit/chaindonate/settlement"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/types"
	"github.com/vitwit/chaindonate/utils"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTTL = 24 * time.Hour
	// nonce bounds as fractions of the base raw amount: 0.0001% and 0.1%
	nonceMinDivisor = 1_000_000
	nonceMaxDivisor = 1_000
	snapshotLimit   = 4
	expireBatch     = 100
)

type Catalog interface {
	Resolve(networkID, assetID string) (types.Network, types.Asset, error)
	Network(id string) (types.Network, error)
	Asset(id string) (types.Asset, error)
}

type Families interface {
	Get(networkID string) (chains.Family, error)
	EVM() []chains.Family
}

type Deposits interface {
	GetOrCreate(ctx context.Context, key types.DepositKey) (*types.Deposit, error)
}

type Rates interface {
	GetRate(ctx context.Context, asset types.Asset) (oracle.Rate, error)
	USDToINR(usd decimal.Decimal) decimal.Decimal
}

type Config struct {
	TTL time.Duration
	// VerifyGrace keeps an intent verifiable after ExpiresAt for transfers
	// sent just before expiry.
	VerifyGrace  time.Duration
	DisableNonce bool
}

type Manager struct {
	store     store.Store
	catalog   Catalog
	families  Families
	deposits  Deposits
	rates     Rates
	publisher events.Publisher
	cfg       Config
	log       logger.Logger
	metrics   metrics.Recorder
	now       func() time.Time
	newID     func() string
	random    io.Reader
}

func NewManager(s store.Store, catalog Catalog, families Families, deposits Deposits, rates Rates, publisher events.Publisher, cfg Config, log logger.Logger, rec metrics.Recorder) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Manager{
		store:     s,
		catalog:   catalog,
		families:  families,
		deposits:  deposits,
		rates:     rates,
		publisher: publisher,
		cfg:       cfg,
		log:       logger.Component(log, "intents"),
		metrics:   rec,
		now:       time.Now,
		newID:     uuid.NewString,
		random:    rand.Reader,
	}
}

// CreateRequest asks for an intent in either USD or native units.
type CreateRequest struct {
	CampaignID   string `json:"campaignId" validate:"required,max=128"`
	NetworkID    string `json:"networkId" validate:"required,max=128"`
	AssetID      string `json:"assetId" validate:"required,max=128"`
	AmountUSD    string `json:"amountUsd,omitempty" validate:"required_without=AmountNative,excluded_with=AmountNative"`
	AmountNative string `json:"amountNative,omitempty" validate:"required_without=AmountUSD"`
}

// CreateIntent prices the request, assigns the campaign's deposit address
// and stores a CREATED intent. The campaign goal check and the intent's
// INR reservation happen in the transaction that writes the intent.
func (m *Manager) CreateIntent(ctx context.Context, req CreateRequest) (*types.PaymentIntentView, error) {
	view, err := m.createIntent(ctx, req)
	if err != nil {
		m.metrics.IncCounter(metrics.IntentRejected, map[string]string{
			"network": req.NetworkID,
			"reason":  types.ErrorCode(err),
		})
		return nil, err
	}
	m.metrics.IncCounter(metrics.IntentCreated, map[string]string{"network": req.NetworkID})
	return view, nil
}

func (m *Manager) createIntent(ctx context.Context, req CreateRequest) (*types.PaymentIntentView, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	network, asset, err := m.catalog.Resolve(req.NetworkID, req.AssetID)
	if err != nil {
		return nil, err
	}

	rate, err := m.rates.GetRate(ctx, asset)
	if err != nil {
		return nil, err
	}
	native, usd, err := quote(req, asset, rate.USD)
	if err != nil {
		return nil, err
	}

	deposit, err := m.deposits.GetOrCreate(ctx, types.DepositKey{
		CampaignID: req.CampaignID,
		AssetID:    asset.AssetID,
		NetworkID:  network.NetworkID,
	})
	if err != nil {
		return nil, err
	}

	baseRaw := utils.ToRaw(native, asset.Decimals)
	nonce := m.nonce(baseRaw, asset)
	now := m.now().UTC()

	in := &types.PaymentIntent{
		IntentID:            m.newID(),
		CampaignID:          req.CampaignID,
		AssetID:             asset.AssetID,
		NetworkID:           network.NetworkID,
		DepositRef:          deposit.Key().String(),
		DepositAddress:      deposit.Address,
		AmountNative:        native,
		AmountUSD:           usd,
		FXRate:              rate.USD,
		ReservedINR:         m.rates.USDToINR(usd),
		ExpectedAmountRaw:   baseRaw.Add(nonce),
		ExpectedDecimals:    asset.Decimals,
		Nonce:               nonce,
		StartBlockByNetwork: m.snapshot(ctx, network),
		Status:              types.IntentCreated,
		ExpiresAt:           now.Add(m.cfg.TTL),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = m.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := settlement.LockCampaign(ctx, tx, in.CampaignID, now)
		if err != nil {
			return err
		}
		if c.GoalMet() {
			return types.NewError(types.ErrGoalReached, "campaign %s has reached its goal", in.CampaignID).
				WithData("goal", c.GoalAmount.String()).
				WithData("raised", c.RaisedINR.String())
		}
		c.ReservedINR = c.ReservedINR.Add(in.ReservedINR)
		c.UpdatedAt = now
		if err := tx.SaveCampaign(ctx, c); err != nil {
			return err
		}
		return tx.CreateIntent(ctx, in)
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("intent created", map[string]any{
		"intent":   in.IntentID,
		"campaign": in.CampaignID,
		"asset":    in.AssetID,
		"amount":   in.AmountNative.String(),
		"expected": in.ExpectedAmountRaw.String(),
		"rate":     rate.Source,
	})
	return buildView(in, asset, network, deposit, nil, now, m.cfg.VerifyGrace), nil
}

// quote fills in the missing side of the USD/native pair.
func quote(req CreateRequest, asset types.Asset, price decimal.Decimal) (native, usd decimal.Decimal, err error) {
	if req.AmountUSD != "" {
		usd, err = positiveAmount(req.AmountUSD, "amountUsd")
		if err != nil {
			return
		}
		native = oracle.USDToNative(usd, price, asset.Decimals)
	} else {
		native, err = positiveAmount(req.AmountNative, "amountNative")
		if err != nil {
			return
		}
		native = native.Round(asset.Decimals)
		usd = oracle.NativeToUSD(native, price)
	}
	if !native.IsPositive() {
		err = types.NewError(types.ErrValidation, "amount is below one %s base unit", asset.Symbol)
	}
	return
}

func positiveAmount(s, field string) (decimal.Decimal, error) {
	v, err := utils.ValidateAmount(s)
	if err != nil {
		return decimal.Zero, types.NewError(types.ErrValidation, "%s: %v", field, err)
	}
	if !v.IsPositive() {
		return decimal.Zero, types.NewError(types.ErrValidation, "%s must be positive", field)
	}
	return v, nil
}

// nonce picks a random offset between 0.0001% and 0.1% of baseRaw so
// donors sharing a deposit address send distinguishable amounts. Any
// failure yields zero.
func (m *Manager) nonce(baseRaw decimal.Decimal, asset types.Asset) decimal.Decimal {
	if m.cfg.DisableNonce {
		return decimal.Zero
	}
	base := baseRaw.BigInt()
	lo := new(big.Int).Quo(base, big.NewInt(nonceMinDivisor))
	hi := new(big.Int).Quo(base, big.NewInt(nonceMaxDivisor))
	if lo.Sign() == 0 {
		lo.SetInt64(1)
	}
	if hi.Cmp(lo) < 0 {
		m.log.Warn("amount too small for a nonce, using exact amount", map[string]any{
			"asset": asset.AssetID, "raw": baseRaw.String(),
		})
		return decimal.Zero
	}

	span := new(big.Int).Sub(hi, lo)
	span.Add(span, big.NewInt(1))
	r, err := rand.Int(m.random, span)
	if err != nil {
		m.log.Warn("nonce generation failed, using exact amount", map[string]any{"asset": asset.AssetID, "err": err})
		return decimal.Zero
	}
	return decimal.NewFromBigInt(r.Add(r, lo), 0)
}

// snapshot records the current height of every enabled EVM network and of
// the intent's own network. Heights that cannot be read are left out.
func (m *Manager) snapshot(ctx context.Context, own types.Network) map[string]uint64 {
	targets := m.families.EVM()
	if !own.IsEVM() {
		if f, err := m.families.Get(own.NetworkID); err == nil {
			targets = append(targets, f)
		}
	}

	var (
		mu      sync.Mutex
		heights = make(map[string]uint64, len(targets))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotLimit)
	for _, f := range targets {
		g.Go(func() error {
			id := f.Network().NetworkID
			h, err := f.CurrentHeight(gctx)
			if err != nil {
				m.log.Debug("height snapshot skipped", map[string]any{"network": id, "err": err})
				return nil
			}
			mu.Lock()
			heights[id] = h
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return heights
}

// GetIntent assembles the current view of an intent without writing.
func (m *Manager) GetIntent(ctx context.Context, intentID string) (*types.PaymentIntentView, error) {
	var (
		in      *types.PaymentIntent
		deposit *types.Deposit
		latest  *types.ChainTransaction
	)
	err := m.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		in, err = tx.GetIntent(ctx, intentID)
		if err != nil {
			return err
		}
		deposit, err = tx.GetDeposit(ctx, in.DepositKey())
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		latest, err = tx.LatestChainTransactionForIntent(ctx, intentID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.NewError(types.ErrNotFound, "intent %s not found", intentID)
	}
	if err != nil {
		return nil, err
	}

	network, err := m.catalog.Network(in.NetworkID)
	if err != nil {
		return nil, err
	}
	asset, err := m.catalog.Asset(in.AssetID)
	if err != nil {
		return nil, err
	}
	return buildView(in, asset, network, deposit, latest, m.now(), m.cfg.VerifyGrace), nil
}

// ExpireIntents marks CREATED intents whose verify window closed before now
// as EXPIRED, releasing their campaign reservations. It returns how many
// intents it expired.
func (m *Manager) ExpireIntents(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-m.cfg.VerifyGrace)
	expired := 0
	for {
		batch, err := store.Read(ctx, m.store, func(ctx context.Context, tx store.Tx) ([]types.PaymentIntent, error) {
			return tx.ListIntentsExpiringBefore(ctx, cutoff, expireBatch)
		})
		if err != nil {
			return expired, err
		}

		var evs []types.LedgerEvent
		for i := range batch {
			ev, err := m.expire(ctx, &batch[i], now.UTC())
			if err != nil {
				return expired, err
			}
			if ev != nil {
				evs = append(evs, *ev)
				expired++
				m.metrics.IncCounter(metrics.IntentExpired, map[string]string{"network": batch[i].NetworkID})
			}
		}
		if len(evs) > 0 {
			if err := m.publisher.Publish(ctx, evs); err != nil {
				m.log.Error("ledger event publish failed", map[string]any{"err": err, "events": len(evs)})
			}
		}
		if len(batch) < expireBatch {
			break
		}
	}

	if expired > 0 {
		m.log.Info("intents expired", map[string]any{"count": expired, "cutoff": cutoff})
	}
	return expired, nil
}

func (m *Manager) expire(ctx context.Context, in *types.PaymentIntent, now time.Time) (*types.LedgerEvent, error) {
	var ev *types.LedgerEvent
	err := m.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ev = nil
		err := tx.TransitionIntent(ctx, in.IntentID, types.IntentCreated, types.IntentExpired, now)
		if errors.Is(err, store.ErrConflict) {
			// confirmed or expired by someone else in the meantime
			return nil
		}
		if err != nil {
			return err
		}

		c, err := settlement.LockCampaign(ctx, tx, in.CampaignID, now)
		if err != nil {
			return err
		}
		settlement.ReleaseReservation(c, in.ReservedINR)
		c.UpdatedAt = now
		if err := tx.SaveCampaign(ctx, c); err != nil {
			return err
		}

		e := &types.LedgerEvent{
			EventID:    m.newID(),
			CampaignID: in.CampaignID,
			Type:       types.EventIntentExpired,
			IntentID:   in.IntentID,
			Amount:     in.ReservedINR,
			Currency:   settlement.CurrencyINR,
			Metadata:   map[string]string{"network": in.NetworkID, "asset": in.AssetID},
			CreatedAt:  now,
		}
		if err := tx.AppendLedgerEvent(ctx, e); err != nil {
			return err
		}
		ev = e
		return nil
	})
	return ev, err
}
