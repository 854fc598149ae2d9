// Package verification checks a donor-supplied transaction against a
// payment intent and posts it to the ledger.
package verification

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vitwit/chaindonate/chains"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/metrics"
	"github.com/vitwit/chaindonate/oracle"
	"github.com/vitwit/chaindonate/settlement"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/types"
)

// Verifier verifies a transaction reference for an intent.
type Verifier interface {
	VerifyIntentTransaction(ctx context.Context, intentID, txRef string) (*types.VerificationResult, error)
}

type Families interface {
	Get(networkID string) (chains.Family, error)
}

type AssetLookup interface {
	Asset(id string) (types.Asset, error)
}

type RateSource interface {
	GetRate(ctx context.Context, asset types.Asset) (oracle.Rate, error)
}

// VerificationService routes each intent to its network's chain family.
type VerificationService struct {
	store    store.Store
	families Families
	assets   AssetLookup
	rates    RateSource
	poster   *settlement.Poster
	grace    time.Duration
	timeout  time.Duration
	log      logger.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

var _ Verifier = (*VerificationService)(nil)

// NewVerificationService builds the service. grace extends an intent's
// expiry for verification; timeout bounds a whole verification call.
func NewVerificationService(s store.Store, families Families, assets AssetLookup, rates RateSource, poster *settlement.Poster, grace, timeout time.Duration, log logger.Logger, rec metrics.Recorder) *VerificationService {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &VerificationService{
		store:    s,
		families: families,
		assets:   assets,
		rates:    rates,
		poster:   poster,
		grace:    grace,
		timeout:  timeout,
		log:      logger.Component(log, "verification"),
		metrics:  rec,
		now:      time.Now,
	}
}

// VerifyIntentTransaction confirms the intent when txRef pays it. A
// reference already recorded for the same intent returns the stored result
// with AlreadyRecorded set; one recorded for another intent is rejected.
func (s *VerificationService) VerifyIntentTransaction(ctx context.Context, intentID, txRef string) (*types.VerificationResult, error) {
	start := s.now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, networkID, err := s.verify(ctx, intentID, txRef)
	labels := map[string]string{"network": networkID}

	switch {
	case err != nil:
		code := types.ErrorCode(err)
		labels["reason"] = code
		s.metrics.IncCounter(metrics.VerifyRejected, labels)
		fields := map[string]any{"intent": intentID, "ref": txRef, "err": err}
		if code == "" || code == types.ErrNetwork {
			s.log.Error("verification failed", fields)
		} else {
			s.log.Info("verification rejected", fields)
		}
	case result.AlreadyRecorded:
		s.metrics.IncCounter(metrics.VerifyDuplicate, labels)
		s.log.Debug("transaction already recorded", map[string]any{"intent": intentID, "txHash": result.TxHash})
	default:
		s.metrics.IncCounter(metrics.VerifyConfirmed, labels)
	}
	metrics.Since(s.metrics, "verify", start, labels)
	return result, err
}

func (s *VerificationService) verify(ctx context.Context, intentID, txRef string) (*types.VerificationResult, string, error) {
	if strings.TrimSpace(txRef) == "" {
		return nil, "", types.NewError(types.ErrInvalidReference, "transaction reference is empty")
	}

	in, err := store.Read(ctx, s.store, func(ctx context.Context, tx store.Tx) (*types.PaymentIntent, error) {
		return tx.GetIntent(ctx, intentID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", types.NewError(types.ErrNotFound, "intent %s not found", intentID)
	}
	if err != nil {
		return nil, "", err
	}
	networkID := in.NetworkID

	family, err := s.families.Get(networkID)
	if err != nil {
		return nil, networkID, err
	}
	hash, err := family.NormalizeTxRef(txRef)
	if err != nil {
		return nil, networkID, err
	}

	existing, err := store.Read(ctx, s.store, func(ctx context.Context, tx store.Tx) (*types.ChainTransaction, error) {
		return tx.GetChainTransaction(ctx, networkID, hash)
	})
	switch {
	case err == nil:
		result, err := settlement.CheckRecorded(existing, intentID)
		return result, networkID, err
	case !errors.Is(err, store.ErrNotFound):
		return nil, networkID, err
	}

	if in.Status != types.IntentCreated {
		return nil, networkID, types.NewError(types.ErrIntentClosed, "intent %s is %s", intentID, in.Status)
	}
	if s.now().After(in.ExpiresAt.Add(s.grace)) {
		return nil, networkID, types.NewError(types.ErrIntentExpired, "intent %s expired at %s", intentID, in.ExpiresAt.Format(time.RFC3339))
	}

	asset, err := s.assets.Asset(in.AssetID)
	if err != nil {
		return nil, networkID, err
	}

	evidence, err := family.Verify(ctx, chains.VerifyRequest{
		Intent:         in,
		Asset:          asset,
		DepositAddress: in.DepositAddress,
		TxHash:         hash,
	})
	if err != nil {
		return nil, networkID, err
	}

	rate, err := s.rates.GetRate(ctx, asset)
	if err != nil {
		return nil, networkID, err
	}

	result, err := s.poster.Post(ctx, settlement.PostRequest{
		Intent:   in,
		Asset:    asset,
		Evidence: evidence,
		USDRate:  rate.USD,
	})
	return result, networkID, err
}
