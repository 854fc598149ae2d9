package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormTx struct {
	db *gorm.DB
}

var _ store.Tx = (*gormTx)(nil)

func (t *gormTx) q(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

func (t *gormTx) GetCampaign(ctx context.Context, campaignID string, forUpdate bool) (*types.Campaign, error) {
	q := t.q(ctx)
	if forUpdate {
		// dropped by the sqlite dialect, which serialises writers instead
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c types.Campaign
	if err := q.Where("campaign_id = ?", campaignID).Take(&c).Error; err != nil {
		return nil, notFound(err, "campaign "+campaignID)
	}
	return &c, nil
}

func (t *gormTx) SaveCampaign(ctx context.Context, c *types.Campaign) error {
	return errors.Wrap(t.q(ctx).Save(c).Error, "failed to save campaign")
}

func (t *gormTx) AddAssetTotal(ctx context.Context, campaignID, assetID string, native, raw decimal.Decimal, at time.Time) error {
	var total types.CampaignAssetTotal
	err := t.q(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("campaign_id = ? AND asset_id = ?", campaignID, assetID).
		Take(&total).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		total = types.CampaignAssetTotal{CampaignID: campaignID, AssetID: assetID}
	case err != nil:
		return errors.Wrap(err, "failed to load asset total")
	}
	total.AmountNative = total.AmountNative.Add(native)
	total.AmountRaw = total.AmountRaw.Add(raw)
	total.UpdatedAt = at
	return errors.Wrap(t.q(ctx).Save(&total).Error, "failed to save asset total")
}

func (t *gormTx) GetAssetTotal(ctx context.Context, campaignID, assetID string) (*types.CampaignAssetTotal, error) {
	var total types.CampaignAssetTotal
	if err := t.q(ctx).Where("campaign_id = ? AND asset_id = ?", campaignID, assetID).Take(&total).Error; err != nil {
		return nil, notFound(err, "asset total")
	}
	return &total, nil
}

func (t *gormTx) GetDeposit(ctx context.Context, key types.DepositKey) (*types.Deposit, error) {
	var d types.Deposit
	err := t.q(ctx).
		Where("campaign_id = ? AND asset_id = ? AND network_id = ?", key.CampaignID, key.AssetID, key.NetworkID).
		Take(&d).Error
	if err != nil {
		return nil, notFound(err, "deposit "+key.String())
	}
	return &d, nil
}

func (t *gormTx) CreateDepositIfAbsent(ctx context.Context, d *types.Deposit) (bool, error) {
	res := t.q(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(d)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "failed to create deposit")
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTx) CreateIntent(ctx context.Context, in *types.PaymentIntent) error {
	return errors.Wrap(t.q(ctx).Create(in).Error, "failed to create intent")
}

func (t *gormTx) GetIntent(ctx context.Context, intentID string) (*types.PaymentIntent, error) {
	var in types.PaymentIntent
	if err := t.q(ctx).Where("intent_id = ?", intentID).Take(&in).Error; err != nil {
		return nil, notFound(err, "intent "+intentID)
	}
	return &in, nil
}

func (t *gormTx) ConfirmIntent(ctx context.Context, in *types.PaymentIntent) error {
	res := t.q(ctx).Model(&types.PaymentIntent{}).
		Where("intent_id = ? AND status = ?", in.IntentID, types.IntentCreated).
		Updates(map[string]any{
			"status":                  types.IntentConfirmed,
			"tx_hash":                 in.TxHash,
			"confirmed_amount_raw":    in.ConfirmedAmountRaw,
			"confirmed_amount_native": in.ConfirmedAmountNative,
			"confirmed_at":            in.ConfirmedAt,
			"updated_at":              in.UpdatedAt,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to confirm intent")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("intent %s is no longer CREATED: %w", in.IntentID, store.ErrConflict)
	}
	return nil
}

func (t *gormTx) TransitionIntent(ctx context.Context, intentID string, from, to types.IntentStatus, at time.Time) error {
	res := t.q(ctx).Model(&types.PaymentIntent{}).
		Where("intent_id = ? AND status = ?", intentID, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update intent status")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("intent %s is not %s: %w", intentID, from, store.ErrConflict)
	}
	return nil
}

func (t *gormTx) ListIntentsExpiringBefore(ctx context.Context, before time.Time, limit int) ([]types.PaymentIntent, error) {
	var out []types.PaymentIntent
	err := t.q(ctx).
		Where("status = ? AND expires_at < ?", types.IntentCreated, before).
		Order("expires_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, errors.Wrap(err, "failed to list expiring intents")
}

func (t *gormTx) GetChainTransaction(ctx context.Context, networkID, txHash string) (*types.ChainTransaction, error) {
	var ct types.ChainTransaction
	if err := t.q(ctx).Where("network_id = ? AND tx_hash = ?", networkID, txHash).Take(&ct).Error; err != nil {
		return nil, notFound(err, "chain transaction "+txHash)
	}
	return &ct, nil
}

func (t *gormTx) LatestChainTransactionForIntent(ctx context.Context, intentID string) (*types.ChainTransaction, error) {
	var ct types.ChainTransaction
	err := t.q(ctx).Where("intent_id = ?", intentID).Order("created_at DESC").Take(&ct).Error
	if err != nil {
		return nil, notFound(err, "chain transaction for intent "+intentID)
	}
	return &ct, nil
}

func (t *gormTx) CreateChainTransaction(ctx context.Context, ct *types.ChainTransaction) error {
	res := t.q(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ct)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to create chain transaction")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("chain transaction %s/%s: %w", ct.NetworkID, ct.TxHash, store.ErrConflict)
	}
	return nil
}

func (t *gormTx) CreateDonation(ctx context.Context, d *types.Donation) error {
	return errors.Wrap(t.q(ctx).Create(d).Error, "failed to create donation")
}

func (t *gormTx) GetDonation(ctx context.Context, donationID string) (*types.Donation, error) {
	var d types.Donation
	if err := t.q(ctx).Where("donation_id = ?", donationID).Take(&d).Error; err != nil {
		return nil, notFound(err, "donation "+donationID)
	}
	return &d, nil
}

func (t *gormTx) CreateMilestone(ctx context.Context, m *types.Milestone) error {
	return errors.Wrap(t.q(ctx).Create(m).Error, "failed to create milestone")
}

func (t *gormTx) ListOpenMilestones(ctx context.Context, campaignID string) ([]types.Milestone, error) {
	var out []types.Milestone
	err := t.q(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("campaign_id = ? AND status IN ?", campaignID,
			[]types.MilestoneStatus{types.MilestoneNotStarted, types.MilestoneInProgress}).
		Order("created_at ASC, milestone_id ASC").
		Find(&out).Error
	return out, errors.Wrap(err, "failed to list open milestones")
}

func (t *gormTx) ListMilestones(ctx context.Context, campaignID string) ([]types.Milestone, error) {
	var out []types.Milestone
	err := t.q(ctx).Where("campaign_id = ?", campaignID).Order("created_at ASC, milestone_id ASC").Find(&out).Error
	return out, errors.Wrap(err, "failed to list milestones")
}

func (t *gormTx) UpdateMilestone(ctx context.Context, m *types.Milestone) error {
	return errors.Wrap(t.q(ctx).Save(m).Error, "failed to update milestone")
}

func (t *gormTx) CreateAllocation(ctx context.Context, a *types.Allocation) error {
	return errors.Wrap(t.q(ctx).Create(a).Error, "failed to create allocation")
}

func (t *gormTx) ListAllocations(ctx context.Context, f store.AllocationFilter) ([]types.Allocation, error) {
	q := t.q(ctx)
	if f.CampaignID != "" {
		q = q.Where("campaign_id = ?", f.CampaignID)
	}
	if f.DonationID != "" {
		q = q.Where("donation_id = ?", f.DonationID)
	}
	if f.MilestoneID != "" {
		q = q.Where("milestone_id = ?", f.MilestoneID)
	}
	var out []types.Allocation
	err := q.Order("created_at ASC, allocation_id ASC").Find(&out).Error
	return out, errors.Wrap(err, "failed to list allocations")
}

func (t *gormTx) AppendLedgerEvent(ctx context.Context, e *types.LedgerEvent) error {
	return errors.Wrap(t.q(ctx).Create(e).Error, "failed to append ledger event")
}

func (t *gormTx) ListLedgerEvents(ctx context.Context, campaignID string) ([]types.LedgerEvent, error) {
	var out []types.LedgerEvent
	err := t.q(ctx).Where("campaign_id = ?", campaignID).Order("created_at ASC, event_id ASC").Find(&out).Error
	return out, errors.Wrap(err, "failed to list ledger events")
}
