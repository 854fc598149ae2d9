package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoTx struct {
	db *mongo.Database
}

var _ store.Tx = (*mongoTx)(nil)

func (t *mongoTx) col(name string) *mongo.Collection {
	return t.db.Collection(name)
}

func findOne[T any](ctx context.Context, c *mongo.Collection, filter any, what string, opts ...*options.FindOneOptions) (*T, error) {
	var out T
	err := c.FindOne(ctx, filter, opts...).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", what, err)
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter any, sort bson.D, what string) ([]T, error) {
	cur, err := c.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return out, nil
}

func (t *mongoTx) GetCampaign(ctx context.Context, campaignID string, forUpdate bool) (*types.Campaign, error) {
	what := "campaign " + campaignID
	if !forUpdate {
		return findOne[types.Campaign](ctx, t.col(colCampaigns), bson.M{"_id": campaignID}, what)
	}
	// touching the document makes concurrent transactions on it conflict
	var out types.Campaign
	err := t.col(colCampaigns).FindOneAndUpdate(ctx,
		bson.M{"_id": campaignID},
		bson.M{"$inc": bson.M{"lock_seq": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", what, err)
	}
	return &out, nil
}

// campaignUpdate sets only the totals the engine owns. The rest of the
// document belongs to the application and is written on insert only.
func campaignUpdate(c *types.Campaign) bson.M {
	onInsert := bson.M{
		"goal_amount":   c.GoalAmount,
		"goal_currency": c.GoalCurrency,
		"created_at":    c.CreatedAt,
	}
	if c.Title != "" {
		onInsert["title"] = c.Title
	}
	if c.VaultAddress != "" {
		onInsert["vault_address"] = c.VaultAddress
	}
	return bson.M{
		"$set": bson.M{
			"raised_inr":     c.RaisedINR,
			"raised_usd":     c.RaisedUSD,
			"reserved_inr":   c.ReservedINR,
			"donation_count": c.DonationCount,
			"updated_at":     c.UpdatedAt,
		},
		"$setOnInsert": onInsert,
	}
}

func (t *mongoTx) SaveCampaign(ctx context.Context, c *types.Campaign) error {
	_, err := t.col(colCampaigns).UpdateOne(ctx, bson.M{"_id": c.CampaignID}, campaignUpdate(c), options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save campaign: %w", err)
	}
	return nil
}

func (t *mongoTx) AddAssetTotal(ctx context.Context, campaignID, assetID string, native, raw decimal.Decimal, at time.Time) error {
	filter := bson.M{"campaign_id": campaignID, "asset_id": assetID}
	total, err := findOne[types.CampaignAssetTotal](ctx, t.col(colAssetTotals), filter, "asset total")
	switch {
	case errors.Is(err, store.ErrNotFound):
		total = &types.CampaignAssetTotal{CampaignID: campaignID, AssetID: assetID}
	case err != nil:
		return err
	}
	total.AmountNative = total.AmountNative.Add(native)
	total.AmountRaw = total.AmountRaw.Add(raw)
	total.UpdatedAt = at

	if _, err := t.col(colAssetTotals).ReplaceOne(ctx, filter, total, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("save asset total: %w", err)
	}
	return nil
}

func (t *mongoTx) GetAssetTotal(ctx context.Context, campaignID, assetID string) (*types.CampaignAssetTotal, error) {
	return findOne[types.CampaignAssetTotal](ctx, t.col(colAssetTotals),
		bson.M{"campaign_id": campaignID, "asset_id": assetID}, "asset total")
}

func depositFilter(key types.DepositKey) bson.M {
	return bson.M{"campaign_id": key.CampaignID, "asset_id": key.AssetID, "network_id": key.NetworkID}
}

func (t *mongoTx) GetDeposit(ctx context.Context, key types.DepositKey) (*types.Deposit, error) {
	return findOne[types.Deposit](ctx, t.col(colDeposits), depositFilter(key), "deposit "+key.String())
}

func (t *mongoTx) CreateDepositIfAbsent(ctx context.Context, d *types.Deposit) (bool, error) {
	res, err := t.col(colDeposits).UpdateOne(ctx,
		depositFilter(d.Key()),
		bson.M{"$setOnInsert": d},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("create deposit: %w", err)
	}
	return res.UpsertedCount == 1, nil
}

func (t *mongoTx) CreateIntent(ctx context.Context, in *types.PaymentIntent) error {
	if _, err := t.col(colIntents).InsertOne(ctx, in); err != nil {
		return fmt.Errorf("create intent: %w", err)
	}
	return nil
}

func (t *mongoTx) GetIntent(ctx context.Context, intentID string) (*types.PaymentIntent, error) {
	return findOne[types.PaymentIntent](ctx, t.col(colIntents), bson.M{"_id": intentID}, "intent "+intentID)
}

func (t *mongoTx) ConfirmIntent(ctx context.Context, in *types.PaymentIntent) error {
	res, err := t.col(colIntents).UpdateOne(ctx,
		bson.M{"_id": in.IntentID, "status": types.IntentCreated},
		bson.M{"$set": bson.M{
			"status":                  types.IntentConfirmed,
			"tx_hash":                 in.TxHash,
			"confirmed_amount_raw":    in.ConfirmedAmountRaw,
			"confirmed_amount_native": in.ConfirmedAmountNative,
			"confirmed_at":            in.ConfirmedAt,
			"updated_at":              in.UpdatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("confirm intent: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("intent %s is no longer CREATED: %w", in.IntentID, store.ErrConflict)
	}
	return nil
}

func (t *mongoTx) TransitionIntent(ctx context.Context, intentID string, from, to types.IntentStatus, at time.Time) error {
	res, err := t.col(colIntents).UpdateOne(ctx,
		bson.M{"_id": intentID, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": at}},
	)
	if err != nil {
		return fmt.Errorf("update intent status: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("intent %s is not %s: %w", intentID, from, store.ErrConflict)
	}
	return nil
}

func (t *mongoTx) ListIntentsExpiringBefore(ctx context.Context, before time.Time, limit int) ([]types.PaymentIntent, error) {
	cur, err := t.col(colIntents).Find(ctx,
		bson.M{"status": types.IntentCreated, "expires_at": bson.M{"$lt": before}},
		options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("list expiring intents: %w", err)
	}
	var out []types.PaymentIntent
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode expiring intents: %w", err)
	}
	return out, nil
}

func (t *mongoTx) GetChainTransaction(ctx context.Context, networkID, txHash string) (*types.ChainTransaction, error) {
	return findOne[types.ChainTransaction](ctx, t.col(colChainTxs),
		bson.M{"network_id": networkID, "tx_hash": txHash}, "chain transaction "+txHash)
}

func (t *mongoTx) LatestChainTransactionForIntent(ctx context.Context, intentID string) (*types.ChainTransaction, error) {
	return findOne[types.ChainTransaction](ctx, t.col(colChainTxs), bson.M{"intent_id": intentID},
		"chain transaction for intent "+intentID, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (t *mongoTx) CreateChainTransaction(ctx context.Context, ct *types.ChainTransaction) error {
	_, err := t.col(colChainTxs).InsertOne(ctx, ct)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("chain transaction %s/%s: %w", ct.NetworkID, ct.TxHash, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create chain transaction: %w", err)
	}
	return nil
}

func (t *mongoTx) CreateDonation(ctx context.Context, d *types.Donation) error {
	if _, err := t.col(colDonations).InsertOne(ctx, d); err != nil {
		return fmt.Errorf("create donation: %w", err)
	}
	return nil
}

func (t *mongoTx) GetDonation(ctx context.Context, donationID string) (*types.Donation, error) {
	return findOne[types.Donation](ctx, t.col(colDonations), bson.M{"_id": donationID}, "donation "+donationID)
}

func (t *mongoTx) CreateMilestone(ctx context.Context, m *types.Milestone) error {
	if _, err := t.col(colMilestones).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("create milestone: %w", err)
	}
	return nil
}

var milestoneOrder = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

func (t *mongoTx) ListOpenMilestones(ctx context.Context, campaignID string) ([]types.Milestone, error) {
	filter := bson.M{
		"campaign_id": campaignID,
		"status":      bson.M{"$in": bson.A{types.MilestoneNotStarted, types.MilestoneInProgress}},
	}
	return findAll[types.Milestone](ctx, t.col(colMilestones), filter, milestoneOrder, "open milestones")
}

func (t *mongoTx) ListMilestones(ctx context.Context, campaignID string) ([]types.Milestone, error) {
	return findAll[types.Milestone](ctx, t.col(colMilestones), bson.M{"campaign_id": campaignID}, milestoneOrder, "milestones")
}

func (t *mongoTx) UpdateMilestone(ctx context.Context, m *types.Milestone) error {
	res, err := t.col(colMilestones).ReplaceOne(ctx, bson.M{"_id": m.MilestoneID}, m)
	if err != nil {
		return fmt.Errorf("update milestone: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("milestone %s: %w", m.MilestoneID, store.ErrNotFound)
	}
	return nil
}

func (t *mongoTx) CreateAllocation(ctx context.Context, a *types.Allocation) error {
	if _, err := t.col(colAllocations).InsertOne(ctx, a); err != nil {
		return fmt.Errorf("create allocation: %w", err)
	}
	return nil
}

func (t *mongoTx) ListAllocations(ctx context.Context, f store.AllocationFilter) ([]types.Allocation, error) {
	filter := bson.M{}
	if f.CampaignID != "" {
		filter["campaign_id"] = f.CampaignID
	}
	if f.DonationID != "" {
		filter["donation_id"] = f.DonationID
	}
	if f.MilestoneID != "" {
		filter["milestone_id"] = f.MilestoneID
	}
	return findAll[types.Allocation](ctx, t.col(colAllocations), filter,
		bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}, "allocations")
}

func (t *mongoTx) AppendLedgerEvent(ctx context.Context, e *types.LedgerEvent) error {
	if _, err := t.col(colLedgerEvents).InsertOne(ctx, e); err != nil {
		return fmt.Errorf("append ledger event: %w", err)
	}
	return nil
}

func (t *mongoTx) ListLedgerEvents(ctx context.Context, campaignID string) ([]types.LedgerEvent, error) {
	return findAll[types.LedgerEvent](ctx, t.col(colLedgerEvents), bson.M{"campaign_id": campaignID},
		bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}, "ledger events")
}
