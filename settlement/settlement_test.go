package settlement

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/chaindonate/chains"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/store/gormstore"
	"github.com/vitwit/chaindonate/types"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openStore(t testing.TB) *gormstore.Store {
	t.Helper()
	s, err := gormstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seq(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

func testAllocator() *Allocator {
	return &Allocator{now: func() time.Time { return t0 }, newID: seq("a")}
}

func addMilestones(t testing.TB, s store.Store, campaignID string, targets ...string) {
	t.Helper()
	require.NoError(t, s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for i, target := range targets {
			currency := "INR"
			amount := target
			if len(target) > 4 && target[:4] == "USD:" {
				currency, amount = "USD", target[4:]
			}
			if err := tx.CreateMilestone(ctx, &types.Milestone{
				MilestoneID:    fmt.Sprintf("%s-m%d", campaignID, i),
				CampaignID:     campaignID,
				Title:          fmt.Sprintf("milestone %d", i),
				TargetAmount:   decimal.RequireFromString(amount),
				TargetCurrency: currency,
				Status:         types.MilestoneNotStarted,
				CreatedAt:      t0.Add(time.Duration(i) * time.Minute),
			}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func allocate(t testing.TB, s store.Store, a *Allocator, campaignID, donationID, amount string) *AllocationResult {
	t.Helper()
	var res *AllocationResult
	require.NoError(t, s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = a.Allocate(ctx, tx, donationID, campaignID, decimal.RequireFromString(amount), "INR")
		return err
	}))
	return res
}

func milestones(t testing.TB, s store.Store, campaignID string) []types.Milestone {
	t.Helper()
	ms, err := store.Read(context.Background(), s, func(ctx context.Context, tx store.Tx) ([]types.Milestone, error) {
		return tx.ListMilestones(ctx, campaignID)
	})
	require.NoError(t, err)
	return ms
}

func TestAllocateFillsMilestonesInOrder(t *testing.T) {
	s := openStore(t)
	a := testAllocator()
	addMilestones(t, s, "c1", "1000", "USD:50", "500", "2000")

	res := allocate(t, s, a, "c1", "d1", "1200")
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "c1-m0", res.Allocations[0].MilestoneID)
	assert.Equal(t, "1000", res.Allocations[0].Amount.String())
	assert.Equal(t, "c1-m2", res.Allocations[1].MilestoneID, "USD milestone skipped for INR funds")
	assert.Equal(t, "200", res.Allocations[1].Amount.String())
	assert.True(t, res.Unallocated.IsZero())

	var kinds []types.LedgerEventType
	for _, e := range res.Events {
		kinds = append(kinds, e.Type)
	}
	assert.Equal(t, []types.LedgerEventType{
		types.EventDonationAllocated, types.EventMilestoneCompleted, types.EventDonationAllocated,
	}, kinds)

	ms := milestones(t, s, "c1")
	assert.Equal(t, types.MilestoneFundingCompleted, ms[0].Status)
	require.NotNil(t, ms[0].CompletedAt)
	assert.Equal(t, types.MilestoneNotStarted, ms[1].Status)
	assert.Equal(t, types.MilestoneInProgress, ms[2].Status)
	assert.Equal(t, "200", ms[2].ReceivedAmount.String())

	res = allocate(t, s, a, "c1", "d2", "5000")
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "300", res.Allocations[0].Amount.String())
	assert.Equal(t, "2000", res.Allocations[1].Amount.String())
	assert.Equal(t, "2700", res.Unallocated.String(), "remainder with no open milestone stays unallocated")

	res = allocate(t, s, a, "c1", "d3", "10")
	assert.Empty(t, res.Allocations)
	assert.Equal(t, "10", res.Unallocated.String())
}

func TestAllocateZeroAmount(t *testing.T) {
	s := openStore(t)
	addMilestones(t, s, "c1", "100")
	res := allocate(t, s, testAllocator(), "c1", "d1", "0")
	assert.Empty(t, res.Allocations)
	assert.Equal(t, types.MilestoneNotStarted, milestones(t, s, "c1")[0].Status)
}

func TestAllocationConservation(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 40
	properties := gopter.NewProperties(params)

	properties.Property("allocations never exceed milestone targets or donation amounts", prop.ForAll(
		func(targets, donations []int) bool {
			s := openStore(t)
			a := testAllocator()

			strs := make([]string, len(targets))
			for i, v := range targets {
				strs[i] = fmt.Sprint(v)
			}
			addMilestones(t, s, "c", strs...)

			for i, amt := range donations {
				donationID := fmt.Sprintf("d%d", i)
				allocate(t, s, a, "c", donationID, fmt.Sprint(amt))

				allocs, err := store.Read(context.Background(), s, func(ctx context.Context, tx store.Tx) ([]types.Allocation, error) {
					return tx.ListAllocations(ctx, store.AllocationFilter{DonationID: donationID})
				})
				if err != nil {
					return false
				}
				sum := decimal.Zero
				for _, al := range allocs {
					sum = sum.Add(al.Amount)
				}
				if sum.GreaterThan(decimal.NewFromInt(int64(amt))) {
					return false
				}
			}

			for _, m := range milestones(t, s, "c") {
				allocs, err := store.Read(context.Background(), s, func(ctx context.Context, tx store.Tx) ([]types.Allocation, error) {
					return tx.ListAllocations(ctx, store.AllocationFilter{MilestoneID: m.MilestoneID})
				})
				if err != nil {
					return false
				}
				sum := decimal.Zero
				for _, al := range allocs {
					sum = sum.Add(al.Amount)
				}
				if sum.GreaterThan(m.TargetAmount) || !sum.Equal(m.ReceivedAmount) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(4, gen.IntRange(1, 1000)),
		gen.SliceOfN(5, gen.IntRange(1, 1500)),
	))

	properties.TestingRun(t)
}

type fixedINR struct{ rate decimal.Decimal }

func (f fixedINR) USDToINR(usd decimal.Decimal) decimal.Decimal { return usd.Mul(f.rate).Round(2) }

type recordingPublisher struct{ events []types.LedgerEvent }

func (p *recordingPublisher) Publish(_ context.Context, evs []types.LedgerEvent) error {
	p.events = append(p.events, evs...)
	return nil
}
func (p *recordingPublisher) Close() error { return nil }

var ethAsset = types.Asset{AssetID: "eth_ethereum_mainnet", NetworkID: "ethereum", Symbol: "ETH", Decimals: 18, AssetType: types.AssetNative}

func seedIntent(t *testing.T, s store.Store, id string, reserved string) *types.PaymentIntent {
	t.Helper()
	in := &types.PaymentIntent{
		IntentID:          id,
		CampaignID:        "camp-1",
		AssetID:           ethAsset.AssetID,
		NetworkID:         "ethereum",
		DepositAddress:    "0x9858EfFD232B4033E47d90003D41EC34EcaEda94",
		AmountNative:      decimal.RequireFromString("0.01"),
		ExpectedAmountRaw: decimal.RequireFromString("10000000000001234"),
		ExpectedDecimals:  18,
		ReservedINR:       decimal.RequireFromString(reserved),
		Status:            types.IntentCreated,
		ExpiresAt:         t0.Add(24 * time.Hour),
		CreatedAt:         t0,
	}
	require.NoError(t, s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		c, err := LockCampaign(ctx, tx, in.CampaignID, t0)
		if err != nil {
			return err
		}
		c.ReservedINR = c.ReservedINR.Add(in.ReservedINR)
		if err := tx.SaveCampaign(ctx, c); err != nil {
			return err
		}
		return tx.CreateIntent(ctx, in)
	}))
	return in
}

func evidence(hash string) *chains.Evidence {
	amount, _ := new(big.Int).SetString("10000000000001234", 10)
	return &chains.Evidence{
		TxHash: hash, From: "0x00000000000000000000000000000000000000aa",
		To: "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", AmountRaw: amount,
		BlockNumber: 100, Confirmations: 3,
	}
}

func newTestPoster(s store.Store, pub *recordingPublisher) *Poster {
	p := NewPoster(s, testAllocator(), fixedINR{rate: decimal.NewFromInt(83)}, pub, "", logger.NoopLogger{}, nil)
	p.now = func() time.Time { return t0.Add(time.Hour) }
	p.newID = seq("p")
	return p
}

func TestPostIsAtomicAndIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	addMilestones(t, s, "camp-1", "2000", "5000")
	in := seedIntent(t, s, "intent-1", "2490")
	pub := &recordingPublisher{}
	p := newTestPoster(s, pub)

	req := PostRequest{Intent: in, Asset: ethAsset, Evidence: evidence("0xaaa"), USDRate: decimal.NewFromInt(3000)}
	res, err := p.Post(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.AlreadyRecorded)
	assert.Equal(t, types.IntentConfirmed, res.Status)
	assert.Equal(t, "0.010000000000001234", res.AmountNative)
	assert.Equal(t, "30.00", res.USDAtConfirm)
	assert.NotEmpty(t, res.DonationID)

	again, err := p.Post(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.AlreadyRecorded)
	assert.Equal(t, res.DonationID, again.DonationID)

	err = s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.GetCampaign(ctx, "camp-1", false)
		require.NoError(t, err)
		assert.Equal(t, "2490", c.RaisedINR.String(), "30 USD at 83 INR")
		assert.Equal(t, "30", c.RaisedUSD.String())
		assert.True(t, c.ReservedINR.IsZero(), "reservation released")
		assert.Equal(t, int64(1), c.DonationCount)

		total, err := tx.GetAssetTotal(ctx, "camp-1", ethAsset.AssetID)
		require.NoError(t, err)
		assert.Equal(t, "10000000000001234", total.AmountRaw.String())

		stored, err := tx.GetIntent(ctx, "intent-1")
		require.NoError(t, err)
		assert.Equal(t, types.IntentConfirmed, stored.Status)
		assert.Equal(t, "0xaaa", stored.TxHash)

		allocs, err := tx.ListAllocations(ctx, store.AllocationFilter{DonationID: res.DonationID})
		require.NoError(t, err)
		require.Len(t, allocs, 2)
		assert.Equal(t, "2000", allocs[0].Amount.String())
		assert.Equal(t, "490", allocs[1].Amount.String())

		evs, err := tx.ListLedgerEvents(ctx, "camp-1")
		require.NoError(t, err)
		assert.Len(t, evs, 4, "confirmed, two allocations, one completion")
		return nil
	})
	require.NoError(t, err)

	require.Len(t, pub.events, 4, "published once, after the first commit")
	assert.Equal(t, types.EventDonationConfirmed, pub.events[0].Type)
}

func TestPostBlocksReplayAcrossIntents(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	first := seedIntent(t, s, "intent-1", "0")
	second := seedIntent(t, s, "intent-2", "0")
	p := newTestPoster(s, &recordingPublisher{})

	_, err := p.Post(ctx, PostRequest{Intent: first, Asset: ethAsset, Evidence: evidence("0xbbb"), USDRate: decimal.NewFromInt(3000)})
	require.NoError(t, err)

	_, err = p.Post(ctx, PostRequest{Intent: second, Asset: ethAsset, Evidence: evidence("0xbbb"), USDRate: decimal.NewFromInt(3000)})
	assert.True(t, types.IsCode(err, types.ErrReplayBlocked), "got %v", err)

	// a closed intent cannot take a second transaction
	_, err = p.Post(ctx, PostRequest{Intent: first, Asset: ethAsset, Evidence: evidence("0xccc"), USDRate: decimal.NewFromInt(3000)})
	assert.True(t, types.IsCode(err, types.ErrIntentClosed), "got %v", err)

	campaign, err := store.Read(ctx, s, func(ctx context.Context, tx store.Tx) (*types.Campaign, error) {
		return tx.GetCampaign(ctx, "camp-1", false)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), campaign.DonationCount)
}

func TestPostAllocatesInConfiguredCurrency(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	addMilestones(t, s, "camp-1", "USD:20", "USD:100")
	in := seedIntent(t, s, "intent-1", "0")

	p := newTestPoster(s, &recordingPublisher{})
	p.currency = CurrencyUSD
	_, err := p.Post(ctx, PostRequest{Intent: in, Asset: ethAsset, Evidence: evidence("0xddd"), USDRate: decimal.NewFromInt(3000)})
	require.NoError(t, err)

	ms := milestones(t, s, "camp-1")
	assert.Equal(t, types.MilestoneFundingCompleted, ms[0].Status)
	assert.Equal(t, "10", ms[1].ReceivedAmount.String())
}
