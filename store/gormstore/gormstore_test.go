package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestDepositCreateIfAbsent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := &types.Deposit{CampaignID: "c1", AssetID: "eth-native", NetworkID: "eth", Address: "0xabc", CreatedAt: t0, Recoverable: true}
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		created, err := tx.CreateDepositIfAbsent(ctx, d)
		require.NoError(t, err)
		assert.True(t, created)

		dup := *d
		dup.Address = "0xdef"
		created, err = tx.CreateDepositIfAbsent(ctx, &dup)
		require.NoError(t, err)
		assert.False(t, created)
		return nil
	})
	require.NoError(t, err)

	got, err := store.Read(ctx, s, func(ctx context.Context, tx store.Tx) (*types.Deposit, error) {
		return tx.GetDeposit(ctx, d.Key())
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.Address)
	assert.True(t, got.Recoverable)

	_, err = store.Read(ctx, s, func(ctx context.Context, tx store.Tx) (*types.Deposit, error) {
		return tx.GetDeposit(ctx, types.DepositKey{CampaignID: "nope"})
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIntentLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := &types.PaymentIntent{
		IntentID:            "i1",
		CampaignID:          "c1",
		AssetID:             "eth-native",
		NetworkID:           "eth",
		AmountNative:        decimal.RequireFromString("0.01"),
		ExpectedAmountRaw:   decimal.RequireFromString("10000012345678901"),
		StartBlockByNetwork: map[string]uint64{"eth": 100, "polygon": 5000},
		Status:              types.IntentCreated,
		ExpiresAt:           t0.Add(24 * time.Hour),
		CreatedAt:           t0,
		UpdatedAt:           t0,
	}
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateIntent(ctx, in)
	}))

	got, err := store.Read(ctx, s, func(ctx context.Context, tx store.Tx) (*types.PaymentIntent, error) {
		return tx.GetIntent(ctx, "i1")
	})
	require.NoError(t, err)
	assert.Equal(t, "10000012345678901", got.ExpectedAmountRaw.String(), "18 decimal precision survives")
	assert.Equal(t, uint64(100), got.StartBlockByNetwork["eth"])
	assert.Equal(t, types.IntentCreated, got.Status)

	confirmedAt := t0.Add(time.Hour)
	got.TxHash = "0xhash"
	got.ConfirmedAmountRaw = got.ExpectedAmountRaw
	got.ConfirmedAt = &confirmedAt
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.ConfirmIntent(ctx, got)
	}))

	err = s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.ConfirmIntent(ctx, got)
	})
	assert.ErrorIs(t, err, store.ErrConflict, "confirmation never repeats")

	err = s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.TransitionIntent(ctx, "i1", types.IntentCreated, types.IntentExpired, t0)
	})
	assert.ErrorIs(t, err, store.ErrConflict, "confirmed intents never regress")

	final, err := store.Read(ctx, s, func(ctx context.Context, tx store.Tx) (*types.PaymentIntent, error) {
		return tx.GetIntent(ctx, "i1")
	})
	require.NoError(t, err)
	assert.Equal(t, types.IntentConfirmed, final.Status)
	assert.Equal(t, "0xhash", final.TxHash)
}

func TestListIntentsExpiringBefore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for i, exp := range []time.Duration{-2 * time.Hour, -time.Hour, time.Hour} {
			in := &types.PaymentIntent{
				IntentID:  string(rune('a' + i)),
				Status:    types.IntentCreated,
				ExpiresAt: t0.Add(exp),
				CreatedAt: t0,
			}
			if err := tx.CreateIntent(ctx, in); err != nil {
				return err
			}
		}
		return nil
	}))

	list, err := store.Read(ctx, s, func(ctx context.Context, tx store.Tx) ([]types.PaymentIntent, error) {
		return tx.ListIntentsExpiringBefore(ctx, t0, 10)
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].IntentID)
}

func TestChainTransactionUnique(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ct := &types.ChainTransaction{ID: "t1", NetworkID: "eth", TxHash: "0xaa", IntentID: "i1", CreatedAt: t0}
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateChainTransaction(ctx, ct)
	}))

	dup := *ct
	dup.ID = "t2"
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateChainTransaction(ctx, &dup)
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	other := *ct
	other.ID = "t3"
	other.NetworkID = "polygon"
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateChainTransaction(ctx, &other)
	}), "same hash on another network is a different transaction")

	latest, err := store.Read(ctx, s, func(ctx context.Context, tx store.Tx) (*types.ChainTransaction, error) {
		return tx.LatestChainTransactionForIntent(ctx, "i1")
	})
	require.NoError(t, err)
	assert.Equal(t, "i1", latest.IntentID)
}

func TestRunInTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SaveCampaign(ctx, &types.Campaign{CampaignID: "c1", CreatedAt: t0}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Read(ctx, s, func(ctx context.Context, tx store.Tx) (*types.Campaign, error) {
		return tx.GetCampaign(ctx, "c1", false)
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCampaignTotalsAndMilestones(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.SaveCampaign(ctx, &types.Campaign{CampaignID: "c1", GoalAmount: decimal.NewFromInt(1000), CreatedAt: t0}))
		require.NoError(t, tx.AddAssetTotal(ctx, "c1", "eth-native", decimal.RequireFromString("0.5"), decimal.NewFromInt(5), t0))
		require.NoError(t, tx.AddAssetTotal(ctx, "c1", "eth-native", decimal.RequireFromString("0.25"), decimal.NewFromInt(2), t0))

		for i, status := range []types.MilestoneStatus{types.MilestoneFundingCompleted, types.MilestoneInProgress, types.MilestoneNotStarted} {
			m := &types.Milestone{
				MilestoneID:  string(rune('a' + i)),
				CampaignID:   "c1",
				TargetAmount: decimal.NewFromInt(100),
				Status:       status,
				CreatedAt:    t0.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, tx.CreateMilestone(ctx, m))
		}
		return nil
	}))

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		total, err := tx.GetAssetTotal(ctx, "c1", "eth-native")
		require.NoError(t, err)
		assert.Equal(t, "0.75", total.AmountNative.String())
		assert.Equal(t, "7", total.AmountRaw.String())

		c, err := tx.GetCampaign(ctx, "c1", true)
		require.NoError(t, err)
		assert.Equal(t, "1000", c.GoalAmount.String())

		open, err := tx.ListOpenMilestones(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, "b", open[0].MilestoneID)
		assert.Equal(t, "c", open[1].MilestoneID)

		all, err := tx.ListMilestones(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, all, 3)
		return nil
	})
	require.NoError(t, err)
}
