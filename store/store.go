// Package store defines the transactional document store the engine runs
// on. Every multi-record mutation happens inside RunInTx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/chaindonate/types"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write loses to a concurrent writer or
	// a uniqueness constraint.
	ErrConflict = errors.New("write conflict")
)

// Store runs functions inside store transactions.
type Store interface {
	// RunInTx commits when fn returns nil and rolls back otherwise. Backends
	// may retry fn on transient conflicts, so fn must not have side effects
	// outside tx.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// AllocationFilter narrows ListAllocations; empty fields match anything.
type AllocationFilter struct {
	CampaignID  string
	DonationID  string
	MilestoneID string
}

// Tx is the set of reads and writes available inside a transaction.
type Tx interface {
	GetCampaign(ctx context.Context, campaignID string, forUpdate bool) (*types.Campaign, error)
	SaveCampaign(ctx context.Context, c *types.Campaign) error
	AddAssetTotal(ctx context.Context, campaignID, assetID string, native, raw decimal.Decimal, at time.Time) error
	GetAssetTotal(ctx context.Context, campaignID, assetID string) (*types.CampaignAssetTotal, error)

	GetDeposit(ctx context.Context, key types.DepositKey) (*types.Deposit, error)
	// CreateDepositIfAbsent inserts d unless a deposit with the same key
	// exists, and reports whether it inserted.
	CreateDepositIfAbsent(ctx context.Context, d *types.Deposit) (bool, error)

	CreateIntent(ctx context.Context, in *types.PaymentIntent) error
	GetIntent(ctx context.Context, intentID string) (*types.PaymentIntent, error)
	// ConfirmIntent applies the confirmation fields of in, provided the
	// stored intent is still CREATED. Otherwise it returns ErrConflict.
	ConfirmIntent(ctx context.Context, in *types.PaymentIntent) error
	// TransitionIntent moves an intent between statuses, returning
	// ErrConflict when the stored status is not from.
	TransitionIntent(ctx context.Context, intentID string, from, to types.IntentStatus, at time.Time) error
	ListIntentsExpiringBefore(ctx context.Context, before time.Time, limit int) ([]types.PaymentIntent, error)

	GetChainTransaction(ctx context.Context, networkID, txHash string) (*types.ChainTransaction, error)
	LatestChainTransactionForIntent(ctx context.Context, intentID string) (*types.ChainTransaction, error)
	// CreateChainTransaction returns ErrConflict when (network, hash) is taken.
	CreateChainTransaction(ctx context.Context, ct *types.ChainTransaction) error

	CreateDonation(ctx context.Context, d *types.Donation) error
	GetDonation(ctx context.Context, donationID string) (*types.Donation, error)

	CreateMilestone(ctx context.Context, m *types.Milestone) error
	// ListOpenMilestones returns NOT_STARTED and IN_PROGRESS milestones
	// oldest first.
	ListOpenMilestones(ctx context.Context, campaignID string) ([]types.Milestone, error)
	ListMilestones(ctx context.Context, campaignID string) ([]types.Milestone, error)
	UpdateMilestone(ctx context.Context, m *types.Milestone) error

	CreateAllocation(ctx context.Context, a *types.Allocation) error
	ListAllocations(ctx context.Context, f AllocationFilter) ([]types.Allocation, error)

	AppendLedgerEvent(ctx context.Context, e *types.LedgerEvent) error
	ListLedgerEvents(ctx context.Context, campaignID string) ([]types.LedgerEvent, error)
}

// Read runs fn in a transaction and returns its value.
func Read[T any](ctx context.Context, s Store, fn func(ctx context.Context, tx Tx) (T, error)) (T, error) {
	var out T
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
