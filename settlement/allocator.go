package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/types"
)

// AllocationResult is what one Allocate call wrote.
type AllocationResult struct {
	Allocations []types.Allocation
	Events      []types.LedgerEvent
	Unallocated decimal.Decimal
}

// Allocator fills a campaign's open milestones in creation order.
type Allocator struct {
	now   func() time.Time
	newID func() string
}

func NewAllocator() *Allocator {
	return &Allocator{now: time.Now, newID: uuid.NewString}
}

// Allocate spreads amount over the campaign's open milestones whose target
// currency matches, oldest first, inside tx. Anything left over once the
// milestones are full stays unallocated.
func (a *Allocator) Allocate(ctx context.Context, tx store.Tx, donationID, campaignID string, amount decimal.Decimal, currency string) (*AllocationResult, error) {
	res := &AllocationResult{Unallocated: amount}
	if !amount.IsPositive() {
		return res, nil
	}

	milestones, err := tx.ListOpenMilestones(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	remaining := amount
	for i := range milestones {
		if !remaining.IsPositive() {
			break
		}
		m := &milestones[i]
		if !m.Status.AcceptsFunds() || !strings.EqualFold(m.TargetCurrency, currency) {
			continue
		}
		need := m.Remaining()
		if !need.IsPositive() {
			continue
		}

		slice := decimal.Min(remaining, need)
		alloc := types.Allocation{
			AllocationID: a.newID(),
			DonationID:   donationID,
			MilestoneID:  m.MilestoneID,
			CampaignID:   campaignID,
			Amount:       slice,
			Currency:     m.TargetCurrency,
			CreatedAt:    now,
		}
		if err := tx.CreateAllocation(ctx, &alloc); err != nil {
			return nil, err
		}
		res.Allocations = append(res.Allocations, alloc)

		m.ReceivedAmount = m.ReceivedAmount.Add(slice)
		m.UpdatedAt = now
		completed := m.ReceivedAmount.GreaterThanOrEqual(m.TargetAmount)
		if completed {
			m.Status = types.MilestoneFundingCompleted
			m.CompletedAt = &now
		} else if m.Status == types.MilestoneNotStarted {
			m.Status = types.MilestoneInProgress
		}
		if err := tx.UpdateMilestone(ctx, m); err != nil {
			return nil, err
		}

		if err := a.appendEvent(ctx, tx, res, types.LedgerEvent{
			CampaignID:  campaignID,
			Type:        types.EventDonationAllocated,
			DonationID:  donationID,
			MilestoneID: m.MilestoneID,
			Amount:      slice,
			Currency:    m.TargetCurrency,
			CreatedAt:   now,
		}); err != nil {
			return nil, err
		}
		if completed {
			if err := a.appendEvent(ctx, tx, res, types.LedgerEvent{
				CampaignID:  campaignID,
				Type:        types.EventMilestoneCompleted,
				DonationID:  donationID,
				MilestoneID: m.MilestoneID,
				Amount:      m.ReceivedAmount,
				Currency:    m.TargetCurrency,
				CreatedAt:   now,
			}); err != nil {
				return nil, err
			}
		}

		remaining = remaining.Sub(slice)
	}

	res.Unallocated = remaining
	return res, nil
}

func (a *Allocator) appendEvent(ctx context.Context, tx store.Tx, res *AllocationResult, ev types.LedgerEvent) error {
	ev.EventID = a.newID()
	if err := tx.AppendLedgerEvent(ctx, &ev); err != nil {
		return err
	}
	res.Events = append(res.Events, ev)
	return nil
}
